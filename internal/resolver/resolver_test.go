package resolver

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeResolverReturnsProgrammedAnswer(t *testing.T) {
	f := NewFake().With("example.com", net.ParseIP("93.184.216.34"))

	ips, err := f.Resolve(context.Background(), "example.com")
	require.NoError(t, err)
	require.Len(t, ips, 1)
	assert.Equal(t, "93.184.216.34", ips[0].String())
	assert.Equal(t, 1, f.CallCount("example.com"))
}

func TestFakeResolverReturnsProgrammedError(t *testing.T) {
	f := NewFake().WithError("nxdomain.invalid", errors.New("no such host"))

	_, err := f.Resolve(context.Background(), "nxdomain.invalid")
	assert.Error(t, err)
	assert.Equal(t, 1, f.CallCount("nxdomain.invalid"))
}

func TestFakeResolverUnprogrammedHostReturnsEmpty(t *testing.T) {
	f := NewFake()
	ips, err := f.Resolve(context.Background(), "unknown.invalid")
	require.NoError(t, err)
	assert.Empty(t, ips)
}
