package socks5uring

import "github.com/socks5uring/socks5uring/internal/constants"

// Re-exported SOCKS5 wire constants and pool-sizing defaults, for callers
// that want to build their own Options or inspect reply codes without
// importing the internal packages directly.
const (
	ProtocolVersion = constants.ProtocolVersion

	CmdConnect = constants.CmdConnect
	CmdBind    = constants.CmdBind
	CmdUDP     = constants.CmdUDP

	AddrTypeIPv4   = constants.AddrTypeIPv4
	AddrTypeDomain = constants.AddrTypeDomain
	AddrTypeIPv6   = constants.AddrTypeIPv6

	ReplySuccess                = constants.ReplySuccess
	ReplyGeneralFailure         = constants.ReplyGeneralFailure
	ReplyNetworkUnreachable     = constants.ReplyNetworkUnreachable
	ReplyHostUnreachable        = constants.ReplyHostUnreachable
	ReplyConnectionRefused      = constants.ReplyConnectionRefused
	ReplyCommandNotSupported    = constants.ReplyCommandNotSupported
	ReplyAddressTypeUnsupported = constants.ReplyAddressTypeUnsupported

	DefaultMaxSessions = constants.DefaultMaxSessions
)
