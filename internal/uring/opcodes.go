package uring

// Opcodes used by this driver. Values match the kernel's IORING_OP_*
// enumeration; only the subset submit_accept/submit_client_read/.../
// submit_destination_write require is named.
const (
	OpRead       = 22
	OpWrite      = 23
	OpAccept     = 13
	OpConnect    = 16
	OpReadFixed  = 4
	OpWriteFixed = 5
)

// Setup flags.
const (
	SetupSQPoll      = 1 << 1
	SetupCQSize      = 1 << 3
	FeatSingleMMap   = 1 << 0
	FeatNoDrop       = 1 << 1
	FeatFastPoll     = 1 << 5
)

// Enter flags.
const (
	EnterGetEvents = 1 << 0
)

// Register opcodes (only the buffer-registration path is used here).
const (
	RegisterBuffers = 0
)
