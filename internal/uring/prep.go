package uring

// UserData packs an event-pool index into the opaque 64-bit cookie the
// kernel hands back unchanged on the matching CQE. Event records (not raw
// pointers) are what cross the completion boundary, per the slab-indexed
// session design: a stale completion for a torn-down session resolves to a
// released (and ignorable) event record rather than a dangling pointer.
func UserData(eventID int) uint64 {
	return uint64(uint32(eventID))
}

// EventID unpacks the cookie set by UserData.
func EventID(userData uint64) int {
	return int(uint32(userData))
}

// PrepareAccept fills sqe for an IORING_OP_ACCEPT on listenFD.
func PrepareAccept(sqe *SQE, listenFD int32, eventID int) {
	*sqe = SQE{
		Opcode:   OpAccept,
		Fd:       listenFD,
		UserData: UserData(eventID),
	}
}

// PrepareRead fills sqe for a plain read into buf.
func PrepareRead(sqe *SQE, fd int32, buf []byte, eventID int) {
	var iv Iovec
	iv.Set(buf)
	*sqe = SQE{
		Opcode:   OpRead,
		Fd:       fd,
		Addr:     uint64(iv.Base),
		Len:      uint32(len(buf)),
		UserData: UserData(eventID),
	}
}

// PrepareReadFixed fills sqe for a read into a registered buffer half.
// bufIndex identifies the registered iovec (see BufferPool.RegisteredDescriptors).
func PrepareReadFixed(sqe *SQE, fd int32, buf []byte, bufIndex uint16, eventID int) {
	var iv Iovec
	iv.Set(buf)
	*sqe = SQE{
		Opcode:   OpReadFixed,
		Fd:       fd,
		Addr:     uint64(iv.Base),
		Len:      uint32(len(buf)),
		BufIndex: bufIndex,
		UserData: UserData(eventID),
	}
}

// PrepareWrite fills sqe for a plain write of buf[offset:].
func PrepareWrite(sqe *SQE, fd int32, buf []byte, offset int, eventID int) {
	var iv Iovec
	iv.Set(buf[offset:])
	*sqe = SQE{
		Opcode:   OpWrite,
		Fd:       fd,
		Addr:     uint64(iv.Base),
		Len:      uint32(len(buf) - offset),
		UserData: UserData(eventID),
	}
}

// PrepareWriteFixed fills sqe for a write of buf[offset:] from a registered
// buffer half.
func PrepareWriteFixed(sqe *SQE, fd int32, buf []byte, offset int, bufIndex uint16, eventID int) {
	var iv Iovec
	iv.Set(buf[offset:])
	*sqe = SQE{
		Opcode:   OpWriteFixed,
		Fd:       fd,
		Addr:     uint64(iv.Base),
		Len:      uint32(len(buf) - offset),
		BufIndex: bufIndex,
		UserData: UserData(eventID),
	}
}

// PrepareConnect fills sqe for an IORING_OP_CONNECT. addr must stay alive
// (and unmoved — no further Go allocation that could trigger a copying GC
// of the backing array) until the completion arrives; callers pin it on the
// session for the lifetime of the submission.
func PrepareConnect(sqe *SQE, fd int32, addr *RawSockaddr, addrLen uint32, eventID int) {
	*sqe = SQE{
		Opcode:   OpConnect,
		Fd:       fd,
		Addr:     uint64(addr.Ptr()),
		Off:      uint64(addrLen),
		UserData: UserData(eventID),
	}
}
