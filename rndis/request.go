package rndis

// Request encoders build host-to-device control messages. The device never
// sends these; they exist for hosts, simulators and tests driving an
// instance.

// EncodeInitialize builds an INITIALIZE message.
func EncodeInitialize(requestID, maxTransferSize uint32) []byte {
	b := make([]byte, initializeMsgSize)
	put32(b, 0, uint32(MsgInitialize))
	put32(b, 4, initializeMsgSize)
	put32(b, 8, requestID)
	put32(b, 12, MajorVersion)
	put32(b, 16, MinorVersion)
	put32(b, 20, maxTransferSize)
	return b
}

// EncodeHalt builds a HALT message.
func EncodeHalt(requestID uint32) []byte {
	return encodeShort(MsgHalt, requestID)
}

// EncodeReset builds a RESET message.
func EncodeReset() []byte {
	return encodeShort(MsgReset, 0)
}

// EncodeKeepalive builds a KEEPALIVE message.
func EncodeKeepalive(requestID uint32) []byte {
	return encodeShort(MsgKeepalive, requestID)
}

// EncodeQuery builds a QUERY message for oid with an optional input buffer.
func EncodeQuery(requestID uint32, oid OID, info []byte) []byte {
	return encodeOIDRequest(MsgQuery, requestID, oid, info)
}

// EncodeSet builds a SET message assigning info to oid.
func EncodeSet(requestID uint32, oid OID, info []byte) []byte {
	return encodeOIDRequest(MsgSet, requestID, oid, info)
}

func encodeShort(t MessageType, word uint32) []byte {
	b := make([]byte, 12)
	put32(b, 0, uint32(t))
	put32(b, 4, 12)
	put32(b, 8, word)
	return b
}

func encodeOIDRequest(t MessageType, requestID uint32, oid OID, info []byte) []byte {
	b := make([]byte, queryMsgSize+len(info))
	put32(b, 0, uint32(t))
	put32(b, 4, uint32(len(b)))
	put32(b, 8, requestID)
	put32(b, 12, uint32(oid))
	put32(b, 16, uint32(len(info)))
	if len(info) > 0 {
		put32(b, 20, queryMsgSize-infoBufferBase)
	}
	put32(b, 24, 0) // DeviceVcHandle
	copy(b[queryMsgSize:], info)
	return b
}
