package rndis

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/softrndis/pkg"
)

// Message is a decoded host-to-device control message. The concrete type is
// one of [*InitializeMsg], [*HaltMsg], [*QueryMsg], [*SetMsg], [*ResetMsg],
// [*KeepaliveMsg] or [*UnknownMsg].
type Message interface {
	// Type returns the message type from the header.
	Type() MessageType
}

// Header is the common 8-byte prefix of every RNDIS message.
type Header struct {
	MessageType   MessageType
	MessageLength uint32
}

// InitializeMsg is REMOTE_NDIS_INITIALIZE_MSG.
type InitializeMsg struct {
	Header
	RequestID       uint32
	MajorVersion    uint32
	MinorVersion    uint32
	MaxTransferSize uint32
}

// HaltMsg is REMOTE_NDIS_HALT_MSG.
type HaltMsg struct {
	Header
	RequestID uint32
}

// QueryMsg is REMOTE_NDIS_QUERY_MSG.
type QueryMsg struct {
	Header
	RequestID uint32
	OID       OID
	// Info is the information buffer; it aliases the decoded input.
	Info []byte
}

// SetMsg is REMOTE_NDIS_SET_MSG.
type SetMsg struct {
	Header
	RequestID uint32
	OID       OID
	// Info is the information buffer; it aliases the decoded input.
	Info []byte
}

// ResetMsg is REMOTE_NDIS_RESET_MSG.
type ResetMsg struct {
	Header
	Reserved uint32
}

// KeepaliveMsg is REMOTE_NDIS_KEEPALIVE_MSG.
type KeepaliveMsg struct {
	Header
	RequestID uint32
}

// UnknownMsg carries a message whose type the engine does not handle.
type UnknownMsg struct {
	Header
	// Raw is the whole message, clipped to the declared length when that
	// fits in the input.
	Raw []byte
}

// Type implements Message.
func (h *Header) Type() MessageType { return h.MessageType }

// DecodeHeader reads the message type and length from buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("header needs %d bytes, have %d: %w",
			HeaderSize, len(buf), pkg.ErrMalformed)
	}
	return Header{
		MessageType:   MessageType(binary.LittleEndian.Uint32(buf[0:])),
		MessageLength: binary.LittleEndian.Uint32(buf[4:]),
	}, nil
}

// Decode parses one control message from buf.
//
// The declared message length must not exceed len(buf) and must cover the
// fixed body of the declared type. For QUERY and SET the information buffer
// described by offset and length must lie inside the message. Violations
// return an error wrapping [pkg.ErrMalformed]. Unknown message types decode
// successfully as [*UnknownMsg] whatever length they declare.
func Decode(buf []byte) (Message, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	switch h.MessageType {
	case MsgInitialize, MsgHalt, MsgQuery, MsgSet, MsgReset, MsgKeepalive:
	default:
		// Raw is clipped to what arrived so the type can still be reported.
		n := len(buf)
		if uint64(h.MessageLength) < uint64(n) {
			n = max(int(h.MessageLength), HeaderSize)
		}
		return &UnknownMsg{Header: h, Raw: buf[:n]}, nil
	}
	if uint64(h.MessageLength) > uint64(len(buf)) {
		return nil, fmt.Errorf("%s declares %d bytes, have %d: %w",
			h.MessageType, h.MessageLength, len(buf), pkg.ErrMalformed)
	}
	msg := buf[:h.MessageLength]

	switch h.MessageType {
	case MsgInitialize:
		if err := need(h, initializeMsgSize); err != nil {
			return nil, err
		}
		return &InitializeMsg{
			Header:          h,
			RequestID:       le32(msg, 8),
			MajorVersion:    le32(msg, 12),
			MinorVersion:    le32(msg, 16),
			MaxTransferSize: le32(msg, 20),
		}, nil

	case MsgHalt:
		if err := need(h, haltMsgSize); err != nil {
			return nil, err
		}
		return &HaltMsg{Header: h, RequestID: le32(msg, 8)}, nil

	case MsgQuery, MsgSet:
		if err := need(h, queryMsgSize); err != nil {
			return nil, err
		}
		info, err := infoBuffer(h, msg, le32(msg, 16), le32(msg, 20))
		if err != nil {
			return nil, err
		}
		if h.MessageType == MsgQuery {
			return &QueryMsg{Header: h, RequestID: le32(msg, 8), OID: OID(le32(msg, 12)), Info: info}, nil
		}
		return &SetMsg{Header: h, RequestID: le32(msg, 8), OID: OID(le32(msg, 12)), Info: info}, nil

	case MsgReset:
		if err := need(h, resetMsgSize); err != nil {
			return nil, err
		}
		return &ResetMsg{Header: h, Reserved: le32(msg, 8)}, nil

	case MsgKeepalive:
		if err := need(h, keepaliveMsgSize); err != nil {
			return nil, err
		}
		return &KeepaliveMsg{Header: h, RequestID: le32(msg, 8)}, nil

	default:
		return nil, fmt.Errorf("message %s: %w", h.MessageType, pkg.ErrNotSupported)
	}
}

func need(h Header, size uint32) error {
	if h.MessageLength < size {
		return fmt.Errorf("%s needs %d bytes, declares %d: %w",
			h.MessageType, size, h.MessageLength, pkg.ErrMalformed)
	}
	return nil
}

// infoBuffer returns the information buffer of a QUERY or SET message.
// The offset counts from the RequestID field.
func infoBuffer(h Header, msg []byte, length, offset uint32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	start := uint64(offset) + infoBufferBase
	end := start + uint64(length)
	if end > uint64(len(msg)) {
		return nil, fmt.Errorf("%s information buffer [%d:%d] outside %d-byte message: %w",
			h.MessageType, start, end, len(msg), pkg.ErrMalformed)
	}
	return msg[start:end], nil
}

func le32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off:])
}

func put32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:], v)
}
