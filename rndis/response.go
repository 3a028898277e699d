package rndis

import (
	"fmt"

	"github.com/ardnew/softrndis/pkg"
)

// The builders below fill a response buffer already sized for the message.

func putInitializeCmplt(b []byte, requestID uint32, mtu int) {
	put32(b, 0, uint32(MsgInitializeCmplt))
	put32(b, 4, initializeCmpltSize)
	put32(b, 8, requestID)
	put32(b, 12, uint32(StatusSuccess))
	put32(b, 16, MajorVersion)
	put32(b, 20, MinorVersion)
	put32(b, 24, DeviceFlagConnectionless)
	put32(b, 28, uint32(Medium8023))
	put32(b, 32, 1) // MaxPacketsPerTransfer
	put32(b, 36, uint32(mtu+ethernetHeaderSize+PacketHeaderSize+transferSlack))
	put32(b, 40, 0) // PacketAlignmentFactor
	put32(b, 44, 0) // AFListOffset
	put32(b, 48, 0) // AFListSize
}

// putQueryCmplt writes the QUERY_CMPLT header for an information buffer of
// n bytes that has already been written at b[queryCmpltSize:].
func putQueryCmplt(b []byte, requestID uint32, status Status, n int) {
	offset := uint32(queryCmpltSize - infoBufferBase)
	if status != StatusSuccess {
		n, offset = 0, 0
	}
	put32(b, 0, uint32(MsgQueryCmplt))
	put32(b, 4, uint32(queryCmpltSize+n))
	put32(b, 8, requestID)
	put32(b, 12, uint32(status))
	put32(b, 16, uint32(n))
	put32(b, 20, offset)
}

func putSetCmplt(b []byte, requestID uint32, status Status) {
	put32(b, 0, uint32(MsgSetCmplt))
	put32(b, 4, setCmpltSize)
	put32(b, 8, requestID)
	put32(b, 12, uint32(status))
}

func putResetCmplt(b []byte) {
	put32(b, 0, uint32(MsgResetCmplt))
	put32(b, 4, resetCmpltSize)
	put32(b, 8, uint32(StatusSuccess))
	put32(b, 12, 0) // AddressingReset
}

func putKeepaliveCmplt(b []byte, requestID uint32) {
	put32(b, 0, uint32(MsgKeepaliveCmplt))
	put32(b, 4, keepaliveCmpltSize)
	put32(b, 8, requestID)
	put32(b, 12, uint32(StatusSuccess))
}

func putIndicateStatus(b []byte, status Status) {
	put32(b, 0, uint32(MsgIndicateStatus))
	put32(b, 4, indicateStatusSize)
	put32(b, 8, uint32(status))
	put32(b, 12, 0) // StatusBufferLength
	put32(b, 16, 0) // StatusBufferOffset
}

// Completion is a decoded device-to-host message, as seen by a host or a
// test harness draining the response queue.
type Completion struct {
	Header
	// RequestID is zero for RESET_CMPLT and INDICATE_STATUS, which do not
	// carry one.
	RequestID uint32
	Status    Status
	// Info is the QUERY_CMPLT information buffer.
	Info []byte
	// Init holds the INITIALIZE_CMPLT body.
	Init *InitializeInfo
	// AddressingReset is the RESET_CMPLT flag.
	AddressingReset bool
}

// InitializeInfo is the body of INITIALIZE_CMPLT after the status.
type InitializeInfo struct {
	MajorVersion          uint32
	MinorVersion          uint32
	DeviceFlags           uint32
	Medium                Medium
	MaxPacketsPerTransfer uint32
	MaxTransferSize       uint32
	PacketAlignmentFactor uint32
}

// DecodeCompletion parses a device-to-host control message.
func DecodeCompletion(buf []byte) (*Completion, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if uint64(h.MessageLength) > uint64(len(buf)) {
		return nil, fmt.Errorf("%s declares %d bytes, have %d: %w",
			h.MessageType, h.MessageLength, len(buf), pkg.ErrMalformed)
	}
	msg := buf[:h.MessageLength]
	c := &Completion{Header: h}

	switch h.MessageType {
	case MsgInitializeCmplt:
		if err := need(h, initializeCmpltSize); err != nil {
			return nil, err
		}
		c.RequestID = le32(msg, 8)
		c.Status = Status(le32(msg, 12))
		c.Init = &InitializeInfo{
			MajorVersion:          le32(msg, 16),
			MinorVersion:          le32(msg, 20),
			DeviceFlags:           le32(msg, 24),
			Medium:                Medium(le32(msg, 28)),
			MaxPacketsPerTransfer: le32(msg, 32),
			MaxTransferSize:       le32(msg, 36),
			PacketAlignmentFactor: le32(msg, 40),
		}

	case MsgQueryCmplt:
		if err := need(h, queryCmpltSize); err != nil {
			return nil, err
		}
		c.RequestID = le32(msg, 8)
		c.Status = Status(le32(msg, 12))
		if c.Info, err = infoBuffer(h, msg, le32(msg, 16), le32(msg, 20)); err != nil {
			return nil, err
		}

	case MsgSetCmplt, MsgKeepaliveCmplt:
		if err := need(h, setCmpltSize); err != nil {
			return nil, err
		}
		c.RequestID = le32(msg, 8)
		c.Status = Status(le32(msg, 12))

	case MsgResetCmplt:
		if err := need(h, resetCmpltSize); err != nil {
			return nil, err
		}
		c.Status = Status(le32(msg, 8))
		c.AddressingReset = le32(msg, 12) != 0

	case MsgIndicateStatus:
		if err := need(h, indicateStatusSize); err != nil {
			return nil, err
		}
		c.Status = Status(le32(msg, 8))

	default:
		return nil, fmt.Errorf("%s is not a device message: %w", h.MessageType, pkg.ErrNotSupported)
	}
	return c, nil
}
