package cdc

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/softrndis/pkg"
)

// bmRequestType fields.
const (
	RequestDirectionMask      = 0x80
	RequestDirectionOut       = 0x00 // host to device
	RequestDirectionIn        = 0x80 // device to host
	RequestTypeMask           = 0x60
	RequestTypeClass          = 0x20
	RequestRecipientMask      = 0x1F
	RequestRecipientInterface = 0x01
)

// SetupSize is the size of a control SETUP packet.
const SetupSize = 8

// Setup is a control SETUP packet addressed to a CDC interface.
type Setup struct {
	RequestType uint8  // bmRequestType
	Request     uint8  // bRequest
	Value       uint16 // wValue
	Index       uint16 // wIndex: interface number
	Length      uint16 // wLength: data stage length
}

// EncapsulatedCommand returns the SEND_ENCAPSULATED_COMMAND setup for a
// length-byte command to interface iface.
func EncapsulatedCommand(iface, length uint16) Setup {
	return Setup{
		RequestType: RequestDirectionOut | RequestTypeClass | RequestRecipientInterface,
		Request:     RequestSendEncapsulatedCommand,
		Index:       iface,
		Length:      length,
	}
}

// EncapsulatedResponse returns the GET_ENCAPSULATED_RESPONSE setup reading
// up to length bytes from interface iface.
func EncapsulatedResponse(iface, length uint16) Setup {
	return Setup{
		RequestType: RequestDirectionIn | RequestTypeClass | RequestRecipientInterface,
		Request:     RequestGetEncapsulatedResponse,
		Index:       iface,
		Length:      length,
	}
}

// ParseSetup decodes a SETUP packet from data into out.
func ParseSetup(data []byte, out *Setup) error {
	if len(data) < SetupSize {
		return fmt.Errorf("setup packet: %d bytes: %w", len(data), pkg.ErrMalformed)
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = binary.LittleEndian.Uint16(data[2:4])
	out.Index = binary.LittleEndian.Uint16(data[4:6])
	out.Length = binary.LittleEndian.Uint16(data[6:8])
	return nil
}

// MarshalTo writes the SETUP packet to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (s *Setup) MarshalTo(buf []byte) int {
	if len(buf) < SetupSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	binary.LittleEndian.PutUint16(buf[2:4], s.Value)
	binary.LittleEndian.PutUint16(buf[4:6], s.Index)
	binary.LittleEndian.PutUint16(buf[6:8], s.Length)
	return SetupSize
}

// IsDeviceToHost reports whether the data stage flows to the host.
func (s *Setup) IsDeviceToHost() bool {
	return s.RequestType&RequestDirectionMask == RequestDirectionIn
}

// IsClassInterface reports whether the request is a class request to an
// interface.
func (s *Setup) IsClassInterface() bool {
	return s.RequestType&RequestTypeMask == RequestTypeClass &&
		s.RequestType&RequestRecipientMask == RequestRecipientInterface
}
