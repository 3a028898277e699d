package rndis

import (
	"fmt"

	"github.com/ardnew/softrndis/pkg"
)

// MessageType identifies an RNDIS message.
type MessageType uint32

// Message types.
const (
	MsgPacket          MessageType = 0x00000001
	MsgInitialize      MessageType = 0x00000002
	MsgHalt            MessageType = 0x00000003
	MsgQuery           MessageType = 0x00000004
	MsgSet             MessageType = 0x00000005
	MsgReset           MessageType = 0x00000006
	MsgIndicateStatus  MessageType = 0x00000007
	MsgKeepalive       MessageType = 0x00000008
	MsgInitializeCmplt MessageType = 0x80000002
	MsgQueryCmplt      MessageType = 0x80000004
	MsgSetCmplt        MessageType = 0x80000005
	MsgResetCmplt      MessageType = 0x80000006
	MsgKeepaliveCmplt  MessageType = 0x80000008
)

// String returns the protocol name of the message type.
func (t MessageType) String() string {
	switch t {
	case MsgPacket:
		return "PACKET"
	case MsgInitialize:
		return "INITIALIZE"
	case MsgHalt:
		return "HALT"
	case MsgQuery:
		return "QUERY"
	case MsgSet:
		return "SET"
	case MsgReset:
		return "RESET"
	case MsgIndicateStatus:
		return "INDICATE_STATUS"
	case MsgKeepalive:
		return "KEEPALIVE"
	case MsgInitializeCmplt:
		return "INITIALIZE_CMPLT"
	case MsgQueryCmplt:
		return "QUERY_CMPLT"
	case MsgSetCmplt:
		return "SET_CMPLT"
	case MsgResetCmplt:
		return "RESET_CMPLT"
	case MsgKeepaliveCmplt:
		return "KEEPALIVE_CMPLT"
	default:
		return fmt.Sprintf("0x%08X", uint32(t))
	}
}

// Status is an NDIS status code carried in completion and indication
// messages.
type Status uint32

// Status codes.
const (
	StatusSuccess         Status = 0x00000000
	StatusPending         Status = 0x00000103
	StatusFailure         Status = 0xC0000001
	StatusResources       Status = 0xC000009A
	StatusNotSupported    Status = 0xC00000BB
	StatusInvalidData     Status = 0xC0010015
	StatusBufferTooShort  Status = 0xC0010016
	StatusMediaConnect    Status = 0x4001000B
	StatusMediaDisconnect Status = 0x4001000C
)

// String returns a readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPending:
		return "pending"
	case StatusFailure:
		return "failure"
	case StatusResources:
		return "resources"
	case StatusNotSupported:
		return "not supported"
	case StatusInvalidData:
		return "invalid data"
	case StatusBufferTooShort:
		return "buffer too short"
	case StatusMediaConnect:
		return "media connect"
	case StatusMediaDisconnect:
		return "media disconnect"
	default:
		return fmt.Sprintf("0x%08X", uint32(s))
	}
}

// Err returns the error corresponding to a completion status, or nil for
// success and for the informational indication codes.
func (s Status) Err() error {
	switch s {
	case StatusSuccess, StatusPending, StatusMediaConnect, StatusMediaDisconnect:
		return nil
	case StatusNotSupported:
		return pkg.ErrNotSupported
	case StatusInvalidData, StatusBufferTooShort:
		return pkg.ErrInvalidData
	case StatusResources:
		return pkg.ErrNoMemory
	default:
		return fmt.Errorf("status %s: %w", s, pkg.ErrInvalidRequest)
	}
}

// Protocol version reported in INITIALIZE_CMPLT.
const (
	MajorVersion = 1
	MinorVersion = 0
)

// Device flags for INITIALIZE_CMPLT.
const DeviceFlagConnectionless = 0x00000001

// Medium is an NDIS medium type.
type Medium uint32

// Media types.
const (
	Medium8023 Medium = 0x00000000
)

// PhysicalMedium8023 is NdisPhysicalMedium802_3.
const PhysicalMedium8023 = 14

// MAC option bits for OID_GEN_MAC_OPTIONS.
const (
	MACOptionReceiveSerialized = 0x00000002
	MACOptionFullDuplex        = 0x00000010
)

// DriverVersion is reported by OID_GEN_VENDOR_DRIVER_VERSION.
const DriverVersion = 1

// MaxTotalSize is reported by OID_GEN_MAXIMUM_TOTAL_SIZE.
const MaxTotalSize = 1558

// Fixed message sizes in bytes.
const (
	HeaderSize          = 8
	initializeMsgSize   = 24
	haltMsgSize         = 12
	queryMsgSize        = 28
	setMsgSize          = 28
	resetMsgSize        = 12
	keepaliveMsgSize    = 12
	initializeCmpltSize = 52
	queryCmpltSize      = 24
	setCmpltSize        = 16
	resetCmpltSize      = 16
	keepaliveCmpltSize  = 16
	indicateStatusSize  = 20
	PacketHeaderSize    = 44
)

// infoBufferBase is the offset that InformationBufferOffset and DataOffset
// fields are relative to: they count from the RequestID field, which
// follows the 8-byte header.
const infoBufferBase = 8

// packetDataOffset is the DataOffset written into outbound PACKET_MSG
// headers.
const packetDataOffset = PacketHeaderSize - infoBufferBase

// ethernetHeaderSize is the size of an Ethernet II header.
const ethernetHeaderSize = 14

// transferSlack is extra space added to MaxTransferSize beyond one framed
// Ethernet packet.
const transferSlack = 22

// macAddressSize is the length of an 802.3 address.
const macAddressSize = 6
