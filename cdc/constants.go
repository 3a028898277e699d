package cdc

import (
	"strings"
	"sync/atomic"
)

// CDC Class-specific descriptor types.
const (
	DescriptorTypeCSInterface = 0x24 // Class-specific Interface
	DescriptorTypeCSEndpoint  = 0x25 // Class-specific Endpoint
)

// CDC Functional Descriptor subtypes used by an RNDIS control interface.
const (
	SubtypeHeader         = 0x00 // Header Functional Descriptor
	SubtypeCallManagement = 0x01 // Call Management Functional Descriptor
	SubtypeACM            = 0x02 // Abstract Control Model Functional Descriptor
	SubtypeUnion          = 0x06 // Union Functional Descriptor
	SubtypeEthernet       = 0x0F // Ethernet Networking Functional Descriptor
)

// Interface class codes.
const (
	ClassCDC                = 0x02 // Communications Device Class
	ClassCDCData            = 0x0A // CDC Data Class
	ClassWirelessController = 0xE0 // Wireless Controller
	ClassMisc               = 0xEF // Miscellaneous (device class for IAD composites)
)

// Interface subclass codes.
const (
	SubclassNone = 0x00 // No subclass
	SubclassACM  = 0x02 // Abstract Control Model
	SubclassRF   = 0x01 // Radio Frequency (Wireless Controller class)
)

// Interface protocol codes.
const (
	ProtocolNone   = 0x00 // No protocol
	ProtocolRNDIS  = 0x03 // Remote NDIS (Wireless Controller class)
	ProtocolVendor = 0xFF // Vendor-specific (CDC class RNDIS)
)

// CDC Request codes.
const (
	RequestSendEncapsulatedCommand = 0x00
	RequestGetEncapsulatedResponse = 0x01
	RequestSetEthernetPacketFilter = 0x43
)

// CDC Notification codes.
const (
	NotificationNetworkConnection = 0x00
	NotificationResponseAvailable = 0x01
)

// NotificationRequestType is bmRequestType for class notifications sent to
// the host on the interrupt endpoint (device-to-host, class, interface).
const NotificationRequestType = 0xA1

// NotificationSize is the size of a notification without payload.
const NotificationSize = 8

// Notification is a CDC notification header.
type Notification struct {
	Code      uint8  // bNotification
	Value     uint16 // wValue
	Interface uint16 // wIndex
	Length    uint16 // wLength of trailing data
}

// ResponseAvailable returns the RESPONSE_AVAILABLE notification for the
// control interface iface.
func ResponseAvailable(iface uint16) Notification {
	return Notification{Code: NotificationResponseAvailable, Interface: iface}
}

// MarshalTo writes the notification header to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (n *Notification) MarshalTo(buf []byte) int {
	if len(buf) < NotificationSize {
		return 0
	}
	buf[0] = NotificationRequestType
	buf[1] = n.Code
	buf[2] = byte(n.Value)
	buf[3] = byte(n.Value >> 8)
	buf[4] = byte(n.Interface)
	buf[5] = byte(n.Interface >> 8)
	buf[6] = byte(n.Length)
	buf[7] = byte(n.Length >> 8)
	return NotificationSize
}

// ParseNotification parses a notification header from data.
// Returns false if data is too short or is not a class notification.
func ParseNotification(data []byte, out *Notification) bool {
	if len(data) < NotificationSize || data[0] != NotificationRequestType {
		return false
	}
	out.Code = data[1]
	out.Value = uint16(data[2]) | uint16(data[3])<<8
	out.Interface = uint16(data[4]) | uint16(data[5])<<8
	out.Length = uint16(data[6]) | uint16(data[7])<<8
	return true
}

// PacketFilter is the CDC Ethernet packet filter bitmap
// (SET_ETHERNET_PACKET_FILTER wValue).
type PacketFilter uint16

// Packet filter bits.
const (
	PacketTypePromiscuous  PacketFilter = 1 << 0
	PacketTypeAllMulticast PacketFilter = 1 << 1
	PacketTypeDirected     PacketFilter = 1 << 2
	PacketTypeBroadcast    PacketFilter = 1 << 3
	PacketTypeMulticast    PacketFilter = 1 << 4
)

// Has reports whether every bit of t is set in f.
func (f PacketFilter) Has(t PacketFilter) bool {
	return t != 0 && f&t == t
}

// String returns the set filter classes joined by "|", or "none".
func (f PacketFilter) String() string {
	if f == 0 {
		return "none"
	}
	names := []struct {
		bit  PacketFilter
		name string
	}{
		{PacketTypeDirected, "directed"},
		{PacketTypeMulticast, "multicast"},
		{PacketTypeAllMulticast, "all-multicast"},
		{PacketTypeBroadcast, "broadcast"},
		{PacketTypePromiscuous, "promiscuous"},
	}
	var parts []string
	for _, n := range names {
		if f&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "|")
}

// FilterStore is packet-filter storage shared between the control path that
// writes it and the data path that reads it. The zero value holds an empty
// filter and is ready to use.
type FilterStore struct {
	v atomic.Uint32
}

// Load returns the current filter.
func (s *FilterStore) Load() PacketFilter {
	return PacketFilter(s.v.Load())
}

// Store replaces the current filter.
func (s *FilterStore) Store(f PacketFilter) {
	s.v.Store(uint32(f))
}

// HeaderDescriptor is the CDC Header Functional Descriptor.
type HeaderDescriptor struct {
	CDCVersion uint16 // CDC specification release number (0x0110 for 1.10)
}

// HeaderDescriptorSize is the size of the Header Functional Descriptor.
const HeaderDescriptorSize = 5

// MarshalTo writes the descriptor to buf.
func (d *HeaderDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < HeaderDescriptorSize {
		return 0
	}
	buf[0] = HeaderDescriptorSize
	buf[1] = DescriptorTypeCSInterface
	buf[2] = SubtypeHeader
	buf[3] = byte(d.CDCVersion)
	buf[4] = byte(d.CDCVersion >> 8)
	return HeaderDescriptorSize
}

// CallManagementDescriptor is the Call Management Functional Descriptor.
type CallManagementDescriptor struct {
	Capabilities  uint8 // Call management capabilities
	DataInterface uint8 // Interface number of the Data Class interface
}

// CallManagementDescriptorSize is the size of the Call Management Descriptor.
const CallManagementDescriptorSize = 5

// MarshalTo writes the descriptor to buf.
func (d *CallManagementDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < CallManagementDescriptorSize {
		return 0
	}
	buf[0] = CallManagementDescriptorSize
	buf[1] = DescriptorTypeCSInterface
	buf[2] = SubtypeCallManagement
	buf[3] = d.Capabilities
	buf[4] = d.DataInterface
	return CallManagementDescriptorSize
}

// ACMDescriptor is the Abstract Control Management Functional Descriptor.
// RNDIS advertises no ACM capabilities.
type ACMDescriptor struct {
	Capabilities uint8
}

// ACMDescriptorSize is the size of the ACM Functional Descriptor.
const ACMDescriptorSize = 4

// MarshalTo writes the descriptor to buf.
func (d *ACMDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < ACMDescriptorSize {
		return 0
	}
	buf[0] = ACMDescriptorSize
	buf[1] = DescriptorTypeCSInterface
	buf[2] = SubtypeACM
	buf[3] = d.Capabilities
	return ACMDescriptorSize
}

// UnionDescriptor is the Union Functional Descriptor.
type UnionDescriptor struct {
	MasterInterface uint8 // Control interface number
	SlaveInterface0 uint8 // Data interface number
}

// UnionDescriptorSize is the size of the Union Descriptor with one subordinate.
const UnionDescriptorSize = 5

// MarshalTo writes the descriptor to buf.
func (d *UnionDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < UnionDescriptorSize {
		return 0
	}
	buf[0] = UnionDescriptorSize
	buf[1] = DescriptorTypeCSInterface
	buf[2] = SubtypeUnion
	buf[3] = d.MasterInterface
	buf[4] = d.SlaveInterface0
	return UnionDescriptorSize
}
