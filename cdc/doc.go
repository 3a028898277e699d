// Package cdc provides the USB Communications Device Class (CDC) pieces that
// an RNDIS function depends on.
//
// RNDIS runs over a CDC-style control interface: the host sends protocol
// messages with SEND_ENCAPSULATED_COMMAND, is told a reply is waiting with a
// RESPONSE_AVAILABLE notification on the interrupt endpoint, and fetches the
// reply with GET_ENCAPSULATED_RESPONSE. Bulk data flows on a separate CDC
// Data interface and is gated by the Ethernet packet filter.
//
// # Packet Filter
//
// [PacketFilter] holds the CDC Ethernet packet-filter bits. A [FilterStore]
// is shared between the protocol engine, which writes the filter when the
// host sets it, and the network data path, which reads it for every frame:
//
//	var store cdc.FilterStore
//	store.Store(cdc.PacketTypeDirected | cdc.PacketTypeBroadcast)
//	if store.Load().Has(cdc.PacketTypeBroadcast) {
//	    // accept broadcast frames
//	}
//
// # Control Requests
//
// [Setup] decodes and encodes the 8-byte SETUP packet of a control transfer.
// [EncapsulatedCommand] and [EncapsulatedResponse] build the two
// class-specific interface requests that carry RNDIS messages.
//
// # Descriptors
//
// The package includes the functional descriptors carried by an RNDIS
// control interface:
//
//   - Header Functional Descriptor
//   - Call Management Functional Descriptor
//   - ACM Functional Descriptor
//   - Union Functional Descriptor
package cdc
