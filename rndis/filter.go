package rndis

import "github.com/ardnew/softrndis/cdc"

// NDIS packet filter bits (OID_GEN_CURRENT_PACKET_FILTER).
const (
	PacketTypeDirected      uint32 = 0x00000001
	PacketTypeMulticast     uint32 = 0x00000002
	PacketTypeAllMulticast  uint32 = 0x00000004
	PacketTypeBroadcast     uint32 = 0x00000008
	PacketTypeSourceRouting uint32 = 0x00000010
	PacketTypePromiscuous   uint32 = 0x00000020
	PacketTypeSMT           uint32 = 0x00000040
	PacketTypeAllLocal      uint32 = 0x00000080
	PacketTypeGroup         uint32 = 0x00001000
	PacketTypeAllFunctional uint32 = 0x00002000
	PacketTypeFunctional    uint32 = 0x00004000
	PacketTypeMACFrame      uint32 = 0x00008000
)

// filterClasses pairs each NDIS packet class with its CDC filter bit.
var filterClasses = [...]struct {
	ndis uint32
	cdc  cdc.PacketFilter
}{
	{PacketTypeDirected, cdc.PacketTypeDirected},
	{PacketTypeMulticast, cdc.PacketTypeMulticast},
	{PacketTypeAllMulticast, cdc.PacketTypeAllMulticast},
	{PacketTypePromiscuous, cdc.PacketTypePromiscuous},
	{PacketTypeBroadcast, cdc.PacketTypeBroadcast},
}

// TranslateFilter converts an NDIS packet filter into CDC filter bits.
// A nonzero filter made only of classes CDC cannot express becomes
// promiscuous, so a request to receive something never closes the data path.
func TranslateFilter(ndis uint32) cdc.PacketFilter {
	var f cdc.PacketFilter
	for _, c := range filterClasses {
		if ndis&c.ndis != 0 {
			f |= c.cdc
		}
	}
	if ndis != 0 && f == 0 {
		f = cdc.PacketTypePromiscuous
	}
	return f
}
