package rndis

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/ardnew/softrndis/pkg"
)

// OID is an NDIS object identifier.
type OID uint32

// General OIDs.
const (
	OIDGenSupportedList       OID = 0x00010101
	OIDGenHardwareStatus      OID = 0x00010102
	OIDGenMediaSupported      OID = 0x00010103
	OIDGenMediaInUse          OID = 0x00010104
	OIDGenMaximumLookahead    OID = 0x00010105
	OIDGenMaximumFrameSize    OID = 0x00010106
	OIDGenLinkSpeed           OID = 0x00010107
	OIDGenTransmitBufferSpace OID = 0x00010108
	OIDGenReceiveBufferSpace  OID = 0x00010109
	OIDGenTransmitBlockSize   OID = 0x0001010A
	OIDGenReceiveBlockSize    OID = 0x0001010B
	OIDGenVendorID            OID = 0x0001010C
	OIDGenVendorDescription   OID = 0x0001010D
	OIDGenCurrentPacketFilter OID = 0x0001010E
	OIDGenCurrentLookahead    OID = 0x0001010F
	OIDGenDriverVersion       OID = 0x00010110
	OIDGenMaximumTotalSize    OID = 0x00010111
	OIDGenProtocolOptions     OID = 0x00010112
	OIDGenMACOptions          OID = 0x00010113
	OIDGenMediaConnectStatus  OID = 0x00010114
	OIDGenMaximumSendPackets  OID = 0x00010115
	OIDGenVendorDriverVersion OID = 0x00010116
	OIDGenPhysicalMedium      OID = 0x00010202
	OIDGenXmitOK              OID = 0x00020101
	OIDGenRcvOK               OID = 0x00020102
	OIDGenXmitError           OID = 0x00020103
	OIDGenRcvError            OID = 0x00020104
	OIDGenRcvNoBuffer         OID = 0x00020105
	OIDGenDirectedBytesXmit   OID = 0x00020201
	OIDGenRcvCRCError         OID = 0x0002020D
	OIDGenTransmitQueueLength OID = 0x0002020E
	OIDPnPCapabilities        OID = 0xFD010100
	OIDPnPQueryPower          OID = 0xFD010101
	OIDPnPSetPower            OID = 0xFD010102
	OIDPnPEnableWakeUp        OID = 0xFD010106
	OIDPnPAddWakeUpPattern    OID = 0xFD010103
	OIDPnPRemoveWakeUpPattern OID = 0xFD010104
)

// 802.3 OIDs.
const (
	OID8023PermanentAddress   OID = 0x01010101
	OID8023CurrentAddress     OID = 0x01010102
	OID8023MulticastList      OID = 0x01010103
	OID8023MaximumListSize    OID = 0x01010104
	OID8023MACOptions         OID = 0x01010105
	OID8023RcvErrorAlignment  OID = 0x01020101
	OID8023XmitOneCollision   OID = 0x01020102
	OID8023XmitMoreCollisions OID = 0x01020103
	OID8023XmitDeferred       OID = 0x01020201
	OID8023XmitMaxCollisions  OID = 0x01020202
	OID8023RcvOverrun         OID = 0x01020203
)

// supportedOIDs is the list reported for OID_GEN_SUPPORTED_LIST, in order.
var supportedOIDs = [...]OID{
	OIDGenSupportedList,
	OIDGenHardwareStatus,
	OIDGenMediaSupported,
	OIDGenMediaInUse,
	OIDGenMaximumFrameSize,
	OIDGenLinkSpeed,
	OIDGenTransmitBlockSize,
	OIDGenReceiveBlockSize,
	OIDGenVendorID,
	OIDGenVendorDescription,
	OIDGenVendorDriverVersion,
	OIDGenCurrentPacketFilter,
	OIDGenMaximumTotalSize,
	OIDGenMediaConnectStatus,
	OIDGenPhysicalMedium,

	OIDGenXmitOK,
	OIDGenRcvOK,
	OIDGenXmitError,
	OIDGenRcvError,
	OIDGenRcvNoBuffer,

	OID8023PermanentAddress,
	OID8023CurrentAddress,
	OID8023MulticastList,
	OID8023MACOptions,
	OID8023MaximumListSize,

	OID8023RcvErrorAlignment,
	OID8023XmitOneCollision,
	OID8023XmitMoreCollisions,
}

// SupportedListSize is the encoded size of OID_GEN_SUPPORTED_LIST, the
// largest fixed query reply.
const SupportedListSize = len(supportedOIDs) * 4

// SupportedOIDs returns a copy of the advertised OID list.
func SupportedOIDs() []OID {
	out := make([]OID, len(supportedOIDs))
	copy(out, supportedOIDs[:])
	return out
}

// oidNames names every OID the engine knows, for logs and tooling.
var oidNames = map[OID]string{
	OIDGenSupportedList:       "OID_GEN_SUPPORTED_LIST",
	OIDGenHardwareStatus:      "OID_GEN_HARDWARE_STATUS",
	OIDGenMediaSupported:      "OID_GEN_MEDIA_SUPPORTED",
	OIDGenMediaInUse:          "OID_GEN_MEDIA_IN_USE",
	OIDGenMaximumLookahead:    "OID_GEN_MAXIMUM_LOOKAHEAD",
	OIDGenMaximumFrameSize:    "OID_GEN_MAXIMUM_FRAME_SIZE",
	OIDGenLinkSpeed:           "OID_GEN_LINK_SPEED",
	OIDGenTransmitBufferSpace: "OID_GEN_TRANSMIT_BUFFER_SPACE",
	OIDGenReceiveBufferSpace:  "OID_GEN_RECEIVE_BUFFER_SPACE",
	OIDGenTransmitBlockSize:   "OID_GEN_TRANSMIT_BLOCK_SIZE",
	OIDGenReceiveBlockSize:    "OID_GEN_RECEIVE_BLOCK_SIZE",
	OIDGenVendorID:            "OID_GEN_VENDOR_ID",
	OIDGenVendorDescription:   "OID_GEN_VENDOR_DESCRIPTION",
	OIDGenCurrentPacketFilter: "OID_GEN_CURRENT_PACKET_FILTER",
	OIDGenCurrentLookahead:    "OID_GEN_CURRENT_LOOKAHEAD",
	OIDGenDriverVersion:       "OID_GEN_DRIVER_VERSION",
	OIDGenMaximumTotalSize:    "OID_GEN_MAXIMUM_TOTAL_SIZE",
	OIDGenProtocolOptions:     "OID_GEN_PROTOCOL_OPTIONS",
	OIDGenMACOptions:          "OID_GEN_MAC_OPTIONS",
	OIDGenMediaConnectStatus:  "OID_GEN_MEDIA_CONNECT_STATUS",
	OIDGenMaximumSendPackets:  "OID_GEN_MAXIMUM_SEND_PACKETS",
	OIDGenVendorDriverVersion: "OID_GEN_VENDOR_DRIVER_VERSION",
	OIDGenPhysicalMedium:      "OID_GEN_PHYSICAL_MEDIUM",
	OIDGenXmitOK:              "OID_GEN_XMIT_OK",
	OIDGenRcvOK:               "OID_GEN_RCV_OK",
	OIDGenXmitError:           "OID_GEN_XMIT_ERROR",
	OIDGenRcvError:            "OID_GEN_RCV_ERROR",
	OIDGenRcvNoBuffer:         "OID_GEN_RCV_NO_BUFFER",
	OIDGenDirectedBytesXmit:   "OID_GEN_DIRECTED_BYTES_XMIT",
	OIDGenRcvCRCError:         "OID_GEN_RCV_CRC_ERROR",
	OIDGenTransmitQueueLength: "OID_GEN_TRANSMIT_QUEUE_LENGTH",
	OIDPnPCapabilities:        "OID_PNP_CAPABILITIES",
	OIDPnPQueryPower:          "OID_PNP_QUERY_POWER",
	OIDPnPSetPower:            "OID_PNP_SET_POWER",
	OIDPnPEnableWakeUp:        "OID_PNP_ENABLE_WAKE_UP",
	OIDPnPAddWakeUpPattern:    "OID_PNP_ADD_WAKE_UP_PATTERN",
	OIDPnPRemoveWakeUpPattern: "OID_PNP_REMOVE_WAKE_UP_PATTERN",
	OID8023PermanentAddress:   "OID_802_3_PERMANENT_ADDRESS",
	OID8023CurrentAddress:     "OID_802_3_CURRENT_ADDRESS",
	OID8023MulticastList:      "OID_802_3_MULTICAST_LIST",
	OID8023MaximumListSize:    "OID_802_3_MAXIMUM_LIST_SIZE",
	OID8023MACOptions:         "OID_802_3_MAC_OPTIONS",
	OID8023RcvErrorAlignment:  "OID_802_3_RCV_ERROR_ALIGNMENT",
	OID8023XmitOneCollision:   "OID_802_3_XMIT_ONE_COLLISION",
	OID8023XmitMoreCollisions: "OID_802_3_XMIT_MORE_COLLISIONS",
	OID8023XmitDeferred:       "OID_802_3_XMIT_DEFERRED",
	OID8023XmitMaxCollisions:  "OID_802_3_XMIT_MAX_COLLISIONS",
	OID8023RcvOverrun:         "OID_802_3_RCV_OVERRUN",
}

// String returns the NDIS name of the OID, or its hex value.
func (o OID) String() string {
	if name, ok := oidNames[o]; ok {
		return name
	}
	return fmt.Sprintf("0x%08X", uint32(o))
}

// Access reports whether the engine answers queries and accepts sets of o.
func (o OID) Access() (query, set bool) {
	h, ok := oidTable[o]
	if !ok {
		return false, false
	}
	return h.query != nil, h.set != nil
}

// queryFunc writes the value of an OID into out and returns its length.
// out holds at least [SupportedListSize] bytes.
type queryFunc func(in *instance, out []byte) (int, Status)

// setFunc applies info to an OID.
type setFunc func(in *instance, info []byte) Status

type oidHandler struct {
	query queryFunc
	set   setFunc
}

// oidTable maps every handled OID to its accessors. OIDs outside the table
// are answered with StatusNotSupported.
var oidTable = map[OID]oidHandler{
	OIDGenSupportedList: {query: querySupportedList},
	OIDGenHardwareStatus: {query: func(in *instance, out []byte) (int, Status) {
		return putValue(out, uint32(in.hw))
	}},
	OIDGenMediaSupported:    {query: queryMedium},
	OIDGenMediaInUse:        {query: queryMedium},
	OIDGenMaximumFrameSize:  {query: queryMTU},
	OIDGenTransmitBlockSize: {query: queryMTU},
	OIDGenReceiveBlockSize:  {query: queryMTU},
	OIDGenLinkSpeed: {query: func(in *instance, out []byte) (int, Status) {
		if in.media == MediaDisconnected {
			return putValue(out, 0)
		}
		return putValue(out, in.speed)
	}},
	OIDGenVendorID: {query: func(in *instance, out []byte) (int, Status) {
		return putValue(out, in.vendorID)
	}},
	OIDGenVendorDescription: {query: queryVendorDescription},
	OIDGenVendorDriverVersion: {query: func(in *instance, out []byte) (int, Status) {
		return putValue(out, DriverVersion)
	}},
	OIDGenCurrentPacketFilter: {
		query: func(in *instance, out []byte) (int, Status) {
			return putValue(out, in.savedFilter)
		},
		set: setPacketFilter,
	},
	OIDGenMaximumTotalSize: {query: func(in *instance, out []byte) (int, Status) {
		return putValue(out, MaxTotalSize)
	}},
	OIDGenMediaConnectStatus: {query: func(in *instance, out []byte) (int, Status) {
		return putValue(out, uint32(in.media))
	}},
	OIDGenPhysicalMedium: {query: func(in *instance, out []byte) (int, Status) {
		return putValue(out, PhysicalMedium8023)
	}},
	// Not advertised, but some hosts ask for it anyway.
	OIDGenMACOptions: {query: func(in *instance, out []byte) (int, Status) {
		return putValue(out, MACOptionReceiveSerialized|MACOptionFullDuplex)
	}},

	OIDGenXmitOK:      {query: queryStat(Statistics.TxOK)},
	OIDGenRcvOK:       {query: queryStat(Statistics.RxOK)},
	OIDGenXmitError:   {query: queryStat(func(s Statistics) uint64 { return s.TxErrors })},
	OIDGenRcvError:    {query: queryStat(func(s Statistics) uint64 { return s.RxErrors })},
	OIDGenRcvNoBuffer: {query: queryStat(func(s Statistics) uint64 { return s.RxDropped })},

	OID8023PermanentAddress: {query: queryAddress},
	OID8023CurrentAddress:   {query: queryAddress},
	OID8023MulticastList: {
		query: queryMulticastList,
		set:   setMulticastList,
	},
	OID8023MaximumListSize: {query: func(in *instance, out []byte) (int, Status) {
		return putValue(out, 1)
	}},
	OID8023MACOptions: {query: func(in *instance, out []byte) (int, Status) {
		return putValue(out, 0)
	}},

	OID8023RcvErrorAlignment:  {query: queryStat(func(s Statistics) uint64 { return s.RxFrameErrors })},
	OID8023XmitOneCollision:   {query: queryZero},
	OID8023XmitMoreCollisions: {query: queryZero},
}

// queryOID answers a query for oid into out.
func queryOID(in *instance, oid OID, out []byte) (int, Status) {
	h, ok := oidTable[oid]
	if !ok || h.query == nil {
		pkg.LogWarn(pkg.ComponentOID, "query of unsupported OID", "id", in.id, "oid", oid)
		return 0, StatusNotSupported
	}
	n, status := h.query(in, out)
	if status != StatusSuccess {
		return 0, status
	}
	pkg.LogDebug(pkg.ComponentOID, "query", "id", in.id, "oid", oid, "length", n)
	return n, status
}

// setOID applies info to oid.
func setOID(in *instance, oid OID, info []byte) Status {
	h, ok := oidTable[oid]
	if !ok || h.set == nil {
		pkg.LogWarn(pkg.ComponentOID, "set of unsupported OID",
			"id", in.id, "oid", oid, "length", len(info))
		return StatusNotSupported
	}
	status := h.set(in, info)
	pkg.LogDebug(pkg.ComponentOID, "set", "id", in.id, "oid", oid,
		"length", len(info), "status", status)
	return status
}

// queryBufferSize returns the information buffer space a query reply needs
// in the worst case.
func queryBufferSize(in *instance) int {
	return max(SupportedListSize, len(in.vendorDescr))
}

func putValue(out []byte, v uint32) (int, Status) {
	binary.LittleEndian.PutUint32(out, v)
	return 4, StatusSuccess
}

func queryZero(in *instance, out []byte) (int, Status) {
	return putValue(out, 0)
}

func querySupportedList(in *instance, out []byte) (int, Status) {
	for i, oid := range supportedOIDs {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(oid))
	}
	return SupportedListSize, StatusSuccess
}

func queryMedium(in *instance, out []byte) (int, Status) {
	return putValue(out, uint32(in.medium))
}

func queryMTU(in *instance, out []byte) (int, Status) {
	if in.dev == nil {
		pkg.LogError(pkg.ComponentOID, "MTU query without network device", "id", in.id)
		return 0, StatusNotSupported
	}
	return putValue(out, uint32(in.dev.MTU()))
}

func queryVendorDescription(in *instance, out []byte) (int, Status) {
	if in.vendorDescr == "" {
		return copy(out, "text"), StatusSuccess
	}
	return copy(out, in.vendorDescr), StatusSuccess
}

// queryStat reads one counter; counters read zero when the device cannot
// provide statistics.
func queryStat(field func(Statistics) uint64) queryFunc {
	return func(in *instance, out []byte) (int, Status) {
		var stats Statistics
		if in.dev != nil {
			if s, ok := in.dev.Statistics(); ok {
				stats = s
			}
		}
		return putValue(out, uint32(field(stats)))
	}
}

func queryAddress(in *instance, out []byte) (int, Status) {
	if in.dev == nil {
		pkg.LogError(pkg.ComponentOID, "address query without network device", "id", in.id)
		return 0, StatusNotSupported
	}
	addr := in.dev.PermanentAddress()
	if len(addr) != macAddressSize {
		pkg.LogError(pkg.ComponentOID, "network device address is not 6 bytes",
			"id", in.id, "address", addr)
		return 0, StatusFailure
	}
	return copy(out, addr), StatusSuccess
}

func queryMulticastList(in *instance, out []byte) (int, Status) {
	if !in.multicastSet {
		in.multicast = [macAddressSize]byte{}
		return 0, StatusSuccess
	}
	return copy(out, in.multicast[:]), StatusSuccess
}

func setPacketFilter(in *instance, info []byte) Status {
	if len(info) < 4 {
		pkg.LogWarn(pkg.ComponentOID, "short packet filter", "id", in.id, "length", len(info))
		return StatusInvalidData
	}
	prevSaved := in.savedFilter
	in.savedFilter = binary.LittleEndian.Uint32(info)
	f := TranslateFilter(in.savedFilter)
	if in.filter != nil {
		in.filter.Store(f)
	}
	pkg.LogDebug(pkg.ComponentOID, "packet filter",
		"id", in.id, "was", fmt.Sprintf("0x%08X", prevSaved),
		"ndis", fmt.Sprintf("0x%08X", in.savedFilter), "cdc", f)

	// Setting the filter is what starts and stops packet flow.
	in.gateLocked(f)
	return StatusSuccess
}

func setMulticastList(in *instance, info []byte) Status {
	if len(info) > macAddressSize {
		return StatusInvalidData
	}
	in.multicastSet = len(info) != 0
	if in.multicastSet {
		in.multicast = [macAddressSize]byte{}
		copy(in.multicast[:], info)
	}
	if mf, ok := in.dev.(MulticastFilter); ok {
		var addrs []net.HardwareAddr
		if in.multicastSet {
			addrs = []net.HardwareAddr{in.multicast[:]}
		}
		mf.SetMulticastList(addrs)
	}
	return StatusSuccess
}
