package rndis

import (
	"encoding/binary"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softrndis/cdc"
)

func TestQueryValues(t *testing.T) {
	h := newHarness(t)
	h.dev.stats = Statistics{
		TxPackets: 10, TxErrors: 2, TxDropped: 1,
		RxPackets: 20, RxErrors: 3, RxDropped: 4,
		RxFrameErrors: 5,
	}
	require.NoError(t, h.reg.SetVendor(h.id, 0x00abcdef, ""))
	require.NoError(t, h.reg.SetMedium(h.id, Medium8023, 100000))
	h.initialize()

	tests := []struct {
		oid  OID
		want uint32
	}{
		{OIDGenHardwareStatus, uint32(HardwareReady)},
		{OIDGenMediaSupported, uint32(Medium8023)},
		{OIDGenMediaInUse, uint32(Medium8023)},
		{OIDGenMaximumFrameSize, 1500},
		{OIDGenTransmitBlockSize, 1500},
		{OIDGenReceiveBlockSize, 1500},
		{OIDGenLinkSpeed, 0},
		{OIDGenVendorID, 0x00abcdef},
		{OIDGenVendorDriverVersion, DriverVersion},
		{OIDGenCurrentPacketFilter, 0},
		{OIDGenMaximumTotalSize, MaxTotalSize},
		{OIDGenMediaConnectStatus, uint32(MediaDisconnected)},
		{OIDGenPhysicalMedium, PhysicalMedium8023},
		{OIDGenMACOptions, MACOptionReceiveSerialized | MACOptionFullDuplex},
		{OIDGenXmitOK, 7},
		{OIDGenRcvOK, 13},
		{OIDGenXmitError, 2},
		{OIDGenRcvError, 3},
		{OIDGenRcvNoBuffer, 4},
		{OID8023MaximumListSize, 1},
		{OID8023MACOptions, 0},
		{OID8023RcvErrorAlignment, 5},
		{OID8023XmitOneCollision, 0},
		{OID8023XmitMoreCollisions, 0},
	}
	for _, tt := range tests {
		c := h.query(tt.oid)
		require.Equal(t, StatusSuccess, c.Status, tt.oid.String())
		require.Len(t, c.Info, 4, tt.oid.String())
		assert.Equal(t, tt.want, binary.LittleEndian.Uint32(c.Info), tt.oid.String())
	}
}

func TestQueryLinkSpeedWhenConnected(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.reg.SetMedium(h.id, Medium8023, 100000))
	h.initialize()
	require.NoError(t, h.reg.SignalConnect(h.id))
	h.next()

	c := h.query(OIDGenLinkSpeed)
	assert.EqualValues(t, 100000, binary.LittleEndian.Uint32(c.Info))
	c = h.query(OIDGenMediaConnectStatus)
	assert.EqualValues(t, MediaConnected, binary.LittleEndian.Uint32(c.Info))
}

func TestQueryPacketFilterReturnsNDISValue(t *testing.T) {
	h := newHarness(t)
	h.initialize()
	h.set(OIDGenCurrentPacketFilter, u32(PacketTypeDirected|PacketTypeBroadcast))

	c := h.query(OIDGenCurrentPacketFilter)
	assert.Equal(t, PacketTypeDirected|PacketTypeBroadcast, binary.LittleEndian.Uint32(c.Info))
}

func TestQueryVendorDescription(t *testing.T) {
	h := newHarness(t)

	c := h.query(OIDGenVendorDescription)
	assert.Equal(t, []byte("text"), c.Info)

	long := strings.Repeat("x", 3*SupportedListSize)
	require.NoError(t, h.reg.SetVendor(h.id, 1, long))
	c = h.query(OIDGenVendorDescription)
	assert.Equal(t, []byte(long), c.Info)
}

func TestQueryAddress(t *testing.T) {
	h := newHarness(t)

	for _, oid := range []OID{OID8023PermanentAddress, OID8023CurrentAddress} {
		c := h.query(oid)
		assert.Equal(t, StatusSuccess, c.Status)
		assert.Equal(t, []byte(h.dev.addr), c.Info)
	}

	h.dev.addr = net.HardwareAddr{1, 2, 3}
	c := h.query(OID8023PermanentAddress)
	assert.Equal(t, StatusFailure, c.Status)
	assert.Empty(t, c.Info)
}

func TestQueryMulticastList(t *testing.T) {
	h := newHarness(t)

	c := h.query(OID8023MulticastList)
	assert.Equal(t, StatusSuccess, c.Status)
	assert.Empty(t, c.Info)

	addr := []byte{0x01, 0x00, 0x5e, 0x7f, 0xff, 0xfa}
	h.set(OID8023MulticastList, addr)
	c = h.query(OID8023MulticastList)
	assert.Equal(t, addr, c.Info)

	// An empty list clears the flag.
	h.set(OID8023MulticastList, nil)
	assert.False(t, h.snapshot().MulticastSet)
}

func TestQueryStatisticsUnavailable(t *testing.T) {
	h := newHarness(t)
	h.dev.stats = Statistics{TxPackets: 10}
	h.dev.statsOK = false

	c := h.query(OIDGenXmitOK)
	assert.Zero(t, binary.LittleEndian.Uint32(c.Info))
}

func TestStatisticsSaturate(t *testing.T) {
	s := Statistics{TxPackets: 1, TxErrors: 5, RxPackets: 2, RxDropped: 1}
	assert.Zero(t, s.TxOK())
	assert.EqualValues(t, 1, s.RxOK())
}

func TestSupportedOIDs(t *testing.T) {
	oids := SupportedOIDs()
	require.Len(t, oids, 28)
	assert.Equal(t, 112, SupportedListSize)
	assert.Equal(t, OIDGenSupportedList, oids[0])
	assert.NotContains(t, oids, OIDGenMACOptions)

	// Every advertised OID can be queried.
	for _, oid := range oids {
		h, ok := oidTable[oid]
		require.True(t, ok, oid.String())
		assert.NotNil(t, h.query, oid.String())
	}

	oids[0] = 0
	assert.Equal(t, OIDGenSupportedList, SupportedOIDs()[0])
}

func TestOIDString(t *testing.T) {
	assert.Equal(t, "OID_GEN_SUPPORTED_LIST", OIDGenSupportedList.String())
	assert.Equal(t, "OID_802_3_MULTICAST_LIST", OID8023MulticastList.String())
	assert.Equal(t, "0x12345678", OID(0x12345678).String())
}

func TestTranslateFilter(t *testing.T) {
	tests := []struct {
		ndis uint32
		want cdc.PacketFilter
	}{
		{0, 0},
		{PacketTypeDirected, cdc.PacketTypeDirected},
		{PacketTypeMulticast, cdc.PacketTypeMulticast},
		{PacketTypeAllMulticast, cdc.PacketTypeAllMulticast},
		{PacketTypeBroadcast, cdc.PacketTypeBroadcast},
		{PacketTypePromiscuous, cdc.PacketTypePromiscuous},
		{
			PacketTypeDirected | PacketTypeMulticast | PacketTypeAllMulticast | PacketTypeBroadcast,
			cdc.PacketTypeDirected | cdc.PacketTypeMulticast | cdc.PacketTypeAllMulticast | cdc.PacketTypeBroadcast,
		},
		{PacketTypeSourceRouting, cdc.PacketTypePromiscuous},
		{PacketTypeGroup | PacketTypeMACFrame, cdc.PacketTypePromiscuous},
		{PacketTypeDirected | PacketTypeSMT, cdc.PacketTypeDirected},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TranslateFilter(tt.ndis), "ndis 0x%08X", tt.ndis)
	}
}

func TestFilterStoredInSharedStorage(t *testing.T) {
	reg := NewRegistry()
	id, err := reg.Register(func(any) {}, nil)
	require.NoError(t, err)
	require.NoError(t, reg.BindDevice(id, newFakeDevice(), nil))

	require.NoError(t, reg.Dispatch(id, EncodeSet(1, OIDGenCurrentPacketFilter, u32(PacketTypePromiscuous))))
	s, err := reg.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, cdc.PacketTypePromiscuous, s.Filter)
}

func TestOIDAccess(t *testing.T) {
	q, s := OIDGenCurrentPacketFilter.Access()
	assert.True(t, q)
	assert.True(t, s)

	q, s = OIDGenVendorID.Access()
	assert.True(t, q)
	assert.False(t, s)

	q, s = OIDPnPCapabilities.Access()
	assert.False(t, q)
	assert.False(t, s)
}
