package netdev

import (
	"encoding/binary"
	"errors"
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softrndis/cdc"
	"github.com/ardnew/softrndis/pkg"
	"github.com/ardnew/softrndis/rndis"
)

var (
	ownMAC   = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	otherMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	mdnsMAC  = net.HardwareAddr{0x01, 0x00, 0x5e, 0x00, 0x00, 0xfb}
	ssdpMAC  = net.HardwareAddr{0x01, 0x00, 0x5e, 0x7f, 0xff, 0xfa}
)

func frameTo(t *testing.T, dst net.HardwareAddr) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{},
		&layers.Ethernet{
			SrcMAC:       otherMAC,
			DstMAC:       dst,
			EthernetType: layers.EthernetTypeIPv4,
		},
		gopacket.Payload([]byte("payload")),
	)
	require.NoError(t, err)
	return buf.Bytes()
}

func newLinkedDevice(t *testing.T, filter cdc.PacketFilter, opts ...Option) *Device {
	t.Helper()
	d, err := New(1500, ownMAC, opts...)
	require.NoError(t, err)
	d.Filter().Store(filter)
	d.SetCarrier(true)
	d.SetQueueRunning(true)
	return d
}

func TestNewValidates(t *testing.T) {
	_, err := New(0, ownMAC)
	require.ErrorIs(t, err, pkg.ErrInvalidParameter)
	_, err = New(1500, net.HardwareAddr{1, 2, 3})
	require.ErrorIs(t, err, pkg.ErrInvalidParameter)

	d, err := New(1500, ownMAC)
	require.NoError(t, err)
	assert.True(t, d.IsRunning())
	assert.False(t, d.Carrier())
	assert.False(t, d.QueueRunning())
	assert.Equal(t, ownMAC, d.PermanentAddress())

	// The returned address is a copy.
	d.PermanentAddress()[0] = 0xff
	assert.Equal(t, ownMAC, d.PermanentAddress())
}

func TestReceiveFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter cdc.PacketFilter
		dst    net.HardwareAddr
		want   bool
	}{
		{"directed to us", cdc.PacketTypeDirected, ownMAC, true},
		{"directed elsewhere", cdc.PacketTypeDirected, otherMAC, false},
		{"broadcast accepted", cdc.PacketTypeBroadcast, broadcast, true},
		{"broadcast rejected", cdc.PacketTypeDirected, broadcast, false},
		{"multicast subscribed", cdc.PacketTypeMulticast, mdnsMAC, true},
		{"multicast unsubscribed", cdc.PacketTypeMulticast, ssdpMAC, false},
		{"all multicast", cdc.PacketTypeAllMulticast, ssdpMAC, true},
		{"promiscuous", cdc.PacketTypePromiscuous, otherMAC, true},
		{"no filter", 0, ownMAC, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newLinkedDevice(t, tt.filter)
			d.SetMulticastList([]net.HardwareAddr{mdnsMAC})

			frame := frameTo(t, tt.dst)
			ok, err := d.Receive(frame)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)

			if tt.want {
				assert.Equal(t, frame, <-d.Frames())
				assert.Zero(t, d.Filtered())
			} else {
				assert.EqualValues(t, 1, d.Filtered())
			}
		})
	}
}

func TestReceiveDropsWhileLinkDown(t *testing.T) {
	d := newLinkedDevice(t, cdc.PacketTypePromiscuous)
	d.SetCarrier(false)

	ok, err := d.Receive(frameTo(t, ownMAC))
	require.NoError(t, err)
	assert.False(t, ok)

	stats, _ := d.Statistics()
	assert.EqualValues(t, 1, stats.RxPackets)
	assert.EqualValues(t, 1, stats.RxDropped)
	assert.Zero(t, stats.RxOK())
}

func TestReceiveBacklogFull(t *testing.T) {
	d := newLinkedDevice(t, cdc.PacketTypePromiscuous, WithBacklog(2))

	for i := 0; i < 3; i++ {
		_, err := d.Receive(frameTo(t, ownMAC))
		require.NoError(t, err)
	}
	assert.Len(t, d.Frames(), 2)
	stats, _ := d.Statistics()
	assert.EqualValues(t, 3, stats.RxPackets)
	assert.EqualValues(t, 1, stats.RxDropped)
	assert.EqualValues(t, 2, stats.RxOK())
}

func TestReceiveBadFrames(t *testing.T) {
	d := newLinkedDevice(t, cdc.PacketTypePromiscuous)

	_, err := d.Receive([]byte{1, 2, 3})
	require.ErrorIs(t, err, pkg.ErrMalformed)

	_, err = d.Receive(make([]byte, 1500+14+1))
	require.ErrorIs(t, err, pkg.ErrOverflow)

	stats, _ := d.Statistics()
	assert.EqualValues(t, 2, stats.RxErrors)
	assert.EqualValues(t, 1, stats.RxFrameErrors)
}

func TestTransmit(t *testing.T) {
	var sent [][]byte
	failNext := false
	d := newLinkedDevice(t, cdc.PacketTypeDirected, WithOutput(func(frame []byte) error {
		if failNext {
			return errors.New("wire cut")
		}
		sent = append(sent, frame)
		return nil
	}))

	frame := frameTo(t, otherMAC)
	require.NoError(t, d.Transmit(frame))
	require.Len(t, sent, 1)

	require.ErrorIs(t, d.Transmit([]byte{1}), pkg.ErrInvalidData)

	failNext = true
	require.Error(t, d.Transmit(frame))

	d.SetQueueRunning(false)
	require.ErrorIs(t, d.Transmit(frame), pkg.ErrNotSupported)

	stats, _ := d.Statistics()
	assert.EqualValues(t, 4, stats.TxPackets)
	assert.EqualValues(t, 2, stats.TxErrors)
	assert.EqualValues(t, 1, stats.TxDropped)
	assert.EqualValues(t, 1, stats.TxOK())
}

func TestDownStopsQueue(t *testing.T) {
	d := newLinkedDevice(t, cdc.PacketTypeDirected)
	d.Down()
	assert.False(t, d.IsRunning())
	assert.False(t, d.QueueRunning())

	d.SetQueueRunning(true)
	assert.False(t, d.QueueRunning())

	d.Up()
	d.SetQueueRunning(true)
	assert.True(t, d.QueueRunning())
}

// The host's packet filter reaches the device through the shared store.
func TestHostFilterGatesDevice(t *testing.T) {
	d, err := New(1500, ownMAC)
	require.NoError(t, err)

	reg := rndis.NewRegistry()
	id, err := reg.Register(func(any) {}, nil)
	require.NoError(t, err)
	require.NoError(t, reg.BindDevice(id, d, d.Filter()))

	require.NoError(t, reg.Dispatch(id, rndis.EncodeInitialize(1, 0x4000)))
	filter := binary.LittleEndian.AppendUint32(nil, rndis.PacketTypeDirected)
	require.NoError(t, reg.Dispatch(id, rndis.EncodeSet(2, rndis.OIDGenCurrentPacketFilter, filter)))

	assert.True(t, d.Carrier())
	assert.True(t, d.QueueRunning())
	ok, err := d.Receive(frameTo(t, ownMAC))
	require.NoError(t, err)
	assert.True(t, ok)

	off := binary.LittleEndian.AppendUint32(nil, 0)
	require.NoError(t, reg.Dispatch(id, rndis.EncodeSet(3, rndis.OIDGenCurrentPacketFilter, off)))
	assert.False(t, d.Carrier())
	assert.False(t, d.QueueRunning())

	// Statistics flow back to the host.
	require.NoError(t, reg.Dispatch(id, rndis.EncodeQuery(4, rndis.OIDGenRcvOK, nil)))
	reg.Drain(id) // earlier completions
	require.NoError(t, reg.Dispatch(id, rndis.EncodeQuery(5, rndis.OIDGenRcvOK, nil)))
	resp, ok := reg.NextResponse(id)
	require.True(t, ok)
	c, err := rndis.DecodeCompletion(resp.Bytes())
	require.NoError(t, err)
	assert.EqualValues(t, 1, binary.LittleEndian.Uint32(c.Info))
}

// The host's multicast list selects which groups pass the multicast class.
func TestHostMulticastListReachesDevice(t *testing.T) {
	d, err := New(1500, ownMAC)
	require.NoError(t, err)

	reg := rndis.NewRegistry()
	id, err := reg.Register(func(any) {}, nil)
	require.NoError(t, err)
	require.NoError(t, reg.BindDevice(id, d, d.Filter()))

	require.NoError(t, reg.Dispatch(id, rndis.EncodeInitialize(1, 0x4000)))
	filter := binary.LittleEndian.AppendUint32(nil, rndis.PacketTypeMulticast)
	require.NoError(t, reg.Dispatch(id, rndis.EncodeSet(2, rndis.OIDGenCurrentPacketFilter, filter)))

	ok, err := d.Receive(frameTo(t, mdnsMAC))
	require.NoError(t, err)
	assert.False(t, ok, "no group subscribed yet")

	require.NoError(t, reg.Dispatch(id, rndis.EncodeSet(3, rndis.OID8023MulticastList, mdnsMAC)))
	ok, err = d.Receive(frameTo(t, mdnsMAC))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = d.Receive(frameTo(t, ssdpMAC))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, reg.Dispatch(id, rndis.EncodeSet(4, rndis.OID8023MulticastList, nil)))
	ok, err = d.Receive(frameTo(t, mdnsMAC))
	require.NoError(t, err)
	assert.False(t, ok)
}
