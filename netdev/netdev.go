package netdev

import (
	"bytes"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/ardnew/softrndis/cdc"
	"github.com/ardnew/softrndis/pkg"
	"github.com/ardnew/softrndis/rndis"
)

// DefaultBacklog is the number of accepted frames buffered for the host.
const DefaultBacklog = 64

const ethernetHeaderSize = 14

var broadcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Device is an in-memory Ethernet interface. It is safe for concurrent use.
type Device struct {
	mtu    int
	addr   net.HardwareAddr
	filter *cdc.FilterStore
	output func(frame []byte) error

	up           atomic.Bool
	carrier      atomic.Bool
	queueRunning atomic.Bool

	mutex     sync.RWMutex
	multicast []net.HardwareAddr

	frames chan []byte

	txPackets     atomic.Uint64
	txErrors      atomic.Uint64
	txDropped     atomic.Uint64
	rxPackets     atomic.Uint64
	rxErrors      atomic.Uint64
	rxDropped     atomic.Uint64
	rxFrameErrors atomic.Uint64
	filtered      atomic.Uint64
}

var (
	_ rndis.NetDevice       = (*Device)(nil)
	_ rndis.MulticastFilter = (*Device)(nil)
)

// Option configures a [Device].
type Option func(*Device)

// WithFilter shares filter with the device instead of private storage.
func WithFilter(filter *cdc.FilterStore) Option {
	return func(d *Device) {
		if filter != nil {
			d.filter = filter
		}
	}
}

// WithBacklog sets how many accepted frames wait for the host before
// further frames are dropped.
func WithBacklog(n int) Option {
	return func(d *Device) {
		if n > 0 {
			d.frames = make(chan []byte, n)
		}
	}
}

// WithOutput sets where [Device.Transmit] sends frames from the host.
func WithOutput(fn func(frame []byte) error) Option {
	return func(d *Device) {
		d.output = fn
	}
}

// New creates an interface that is administratively up, with carrier off
// and the transmit queue stopped.
func New(mtu int, mac net.HardwareAddr, opts ...Option) (*Device, error) {
	if mtu <= 0 {
		return nil, fmt.Errorf("netdev: mtu %d: %w", mtu, pkg.ErrInvalidParameter)
	}
	if len(mac) != 6 {
		return nil, fmt.Errorf("netdev: address %q: %w", mac, pkg.ErrInvalidParameter)
	}
	d := &Device{
		mtu:    mtu,
		addr:   append(net.HardwareAddr(nil), mac...),
		filter: new(cdc.FilterStore),
		frames: make(chan []byte, DefaultBacklog),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.up.Store(true)
	return d, nil
}

// MTU implements [rndis.NetDevice].
func (d *Device) MTU() int { return d.mtu }

// Statistics implements [rndis.NetDevice]. The counters are always
// available.
func (d *Device) Statistics() (rndis.Statistics, bool) {
	return rndis.Statistics{
		TxPackets:     d.txPackets.Load(),
		TxErrors:      d.txErrors.Load(),
		TxDropped:     d.txDropped.Load(),
		RxPackets:     d.rxPackets.Load(),
		RxErrors:      d.rxErrors.Load(),
		RxDropped:     d.rxDropped.Load(),
		RxFrameErrors: d.rxFrameErrors.Load(),
	}, true
}

// Filtered returns how many frames the packet filter rejected.
func (d *Device) Filtered() uint64 { return d.filtered.Load() }

// PermanentAddress implements [rndis.NetDevice].
func (d *Device) PermanentAddress() net.HardwareAddr {
	return append(net.HardwareAddr(nil), d.addr...)
}

// SetCarrier implements [rndis.NetDevice].
func (d *Device) SetCarrier(on bool) {
	if d.carrier.Swap(on) != on {
		pkg.LogDebug(pkg.ComponentNetDev, "carrier", "address", d.addr, "on", on)
	}
}

// Carrier reports whether the link carrier is up.
func (d *Device) Carrier() bool { return d.carrier.Load() }

// SetQueueRunning implements [rndis.NetDevice]. The queue cannot run while
// the interface is down.
func (d *Device) SetQueueRunning(running bool) {
	if running && !d.up.Load() {
		return
	}
	if d.queueRunning.Swap(running) != running {
		pkg.LogDebug(pkg.ComponentNetDev, "transmit queue", "address", d.addr, "running", running)
	}
}

// QueueRunning reports whether the transmit queue is running.
func (d *Device) QueueRunning() bool { return d.queueRunning.Load() }

// IsRunning implements [rndis.NetDevice].
func (d *Device) IsRunning() bool { return d.up.Load() }

// Up brings the interface administratively up.
func (d *Device) Up() { d.up.Store(true) }

// Down brings the interface administratively down and stops its queue.
func (d *Device) Down() {
	d.up.Store(false)
	d.queueRunning.Store(false)
}

// Filter returns the packet filter storage the device classifies against.
// Pass it to [rndis.Registry.BindDevice] so host filter changes apply here.
func (d *Device) Filter() *cdc.FilterStore { return d.filter }

// SetMulticastList replaces the multicast addresses accepted under the
// multicast filter class.
func (d *Device) SetMulticastList(addrs []net.HardwareAddr) {
	list := make([]net.HardwareAddr, 0, len(addrs))
	for _, a := range addrs {
		list = append(list, append(net.HardwareAddr(nil), a...))
	}
	d.mutex.Lock()
	d.multicast = list
	d.mutex.Unlock()
}

// Frames returns the frames accepted for the host, in arrival order.
func (d *Device) Frames() <-chan []byte { return d.frames }

// Receive offers a frame from the network to the host. It reports whether
// the frame was queued on [Device.Frames]. Frames the packet filter rejects
// are not counted as received. An undecodable or oversized frame returns
// an error.
func (d *Device) Receive(frame []byte) (bool, error) {
	var eth layers.Ethernet
	if err := eth.DecodeFromBytes(frame, gopacket.NilDecodeFeedback); err != nil {
		d.rxPackets.Add(1)
		d.rxErrors.Add(1)
		d.rxFrameErrors.Add(1)
		return false, fmt.Errorf("netdev: decode %d-byte frame: %v: %w", len(frame), err, pkg.ErrMalformed)
	}
	if len(frame) > d.mtu+ethernetHeaderSize {
		d.rxPackets.Add(1)
		d.rxErrors.Add(1)
		return false, fmt.Errorf("netdev: %d-byte frame exceeds mtu %d: %w", len(frame), d.mtu, pkg.ErrOverflow)
	}

	if !d.accept(d.filter.Load(), eth.DstMAC) {
		d.filtered.Add(1)
		return false, nil
	}

	d.rxPackets.Add(1)
	if !d.carrier.Load() || !d.queueRunning.Load() {
		d.rxDropped.Add(1)
		return false, nil
	}
	select {
	case d.frames <- append([]byte(nil), frame...):
		return true, nil
	default:
		d.rxDropped.Add(1)
		pkg.LogDebug(pkg.ComponentNetDev, "backlog full", "address", d.addr, "dst", eth.DstMAC)
		return false, nil
	}
}

// accept applies the CDC packet filter to a destination address.
func (d *Device) accept(f cdc.PacketFilter, dst net.HardwareAddr) bool {
	switch {
	case f.Has(cdc.PacketTypePromiscuous):
		return true
	case bytes.Equal(dst, broadcast):
		return f.Has(cdc.PacketTypeBroadcast)
	case len(dst) > 0 && dst[0]&0x01 != 0:
		if f.Has(cdc.PacketTypeAllMulticast) {
			return true
		}
		return f.Has(cdc.PacketTypeMulticast) && d.subscribed(dst)
	default:
		return f.Has(cdc.PacketTypeDirected) && bytes.Equal(dst, d.addr)
	}
}

func (d *Device) subscribed(dst net.HardwareAddr) bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	for _, a := range d.multicast {
		if bytes.Equal(a, dst) {
			return true
		}
	}
	return false
}

// Transmit sends a frame from the host out of the interface. Frames are
// dropped while the carrier is off or the queue is stopped.
func (d *Device) Transmit(frame []byte) error {
	d.txPackets.Add(1)
	if !d.carrier.Load() || !d.queueRunning.Load() {
		d.txDropped.Add(1)
		return fmt.Errorf("netdev: transmit queue stopped: %w", pkg.ErrNotSupported)
	}
	if len(frame) < ethernetHeaderSize || len(frame) > d.mtu+ethernetHeaderSize {
		d.txErrors.Add(1)
		return fmt.Errorf("netdev: transmit %d-byte frame: %w", len(frame), pkg.ErrInvalidData)
	}
	if d.output == nil {
		return nil
	}
	if err := d.output(frame); err != nil {
		d.txErrors.Add(1)
		return fmt.Errorf("netdev: output: %w", err)
	}
	return nil
}
