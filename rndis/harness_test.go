package rndis

import (
	"encoding/binary"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ardnew/softrndis/cdc"
)

// fakeDevice records what the engine does to the network interface.
type fakeDevice struct {
	mu           sync.Mutex
	mtu          int
	addr         net.HardwareAddr
	stats        Statistics
	statsOK      bool
	carrier      bool
	queueRunning bool
	running      bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		mtu:     1500,
		addr:    net.HardwareAddr{0x02, 0x00, 0x5e, 0x10, 0x20, 0x30},
		statsOK: true,
		running: true,
	}
}

func (d *fakeDevice) MTU() int { return d.mtu }

func (d *fakeDevice) Statistics() (Statistics, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats, d.statsOK
}

func (d *fakeDevice) PermanentAddress() net.HardwareAddr { return d.addr }

func (d *fakeDevice) SetCarrier(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.carrier = on
}

func (d *fakeDevice) SetQueueRunning(running bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queueRunning = running
}

func (d *fakeDevice) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *fakeDevice) link() (carrier, queueRunning bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.carrier, d.queueRunning
}

// harness drives one registered instance the way a host would.
type harness struct {
	t        *testing.T
	reg      *Registry
	id       ID
	dev      *fakeDevice
	filter   *cdc.FilterStore
	notified atomic.Int32
	reqID    uint32
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		reg:    NewRegistry(opts...),
		dev:    newFakeDevice(),
		filter: new(cdc.FilterStore),
	}
	id, err := h.reg.Register(func(any) { h.notified.Add(1) }, nil)
	require.NoError(t, err)
	h.id = id
	require.NoError(t, h.reg.BindDevice(id, h.dev, h.filter))
	return h
}

func (h *harness) nextID() uint32 {
	h.reqID++
	return h.reqID
}

func (h *harness) dispatch(msg []byte) error {
	return h.reg.Dispatch(h.id, msg)
}

func (h *harness) snapshot() Snapshot {
	h.t.Helper()
	s, err := h.reg.Snapshot(h.id)
	require.NoError(h.t, err)
	return s
}

// next retrieves, decodes and frees the oldest queued response.
func (h *harness) next() *Completion {
	h.t.Helper()
	resp, ok := h.reg.NextResponse(h.id)
	require.True(h.t, ok, "expected a queued response")
	c, err := DecodeCompletion(resp.Bytes())
	require.NoError(h.t, err)
	require.Equal(h.t, resp.Len(), int(c.MessageLength))
	h.reg.FreeResponse(h.id, resp)
	return c
}

func (h *harness) requireEmpty() {
	h.t.Helper()
	_, ok := h.reg.NextResponse(h.id)
	require.False(h.t, ok, "expected no queued response")
}

func (h *harness) initialize() {
	h.t.Helper()
	require.NoError(h.t, h.dispatch(EncodeInitialize(h.nextID(), 0x4000)))
	c := h.next()
	require.Equal(h.t, MsgInitializeCmplt, c.MessageType)
	require.Equal(h.t, StatusSuccess, c.Status)
}

func (h *harness) set(oid OID, info []byte) *Completion {
	h.t.Helper()
	reqID := h.nextID()
	require.NoError(h.t, h.dispatch(EncodeSet(reqID, oid, info)))
	c := h.next()
	require.Equal(h.t, MsgSetCmplt, c.MessageType)
	require.Equal(h.t, reqID, c.RequestID)
	return c
}

func (h *harness) query(oid OID) *Completion {
	h.t.Helper()
	reqID := h.nextID()
	require.NoError(h.t, h.dispatch(EncodeQuery(reqID, oid, nil)))
	c := h.next()
	require.Equal(h.t, MsgQueryCmplt, c.MessageType)
	require.Equal(h.t, reqID, c.RequestID)
	return c
}

func u32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}
