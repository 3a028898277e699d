package rndis

import (
	"fmt"

	"github.com/ardnew/softrndis/cdc"
	"github.com/ardnew/softrndis/pkg"
)

// DefaultCapacity is the number of instances a registry holds by default.
const DefaultCapacity = 1

// ID identifies an instance slot in a [Registry].
type ID int

// Registry owns a fixed set of protocol instances. Each registered instance
// is bound to one network device and one notification callback.
//
// All methods are safe for concurrent use. Callers are expected to deliver
// control messages for one instance one at a time; the response queue may be
// drained concurrently from another goroutine.
type Registry struct {
	slots        []instance
	maxResponses int
	metrics      *Metrics
}

// Option configures a [Registry].
type Option func(*Registry)

// WithCapacity sets the number of instance slots. Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(r *Registry) {
		if n >= 1 {
			r.slots = make([]instance, n)
		}
	}
}

// WithMaxResponses limits how many responses may be queued on one instance
// before allocation fails with [pkg.ErrNoMemory]. Zero removes the limit.
func WithMaxResponses(n int) Option {
	return func(r *Registry) {
		if n >= 0 {
			r.maxResponses = n
		}
	}
}

// WithMetrics records protocol activity to m.
func WithMetrics(m *Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry creates a registry with every slot free and uninitialized.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		slots:        make([]instance, DefaultCapacity),
		maxResponses: DefaultMaxResponses,
	}
	for _, opt := range opts {
		opt(r)
	}
	for i := range r.slots {
		in := &r.slots[i]
		in.id = ID(i)
		in.queue.limit = r.maxResponses
		in.metrics = r.metrics
		in.reset()
	}
	return r
}

// Capacity returns the number of instance slots.
func (r *Registry) Capacity() int {
	return len(r.slots)
}

func (r *Registry) slot(id ID) (*instance, bool) {
	if id < 0 || int(id) >= len(r.slots) {
		return nil, false
	}
	return &r.slots[id], true
}

// Register claims a free slot and installs fn as its notification callback.
// fn is called with v once for every response queued on the instance.
func (r *Registry) Register(fn NotifyFunc, v any) (ID, error) {
	if fn == nil {
		return -1, fmt.Errorf("register: nil notify func: %w", pkg.ErrInvalidParameter)
	}
	for i := range r.slots {
		in := &r.slots[i]
		in.mu.Lock()
		if !in.used {
			in.used = true
			in.notify = fn
			in.v = v
			in.mu.Unlock()
			pkg.LogDebug(pkg.ComponentRegistry, "instance registered", "id", in.id)
			return in.id, nil
		}
		in.mu.Unlock()
	}
	pkg.LogWarn(pkg.ComponentRegistry, "no free instance slot", "capacity", len(r.slots))
	return -1, fmt.Errorf("register: %d slots in use: %w", len(r.slots), pkg.ErrNoResources)
}

// Deregister releases the slot, dropping any queued responses and returning
// it to the uninitialized state.
func (r *Registry) Deregister(id ID) {
	in, ok := r.slot(id)
	if !ok {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.queue.drain()
	in.reset()
	in.used = false
	in.notify = nil
	in.v = nil
	in.pending = 0
	in.metrics.setQueueDepth(in.id, 0)
	pkg.LogDebug(pkg.ComponentRegistry, "instance deregistered", "id", id)
}

// BindDevice attaches the network device the instance reports on and the
// packet-filter storage it shares with the data path. A nil filter gives
// the instance private storage.
func (r *Registry) BindDevice(id ID, dev NetDevice, filter *cdc.FilterStore) error {
	if dev == nil {
		return fmt.Errorf("bind device: nil device: %w", pkg.ErrInvalidParameter)
	}
	in, ok := r.slot(id)
	if !ok {
		return fmt.Errorf("bind device: instance %d: %w", id, pkg.ErrInvalidParameter)
	}
	if filter == nil {
		filter = new(cdc.FilterStore)
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.dev = dev
	in.filter = filter
	return nil
}

// SetVendor sets the values reported for OID_GEN_VENDOR_ID and
// OID_GEN_VENDOR_DESCRIPTION.
func (r *Registry) SetVendor(id ID, vendorID uint32, descr string) error {
	in, ok := r.slot(id)
	if !ok {
		return fmt.Errorf("set vendor: instance %d: %w", id, pkg.ErrInvalidParameter)
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.vendorID = vendorID
	in.vendorDescr = descr
	return nil
}

// SetMedium sets the reported medium and link speed. speed is in units of
// 100 bit/s, as OID_GEN_LINK_SPEED reports it.
func (r *Registry) SetMedium(id ID, medium Medium, speed uint32) error {
	in, ok := r.slot(id)
	if !ok {
		return fmt.Errorf("set medium: instance %d: %w", id, pkg.ErrInvalidParameter)
	}
	pkg.LogDebug(pkg.ComponentRegistry, "medium", "id", id, "medium", medium, "speed", speed)
	in.mu.Lock()
	defer in.mu.Unlock()
	in.medium = medium
	in.speed = speed
	return nil
}

// SignalConnect records that the link should be up and, if the instance is
// initialized and disconnected, indicates MEDIA_CONNECT to the host.
// It returns [pkg.ErrNotSupported] when no indication was sent and
// [pkg.ErrNotConfigured] when the slot is not registered.
func (r *Registry) SignalConnect(id ID) error {
	in, ok := r.slot(id)
	if !ok {
		return fmt.Errorf("signal connect: instance %d: %w", id, pkg.ErrNotSupported)
	}
	in.mu.Lock()
	if !in.used {
		in.mu.Unlock()
		return fmt.Errorf("signal connect: instance %d: %w", id, pkg.ErrNotConfigured)
	}
	in.open = true
	err := in.connectLocked()
	in.unlockAndNotify()
	return err
}

// SignalDisconnect records that the link should be down and, if the media is
// connected, indicates MEDIA_DISCONNECT to the host.
// It returns [pkg.ErrNotSupported] when no indication was sent and
// [pkg.ErrNotConfigured] when the slot is not registered.
func (r *Registry) SignalDisconnect(id ID) error {
	in, ok := r.slot(id)
	if !ok {
		return fmt.Errorf("signal disconnect: instance %d: %w", id, pkg.ErrNotSupported)
	}
	in.mu.Lock()
	if !in.used {
		in.mu.Unlock()
		return fmt.Errorf("signal disconnect: instance %d: %w", id, pkg.ErrNotConfigured)
	}
	in.open = false
	err := in.disconnectLocked()
	in.unlockAndNotify()
	return err
}

// Uninit returns the instance to the uninitialized state and frees every
// queued response. It is safe to call repeatedly.
func (r *Registry) Uninit(id ID) {
	in, ok := r.slot(id)
	if !ok {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.state = StateUninitialized
	in.media = MediaDisconnected
	in.hw = HardwareNotReady
	in.pending = 0
	if n := in.queue.drain(); n > 0 {
		pkg.LogDebug(pkg.ComponentQueue, "drained responses", "id", id, "count", n)
	}
	in.metrics.setQueueDepth(in.id, 0)
}

// NextResponse returns the oldest response not yet handed out and marks it
// delivered. It returns false when nothing is waiting. The response stays
// queued until [Registry.FreeResponse].
func (r *Registry) NextResponse(id ID) (*Response, bool) {
	in, ok := r.slot(id)
	if !ok {
		return nil, false
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.queue.next()
}

// FreeResponse removes resp from the instance queue. Freeing a response that
// is not queued does nothing.
func (r *Registry) FreeResponse(id ID, resp *Response) {
	in, ok := r.slot(id)
	if !ok || resp == nil {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.queue.remove(resp) {
		in.metrics.setQueueDepth(in.id, in.queue.len())
	}
}

// Drain retrieves and frees every queued response and returns how many
// there were.
func (r *Registry) Drain(id ID) int {
	in, ok := r.slot(id)
	if !ok {
		return 0
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	n := in.queue.drain()
	in.metrics.setQueueDepth(in.id, 0)
	return n
}

// Snapshot returns a copy of the instance's observable state.
func (r *Registry) Snapshot(id ID) (Snapshot, error) {
	in, ok := r.slot(id)
	if !ok {
		return Snapshot{}, fmt.Errorf("snapshot: instance %d: %w", id, pkg.ErrInvalidParameter)
	}
	return in.snapshot(), nil
}
