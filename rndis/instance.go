package rndis

import (
	"fmt"
	"sync"

	"github.com/ardnew/softrndis/cdc"
	"github.com/ardnew/softrndis/pkg"
)

// NotifyFunc is called once for every response queued on an instance, after
// the instance lock is released, with the context given to Register. It must
// not block and must not call [Registry.Dispatch].
type NotifyFunc func(v any)

// instance is one protocol session. All fields are guarded by mu.
type instance struct {
	mu sync.Mutex

	id   ID
	used bool

	state State
	media MediaState
	hw    HardwareStatus
	open  bool // host side asked for the link to be up

	dev    NetDevice
	filter *cdc.FilterStore

	multicast    [macAddressSize]byte
	multicastSet bool

	vendorID    uint32
	vendorDescr string
	medium      Medium
	speed       uint32 // units of 100 bit/s
	savedFilter uint32 // last NDIS filter set by the host

	notify  NotifyFunc
	v       any
	pending int // responses queued since the last notify flush

	queue   responseQueue
	metrics *Metrics
}

func (in *instance) reset() {
	in.state = StateUninitialized
	in.media = MediaDisconnected
	in.hw = HardwareNotReady
	in.open = false
	in.multicast = [macAddressSize]byte{}
	in.multicastSet = false
}

// enqueue allocates a response of length bytes and counts it for the next
// notify flush. Callers must not have changed any state before calling it.
func (in *instance) enqueue(length int) (*Response, error) {
	r, err := in.queue.allocate(length)
	if err != nil {
		pkg.LogError(pkg.ComponentQueue, "response allocation failed",
			"id", in.id, "length", length, "error", err)
		return nil, err
	}
	in.pending++
	in.metrics.setQueueDepth(in.id, in.queue.len())
	return r, nil
}

// unlockAndNotify releases mu and signals each response queued while it was
// held.
func (in *instance) unlockAndNotify() {
	n := in.pending
	in.pending = 0
	fn, v := in.notify, in.v
	in.mu.Unlock()

	if fn == nil {
		return
	}
	for ; n > 0; n-- {
		fn(v)
	}
}

// indicateLocked queues an INDICATE_STATUS message.
func (in *instance) indicateLocked(status Status) error {
	if in.state == StateUninitialized {
		pkg.LogWarn(pkg.ComponentRNDIS, "status indication before initialize",
			"id", in.id, "status", status)
		return fmt.Errorf("indicate %s: %w", status, pkg.ErrNotSupported)
	}
	r, err := in.enqueue(indicateStatusSize)
	if err != nil {
		return err
	}
	putIndicateStatus(r.buf, status)
	in.metrics.recordIndication(status)
	return nil
}

// connectLocked raises the media state and tells the host.
func (in *instance) connectLocked() error {
	prevState, prevMedia := in.state, in.media
	err := pkg.ErrNotSupported
	if (in.state == StateInitialized || in.state == StateDataInitialized) &&
		in.media != MediaConnected {
		// Allocation is checked before the media state changes.
		if err = in.indicateLocked(StatusMediaConnect); err == nil {
			in.media = MediaConnected
		}
	}
	pkg.LogDebug(pkg.ComponentRNDIS, "media connect",
		"id", in.id, "state", prevState, "media", prevMedia,
		"open", in.open, "result", pkg.ErrorLabel(err), "now", in.media)
	return err
}

// disconnectLocked drops the media state and tells the host.
func (in *instance) disconnectLocked() error {
	prevState, prevMedia := in.state, in.media
	err := pkg.ErrNotSupported
	if in.media == MediaConnected {
		if in.state == StateUninitialized {
			in.media = MediaDisconnected
			err = in.indicateLocked(StatusMediaDisconnect)
		} else if err = in.indicateLocked(StatusMediaDisconnect); err == nil {
			in.media = MediaDisconnected
		}
	}
	pkg.LogDebug(pkg.ComponentRNDIS, "media disconnect",
		"id", in.id, "state", prevState, "media", prevMedia,
		"open", in.open, "result", pkg.ErrorLabel(err), "now", in.media)
	return err
}

// gateLocked opens or closes the data path to match a CDC filter.
func (in *instance) gateLocked(f cdc.PacketFilter) {
	if f != 0 {
		in.state = StateDataInitialized
		if in.dev != nil {
			in.dev.SetCarrier(true)
			if in.dev.IsRunning() {
				in.dev.SetQueueRunning(true)
			}
		}
	} else {
		in.state = StateInitialized
		if in.dev != nil {
			in.dev.SetCarrier(false)
			in.dev.SetQueueRunning(false)
		}
	}
	in.metrics.recordFilterChange(f != 0)
}

// haltLocked tears the session down without producing a response.
func (in *instance) haltLocked() {
	in.state = StateUninitialized
	in.media = MediaDisconnected
	in.hw = HardwareNotReady
	if in.dev != nil {
		in.dev.SetCarrier(false)
		in.dev.SetQueueRunning(false)
	}
}

// Snapshot is a point-in-time copy of an instance's observable state.
type Snapshot struct {
	ID           ID
	Registered   bool
	State        State
	Media        MediaState
	Hardware     HardwareStatus
	Open         bool
	DeviceBound  bool
	Filter       cdc.PacketFilter
	SavedFilter  uint32
	Multicast    [macAddressSize]byte
	MulticastSet bool
	VendorID     uint32
	VendorDescr  string
	Medium       Medium
	Speed        uint32
	Queued       int
}

func (in *instance) snapshot() Snapshot {
	in.mu.Lock()
	defer in.mu.Unlock()
	s := Snapshot{
		ID:           in.id,
		Registered:   in.used,
		State:        in.state,
		Media:        in.media,
		Hardware:     in.hw,
		Open:         in.open,
		DeviceBound:  in.dev != nil,
		SavedFilter:  in.savedFilter,
		Multicast:    in.multicast,
		MulticastSet: in.multicastSet,
		VendorID:     in.vendorID,
		VendorDescr:  in.vendorDescr,
		Medium:       in.medium,
		Speed:        in.speed,
		Queued:       in.queue.len(),
	}
	if in.filter != nil {
		s.Filter = in.filter.Load()
	}
	return s
}
