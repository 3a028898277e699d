package rndis

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ardnew/softrndis/pkg"
)

// Dispatch decodes one control message for instance id, applies it, and
// queues the reply. The notification callback runs once per queued reply
// after Dispatch has released the instance.
//
// Handler failures that leave the instance consistent are reported to the
// host as a status inside the reply. Dispatch itself returns an error only
// when no reply could be built: an unknown or unregistered instance, an
// unknown message type, a malformed message, a missing network device, or an
// allocation failure.
// HALT never produces a reply and returns nil.
func (r *Registry) Dispatch(id ID, buf []byte) error {
	in, ok := r.slot(id)
	if !ok {
		pkg.LogError(pkg.ComponentRNDIS, "dispatch to unknown instance",
			"id", id, "capacity", len(r.slots))
		return fmt.Errorf("dispatch: instance %d: %w", id, pkg.ErrNotSupported)
	}

	start := time.Now()
	msg, err := Decode(buf)
	if err != nil {
		pkg.LogWarn(pkg.ComponentRNDIS, "undecodable message", "id", id, "error", err)
		r.metrics.recordMessage(0, err, time.Since(start))
		return err
	}

	in.mu.Lock()
	if !in.used {
		in.mu.Unlock()
		pkg.LogWarn(pkg.ComponentRNDIS, "dispatch to unregistered instance", "id", id)
		err = fmt.Errorf("dispatch: instance %d: %w", id, pkg.ErrNotConfigured)
		r.metrics.recordMessage(msg.Type(), err, time.Since(start))
		return err
	}
	err = in.handle(msg)
	in.unlockAndNotify()

	r.metrics.recordMessage(msg.Type(), err, time.Since(start))
	return err
}

// handle applies msg with in.mu held.
//
// Each message type is handled on its own: INITIALIZE does not go on to
// apply HALT and SET does not go on to queue a RESET_CMPLT.
func (in *instance) handle(msg Message) error {
	switch m := msg.(type) {
	case *InitializeMsg:
		return in.initialize(m)

	case *HaltMsg:
		pkg.LogDebug(pkg.ComponentRNDIS, "halt", "id", in.id, "device", in.dev != nil)
		in.haltLocked()
		return nil

	case *QueryMsg:
		return in.query(m)

	case *SetMsg:
		return in.setRequest(m)

	case *ResetMsg:
		r, err := in.enqueue(resetCmpltSize)
		if err != nil {
			return err
		}
		pkg.LogDebug(pkg.ComponentRNDIS, "reset", "id", in.id)
		putResetCmplt(r.buf)
		return nil

	case *KeepaliveMsg:
		// Hosts send this about every five seconds.
		r, err := in.enqueue(keepaliveCmpltSize)
		if err != nil {
			return err
		}
		putKeepaliveCmplt(r.buf, m.RequestID)
		return nil

	case *UnknownMsg:
		// Some hosts emit undefined messages, e.g. around suspend.
		pkg.LogWarn(pkg.ComponentRNDIS, "unknown message",
			"id", in.id, "type", m.MessageType, "length", m.MessageLength,
			"dump", hex.Dump(m.Raw))
		return fmt.Errorf("message %s: %w", m.MessageType, pkg.ErrNotSupported)

	default:
		return fmt.Errorf("message %T: %w", msg, pkg.ErrNotSupported)
	}
}

func (in *instance) initialize(m *InitializeMsg) error {
	if in.dev == nil {
		pkg.LogError(pkg.ComponentRNDIS, "initialize without network device", "id", in.id)
		return fmt.Errorf("initialize instance %d: %w: %w", in.id, pkg.ErrNoNetworkDevice, pkg.ErrNotSupported)
	}
	r, err := in.enqueue(initializeCmpltSize)
	if err != nil {
		return err
	}
	putInitializeCmplt(r.buf, m.RequestID, in.dev.MTU())

	in.state = StateInitialized
	in.hw = HardwareReady
	pkg.LogDebug(pkg.ComponentRNDIS, "initialized", "id", in.id,
		"hostVersion", fmt.Sprintf("%d.%d", m.MajorVersion, m.MinorVersion),
		"hostMaxTransfer", m.MaxTransferSize)

	if in.open {
		if err := in.connectLocked(); err != nil && !errors.Is(err, pkg.ErrNotSupported) {
			pkg.LogWarn(pkg.ComponentRNDIS, "connect after initialize failed",
				"id", in.id, "error", err)
		}
	}
	return nil
}

func (in *instance) query(m *QueryMsg) error {
	if in.dev == nil {
		pkg.LogError(pkg.ComponentRNDIS, "query without network device",
			"id", in.id, "oid", m.OID)
		return fmt.Errorf("query %s on instance %d: %w: %w",
			m.OID, in.id, pkg.ErrNoNetworkDevice, pkg.ErrNotSupported)
	}
	// Reserve the largest possible reply, then trim to what was written.
	r, err := in.enqueue(queryCmpltSize + queryBufferSize(in))
	if err != nil {
		return err
	}
	n, status := queryOID(in, m.OID, r.buf[queryCmpltSize:])
	putQueryCmplt(r.buf, m.RequestID, status, n)
	r.truncate(int(le32(r.buf, 4)))
	return nil
}

func (in *instance) setRequest(m *SetMsg) error {
	r, err := in.enqueue(setCmpltSize)
	if err != nil {
		return err
	}
	status := setOID(in, m.OID, m.Info)
	putSetCmplt(r.buf, m.RequestID, status)

	if in.open {
		var err error
		switch in.state {
		case StateInitialized:
			err = in.disconnectLocked()
		case StateDataInitialized:
			err = in.connectLocked()
		}
		if err != nil && !errors.Is(err, pkg.ErrNotSupported) {
			pkg.LogWarn(pkg.ComponentRNDIS, "media update after set failed",
				"id", in.id, "error", err)
		}
	}
	return nil
}
