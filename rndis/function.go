package rndis

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ardnew/softrndis/cdc"
	"github.com/ardnew/softrndis/pkg"
)

// NotificationQueueLen is how many RESPONSE_AVAILABLE notifications a
// [Function] buffers before dropping new ones.
const NotificationQueueLen = 8

// Function connects one registry instance to a USB control interface. It
// turns CDC encapsulated-command requests into dispatch calls and queued
// responses into RESPONSE_AVAILABLE notifications for the interrupt
// endpoint.
type Function struct {
	reg   *Registry
	id    ID
	iface uint16

	notifications chan []byte
	dropped       atomic.Uint64

	mutex sync.Mutex
	bound bool
}

// NewFunction registers a new instance in reg, bound to dev and filter, for
// the control interface number iface.
func NewFunction(reg *Registry, iface uint16, dev NetDevice, filter *cdc.FilterStore) (*Function, error) {
	f := &Function{
		reg:           reg,
		iface:         iface,
		notifications: make(chan []byte, NotificationQueueLen),
	}
	id, err := reg.Register(f.notifyHost, nil)
	if err != nil {
		return nil, err
	}
	if err := reg.BindDevice(id, dev, filter); err != nil {
		reg.Deregister(id)
		return nil, err
	}
	f.id = id
	f.bound = true
	pkg.LogDebug(pkg.ComponentFunction, "function bound", "id", id, "interface", iface)
	return f, nil
}

// ID returns the registry instance the function drives.
func (f *Function) ID() ID { return f.id }

// Notifications returns the channel carrying encoded RESPONSE_AVAILABLE
// notifications, one per queued response, for the interrupt IN endpoint.
func (f *Function) Notifications() <-chan []byte { return f.notifications }

// Dropped returns how many notifications were discarded because the
// channel was full.
func (f *Function) Dropped() uint64 { return f.dropped.Load() }

// notifyHost is the instance notification callback. It never blocks; the
// host still finds every response by polling GET_ENCAPSULATED_RESPONSE.
func (f *Function) notifyHost(any) {
	n := cdc.ResponseAvailable(f.iface)
	buf := make([]byte, cdc.NotificationSize)
	n.MarshalTo(buf)
	select {
	case f.notifications <- buf:
	default:
		f.dropped.Add(1)
		pkg.LogDebug(pkg.ComponentFunction, "notification dropped", "id", f.id)
	}
}

// HandleSetup processes a class request addressed to the control interface.
// SEND_ENCAPSULATED_COMMAND dispatches data and returns no data stage.
// GET_ENCAPSULATED_RESPONSE returns the next queued response, or
// [pkg.ErrStall] when none is waiting.
func (f *Function) HandleSetup(request uint8, data []byte) ([]byte, error) {
	switch request {
	case cdc.RequestSendEncapsulatedCommand:
		return nil, f.reg.Dispatch(f.id, data)

	case cdc.RequestGetEncapsulatedResponse:
		resp, ok := f.reg.NextResponse(f.id)
		if !ok {
			return nil, fmt.Errorf("get encapsulated response: %w", pkg.ErrStall)
		}
		out := append([]byte(nil), resp.Bytes()...)
		f.reg.FreeResponse(f.id, resp)
		return out, nil

	default:
		pkg.LogDebug(pkg.ComponentFunction, "unhandled class request",
			"id", f.id, "request", request)
		return nil, fmt.Errorf("class request 0x%02X: %w", request, pkg.ErrInvalidRequest)
	}
}

// HandleControl processes a control transfer from its raw SETUP packet.
// data is the host's data stage for OUT requests. For IN requests the
// returned data stage is clipped to wLength.
func (f *Function) HandleControl(setup, data []byte) ([]byte, error) {
	var s cdc.Setup
	if err := cdc.ParseSetup(setup, &s); err != nil {
		return nil, err
	}
	if !s.IsClassInterface() || s.Index != f.iface {
		return nil, fmt.Errorf("request type 0x%02X to interface %d: %w",
			s.RequestType, s.Index, pkg.ErrInvalidRequest)
	}
	wantIn := s.Request == cdc.RequestGetEncapsulatedResponse
	if s.IsDeviceToHost() != wantIn {
		return nil, fmt.Errorf("class request 0x%02X: wrong direction: %w", s.Request, pkg.ErrInvalidRequest)
	}
	if !wantIn {
		if len(data) < int(s.Length) {
			return nil, fmt.Errorf("data stage %d of %d bytes: %w", len(data), s.Length, pkg.ErrMalformed)
		}
		data = data[:s.Length]
	}
	out, err := f.HandleSetup(s.Request, data)
	if err != nil {
		return nil, err
	}
	if len(out) > int(s.Length) {
		pkg.LogWarn(pkg.ComponentFunction, "response clipped to wLength",
			"id", f.id, "length", len(out), "wLength", s.Length)
		out = out[:s.Length]
	}
	return out, nil
}

// Open tells the host the link is up once it has initialized the device.
func (f *Function) Open() error {
	return f.reg.SignalConnect(f.id)
}

// Close tells the host the link is down.
func (f *Function) Close() error {
	return f.reg.SignalDisconnect(f.id)
}

// Unbind resets the instance and releases its registry slot. Further calls
// do nothing.
func (f *Function) Unbind() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if !f.bound {
		return
	}
	f.bound = false
	f.reg.Uninit(f.id)
	f.reg.Deregister(f.id)
	pkg.LogDebug(pkg.ComponentFunction, "function unbound", "id", f.id)
}

// Transmit frames an Ethernet frame for the bulk IN endpoint.
func (f *Function) Transmit(frame []byte) []byte {
	return Wrap(frame)
}

// Receive extracts the Ethernet frame from a bulk OUT transfer.
func (f *Function) Receive(buf []byte) ([]byte, error) {
	frame, err := Unwrap(buf)
	if err != nil {
		pkg.LogDebug(pkg.ComponentData, "discarding bulk OUT transfer",
			"id", f.id, "length", len(buf), "error", err)
		return nil, err
	}
	return frame, nil
}

// ControlInterfaceDescriptors returns the class-specific descriptors of the
// RNDIS control interface, which follow its interface descriptor in the
// configuration descriptor. dataIface is the CDC Data interface number.
func (f *Function) ControlInterfaceDescriptors(dataIface uint8) []byte {
	buf := make([]byte, cdc.HeaderDescriptorSize+cdc.CallManagementDescriptorSize+
		cdc.ACMDescriptorSize+cdc.UnionDescriptorSize)
	n := 0
	header := cdc.HeaderDescriptor{CDCVersion: 0x0110}
	n += header.MarshalTo(buf[n:])
	callMgmt := cdc.CallManagementDescriptor{DataInterface: dataIface}
	n += callMgmt.MarshalTo(buf[n:])
	acm := cdc.ACMDescriptor{}
	n += acm.MarshalTo(buf[n:])
	union := cdc.UnionDescriptor{MasterInterface: uint8(f.iface), SlaveInterface0: dataIface}
	n += union.MarshalTo(buf[n:])
	return buf[:n]
}
