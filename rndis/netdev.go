package rndis

import "net"

// Statistics are the interface counters an RNDIS host polls for.
type Statistics struct {
	TxPackets     uint64
	TxErrors      uint64
	TxDropped     uint64
	RxPackets     uint64
	RxErrors      uint64
	RxDropped     uint64
	RxFrameErrors uint64
}

// TxOK returns frames transmitted without errors.
func (s Statistics) TxOK() uint64 {
	return sub(s.TxPackets, s.TxErrors+s.TxDropped)
}

// RxOK returns frames received without errors.
func (s Statistics) RxOK() uint64 {
	return sub(s.RxPackets, s.RxErrors+s.RxDropped)
}

func sub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// NetDevice is the network interface an instance reports on and gates.
// Implementations must be safe to call from the goroutine dispatching
// control messages while the data path runs elsewhere.
type NetDevice interface {
	// MTU returns the maximum payload of one Ethernet frame.
	MTU() int

	// Statistics returns the interface counters. ok is false when the
	// device cannot provide them, in which case every counter reads zero.
	Statistics() (stats Statistics, ok bool)

	// PermanentAddress returns the 6-byte hardware address presented to
	// the host.
	PermanentAddress() net.HardwareAddr

	// SetCarrier raises or drops the link carrier.
	SetCarrier(on bool)

	// SetQueueRunning starts (wakes) or stops the transmit queue.
	SetQueueRunning(running bool)

	// IsRunning reports whether the interface is administratively up.
	IsRunning() bool
}

// MulticastFilter is implemented by devices that filter received multicast
// frames by address. When the bound device implements it, the host's
// OID_802_3_MULTICAST_LIST is passed on; an empty list clears it.
type MulticastFilter interface {
	SetMulticastList(addrs []net.HardwareAddr)
}
