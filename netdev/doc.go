// Package netdev provides a software network device for an RNDIS function.
//
// A [Device] stands in for the Ethernet interface behind an RNDIS link. It
// implements [rndis.NetDevice], so the protocol engine can read its MTU,
// address and counters and gate its carrier and transmit queue. Frames
// headed for the host pass through the CDC packet filter the host last set:
//
//	dev, _ := netdev.New(1500, mac)
//	reg.BindDevice(id, dev, dev.Filter())
//
//	// Network side: offer frames for the host.
//	dev.Receive(frame)
//
//	// Transport side: wrap accepted frames for the bulk IN endpoint.
//	for frame := range dev.Frames() {
//	    send(rndis.Wrap(frame))
//	}
package netdev
