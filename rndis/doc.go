// Package rndis implements the device side of the Remote NDIS (RNDIS)
// control protocol.
//
// An RNDIS host drives the device with control messages sent as CDC
// encapsulated commands. The engine decodes each message, answers queries
// and sets against a fixed table of NDIS object identifiers (OIDs), tracks
// protocol and link state, and queues correctly formatted replies that the
// USB transport fetches later.
//
// # Architecture
//
// A [Registry] owns a fixed number of protocol instances. Each instance is
// bound to a [NetDevice], whose carrier and transmit queue the engine gates
// from the packet filter the host sets:
//
//   - Uninitialized: after registration, HALT, or [Registry.Uninit]
//   - Initialized: after INITIALIZE, or a zero packet filter
//   - DataInitialized: after a nonzero packet filter; data flows
//
// Link state (connected/disconnected) is tracked separately and reported to
// the host with INDICATE_STATUS messages.
//
// # Usage
//
//	reg := rndis.NewRegistry()
//	id, _ := reg.Register(func(any) { /* raise RESPONSE_AVAILABLE */ }, nil)
//	reg.BindDevice(id, dev, &filter)
//	reg.SetVendor(id, 0x1d6b, "softrndis")
//	reg.SetMedium(id, rndis.Medium8023, 100000) // 10 Mbit/s
//
//	// For every SEND_ENCAPSULATED_COMMAND:
//	reg.Dispatch(id, cmd)
//
//	// For every GET_ENCAPSULATED_RESPONSE:
//	if resp, ok := reg.NextResponse(id); ok {
//	    send(resp.Bytes())
//	    reg.FreeResponse(id, resp)
//	}
//
// [Function] packages the same flow behind a CDC class-request interface
// and a notification channel.
//
// # Data Path
//
// Once the host has set a nonzero packet filter, Ethernet frames travel on
// the bulk endpoints framed by a 44-byte PACKET_MSG header; see [Wrap] and
// [Unwrap].
package rndis
