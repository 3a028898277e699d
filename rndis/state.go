package rndis

// State is the RNDIS protocol state of an instance.
type State uint8

// Protocol states.
const (
	StateUninitialized State = iota
	StateInitialized
	StateDataInitialized
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateDataInitialized:
		return "data-initialized"
	default:
		return "invalid"
	}
}

// MediaState is the NDIS media connect status. The values are the ones
// reported by OID_GEN_MEDIA_CONNECT_STATUS.
type MediaState uint32

// Media states.
const (
	MediaConnected    MediaState = 0
	MediaDisconnected MediaState = 1
)

// String returns the media state name.
func (m MediaState) String() string {
	if m == MediaConnected {
		return "connected"
	}
	return "disconnected"
}

// HardwareStatus is the NDIS hardware status reported by
// OID_GEN_HARDWARE_STATUS.
type HardwareStatus uint32

// Hardware states.
const (
	HardwareReady        HardwareStatus = 0
	HardwareInitializing HardwareStatus = 1
	HardwareReset        HardwareStatus = 2
	HardwareClosing      HardwareStatus = 3
	HardwareNotReady     HardwareStatus = 4
)

// String returns the hardware status name.
func (h HardwareStatus) String() string {
	switch h {
	case HardwareReady:
		return "ready"
	case HardwareInitializing:
		return "initializing"
	case HardwareReset:
		return "reset"
	case HardwareClosing:
		return "closing"
	case HardwareNotReady:
		return "not ready"
	default:
		return "invalid"
	}
}
