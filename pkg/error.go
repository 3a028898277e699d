package pkg

import "errors"

// Protocol engine errors.
var (
	// ErrNoNetworkDevice indicates the operation needs a bound network
	// device and none is bound to the instance.
	ErrNoNetworkDevice = errors.New("no network device bound")

	// ErrNoMemory indicates a response buffer could not be allocated.
	ErrNoMemory = errors.New("insufficient memory")

	// ErrNotSupported indicates an unknown OID or message type, or a state
	// transition attempted from a state that does not permit it.
	ErrNotSupported = errors.New("not supported")

	// ErrInvalidData indicates a malformed set payload.
	ErrInvalidData = errors.New("invalid data")

	// ErrOverflow indicates a data packet declares more bytes than it holds.
	ErrOverflow = errors.New("overflow")

	// ErrMalformed indicates a message whose framing cannot be decoded.
	ErrMalformed = errors.New("malformed message")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNoResources indicates every instance slot is in use.
	ErrNoResources = errors.New("no resources available")

	// ErrNotConfigured indicates the instance has not been registered.
	ErrNotConfigured = errors.New("not configured")

	// ErrInvalidRequest indicates an invalid or unsupported control request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrStall indicates the control endpoint should stall the request.
	ErrStall = errors.New("endpoint stalled")
)

// ErrorLabel returns a short, stable label for err suitable for metric
// labels and log attributes. A nil error is labeled "ok".
func ErrorLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoNetworkDevice):
		return "no_network_device"
	case errors.Is(err, ErrNoMemory):
		return "no_memory"
	case errors.Is(err, ErrNotSupported):
		return "not_supported"
	case errors.Is(err, ErrInvalidData):
		return "invalid_data"
	case errors.Is(err, ErrOverflow):
		return "overflow"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrInvalidParameter):
		return "invalid_parameter"
	case errors.Is(err, ErrNoResources):
		return "no_resources"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrStall):
		return "stall"
	default:
		return "error"
	}
}
