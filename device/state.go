package device

import "github.com/maxvt/pic18usb/bd"

// State is a position in the USB device enumeration lifecycle.
type State uint8

// Device states, in the order the lifecycle visits them.
const (
	StateUnattached State = iota
	StateAttached
	StateDefault
	StateAddressed
	StateConfigured
)

// String names the state for logging.
func (s State) String() string {
	switch s {
	case StateUnattached:
		return "unattached"
	case StateAttached:
		return "attached"
	case StateDefault:
		return "default"
	case StateAddressed:
		return "addressed"
	case StateConfigured:
		return "configured"
	default:
		return "unknown"
	}
}

// EventKind identifies the single pending condition recorded in the event
// mailbox.
type EventKind uint8

// Event kinds.
const (
	EventNone EventKind = iota
	EventAttached
	EventDetached
	EventReset
	EventTransaction
)

// Event is the payload posted to the core's mailbox. Handle is only
// meaningful for EventTransaction.
type Event struct {
	Kind   EventKind
	Handle bd.Handle
}
