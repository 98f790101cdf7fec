package device

import (
	"sync"

	"github.com/maxvt/pic18usb/bd"
	"github.com/maxvt/pic18usb/ctl"
	"github.com/maxvt/pic18usb/hal"
	"github.com/maxvt/pic18usb/pkg"
)

// ConfigFunc is called when the host issues SET_CONFIGURATION with a
// nonzero index: the application sets up any non-control endpoints here.
type ConfigFunc func(index uint8) error

// TransactionFunc is called for a completed transaction on an endpoint
// other than EP0, which the control engine does not handle itself.
type TransactionFunc func(h bd.Handle)

// CallbackSlot names a callback accepted by the compatibility SetCallback
// method.
type CallbackSlot uint8

// Callback slots.
const (
	CBConfig CallbackSlot = iota
	CBTransaction
)

// Stack is the integration point an application imports: it wires a
// hal.SIE, a bd.Manager, and a ctl.Engine into the enumeration state
// machine and the event-mailbox work pump.
type Stack struct {
	sie    hal.SIE
	bd     *bd.Manager
	engine *ctl.Engine

	mu    sync.Mutex
	state State
	power ctl.PowerState

	mailboxFull bool
	mailbox     Event

	onConfig      ConfigFunc
	onTransaction TransactionFunc
}

// maxSE0Poll bounds the attach-time wait for the bus's Single-Ended Zero
// condition to clear. The reference hardware's own boot sequence spins on
// this unconditionally; a software SIE should always clear it well within
// this many iterations, so the bound exists only to keep a HAL bug from
// hanging Work forever.
const maxSE0Poll = 1 << 16

// NewStack creates a device stack over sie, serving descriptors from the
// supplied table. ep0Size is the maximum packet size for endpoint 0.
func NewStack(sie hal.SIE, descriptors ctl.DescriptorTable, ep0Size int) *Stack {
	s := &Stack{sie: sie}
	s.bd = bd.NewManager(sie.ArenaSize())
	s.engine = ctl.NewEngine(s.bd, sie, descriptors, s, ep0Size)
	return s
}

// Init performs the one-time application-startup sequence: it initializes
// the BD manager and allocates the EP0 buffer descriptors, then enters
// Unattached (clears SIE suspend by disabling the USB module). Call it
// once before posting any event or calling Work.
func (s *Stack) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bd.Init()
	if err := s.engine.Init(); err != nil {
		return err
	}
	s.sie.DisableUSB()
	s.state = StateUnattached
	s.mailboxFull = false
	return nil
}

// enterAttached runs the Attached-state entry actions: enable the USB
// module, wait out any boot-time SE0 condition so it is not mistaken for a
// bus reset, then clear the reset interrupt it would otherwise leave
// latched.
func (s *Stack) enterAttached() error {
	s.sie.EnableUSB()
	for i := 0; s.sie.SE0(); i++ {
		if i >= maxSE0Poll {
			return pkg.Error.Err()
		}
	}
	s.sie.ClearResetInterrupt()
	s.state = StateAttached
	return nil
}

// enterDefault runs the Default-state entry actions: disable every
// non-control endpoint, configure EP0 as a bidirectional control
// endpoint, reset the control engine's transfer state machine, and clear
// the packet-disable latch the SIE sets on every SETUP token.
func (s *Stack) enterDefault() error {
	for ep := uint8(1); ep < bd.MaxEndpoints; ep++ {
		s.sie.WriteEndpointControl(ep, hal.EndpointControl{Disabled: true})
	}
	s.sie.WriteEndpointControl(0, hal.EndpointControl{Bidirectional: true, Handshaking: true})
	if err := s.engine.Reset(); err != nil {
		return err
	}
	s.sie.ClearPacketDisable()
	s.state = StateDefault
	return nil
}

// BD returns the stack's buffer descriptor manager, for application code
// that sets up and drives its own non-control endpoints.
func (s *Stack) BD() *bd.Manager {
	return s.bd
}

// State returns the current device lifecycle state.
func (s *Stack) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetPowerState records how the device is currently powered, for
// GET_STATUS self-powered reporting by the control engine.
func (s *Stack) SetPowerState(p ctl.PowerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.power = p
}

// PowerState implements ctl.DeviceCore. It returns the value last set by
// SetPowerState.
func (s *Stack) PowerState() ctl.PowerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.power
}

// SetOnConfig registers the callback invoked when the host configures the
// device with a nonzero index.
func (s *Stack) SetOnConfig(fn ConfigFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConfig = fn
}

// SetOnTransaction registers the callback invoked for completed
// transactions on endpoints other than EP0.
func (s *Stack) SetOnTransaction(fn TransactionFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTransaction = fn
}

// SetCallback is a compatibility shim over SetOnConfig/SetOnTransaction for
// callers that prefer a single untyped registration point. fn must be a
// ConfigFunc for CBConfig or a TransactionFunc for CBTransaction; any other
// type is a BadParam error.
func (s *Stack) SetCallback(slot CallbackSlot, fn any) error {
	switch slot {
	case CBConfig:
		cb, ok := fn.(ConfigFunc)
		if !ok {
			return pkg.BadParam.Err()
		}
		s.SetOnConfig(cb)
		return nil
	case CBTransaction:
		cb, ok := fn.(TransactionFunc)
		if !ok {
			return pkg.BadParam.Err()
		}
		s.SetOnTransaction(cb)
		return nil
	default:
		return pkg.BadParam.Err()
	}
}

// ResolveTransaction reads the SIE's completion FIFO head and returns the
// BD handle it identifies. It exists for callers (and tests) that want to
// build an EventTransaction by hand; Work itself calls the same resolution
// internally as part of its interrupt poll, so application code normally
// never needs to call this directly.
func (s *Stack) ResolveTransaction() bd.Handle {
	return s.bd.HandleForTransaction(s.sie)
}

// PostEvent places ev in the single-slot mailbox. It is the only stack
// method meant to be called from interrupt context; it never blocks. If
// the mailbox already holds an undrained event, it returns pkg.Overflow
// and ev is dropped — the caller is expected to leave the underlying
// interrupt condition latched so it is observed again on the next poll.
func (s *Stack) PostEvent(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mailboxFull {
		return pkg.Overflow.Err()
	}
	s.mailbox = ev
	s.mailboxFull = true
	return nil
}

// checkInterrupt polls the SIE's interrupt-status register once and
// translates at most one latched condition into a posted event, mirroring
// usbCheckInterrupt in the reference implementation. RESET is cleared
// immediately upon posting. TRANSACTION's bit is deliberately left
// latched — clearing it in the SIE advances the completion FIFO to the
// next transaction, which must not happen until handleTransaction has
// read the current one's identity. An Overflow here just means the
// mailbox is still full from a prior post; the interrupt condition stays
// latched in the SIE and is observed again on the next call.
func (s *Stack) checkInterrupt() error {
	st := s.sie.InterruptStatus()
	if st.Reset {
		s.sie.ClearResetInterrupt()
		return s.PostEvent(Event{Kind: EventReset})
	}
	if st.Transaction {
		h := s.bd.HandleForTransaction(s.sie)
		return s.PostEvent(Event{Kind: EventTransaction, Handle: h})
	}
	return nil
}

// Work drains and dispatches events from the mailbox, polling the SIE's
// interrupt status after each one, until a drain finds the mailbox empty —
// mirroring usbWork's do/while over usbGetEvent+usbCheckInterrupt. It is
// meant to be called frequently from the application's main loop; it never
// blocks.
func (s *Stack) Work() error {
	for {
		s.mu.Lock()
		full := s.mailboxFull
		var ev Event
		if full {
			ev = s.mailbox
			s.mailboxFull = false
		}
		s.mu.Unlock()

		if full {
			if err := s.dispatch(ev); err != nil {
				return err
			}
		}

		if err := s.checkInterrupt(); err != nil && err != pkg.Overflow.Err() {
			return err
		}

		if !full {
			return nil
		}
	}
}

// dispatch runs the handler for one drained event.
func (s *Stack) dispatch(ev Event) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch ev.Kind {
	case EventNone:
		return nil

	case EventAttached:
		if state != StateUnattached {
			pkg.LogWarn(pkg.ComponentDevice, "Attached event dropped", "state", state)
			return nil
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.enterAttached()

	case EventDetached:
		s.sie.DisableUSB()
		s.mu.Lock()
		s.state = StateUnattached
		s.mu.Unlock()
		return nil

	case EventReset:
		if state == StateUnattached {
			pkg.LogWarn(pkg.ComponentDevice, "Reset event dropped while unattached")
			return nil
		}
		pkg.LogDebug(pkg.ComponentDevice, "bus reset")
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.enterDefault()

	case EventTransaction:
		return s.handleTransaction(ev.Handle)

	default:
		return pkg.BadParam.Err()
	}
}

func (s *Stack) handleTransaction(h bd.Handle) error {
	// The SIE latches the transaction-complete interrupt until the core
	// reads it away; do that last, so a second completion already queued
	// behind this one surfaces only after this one is fully processed.
	defer s.sie.ClearTransactionInterrupt()

	if h.Endpoint() == 0 {
		return s.engine.HandleTransaction(h)
	}

	s.mu.Lock()
	cb := s.onTransaction
	s.mu.Unlock()
	if cb != nil {
		cb(h)
	}
	return nil
}

// SetAddress implements ctl.DeviceCore.
func (s *Stack) SetAddress(addr uint8) error {
	s.sie.WriteAddress(addr)
	s.mu.Lock()
	defer s.mu.Unlock()
	if addr == 0 {
		s.state = StateDefault
	} else {
		s.state = StateAddressed
	}
	return nil
}

// SetConfiguration implements ctl.DeviceCore. It is legal only once the
// device has an address (Addressed or Configured); calling it from Default
// or earlier is a BadState error with no state change.
func (s *Stack) SetConfiguration(index uint8) error {
	s.mu.Lock()
	state := s.state
	cb := s.onConfig
	s.mu.Unlock()

	if state != StateAddressed && state != StateConfigured {
		return pkg.BadState.Err()
	}

	if index == 0 {
		s.mu.Lock()
		s.state = StateAddressed
		s.mu.Unlock()
		return nil
	}

	if cb != nil {
		if err := cb(index); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.state = StateConfigured
	s.mu.Unlock()
	return nil
}
