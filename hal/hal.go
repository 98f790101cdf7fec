// Package hal defines the Hardware Abstraction Layer contract consumed by
// the device core. A HAL implementation is a thin, policy-free facade over
// a Serial Interface Engine (SIE) peripheral and the dual-port memory
// region it shares with the CPU; it performs I/O only and makes no
// enumeration or protocol decisions.
//
// Production implementations (register-level drivers for a specific MCU
// family) are out of scope for this module. [github.com/maxvt/pic18usb/hal/sim]
// provides a software SIE for tests and for integrators without
// target hardware.
package hal

// Direction of an endpoint, matching the BD handle encoding's direction
// bit: 0 = OUT (host to device), 1 = IN (device to host).
type Direction uint8

// Endpoint directions.
const (
	Out Direction = 0
	In  Direction = 1
)

// String returns "OUT" or "IN".
func (d Direction) String() string {
	if d == In {
		return "IN"
	}
	return "OUT"
}

// InterruptStatus reports which SIE interrupt conditions are currently
// latched. Only the two conditions the core acts on are exposed; any other
// bits the real hardware raises are the HAL's concern, not the core's.
type InterruptStatus struct {
	Reset       bool // Bus reset (SE0 then a RESET token) detected.
	Transaction bool // A BD transaction has completed (TRN).
}

// EndpointControl configures one entry of the SIE's per-endpoint control
// array (UEPn on the reference hardware).
type EndpointControl struct {
	Bidirectional bool // Endpoint accepts both IN and OUT tokens.
	Handshaking   bool // Endpoint does USB handshaking (control/bulk/interrupt).
	Disabled      bool // Endpoint is disabled entirely.
}

// SIE is the Hardware Abstraction Layer interface the device core consumes.
// All methods are called from the single cooperative thread of execution
// described by the core's concurrency model; none may block.
type SIE interface {
	// EnableUSB enables the USB module so it begins responding on the bus.
	EnableUSB()

	// DisableUSB disables the USB module, dropping off the bus.
	DisableUSB()

	// InterruptStatus reports latched interrupt conditions. It does not
	// clear any of them.
	InterruptStatus() InterruptStatus

	// ClearResetInterrupt clears the latched bus-reset condition.
	ClearResetInterrupt()

	// ClearTransactionInterrupt clears the latched transaction-complete
	// condition, which advances the SIE's completion FIFO. Must only be
	// called after the completed transaction's identity (LastTransaction)
	// has been consumed.
	ClearTransactionInterrupt()

	// LastTransaction returns the endpoint number and direction of the BD
	// that completed the transaction currently at the head of the SIE's
	// completion FIFO (USTAT).
	LastTransaction() (endpoint uint8, dir Direction)

	// SE0 reports whether the bus is currently in the Single-Ended Zero
	// condition (used only during the attach sequence to avoid mistaking a
	// boot-time SE0 for a host-issued reset).
	SE0() bool

	// WriteAddress writes the device's bus address register.
	WriteAddress(address uint8)

	// WriteEndpointControl configures one of the 16 per-endpoint control
	// slots.
	WriteEndpointControl(endpoint uint8, ctrl EndpointControl)

	// ClearPacketDisable clears the latch that the hardware sets on every
	// SETUP token, which otherwise blocks further packet processing.
	ClearPacketDisable()

	// ArenaSize returns the capacity, in bytes, of the dual-port endpoint
	// buffer arena. Register-level bit-twiddling to map that memory is out
	// of scope for this module (see package doc); the BD manager allocates
	// its own backing buffer of this size and treats it as the arena.
	ArenaSize() int
}
