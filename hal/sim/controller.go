package sim

import (
	"sync"

	"github.com/maxvt/pic18usb/hal"
	"github.com/maxvt/pic18usb/pkg"
)

// Transaction describes one completed SIE transaction to be queued for the
// core to observe through InterruptStatus/LastTransaction.
type Transaction struct {
	Endpoint uint8
	Dir      hal.Direction
}

// Controller is an in-memory hal.SIE. A single completed transaction sits
// in a one-deep "completion FIFO" of its own (mirroring real silicon, which
// only exposes the head of its FIFO until the core clears the interrupt),
// fed by pending, a software queue of not-yet-surfaced Transactions.
type Controller struct {
	mu sync.Mutex

	arenaSize int
	enabled   bool
	address   uint8
	epCtrl    [16]hal.EndpointControl
	se0       bool

	resetLatched bool
	trnLatched   bool
	head         Transaction
	pending      []Transaction
}

// New creates a simulated SIE with the given endpoint arena size.
func New(arenaSize int) *Controller {
	return &Controller{arenaSize: arenaSize}
}

func (c *Controller) EnableUSB() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = true
	pkg.LogDebug(pkg.ComponentHAL, "USB enabled")
}

func (c *Controller) DisableUSB() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = false
	pkg.LogDebug(pkg.ComponentHAL, "USB disabled")
}

func (c *Controller) InterruptStatus() hal.InterruptStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return hal.InterruptStatus{Reset: c.resetLatched, Transaction: c.trnLatched}
}

func (c *Controller) ClearResetInterrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLatched = false
}

// ClearTransactionInterrupt clears the latched transaction condition and
// advances the completion FIFO: the next pending Transaction, if any,
// becomes the new head and immediately re-latches the interrupt.
func (c *Controller) ClearTransactionInterrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trnLatched = false
	if len(c.pending) > 0 {
		c.head = c.pending[0]
		c.pending = c.pending[1:]
		c.trnLatched = true
	}
}

func (c *Controller) LastTransaction() (uint8, hal.Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head.Endpoint, c.head.Dir
}

func (c *Controller) SE0() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.se0
}

func (c *Controller) WriteAddress(address uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.address = address
}

func (c *Controller) WriteEndpointControl(endpoint uint8, ctrl hal.EndpointControl) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(endpoint) < len(c.epCtrl) {
		c.epCtrl[endpoint] = ctrl
	}
}

func (c *Controller) ClearPacketDisable() {
	// No latch is modeled separately from transaction delivery; nothing to do.
}

func (c *Controller) ArenaSize() int {
	return c.arenaSize
}

// Address returns the last value written by WriteAddress, for assertions in
// tests that exercise the control engine's address-commit timing.
func (c *Controller) Address() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

// EndpointControl returns the last configuration written for endpoint, for
// test assertions.
func (c *Controller) EndpointControl(endpoint uint8) hal.EndpointControl {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(endpoint) >= len(c.epCtrl) {
		return hal.EndpointControl{}
	}
	return c.epCtrl[endpoint]
}

// RaiseReset latches a bus-reset interrupt condition and forces SE0, as
// real hardware does when it detects SE0 followed by a RESET token.
func (c *Controller) RaiseReset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLatched = true
	c.se0 = true
}

// SetSE0 forces the simulated bus's SE0 condition independently of a reset,
// for exercising the attach-sequence SE0 check.
func (c *Controller) SetSE0(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.se0 = v
}

// CompleteTransaction queues a completed transaction for endpoint/dir. If
// the completion FIFO is empty it becomes the immediately-visible head and
// latches the transaction interrupt; otherwise it waits behind whatever
// transaction the core has not yet cleared, exactly as the real SIE's FIFO
// would withhold a second completion until the first is acknowledged.
func (c *Controller) CompleteTransaction(endpoint uint8, dir hal.Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := Transaction{Endpoint: endpoint, Dir: dir}
	if !c.trnLatched {
		c.head = t
		c.trnLatched = true
		return
	}
	c.pending = append(c.pending, t)
}
