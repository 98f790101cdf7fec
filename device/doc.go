// Package device wires a hal.SIE, a bd.Manager, and a ctl.Engine into a
// single device state machine: the enumeration lifecycle (Unattached,
// Attached, Default, Addressed, Configured), a single-slot event mailbox
// fed by interrupt-time code, and a work() pump that drains it from the
// main loop.
//
// The core never blocks and never allocates once Init has run; the single
// event slot is deliberately shallow, matching the reference hardware's
// single pending interrupt condition of each kind at a time. A producer
// that posts a second event before the core has drained the first gets
// pkg.Overflow back and must retry, rather than the core silently
// coalescing or queuing events.
package device
