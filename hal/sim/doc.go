// Package sim is a software stand-in for a real USB Serial Interface Engine.
// It implements [github.com/maxvt/pic18usb/hal.SIE] entirely in memory, so
// tests (and any integrator without silicon in hand) can drive a
// [github.com/maxvt/pic18usb/device.Stack] without a register-level driver.
//
// Transaction completion is triggered synchronously, by calling
// Controller.CompleteTransaction directly from a test goroutine. Its
// one-deep completion FIFO (head plus a pending queue) still models the
// real SIE's behavior of latching one transaction at a time and only
// surfacing the next once the core clears the interrupt for the last.
package sim
