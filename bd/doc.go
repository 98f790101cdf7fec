// Package bd implements the buffer descriptor (BD) manager: the shared
// protocol between the CPU and the USB Serial Interface Engine (SIE) that
// describes per-endpoint-direction buffers in the dual-port endpoint arena.
//
// Each BD is transiently owned by either the CPU or the SIE, tracked by a
// UOWN flag; the rule enforced throughout this package is that the CPU must
// never read or write a BD's address, count, or buffer contents while the
// SIE owns it — GetBuf, GetSent, GetPID, SetSync and the arming methods
// return [pkg.Access] instead. Size and the simulator hook PeekArmed do not
// check ownership.
//
// BD sizes are never stored explicitly. A BD's capacity is the distance
// from its buffer offset to the next allocated BD's offset (or to the end
// of the allocated arena for the highest-numbered BD), which is only
// well-defined because Setup requires ascending-handle, OUT-before-IN
// allocation order.
package bd
