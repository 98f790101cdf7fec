package pkg

import "fmt"

// Code is the stable, ABI-level result code returned by every fallible
// operation in the USB device core. It satisfies the error interface so
// callers can use it directly with errors.Is, or compare it against the
// named constants below.
//
// Code replaces the source driver's enum-and-global-errno convention: every
// operation returns a Code (nil-equivalent is Success), and no operation
// communicates failure through a side channel.
type Code uint8

// Result codes, in the order given by the external interface contract.
const (
	Success  Code = iota // Operation completed normally.
	BadParam             // Parameter is invalid or out of bounds. Programmer error.
	BadData              // Value received from the host is invalid. Host-induced.
	NoMem                // The endpoint arena cannot satisfy the request.
	Overflow             // The event mailbox already holds an undrained event.
	Access               // The BD is currently owned by the SIE. Transient; retry later.
	NotImpl              // Request or feature is not implemented.
	BadState             // Operation is not legal in the current device/transfer state.
	Error                // Unspecified internal error (e.g. out-of-order BD setup).
)

var codeText = [...]string{
	Success:  "success",
	BadParam: "bad parameter",
	BadData:  "bad data from host",
	NoMem:    "out of memory",
	Overflow: "event mailbox overflow",
	Access:   "BD owned by SIE",
	NotImpl:  "not implemented",
	BadState: "bad state for operation",
	Error:    "error",
}

// String returns a human-readable name for the code.
func (c Code) String() string {
	if int(c) < len(codeText) {
		return codeText[c]
	}
	return fmt.Sprintf("Code(%d)", uint8(c))
}

// Error implements the error interface. Success.Error() still returns a
// (non-empty) description; callers must not treat a non-nil Code value as
// an error without checking against Success — use Err instead.
func (c Code) Error() string {
	return c.String()
}

// Err returns nil when c is Success, and c itself (as an error) otherwise.
// This is the idiomatic boundary between the ABI's Code vocabulary and Go's
// error convention: internal code passes Code around when it wants to
// branch on the exact failure, and calls Err() at the API surface.
func (c Code) Err() error {
	if c == Success {
		return nil
	}
	return c
}

// Recoverable reports whether the tier of error represented by c is one the
// caller is expected to retry (Access, Overflow), as opposed to a
// programmer error that will not resolve itself.
func (c Code) Recoverable() bool {
	return c == Access || c == Overflow
}
