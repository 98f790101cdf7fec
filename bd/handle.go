package bd

import (
	"fmt"

	"github.com/maxvt/pic18usb/hal"
	"github.com/maxvt/pic18usb/pkg"
)

// MaxEndpoints is the number of distinct endpoint numbers the BD table
// supports (USB allows endpoints 0-15).
const MaxEndpoints = 16

// NumHandles is the number of BD slots in the table: one OUT and one IN per
// endpoint.
const NumHandles = MaxEndpoints * 2

// Handle is an opaque identifier for a single (endpoint, direction) buffer
// descriptor. It encodes (endpoint<<1)|direction, which is also the formula
// the SIE uses to report completed transactions — the same encoding is used
// both to address a BD and to recognize one reported by hardware.
type Handle uint8

// Endpoint returns the endpoint number encoded in the handle.
func (h Handle) Endpoint() uint8 {
	return uint8(h) >> 1
}

// Direction returns the direction encoded in the handle.
func (h Handle) Direction() hal.Direction {
	if uint8(h)&1 != 0 {
		return hal.In
	}
	return hal.Out
}

// String renders the handle as "epN OUT"/"epN IN".
func (h Handle) String() string {
	return fmt.Sprintf("ep%d %s", h.Endpoint(), h.Direction())
}

// HandleFor encodes the handle for a given endpoint and direction. It is a
// BadParam error if endpoint is out of range.
func HandleFor(endpoint uint8, dir hal.Direction) (Handle, error) {
	if endpoint >= MaxEndpoints {
		return 0, pkg.BadParam.Err()
	}
	h := Handle(endpoint)<<1 | Handle(dir&1)
	return h, nil
}
