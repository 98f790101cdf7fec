// Package ctl implements the control transfer engine running on endpoint
// zero: SETUP packet parsing, the Setup/Data/Status stage state machine,
// and the small set of standard device requests needed to enumerate
// (GET_STATUS, SET_ADDRESS, GET_DESCRIPTOR, SET_CONFIGURATION).
//
// The engine never touches the bus address register directly for
// SET_ADDRESS: per the USB specification the new address only takes effect
// once the Status stage of that request completes, so the engine stages
// the value and commits it through [DeviceCore.SetAddress] at that point,
// never at the SETUP stage itself.
package ctl
