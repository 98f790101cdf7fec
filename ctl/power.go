package ctl

// PowerState reports how the device is currently powered, which the
// application layer feeds in from whatever senses VBUS or self-power; the
// device core stores the value and the engine reads it through
// DeviceCore.PowerState for GET_STATUS self-powered reporting; it never
// decides power policy itself.
type PowerState uint8

// Power states.
const (
	PowerBus PowerState = iota
	PowerSelf
)
