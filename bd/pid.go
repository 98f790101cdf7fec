package bd

// PID is a USB packet identifier, as recorded by the SIE in a completed
// BD's status byte.
type PID uint8

// Packet identifiers relevant to the control engine. Only SETUP is tested
// against by this module; the remainder are documented for completeness
// since a HAL simulator may report any of them.
const (
	PIDOut   PID = 0x1
	PIDIn    PID = 0x9
	PIDSOF   PID = 0x5
	PIDSetup PID = 0xD
	PIDData0 PID = 0x3
	PIDData1 PID = 0xB
	PIDAck   PID = 0x2
	PIDNak   PID = 0xA
	PIDStall PID = 0xE
)

// DataToggle selects the DATA0/DATA1 synchronization value for a BD armed
// with data-toggle checking enabled.
type DataToggle uint8

// Data toggle values.
const (
	DATA0 DataToggle = 0
	DATA1 DataToggle = 1
)
