package ctl

import (
	"github.com/maxvt/pic18usb/bd"
	"github.com/maxvt/pic18usb/hal"
	"github.com/maxvt/pic18usb/pkg"
)

// DeviceCore is the small set of device-level actions the control engine
// triggers. A concrete device.Stack implements it; the engine never commits
// an address or a configuration through hal.SIE directly, since both have
// timing rules (address commit, configuration-dependent endpoint setup)
// that belong to the device layer.
type DeviceCore interface {
	// SetAddress commits addr to the bus address register. Called only
	// once the Status stage of a SET_ADDRESS request has completed, never
	// at the SETUP stage.
	SetAddress(addr uint8) error
	// SetConfiguration applies configuration index. index 0 deconfigures
	// the device.
	SetConfiguration(index uint8) error
	// PowerState reports how the device is currently powered, for
	// GET_STATUS(device) self-powered reporting.
	PowerState() PowerState
}

type stage uint8

const (
	stageIdle stage = iota
	stageDataIn
	stageStatusIn
	stageStatusOut
)

// Engine drives the control transfer state machine on endpoint 0.
type Engine struct {
	bd          *bd.Manager
	sie         hal.SIE
	descriptors DescriptorTable
	core        DeviceCore

	ep0Size int
	out, in bd.Handle

	stage       stage
	pendingData []byte

	pendingAddress uint8
	haveAddress    bool
}

// NewEngine creates a control engine over the given BD manager and SIE,
// serving descriptors from the supplied table through core. ep0Size is the
// maximum packet size for endpoint 0 (8, 16, 32, or 64 per the USB
// specification; the reference hardware this module targets uses 8).
func NewEngine(m *bd.Manager, sie hal.SIE, descriptors DescriptorTable, core DeviceCore, ep0Size int) *Engine {
	return &Engine{
		bd:          m,
		sie:         sie,
		descriptors: descriptors,
		core:        core,
		ep0Size:     ep0Size,
	}
}

// Init allocates the endpoint 0 buffer descriptors and arms them for the
// first SETUP packet. It is an application-startup operation, called
// exactly once after the BD manager itself has been initialized — EP0's
// handles do not change across a bus reset, so a reset re-runs Reset, not
// Init; calling Init a second time fails the underlying BD allocation.
func (e *Engine) Init() error {
	out, err := e.bd.Setup(0, hal.Out, e.ep0Size)
	if err != nil {
		return err
	}
	in, err := e.bd.Setup(0, hal.In, e.ep0Size)
	if err != nil {
		return err
	}
	e.out, e.in = out, in
	return e.Reset()
}

// Reset aborts any in-flight control transfer and stalls both EP0
// endpoints, so that only the next SETUP token (which bypasses STALL on
// the reference hardware) is accepted. It must be called every time the
// device core processes a bus reset — EP0's buffer descriptors stay
// allocated across resets, only their arm state and the transfer stage
// machine reset. Claim reclaims both BDs unconditionally first, since a
// reset can interrupt a BD mid-transfer and leave it SIE-owned.
func (e *Engine) Reset() error {
	e.stage = stageIdle
	e.pendingData = nil
	e.haveAddress = false
	if err := e.bd.Claim(e.out); err != nil {
		return err
	}
	if err := e.bd.Claim(e.in); err != nil {
		return err
	}
	if err := e.bd.Stall(e.out); err != nil {
		return err
	}
	return e.bd.Stall(e.in)
}

// HandleTransaction processes one completed BD transaction. h must be the
// handle the device core resolved from the SIE's LastTransaction fields.
// Handles outside endpoint 0 are not this engine's concern and are ignored.
func (e *Engine) HandleTransaction(h bd.Handle) error {
	if h.Endpoint() != 0 {
		return nil
	}

	pid, err := e.bd.GetPID(h)
	if err != nil {
		return err
	}

	if pid == bd.PIDSetup {
		return e.handleSetup()
	}
	if h == e.out {
		return e.handleStatusOut()
	}
	return e.handleIn()
}

func (e *Engine) handleSetup() error {
	// usbCtlHandleTransaction clears the SIE's packet-disable latch
	// unconditionally at the end of the SETUP branch, regardless of which
	// request was dispatched or whether it stalled; defer mirrors that.
	defer e.sie.ClearPacketDisable()

	// A SETUP token bypasses STALL on the reference hardware; mirror that
	// by reclaiming IN unconditionally before dispatching the new request.
	_ = e.bd.Claim(e.in)

	buf, err := e.bd.GetBuf(e.out)
	if err != nil {
		return err
	}
	sp, err := ParseSetupPacket(buf)
	if err != nil {
		return e.stallAndRearm()
	}

	e.stage = stageIdle
	e.pendingData = nil

	if sp.Type() != 0 {
		pkg.LogWarn(pkg.ComponentControl, "non-standard request type", "type", sp.Type())
		return e.stallAndRearm()
	}

	switch sp.Request {
	case ReqGetStatus:
		var status [2]byte
		if e.core.PowerState() == PowerSelf {
			status[0] |= 1 << 0
		}
		return e.beginDataIn(status[:], sp.Length)

	case ReqGetDescriptor:
		entry, ok := e.descriptors.Lookup(sp.DescriptorType(), sp.DescriptorIndex())
		if !ok {
			pkg.LogWarn(pkg.ComponentControl, "unknown descriptor", "type", sp.DescriptorType(), "index", sp.DescriptorIndex())
			return e.stallAndRearm()
		}
		return e.beginDataIn(entry.Data, sp.Length)

	case ReqSetAddress:
		addr := uint8(sp.Value)
		if addr > 127 {
			return e.stallAndRearm()
		}
		e.pendingAddress = addr
		e.haveAddress = true
		return e.beginStatusIn()

	case ReqSetConfiguration:
		index := uint8(sp.Value)
		if err := e.core.SetConfiguration(index); err != nil {
			return e.stallAndRearm()
		}
		return e.beginStatusIn()

	default:
		pkg.LogWarn(pkg.ComponentControl, "unsupported standard request", "request", sp.Request)
		return e.stallAndRearm()
	}
}

func (e *Engine) stallAndRearm() error {
	if err := e.bd.Stall(e.in); err != nil {
		return err
	}
	return e.bd.Stall(e.out)
}

// beginDataIn starts the Data stage of a control read, truncating data to
// the host-requested length, and re-arms OUT to catch the eventual Status
// stage ZLP.
func (e *Engine) beginDataIn(data []byte, requestedLength uint16) error {
	if len(data) > int(requestedLength) {
		data = data[:requestedLength]
	}
	e.pendingData = data
	e.stage = stageDataIn
	if err := e.armDataChunk(); err != nil {
		return err
	}
	return e.bd.Receive(e.out)
}

// beginStatusIn starts the Status stage of a no-data control transfer: a
// zero-length IN packet acknowledging the request. OUT is stalled, not
// armed to receive — there is no Data stage for a SETUP token to follow,
// so nothing but another SETUP should be accepted before the Status IN
// completes.
func (e *Engine) beginStatusIn() error {
	e.stage = stageStatusIn
	if err := e.bd.Send(e.in, 0); err != nil {
		return err
	}
	return e.bd.Stall(e.out)
}

func (e *Engine) armDataChunk() error {
	n := len(e.pendingData)
	if n > e.ep0Size {
		n = e.ep0Size
	}
	buf, err := e.bd.GetBuf(e.in)
	if err != nil {
		return err
	}
	copy(buf, e.pendingData[:n])
	e.pendingData = e.pendingData[n:]
	return e.bd.Send(e.in, n)
}

// handleIn processes a completed EP0 IN transaction.
func (e *Engine) handleIn() error {
	switch e.stage {
	case stageDataIn:
		sent, err := e.bd.GetSent(e.in)
		if err != nil {
			return err
		}
		capacity, err := e.bd.Size(e.in)
		if err != nil {
			return err
		}
		if sent < capacity {
			// A short packet ends the Data stage. Everything that could
			// fit was supposed to have been sent already; if data is
			// still queued here, the invariant is violated. Either way,
			// IN is stalled to complete this side of the transaction;
			// OUT is left alone; it is still armed from beginDataIn to
			// catch the Status-stage ZLP.
			if len(e.pendingData) != 0 {
				pkg.LogError(pkg.ComponentControl, "short IN packet with data still pending",
					"sent", sent, "remaining", len(e.pendingData))
				e.stage = stageIdle
			} else {
				e.stage = stageStatusOut
			}
			return e.bd.Stall(e.in)
		}
		// sent == capacity: send the next chunk, which is a zero-length
		// packet if this full packet exhausted pendingData (the data,
		// after truncation to the requested length, was a multiple of the
		// packet size).
		return e.armDataChunk()

	case stageStatusIn:
		e.stage = stageIdle
		if e.haveAddress {
			e.haveAddress = false
			return e.core.SetAddress(e.pendingAddress)
		}
		return nil

	default:
		return e.bd.Stall(e.in)
	}
}

// handleStatusOut processes a completed EP0 OUT transaction that is not a
// SETUP. Two cases are legitimate: the Status-stage ZLP following a control
// read, and a host that abandons a control read mid Data-stage by sending an
// OUT token instead of the next IN token it owes us — a premature abort, not
// an error condition, so no code is returned for it. A non-empty OUT during
// a Data stage would be the data of a control write, which this engine
// never enters a stage for (no standard request this engine dispatches has
// an OUT data stage), so that branch of the original state table is dead
// code here, not silently reachable. Either way OUT is re-stalled at the
// end, so only a SETUP is accepted next.
func (e *Engine) handleStatusOut() error {
	switch e.stage {
	case stageStatusOut:
		// Control read's Status stage ZLP arrived: transfer complete.
		e.stage = stageIdle

	case stageDataIn:
		// Host sent OUT instead of IN mid Data-stage: abandon the transfer.
		pkg.LogWarn(pkg.ComponentControl, "premature OUT during Data-In stage, aborting")
		e.stage = stageIdle
		e.pendingData = nil
	}
	return e.bd.Stall(e.out)
}

// EP0 returns the OUT and IN handles this engine set up, for device-layer
// wiring (e.g. recognizing which completed transaction belongs to control).
func (e *Engine) EP0() (out, in bd.Handle) {
	return e.out, e.in
}
