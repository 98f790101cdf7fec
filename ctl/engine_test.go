package ctl

import (
	"testing"

	"github.com/maxvt/pic18usb/bd"
	"github.com/maxvt/pic18usb/hal"
	"github.com/maxvt/pic18usb/hal/sim"
)

// fakeCore records the calls the engine makes through DeviceCore, without
// touching a real hal.SIE, so tests can assert commit timing directly.
type fakeCore struct {
	addresses []uint8
	configs   []uint8
	failNext  bool
	power     PowerState
}

func (f *fakeCore) SetAddress(addr uint8) error {
	f.addresses = append(f.addresses, addr)
	return nil
}

func (f *fakeCore) SetConfiguration(index uint8) error {
	if f.failNext {
		f.failNext = false
		return errBadConfig
	}
	f.configs = append(f.configs, index)
	return nil
}

func (f *fakeCore) PowerState() PowerState {
	return f.power
}

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const errBadConfig sentinelError = "bad configuration index"

func deviceDescriptor() []byte {
	return []byte{18, 1, 0x00, 0x02, 0, 0, 0, 8, 0x34, 0x12, 0x78, 0x56, 0, 1, 0, 0, 0, 1}
}

func newTestEngine(t *testing.T) (*Engine, *bd.Manager, *sim.Controller, *fakeCore) {
	t.Helper()
	core := &fakeCore{}
	controller := sim.New(256)
	m := bd.NewManager(controller.ArenaSize())
	descriptors := DescriptorTable{
		{Type: DescriptorDevice, Index: 0, Data: deviceDescriptor()},
	}
	e := NewEngine(m, controller, descriptors, core, 8)
	if err := e.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return e, m, controller, core
}

// sendSetup delivers a SETUP packet to out, which Init (or the previous
// cycle) has already handed to the SIE, stalled or armed to receive (a
// SETUP token bypasses STALL), then dispatches it to the engine exactly as
// the device core would after a TRN interrupt.
func sendSetup(t *testing.T, e *Engine, m *bd.Manager, out bd.Handle, sp SetupPacket) {
	t.Helper()
	raw := []byte{
		sp.RequestType, sp.Request,
		byte(sp.Value), byte(sp.Value >> 8),
		byte(sp.Index), byte(sp.Index >> 8),
		byte(sp.Length), byte(sp.Length >> 8),
	}
	if err := m.CompleteTransaction(out, bd.PIDSetup, len(raw)); err != nil {
		t.Fatalf("CompleteTransaction(SETUP): %v", err)
	}
	ob, err := m.GetBuf(out)
	if err != nil {
		t.Fatalf("GetBuf(out): %v", err)
	}
	copy(ob, raw)
	if err := e.HandleTransaction(out); err != nil {
		t.Fatalf("HandleTransaction(SETUP): %v", err)
	}
}

func completeIn(t *testing.T, e *Engine, m *bd.Manager, in bd.Handle) {
	t.Helper()
	sent, err := m.PeekArmed(in)
	if err != nil {
		t.Fatalf("PeekArmed: %v", err)
	}
	if err := m.CompleteTransaction(in, bd.PIDIn, sent); err != nil {
		t.Fatalf("CompleteTransaction(IN): %v", err)
	}
	if err := e.HandleTransaction(in); err != nil {
		t.Fatalf("HandleTransaction(IN): %v", err)
	}
}

func completeStatusOut(t *testing.T, e *Engine, m *bd.Manager, out bd.Handle) {
	t.Helper()
	if err := m.CompleteTransaction(out, bd.PIDOut, 0); err != nil {
		t.Fatalf("CompleteTransaction(status OUT): %v", err)
	}
	if err := e.HandleTransaction(out); err != nil {
		t.Fatalf("HandleTransaction(status OUT): %v", err)
	}
}

func TestEngine_GetDescriptorDevice(t *testing.T) {
	e, m, _, _ := newTestEngine(t)
	out, in := e.EP0()

	sendSetup(t, e, m, out, SetupPacket{
		RequestType: 0x80,
		Request:     ReqGetDescriptor,
		Value:       uint16(DescriptorDevice) << 8,
		Length:      18,
	})

	buf, err := m.GetBuf(in)
	if err == nil {
		t.Fatalf("expected IN to be SIE-owned after arming data stage, got buf=%v", buf)
	}

	// First chunk: 8 bytes (ep0 max packet size).
	completeIn(t, e, m, in)
	completeIn(t, e, m, in) // second 8-byte chunk
	completeIn(t, e, m, in) // final 2-byte chunk, ends data stage

	completeStatusOut(t, e, m, out)
}

func TestEngine_GetStatus(t *testing.T) {
	e, m, _, _ := newTestEngine(t)
	out, in := e.EP0()

	sendSetup(t, e, m, out, SetupPacket{
		RequestType: 0x80,
		Request:     ReqGetStatus,
		Length:      2,
	})

	armed, err := m.PeekArmed(in)
	if err != nil {
		t.Fatalf("PeekArmed: %v", err)
	}
	if armed != 2 {
		t.Fatalf("GET_STATUS response length = %d, want 2", armed)
	}
	completeIn(t, e, m, in)
	completeStatusOut(t, e, m, out)
}

func TestEngine_GetStatusReportsSelfPowered(t *testing.T) {
	e, m, _, core := newTestEngine(t)
	out, in := e.EP0()
	core.power = PowerSelf

	sendSetup(t, e, m, out, SetupPacket{
		RequestType: 0x80,
		Request:     ReqGetStatus,
		Length:      2,
	})

	armed, err := m.PeekArmed(in)
	if err != nil {
		t.Fatalf("PeekArmed: %v", err)
	}
	if armed != 2 {
		t.Fatalf("GET_STATUS response length = %d, want 2", armed)
	}

	// Hand the BD back to the CPU side, as the SIE would on packet
	// completion, to inspect the bytes the engine armed before the next
	// stage overwrites them.
	if err := m.CompleteTransaction(in, bd.PIDIn, armed); err != nil {
		t.Fatalf("CompleteTransaction(IN): %v", err)
	}
	buf, err := m.GetBuf(in)
	if err != nil {
		t.Fatalf("GetBuf(in): %v", err)
	}
	if buf[0]&0x01 == 0 {
		t.Fatalf("GET_STATUS response = %v, want self-powered bit set", buf[:2])
	}

	if err := e.HandleTransaction(in); err != nil {
		t.Fatalf("HandleTransaction(IN): %v", err)
	}
	completeStatusOut(t, e, m, out)
}

func TestEngine_SetAddressCommitsAtStatus(t *testing.T) {
	e, m, controller, core := newTestEngine(t)
	out, in := e.EP0()
	_ = controller

	sendSetup(t, e, m, out, SetupPacket{
		RequestType: 0x00,
		Request:     ReqSetAddress,
		Value:       42,
	})

	if len(core.addresses) != 0 {
		t.Fatalf("SetAddress called before Status stage completed: %v", core.addresses)
	}

	completeIn(t, e, m, in) // Status stage IN (ZLP)

	if len(core.addresses) != 1 || core.addresses[0] != 42 {
		t.Fatalf("addresses = %v, want [42] after Status stage", core.addresses)
	}
}

func TestEngine_SetAddressRejectsOutOfRange(t *testing.T) {
	e, m, _, core := newTestEngine(t)
	out, in := e.EP0()

	sendSetup(t, e, m, out, SetupPacket{
		RequestType: 0x00,
		Request:     ReqSetAddress,
		Value:       200,
	})

	if !m.IsStalled(in) {
		t.Fatal("expected IN to be stalled for an out-of-range address")
	}
	if len(core.addresses) != 0 {
		t.Fatalf("SetAddress should not have been called: %v", core.addresses)
	}
}

func TestEngine_UnknownDescriptorStalls(t *testing.T) {
	e, m, _, _ := newTestEngine(t)
	out, in := e.EP0()

	sendSetup(t, e, m, out, SetupPacket{
		RequestType: 0x80,
		Request:     ReqGetDescriptor,
		Value:       uint16(DescriptorString) << 8,
		Length:      255,
	})

	if !m.IsStalled(in) {
		t.Fatal("expected IN to be stalled for an unknown descriptor")
	}
}

func TestEngine_SetConfiguration(t *testing.T) {
	e, m, _, core := newTestEngine(t)
	out, in := e.EP0()

	sendSetup(t, e, m, out, SetupPacket{
		RequestType: 0x00,
		Request:     ReqSetConfiguration,
		Value:       1,
	})
	completeIn(t, e, m, in)

	if len(core.configs) != 1 || core.configs[0] != 1 {
		t.Fatalf("configs = %v, want [1]", core.configs)
	}
}

func TestSetupPacket_FieldAccessors(t *testing.T) {
	raw := []byte{0xA1, ReqGetDescriptor, 0x00, uint8(DescriptorConfiguration), 0x00, 0x00, 0x09, 0x00}
	sp, err := ParseSetupPacket(raw)
	if err != nil {
		t.Fatalf("ParseSetupPacket: %v", err)
	}
	if sp.Direction() != hal.In {
		t.Fatalf("Direction() = %v, want In", sp.Direction())
	}
	if sp.Type() != 1 {
		t.Fatalf("Type() = %d, want 1 (class)", sp.Type())
	}
	if sp.Recipient() != 1 {
		t.Fatalf("Recipient() = %d, want 1 (interface)", sp.Recipient())
	}
	if sp.DescriptorType() != DescriptorConfiguration {
		t.Fatalf("DescriptorType() = %d, want %d", sp.DescriptorType(), DescriptorConfiguration)
	}
	if sp.Length != 9 {
		t.Fatalf("Length = %d, want 9", sp.Length)
	}
}
