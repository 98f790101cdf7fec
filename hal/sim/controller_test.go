package sim

import (
	"testing"

	"github.com/maxvt/pic18usb/hal"
)

func TestController_ArenaSize(t *testing.T) {
	c := New(512)
	if got := c.ArenaSize(); got != 512 {
		t.Fatalf("ArenaSize() = %d, want 512", got)
	}
}

func TestController_TransactionFIFOOrdering(t *testing.T) {
	c := New(64)

	c.CompleteTransaction(0, hal.Out)
	c.CompleteTransaction(1, hal.In)

	if !c.InterruptStatus().Transaction {
		t.Fatal("expected transaction interrupt latched after first completion")
	}
	ep, dir := c.LastTransaction()
	if ep != 0 || dir != hal.Out {
		t.Fatalf("LastTransaction = (%d, %v), want (0, OUT)", ep, dir)
	}

	// The interrupt bit must stay set until explicitly cleared, even though
	// a second transaction is already queued behind it.
	ep, dir = c.LastTransaction()
	if ep != 0 || dir != hal.Out {
		t.Fatal("head transaction changed before interrupt was cleared")
	}

	c.ClearTransactionInterrupt()
	if !c.InterruptStatus().Transaction {
		t.Fatal("expected second transaction to re-latch the interrupt")
	}
	ep, dir = c.LastTransaction()
	if ep != 1 || dir != hal.In {
		t.Fatalf("LastTransaction after clear = (%d, %v), want (1, IN)", ep, dir)
	}

	c.ClearTransactionInterrupt()
	if c.InterruptStatus().Transaction {
		t.Fatal("expected interrupt to deassert once the FIFO is empty")
	}
}

func TestController_ResetInterrupt(t *testing.T) {
	c := New(64)
	if c.InterruptStatus().Reset {
		t.Fatal("expected no reset interrupt initially")
	}
	c.RaiseReset()
	if !c.InterruptStatus().Reset {
		t.Fatal("expected reset interrupt after RaiseReset")
	}
	if !c.SE0() {
		t.Fatal("expected SE0 to be asserted after RaiseReset")
	}
	c.ClearResetInterrupt()
	if c.InterruptStatus().Reset {
		t.Fatal("expected reset interrupt cleared")
	}
}

func TestController_WriteAddressAndEndpointControl(t *testing.T) {
	c := New(64)
	c.WriteAddress(0x42)
	if c.Address() != 0x42 {
		t.Fatalf("Address() = %#x, want 0x42", c.Address())
	}

	ctrl := hal.EndpointControl{Bidirectional: true, Handshaking: true}
	c.WriteEndpointControl(0, ctrl)
	if got := c.EndpointControl(0); got != ctrl {
		t.Fatalf("EndpointControl(0) = %+v, want %+v", got, ctrl)
	}
}
