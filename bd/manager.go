package bd

import (
	"sync"

	"github.com/maxvt/pic18usb/hal"
	"github.com/maxvt/pic18usb/pkg"
)

// owner identifies which side of the dual-port memory currently may touch
// a BD's address/count/buffer fields.
type owner uint8

const (
	ownerCPU owner = iota
	ownerSIE
)

// entry is one buffer descriptor. All mutable state lives behind mu so a
// simulated SIE (hal/sim) can complete transactions from a background
// goroutine without racing the manager's own goroutine.
type entry struct {
	mu        sync.Mutex
	owner     owner
	allocated bool // true once Setup has assigned addr; addr alone cannot
	// serve as the "unset" sentinel because arena offsets legitimately
	// start at 0 for the first allocated BD.
	addr   int // byte offset into the arena
	bstall bool
	dtsen  bool
	dts    DataToggle
	pid    PID
	count  int // bytes armed (CPU side) or transferred (after SIE completion)
}

// Manager owns the buffer descriptor table and the endpoint arena. It is
// the sole mediator of BD ownership hand-off between the CPU and the SIE.
type Manager struct {
	arena        []byte
	endOfArena   int // bump pointer: end of allocated region
	highestSetup Handle
	entries      [NumHandles]entry
}

// NewManager creates a BD manager backed by an arena of the given size in
// bytes (typically hal.SIE.ArenaSize()).
func NewManager(arenaSize int) *Manager {
	m := &Manager{arena: make([]byte, arenaSize)}
	m.Init()
	return m
}

// Init zeroes the BD table and resets the arena bump pointer. It must be
// called before any BD is set up, and may be called again to discard all
// allocations; a bus reset does not call it, since EP0's BDs stay
// allocated across resets.
func (m *Manager) Init() {
	for i := range m.entries {
		e := &m.entries[i]
		e.mu.Lock()
		e.owner = ownerCPU
		e.allocated = false
		e.addr = 0
		e.bstall = false
		e.dtsen = false
		e.dts = DATA0
		e.pid = 0
		e.count = 0
		e.mu.Unlock()
	}
	m.endOfArena = 0
	m.highestSetup = 0
}

// HandleForEndpoint is the pure (endpoint, direction) -> handle encoding.
func (m *Manager) HandleForEndpoint(endpoint uint8, dir hal.Direction) (Handle, error) {
	return HandleFor(endpoint, dir)
}

// HandleForTransaction resolves the SIE's last-completed-transaction fields
// into the BD handle they identify.
func (m *Manager) HandleForTransaction(sie hal.SIE) Handle {
	ep, dir := sie.LastTransaction()
	h, _ := HandleFor(ep, dir)
	return h
}

func (m *Manager) entryFor(h Handle) (*entry, error) {
	if int(h) >= NumHandles {
		return nil, pkg.BadParam.Err()
	}
	return &m.entries[h], nil
}

// Setup allocates an endpoint buffer of size bytes and assigns it to h.
// BDs must be set up in ascending handle order (OUT before IN, for
// endpoints in ascending number); setting up the same BD twice, or setting
// up out of order, fails with pkg.Error.
func (m *Manager) Setup(endpoint uint8, dir hal.Direction, size int) (Handle, error) {
	if endpoint >= MaxEndpoints || size <= 0 {
		return 0, pkg.BadParam.Err()
	}

	h, err := HandleFor(endpoint, dir)
	if err != nil {
		return 0, err
	}

	if h < m.highestSetup {
		pkg.LogWarn(pkg.ComponentBD, "out-of-order BD setup", "handle", h)
		return 0, pkg.Error.Err()
	}

	e := &m.entries[h]
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.allocated {
		pkg.LogWarn(pkg.ComponentBD, "BD already set up", "handle", h)
		return 0, pkg.Error.Err()
	}

	if len(m.arena)-m.endOfArena < size {
		return 0, pkg.NoMem.Err()
	}

	e.addr = m.endOfArena
	e.allocated = true
	m.endOfArena += size
	m.highestSetup = h

	// Arm the initial count so that if the BD is immediately handed to the
	// SIE for OUT, the full capacity is available to receive into.
	e.count = size

	pkg.LogDebug(pkg.ComponentBD, "BD set up", "handle", h, "size", size)
	return h, nil
}

// size computes the implicit capacity of h: the distance to the next
// allocated BD's buffer address, or to the end of the allocated arena for
// the highest-numbered BD. Must be called with e.mu held.
func (m *Manager) size(h Handle, e *entry) int {
	for next := h + 1; next <= m.highestSetup; next++ {
		ne := &m.entries[next]
		ne.mu.Lock()
		allocated := ne.allocated
		addr := ne.addr
		ne.mu.Unlock()
		if allocated {
			return addr - e.addr
		}
	}
	return m.endOfArena - e.addr
}

// Size returns the implicit capacity of h.
func (m *Manager) Size(h Handle) (int, error) {
	e, err := m.entryFor(h)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.allocated {
		return 0, pkg.Error.Err()
	}
	return m.size(h, e), nil
}

// GetBuf returns the BD's buffer and the size meaningful for its direction:
// for OUT, the number of bytes actually received; for IN, the buffer
// capacity. It fails with pkg.Access while the SIE owns the BD.
func (m *Manager) GetBuf(h Handle) ([]byte, error) {
	e, err := m.entryFor(h)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.allocated {
		return nil, pkg.Error.Err()
	}
	if e.owner == ownerSIE {
		return nil, pkg.Access.Err()
	}

	if h.Direction() == hal.Out {
		return m.arena[e.addr : e.addr+e.count], nil
	}
	size := m.size(h, e)
	return m.arena[e.addr : e.addr+size], nil
}

// GetSent returns the number of bytes the SIE wrote during the last
// completed IN transaction. It is BadParam for an OUT handle.
func (m *Manager) GetSent(h Handle) (int, error) {
	if h.Direction() != hal.In {
		return 0, pkg.BadParam.Err()
	}
	e, err := m.entryFor(h)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.owner == ownerSIE {
		return 0, pkg.Access.Err()
	}
	return e.count, nil
}

// GetPID returns the token PID the SIE recorded for the last completed
// transfer on h.
func (m *Manager) GetPID(h Handle) (PID, error) {
	e, err := m.entryFor(h)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.owner == ownerSIE {
		return 0, pkg.Access.Err()
	}
	return e.pid, nil
}

// PeekArmed returns the byte count currently recorded in h's BD, regardless
// of ownership. It exists for code that plays the SIE's part alongside the
// HAL simulator (which itself never touches BDs), standing in for silicon
// that clocks the transfer straight off the shared arena rather than going
// through the CPU-facing ownership check GetSent enforces; call it to learn
// how many bytes the CPU armed before feeding that count back into
// CompleteTransaction.
func (m *Manager) PeekArmed(h Handle) (int, error) {
	e, err := m.entryFor(h)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.allocated {
		return 0, pkg.Error.Err()
	}
	return e.count, nil
}

// Receive arms h (which must be OUT) to accept the next packet: resets the
// count to the BD's full capacity, clears BSTALL, and hands ownership to
// the SIE.
func (m *Manager) Receive(h Handle) error {
	if h.Direction() != hal.Out {
		return pkg.BadParam.Err()
	}
	e, err := m.entryFor(h)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.allocated {
		return pkg.Error.Err()
	}
	if e.owner == ownerSIE {
		return pkg.Access.Err()
	}
	e.count = m.size(h, e)
	e.bstall = false
	e.owner = ownerSIE
	return nil
}

// Send arms h (which must be IN) to transmit size bytes of whatever the
// caller has already placed in its buffer, clears BSTALL, and hands
// ownership to the SIE.
func (m *Manager) Send(h Handle, size int) error {
	if h.Direction() != hal.In {
		return pkg.BadParam.Err()
	}
	e, err := m.entryFor(h)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.allocated {
		return pkg.Error.Err()
	}
	if e.owner == ownerSIE {
		return pkg.Access.Err()
	}
	capacity := m.size(h, e)
	if size > capacity {
		return pkg.BadParam.Err()
	}
	e.count = size
	e.bstall = false
	e.owner = ownerSIE
	return nil
}

// Stall sets BSTALL on h, resets its count to full capacity, and hands
// ownership to the SIE. The SIE responds to the host with STALL handshakes
// until a SETUP token (which bypasses STALL per the USB spec) reclaims
// ownership automatically.
func (m *Manager) Stall(h Handle) error {
	e, err := m.entryFor(h)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.allocated {
		return pkg.Error.Err()
	}
	if e.owner == ownerSIE {
		return pkg.Access.Err()
	}
	e.bstall = true
	e.count = m.size(h, e)
	e.owner = ownerSIE
	return nil
}

// Claim forces ownership of h back to the CPU. It is only safe to call when
// the SIE is known to be idle on h (e.g. during reset, or immediately after
// a SETUP token, which the hardware guarantees has already stopped further
// packet processing).
func (m *Manager) Claim(h Handle) error {
	e, err := m.entryFor(h)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.owner = ownerCPU
	return nil
}

// SetSync configures DATA0/DATA1 check mode and the expected value for h.
func (m *Manager) SetSync(h Handle, enabled bool, value DataToggle) error {
	e, err := m.entryFor(h)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.owner == ownerSIE {
		return pkg.Access.Err()
	}
	e.dtsen = enabled
	e.dts = value
	return nil
}

// CompleteTransaction is called by code playing the SIE's part (the ctl and
// device tests, which pair it with
// [github.com/maxvt/pic18usb/hal/sim.Controller.CompleteTransaction]) to
// model the hardware side of a completed transaction: it records the
// transferred byte count and token PID and hands ownership of h back to the
// CPU. Application code and the control/device layers never call this
// directly.
func (m *Manager) CompleteTransaction(h Handle, pid PID, count int) error {
	e, err := m.entryFor(h)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pid = pid
	e.count = count
	e.owner = ownerCPU
	return nil
}

// IsSIEOwned reports whether the SIE currently owns h. It exists for tests
// and for a HAL simulator deciding whether a BD is ready to accept a token.
func (m *Manager) IsSIEOwned(h Handle) bool {
	e, err := m.entryFor(h)
	if err != nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.owner == ownerSIE
}

// IsStalled reports whether h currently has BSTALL set and is SIE-owned
// (i.e. the endpoint is actively stalling, as opposed to having been
// stalled and already reclaimed by a SETUP token).
func (m *Manager) IsStalled(h Handle) bool {
	e, err := m.entryFor(h)
	if err != nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.owner == ownerSIE && e.bstall
}
