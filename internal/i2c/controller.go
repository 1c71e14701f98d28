package i2c

import (
	"fmt"
	"sync"

	"bussola/internal/retry"
)

// Flag is a controller completion flag.
type Flag uint8

const (
	// FlagStart is set once a start condition has been generated.
	FlagStart Flag = 1 << iota
	// FlagAddr is set once the address byte was acknowledged.
	FlagAddr
	// FlagByteDone is set once a data byte has been shifted out.
	FlagByteDone
)

// Controller is a register-level two-wire bus peripheral.
//
// Start, SendAddress and SendData only initiate a phase; completion is
// observed through Status. Transfer is the peripheral's combined
// write-then-read primitive.
type Controller interface {
	Start()
	SendAddress(addr uint16)
	SendData(b byte)
	Stop()
	Status() Flag
	Transfer(addr uint16, w, r []byte) error
}

// Master runs register transactions on a Controller, one at a time.
type Master struct {
	ctl    Controller
	budget retry.Budget

	mu sync.Mutex
}

func NewMaster(ctl Controller, budget retry.Budget) *Master {
	return &Master{ctl: ctl, budget: budget}
}

// WriteReg writes one register with the start/address/register/value
// handshake. Each phase is polled up to the budget; a stalled phase aborts
// with a *TimeoutError. The bus is stopped on every exit path.
func (m *Master) WriteReg(addr uint16, reg, value byte) error {
	if m == nil || m.ctl == nil {
		return fmt.Errorf("i2c: master is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.ctl.Stop()

	m.ctl.Start()
	if !m.wait(FlagStart) {
		return &TimeoutError{Addr: addr, Reg: reg, Phase: PhaseStart}
	}
	m.ctl.SendAddress(addr)
	if !m.wait(FlagAddr) {
		return &TimeoutError{Addr: addr, Reg: reg, Phase: PhaseAddress}
	}
	m.ctl.SendData(reg)
	if !m.wait(FlagByteDone) {
		return &TimeoutError{Addr: addr, Reg: reg, Phase: PhaseRegister}
	}
	m.ctl.SendData(value)
	if !m.wait(FlagByteDone) {
		return &TimeoutError{Addr: addr, Reg: reg, Phase: PhaseValue}
	}
	return nil
}

// ReadReg reads one register through a single combined transfer.
// Failures are returned as-is; retrying is the caller's business.
func (m *Master) ReadReg(addr uint16, reg byte) (byte, error) {
	if m == nil || m.ctl == nil {
		return 0, fmt.Errorf("i2c: master is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var b [1]byte
	if err := m.ctl.Transfer(addr, []byte{reg}, b[:]); err != nil {
		m.ctl.Stop()
		return 0, fmt.Errorf("i2c: read 0x%02X reg 0x%02X: %w", addr, reg, err)
	}
	return b[0], nil
}

func (m *Master) wait(f Flag) bool {
	return m.budget.Poll(func() bool { return m.ctl.Status()&f != 0 })
}

// Dev binds the master to one device address.
func (m *Master) Dev(addr uint16) *MasterDev {
	return &MasterDev{m: m, addr: addr}
}

// MasterDev is a device at a fixed address on a Master.
type MasterDev struct {
	m    *Master
	addr uint16
}

func (d *MasterDev) ReadRegU8(reg byte) (byte, error) { return d.m.ReadReg(d.addr, reg) }

func (d *MasterDev) WriteReg(reg, value byte) error { return d.m.WriteReg(d.addr, reg, value) }
