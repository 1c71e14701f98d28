package sim

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"bussola/internal/i2c"
	"bussola/internal/sensors/qmc5883l"
)

// Register offsets mirrored from the datasheet; the driver keeps its own
// copies unexported.
const (
	regStatus   = 0x06
	regTempLSB  = 0x07
	regTempMSB  = 0x08
	regControl1 = 0x09
	regControl2 = 0x0A
	regChipID   = 0x0D
	numRegs     = 0x0E

	statusDRDY = 0x01
	statusDOR  = 0x04
)

// QMC5883L is a simulated magnetometer wired to a simulated bus
// controller. It implements i2c.Controller, so writes go through the
// phase-by-phase handshake and reads through the combined transfer.
type QMC5883L struct {
	mu sync.Mutex

	addr  uint16
	field FieldSim
	clk   clock.Clock

	regs       [numRegs]byte
	lastSample time.Time

	// Controller state for the transaction in flight.
	flags   i2c.Flag
	addrAck bool
	wbuf    []byte

	stalls map[i2c.Phase]int
	nack   bool

	writes  int
	samples int
}

func NewQMC5883L(addr uint16, field FieldSim, clk clock.Clock) *QMC5883L {
	if clk == nil {
		clk = clock.New()
	}
	if addr == 0 {
		addr = qmc5883l.DefaultAddress()
	}
	if field.Epoch.IsZero() {
		field.Epoch = clk.Now()
	}
	s := &QMC5883L{addr: addr, field: field, clk: clk, stalls: map[i2c.Phase]int{}}
	s.powerOn()
	return s
}

func (s *QMC5883L) powerOn() {
	s.regs = [numRegs]byte{}
	s.regs[regChipID] = 0xFF
	s.regs[regTempLSB], s.regs[regTempMSB] = 0xC4, 0x09
}

// Start implements i2c.Controller.
func (s *QMC5883L) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wbuf = s.wbuf[:0]
	s.addrAck = false
	s.flags = 0
	if s.consumeStall(i2c.PhaseStart) {
		return
	}
	s.flags = i2c.FlagStart
}

// SendAddress implements i2c.Controller. A wrong or NACKing address never
// raises the address flag.
func (s *QMC5883L) SendAddress(addr uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags = 0
	if addr != s.addr || s.nack || s.consumeStall(i2c.PhaseAddress) {
		return
	}
	s.addrAck = true
	s.flags = i2c.FlagAddr
}

// SendData implements i2c.Controller.
func (s *QMC5883L) SendData(b byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags = 0
	if !s.addrAck {
		return
	}
	phase := i2c.PhaseValue
	if len(s.wbuf) == 0 {
		phase = i2c.PhaseRegister
	}
	if s.consumeStall(phase) {
		return
	}
	s.wbuf = append(s.wbuf, b)
	s.flags = i2c.FlagByteDone
}

// Stop implements i2c.Controller. A completed register/value pair is
// committed on stop.
func (s *QMC5883L) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addrAck && len(s.wbuf) >= 2 {
		reg := s.wbuf[0]
		for i, v := range s.wbuf[1:] {
			s.writeReg(reg+byte(i), v)
		}
		s.writes++
	}
	s.wbuf = s.wbuf[:0]
	s.addrAck = false
	s.flags = 0
}

// Status implements i2c.Controller.
func (s *QMC5883L) Status() i2c.Flag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags
}

// Transfer implements i2c.Controller.
func (s *QMC5883L) Transfer(addr uint16, w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if addr != s.addr || s.nack {
		return i2c.ErrNoAck
	}
	if len(w) == 0 {
		return nil
	}
	reg := w[0]
	for i, v := range w[1:] {
		s.writeReg(reg+byte(i), v)
	}
	for i := range r {
		r[i] = s.readReg(reg + byte(i))
	}
	return nil
}

func (s *QMC5883L) consumeStall(p i2c.Phase) bool {
	if n := s.stalls[p]; n > 0 {
		s.stalls[p] = n - 1
		return true
	}
	return false
}

func (s *QMC5883L) writeReg(reg, v byte) {
	if int(reg) >= numRegs {
		return
	}
	switch reg {
	case regControl2:
		if v&0x80 != 0 {
			s.powerOn()
			return
		}
	case regControl1:
		wasRunning := s.running()
		s.regs[reg] = v
		if !wasRunning && s.running() {
			s.lastSample = s.clk.Now()
		}
		return
	}
	s.regs[reg] = v
}

func (s *QMC5883L) readReg(reg byte) byte {
	if int(reg) >= numRegs {
		return 0
	}
	s.advance()
	v := s.regs[reg]
	if reg < regStatus {
		s.regs[regStatus] &^= statusDRDY | statusDOR
	}
	return v
}

func (s *QMC5883L) running() bool {
	return qmc5883l.ParseControl(s.regs[regControl1]).Mode == qmc5883l.ModeContinuous
}

// advance latches a new sample when an output period has elapsed.
func (s *QMC5883L) advance() {
	if !s.running() {
		return
	}
	period := qmc5883l.ParseControl(s.regs[regControl1]).ODR.Period()
	now := s.clk.Now()
	if now.Sub(s.lastSample) < period {
		return
	}
	n := now.Sub(s.lastSample) / period
	s.lastSample = s.lastSample.Add(n * period)

	if s.regs[regStatus]&statusDRDY != 0 || n > 1 {
		s.regs[regStatus] |= statusDOR
	}
	x, y, z := s.field.Field(now)
	s.regs[0], s.regs[1] = byte(uint16(x)), byte(uint16(x)>>8)
	s.regs[2], s.regs[3] = byte(uint16(y)), byte(uint16(y)>>8)
	s.regs[4], s.regs[5] = byte(uint16(z)), byte(uint16(z)>>8)
	s.regs[regStatus] |= statusDRDY
	s.samples++
}

// StallPhase makes the next n occurrences of phase p never complete.
func (s *QMC5883L) StallPhase(p i2c.Phase, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stalls[p] += n
}

// SetNack makes the device stop acknowledging its address.
func (s *QMC5883L) SetNack(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nack = v
}

// Glitch drops the chip into standby, as after a brown-out. It stays
// silent until the control register is written again.
func (s *QMC5883L) Glitch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.powerOn()
}

// Register returns a register value without side effects.
func (s *QMC5883L) Register(reg byte) byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(reg) >= numRegs {
		return 0
	}
	return s.regs[reg]
}

// Idle reports whether no transaction is in flight.
func (s *QMC5883L) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags == 0 && len(s.wbuf) == 0 && !s.addrAck
}

// Heading returns the simulated true heading at the current clock time.
func (s *QMC5883L) Heading() float64 {
	return s.field.Heading(s.clk.Now())
}

func (s *QMC5883L) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Samples counts latched measurements.
func (s *QMC5883L) Samples() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}
