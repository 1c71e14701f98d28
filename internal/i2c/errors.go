package i2c

import (
	"errors"
	"fmt"
)

var (
	// ErrBusTimeout means a bus phase did not complete within its budget.
	ErrBusTimeout = errors.New("i2c: bus timeout")
	// ErrNoAck means the addressed device did not acknowledge.
	ErrNoAck = errors.New("i2c: no ack")
)

// Phase names one step of a register write.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseAddress
	PhaseRegister
	PhaseValue
)

func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhaseAddress:
		return "address"
	case PhaseRegister:
		return "register"
	case PhaseValue:
		return "value"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// TimeoutError reports which phase of a write stalled.
type TimeoutError struct {
	Addr  uint16
	Reg   byte
	Phase Phase
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("i2c: write 0x%02X reg 0x%02X: %s phase timed out", e.Addr, e.Reg, e.Phase)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrBusTimeout }
