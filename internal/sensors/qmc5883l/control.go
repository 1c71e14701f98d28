package qmc5883l

import (
	"fmt"
	"time"
)

// Control register 1 fields. Layout: OSR[7:6] RNG[5:4] ODR[3:2] MODE[1:0].

type Mode byte

const (
	ModeStandby    Mode = 0x00
	ModeContinuous Mode = 0x01
)

type ODR byte

const (
	ODR10Hz  ODR = 0x00 << 2
	ODR50Hz  ODR = 0x01 << 2
	ODR100Hz ODR = 0x02 << 2
	ODR200Hz ODR = 0x03 << 2
)

type Range byte

const (
	Range2G Range = 0x00 << 4
	Range8G Range = 0x01 << 4
)

type OSR byte

const (
	OSR512 OSR = 0x00 << 6
	OSR256 OSR = 0x01 << 6
	OSR128 OSR = 0x02 << 6
	OSR64  OSR = 0x03 << 6
)

// ControlDefault is continuous mode, 10 Hz, 8 G, OSR 512.
const ControlDefault byte = 0x11

type Control struct {
	Mode  Mode
	ODR   ODR
	Range Range
	OSR   OSR
}

func ParseControl(b byte) Control {
	return Control{
		Mode:  Mode(b & 0x03),
		ODR:   ODR(b & 0x0C),
		Range: Range(b & 0x30),
		OSR:   OSR(b & 0xC0),
	}
}

func (c Control) Byte() byte {
	return byte(c.Mode)&0x03 | byte(c.ODR)&0x0C | byte(c.Range)&0x30 | byte(c.OSR)&0xC0
}

func (c Control) String() string {
	return fmt.Sprintf("mode=%s odr=%s range=%s osr=%d", c.Mode, c.ODR, c.Range, c.OSR.Samples())
}

func (m Mode) String() string {
	switch m {
	case ModeStandby:
		return "standby"
	case ModeContinuous:
		return "continuous"
	default:
		return fmt.Sprintf("mode(%d)", byte(m))
	}
}

func (o ODR) Hz() int {
	switch o {
	case ODR50Hz:
		return 50
	case ODR100Hz:
		return 100
	case ODR200Hz:
		return 200
	default:
		return 10
	}
}

// Period is the interval between data-ready events at this rate.
func (o ODR) Period() time.Duration { return time.Second / time.Duration(o.Hz()) }

func (o ODR) String() string { return fmt.Sprintf("%dHz", o.Hz()) }

func (r Range) String() string {
	if r == Range8G {
		return "8G"
	}
	if r == Range2G {
		return "2G"
	}
	return fmt.Sprintf("range(%d)", byte(r))
}

func (o OSR) Samples() int {
	switch o {
	case OSR256:
		return 256
	case OSR128:
		return 128
	case OSR64:
		return 64
	default:
		return 512
	}
}
