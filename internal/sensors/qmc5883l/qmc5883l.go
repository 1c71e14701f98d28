package qmc5883l

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bussola/internal/retry"
)

var sleep = time.Sleep

// QMC5883L 3-axis magnetometer driver.
//
// Only continuous-mode register polling is supported; the DRDY interrupt pin
// is not used.

const (
	addrDefault = 0x0D

	regXoutLSB  = 0x00
	regStatus   = 0x06
	regTempLSB  = 0x07
	regTempMSB  = 0x08
	regControl1 = 0x09
	regControl2 = 0x0A
	regSetReset = 0x0B
	regChipID   = 0x0D

	chipIDQMC5883L = 0xFF

	statusDRDY = 0x01
	statusOVL  = 0x02
	statusDOR  = 0x04

	softReset      = 0x80
	setResetPeriod = 0x01
)

// ErrInitFailed is returned by Init when a bounded retry policy gives up.
var ErrInitFailed = errors.New("qmc5883l: init failed")

// RegIO is the register access the driver needs from a bus backend.
type RegIO interface {
	ReadRegU8(reg byte) (byte, error)
	WriteReg(reg, value byte) error
}

// Sample is one raw reading in sensor counts.
type Sample struct {
	X, Y, Z int16

	// Overflow reports the OVL status bit: some axis saturated.
	Overflow bool
	// Skipped reports the DOR status bit: a previous sample was never read.
	Skipped bool
}

type ReadMode int

const (
	// ReadPoll checks data-ready once and reports "no data" when clear.
	ReadPoll ReadMode = iota
	// ReadBlock waits for data-ready before returning.
	ReadBlock
)

func (m ReadMode) String() string {
	if m == ReadBlock {
		return "block"
	}
	return "poll"
}

type Options struct {
	// Control is written to control register 1. Zero means ControlDefault.
	Control byte
	// PowerUpDelay is waited once at the start of every Init.
	PowerUpDelay time.Duration
	// Retry governs the register writes in Init.
	Retry retry.Policy

	ReadMode ReadMode
	// BlockPoll is the pause between status reads in ReadBlock mode.
	BlockPoll time.Duration

	Logger *zap.SugaredLogger
}

type Device struct {
	dev  RegIO
	opts Options
	log  *zap.SugaredLogger
}

func DefaultAddress() uint16 { return addrDefault }

func New(dev RegIO, opts Options) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("qmc5883l: dev is nil")
	}
	if opts.Control == 0 {
		opts.Control = ControlDefault
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Device{dev: dev, opts: opts, log: log}, nil
}

func (d *Device) Control() Control { return ParseControl(d.opts.Control) }

func (d *Device) Mode() ReadMode { return d.opts.ReadMode }

// Init waits the power-up delay, then programs the SET/RESET period and
// control registers. Each write is retried per the configured policy, so
// with the default unbounded policy Init only returns an error when ctx is
// done. Init may be called any number of times.
func (d *Device) Init(ctx context.Context) error {
	if d.opts.PowerUpDelay > 0 {
		sleep(d.opts.PowerUpDelay)
	}
	if err := d.writeRetry(ctx, regSetReset, setResetPeriod); err != nil {
		return err
	}
	return d.writeRetry(ctx, regControl1, d.opts.Control)
}

func (d *Device) writeRetry(ctx context.Context, reg, value byte) error {
	err := d.opts.Retry.Do(ctx, func() error {
		return d.dev.WriteReg(reg, value)
	}, func(err error, attempt int) {
		if attempt == 1 || attempt%100 == 0 {
			d.log.Warnw("register write failed, retrying",
				"reg", fmt.Sprintf("0x%02X", reg), "attempt", attempt, "error", err)
		}
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, retry.ErrExhausted) {
		return fmt.Errorf("%w: reg 0x%02X: %w", ErrInitFailed, reg, err)
	}
	return err
}

// Poll reads the status register once. It reports ok=false with a nil error
// when no new data is ready.
func (d *Device) Poll() (Sample, bool, error) {
	st, err := d.dev.ReadRegU8(regStatus)
	if err != nil {
		return Sample{}, false, fmt.Errorf("qmc5883l: status read failed: %w", err)
	}
	if st&statusDRDY == 0 {
		return Sample{}, false, nil
	}
	s, err := d.readAxes()
	if err != nil {
		return Sample{}, false, err
	}
	s.Overflow = st&statusOVL != 0
	s.Skipped = st&statusDOR != 0
	return s, true, nil
}

// ReadBlocking polls until data is ready or ctx is done.
func (d *Device) ReadBlocking(ctx context.Context) (Sample, error) {
	for {
		s, ok, err := d.Poll()
		if err != nil {
			return Sample{}, err
		}
		if ok {
			return s, nil
		}
		select {
		case <-ctx.Done():
			return Sample{}, ctx.Err()
		default:
		}
		if d.opts.BlockPoll > 0 {
			sleep(d.opts.BlockPoll)
		}
	}
}

// ReadSample reads using the configured ReadMode. In ReadBlock mode ok is
// false only alongside an error.
func (d *Device) ReadSample(ctx context.Context) (Sample, bool, error) {
	if d.opts.ReadMode == ReadBlock {
		s, err := d.ReadBlocking(ctx)
		if err != nil {
			return Sample{}, false, err
		}
		return s, true, nil
	}
	return d.Poll()
}

func (d *Device) readAxes() (Sample, error) {
	var raw [6]byte
	for i := range raw {
		b, err := d.dev.ReadRegU8(regXoutLSB + byte(i))
		if err != nil {
			return Sample{}, fmt.Errorf("qmc5883l: data reg 0x%02X read failed: %w", regXoutLSB+i, err)
		}
		raw[i] = b
	}
	return Sample{
		X: assemble(raw[0], raw[1]),
		Y: assemble(raw[2], raw[3]),
		Z: assemble(raw[4], raw[5]),
	}, nil
}

func assemble(lo, hi byte) int16 {
	return int16(uint16(hi)<<8 | uint16(lo))
}

// ChipID reads the identification register (0xFF on genuine parts).
func (d *Device) ChipID() (byte, error) {
	id, err := d.dev.ReadRegU8(regChipID)
	if err != nil {
		return 0, fmt.Errorf("qmc5883l: chip id read failed: %w", err)
	}
	return id, nil
}

// Probe logs a warning when the chip ID does not match a QMC5883L.
func (d *Device) Probe() error {
	id, err := d.ChipID()
	if err != nil {
		return err
	}
	if id != chipIDQMC5883L {
		d.log.Warnw("unexpected chip id", "id", fmt.Sprintf("0x%02X", id), "want", fmt.Sprintf("0x%02X", chipIDQMC5883L))
	}
	return nil
}

// ReadTemperature returns the die temperature in degrees C relative to an
// uncalibrated offset (100 LSB/C).
func (d *Device) ReadTemperature() (float64, error) {
	lo, err := d.dev.ReadRegU8(regTempLSB)
	if err != nil {
		return 0, fmt.Errorf("qmc5883l: temp read failed: %w", err)
	}
	hi, err := d.dev.ReadRegU8(regTempMSB)
	if err != nil {
		return 0, fmt.Errorf("qmc5883l: temp read failed: %w", err)
	}
	return float64(assemble(lo, hi)) / 100.0, nil
}

// SoftReset restores default register values. Init must run afterwards.
func (d *Device) SoftReset() error {
	if err := d.dev.WriteReg(regControl2, softReset); err != nil {
		return fmt.Errorf("qmc5883l: soft reset failed: %w", err)
	}
	return nil
}
