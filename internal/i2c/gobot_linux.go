//go:build linux

package i2c

import (
	"fmt"
	"sync"

	"gobot.io/x/gobot/sysfs"
)

// gobotDevice is the subset of gobot's sysfs I2C device we use. The sysfs
// handle is address-less, so the address is set before every access.
type gobotDevice interface {
	SetAddress(address int) error
	ReadByteData(reg uint8) (uint8, error)
	WriteByteData(reg, val uint8) error
	Close() error
}

// GobotDev is a device reached through gobot's sysfs I2C adapter.
type GobotDev struct {
	mu   sync.Mutex
	dev  gobotDevice
	addr uint16
}

func OpenGobot(path string, addr uint16) (*GobotDev, error) {
	dev, err := sysfs.NewI2cDevice(path)
	if err != nil {
		return nil, fmt.Errorf("i2c: gobot open %s: %w", path, err)
	}
	return &GobotDev{dev: dev, addr: addr}, nil
}

func (d *GobotDev) ReadRegU8(reg byte) (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.dev.SetAddress(int(d.addr)); err != nil {
		return 0, fmt.Errorf("i2c: gobot set addr 0x%02X: %w", d.addr, err)
	}
	v, err := d.dev.ReadByteData(reg)
	if err != nil {
		return 0, fmt.Errorf("i2c: gobot read reg 0x%02X: %w", reg, err)
	}
	return v, nil
}

func (d *GobotDev) WriteReg(reg, value byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.dev.SetAddress(int(d.addr)); err != nil {
		return fmt.Errorf("i2c: gobot set addr 0x%02X: %w", d.addr, err)
	}
	if err := d.dev.WriteByteData(reg, value); err != nil {
		return fmt.Errorf("i2c: gobot write reg 0x%02X: %w", reg, err)
	}
	return nil
}

func (d *GobotDev) Close() error {
	if d == nil || d.dev == nil {
		return nil
	}
	err := d.dev.Close()
	d.dev = nil
	return err
}
