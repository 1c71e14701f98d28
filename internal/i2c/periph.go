package i2c

import (
	"fmt"

	pi2c "periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// PeriphDev is a device reached through the periph.io host drivers.
type PeriphDev struct {
	bus pi2c.BusCloser
	dev *pi2c.Dev
}

// OpenPeriph initializes periph host drivers and opens the named bus
// ("" picks the first one registered).
func OpenPeriph(busName string, addr uint16) (*PeriphDev, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("i2c: periph host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("i2c: periph open %q: %w", busName, err)
	}
	return newPeriphDev(bus, addr), nil
}

func newPeriphDev(bus pi2c.BusCloser, addr uint16) *PeriphDev {
	return &PeriphDev{bus: bus, dev: &pi2c.Dev{Bus: bus, Addr: addr}}
}

func (d *PeriphDev) ReadRegU8(reg byte) (byte, error) {
	var b [1]byte
	if err := d.dev.Tx([]byte{reg}, b[:]); err != nil {
		return 0, fmt.Errorf("i2c: %s reg 0x%02X: %w", d.dev, reg, err)
	}
	return b[0], nil
}

func (d *PeriphDev) WriteReg(reg, value byte) error {
	if err := d.dev.Tx([]byte{reg, value}, nil); err != nil {
		return fmt.Errorf("i2c: %s reg 0x%02X: %w", d.dev, reg, err)
	}
	return nil
}

func (d *PeriphDev) Close() error {
	if d == nil || d.bus == nil {
		return nil
	}
	err := d.bus.Close()
	d.bus = nil
	return err
}
