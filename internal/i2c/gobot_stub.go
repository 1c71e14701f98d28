//go:build !linux

package i2c

import "fmt"

type GobotDev struct{}

func OpenGobot(path string, addr uint16) (*GobotDev, error) {
	return nil, fmt.Errorf("i2c: gobot sysfs unsupported OS (need linux)")
}

func (d *GobotDev) ReadRegU8(reg byte) (byte, error) { return 0, fmt.Errorf("i2c: unsupported OS") }
func (d *GobotDev) WriteReg(reg, value byte) error   { return fmt.Errorf("i2c: unsupported OS") }
func (d *GobotDev) Close() error                     { return nil }
