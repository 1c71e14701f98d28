//go:build linux

package i2c

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux backend for /dev/i2c-*. Register reads use I2C_RDWR so the
// register index write and the data read share one repeated-start
// transaction; the kernel adapter owns the per-phase handshake.

const (
	i2cMrd  = 0x0001
	i2cRdwr = 0x0707
)

type msg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

type rdwrData struct {
	msgs  uintptr
	nmsgs uint32
}

// Bus is an opened adapter such as /dev/i2c-1.
// Transfers on one Bus must not run concurrently.
type Bus struct {
	f    *os.File
	path string
}

func Open(path string) (*Bus, error) {
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("i2c: open %s: %w", path, err)
	}
	return &Bus{f: f, path: path}, nil
}

func (b *Bus) Path() string {
	if b == nil {
		return ""
	}
	return b.path
}

func (b *Bus) Close() error {
	if b == nil || b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	return err
}

func (b *Bus) Dev(addr uint16) *Dev {
	if b == nil {
		return nil
	}
	return &Dev{bus: b, addr: addr}
}

// Dev is a device at a 7-bit address on a Bus.
type Dev struct {
	bus  *Bus
	addr uint16
}

func (d *Dev) Addr() uint16 { return d.addr }

func (d *Dev) ReadReg(reg byte, dst []byte) error {
	_, err := d.tx([]byte{reg}, dst)
	return err
}

func (d *Dev) ReadRegU8(reg byte) (byte, error) {
	var b [1]byte
	if err := d.ReadReg(reg, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Dev) WriteReg(reg, value byte) error {
	_, err := d.tx([]byte{reg, value}, nil)
	return err
}

func (d *Dev) tx(w, r []byte) (int, error) {
	if d == nil || d.bus == nil || d.bus.f == nil {
		return 0, errors.New("i2c device is nil")
	}
	if d.addr == 0 || d.addr > 0x7F {
		return 0, fmt.Errorf("invalid i2c addr 0x%X", d.addr)
	}

	msgs := make([]msg, 0, 2)
	if len(w) > 0 {
		msgs = append(msgs, msg{addr: d.addr, flags: 0, len: uint16(len(w)), buf: uintptr(unsafe.Pointer(&w[0]))})
	}
	if len(r) > 0 {
		msgs = append(msgs, msg{addr: d.addr, flags: i2cMrd, len: uint16(len(r)), buf: uintptr(unsafe.Pointer(&r[0]))})
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	data := rdwrData{msgs: uintptr(unsafe.Pointer(&msgs[0])), nmsgs: uint32(len(msgs))}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.bus.f.Fd(), uintptr(i2cRdwr), uintptr(unsafe.Pointer(&data)))
	if errno != 0 {
		return 0, mapErrno(d.addr, errno)
	}
	if len(r) > 0 {
		return len(r), nil
	}
	return len(w), nil
}

func mapErrno(addr uint16, errno unix.Errno) error {
	switch errno {
	case unix.ETIMEDOUT:
		return fmt.Errorf("i2c: addr 0x%02X: %w (%v)", addr, ErrBusTimeout, errno)
	case unix.ENXIO, unix.EREMOTEIO:
		return fmt.Errorf("i2c: addr 0x%02X: %w (%v)", addr, ErrNoAck, errno)
	default:
		return fmt.Errorf("i2c: addr 0x%02X: %w", addr, errno)
	}
}
