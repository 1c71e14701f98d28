//go:build linux

package i2c

import (
	"errors"
	"os"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func openNull(t *testing.T) *Bus {
	t.Helper()
	f, err := os.OpenFile("/dev/null", os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile /dev/null: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return &Bus{f: f, path: "/dev/null"}
}

func TestDevTx_InvalidAddr(t *testing.T) {
	b := openNull(t)
	for _, addr := range []uint16{0, 0x80} {
		err := b.Dev(addr).WriteReg(0x09, 0x11)
		if err == nil || !strings.Contains(err.Error(), "invalid i2c addr") {
			t.Fatalf("addr=0x%X err=%v want invalid i2c addr", addr, err)
		}
	}
}

func TestDevTx_EmptyIsNoop(t *testing.T) {
	d := openNull(t).Dev(0x0D)
	n, err := d.tx(nil, nil)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if n != 0 {
		t.Fatalf("n=%d want 0", n)
	}
}

func TestDevTx_ClosedBus(t *testing.T) {
	b := openNull(t)
	d := b.Dev(0x0D)
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := d.ReadRegU8(0x06); err == nil {
		t.Fatalf("expected error on closed bus")
	}
}

func TestMapErrno(t *testing.T) {
	if err := mapErrno(0x0D, unix.ETIMEDOUT); !errors.Is(err, ErrBusTimeout) {
		t.Fatalf("ETIMEDOUT err=%v want ErrBusTimeout", err)
	}
	if err := mapErrno(0x0D, unix.EREMOTEIO); !errors.Is(err, ErrNoAck) {
		t.Fatalf("EREMOTEIO err=%v want ErrNoAck", err)
	}
	if err := mapErrno(0x0D, unix.EIO); !errors.Is(err, unix.EIO) {
		t.Fatalf("EIO err=%v want EIO", err)
	}
}
