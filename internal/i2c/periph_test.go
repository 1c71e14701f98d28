package i2c

import (
	"testing"

	"periph.io/x/conn/v3/i2c/i2ctest"
)

func TestPeriphDev_ReadAndWrite(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x0D, W: []byte{0x0B, 0x01}},
			{Addr: 0x0D, W: []byte{0x06}, R: []byte{0x01}},
		},
		DontPanic: true,
	}
	d := newPeriphDev(bus, 0x0D)

	if err := d.WriteReg(0x0B, 0x01); err != nil {
		t.Fatalf("WriteReg: %v", err)
	}
	got, err := d.ReadRegU8(0x06)
	if err != nil {
		t.Fatalf("ReadRegU8: %v", err)
	}
	if got != 0x01 {
		t.Fatalf("got=0x%02X want=0x01", got)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPeriphDev_UnexpectedTxIsError(t *testing.T) {
	bus := &i2ctest.Playback{DontPanic: true}
	d := newPeriphDev(bus, 0x0D)
	if _, err := d.ReadRegU8(0x06); err == nil {
		t.Fatalf("expected error")
	}
}
