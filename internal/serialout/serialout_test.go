package serialout

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/jacobsa/go-serial/serial"

	"bussola/internal/nmea"
)

type fakePort struct {
	buf      bytes.Buffer
	writeErr error
	closed   bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.buf.Write(b)
}

func (p *fakePort) Read([]byte) (int, error) { return 0, io.EOF }

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func withFakePort(t *testing.T, p *fakePort) *serial.OpenOptions {
	t.Helper()
	var got serial.OpenOptions
	orig := openFn
	openFn = func(opts serial.OpenOptions) (io.ReadWriteCloser, error) {
		got = opts
		return p, nil
	}
	t.Cleanup(func() { openFn = orig })
	return &got
}

func TestOpen_DefaultsTo4800_8N1(t *testing.T) {
	opts := withFakePort(t, &fakePort{})
	w, err := Open(Config{Port: "/dev/ttyUSB0"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()
	if opts.PortName != "/dev/ttyUSB0" || opts.BaudRate != 4800 || opts.DataBits != 8 || opts.StopBits != 1 {
		t.Fatalf("opts=%+v", *opts)
	}
	if opts.ParityMode != serial.PARITY_NONE {
		t.Fatalf("parity=%v want none", opts.ParityMode)
	}
}

func TestOpen_RequiresPort(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOpen_WrapsError(t *testing.T) {
	boom := errors.New("busy")
	orig := openFn
	openFn = func(serial.OpenOptions) (io.ReadWriteCloser, error) { return nil, boom }
	t.Cleanup(func() { openFn = orig })

	if _, err := Open(Config{Port: "/dev/ttyS0", Baud: 38400}); !errors.Is(err, boom) {
		t.Fatalf("err=%v want %v", err, boom)
	}
}

func TestWriter_WriteSentence(t *testing.T) {
	p := &fakePort{}
	withFakePort(t, p)
	w, err := Open(Config{Port: "/dev/ttyUSB0"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s := nmea.HDM("HC", 42)
	if err := w.WriteSentence(s); err != nil {
		t.Fatalf("WriteSentence: %v", err)
	}
	if err := w.WriteSentence(""); err != nil {
		t.Fatalf("WriteSentence(empty): %v", err)
	}
	if p.buf.String() != s || w.Written() != 1 {
		t.Fatalf("port=%q written=%d", p.buf.String(), w.Written())
	}

	if err := w.Close(); err != nil || !p.closed {
		t.Fatalf("Close: err=%v closed=%v", err, p.closed)
	}
	if err := w.WriteSentence(s); err == nil {
		t.Fatalf("expected error after Close")
	}
}

func TestWriter_WriteError(t *testing.T) {
	boom := errors.New("unplugged")
	withFakePort(t, &fakePort{writeErr: boom})
	w, err := Open(Config{Port: "/dev/ttyUSB0"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.WriteSentence("x"); !errors.Is(err, boom) {
		t.Fatalf("err=%v want %v", err, boom)
	}
}
