// Package serialout writes NMEA sentences to a serial port, the usual way
// to feed a heading into an autopilot or plotter talker input.
package serialout

import (
	"fmt"
	"io"
	"sync"

	"github.com/jacobsa/go-serial/serial"
)

// DefaultBaud is the NMEA 0183 line rate.
const DefaultBaud = 4800

type Config struct {
	Port string
	Baud int
}

var openFn = func(opts serial.OpenOptions) (io.ReadWriteCloser, error) {
	return serial.Open(opts)
}

type Writer struct {
	port string

	mu      sync.Mutex
	rwc     io.ReadWriteCloser
	written uint64
}

func Open(cfg Config) (*Writer, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("serialout: port is required")
	}
	baud := cfg.Baud
	if baud <= 0 {
		baud = DefaultBaud
	}
	rwc, err := openFn(serial.OpenOptions{
		PortName:        cfg.Port,
		BaudRate:        uint(baud),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
	if err != nil {
		return nil, fmt.Errorf("serialout: open %s: %w", cfg.Port, err)
	}
	return &Writer{port: cfg.Port, rwc: rwc}, nil
}

func (w *Writer) Port() string { return w.port }

// WriteSentence writes one complete sentence.
func (w *Writer) WriteSentence(s string) error {
	if s == "" {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.rwc == nil {
		return fmt.Errorf("serialout: closed")
	}
	if _, err := io.WriteString(w.rwc, s); err != nil {
		return fmt.Errorf("serialout: write %s: %w", w.port, err)
	}
	w.written++
	return nil
}

func (w *Writer) Written() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.rwc == nil {
		return nil
	}
	err := w.rwc.Close()
	w.rwc = nil
	return err
}
