// Package indicator drives a status LED: dark while the sensor is down,
// blinking while it has no fresh heading, steady once it does.
package indicator

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type State int

const (
	StateOff State = iota
	StateSearching
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StateLocked:
		return "locked"
	}
	return "off"
}

// DefaultBlink is the half period of the searching blink.
const DefaultBlink = 250 * time.Millisecond

type driver interface {
	SetValue(v int) error
	Close() error
}

type Config struct {
	Chip  string
	GPIO  int
	Blink time.Duration
	Clock clock.Clock
}

type LED struct {
	drv   driver
	clk   clock.Clock
	blink time.Duration

	mu    sync.Mutex
	state State
	lit   bool
}

// Open requests the GPIO line as an output, initially dark.
func Open(cfg Config) (*LED, error) {
	drv, err := openLineFn(cfg.Chip, cfg.GPIO)
	if err != nil {
		return nil, err
	}
	return New(drv, cfg.Clock, cfg.Blink), nil
}

func New(drv driver, clk clock.Clock, blink time.Duration) *LED {
	if clk == nil {
		clk = clock.New()
	}
	if blink <= 0 {
		blink = DefaultBlink
	}
	return &LED{drv: drv, clk: clk, blink: blink}
}

func (l *LED) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Set changes the displayed state. Off and locked take effect at once;
// searching starts blinking on the next Run tick.
func (l *LED) Set(s State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s == l.state {
		return nil
	}
	l.state = s
	switch s {
	case StateOff:
		return l.setLocked(false)
	case StateLocked:
		return l.setLocked(true)
	}
	return nil
}

// Run toggles the LED while searching until ctx is done.
func (l *LED) Run(ctx context.Context) error {
	t := l.clk.Ticker(l.blink)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			l.mu.Lock()
			if l.state == StateSearching {
				_ = l.setLocked(!l.lit)
			}
			l.mu.Unlock()
		}
	}
}

func (l *LED) Lit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lit
}

func (l *LED) setLocked(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := l.drv.SetValue(v); err != nil {
		return err
	}
	l.lit = on
	return nil
}

// Close turns the LED off and releases the line.
func (l *LED) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.drv == nil {
		return nil
	}
	_ = l.drv.SetValue(0)
	err := l.drv.Close()
	l.drv = nil
	l.lit = false
	return err
}
