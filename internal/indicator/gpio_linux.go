//go:build linux

package indicator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// openLine finds BCM GPIO pin as line "GPIO<pin>" and requests it as an
// output. chip is tried first; every other /dev/gpiochip* follows, since Pi
// kernels differ on which chip carries the header pins.
func openLine(chip string, pin int) (driver, error) {
	if pin < 0 {
		return nil, fmt.Errorf("indicator: invalid gpio pin %d", pin)
	}
	lineName := fmt.Sprintf("GPIO%d", pin)

	var candidates []string
	if chip != "" {
		if !strings.HasPrefix(chip, "/") {
			chip = filepath.Join("/dev", chip)
		}
		candidates = append(candidates, chip)
	}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		p := filepath.Join("/dev", e.Name())
		if strings.HasPrefix(e.Name(), "gpiochip") && p != chip {
			candidates = append(candidates, p)
		}
	}

	for _, chipPath := range candidates {
		c, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := c.FindLine(lineName)
		if err != nil {
			_ = c.Close()
			continue
		}
		line, err := c.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("bussola-led"))
		if err != nil {
			_ = c.Close()
			continue
		}
		return &gpiodLine{chip: c, line: line}, nil
	}
	return nil, fmt.Errorf("indicator: gpio line %q not found (or busy)", lineName)
}

var openLineFn = openLine

type gpiodLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *gpiodLine) SetValue(v int) error {
	if g.line == nil {
		return fmt.Errorf("indicator: line closed")
	}
	return g.line.SetValue(v)
}

func (g *gpiodLine) Close() error {
	if g.line == nil {
		return nil
	}
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
