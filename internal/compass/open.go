package compass

import (
	"fmt"
	"io"

	"github.com/benbjohnson/clock"

	"bussola/internal/i2c"
	"bussola/internal/retry"
	"bussola/internal/sensors/qmc5883l"
	"bussola/internal/sim"
)

// device is the full driver surface the service uses.
type device interface {
	Sensor
	Probe() error
	ReadTemperature() (float64, error)
	SoftReset() error
}

var openSensorFn = openSensor

func openSensor(cfg Config) (device, io.Closer, error) {
	var (
		rio    qmc5883l.RegIO
		closer io.Closer
	)
	switch cfg.Backend {
	case BackendLinux:
		bus, err := i2c.Open(cfg.Device)
		if err != nil {
			return nil, nil, err
		}
		rio, closer = bus.Dev(cfg.Addr), bus
	case BackendPeriph:
		d, err := i2c.OpenPeriph(cfg.PeriphBus, cfg.Addr)
		if err != nil {
			return nil, nil, err
		}
		rio, closer = d, d
	case BackendGobot:
		d, err := i2c.OpenGobot(cfg.Device, cfg.Addr)
		if err != nil {
			return nil, nil, err
		}
		rio, closer = d, d
	case BackendSim:
		clk := cfg.Clock
		if clk == nil {
			clk = clock.New()
		}
		chip := sim.NewQMC5883L(cfg.Addr, sim.FieldSim{
			Amplitude: cfg.Sim.Amplitude,
			Period:    cfg.Sim.RotationPeriod,
			StartDeg:  cfg.Sim.StartDeg,
			HardIron:  cfg.offsets(),
		}, clk)
		rio = i2c.NewMaster(chip, retry.Budget{Attempts: cfg.BusPollBudget}).Dev(cfg.Addr)
	default:
		return nil, nil, fmt.Errorf("compass: unknown backend %q", cfg.Backend)
	}

	dev, err := qmc5883l.New(rio, qmc5883l.Options{
		Control:      cfg.Control,
		PowerUpDelay: cfg.PowerUpDelay,
		Retry:        retry.Policy{Backoff: cfg.RetryBackoff, MaxAttempts: cfg.InitMaxAttempts},
		ReadMode:     cfg.ReadMode,
		BlockPoll:    cfg.PollInterval,
		Logger:       cfg.Logger,
	})
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, nil, err
	}
	return dev, closer, nil
}

var _ device = (*qmc5883l.Device)(nil)
