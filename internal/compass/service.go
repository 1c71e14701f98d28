package compass

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"bussola/internal/heading"
	"bussola/internal/sensors/qmc5883l"
)

const (
	BackendLinux  = "linux"
	BackendPeriph = "periph"
	BackendGobot  = "gobot"
	BackendSim    = "sim"
)

type SimConfig struct {
	RotationPeriod time.Duration
	Amplitude      float64
	StartDeg       float64
}

type Config struct {
	Backend   string
	Device    string
	PeriphBus string
	Addr      uint16

	Control          byte
	ReadMode         qmc5883l.ReadMode
	PollInterval     time.Duration
	FailureThreshold int
	BusPollBudget    int
	PowerUpDelay     time.Duration
	RetryBackoff     time.Duration
	InitMaxAttempts  int
	// Offsets is the hard-iron correction. Nil means heading.DefaultOffsets.
	Offsets      *heading.Offsets
	Alpha        float64
	TempInterval time.Duration
	// StaleAfter bounds how old the last sample may be for Snapshot.Valid.
	StaleAfter time.Duration

	Sim SimConfig

	Logger *zap.SugaredLogger
	Clock  clock.Clock
	// Emit receives every heading change. It runs on the acquisition
	// goroutine and must not block.
	Emit func(Reading)
}

func (c Config) offsets() heading.Offsets {
	if c.Offsets == nil {
		return heading.DefaultOffsets
	}
	return *c.Offsets
}

type Snapshot struct {
	Backend     string `json:"backend"`
	Control     string `json:"control"`
	Running     bool   `json:"running"`
	Initialized bool   `json:"initialized"`
	Failed      bool   `json:"failed"`
	Valid       bool   `json:"valid"`

	HeadingDeg     int     `json:"heading_deg"`
	HeadingPrecise float64 `json:"heading_precise"`
	RawX           int16   `json:"raw_x"`
	RawY           int16   `json:"raw_y"`
	RawZ           int16   `json:"raw_z"`
	FilterX        float64 `json:"filter_x"`
	FilterZ        float64 `json:"filter_z"`
	Overflow       bool    `json:"overflow"`

	TempC     float64 `json:"temp_c"`
	TempValid bool    `json:"temp_valid"`

	ConsecutiveFailures int    `json:"consecutive_failures"`
	Samples             uint64 `json:"samples"`
	EmptyCycles         uint64 `json:"empty_cycles"`
	ReadErrors          uint64 `json:"read_errors"`
	Overflows           uint64 `json:"overflows"`
	Recoveries          uint64 `json:"recoveries"`
	Emitted             uint64 `json:"emitted"`

	LastSampleAt time.Time `json:"last_sample_utc,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	UpdatedAt    time.Time `json:"updated_utc,omitempty"`
}

type Service struct {
	cfg Config
	log *zap.SugaredLogger
	clk clock.Clock

	mu   sync.RWMutex
	snap Snapshot

	resetCh chan chan error

	closer io.Closer
	cancel context.CancelFunc
	done   chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

func New(cfg Config) *Service {
	if cfg.Backend == "" {
		cfg.Backend = BackendLinux
	}
	if cfg.Device == "" {
		cfg.Device = "/dev/i2c-1"
	}
	if cfg.Addr == 0 {
		cfg.Addr = qmc5883l.DefaultAddress()
	}
	if cfg.Control == 0 {
		cfg.Control = qmc5883l.ControlDefault
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Alpha == 0 {
		cfg.Alpha = heading.DefaultAlpha
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	s := &Service{
		cfg:     cfg,
		log:     cfg.Logger,
		clk:     cfg.Clock,
		resetCh: make(chan chan error, 1),
		done:    make(chan struct{}),
	}
	s.snap.Backend = cfg.Backend
	s.snap.Control = qmc5883l.ParseControl(cfg.Control).String()
	return s
}

// Start opens the bus and launches the acquisition goroutine. Sensor
// initialization happens on that goroutine, so Start does not block on an
// absent sensor.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("compass: service is nil")
	}
	est, err := heading.New(s.cfg.offsets(), s.cfg.Alpha)
	if err != nil {
		return err
	}
	dev, closer, err := openSensorFn(s.cfg)
	if err != nil {
		s.setErr(fmt.Sprintf("open %s: %v", s.cfg.Backend, err))
		return err
	}
	if err := dev.Probe(); err != nil {
		s.log.Warnw("sensor probe failed", "error", err)
	}

	started := false
	s.startOnce.Do(func() {
		started = true
		runCtx, cancel := context.WithCancel(ctx)
		s.closer = closer
		s.cancel = cancel
		s.mu.Lock()
		s.snap.Running = true
		s.mu.Unlock()
		go s.run(runCtx, dev, est)
	})
	if !started {
		if closer != nil {
			_ = closer.Close()
		}
		return fmt.Errorf("compass: already started")
	}
	return nil
}

// Done is closed when the acquisition goroutine exits.
func (s *Service) Done() <-chan struct{} { return s.done }

func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.stopOnce.Do(func() {
		if s.cancel == nil {
			return
		}
		s.cancel()
		<-s.done
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}

func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()
	snap.Valid = !snap.Failed && !snap.LastSampleAt.IsZero() && s.clk.Now().Sub(snap.LastSampleAt) <= s.cfg.StaleAfter
	return snap
}

// Reset soft-resets the sensor, re-initializes it and restarts the filter.
// It is served by the acquisition goroutine between cycles.
func (s *Service) Reset(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("compass: service is nil")
	}
	s.mu.RLock()
	running := s.snap.Running
	s.mu.RUnlock()
	if !running {
		return fmt.Errorf("compass: not running")
	}
	done := make(chan error, 1)
	select {
	case s.resetCh <- done:
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("compass: reset already in progress")
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) run(ctx context.Context, dev device, est *heading.Estimator) {
	defer close(s.done)
	defer func() {
		s.mu.Lock()
		s.snap.Running = false
		s.mu.Unlock()
	}()

	s.log.Infow("initializing sensor", "backend", s.cfg.Backend, "addr", fmt.Sprintf("0x%02X", s.cfg.Addr),
		"control", qmc5883l.ParseControl(s.cfg.Control).String())
	if err := dev.Init(ctx); err != nil {
		s.fail(ctx, err)
		return
	}
	s.mu.Lock()
	s.snap.Initialized = true
	s.mu.Unlock()
	s.log.Infow("sensor ready")

	mon := NewMonitor(dev, est, s.cfg.FailureThreshold, s.clk)

	var tick <-chan time.Time
	if s.cfg.PollInterval > 0 && s.cfg.ReadMode == qmc5883l.ReadPoll {
		t := s.clk.Ticker(s.cfg.PollInterval)
		defer t.Stop()
		tick = t.C
	}
	var tempTick <-chan time.Time
	if s.cfg.TempInterval > 0 {
		t := s.clk.Ticker(s.cfg.TempInterval)
		defer t.Stop()
		tempTick = t.C
	}

	for {
		if !s.wait(ctx, tick, tempTick, dev, est) {
			return
		}
		cyc, err := mon.Step(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.record(cyc, mon.Failures())
				s.fail(ctx, err)
			}
			return
		}
		s.record(cyc, mon.Failures())
		if cyc.Emit && s.cfg.Emit != nil {
			s.cfg.Emit(cyc.Reading)
		}
	}
}

// wait blocks until the next cycle is due, serving reset and temperature
// requests meanwhile. Without a tick it only drains pending requests.
func (s *Service) wait(ctx context.Context, tick, tempTick <-chan time.Time, dev device, est *heading.Estimator) bool {
	for {
		if tick == nil {
			select {
			case <-ctx.Done():
				return false
			case done := <-s.resetCh:
				done <- s.reset(ctx, dev, est)
			case <-tempTick:
				s.readTemp(dev)
			default:
				return true
			}
			continue
		}
		select {
		case <-ctx.Done():
			return false
		case done := <-s.resetCh:
			done <- s.reset(ctx, dev, est)
		case <-tempTick:
			s.readTemp(dev)
		case <-tick:
			return true
		}
	}
}

func (s *Service) reset(ctx context.Context, dev device, est *heading.Estimator) error {
	s.log.Infow("sensor reset requested")
	if err := dev.SoftReset(); err != nil {
		return err
	}
	if err := dev.Init(ctx); err != nil {
		return err
	}
	est.Reset()
	return nil
}

func (s *Service) readTemp(dev device) {
	c, err := dev.ReadTemperature()
	if err != nil {
		s.log.Debugw("temperature read failed", "error", err)
		return
	}
	s.mu.Lock()
	s.snap.TempC = c
	s.snap.TempValid = true
	s.mu.Unlock()
}

func (s *Service) record(c Cycle, failures int) {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.UpdatedAt = now
	s.snap.ConsecutiveFailures = failures
	if c.Recovered {
		s.snap.Recoveries++
		s.log.Warnw("no data from sensor, re-initialized", "threshold", s.cfg.FailureThreshold)
	}
	if !c.HaveSample {
		if c.ReadErr != nil {
			s.snap.ReadErrors++
			s.snap.LastError = c.ReadErr.Error()
		} else {
			s.snap.EmptyCycles++
		}
		return
	}
	r := c.Reading
	s.snap.Samples++
	if r.Raw.Overflow {
		s.snap.Overflows++
	}
	if c.Emit {
		s.snap.Emitted++
	}
	s.snap.HeadingDeg = r.Heading
	s.snap.HeadingPrecise = r.Precise
	s.snap.RawX, s.snap.RawY, s.snap.RawZ = r.Raw.X, r.Raw.Y, r.Raw.Z
	s.snap.FilterX, s.snap.FilterZ = r.Filter.X, r.Filter.Z
	s.snap.Overflow = r.Raw.Overflow
	s.snap.LastSampleAt = r.At
	s.snap.LastError = ""
}

func (s *Service) fail(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return
	}
	s.log.Errorw("sensor failed", "error", err)
	s.mu.Lock()
	s.snap.Failed = true
	s.snap.LastError = err.Error()
	s.mu.Unlock()
}

func (s *Service) setErr(msg string) {
	s.mu.Lock()
	s.snap.LastError = msg
	s.snap.UpdatedAt = s.clk.Now()
	s.mu.Unlock()
}
