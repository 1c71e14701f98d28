package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bussola/internal/compass"
	"bussola/internal/config"
	"bussola/internal/heading"
	"bussola/internal/indicator"
	"bussola/internal/metrics"
	"bussola/internal/mqttout"
	"bussola/internal/nmea"
	"bussola/internal/sensors/qmc5883l"
	"bussola/internal/serialout"
	"bussola/internal/udp"
	"bussola/internal/web"
)

const (
	readingQueue = 64
	ledInterval  = 200 * time.Millisecond
)

type sentenceWriter interface {
	Port() string
	WriteSentence(s string) error
	Close() error
}

var openSerialFn = func(cfg serialout.Config) (sentenceWriter, error) {
	w, err := serialout.Open(cfg)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// sink is one output fed with every heading change.
type sink struct {
	name  string
	dest  string
	send  func(compass.Reading) error
	close func() error
}

type runtime struct {
	cfg config.Config
	log *zap.SugaredLogger

	compass  *compass.Service
	status   *web.Status
	headings *web.HeadingBroadcaster
	logs     *web.LogBuffer
	registry *prometheus.Registry
	led      *indicator.LED
	sinks    []sink

	readings chan compass.Reading
	dropped  atomic.Uint64
}

// compassConfig maps the YAML sensor and sim sections onto the service.
func compassConfig(cfg config.Config, log *zap.SugaredLogger) compass.Config {
	s := cfg.Sensor
	cc := compass.Config{
		Backend:          s.Backend,
		Device:           s.Device,
		PeriphBus:        s.PeriphBus,
		Addr:             uint16(s.Address),
		Control:          byte(s.Control),
		ReadMode:         qmc5883l.ReadPoll,
		PollInterval:     s.PollInterval,
		FailureThreshold: s.FailureThreshold,
		BusPollBudget:    s.BusPollBudget,
		PowerUpDelay:     s.PowerUpDelay,
		RetryBackoff:     s.RetryBackoff,
		InitMaxAttempts:  s.InitMaxAttempts,
		Alpha:            s.Alpha,
		TempInterval:     s.TempInterval,
		StaleAfter:       s.StaleAfter,
		Sim: compass.SimConfig{
			RotationPeriod: cfg.Sim.RotationPeriod(),
			Amplitude:      cfg.Sim.FieldAmplitude,
			StartDeg:       cfg.Sim.StartDeg,
		},
		Logger: log,
	}
	if s.ReadMode == "block" {
		cc.ReadMode = qmc5883l.ReadBlock
	}
	if s.HardIron != nil {
		cc.Offsets = &heading.Offsets{X: s.HardIron.X, Y: s.HardIron.Y, Z: s.HardIron.Z}
	}
	return cc
}

func newRuntime(cfg config.Config, log *zap.SugaredLogger, logs *web.LogBuffer) (*runtime, error) {
	if err := config.DefaultAndValidate(&cfg); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	r := &runtime{
		cfg:      cfg,
		log:      log,
		headings: web.NewHeadingBroadcaster(),
		logs:     logs,
		registry: prometheus.NewRegistry(),
		readings: make(chan compass.Reading, readingQueue),
	}

	cc := compassConfig(cfg, log.Named("compass"))
	cc.Emit = r.enqueue
	r.compass = compass.New(cc)
	r.status = web.NewStatus(r.compass.Snapshot)
	metrics.Register(r.registry, r.compass.Snapshot)

	if err := r.openOutputs(); err != nil {
		return nil, multierr.Append(err, r.closeOutputs())
	}
	return r, nil
}

func (r *runtime) openOutputs() error {
	out := r.cfg.Output

	if out.UDP.Enable {
		b, err := udp.NewBroadcaster(out.UDP.Dest)
		if err != nil {
			return fmt.Errorf("udp output: %w", err)
		}
		talker := out.UDP.Talker
		r.addSink(sink{
			name: "udp",
			dest: b.Dest(),
			send: func(rd compass.Reading) error {
				return b.Send([]byte(nmea.HDM(talker, rd.Precise)))
			},
			close: b.Close,
		})
	}

	if out.Serial.Enable {
		w, err := openSerialFn(serialout.Config{Port: out.Serial.Port, Baud: out.Serial.Baud})
		if err != nil {
			return fmt.Errorf("serial output: %w", err)
		}
		talker := out.Serial.Talker
		r.addSink(sink{
			name: "serial",
			dest: w.Port(),
			send: func(rd compass.Reading) error {
				return w.WriteSentence(nmea.HDM(talker, rd.Precise))
			},
			close: w.Close,
		})
	}

	if out.MQTT.Enable {
		p, err := mqttout.Connect(mqttout.Config{
			Broker:   out.MQTT.Broker,
			ClientID: out.MQTT.ClientID,
			Topic:    out.MQTT.Topic,
			QoS:      byte(out.MQTT.QoS),
			Logger:   r.log.Named("mqtt"),
		})
		if err != nil {
			return fmt.Errorf("mqtt output: %w", err)
		}
		r.addSink(sink{
			name: "mqtt",
			dest: out.MQTT.Broker + " " + p.Topic(),
			send: func(rd compass.Reading) error {
				return p.Publish(mqttout.Message{
					HeadingDeg: rd.Heading,
					Precise:    rd.Precise,
					RawX:       rd.Raw.X,
					RawY:       rd.Raw.Y,
					RawZ:       rd.Raw.Z,
					Overflow:   rd.Raw.Overflow,
					Time:       rd.At,
				})
			},
			close: p.Close,
		})
	}

	if out.LED.Enable {
		led, err := indicator.Open(indicator.Config{Chip: out.LED.Chip, GPIO: out.LED.GPIO})
		if err != nil {
			// The LED is cosmetic; run without it.
			r.log.Warnw("status led unavailable", "chip", out.LED.Chip, "gpio", out.LED.GPIO, "error", err)
		} else {
			r.led = led
		}
	}
	return nil
}

func (r *runtime) addSink(s sink) {
	r.sinks = append(r.sinks, s)
	r.status.AddOutput(s.name, s.dest)
	r.log.Infow("output enabled", "output", s.name, "dest", s.dest)
}

// enqueue is the compass Emit callback. It must not block the acquisition
// loop, so a full queue drops the reading.
func (r *runtime) enqueue(rd compass.Reading) {
	select {
	case r.readings <- rd:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			r.log.Warnw("output queue full, dropping heading", "dropped", n)
		}
	}
}

func (r *runtime) deliver(rd compass.Reading) {
	r.headings.Publish(web.UpdateFromReading(rd))
	r.log.Debugw("heading", "deg", rd.Heading, "precise", rd.Precise, "x", rd.Raw.X, "y", rd.Raw.Y, "z", rd.Raw.Z)
	for _, s := range r.sinks {
		err := s.send(rd)
		r.status.MarkOutput(s.name, err)
		if err != nil {
			r.log.Debugw("output send failed", "output", s.name, "error", err)
		}
	}
}

func (r *runtime) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rd := <-r.readings:
			r.deliver(rd)
		}
	}
}

func ledState(snap compass.Snapshot) indicator.State {
	switch {
	case !snap.Running || snap.Failed:
		return indicator.StateOff
	case !snap.Valid:
		return indicator.StateSearching
	}
	return indicator.StateLocked
}

func (r *runtime) trackLED(ctx context.Context) {
	t := time.NewTicker(ledInterval)
	defer t.Stop()
	for {
		if err := r.led.Set(ledState(r.compass.Snapshot())); err != nil {
			r.log.Debugw("status led", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (r *runtime) handler() http.Handler {
	return web.Handler(web.Deps{
		Status:   r.status,
		Compass:  r.compass,
		Logs:     r.logs,
		Headings: r.headings,
		Metrics:  metrics.Handler(r.registry),
		Sensor: web.SensorInfo{
			Chip:    "QMC5883L",
			Backend: r.cfg.Sensor.Backend,
			Address: fmt.Sprintf("0x%02X", r.cfg.Sensor.Address),
			Control: r.compass.Snapshot().Control,
		},
	})
}

// Run starts the compass and serves outputs until ctx is done or the web
// server fails.
func (r *runtime) Run(ctx context.Context) error {
	if err := r.compass.Start(ctx); err != nil {
		return fmt.Errorf("compass start: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.dispatch(gctx)
		return nil
	})
	g.Go(func() error {
		r.logSummaries(gctx, summaryInterval)
		return nil
	})
	if r.led != nil {
		g.Go(func() error { return r.led.Run(gctx) })
		g.Go(func() error {
			r.trackLED(gctx)
			return nil
		})
	}
	if r.cfg.Web.Enabled() {
		r.log.Infow("web ui listening", "listen", r.cfg.Web.Listen)
		g.Go(func() error { return web.Serve(gctx, r.cfg.Web.Listen, r.handler()) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *runtime) closeOutputs() error {
	var err error
	for _, s := range r.sinks {
		if cerr := s.close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", s.name, cerr))
		}
	}
	r.sinks = nil
	if r.led != nil {
		err = multierr.Append(err, r.led.Close())
		r.led = nil
	}
	return err
}

// Close stops the compass first so no reading races the sink teardown.
func (r *runtime) Close() error {
	return multierr.Combine(r.compass.Close(), r.closeOutputs())
}
