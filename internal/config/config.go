package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log    LogConfig    `yaml:"log"`
	Sensor SensorConfig `yaml:"sensor"`
	Sim    SimConfig    `yaml:"sim"`
	Output OutputConfig `yaml:"output"`
	Web    WebConfig    `yaml:"web"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type SensorConfig struct {
	Backend   string `yaml:"backend"`
	Device    string `yaml:"device"`
	PeriphBus string `yaml:"periph_bus"`
	Address   int    `yaml:"address"`
	Control   int    `yaml:"control"`
	ReadMode  string `yaml:"read_mode"`

	PollInterval     time.Duration `yaml:"poll_interval"`
	FailureThreshold int           `yaml:"failure_threshold"`
	BusPollBudget    int           `yaml:"bus_poll_budget"`
	PowerUpDelay     time.Duration `yaml:"power_up_delay"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
	InitMaxAttempts  int           `yaml:"init_max_attempts"`
	TempInterval     time.Duration `yaml:"temp_interval"`
	StaleAfter       time.Duration `yaml:"stale_after"`

	Alpha    float64  `yaml:"alpha"`
	HardIron *Offsets `yaml:"hard_iron"`
}

type Offsets struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	Z int `yaml:"z"`
}

type SimConfig struct {
	RotationDegPerSec float64 `yaml:"rotation_deg_per_sec"`
	FieldAmplitude    float64 `yaml:"field_amplitude"`
	StartDeg          float64 `yaml:"start_deg"`
}

// RotationPeriod is the time for one simulated full turn. Zero holds the
// heading still.
func (s SimConfig) RotationPeriod() time.Duration {
	if s.RotationDegPerSec == 0 {
		return 0
	}
	deg := s.RotationDegPerSec
	if deg < 0 {
		deg = -deg
	}
	return time.Duration(360 / deg * float64(time.Second))
}

type OutputConfig struct {
	UDP    UDPConfig    `yaml:"udp"`
	Serial SerialConfig `yaml:"serial"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	LED    LEDConfig    `yaml:"led"`
}

type UDPConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
	Talker string `yaml:"talker"`
}

type SerialConfig struct {
	Enable bool   `yaml:"enable"`
	Port   string `yaml:"port"`
	Baud   int    `yaml:"baud"`
	Talker string `yaml:"talker"`
}

type MQTTConfig struct {
	Enable   bool   `yaml:"enable"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      int    `yaml:"qos"`
}

type LEDConfig struct {
	Enable bool   `yaml:"enable"`
	Chip   string `yaml:"chip"`
	GPIO   int    `yaml:"gpio"`
}

type WebConfig struct {
	// Enable defaults to true when omitted.
	Enable *bool  `yaml:"enable"`
	Listen string `yaml:"listen"`
}

func (w WebConfig) Enabled() bool { return w.Enable == nil || *w.Enable }

const (
	BackendLinux  = "linux"
	BackendPeriph = "periph"
	BackendGobot  = "gobot"
	BackendSim    = "sim"
)

var talkerRE = regexp.MustCompile(`^[A-Z]{2}$`)

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(b)
	if err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML without applying defaults. Unknown fields are an error.
func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return Config{}, nil
		}
		var te *yaml.TypeError
		if errors.As(err, &te) {
			if unknown := unknownFields(te); len(unknown) > 0 {
				return Config{}, fmt.Errorf("config contains unknown fields: %s", strings.Join(unknown, "; "))
			}
		}
		return Config{}, err
	}
	return cfg, nil
}

func unknownFields(te *yaml.TypeError) []string {
	var out []string
	for _, e := range te.Errors {
		if !strings.Contains(e, " not found in type ") {
			continue
		}
		// yaml.v3 prefixes each entry with "line N: ".
		if i := strings.Index(e, ": "); i >= 0 && strings.HasPrefix(e, "line ") {
			e = e[i+2:]
		}
		out = append(out, e)
	}
	return out
}

func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	switch cfg.Log.Level {
	case "":
		cfg.Log.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	switch cfg.Log.Format {
	case "":
		cfg.Log.Format = "console"
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be 'console' or 'json'")
	}

	if err := defaultSensor(&cfg.Sensor); err != nil {
		return err
	}

	if cfg.Sim.FieldAmplitude < 0 {
		return fmt.Errorf("sim.field_amplitude must be >= 0")
	}
	if cfg.Sim.FieldAmplitude == 0 {
		cfg.Sim.FieldAmplitude = 1500
	}

	if err := defaultOutput(&cfg.Output); err != nil {
		return err
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}
	return nil
}

func defaultSensor(s *SensorConfig) error {
	switch s.Backend {
	case "":
		s.Backend = BackendLinux
	case BackendLinux, BackendPeriph, BackendGobot, BackendSim:
	default:
		return fmt.Errorf("sensor.backend must be one of linux, periph, gobot, sim")
	}
	if s.Device == "" {
		s.Device = "/dev/i2c-1"
	}
	if s.Address == 0 {
		s.Address = 0x0D
	}
	if s.Address < 0x08 || s.Address > 0x77 {
		return fmt.Errorf("sensor.address must be a 7-bit address in 0x08..0x77")
	}
	if s.Control == 0 {
		s.Control = 0x11
	}
	if s.Control < 0 || s.Control > 0xFF {
		return fmt.Errorf("sensor.control must fit in one byte")
	}
	switch s.ReadMode {
	case "":
		s.ReadMode = "poll"
	case "poll", "block":
	default:
		return fmt.Errorf("sensor.read_mode must be 'poll' or 'block'")
	}

	if s.PollInterval < 0 {
		return fmt.Errorf("sensor.poll_interval must be >= 0")
	}
	if s.PollInterval == 0 {
		s.PollInterval = 20 * time.Millisecond
	}
	if s.FailureThreshold < 0 {
		return fmt.Errorf("sensor.failure_threshold must be > 0")
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 20
	}
	if s.BusPollBudget < 0 {
		return fmt.Errorf("sensor.bus_poll_budget must be > 0")
	}
	if s.BusPollBudget == 0 {
		s.BusPollBudget = 1_000_000
	}
	if s.PowerUpDelay < 0 {
		return fmt.Errorf("sensor.power_up_delay must be >= 0")
	}
	if s.PowerUpDelay == 0 {
		s.PowerUpDelay = 250 * time.Millisecond
	}
	if s.RetryBackoff < 0 {
		return fmt.Errorf("sensor.retry_backoff must be >= 0")
	}
	if s.RetryBackoff == 0 {
		s.RetryBackoff = 50 * time.Millisecond
	}
	if s.InitMaxAttempts < 0 {
		return fmt.Errorf("sensor.init_max_attempts must be >= 0")
	}
	if s.TempInterval <= 0 {
		s.TempInterval = 10 * time.Second
	}
	if s.StaleAfter <= 0 {
		s.StaleAfter = 2 * time.Second
	}

	if s.Alpha == 0 {
		s.Alpha = 0.01
	}
	if s.Alpha < 0 || s.Alpha > 1 {
		return fmt.Errorf("sensor.alpha must be in (0,1]")
	}
	if s.HardIron == nil {
		s.HardIron = &Offsets{X: 400, Y: 66, Z: 100}
	}
	return nil
}

func defaultOutput(o *OutputConfig) error {
	if o.UDP.Dest == "" {
		o.UDP.Dest = "127.0.0.1:10110"
	}
	if o.UDP.Talker == "" {
		o.UDP.Talker = "HC"
	}
	if !talkerRE.MatchString(o.UDP.Talker) {
		return fmt.Errorf("output.udp.talker must be two uppercase letters")
	}

	if o.Serial.Enable && o.Serial.Port == "" {
		return fmt.Errorf("output.serial.port is required when output.serial.enable is true")
	}
	if o.Serial.Baud < 0 {
		return fmt.Errorf("output.serial.baud must be > 0")
	}
	if o.Serial.Baud == 0 {
		o.Serial.Baud = 4800
	}
	if o.Serial.Talker == "" {
		o.Serial.Talker = "HC"
	}
	if !talkerRE.MatchString(o.Serial.Talker) {
		return fmt.Errorf("output.serial.talker must be two uppercase letters")
	}

	if o.MQTT.Enable && o.MQTT.Broker == "" {
		return fmt.Errorf("output.mqtt.broker is required when output.mqtt.enable is true")
	}
	if o.MQTT.ClientID == "" {
		o.MQTT.ClientID = "bussola"
	}
	if o.MQTT.Topic == "" {
		o.MQTT.Topic = "bussola/heading"
	}
	if o.MQTT.QoS < 0 || o.MQTT.QoS > 2 {
		return fmt.Errorf("output.mqtt.qos must be 0, 1 or 2")
	}

	if o.LED.Chip == "" {
		o.LED.Chip = "gpiochip0"
	}
	if o.LED.GPIO < 0 {
		return fmt.Errorf("output.led.gpio must be >= 0")
	}
	if o.LED.Enable && o.LED.GPIO == 0 {
		o.LED.GPIO = 17
	}
	return nil
}
