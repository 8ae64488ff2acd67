// Package scenario loads SINR tracker scenarios from YAML and runs them on a
// simulated clock.
package scenario

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/sinr-tracker/spectrum"
)

// Event operations.
const (
	OpSetNoiseFloor = "set_noise_floor"
	OpStartRx       = "start_rx"
	OpEndRx         = "end_rx"
	OpAddSignal     = "add_signal"
)

// DefaultReceiver names the single receiver of a scenario that lists none.
const DefaultReceiver = "rx0"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid scenario")

// Config describes a scenario: a spectrum, a set of receivers and a timeline
// of tracker operations.
type Config struct {
	Name       string         `yaml:"name"`
	Start      string         `yaml:"start"`
	Spectrum   SpectrumConfig `yaml:"spectrum"`
	NoiseFloor NoiseConfig    `yaml:"noise_floor"`
	Receivers  []string       `yaml:"receivers"`
	Events     []EventConfig  `yaml:"events"`
}

// SpectrumConfig lists bin centre frequencies explicitly or as a uniform grid.
type SpectrumConfig struct {
	BinsHz    []float64 `yaml:"bins_hz"`
	StartHz   float64   `yaml:"start_hz"`
	SpacingHz float64   `yaml:"spacing_hz"`
	Bins      int       `yaml:"bins"`
}

// NoiseConfig is the noise floor applied to every receiver before the first
// event. At most one of PSD, Uniform or NoiseFigureDB may be set; the latter
// derives a flat thermal noise PSD.
type NoiseConfig struct {
	PSD           []float64 `yaml:"psd"`
	Uniform       *float64  `yaml:"uniform"`
	NoiseFigureDB *float64  `yaml:"noise_figure_db"`
}

// EventConfig is one tracker operation. An empty Receiver targets every
// receiver.
type EventConfig struct {
	At       time.Duration `yaml:"at"`
	Receiver string        `yaml:"receiver"`
	Op       string        `yaml:"op"`
	PSD      []float64     `yaml:"psd"`
	Duration time.Duration `yaml:"duration"`
}

// DefaultConfig returns an empty scenario with one receiver.
func DefaultConfig() Config {
	return Config{
		Name:      "scenario",
		Receivers: []string{DefaultReceiver},
	}
}

// Load reads and validates the scenario file at path.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	cfg, err := Parse(f)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a scenario from r, fills defaults and validates it. Unknown
// keys are rejected.
func Parse(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("decode scenario: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	def := DefaultConfig()
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		c.Name = def.Name
	}
	if len(c.Receivers) == 0 {
		c.Receivers = def.Receivers
	}
	for i := range c.Events {
		c.Events[i].Op = strings.ToLower(strings.TrimSpace(c.Events[i].Op))
		c.Events[i].Receiver = strings.TrimSpace(c.Events[i].Receiver)
	}
}

// Validate checks the scenario for consistency.
func (c Config) Validate() error {
	if _, err := c.StartTime(); err != nil {
		return err
	}
	bins, err := c.binCount()
	if err != nil {
		return err
	}

	set := 0
	for _, ok := range []bool{c.NoiseFloor.PSD != nil, c.NoiseFloor.Uniform != nil, c.NoiseFloor.NoiseFigureDB != nil} {
		if ok {
			set++
		}
	}
	if set > 1 {
		return invalid("noise_floor: psd, uniform and noise_figure_db are mutually exclusive")
	}
	if c.NoiseFloor.PSD != nil {
		if err := checkPSD("noise_floor.psd", c.NoiseFloor.PSD, bins); err != nil {
			return err
		}
	}
	if u := c.NoiseFloor.Uniform; u != nil && !validPower(*u) {
		return invalid("noise_floor.uniform must be a finite non-negative number, got %v", *u)
	}
	if nf := c.NoiseFloor.NoiseFigureDB; nf != nil && (math.IsInf(*nf, 0) || math.IsNaN(*nf)) {
		return invalid("noise_floor.noise_figure_db must be finite")
	}

	seen := make(map[string]bool, len(c.Receivers))
	for i, name := range c.Receivers {
		if strings.TrimSpace(name) == "" {
			return invalid("receivers[%d]: empty name", i)
		}
		if seen[name] {
			return invalid("receivers[%d]: duplicate receiver %q", i, name)
		}
		seen[name] = true
	}

	for i, ev := range c.Events {
		field := fmt.Sprintf("events[%d]", i)
		if ev.At < 0 {
			return invalid("%s.at must be >= 0, got %s", field, ev.At)
		}
		if ev.Receiver != "" && !seen[ev.Receiver] {
			return invalid("%s.receiver: unknown receiver %q", field, ev.Receiver)
		}
		switch ev.Op {
		case OpSetNoiseFloor, OpStartRx:
			if err := checkPSD(field+".psd", ev.PSD, bins); err != nil {
				return err
			}
		case OpAddSignal:
			if err := checkPSD(field+".psd", ev.PSD, bins); err != nil {
				return err
			}
			if ev.Duration < 0 {
				return invalid("%s.duration must be >= 0, got %s", field, ev.Duration)
			}
		case OpEndRx:
			if len(ev.PSD) != 0 {
				return invalid("%s.psd is not used by %s", field, OpEndRx)
			}
		case "":
			return invalid("%s.op is required", field)
		default:
			return invalid("%s.op: unsupported operation %q", field, ev.Op)
		}
	}
	return nil
}

// StartTime returns the simulated instant of offset zero. An empty start is
// the Unix epoch.
func (c Config) StartTime() (time.Time, error) {
	if strings.TrimSpace(c.Start) == "" {
		return time.Unix(0, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, c.Start)
	if err != nil {
		return time.Time{}, invalid("start: %v", err)
	}
	return t, nil
}

// Model builds the spectrum model the scenario runs on.
func (c Config) Model() (*spectrum.Model, error) {
	if _, err := c.binCount(); err != nil {
		return nil, err
	}
	if len(c.Spectrum.BinsHz) > 0 {
		return spectrum.NewModel(c.Spectrum.BinsHz)
	}
	return spectrum.NewUniformModel(c.Spectrum.StartHz, c.Spectrum.SpacingHz, c.Spectrum.Bins)
}

// NoiseValue returns the initial noise floor over m, or nil when the scenario
// sets none.
func (c Config) NoiseValue(m *spectrum.Model) (*spectrum.Value, error) {
	switch {
	case c.NoiseFloor.PSD != nil:
		return spectrum.NewValueFrom(m, c.NoiseFloor.PSD)
	case c.NoiseFloor.Uniform != nil:
		return spectrum.Uniform(m, *c.NoiseFloor.Uniform), nil
	case c.NoiseFloor.NoiseFigureDB != nil:
		return spectrum.ThermalNoise(m, *c.NoiseFloor.NoiseFigureDB), nil
	default:
		return nil, nil
	}
}

// Targets returns the receivers an event applies to.
func (c Config) Targets(ev EventConfig) []string {
	if ev.Receiver == "" {
		return c.Receivers
	}
	return []string{ev.Receiver}
}

func (c Config) binCount() (int, error) {
	s := c.Spectrum
	explicit := len(s.BinsHz) > 0
	grid := s.Bins != 0 || s.SpacingHz != 0 || s.StartHz != 0
	switch {
	case explicit && grid:
		return 0, invalid("spectrum: bins_hz and start_hz/spacing_hz/bins are mutually exclusive")
	case explicit:
		for i := 1; i < len(s.BinsHz); i++ {
			if s.BinsHz[i] <= s.BinsHz[i-1] {
				return 0, invalid("spectrum.bins_hz must be strictly increasing at index %d", i)
			}
		}
		return len(s.BinsHz), nil
	case s.Bins <= 0:
		return 0, invalid("spectrum.bins must be > 0")
	case s.SpacingHz <= 0:
		return 0, invalid("spectrum.spacing_hz must be > 0")
	default:
		return s.Bins, nil
	}
}

func checkPSD(field string, psd []float64, bins int) error {
	if len(psd) != bins {
		return invalid("%s: %d values for %d bins", field, len(psd), bins)
	}
	for i, p := range psd {
		if !validPower(p) {
			return invalid("%s[%d] must be a finite non-negative number, got %v", field, i, p)
		}
	}
	return nil
}

func validPower(p float64) bool {
	return p >= 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
