// Package config loads the daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"throttle-quadrant/internal/axis"
	"throttle-quadrant/internal/button"
	"throttle-quadrant/internal/calibration"
	"throttle-quadrant/internal/filter"
	"throttle-quadrant/internal/hid"
	"throttle-quadrant/internal/storage"
)

const DefaultPath = "/etc/throttle-quadrant/config.yaml"

// ADC drivers
const (
	DriverIIO     = "iio"
	DriverADS1115 = "ads1115"
)

type Config struct {
	LogLevel          string        `yaml:"log_level"`
	LoopPeriod        time.Duration `yaml:"loop_period"`
	DebounceTicks     uint32        `yaml:"debounce_ticks"`
	TunerWindow       uint16        `yaml:"tuner_window"`
	TunerRange        Range         `yaml:"tuner_range"`
	OutputRange       Range         `yaml:"output_range"`
	TelemetryInterval time.Duration `yaml:"telemetry_interval"`

	Axes  []AxisConfig `yaml:"axes"`
	Chain []StepConfig `yaml:"chain"`

	ADC       ADCConfig       `yaml:"adc"`
	Buttons   ButtonsConfig   `yaml:"buttons"`
	Indicator IndicatorConfig `yaml:"indicator"`
	HID       HIDConfig       `yaml:"hid"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Monitor   MonitorConfig   `yaml:"monitor"`
}

// Range is an inclusive output interval.
type Range struct {
	Min uint16 `yaml:"min"`
	Max uint16 `yaml:"max"`
}

type AxisConfig struct {
	Name       string `yaml:"name"`
	ADCChannel int    `yaml:"adc_channel"`
	Reversed   bool   `yaml:"reversed"`
}

// StepConfig describes one processing step. Only the fields relevant to
// Kind are read.
type StepConfig struct {
	Kind        string  `yaml:"kind"`
	Window      int     `yaml:"window,omitempty"`
	Sensitivity uint16  `yaml:"sensitivity,omitempty"`
	Factor      float32 `yaml:"factor,omitempty"`
}

type ADCConfig struct {
	Driver       string `yaml:"driver"`
	IIODevice    string `yaml:"iio_device"`
	I2CBus       string `yaml:"i2c_bus"`
	I2CAddr      uint16 `yaml:"i2c_addr"`
	TunerChannel int    `yaml:"tuner_channel"`
}

type ButtonsConfig struct {
	Chip          string `yaml:"chip"`
	CalibrateLine int    `yaml:"calibrate_line"`
	ReverseLine   int    `yaml:"reverse_line"`
	ActiveLow     bool   `yaml:"active_low"`
}

type IndicatorConfig struct {
	Enabled bool          `yaml:"enabled"`
	PWMChip int           `yaml:"pwmchip"`
	Channel int           `yaml:"channel"`
	Period  time.Duration `yaml:"period"`
}

type HIDConfig struct {
	Device string `yaml:"device"`
}

type StorageConfig struct {
	Path         string `yaml:"path"`
	Size         uint32 `yaml:"size"`
	PageSize     uint32 `yaml:"page_size"`
	RecordOffset uint32 `yaml:"record_offset"`
}

type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type MonitorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		LogLevel:          "info",
		LoopPeriod:        time.Millisecond,
		DebounceTicks:     button.DefaultWindow,
		TunerWindow:       16,
		TunerRange:        Range{Min: 5, Max: 20},
		OutputRange:       Range{Min: 0, Max: hid.LogicalMax},
		TelemetryInterval: 100 * time.Millisecond,
		Axes: []AxisConfig{
			{Name: "throttle", ADCChannel: 0},
			{Name: "prop", ADCChannel: 1},
			{Name: "mixture", ADCChannel: 2},
		},
		Chain: []StepConfig{
			{Kind: "mean", Window: 16},
			{Kind: "delta", Sensitivity: 10},
		},
		ADC: ADCConfig{
			Driver:       DriverIIO,
			IIODevice:    "/sys/bus/iio/devices/iio:device0",
			I2CBus:       "",
			I2CAddr:      0x48,
			TunerChannel: 3,
		},
		Buttons: ButtonsConfig{
			Chip:          "gpiochip0",
			CalibrateLine: 12,
			ReverseLine:   4,
			ActiveLow:     true,
		},
		Indicator: IndicatorConfig{
			Enabled: true,
			PWMChip: 0,
			Channel: 0,
			Period:  time.Second,
		},
		HID: HIDConfig{Device: hid.DefaultDevice},
		Storage: StorageConfig{
			Path:         "/var/lib/throttle-quadrant/flash.img",
			Size:         storage.DefaultSize,
			PageSize:     storage.DefaultPageSize,
			RecordOffset: calibration.DefaultOffset,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "throttle-quadrant",
			TopicPrefix: "throttle-quadrant",
		},
		Monitor: MonitorConfig{Addr: ":8080"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	bs, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(bs, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate performs sanity checks on the configuration.
func (c Config) Validate() error {
	if c.LoopPeriod <= 0 {
		return fmt.Errorf("loop_period must be > 0")
	}
	if c.DebounceTicks == 0 {
		return fmt.Errorf("debounce_ticks must be > 0")
	}
	if c.TunerWindow == 0 {
		return fmt.Errorf("tuner_window must be > 0")
	}
	if c.TunerRange.Min >= c.TunerRange.Max {
		return fmt.Errorf("tuner_range.min must be < tuner_range.max")
	}
	if c.OutputRange.Min >= c.OutputRange.Max {
		return fmt.Errorf("output_range.min must be < output_range.max")
	}
	if c.TelemetryInterval < 0 {
		return fmt.Errorf("telemetry_interval must be >= 0")
	}
	if len(c.Axes) != calibration.AxisCount {
		return fmt.Errorf("axes must list exactly %d entries, got %d", calibration.AxisCount, len(c.Axes))
	}
	if c.ADC.TunerChannel < 0 {
		return fmt.Errorf("adc.tuner_channel must be >= 0")
	}
	channels := map[int]string{c.ADC.TunerChannel: "tuner"}
	for i, a := range c.Axes {
		if a.ADCChannel < 0 {
			return fmt.Errorf("axes[%d].adc_channel must be >= 0", i)
		}
		if owner, ok := channels[a.ADCChannel]; ok {
			return fmt.Errorf("axes[%d].adc_channel %d already used by %s", i, a.ADCChannel, owner)
		}
		channels[a.ADCChannel] = a.Name
	}
	if len(c.Chain) > axis.Capacity {
		return fmt.Errorf("chain has %d steps, capacity is %d", len(c.Chain), axis.Capacity)
	}
	for i, s := range c.Chain {
		if _, err := s.Build(); err != nil {
			return fmt.Errorf("chain[%d]: %w", i, err)
		}
	}
	switch c.ADC.Driver {
	case DriverIIO:
		if c.ADC.IIODevice == "" {
			return fmt.Errorf("adc.iio_device is required for the iio driver")
		}
	case DriverADS1115:
		if c.ADC.TunerChannel > 3 {
			return fmt.Errorf("adc.tuner_channel must be 0-3 for ads1115")
		}
		for i, a := range c.Axes {
			if a.ADCChannel > 3 {
				return fmt.Errorf("axes[%d].adc_channel must be 0-3 for ads1115", i)
			}
		}
	default:
		return fmt.Errorf("unknown adc.driver %q", c.ADC.Driver)
	}
	if c.Indicator.Enabled && c.Indicator.Period <= 0 {
		return fmt.Errorf("indicator.period must be > 0")
	}
	if c.Storage.PageSize == 0 || c.Storage.Size%c.Storage.PageSize != 0 {
		return fmt.Errorf("storage.size must be a multiple of storage.page_size")
	}
	if c.Storage.RecordOffset%c.Storage.PageSize != 0 {
		return fmt.Errorf("storage.record_offset must be page aligned")
	}
	if uint64(c.Storage.RecordOffset)+uint64(calibration.Size(calibration.AxisCount)) > uint64(c.Storage.Size) {
		return fmt.Errorf("storage.record_offset 0x%X out of range", c.Storage.RecordOffset)
	}
	if c.Redis.Enabled && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		return fmt.Errorf("redis.port must be 1-65535")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.Monitor.Enabled && c.Monitor.Addr == "" {
		return fmt.Errorf("monitor.addr is required when the monitor is enabled")
	}
	return nil
}

// Build constructs the processing step described by s.
func (s StepConfig) Build() (filter.Step, error) {
	kind, err := filter.ParseKind(s.Kind)
	if err != nil {
		return filter.Step{}, err
	}
	switch kind {
	case filter.KindMovingAverage:
		return filter.NewMovingAverage(s.Window)
	case filter.KindDeltaGate:
		return filter.NewDeltaGate(s.Sensitivity), nil
	case filter.KindExponentialSmooth:
		if s.Factor < 0 || s.Factor > 1 {
			return filter.Step{}, fmt.Errorf("factor %v outside [0,1]", s.Factor)
		}
		return filter.NewExponentialSmooth(s.Factor), nil
	default:
		return filter.Step{}, fmt.Errorf("step kind %q cannot be chained", s.Kind)
	}
}
