// Package config loads the vehicle-control configuration file.
//
// Defaults are applied first and the YAML file overrides them field by
// field, so a file only needs to name what differs. Command line flags are
// applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"vehicle-control/internal/control"
	"vehicle-control/internal/hardware"
	"vehicle-control/internal/simclock"
	"vehicle-control/internal/types"
)

// Input sources for the safety and battery topics.
const (
	SourceRedis = "redis"
	SourceGPIO  = "gpio"
	SourceADC   = "adc"
	SourceNone  = "none"
)

type Config struct {
	LogLevel string `yaml:"log_level"`

	Redis   RedisConfig   `yaml:"redis"`
	Control ControlConfig `yaml:"control"`
	Safety  SafetyConfig  `yaml:"safety"`
	Battery BatteryConfig `yaml:"battery"`
	Sim     SimConfig     `yaml:"sim"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ControlConfig tunes the control nodes and the FSM.
type ControlConfig struct {
	// Timeout bounds every node's poll and so sets the minimum publish rate.
	Timeout time.Duration `yaml:"timeout"`

	Axes    types.AxisMap   `yaml:"axes"`
	Buttons types.ButtonMap `yaml:"buttons"`

	AttitudeGain float64 `yaml:"attitude_gain"`
}

type SafetyConfig struct {
	// Source is redis, gpio or none. With none, arming is not gated on a
	// safety input at all.
	Source string                `yaml:"source"`
	GPIO   hardware.SafetyConfig `yaml:"gpio"`
}

type BatteryConfig struct {
	// Source is redis or adc.
	Source string                 `yaml:"source"`
	ADC    hardware.BatteryConfig `yaml:"adc"`
}

type SimConfig struct {
	Enabled        bool `yaml:"enabled"`
	BufferCapacity int  `yaml:"buffer_capacity"`
}

type MetricsConfig struct {
	// Listen is the address of the /metrics endpoint. Empty disables it.
	Listen string `yaml:"listen"`
}

func Default() *Config {
	return &Config{
		LogLevel: "info",
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Control: ControlConfig{
			Timeout:      control.DefaultTimeout,
			Axes:         types.DefaultAxisMap(),
			Buttons:      types.DefaultButtonMap(),
			AttitudeGain: control.DefaultAttitudeGain,
		},
		Safety: SafetyConfig{
			Source: SourceRedis,
			GPIO: hardware.SafetyConfig{
				Debounce: hardware.DefaultSafetyDebounce,
			},
		},
		Battery: BatteryConfig{
			Source: SourceRedis,
			ADC: hardware.BatteryConfig{
				Interval: hardware.DefaultBatteryInterval,
			},
		},
		Sim: SimConfig{
			BufferCapacity: simclock.DefaultCapacity,
		},
	}
}

// LoadFile reads path over the defaults. An empty path returns the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// RequireSafety reports whether arming is gated on a safety input.
func (c *Config) RequireSafety() bool {
	return c.Safety.Source != SourceNone
}

func (c *Config) Validate() error {
	var errs []error

	if c.Redis.Host == "" {
		errs = append(errs, fmt.Errorf("redis.host is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("redis.port out of range: %d", c.Redis.Port))
	}
	if c.Control.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("control.timeout must be positive"))
	}
	if c.Control.AttitudeGain <= 0 {
		errs = append(errs, fmt.Errorf("control.attitude_gain must be positive"))
	}

	switch c.Safety.Source {
	case SourceRedis, SourceGPIO, SourceNone:
	default:
		errs = append(errs, fmt.Errorf("safety.source must be one of: %s, %s, %s", SourceRedis, SourceGPIO, SourceNone))
	}

	switch c.Battery.Source {
	case SourceRedis:
	case SourceADC:
		if c.Battery.ADC.Device == "" {
			errs = append(errs, fmt.Errorf("battery.adc.device is required for the adc source"))
		}
		if c.Battery.ADC.Scale <= 0 {
			errs = append(errs, fmt.Errorf("battery.adc.scale must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("battery.source must be one of: %s, %s", SourceRedis, SourceADC))
	}

	if c.Sim.BufferCapacity <= 0 {
		errs = append(errs, fmt.Errorf("sim.buffer_capacity must be positive"))
	}

	return errors.Join(errs...)
}
