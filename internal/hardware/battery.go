package hardware

import (
	"context"
	"fmt"
	"time"

	"vehicle-control/internal/bus"
	"vehicle-control/internal/logger"
	"vehicle-control/internal/types"
)

// BatteryConfig describes a battery voltage divider read through an IIO ADC.
type BatteryConfig struct {
	Device   string        `yaml:"device"`
	Channel  int           `yaml:"channel"`
	Scale    float64       `yaml:"scale"` // volts per count
	MaxRaw   int           `yaml:"max_raw"`
	Interval time.Duration `yaml:"interval"`
}

// BatteryMonitor samples the battery ADC and publishes battery_state.
type BatteryMonitor struct {
	cfg    BatteryConfig
	root   string
	topic  *bus.Topic[types.BatteryState]
	logger *logger.Logger
}

func NewBatteryMonitor(cfg BatteryConfig, topic *bus.Topic[types.BatteryState], l *logger.Logger) *BatteryMonitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultBatteryInterval
	}
	return &BatteryMonitor{
		cfg:    cfg,
		root:   IioDevicesDir,
		topic:  topic,
		logger: l.WithTag("battery"),
	}
}

// Sample reads one voltage.
func (b *BatteryMonitor) Sample() (types.BatteryState, error) {
	raw, err := ReadAdcValue(b.root, b.cfg.Device, b.cfg.Channel)
	if err != nil {
		return types.BatteryState{}, err
	}
	if b.cfg.MaxRaw > 0 && !InRange(raw, 0, b.cfg.MaxRaw) {
		return types.BatteryState{}, fmt.Errorf("ADC value %d out of range [0, %d]", raw, b.cfg.MaxRaw)
	}
	return types.BatteryState{Voltage: float64(raw) * b.cfg.Scale}, nil
}

// Run publishes a sample every interval until ctx is done. Failed samples
// are logged and skipped.
func (b *BatteryMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		if s, err := b.Sample(); err != nil {
			b.logger.Warnf("Failed to sample battery: %v", err)
		} else {
			b.topic.Publish(s)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
