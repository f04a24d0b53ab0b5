package hardware

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"vehicle-control/internal/bus"
	"vehicle-control/internal/logger"
	"vehicle-control/internal/types"
)

// SafetyConfig locates the safety switch line.
type SafetyConfig struct {
	Chip      int           `yaml:"chip"`
	Line      int           `yaml:"line"`
	ActiveLow bool          `yaml:"active_low"`
	Debounce  time.Duration `yaml:"debounce"`
}

// SafetySwitch publishes the safety topic from a GPIO input. An active line
// means the operator has released the vehicle for arming.
type SafetySwitch struct {
	cfg    SafetyConfig
	topic  *bus.Topic[types.Safety]
	logger *logger.Logger

	mu   sync.Mutex
	chip *gpiocdev.Chip
	line *gpiocdev.Line
	last types.SafetyStatus
}

func NewSafetySwitch(cfg SafetyConfig, topic *bus.Topic[types.Safety], l *logger.Logger) *SafetySwitch {
	return &SafetySwitch{
		cfg:    cfg,
		topic:  topic,
		logger: l.WithTag("safety"),
	}
}

// Start requests the line, publishes its current level and then every edge.
func (s *SafetySwitch) Start() error {
	chip, err := gpiocdev.NewChip(fmt.Sprintf("gpiochip%d", s.cfg.Chip))
	if err != nil {
		return fmt.Errorf("failed to open GPIO chip %d: %w", s.cfg.Chip, err)
	}

	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(s.handleEvent),
		gpiocdev.WithConsumer(Consumer),
	}
	if s.cfg.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	if s.cfg.Debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(s.cfg.Debounce))
	}

	line, err := chip.RequestLine(s.cfg.Line, opts...)
	if err != nil {
		chip.Close()
		return fmt.Errorf("failed to request GPIO line %d: %w", s.cfg.Line, err)
	}

	s.mu.Lock()
	s.chip = chip
	s.line = line
	s.mu.Unlock()
	s.logger.Infof("Configured safety switch: chip=%d, line=%d", s.cfg.Chip, s.cfg.Line)

	level, err := line.Value()
	if err != nil {
		s.logger.Warnf("Failed to read initial safety level: %v", err)
		s.publish(types.SafetyUnknown)
		return nil
	}
	s.publish(statusFromLevel(level))
	return nil
}

func (s *SafetySwitch) handleEvent(evt gpiocdev.LineEvent) {
	switch evt.Type {
	case gpiocdev.LineEventRisingEdge:
		s.publish(statusFromLevel(1))
	case gpiocdev.LineEventFallingEdge:
		s.publish(statusFromLevel(0))
	}
}

func (s *SafetySwitch) publish(status types.SafetyStatus) {
	s.mu.Lock()
	changed := status != s.last
	s.last = status
	s.mu.Unlock()

	if changed {
		s.logger.Infof("safety: %s", status)
	}
	s.topic.Publish(types.Safety{Status: status})
}

// Status returns the last published status.
func (s *SafetySwitch) Status() types.SafetyStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *SafetySwitch) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.line != nil {
		err = s.line.Close()
		s.line = nil
	}
	if s.chip != nil {
		if cerr := s.chip.Close(); err == nil {
			err = cerr
		}
		s.chip = nil
	}
	return err
}

// statusFromLevel maps a logical line level onto a safety status.
func statusFromLevel(level int) types.SafetyStatus {
	if level == 1 {
		return types.SafetySafeToArm
	}
	return types.SafetyNotSafeToArm
}
