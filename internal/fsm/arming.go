package fsm

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/librescoot/librefsm"

	"vehicle-control/internal/logger"
	"vehicle-control/internal/metrics"
	"vehicle-control/internal/types"
)

// Config controls the arming rules.
type Config struct {
	Buttons types.ButtonMap

	// RequireSafety gates arming on the safety input reporting
	// safe-to-arm. Boards without a safety switch turn it off.
	RequireSafety bool

	// Stamp returns the time put on each output. Defaults to time since
	// NewArming.
	Stamp func() types.Time
}

func DefaultConfig() Config {
	return Config{
		Buttons:       types.DefaultButtonMap(),
		RequireSafety: true,
	}
}

type machine interface {
	Start(ctx context.Context) error
	SendSync(ev librefsm.Event) error
	CurrentState() librefsm.StateID
	Stop() error
}

// Arming owns the authoritative arming/mode state. It is driven by a single
// goroutine, the FSM node.
type Arming struct {
	cfg     Config
	logger  *logger.Logger
	machine machine

	state   types.Fsm
	prevJoy types.Joy
	safety  types.SafetyStatus
	battery types.BatteryState
	stopped atomic.Bool
}

// NewArming builds and starts the arming machine. The machine keeps running
// after ctx is cancelled so an Update already in progress can finish; call
// Stop once no more Updates will be made.
func NewArming(ctx context.Context, cfg Config, l *logger.Logger) (*Arming, error) {
	if cfg.Stamp == nil {
		start := time.Now()
		cfg.Stamp = func() types.Time {
			return types.TimeFromDuration(time.Since(start))
		}
	}

	a := &Arming{
		cfg:    cfg,
		logger: l,
		state:  types.NewFsm(),
	}

	m, err := NewDefinition(a).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build arming FSM: %w", err)
	}
	if err := m.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, fmt.Errorf("failed to start arming FSM: %w", err)
	}
	a.machine = m

	metrics.Armed.Set(0)
	metrics.Mode.Set(float64(types.ModeUnknown))
	return a, nil
}

// State returns the last output of Update.
func (a *Arming) State() types.Fsm {
	return a.state
}

// Update evaluates one cycle: an arm request, else a disarm request, then
// mode selection in priority order manual, auto, cmd_vel. The output is
// stamped and its sequence advanced whatever the outcome.
func (a *Arming) Update(joy types.Joy, battery types.BatteryState, safety types.Safety) types.Fsm {
	a.battery = battery
	a.safety = safety.Status
	b := a.cfg.Buttons

	if a.edge(joy, b.Arm) && !a.state.IsArmed() {
		a.requestArm()
	} else if a.edge(joy, b.Disarm) && a.state.IsArmed() {
		a.send(EvDisarm)
	}
	a.state.Armed = armingState(a.machine.CurrentState())

	prevMode := a.state.Mode
	switch {
	case a.edge(joy, b.Manual):
		a.state.Mode = types.ModeManual
	case a.edge(joy, b.Auto):
		a.state.Mode = types.ModeAuto
	case a.edge(joy, b.CmdVel):
		a.state.Mode = types.ModeCmdVel
	}
	if a.state.Mode != prevMode {
		a.logger.Infof("mode changed to: %s", a.state.Mode)
	}

	a.prevJoy = joy
	a.state.Header.Stamp = a.cfg.Stamp()
	a.state.Header.Seq++

	if a.state.IsArmed() {
		metrics.Armed.Set(1)
	} else {
		metrics.Armed.Set(0)
	}
	metrics.Mode.Set(float64(a.state.Mode))
	return a.state
}

// edge is true when button i reads 1 now and did not on the previous update.
func (a *Arming) edge(joy types.Joy, i int) bool {
	return joy.Button(i) == 1 && a.prevJoy.Button(i) != 1
}

func (a *Arming) requestArm() {
	if reason := a.armBlocker(); reason != "" {
		metrics.ArmRejections.WithLabelValues(reason).Inc()
		if reason == "safety" {
			a.logger.Warnf("safety: %s, cannot arm", a.safety)
		} else {
			a.logger.Warnf("cannot arm until mode selected")
		}
		return
	}
	a.send(EvArm)
}

// armBlocker names the first precondition that forbids arming, or "".
func (a *Arming) armBlocker() string {
	if a.cfg.RequireSafety && a.safety != types.SafetySafeToArm {
		return "safety"
	}
	if a.state.Mode == types.ModeUnknown {
		return "mode unknown"
	}
	return ""
}

// Stop shuts the machine down. Later arm and disarm requests are dropped.
func (a *Arming) Stop() {
	if a.stopped.Swap(true) {
		return
	}
	a.machine.Stop()
}

func (a *Arming) send(ev librefsm.EventID) {
	if a.stopped.Load() {
		a.logger.Warnf("Arming event %s dropped, machine stopped", ev)
		return
	}
	if err := a.machine.SendSync(librefsm.Event{ID: ev}); err != nil {
		a.logger.Warnf("Arming event %s not applied: %v", ev, err)
	}
}

// EnterArmed logs the arming context.
func (a *Arming) EnterArmed(c *librefsm.Context) error {
	a.logger.Infof("armed in mode: %s", a.state.Mode)
	a.logger.Infof("battery voltage: %f", a.battery.Voltage)
	return nil
}

func (a *Arming) EnterDisarmed(c *librefsm.Context) error {
	if c.FromState == StateArmed {
		a.logger.Infof("disarmed")
	}
	return nil
}

func (a *Arming) CanArm(c *librefsm.Context) bool {
	return a.armBlocker() == ""
}
