package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vehicle-control/internal/config"
	"vehicle-control/internal/control"
	"vehicle-control/internal/fsm"
	"vehicle-control/internal/hardware"
	"vehicle-control/internal/logger"
	"vehicle-control/internal/messaging"
	"vehicle-control/internal/metrics"
	"vehicle-control/internal/simclock"
)

const shutdownTimeout = 5 * time.Second

// VehicleSystem owns the topic catalog and runs every node on it.
type VehicleSystem struct {
	cfg    *config.Config
	logger *logger.Logger
	topics *Topics

	redis   MessagingClient
	safety  SafetySense
	battery BatterySense
	clock   simclock.Clock
	sync    *simclock.Synchronizer

	fsm       *fsm.Node
	manual    *control.ManualNode
	attitude  *control.AttitudeNode
	telemetry *telemetry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewVehicleSystem(cfg *config.Config, l *logger.Logger) *VehicleSystem {
	return &VehicleSystem{
		cfg:    cfg,
		logger: l.WithTag("vehicle"),
		topics: NewTopics(),
		clock:  simclock.MonotonicClock{},
	}
}

// Topics exposes the bus catalog.
func (v *VehicleSystem) Topics() *Topics {
	return v.topics
}

func (v *VehicleSystem) Start() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.logger.Infof("Starting vehicle system")
	v.ctx, v.cancel = context.WithCancel(context.Background())

	if v.cfg.Sim.Enabled {
		v.sync = simclock.New(v.clock, simclock.Topics{
			Clock:  v.topics.SimClock,
			Offset: v.topics.ClockOffset,
		}, v.cfg.Sim.BufferCapacity, v.logger)
		simclock.Route(v.sync, simclock.TopicNavSatFix, v.topics.NavSatFix)
		simclock.Route(v.sync, simclock.TopicImu, v.topics.Imu)
		simclock.Route(v.sync, simclock.TopicBatteryState, v.topics.BatteryState)
		v.logger.Infof("Simulation mode: sensors gated on sim_clock")
	}

	if err := v.createNodes(); err != nil {
		v.cancel()
		v.cancel = nil
		return err
	}

	// Initialize Redis client first (but don't start listeners yet)
	if v.redis == nil {
		v.redis = messaging.NewRedisClient(v.cfg.Redis.Host, v.cfg.Redis.Port, v.logger.WithTag("redis"), messaging.Callbacks{})
	}
	v.redis.SetCallbacks(v.callbacks())
	if err := v.redis.Connect(); err != nil {
		v.cancel()
		v.fsm.Arming().Stop()
		v.cancel = nil
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	v.telemetry = newTelemetry(v.topics, v.redis, v.cfg.Control.Timeout, v.logger)

	if err := v.startHardware(); err != nil {
		v.stop()
		return err
	}

	v.spawn(v.fsm.Run)
	v.spawn(v.manual.Run)
	v.spawn(v.attitude.Run)
	v.spawn(v.telemetry.Run)
	if v.sync != nil {
		v.spawn(v.sync.Run)
	}
	if v.cfg.Metrics.Listen != "" {
		v.spawn(func(ctx context.Context) {
			if err := metrics.Serve(ctx, v.cfg.Metrics.Listen, v.logger.WithTag("metrics")); err != nil {
				v.logger.Errorf("Metrics server failed: %v", err)
			}
		})
	}

	// Start Redis listeners last so no message lands before the nodes run
	if err := v.redis.StartListening(); err != nil {
		v.stop()
		return fmt.Errorf("failed to start Redis listeners: %w", err)
	}

	v.logger.Infof("Vehicle system started")
	return nil
}

func (v *VehicleSystem) createNodes() error {
	timeout := v.cfg.Control.Timeout

	fsmCfg := fsm.Config{
		Buttons:       v.cfg.Control.Buttons,
		RequireSafety: v.cfg.RequireSafety(),
	}
	if v.sync != nil {
		fsmCfg.Stamp = v.sync.BoardTime
	}

	var err error
	v.fsm, err = fsm.NewNode(v.ctx, fsm.Topics{
		Joy:     v.topics.Joy,
		Battery: v.topics.BatteryState,
		Safety:  v.topics.Safety,
		Fsm:     v.topics.Fsm,
	}, fsmCfg, timeout, v.logger)
	if err != nil {
		return fmt.Errorf("failed to create fsm node: %w", err)
	}

	v.manual = control.NewManualNode(v.topics.Joy, v.topics.ActuatorsManual, v.cfg.Control.Axes, timeout, v.logger)
	v.attitude = control.NewAttitudeNode(control.AttitudeTopics{
		Status:   v.topics.Fsm,
		Odometry: v.topics.Odometry,
		Manual:   v.topics.ActuatorsManual,
		CmdVel:   v.topics.CmdVel,
		RatesSp:  v.topics.RatesSp,
	}, control.QuaternionError(v.cfg.Control.AttitudeGain), timeout, v.logger)
	return nil
}

func (v *VehicleSystem) startHardware() error {
	if v.cfg.Safety.Source == config.SourceGPIO {
		if v.safety == nil {
			v.safety = hardware.NewSafetySwitch(v.cfg.Safety.GPIO, v.topics.Safety, v.logger)
		}
		if err := v.safety.Start(); err != nil {
			return fmt.Errorf("failed to start safety switch: %w", err)
		}
	}

	if v.cfg.Battery.Source == config.SourceADC {
		if v.sync != nil {
			v.logger.Infof("Simulation mode: ignoring battery ADC")
		} else {
			if v.battery == nil {
				v.battery = hardware.NewBatteryMonitor(v.cfg.Battery.ADC, v.topics.BatteryState, v.logger)
			}
			v.spawn(v.battery.Run)
		}
	}
	return nil
}

func (v *VehicleSystem) spawn(run func(ctx context.Context)) {
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		run(v.ctx)
	}()
}

func (v *VehicleSystem) Shutdown() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.logger.Infof("Shutting down vehicle system")
	v.stop()
}

// stop cancels every goroutine, waits for them and releases Redis and the
// hardware. The caller holds v.mu.
func (v *VehicleSystem) stop() {
	if v.cancel == nil {
		return
	}
	v.cancel()

	done := make(chan struct{})
	go func() {
		v.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if v.telemetry != nil {
			v.telemetry.Flush()
		}
	case <-time.After(shutdownTimeout):
		v.logger.Warnf("Timeout waiting for nodes to stop")
	}
	if v.fsm != nil {
		v.fsm.Arming().Stop()
	}

	if v.redis != nil {
		if err := v.redis.Close(); err != nil {
			v.logger.Warnf("Failed to close Redis client: %v", err)
		}
	}
	if v.safety != nil && v.cfg.Safety.Source == config.SourceGPIO {
		if err := v.safety.Close(); err != nil {
			v.logger.Warnf("Failed to close safety switch: %v", err)
		}
	}
	v.cancel = nil
}
