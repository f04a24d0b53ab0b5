package core

import (
	"vehicle-control/internal/config"
	"vehicle-control/internal/messaging"
	"vehicle-control/internal/simclock"
	"vehicle-control/internal/types"
)

// callbacks binds inbound Redis messages to bus topics. Inputs that the
// configuration assigns to local hardware are ignored, and simulator sensors
// go through the synchronizer.
func (v *VehicleSystem) callbacks() messaging.Callbacks {
	cb := messaging.Callbacks{
		Joy:      v.handleJoy,
		Odometry: v.handleOdometry,
	}
	if v.cfg.Safety.Source == config.SourceRedis {
		cb.Safety = v.handleSafety
	}
	if v.cfg.Battery.Source == config.SourceRedis && v.sync == nil {
		cb.Battery = v.handleBattery
	}
	if v.sync != nil {
		cb.SimClock = v.handleSimClock
		cb.NavSatFix = func(n types.NavSatFix) { v.sync.Ingest(simclock.TopicNavSatFix, n) }
		cb.Imu = func(i types.Imu) { v.sync.Ingest(simclock.TopicImu, i) }
		cb.SimBattery = func(b types.BatteryState) { v.sync.Ingest(simclock.TopicBatteryState, b) }
	}
	return cb
}

func (v *VehicleSystem) handleJoy(j types.Joy) {
	v.topics.Joy.Publish(j)
}

func (v *VehicleSystem) handleSafety(s types.Safety) {
	v.logger.Debugf("Received safety: %s", s.Status)
	v.topics.Safety.Publish(s)
}

func (v *VehicleSystem) handleBattery(b types.BatteryState) {
	v.topics.BatteryState.Publish(b)
}

func (v *VehicleSystem) handleOdometry(o types.Odometry) {
	v.topics.Odometry.Publish(o)
}

func (v *VehicleSystem) handleSimClock(c types.SimClock) {
	v.sync.ObserveClock(c.Sim)
}
