package core

import (
	"vehicle-control/internal/bus"
	"vehicle-control/internal/types"
)

// Topics is the catalog of every topic on the vehicle bus.
type Topics struct {
	Joy             *bus.Topic[types.Joy]
	Safety          *bus.Topic[types.Safety]
	BatteryState    *bus.Topic[types.BatteryState]
	Odometry        *bus.Topic[types.Odometry]
	ActuatorsManual *bus.Topic[types.Actuators]
	CmdVel          *bus.Topic[types.Twist]
	RatesSp         *bus.Topic[types.Vector3]
	Fsm             *bus.Topic[types.Fsm]

	SimClock    *bus.Topic[types.SimClock]
	ClockOffset *bus.Topic[types.Time]
	NavSatFix   *bus.Topic[types.NavSatFix]
	Imu         *bus.Topic[types.Imu]
}

func NewTopics() *Topics {
	return &Topics{
		Joy:             bus.NewTopic[types.Joy]("joy"),
		Safety:          bus.NewTopic[types.Safety]("safety"),
		BatteryState:    bus.NewTopic[types.BatteryState]("battery_state"),
		Odometry:        bus.NewTopic[types.Odometry]("estimator_odometry"),
		ActuatorsManual: bus.NewTopic[types.Actuators]("actuators_manual"),
		CmdVel:          bus.NewTopic[types.Twist]("cmd_vel"),
		RatesSp:         bus.NewTopic[types.Vector3]("rates_sp"),
		Fsm:             bus.NewTopic[types.Fsm]("fsm"),

		SimClock:    bus.NewTopic[types.SimClock]("sim_clock"),
		ClockOffset: bus.NewTopic[types.Time]("clock_offset"),
		NavSatFix:   bus.NewTopic[types.NavSatFix]("nav_sat_fix"),
		Imu:         bus.NewTopic[types.Imu]("imu"),
	}
}
