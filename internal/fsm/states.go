package fsm

import (
	"github.com/librescoot/librefsm"

	"vehicle-control/internal/types"
)

// Arming states
const (
	StateDisarmed librefsm.StateID = "disarmed"
	StateArmed    librefsm.StateID = "armed"
)

// Arming events, raised on joystick button edges
const (
	EvArm    librefsm.EventID = "arm"
	EvDisarm librefsm.EventID = "disarm"
)

// armingState maps a machine state onto the published arming value.
func armingState(id librefsm.StateID) types.ArmingState {
	if id == StateArmed {
		return types.Armed
	}
	return types.Disarmed
}
