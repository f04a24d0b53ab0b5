package fsm

import "github.com/librescoot/librefsm"

// NewDefinition creates the arming FSM definition.
// Disarming is never guarded.
func NewDefinition(actions Actions) *librefsm.Definition {
	return librefsm.NewDefinition().
		State(StateDisarmed,
			librefsm.WithOnEnter(actions.EnterDisarmed),
		).
		State(StateArmed,
			librefsm.WithOnEnter(actions.EnterArmed),
		).

		// === Transitions ===

		Transition(StateDisarmed, EvArm, StateArmed,
			librefsm.WithGuard(actions.CanArm),
		).
		Transition(StateArmed, EvDisarm, StateDisarmed).

		// Initial state
		Initial(StateDisarmed)
}
