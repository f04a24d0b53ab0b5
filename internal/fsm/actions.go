package fsm

import "github.com/librescoot/librefsm"

// Actions is implemented by Arming to provide state entry hooks and the arm
// guard to the machine definition.
type Actions interface {
	// State entry actions
	EnterArmed(c *librefsm.Context) error
	EnterDisarmed(c *librefsm.Context) error

	// CanArm is true when the safety input allows arming and a mode has
	// been selected.
	CanArm(c *librefsm.Context) bool
}
