package types

// ArmingState is the arming half of the FSM state.
type ArmingState int

const (
	Disarmed ArmingState = iota
	Armed
)

func (a ArmingState) String() string {
	switch a {
	case Disarmed:
		return "disarmed"
	case Armed:
		return "armed"
	default:
		return "unknown"
	}
}

// Mode selects which control path is authoritative.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeManual
	ModeAuto
	ModeCmdVel
)

func (m Mode) String() string {
	switch m {
	case ModeManual:
		return "manual"
	case ModeAuto:
		return "auto"
	case ModeCmdVel:
		return "cmd_vel"
	default:
		return "unknown"
	}
}

// SafetyStatus is reported by the external safety input (switch or bridge).
type SafetyStatus int

const (
	SafetyUnknown SafetyStatus = iota
	SafetyNotSafeToArm
	SafetySafeToArm
)

func (s SafetyStatus) String() string {
	switch s {
	case SafetyNotSafeToArm:
		return "not-safe-to-arm"
	case SafetySafeToArm:
		return "safe-to-arm"
	default:
		return "unknown"
	}
}

// FrameMap is the frame id stamped on FSM output.
const FrameMap = "map"

// Header is stamped on every FSM output.
type Header struct {
	FrameID string `cbor:"frame_id"`
	Stamp   Time   `cbor:"stamp"`
	Seq     uint64 `cbor:"seq"`
}

// Fsm is the authoritative arming/mode state. Every control node reads it
// before commanding actuators.
type Fsm struct {
	Header Header      `cbor:"header"`
	Armed  ArmingState `cbor:"armed"`
	Mode   Mode        `cbor:"mode"`
}

// NewFsm returns the state the FSM node starts with.
func NewFsm() Fsm {
	return Fsm{
		Header: Header{FrameID: FrameMap},
		Armed:  Disarmed,
		Mode:   ModeUnknown,
	}
}

// IsArmed reports whether actuation is permitted.
func (f Fsm) IsArmed() bool {
	return f.Armed == Armed
}
