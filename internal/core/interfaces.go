package core

import (
	"context"

	"vehicle-control/internal/messaging"
	"vehicle-control/internal/types"
)

// MessagingClient defines the interface for Redis messaging operations needed by VehicleSystem
type MessagingClient interface {
	SetCallbacks(callbacks messaging.Callbacks)
	Connect() error
	StartListening() error
	Close() error

	// Telemetry
	PublishFsm(f types.Fsm) error
	PublishCmdVel(t types.Twist) error
	PublishRatesSp(v types.Vector3) error
}

// SafetySense publishes the safety topic from a local input.
type SafetySense interface {
	Start() error
	Close() error
}

// BatterySense publishes battery_state until ctx is done.
type BatterySense interface {
	Run(ctx context.Context)
}
