package port

import (
	"context"
	"time"
)

const (
	TopicTelemetryNew     = "telemetry.new"
	TopicScanCorrelated   = "scan.correlated"
	TopicInventoryChanged = "inventory.changed"
)

type Publisher interface {
	// Publish hands payload to the fan-out. It never blocks on observers and never fails the caller.
	Publish(topic string, payload any)
}

// Envelope is the unit delivered to observers.
type Envelope struct {
	ID          string    `json:"id"`
	Topic       string    `json:"topic"`
	Payload     any       `json:"data"`
	PublishedAt time.Time `json:"published_at"`
}

type Sink interface {
	// Deliver pushes one envelope to a transport or a set of observers
	Deliver(ctx context.Context, env Envelope) error
}
