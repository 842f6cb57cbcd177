package presence

import (
	"context"
	"log/slog"
	"time"

	"planet-chat/contract"
)

// Ensure *Janitor implements the contract.Worker interface at compile time.
var _ contract.Worker = (*Janitor)(nil)

// Janitor sweeps expired presence leases on a fixed interval. It is
// the infrastructure-level cleanup that stands in for the realtime
// store's disconnect hook: application code cannot run after an
// abrupt disconnect, the janitor can.
type Janitor struct {
	registry *Registry
	interval time.Duration
	log      *slog.Logger
}

func NewJanitor(registry *Registry, interval time.Duration, log *slog.Logger) *Janitor {
	return &Janitor{registry: registry, interval: interval, log: log}
}

func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Debug("Stopping worker")
			return ctx.Err()
		case <-ticker.C:
			j.registry.Sweep(time.Now())
		}
	}
}
