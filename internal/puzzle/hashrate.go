package puzzle

import (
	"context"
	"sync"
	"time"

	"hashpass/internal/broadcast"
	"hashpass/internal/registry"
)

const (
	hashrateTickInterval = 5 * time.Second
	hashrateStaleAfter   = 10 * time.Second
	chartHistoryCapacity = 50
)

// HashratePoint is one entry in the bounded chart history (spec §4.7).
type HashratePoint struct {
	Timestamp     time.Time
	TotalHashrate float64
	ActiveMiners  int
}

// Aggregator is the Hashrate Aggregator (spec §4.7): every 5 seconds it
// discards stale per-client samples, sums the rest, appends to a bounded
// chart history, and broadcasts the network total.
type Aggregator struct {
	mu      sync.Mutex
	history []HashratePoint

	registry *registry.Registry
	hub      Broadcaster
}

// NewAggregator constructs an Aggregator bound to reg, broadcasting through
// hub.
func NewAggregator(reg *registry.Registry, hub Broadcaster) *Aggregator {
	return &Aggregator{registry: reg, hub: hub}
}

// Run ticks every 5 seconds until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(hashrateTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick()
		}
	}
}

func (a *Aggregator) tick() {
	total, active, _ := a.registry.NetworkHashrate(hashrateStaleAfter)
	now := time.Now()

	a.mu.Lock()
	a.history = append(a.history, HashratePoint{Timestamp: now, TotalHashrate: total, ActiveMiners: active})
	if len(a.history) > chartHistoryCapacity {
		a.history = a.history[len(a.history)-chartHistoryCapacity:]
	}
	a.mu.Unlock()

	if a.hub != nil {
		a.hub.Broadcast(broadcast.NewNetworkHashrate(total, active, float64(now.Unix())))
	}
}

// History returns a copy of the bounded chart history, most recent last.
func (a *Aggregator) History() []HashratePoint {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]HashratePoint, len(a.history))
	copy(out, a.history)
	return out
}
