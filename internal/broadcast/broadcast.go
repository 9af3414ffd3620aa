// Package broadcast implements the fan-out mechanism (spec §4.8): snapshot
// the registry's live connections, write to each one concurrently, and
// prune any connection whose write failed. Broadcasts never run while the
// Puzzle Engine's mutex is held.
package broadcast

import (
	"log/slog"
	"sync"

	"hashpass/internal/registry"
)

// sanitizeFloat guards against NaN/Inf leaking into a JSON payload, the way
// the teacher's webserver does before every outbound message.
func sanitizeFloat(f float64) float64 {
	if f != f || f > maxFinite || f < -maxFinite {
		return 0
	}
	return f
}

const maxFinite = 1.7976931348623157e+308

// Message types sent to connected miners (spec §6).
const (
	TypeSessionToken    = "SESSION_TOKEN"
	TypePuzzleReset     = "PUZZLE_RESET"
	TypeNetworkHashrate = "NETWORK_HASHRATE"
	TypePong            = "PONG"
)

// PuzzleReset is the PUZZLE_RESET broadcast payload.
type PuzzleReset struct {
	Type             string  `json:"type"`
	Seed             string  `json:"seed"`
	Difficulty       int     `json:"difficulty"`
	SolveTime        float64 `json:"solve_time"`
	AverageSolveTime float64 `json:"average_solve_time"`
	PuzzleStartTime  float64 `json:"puzzle_start_time"`
}

// NewPuzzleReset builds a sanitized PUZZLE_RESET message.
func NewPuzzleReset(seed string, difficulty int, solveTime, avgSolveTime, startTime float64) PuzzleReset {
	return PuzzleReset{
		Type:             TypePuzzleReset,
		Seed:             seed,
		Difficulty:       difficulty,
		SolveTime:        sanitizeFloat(solveTime),
		AverageSolveTime: sanitizeFloat(avgSolveTime),
		PuzzleStartTime:  sanitizeFloat(startTime),
	}
}

// NetworkHashrate is the NETWORK_HASHRATE broadcast payload.
type NetworkHashrate struct {
	Type          string  `json:"type"`
	TotalHashrate float64 `json:"total_hashrate"`
	ActiveMiners  int     `json:"active_miners"`
	Timestamp     float64 `json:"timestamp"`
}

// NewNetworkHashrate builds a sanitized NETWORK_HASHRATE message.
func NewNetworkHashrate(total float64, active int, timestamp float64) NetworkHashrate {
	return NetworkHashrate{
		Type:          TypeNetworkHashrate,
		TotalHashrate: sanitizeFloat(total),
		ActiveMiners:  active,
		Timestamp:     sanitizeFloat(timestamp),
	}
}

// Hub fans messages out to every connection currently held by a registry.
type Hub struct {
	registry *registry.Registry
}

// New constructs a Hub bound to reg.
func New(reg *registry.Registry) *Hub {
	return &Hub{registry: reg}
}

// Broadcast writes msg to every live connection concurrently, pruning any
// connection whose write fails. It must never be called while the Puzzle
// Engine's mutex is held.
func (h *Hub) Broadcast(msg any) {
	conns := h.registry.Snapshot()
	if len(conns) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c *registry.Connection) {
			defer wg.Done()
			if err := c.WriteJSON(msg); err != nil {
				slog.Debug("broadcast write failed, pruning connection", "conn_id", c.ID, "err", err)
				h.registry.Unregister(c.ID)
				c.Socket.Close()
			}
		}(conn)
	}
	wg.Wait()
}
