// Package registry implements the Connection Registry (spec §4.5): tracks
// accepted WebSocket connections, per-connection mining state, and the
// mining-time accumulator that only advances while at least one miner is
// online.
package registry

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection is spec's Connection entity: a stable handle bound to an IP.
type Connection struct {
	ID          string
	IP          string
	Socket      *websocket.Conn
	ConnectedAt time.Time

	// writeMu serializes writes to Socket: gorilla/websocket connections
	// are not safe for concurrent writers, and both the broadcaster and
	// the per-connection read loop's direct replies (PONG) write to it.
	writeMu sync.Mutex
}

// WriteJSON writes msg to the connection's socket under its write lock.
func (c *Connection) WriteJSON(msg any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Socket.WriteJSON(msg)
}

// HashrateSample is spec's HashrateSample entity.
type HashrateSample struct {
	Rate      float64
	Timestamp time.Time
	IP        string
}

// Registry holds all live connections and the mining-time accumulator.
type Registry struct {
	mu    sync.Mutex
	byID      map[string]*Connection
	byIP      map[string]*Connection
	rates     map[string]HashrateSample // keyed by connection ID
	overspeed map[string]HashrateSample // samples above max_nonce_speed, kept out of rates

	activeMiners map[string]struct{}

	totalMiningTime float64
	lastStateChange time.Time
	isMiningActive  bool
}

// New constructs an empty Connection Registry.
func New() *Registry {
	return &Registry{
		byID:         make(map[string]*Connection),
		byIP:         make(map[string]*Connection),
		rates:        make(map[string]HashrateSample),
		overspeed:    make(map[string]HashrateSample),
		activeMiners: make(map[string]struct{}),
	}
}

// Register adds conn to the registry, indexed by ID and IP. At most one
// Connection exists per IP at any instant (spec §3 invariant); callers are
// responsible for evicting any prior connection from the same IP first.
func (r *Registry) Register(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[conn.ID] = conn
	r.byIP[conn.IP] = conn
}

// Unregister removes conn and stops its mining timer contribution.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byID[id]
	if ok {
		if r.byIP[conn.IP] == conn {
			delete(r.byIP, conn.IP)
		}
		delete(r.byID, id)
	}
	delete(r.rates, id)
	delete(r.overspeed, id)
	r.stopMinerLocked(id)
}

// ByIP returns the currently registered connection for ip, if any.
func (r *Registry) ByIP(ip string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.byIP[ip]
	return conn, ok
}

// Snapshot returns a point-in-time copy of all registered connections, for
// the broadcast mechanism to fan out to without holding the registry lock
// across network I/O (spec §4.8: "Broadcasts capture a list snapshot").
func (r *Registry) Snapshot() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Connection, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	return out
}

// Count returns the number of currently registered connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// StartMiner records that id began mining; if it is the first active miner,
// the mining timer starts running.
func (r *Registry) StartMiner(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, already := r.activeMiners[id]; already {
		return
	}
	if len(r.activeMiners) == 0 {
		r.isMiningActive = true
		r.lastStateChange = time.Now()
	}
	r.activeMiners[id] = struct{}{}
}

// StopMiner records that id stopped mining; if it was the last active miner,
// the mining timer pauses and its elapsed segment is folded into the total.
func (r *Registry) StopMiner(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopMinerLocked(id)
}

func (r *Registry) stopMinerLocked(id string) {
	if _, ok := r.activeMiners[id]; !ok {
		return
	}
	delete(r.activeMiners, id)
	if len(r.activeMiners) == 0 && r.isMiningActive {
		r.totalMiningTime += time.Since(r.lastStateChange).Seconds()
		r.isMiningActive = false
	}
}

// MiningTime returns the accumulated mining-time for the current puzzle:
// total_mining_time plus the in-progress segment if mining is currently
// active. It is monotonically non-decreasing between resets.
func (r *Registry) MiningTime() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isMiningActive {
		return r.totalMiningTime + time.Since(r.lastStateChange).Seconds()
	}
	return r.totalMiningTime
}

// ResetMiningTimer zeroes the mining-time accumulator and clears the active
// miner set, called by the Puzzle Engine on every reset.
func (r *Registry) ResetMiningTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeMiners = make(map[string]struct{})
	r.totalMiningTime = 0
	r.isMiningActive = false
}

// UpdateHashrate records id's latest reported hash rate. Callers must
// already have validated rate is non-negative and at most max_nonce_speed
// per spec §4.5; samples above that threshold belong in RecordOverspeed
// instead so they never enter the broadcast-visible total.
func (r *Registry) UpdateHashrate(id, ip string, rate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[id] = HashrateSample{Rate: rate, Timestamp: time.Now(), IP: ip}
}

// RecordOverspeed records id's latest hash rate sample after it exceeded
// max_nonce_speed (spec §4.5). Overspeed samples are tracked separately
// from rates so they remain observable without inflating NetworkHashrate's
// broadcast-visible total.
func (r *Registry) RecordOverspeed(id, ip string, rate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overspeed[id] = HashrateSample{Rate: rate, Timestamp: time.Now(), IP: ip}
}

// Overspeed returns a point-in-time snapshot of all tracked overspeed
// samples, for admin/observability surfaces.
func (r *Registry) Overspeed() []HashrateSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]HashrateSample, 0, len(r.overspeed))
	for _, s := range r.overspeed {
		out = append(out, s)
	}
	return out
}

// RemoveHashrate discards id's hashrate and overspeed samples (on disconnect).
func (r *Registry) RemoveHashrate(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rates, id)
	delete(r.overspeed, id)
}

// NetworkHashrate sums all samples newer than staleTimeout, evicting stale
// ones, and reports the totals (spec §4.7).
func (r *Registry) NetworkHashrate(staleTimeout time.Duration) (total float64, active int, staleRemoved int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for id, sample := range r.rates {
		if now.Sub(sample.Timestamp) > staleTimeout {
			delete(r.rates, id)
			staleRemoved++
			continue
		}
		total += sample.Rate
		active++
	}
	return total, active, staleRemoved
}
