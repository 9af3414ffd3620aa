// Package puzzle implements the Puzzle Engine (spec §4.1), the Difficulty
// Controller (§4.2), the Timeout Watcher (§4.6), and the Hashrate
// Aggregator (§4.7): the stateful heart of HashPass, guarded by a single
// mutex that gives the single-winner critical section its atomicity.
package puzzle

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"hashpass/internal/audit"
	"hashpass/internal/broadcast"
	"hashpass/internal/keystore"
	"hashpass/internal/metrics"
	"hashpass/internal/pow"
	"hashpass/internal/registry"
)

// Broadcaster is satisfied by *broadcast.Hub; accepting an interface keeps
// the Engine testable without standing up real WebSocket connections.
type Broadcaster interface {
	Broadcast(msg any)
}

// Notifier is satisfied by *external.WebhookNotifier.
type Notifier interface {
	Notify(ctx context.Context, visitorID, inviteCode string)
}

// Auditor is satisfied by *audit.Log.
type Auditor interface {
	Append(rec audit.Record)
}

// Submission is spec's Submission entity, already size-validated by the
// HTTP layer (visitorId ≤128, traceData ≤2048, hash ≤256).
type Submission struct {
	VisitorID     string
	Nonce         uint64
	SubmittedSeed string
	TraceData     string
	Hash          string
}

// Config is the Engine's tunable economic parameters (spec §3
// DifficultyConfig + Argon2Params).
type Config struct {
	Difficulty    int
	MinDifficulty int
	MaxDifficulty int
	TargetTime    float64
	TargetTimeout float64
	Argon2Params  pow.Params
	MaxNonceSpeed float64
}

const solveHistoryCapacity = 50

// Engine is the single process-wide Puzzle Engine instance (spec §9:
// "Process-wide singletons... model them as one top-level value constructed
// at startup and passed by reference").
type Engine struct {
	mu sync.RWMutex

	seed            string
	puzzleStartTime time.Time

	difficulty *difficultyState
	params     pow.Params
	maxSpeed   float64

	solveHistory []float64

	registry *registry.Registry
	pool     *pow.Pool
	keys     *keystore.Store
	hub      Broadcaster
	notifier Notifier
	auditor  Auditor

	watcher *Watcher
}

// New constructs an Engine and generates its first puzzle seed.
func New(cfg Config, reg *registry.Registry, pool *pow.Pool, keys *keystore.Store, hub Broadcaster, notifier Notifier, auditor Auditor) (*Engine, error) {
	seed, err := generateSeed()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		seed:            seed,
		puzzleStartTime: time.Now(),
		difficulty:      newDifficultyState(cfg.Difficulty, cfg.MinDifficulty, cfg.MaxDifficulty, cfg.TargetTime),
		params:          cfg.Argon2Params,
		maxSpeed:        cfg.MaxNonceSpeed,
		registry:        reg,
		pool:            pool,
		keys:            keys,
		hub:             hub,
		notifier:        notifier,
		auditor:         auditor,
	}
	e.watcher = NewWatcher(e, cfg.TargetTimeout)
	return e, nil
}

// WarmStartDifficulty replays recent solve times into the EMA (spec §4.2).
func (e *Engine) WarmStartDifficulty(recentSolveTimes []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.difficulty.warmStart(recentSolveTimes)
}

func generateSeed() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate puzzle seed: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// Snapshot is the read-only view returned to clients by GET /puzzle.
type Snapshot struct {
	Seed             string
	Difficulty       int
	MemoryCostKB     uint32
	TimeCost         uint32
	Parallelism      uint8
	WorkerCount      int
	PuzzleStartTime  time.Time
	LastSolveTime    float64
	AverageSolveTime float64
}

// Current returns a point-in-time snapshot of the live puzzle.
func (e *Engine) Current(workerCount int) Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Snapshot{
		Seed:             e.seed,
		Difficulty:       e.difficulty.difficulty,
		MemoryCostKB:     e.params.MemoryCost,
		TimeCost:         e.params.TimeCost,
		Parallelism:      e.params.Parallelism,
		WorkerCount:      workerCount,
		PuzzleStartTime:  e.puzzleStartTime,
		LastSolveTime:    e.lastSolveTimeLocked(),
		AverageSolveTime: e.averageSolveTimeLocked(),
	}
}

func (e *Engine) lastSolveTimeLocked() float64 {
	if len(e.solveHistory) == 0 {
		return 0
	}
	return e.solveHistory[len(e.solveHistory)-1]
}

func (e *Engine) averageSolveTimeLocked() float64 {
	if len(e.solveHistory) == 0 {
		return 0
	}
	var sum float64
	for _, t := range e.solveHistory {
		sum += t
	}
	return sum / float64(len(e.solveHistory))
}

func (e *Engine) pushSolveHistoryLocked(t float64) {
	e.solveHistory = append(e.solveHistory, t)
	if len(e.solveHistory) > solveHistoryCapacity {
		e.solveHistory = e.solveHistory[len(e.solveHistory)-solveHistoryCapacity:]
	}
}

// Submit runs the single-winner critical section (spec §4.1).
func (e *Engine) Submit(ctx context.Context, sub Submission, requestIP string) (string, error) {
	// Step 1: fast-fail outside M. A cheap RLock is enough to discard the
	// overwhelming majority of concurrent racers whose seed has already
	// gone stale, without contending for the exclusive lock.
	e.mu.RLock()
	seedAtEntry := e.seed
	e.mu.RUnlock()
	if sub.SubmittedSeed != seedAtEntry {
		metrics.RecordPuzzleFailed("stale_seed")
		return "", newError(KindPuzzleStale, "puzzle seed has already changed")
	}

	// Step 2: anti-spoof outside M.
	if !strings.Contains(sub.TraceData, "ip="+requestIP) {
		metrics.RecordPuzzleFailed("identity_mismatch")
		return "", newError(KindIdentityMismatch, "trace data does not match request IP")
	}

	// Step 3: acquire M.
	e.mu.Lock()

	// Step 4: double-check the seed.
	if sub.SubmittedSeed != e.seed {
		e.mu.Unlock()
		metrics.RecordPuzzleFailed("stale_seed")
		return "", newError(KindPuzzleStale, "puzzle seed changed while acquiring the lock")
	}

	// Step 5: compute solve time from the mining-time accumulator.
	solveTime := e.registry.MiningTime()

	// Step 6: speed check.
	if e.maxSpeed > 0 && solveTime > 0 {
		speed := float64(sub.Nonce) / solveTime
		if speed > e.maxSpeed {
			e.mu.Unlock()
			metrics.RecordPuzzleFailed("speed_too_high")
			return "", newSpeedTooHighError(fmt.Sprintf("nonce speed %.2f H/s exceeds max %.2f H/s", speed, e.maxSpeed), speed)
		}
	}

	seed := e.seed
	params := e.params
	difficulty := e.difficulty.difficulty

	// Step 7-8: offload to the Worker Pool. Holding M across this await is
	// intentional (spec §5): it is what serializes winners, and the Hash
	// Verifier itself runs off the I/O path on its own goroutine.
	result, err := e.pool.Submit(ctx, pow.Job{
		Nonce:       sub.Nonce,
		Seed:        seed,
		VisitorID:   sub.VisitorID,
		TraceData:   sub.TraceData,
		ClaimedHash: sub.Hash,
		Difficulty:  difficulty,
		Params:      params,
	})
	if err != nil {
		e.mu.Unlock()
		metrics.RecordPuzzleFailed("worker_pool_error")
		return "", newError(KindBadSolution, "verification could not complete: "+err.Error())
	}
	if !result.Valid {
		e.mu.Unlock()
		metrics.RecordPuzzleFailed("bad_solution")
		return "", newError(KindBadSolution, result.Reason)
	}

	// Step 9: derive the invite code from the secret active at solve time.
	hmacSecret := e.keys.Current()
	inviteCode := deriveInviteCode(hmacSecret, sub.VisitorID, sub.Nonce, seed)

	// Step 11: difficulty controller + bounded solve-time history.
	step := e.difficulty.recordSolve(solveTime)
	e.pushSolveHistoryLocked(solveTime)
	avgSolveTime := e.averageSolveTimeLocked()
	newDifficulty := e.difficulty.difficulty

	// Step 13: reset_puzzle() — new seed, zeroed mining accumulators.
	newSeed, seedErr := generateSeed()
	if seedErr != nil {
		// Extremely unlikely (crypto/rand failure); keep the old seed
		// rather than leave the puzzle in an inconsistent state.
		newSeed = seed
	}
	e.seed = newSeed
	e.puzzleStartTime = time.Now()
	e.registry.ResetMiningTimer()
	e.watcher.Restart()

	// Step 12: build the PUZZLE_RESET snapshot while still holding M.
	resetMsg := broadcast.NewPuzzleReset(newSeed, newDifficulty, solveTime, avgSolveTime, float64(e.puzzleStartTime.Unix()))

	// Step 14: release M.
	e.mu.Unlock()

	metrics.RecordPuzzleSolved(difficulty)
	metrics.RecordDifficultyAdjustment(step)
	metrics.UpdateCurrentDifficulty(e.difficultyFloatSnapshot())
	metrics.AverageSolveTimeSeconds.Set(avgSolveTime)

	// Step 15: broadcast and audit outside M.
	if e.hub != nil {
		e.hub.Broadcast(resetMsg)
	}
	if e.notifier != nil {
		go e.notifier.Notify(context.Background(), sub.VisitorID, inviteCode)
	}
	if e.auditor != nil {
		e.auditor.Append(audit.Record{
			VisitorID:        sub.VisitorID,
			Seed:             seed,
			Nonce:            sub.Nonce,
			Hash:             sub.Hash,
			Difficulty:       difficulty,
			SolveTime:        solveTime,
			InviteCode:       inviteCode,
			Timestamp:        time.Now().UTC().Format(time.RFC3339),
			RealIP:           requestIP,
			TraceData:        sub.TraceData,
			NewDifficulty:    newDifficulty,
			AdjustmentReason: adjustmentReason(step, difficulty, newDifficulty),
		})
	}

	// Step 16: return the invite code.
	return inviteCode, nil
}

func (e *Engine) difficultyFloatSnapshot() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.difficulty.difficultyFloat
}

// deriveInviteCode computes spec §4.1 step 9 / §4.9's invite code formula.
func deriveInviteCode(hmacSecret []byte, visitorID string, nonce uint64, seed string) string {
	data := fmt.Sprintf("%s:%d:%s", visitorID, nonce, seed)
	mac := hmac.New(sha256.New, hmacSecret)
	mac.Write([]byte(data))
	digest := mac.Sum(nil)
	encoded := base64.RawURLEncoding.EncodeToString(digest)
	if len(encoded) > 10 {
		return encoded[:10]
	}
	return encoded
}

// ForceReset resets the puzzle unconditionally; the Control Plane setters
// call it with 0. A positive virtualSolveTime is first recorded as a solve
// of that duration in the Difficulty Controller; 0 records no solve. The
// Timeout Watcher uses ForceResetIfTimedOut instead.
func (e *Engine) ForceReset(virtualSolveTime float64) {
	e.mu.Lock()
	step, newDifficulty, resetMsg := e.resetLocked(virtualSolveTime)
	e.mu.Unlock()
	e.finishReset(step, newDifficulty, resetMsg)
}

// ForceResetIfTimedOut is the Timeout Watcher's forced reset (spec §4.6). It
// re-checks the mining-time accumulator against timeout and performs the
// reset only if the condition still holds, all under one continuous hold of
// e.mu — so a winning Submit that completes in the gap between the
// watcher's tick and its reset can never race a spurious second reset in.
// Mirrors the original's single `async with self.lock:` block
// (src/core/state.py) that re-checks `mining_time >= target_time_max`
// immediately before resetting, rather than checking and resetting under
// two separate lock acquisitions.
func (e *Engine) ForceResetIfTimedOut(timeout float64) {
	e.mu.Lock()
	if e.registry.MiningTime() < timeout {
		e.mu.Unlock()
		return
	}
	step, newDifficulty, resetMsg := e.resetLocked(timeout)
	e.mu.Unlock()
	e.finishReset(step, newDifficulty, resetMsg)
}

// resetLocked performs the reset's state mutation. Callers must hold e.mu
// and must call finishReset with the returned values after unlocking.
func (e *Engine) resetLocked(virtualSolveTime float64) (step float64, newDifficulty int, resetMsg broadcast.PuzzleReset) {
	if virtualSolveTime > 0 {
		step = e.difficulty.recordSolve(virtualSolveTime)
	}

	newSeed, err := generateSeed()
	if err != nil {
		newSeed = e.seed
	}
	e.seed = newSeed
	e.puzzleStartTime = time.Now()
	e.registry.ResetMiningTimer()
	e.watcher.Restart()

	avgSolveTime := e.averageSolveTimeLocked()
	newDifficulty = e.difficulty.difficulty
	resetMsg = broadcast.NewPuzzleReset(newSeed, newDifficulty, virtualSolveTime, avgSolveTime, float64(e.puzzleStartTime.Unix()))
	return step, newDifficulty, resetMsg
}

// finishReset runs the reset's I/O-bound tail (metrics, broadcast, log)
// outside of e.mu. Must be called exactly once per resetLocked call, after
// the lock has been released.
func (e *Engine) finishReset(step float64, newDifficulty int, resetMsg broadcast.PuzzleReset) {
	metrics.UpdateCurrentDifficulty(e.difficultyFloatSnapshot())
	if step != 0 {
		metrics.RecordDifficultyAdjustment(step)
	}
	if e.hub != nil {
		e.hub.Broadcast(resetMsg)
	}
	slog.Info("puzzle reset", "seed", resetMsg.Seed, "difficulty", newDifficulty)
}

// SetArgon2Params updates the Argon2 parameters (Control Plane) and forces
// an immediate reset so no client straddles a parameter change (spec
// §4.10).
func (e *Engine) SetArgon2Params(params pow.Params) {
	e.mu.Lock()
	e.params = params
	e.mu.Unlock()
	e.ForceReset(0)
}

// SetDifficultyRange updates [D_min, D_max] (Control Plane) and forces a
// reset.
func (e *Engine) SetDifficultyRange(dMin, dMax int) {
	e.mu.Lock()
	e.difficulty.setRange(dMin, dMax)
	e.mu.Unlock()
	e.ForceReset(0)
}

// SetDifficulty forces an explicit difficulty (Control Plane) and resets.
func (e *Engine) SetDifficulty(d int) {
	e.mu.Lock()
	e.difficulty.setDifficulty(d)
	e.mu.Unlock()
	e.ForceReset(0)
}

// SetTargetTimes updates target_time/target_timeout (Control Plane) and
// resets.
func (e *Engine) SetTargetTimes(targetTime, targetTimeout float64) {
	e.mu.Lock()
	e.difficulty.targetTime = targetTime
	e.mu.Unlock()
	e.watcher.SetTimeout(targetTimeout)
	e.ForceReset(0)
}

// SetMaxNonceSpeed updates the speed-check threshold (Control Plane) and
// forces an immediate reset so no client straddles a parameter change
// (spec §4.10), matching every other economic-parameter setter.
func (e *Engine) SetMaxNonceSpeed(maxSpeed float64) {
	e.mu.Lock()
	e.maxSpeed = maxSpeed
	e.mu.Unlock()
	e.ForceReset(0)
}

// MaxNonceSpeed returns the current speed-check threshold, for the
// WebSocket handler to classify samples as overspeed without duplicating
// the Control Plane's notion of the limit.
func (e *Engine) MaxNonceSpeed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxSpeed
}

// MiningTimeAccumulator exposes the registry's live mining-time accumulator.
// The Timeout Watcher reads the registry directly in ForceResetIfTimedOut.
func (e *Engine) MiningTimeAccumulator() float64 {
	return e.registry.MiningTime()
}

// TargetTimeout returns the currently configured timeout threshold.
func (e *Engine) TargetTimeout() float64 {
	return e.watcher.Timeout()
}

// RunTimeoutWatcher blocks running the Timeout Watcher's 5s poll loop
// (spec §4.6) until ctx is cancelled. Intended to be started in its own
// goroutine at process startup.
func (e *Engine) RunTimeoutWatcher(ctx context.Context) {
	e.watcher.Run(ctx)
}
