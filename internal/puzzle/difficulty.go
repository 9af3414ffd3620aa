package puzzle

import (
	"fmt"
	"math"
)

// emaWindow is the N in spec §4.2's ema_alpha = 2/(N+1).
const emaWindow = 5

func emaAlpha() float64 {
	return 2.0 / float64(emaWindow+1)
}

// difficultyState is the EMA-smoothed proportional controller (spec §4.2).
// Every method here is called with Engine.mu already held, so it has no
// locking of its own.
type difficultyState struct {
	dMin, dMax      int
	targetTime      float64
	emaSolveTime    float64
	emaHasValue     bool
	difficultyFloat float64
	difficulty      int
}

func newDifficultyState(d, dMin, dMax int, targetTime float64) *difficultyState {
	s := &difficultyState{
		dMin:            dMin,
		dMax:            dMax,
		targetTime:      targetTime,
		difficultyFloat: float64(d),
		difficulty:      d,
	}
	return s
}

// warmStart seeds ema_solve_time by replaying recent solve times (spec
// §4.2: "the controller may warm-start ema_solve_time by replaying up to
// N most recent solve times from the audit log").
func (s *difficultyState) warmStart(recentSolveTimes []float64) {
	for _, t := range recentSolveTimes {
		if t <= 0 {
			continue
		}
		s.updateEMA(t)
	}
}

func (s *difficultyState) updateEMA(t float64) {
	if !s.emaHasValue {
		s.emaSolveTime = t
		s.emaHasValue = true
		return
	}
	alpha := emaAlpha()
	s.emaSolveTime = alpha*t + (1-alpha)*s.emaSolveTime
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// recordSolve folds solve time t into the EMA and adjusts difficulty_float
// by the clamped proportional step, returning the step actually applied.
func (s *difficultyState) recordSolve(t float64) (step float64) {
	if t <= 0 {
		return 0
	}
	s.updateEMA(t)

	step = clamp(math.Log2(s.targetTime/s.emaSolveTime), -4.0, 4.0)
	s.difficultyFloat = clamp(s.difficultyFloat+step, float64(s.dMin), float64(s.dMax))
	s.difficulty = int(math.Round(s.difficultyFloat))
	return step
}

// adjustmentReason describes why recordSolve moved (or didn't move)
// difficulty from oldDifficulty to newDifficulty, for the audit log's
// new_difficulty/adjustment_reason fields.
func adjustmentReason(step float64, oldDifficulty, newDifficulty int) string {
	switch {
	case newDifficulty > oldDifficulty:
		return fmt.Sprintf("solved too fast, difficulty raised to %d (step %.2f)", newDifficulty, step)
	case newDifficulty < oldDifficulty:
		return fmt.Sprintf("solved too slow, difficulty lowered to %d (step %.2f)", newDifficulty, step)
	default:
		return fmt.Sprintf("solve time near target, difficulty held at %d", newDifficulty)
	}
}

// setRange updates the clamp bounds (Control Plane), re-clamping the
// current difficulty_float immediately.
func (s *difficultyState) setRange(dMin, dMax int) {
	s.dMin, s.dMax = dMin, dMax
	s.difficultyFloat = clamp(s.difficultyFloat, float64(dMin), float64(dMax))
	s.difficulty = int(math.Round(s.difficultyFloat))
}

// setDifficulty forces an explicit difficulty (Control Plane), clamped to
// the current range.
func (s *difficultyState) setDifficulty(d int) {
	s.difficultyFloat = clamp(float64(d), float64(s.dMin), float64(s.dMax))
	s.difficulty = int(math.Round(s.difficultyFloat))
}
