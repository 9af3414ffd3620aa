package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"hashpass/internal/puzzle"
)

// handleHealth implements GET /api/health (spec §6), exposing just enough
// of the live seed to let monitoring confirm the puzzle loop is alive
// without leaking the full seed.
func (a *App) handleHealth(c *gin.Context) {
	snap := a.Engine.Current(a.WorkerCount)
	prefix := snap.Seed
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	c.JSON(http.StatusOK, healthResponse{
		Status:            "ok",
		CurrentSeedPrefix: prefix,
	})
}

// handleTurnstileConfig implements GET /api/turnstile/config, handing the
// browser the public site key (never the secret) plus whether the
// deployment is running in Turnstile test mode.
func (a *App) handleTurnstileConfig(c *gin.Context) {
	c.JSON(http.StatusOK, turnstileConfigResponse{
		SiteKey:  a.CaptchaCfg.SiteKey,
		TestMode: a.CaptchaCfg.TestMode,
	})
}

// handleDevTrace implements GET /api/dev/trace: it echoes back the trace
// string a client should embed in its submission so the caller's own test
// harness can assemble a valid "ip=<ip>" trace without guessing the real
// IP HashPass sees (spec §4.1 step 2 relies on the client knowing this).
func (a *App) handleDevTrace(c *gin.Context) {
	ip := realIP(c)
	c.JSON(http.StatusOK, gin.H{"trace": "ip=" + ip})
}

// handlePuzzle implements GET /api/puzzle: the authenticated live puzzle
// state (spec §6).
func (a *App) handlePuzzle(c *gin.Context) {
	snap := a.Engine.Current(a.WorkerCount)
	c.JSON(http.StatusOK, puzzleResponse{
		Seed:             snap.Seed,
		Difficulty:       snap.Difficulty,
		MemoryCost:       snap.MemoryCostKB,
		TimeCost:         snap.TimeCost,
		Parallelism:      snap.Parallelism,
		WorkerCount:      snap.WorkerCount,
		PuzzleStartTime:  float64(snap.PuzzleStartTime.Unix()),
		LastSolveTime:    snap.LastSolveTime,
		AverageSolveTime: snap.AverageSolveTime,
	})
}

// handleVerify implements POST /api/verify, the single-winner submission
// endpoint (spec §4.1, §6, §7).
func (a *App) handleVerify(c *gin.Context) {
	var req submissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed submission"})
		return
	}
	if reason, ok := req.validate(); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": reason})
		return
	}

	ip, _ := c.Get("requestIP")
	requestIP, _ := ip.(string)
	if requestIP == "" {
		requestIP = realIP(c)
	}

	inviteCode, err := a.Engine.Submit(c.Request.Context(), puzzle.Submission{
		VisitorID:     req.VisitorID,
		Nonce:         req.Nonce,
		SubmittedSeed: req.SubmittedSeed,
		TraceData:     req.TraceData,
		Hash:          req.Hash,
	}, requestIP)
	if err != nil {
		writeVerifyError(c, err)
		return
	}

	c.JSON(http.StatusOK, verifyResponse{InviteCode: inviteCode})
}

// writeVerifyError maps a puzzle.Error's Kind onto the status codes spec §7
// assigns to each verify-path failure.
func writeVerifyError(c *gin.Context, err error) {
	var puzzleErr *puzzle.Error
	if !errors.As(err, &puzzleErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	status := http.StatusBadRequest
	switch puzzleErr.Kind {
	case puzzle.KindPuzzleStale:
		status = http.StatusConflict
	case puzzle.KindIdentityMismatch:
		status = http.StatusForbidden
	case puzzle.KindSpeedTooHigh:
		status = http.StatusBadRequest
	case puzzle.KindBadSolution:
		status = http.StatusBadRequest
	}

	body := gin.H{"error": puzzleErr.Message, "kind": puzzleErr.Kind}
	if puzzleErr.Kind == puzzle.KindSpeedTooHigh {
		body["speed"] = puzzleErr.Speed
	}
	c.JSON(status, body)
}
