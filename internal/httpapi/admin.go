package httpapi

import (
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"hashpass/internal/pow"
)

// registerAdminRoutes mounts the Control Plane's privileged operations
// (spec §4.10) under the group's already-authenticated prefix.
func (a *App) registerAdminRoutes(g *gin.RouterGroup) {
	g.POST("/difficulty", a.adminSetDifficulty)
	g.POST("/difficulty-range", a.adminSetDifficultyRange)
	g.POST("/target-times", a.adminSetTargetTimes)
	g.POST("/argon2-params", a.adminSetArgon2Params)
	g.POST("/worker-count", a.adminSetWorkerCount)
	g.POST("/max-nonce-speed", a.adminSetMaxNonceSpeed)
	g.POST("/hmac-secret/rotate", a.adminRotateHMACSecret)
	g.POST("/hmac-secret", a.adminSetHMACSecret)
	g.POST("/ban", a.adminBanIP)
	g.POST("/unban", a.adminUnbanIP)
	g.POST("/kick", a.adminKickIP)
	g.POST("/kick-all", a.adminKickAll)
	g.POST("/reset", a.adminResetPuzzle)
	g.POST("/clear-sessions", a.adminClearSessions)
}

func (a *App) adminSetDifficulty(c *gin.Context) {
	var req struct {
		Difficulty int `json:"difficulty" binding:"required"`
	}
	if !bindOrReject(c, &req) {
		return
	}
	a.Engine.SetDifficulty(req.Difficulty)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *App) adminSetDifficultyRange(c *gin.Context) {
	var req struct {
		Min int `json:"min"`
		Max int `json:"max"`
	}
	if !bindOrReject(c, &req) {
		return
	}
	if req.Min < 1 || req.Max < req.Min {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid difficulty range"})
		return
	}
	a.Engine.SetDifficultyRange(req.Min, req.Max)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *App) adminSetTargetTimes(c *gin.Context) {
	var req struct {
		TargetTime    float64 `json:"target_time"`
		TargetTimeout float64 `json:"target_timeout"`
	}
	if !bindOrReject(c, &req) {
		return
	}
	if req.TargetTime <= 0 || req.TargetTimeout <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target times must be positive"})
		return
	}
	a.Engine.SetTargetTimes(req.TargetTime, req.TargetTimeout)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *App) adminSetArgon2Params(c *gin.Context) {
	var req struct {
		TimeCost    uint32 `json:"time_cost"`
		MemoryCost  uint32 `json:"memory_cost"`
		Parallelism uint8  `json:"parallelism"`
	}
	if !bindOrReject(c, &req) {
		return
	}
	if req.TimeCost == 0 || req.MemoryCost == 0 || req.Parallelism == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "argon2 params must be positive"})
		return
	}
	a.Engine.SetArgon2Params(pow.Params{
		TimeCost:    req.TimeCost,
		MemoryCost:  req.MemoryCost,
		Parallelism: req.Parallelism,
	})
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *App) adminSetWorkerCount(c *gin.Context) {
	var req struct {
		Count int `json:"count" binding:"required"`
	}
	if !bindOrReject(c, &req) {
		return
	}
	if req.Count < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "worker count must be positive"})
		return
	}
	// The worker pool itself is sized once at startup (spec §5: "process-wide,
	// initialized at startup"); the admin-visible count only affects the
	// WorkerCount field reported by GET /puzzle.
	a.WorkerCount = req.Count
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *App) adminSetMaxNonceSpeed(c *gin.Context) {
	var req struct {
		MaxNonceSpeed float64 `json:"max_nonce_speed"`
	}
	if !bindOrReject(c, &req) {
		return
	}
	a.Engine.SetMaxNonceSpeed(req.MaxNonceSpeed)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *App) adminRotateHMACSecret(c *gin.Context) {
	if err := a.Keys.Rotate(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rotate secret"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *App) adminSetHMACSecret(c *gin.Context) {
	var req struct {
		Secret string `json:"secret" binding:"required"`
	}
	if !bindOrReject(c, &req) {
		return
	}
	secret, err := hex.DecodeString(req.Secret)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "secret must be hex-encoded"})
		return
	}
	if err := a.Keys.Set(secret); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *App) adminBanIP(c *gin.Context) {
	var req struct {
		IP string `json:"ip" binding:"required"`
	}
	if !bindOrReject(c, &req) {
		return
	}
	a.Sessions.Ban(req.IP)
	if conn, ok := a.Registry.ByIP(req.IP); ok {
		a.evictConnection(conn)
	}
	if a.Store != nil {
		if err := a.Store.CacheBan(c.Request.Context(), req.IP); err != nil {
			slog.Warn("failed to mirror ban to redis", "ip", req.IP, "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *App) adminUnbanIP(c *gin.Context) {
	var req struct {
		IP string `json:"ip" binding:"required"`
	}
	if !bindOrReject(c, &req) {
		return
	}
	a.Sessions.Unban(req.IP)
	if a.Store != nil {
		if err := a.Store.UncacheBan(c.Request.Context(), req.IP); err != nil {
			slog.Warn("failed to remove ban mirror from redis", "ip", req.IP, "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *App) adminKickIP(c *gin.Context) {
	var req struct {
		IP string `json:"ip" binding:"required"`
	}
	if !bindOrReject(c, &req) {
		return
	}
	if conn, ok := a.Registry.ByIP(req.IP); ok {
		a.evictConnection(conn)
	}
	a.Sessions.RevokeByIP(req.IP)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *App) adminKickAll(c *gin.Context) {
	for _, conn := range a.Registry.Snapshot() {
		a.evictConnection(conn)
	}
	a.Sessions.RevokeAll()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *App) adminResetPuzzle(c *gin.Context) {
	a.Engine.ForceReset(0)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *App) adminClearSessions(c *gin.Context) {
	a.Sessions.RevokeAll()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func bindOrReject(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return false
	}
	return true
}
