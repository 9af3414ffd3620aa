// Package httpapi implements the Admission Pipeline's HTTP/WebSocket entry
// contracts (spec §4.4) and the Control Plane's HTTP surface (spec §4.10):
// gin routing, session-token authentication, the WebSocket handshake, and
// admin operations. It is the thin outer shell the core engine packages
// (puzzle, session, registry, broadcast) know nothing about.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"hashpass/internal/external"
	_ "hashpass/internal/httpapi/docs"
	"hashpass/internal/keystore"
	"hashpass/internal/pow"
	"hashpass/internal/puzzle"
	"hashpass/internal/registry"
	"hashpass/internal/session"
	"hashpass/internal/store"
)

// App bundles every dependency the HTTP/WS layer needs.
type App struct {
	Engine      *puzzle.Engine
	Sessions    *session.Store
	Registry    *registry.Registry
	Pool        *pow.Pool
	Captcha     *external.CaptchaVerifier
	CaptchaCfg  external.CaptchaConfig
	Keys        *keystore.Store
	Store       *store.Store
	AdminToken  string
	WorkerCount int

	admin    *adminGuard
	upgrader websocket.Upgrader
}

// NewApp wires an App and its gin router. adminToken gates /api/admin/*.
// dataStore may be nil; ban-set mirroring to Redis is then a no-op.
func NewApp(engine *puzzle.Engine, sessions *session.Store, reg *registry.Registry, pool *pow.Pool, captcha *external.CaptchaVerifier, captchaCfg external.CaptchaConfig, keys *keystore.Store, dataStore *store.Store, adminToken string, workerCount int) *App {
	return &App{
		Engine:      engine,
		Sessions:    sessions,
		Registry:    reg,
		Pool:        pool,
		Captcha:     captcha,
		CaptchaCfg:  captchaCfg,
		Keys:        keys,
		Store:       dataStore,
		AdminToken:  adminToken,
		WorkerCount: workerCount,
		admin:       newAdminGuard(adminToken),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the gin engine with middleware and every route mounted.
func (a *App) Router(corsOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(securityHeadersMiddleware())
	router.Use(userAgentFilterMiddleware())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := router.Group("/api")
	{
		api.GET("/health", a.handleHealth)
		api.GET("/dev/trace", a.handleDevTrace)
		api.GET("/turnstile/config", a.handleTurnstileConfig)

		authed := api.Group("")
		authed.Use(a.bearerAuthMiddleware())
		{
			authed.GET("/puzzle", a.handlePuzzle)
			authed.POST("/verify", a.handleVerify)
		}

		api.GET("/ws", a.handleWebSocket)

		api.GET("/admin/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

		admin := api.Group("/admin")
		admin.Use(a.adminAuthMiddleware())
		a.registerAdminRoutes(admin)
	}

	return router
}

// realIP returns spec §4.4's "real IP": the cf-connecting-ip header when
// present (Cloudflare-fronted deployments), else gin's own resolution.
func realIP(c *gin.Context) string {
	if ip := c.GetHeader("CF-Connecting-IP"); ip != "" {
		return ip
	}
	return c.ClientIP()
}

// bearerAuthMiddleware enforces Authorization: Bearer <session token> and
// rechecks IP binding on every call (spec §4.4: "The HTTP endpoints puzzle
// and verify require... and recheck IP binding on each call").
func (a *App) bearerAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "AuthMissing"})
			return
		}

		ip := realIP(c)
		if !a.Sessions.Validate(token, ip) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "AuthExpired"})
			return
		}

		c.Set("sessionToken", token)
		c.Set("requestIP", ip)
		c.Next()
	}
}

// adminAuthMiddleware enforces the Control Plane's bearer-token and
// brute-force lockout (spec §4.10, §7).
func (a *App) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := realIP(c)
		switch a.admin.authenticate(ip, c.GetHeader("Authorization")) {
		case adminAuthOK:
			c.Next()
		case adminAuthLockedOut:
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many failed attempts, try again later"})
		default:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "AdminForbidden"})
		}
	}
}
