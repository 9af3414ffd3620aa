package httpapi

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"hashpass/internal/broadcast"
	"hashpass/internal/metrics"
	"hashpass/internal/registry"
)

// clientMessage is the envelope for every Client→Server frame (spec §6).
// The bare `"ping"` string is handled separately before anything is
// unmarshaled into this struct.
type clientMessage struct {
	Type    string `json:"type"`
	Payload struct {
		Rate float64 `json:"rate"`
	} `json:"payload"`
}

// handleWebSocket implements the two-mode Admission Pipeline (spec §4.4)
// and the WebSocket session loop (mining_start/mining_stop/hashrate/ping).
func (a *App) handleWebSocket(c *gin.Context) {
	ip := realIP(c)
	tokenParam := c.Query("token")

	if a.Sessions.IsBanned(ip) {
		metrics.RecordConnection("rejected_ban")
		a.rejectWebSocket(c, "IP banned")
		return
	}

	ua := c.GetHeader("User-Agent")
	if ok, reason := validateUserAgent(ua); !ok {
		metrics.RecordConnection("rejected_ua")
		a.rejectWebSocket(c, reason)
		return
	}

	isReconnect := a.Sessions.Validate(tokenParam, ip)
	if !isReconnect {
		if _, exists := a.Registry.ByIP(ip); exists {
			metrics.RecordConnection("rejected_duplicate")
			a.rejectWebSocket(c, "Duplicate connection from same IP")
			return
		}

		ok, reason := a.Captcha.Verify(c.Request.Context(), tokenParam, ip)
		if !ok {
			metrics.RecordConnection("rejected_captcha")
			a.rejectWebSocket(c, reason)
			return
		}
	}

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	connID := newConnID()
	handle := &registry.Connection{
		ID:          connID,
		IP:          ip,
		Socket:      conn,
		ConnectedAt: time.Now(),
	}

	var sessionToken string
	if isReconnect {
		if old, exists := a.Registry.ByIP(ip); exists {
			a.evictConnection(old)
		}
		a.Sessions.Reconnect(tokenParam, ip, connID)
		sessionToken = tokenParam
	} else {
		tok, err := a.Sessions.Issue(ip, connID)
		if err != nil {
			slog.Warn("failed to issue session token", "error", err)
			conn.Close()
			return
		}
		sessionToken = tok.Value
	}

	a.Registry.Register(handle)
	metrics.RecordConnection("accepted")

	if !isReconnect {
		if err := handle.WriteJSON(map[string]string{
			"type":  broadcast.TypeSessionToken,
			"token": sessionToken,
		}); err != nil {
			slog.Warn("failed to send session token", "error", err)
		}
	}

	a.runConnectionLoop(conn, handle)
}

// rejectWebSocket upgrades then immediately closes with 1008: gorilla's
// Upgrader leaves no way to send a custom close reason before completing
// the HTTP upgrade, so the reject path still has to upgrade first.
func (a *App) rejectWebSocket(c *gin.Context, reason string) {
	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	closeMsg := websocket.FormatCloseMessage(1008, reason)
	_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
	conn.Close()
}

// evictConnection closes old with close code 1000 "Replaced by new
// connection" and removes it from the registry (spec §4.4 mode 2).
func (a *App) evictConnection(old *registry.Connection) {
	closeMsg := websocket.FormatCloseMessage(1000, "Replaced by new connection")
	_ = old.Socket.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
	a.Registry.Unregister(old.ID)
	old.Socket.Close()
}

// runConnectionLoop reads client frames until the socket closes, updating
// mining state and hashrate samples (spec §4.5).
func (a *App) runConnectionLoop(conn *websocket.Conn, handle *registry.Connection) {
	defer func() {
		a.Registry.StopMiner(handle.ID)
		a.Registry.RemoveHashrate(handle.ID)
		a.Registry.Unregister(handle.ID)
		a.Sessions.MarkDisconnected(handle.ID)
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		if string(raw) == `"ping"` {
			_ = handle.WriteJSON(map[string]any{"type": broadcast.TypePong, "online": a.Registry.Count()})
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "ping":
			_ = handle.WriteJSON(map[string]any{"type": broadcast.TypePong, "online": a.Registry.Count()})
		case "mining_start":
			a.Registry.StartMiner(handle.ID)
		case "mining_stop":
			a.Registry.StopMiner(handle.ID)
		case "hashrate":
			if msg.Payload.Rate < 0 {
				continue
			}
			if maxSpeed := a.Engine.MaxNonceSpeed(); maxSpeed > 0 && msg.Payload.Rate > maxSpeed {
				a.Registry.RecordOverspeed(handle.ID, handle.IP, msg.Payload.Rate)
			} else {
				a.Registry.UpdateHashrate(handle.ID, handle.IP, msg.Payload.Rate)
			}
		}
	}
}

func newConnID() string {
	return uuid.NewString()
}
