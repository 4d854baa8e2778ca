package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"price_alert_backend/middleware"
	"price_alert_backend/services/monitor"
	"price_alert_backend/services/realtime"
)

// MonitorStatus exposes the monitoring loop state
type MonitorStatus interface {
	Status() monitor.Status
}

// WebSocketController upgrades authenticated clients onto the realtime hub
type WebSocketController struct {
	hub       *realtime.Hub
	users     UserLookup
	monitor   MonitorStatus
	jwtSecret string
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

// NewWebSocketController creates a new websocket controller. monitor may be nil.
func NewWebSocketController(hub *realtime.Hub, users UserLookup, mon MonitorStatus, jwtSecret string, upgrader websocket.Upgrader, logger *zap.Logger) *WebSocketController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketController{
		hub:       hub,
		users:     users,
		monitor:   mon,
		jwtSecret: jwtSecret,
		upgrader:  upgrader,
		logger:    logger.Named("websocket"),
	}
}

// Connect upgrades the request and serves the connection until it closes.
// Authentication happens after the upgrade so failures reach the client as
// close code 1008 with a reason.
// GET /api/v1/ws/connect?token=<access token>
func (wc *WebSocketController) Connect(c *gin.Context) {
	conn, err := wc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response
		wc.logger.Warn("websocket_upgrade_failed", zap.Error(err))
		return
	}

	userID, err := middleware.ParseAccessToken(c.Query("token"), wc.jwtSecret)
	if err != nil {
		wc.logger.Info("websocket_auth_failed", zap.String("remote_addr", c.ClientIP()), zap.Error(err))
		rejectConnection(conn, websocket.ClosePolicyViolation, authFailureReason(err))
		return
	}

	user, err := wc.users.FindUser(c.Request.Context(), userID)
	switch {
	case errors.Is(err, ErrUserNotFound) || (err == nil && !user.IsActive):
		wc.logger.Info("websocket_user_rejected", zap.Uint("user_id", userID), zap.Error(err))
		rejectConnection(conn, websocket.ClosePolicyViolation, "User not found or inactive")
		return
	case err != nil:
		wc.logger.Error("websocket_auth_error", zap.Uint("user_id", userID), zap.Error(err))
		rejectConnection(conn, websocket.CloseInternalServerErr, "Authentication failed")
		return
	}

	client := realtime.NewClient(conn, wc.logger)
	if err := wc.hub.Connect(client, userID); err != nil {
		wc.logger.Warn("websocket_register_failed", zap.Uint("user_id", userID), zap.Error(err))
		return
	}

	client.Run(wc.hub, userID)
}

// GetStats returns live connection counters and the monitoring loop state
// GET /api/v1/ws/stats
func (wc *WebSocketController) GetStats(c *gin.Context) {
	if userID, err := middleware.GetUserIDFromContext(c); err == nil {
		wc.logger.Debug("websocket_stats_requested", zap.Uint("user_id", userID))
	}

	response := gin.H{"hub": wc.hub.Stats()}
	if wc.monitor != nil {
		response["monitor"] = wc.monitor.Status()
	}
	c.JSON(http.StatusOK, response)
}

func authFailureReason(err error) string {
	switch {
	case errors.Is(err, middleware.ErrMissingToken):
		return "Missing authentication token"
	case errors.Is(err, middleware.ErrWrongTokenType):
		return "Invalid token type"
	default:
		return "Invalid token"
	}
}

func rejectConnection(conn *websocket.Conn, code int, reason string) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(realtime.WriteTimeout))
	conn.Close()
}
