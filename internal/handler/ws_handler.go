package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/damoang/coinchat/internal/common"
	"github.com/damoang/coinchat/internal/middleware"
	"github.com/damoang/coinchat/internal/ws"
	"github.com/damoang/coinchat/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WSHandler handles WebSocket connections
type WSHandler struct {
	gateway        *ws.Gateway
	jwtManager     *jwt.Manager
	syncer         middleware.IdentitySyncer
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler
func NewWSHandler(gateway *ws.Gateway, jwtManager *jwt.Manager, syncer middleware.IdentitySyncer, allowedOrigins string) *WSHandler {
	h := &WSHandler{
		gateway:        gateway,
		jwtManager:     jwtManager,
		syncer:         syncer,
		allowedOrigins: parseOrigins(allowedOrigins),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// parseOrigins parses comma-separated origins string
func parseOrigins(origins string) []string {
	if origins == "" {
		return nil
	}
	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" && trimmed != "*" {
			result = append(result, trimmed)
		}
	}
	return result
}

// checkOrigin validates the request origin against allowed origins
func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.allowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// Connect handles GET /ws. The token is checked before the upgrade so a bad
// handshake gets a plain 401.
// @Summary 실시간 채팅 WebSocket
// @Tags realtime
// @Param token query string false "JWT (Authorization 헤더 대신)"
// @Router /ws [get]
func (h *WSHandler) Connect(c *gin.Context) {
	claims, err := middleware.Authenticate(c, h.jwtManager)
	if err != nil {
		msg := "Authentication required"
		if errors.Is(err, jwt.ErrExpiredToken) {
			msg = "Token expired"
		}
		common.ErrorResponse(c, http.StatusUnauthorized, msg, err)
		return
	}
	if h.syncer != nil {
		if err := h.syncer.SyncUser(c.Request.Context(), claims.UserID, claims.Name, claims.Email); err != nil {
			common.RespondError(c, err)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	h.gateway.Serve(conn, claims.UserID)
}
