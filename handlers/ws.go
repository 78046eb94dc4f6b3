package handlers

import (
	"net/http"
	"strings"

	"github.com/CrowderSoup/boardsync/logger"
	"github.com/CrowderSoup/boardsync/services"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WSHandler upgrades authenticated requests to realtime connections.
type WSHandler struct {
	authService *services.AuthService
	hub         *services.Hub
	upgrader    websocket.Upgrader
}

// NewWSHandler creates the handler. An empty or "*" origin list accepts
// every origin.
func NewWSHandler(authService *services.AuthService, hub *services.Hub, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		authService: authService,
		hub:         hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// ServeHTTP authenticates with the token query parameter, since browsers
// cannot set headers on a websocket handshake.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := h.authService.VerifyJWT(token)
	if err != nil {
		http.Error(w, "invalid token: "+err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("Error upgrading to WebSocket")
		return
	}

	client := &services.Client{
		ID:     uuid.New().String(),
		UserID: claims.UserID,
		Email:  claims.Email,
		Hub:    h.hub,
		Conn:   conn,
		Send:   make(chan []byte, 256),
	}
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
