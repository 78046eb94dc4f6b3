package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Register mounts the API on r. The websocket route authenticates on its
// own; everything else goes through the auth middleware.
func Register(r *mux.Router, auth *AuthMiddleware, boards *BoardHandler, ws *WSHandler) {
	r.Handle("/ws", ws)

	api := r.NewRoute().Subrouter()
	api.Use(auth.Auth)

	// Auth routes
	api.HandleFunc("/auth/verify", VerifyToken).Methods(http.MethodGet)

	// Board routes
	api.HandleFunc("/boards", boards.CreateBoard).Methods(http.MethodPost)
	api.HandleFunc("/boards/{id:[0-9]+}", boards.GetBoard).Methods(http.MethodGet)
	api.HandleFunc("/boards/{id:[0-9]+}/members", boards.AddMember).Methods(http.MethodPost)

	// Column and card routes
	api.HandleFunc("/columns", boards.CreateColumn).Methods(http.MethodPost)
	api.HandleFunc("/columns/{id:[0-9]+}", boards.MoveColumn).Methods(http.MethodPatch)
	api.HandleFunc("/cards", boards.CreateCard).Methods(http.MethodPost)
	api.HandleFunc("/cards/{id:[0-9]+}", boards.MoveCard).Methods(http.MethodPatch)
}
