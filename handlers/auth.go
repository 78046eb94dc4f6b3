package handlers

import (
	"net/http"
)

// VerifyToken reports who the bearer token belongs to. It sits behind
// AuthMiddleware.Auth, so reaching it means the token is valid.
func VerifyToken(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": claims.UserID,
		"email":   claims.Email,
	})
}
