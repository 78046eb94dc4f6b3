package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/CrowderSoup/boardsync/board"
	"github.com/CrowderSoup/boardsync/database"
	"github.com/CrowderSoup/boardsync/logger"
	"github.com/CrowderSoup/boardsync/reconcile"
	"github.com/CrowderSoup/boardsync/services"
	"github.com/gorilla/mux"
)

// BoardHandler serves boards, columns and cards.
type BoardHandler struct {
	store *database.Store
	hub   *services.Hub
}

func NewBoardHandler(store *database.Store, hub *services.Hub) *BoardHandler {
	return &BoardHandler{
		store: store,
		hub:   hub,
	}
}

type createBoardRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Visibility  board.Visibility `json:"visibility"`
}

type addMemberRequest struct {
	Email string     `json:"email"`
	Name  string     `json:"name"`
	Role  board.Role `json:"role"`
}

type createColumnRequest struct {
	Title   string `json:"title"`
	BoardID int64  `json:"board_id"`
}

type moveColumnRequest struct {
	Position *int `json:"position"`
}

type createCardRequest struct {
	ColumnID int64  `json:"column_id"`
	Title    string `json:"title"`
}

type moveCardRequest struct {
	Position *int  `json:"position"`
	ColumnID int64 `json:"column_id"`
}

// CreateBoard creates a board owned by the caller.
func (h *BoardHandler) CreateBoard(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	var req createBoardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	switch req.Visibility {
	case "", board.VisibilityPrivate, board.VisibilityPublic:
	default:
		http.Error(w, "Invalid visibility", http.StatusBadRequest)
		return
	}

	b, err := h.store.CreateBoard(r.Context(), claims.UserID, req.Name, req.Description, req.Visibility)
	if err != nil {
		h.fail(w, err, "Error creating board")
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// GetBoard returns a board as seen by the caller. Public boards can be read
// by anyone.
func (h *BoardHandler) GetBoard(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}
	boardID, ok := pathID(w, r)
	if !ok {
		return
	}

	b, err := h.store.GetBoard(r.Context(), boardID, claims.UserID)
	if err != nil {
		h.fail(w, err, "Error getting board")
		return
	}
	if b.Role == board.RoleNone && b.Visibility != board.VisibilityPublic {
		http.Error(w, board.ErrPermissionDenied.Error(), http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// AddMember adds a user to the board or changes their role. Only owners and
// admins may do this.
func (h *BoardHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if !req.Role.Valid() || req.Role == board.RoleNone {
		http.Error(w, "Invalid role", http.StatusBadRequest)
		return
	}

	role, ok := h.role(w, r, boardID)
	if !ok {
		return
	}
	if role != board.RoleOwner && role != board.RoleAdmin {
		http.Error(w, board.ErrPermissionDenied.Error(), http.StatusForbidden)
		return
	}

	userID, err := h.store.EnsureUser(r.Context(), req.Email, req.Name)
	if err != nil {
		h.fail(w, err, "Error creating user")
		return
	}
	if err := h.store.AddMember(r.Context(), boardID, userID, req.Role); err != nil {
		h.fail(w, err, "Error adding member")
		return
	}

	member := board.Member{UserID: userID, Email: req.Email, Name: req.Name, Role: req.Role}
	h.publish(boardID, &reconcile.MemberAdded{Member: member})
	writeJSON(w, http.StatusCreated, member)
}

// CreateColumn appends a column to a board.
func (h *BoardHandler) CreateColumn(w http.ResponseWriter, r *http.Request) {
	var req createColumnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if !h.canEdit(w, r, req.BoardID) {
		return
	}

	col, err := h.store.CreateColumn(r.Context(), req.BoardID, req.Title)
	if err != nil {
		h.fail(w, err, "Error creating column")
		return
	}
	writeJSON(w, http.StatusCreated, col)
}

// MoveColumn moves a column to a new position on its board.
func (h *BoardHandler) MoveColumn(w http.ResponseWriter, r *http.Request) {
	columnID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req moveColumnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Position == nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	boardID, err := h.store.ColumnBoardID(r.Context(), columnID)
	if err != nil {
		h.fail(w, err, "Error finding column")
		return
	}
	if !h.canEdit(w, r, boardID) {
		return
	}

	col, err := h.store.MoveColumn(r.Context(), columnID, *req.Position)
	if err != nil {
		h.fail(w, err, "Error moving column")
		return
	}
	writeJSON(w, http.StatusOK, col)
}

// CreateCard appends a card to a column.
func (h *BoardHandler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req createCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	boardID, err := h.store.ColumnBoardID(r.Context(), req.ColumnID)
	if err != nil {
		h.fail(w, err, "Error finding column")
		return
	}
	if !h.canEdit(w, r, boardID) {
		return
	}

	card, err := h.store.CreateCard(r.Context(), req.ColumnID, req.Title)
	if err != nil {
		h.fail(w, err, "Error creating card")
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

// MoveCard moves a card to a position in a column of the same board.
func (h *BoardHandler) MoveCard(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req moveCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Position == nil || req.ColumnID == 0 {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	boardID, err := h.store.CardBoardID(r.Context(), cardID)
	if err != nil {
		h.fail(w, err, "Error finding card")
		return
	}
	if !h.canEdit(w, r, boardID) {
		return
	}

	card, err := h.store.MoveCard(r.Context(), cardID, req.ColumnID, *req.Position)
	if err != nil {
		h.fail(w, err, "Error moving card")
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// role looks up the caller's role on a board. It writes the error response
// and returns false when that is not possible.
func (h *BoardHandler) role(w http.ResponseWriter, r *http.Request, boardID int64) (board.Role, bool) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return board.RoleNone, false
	}
	role, err := h.store.MemberRole(r.Context(), boardID, claims.UserID)
	if err != nil {
		h.fail(w, err, "Error checking membership")
		return board.RoleNone, false
	}
	return role, true
}

func (h *BoardHandler) canEdit(w http.ResponseWriter, r *http.Request, boardID int64) bool {
	role, ok := h.role(w, r, boardID)
	if !ok {
		return false
	}
	if err := board.Authorize(role); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return false
	}
	return true
}

func (h *BoardHandler) publish(boardID int64, change reconcile.Change) {
	if h.hub == nil {
		return
	}
	env, err := reconcile.Encode(boardID, change)
	if err != nil {
		logger.Error().Err(err).Msg("Error encoding board change")
		return
	}
	h.hub.Publish(env)
}

func (h *BoardHandler) fail(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, database.ErrCrossBoard):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Error().Err(err).Msg(msg)
		http.Error(w, "Server error", http.StatusInternalServerError)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"status": "success",
		"data":   data,
	})
}
