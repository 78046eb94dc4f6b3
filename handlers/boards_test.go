package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/CrowderSoup/boardsync/board"
	"github.com/CrowderSoup/boardsync/database"
	"github.com/CrowderSoup/boardsync/handlers"
	"github.com/CrowderSoup/boardsync/services"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv   *httptest.Server
	store *database.Store
	auth  *services.AuthService
	hub   *services.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := database.NewStore(db)
	auth := services.NewAuthService("test-secret", time.Hour)
	hub := services.NewHub(store)
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	r := mux.NewRouter()
	handlers.Register(r.PathPrefix("/api").Subrouter(),
		handlers.NewAuthMiddleware(auth),
		handlers.NewBoardHandler(store, hub),
		handlers.NewWSHandler(auth, hub, nil))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, store: store, auth: auth, hub: hub}
}

func (e *testEnv) apiURL() string { return e.srv.URL + "/api" }

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/api/ws"
}

// user creates a user and returns its id and a bearer token.
func (e *testEnv) user(t *testing.T, email string) (int64, string) {
	t.Helper()
	id, err := e.store.EnsureUser(context.Background(), email, email)
	require.NoError(t, err)
	token, err := e.auth.CreateJWT(id, email)
	require.NoError(t, err)
	return id, token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, json.RawMessage) {
	t.Helper()
	reader := bytes.NewReader(nil)
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.apiURL()+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp.StatusCode, env.Data
}

// seedBoard creates a board owned by token's user with Todo [A, B] and an
// empty Doing.
func (e *testEnv) seedBoard(t *testing.T, token string) (board.Board, board.Column, board.Column, []board.Card) {
	t.Helper()
	code, raw := e.do(t, http.MethodPost, "/boards", token, map[string]any{"name": "Roadmap"})
	require.Equal(t, http.StatusCreated, code)
	var b board.Board
	require.NoError(t, json.Unmarshal(raw, &b))

	var cols []board.Column
	for _, title := range []string{"Todo", "Doing"} {
		code, raw := e.do(t, http.MethodPost, "/columns", token, map[string]any{"title": title, "board_id": b.ID})
		require.Equal(t, http.StatusCreated, code)
		var col board.Column
		require.NoError(t, json.Unmarshal(raw, &col))
		cols = append(cols, col)
	}

	var cards []board.Card
	for _, title := range []string{"A", "B"} {
		code, raw := e.do(t, http.MethodPost, "/cards", token, map[string]any{"title": title, "column_id": cols[0].ID})
		require.Equal(t, http.StatusCreated, code)
		var card board.Card
		require.NoError(t, json.Unmarshal(raw, &card))
		cards = append(cards, card)
	}
	return b, cols[0], cols[1], cards
}

func (e *testEnv) getBoard(t *testing.T, token string, id int64) board.Board {
	t.Helper()
	code, raw := e.do(t, http.MethodGet, "/boards/"+itoa(id), token, nil)
	require.Equal(t, http.StatusOK, code)
	var b board.Board
	require.NoError(t, json.Unmarshal(raw, &b))
	return b
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestAuth_RejectsMissingOrBadToken(t *testing.T) {
	env := newTestEnv(t)

	code, _ := env.do(t, http.MethodGet, "/auth/verify", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = env.do(t, http.MethodGet, "/auth/verify", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	id, token := env.user(t, "dev@example.com")
	code, raw := env.do(t, http.MethodGet, "/auth/verify", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"user_id":`+itoa(id)+`,"email":"dev@example.com"}`, string(raw))
}

func TestBoards_CreateAndGet(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "owner@example.com")

	b, todo, doing, cards := env.seedBoard(t, token)
	assert.Equal(t, board.RoleOwner, b.Role)

	got := env.getBoard(t, token, b.ID)
	assert.Equal(t, "Roadmap", got.Name)
	require.Len(t, got.Columns, 2)
	assert.Equal(t, todo.ID, got.Columns[0].ID)
	assert.Equal(t, doing.ID, got.Columns[1].ID)
	require.Len(t, got.Columns[0].Cards, 2)
	assert.Equal(t, cards[0].ID, got.Columns[0].Cards[0].ID)
	assert.NoError(t, board.CheckDense(got.Columns))
}

func TestBoards_StrangerCannotReadPrivateBoard(t *testing.T) {
	env := newTestEnv(t)
	_, owner := env.user(t, "owner@example.com")
	_, stranger := env.user(t, "stranger@example.com")
	b, _, _, _ := env.seedBoard(t, owner)

	code, _ := env.do(t, http.MethodGet, "/boards/"+itoa(b.ID), stranger, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = env.do(t, http.MethodGet, "/boards/999", owner, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestBoards_PublicBoardIsReadable(t *testing.T) {
	env := newTestEnv(t)
	_, owner := env.user(t, "owner@example.com")
	_, stranger := env.user(t, "stranger@example.com")

	code, raw := env.do(t, http.MethodPost, "/boards", owner, map[string]any{"name": "Open", "visibility": "public"})
	require.Equal(t, http.StatusCreated, code)
	var b board.Board
	require.NoError(t, json.Unmarshal(raw, &b))

	got := env.getBoard(t, stranger, b.ID)
	assert.Equal(t, board.RoleNone, got.Role)

	code, _ = env.do(t, http.MethodPost, "/columns", stranger, map[string]any{"title": "Mine", "board_id": b.ID})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestBoards_Members(t *testing.T) {
	env := newTestEnv(t)
	_, owner := env.user(t, "owner@example.com")
	b, todo, _, cards := env.seedBoard(t, owner)

	code, raw := env.do(t, http.MethodPost, "/boards/"+itoa(b.ID)+"/members", owner,
		map[string]any{"email": "watcher@example.com", "name": "Watcher", "role": "observer"})
	require.Equal(t, http.StatusCreated, code)
	var member board.Member
	require.NoError(t, json.Unmarshal(raw, &member))
	assert.Equal(t, board.RoleObserver, member.Role)

	watcher, err := env.auth.CreateJWT(member.UserID, member.Email)
	require.NoError(t, err)

	// observers can read but not edit
	assert.Equal(t, board.RoleObserver, env.getBoard(t, watcher, b.ID).Role)
	code, _ = env.do(t, http.MethodPatch, "/cards/"+itoa(cards[0].ID), watcher, map[string]any{"position": 1, "column_id": todo.ID})
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = env.do(t, http.MethodPost, "/boards/"+itoa(b.ID)+"/members", watcher,
		map[string]any{"email": "x@example.com", "role": "member"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = env.do(t, http.MethodPost, "/boards/"+itoa(b.ID)+"/members", owner,
		map[string]any{"email": "x@example.com", "role": "none"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCards_Move(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "owner@example.com")
	b, todo, doing, cards := env.seedBoard(t, token)

	code, raw := env.do(t, http.MethodPatch, "/cards/"+itoa(cards[0].ID), token, map[string]any{"position": 0, "column_id": doing.ID})
	require.Equal(t, http.StatusOK, code)
	var moved board.Card
	require.NoError(t, json.Unmarshal(raw, &moved))
	assert.Equal(t, doing.ID, moved.ColumnID)
	assert.Equal(t, 0, moved.Position)

	got := env.getBoard(t, token, b.ID)
	assert.Equal(t, todo.ID, got.Columns[0].ID)
	require.Len(t, got.Columns[0].Cards, 1)
	assert.Equal(t, cards[1].ID, got.Columns[0].Cards[0].ID)
	require.Len(t, got.Columns[1].Cards, 1)
	assert.NoError(t, board.CheckDense(got.Columns))
}

func TestCards_BadRequests(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "owner@example.com")
	_, _, doing, cards := env.seedBoard(t, token)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"missing position", http.MethodPatch, "/cards/" + itoa(cards[0].ID), map[string]any{"column_id": doing.ID}, http.StatusBadRequest},
		{"unknown card", http.MethodPatch, "/cards/999", map[string]any{"position": 0, "column_id": doing.ID}, http.StatusNotFound},
		{"unknown column", http.MethodPatch, "/cards/" + itoa(cards[0].ID), map[string]any{"position": 0, "column_id": 999}, http.StatusNotFound},
		{"empty title", http.MethodPost, "/cards", map[string]any{"column_id": doing.ID}, http.StatusBadRequest},
		{"card in unknown column", http.MethodPost, "/cards", map[string]any{"column_id": 999, "title": "x"}, http.StatusNotFound},
		{"column missing position", http.MethodPatch, "/columns/" + itoa(doing.ID), map[string]any{}, http.StatusBadRequest},
		{"unknown column move", http.MethodPatch, "/columns/999", map[string]any{"position": 0}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := env.do(t, tt.method, tt.path, token, tt.body)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestCards_CrossBoardMoveRejected(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "owner@example.com")
	_, _, _, cards := env.seedBoard(t, token)
	_, other, _, _ := env.seedBoard(t, token)

	code, _ := env.do(t, http.MethodPatch, "/cards/"+itoa(cards[0].ID), token, map[string]any{"position": 0, "column_id": other.ID})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestColumns_Move(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "owner@example.com")
	b, todo, doing, _ := env.seedBoard(t, token)

	code, _ := env.do(t, http.MethodPatch, "/columns/"+itoa(doing.ID), token, map[string]any{"position": 0})
	require.Equal(t, http.StatusOK, code)

	got := env.getBoard(t, token, b.ID)
	assert.Equal(t, doing.ID, got.Columns[0].ID)
	assert.Equal(t, todo.ID, got.Columns[1].ID)
	assert.NoError(t, board.CheckDense(got.Columns))
}
