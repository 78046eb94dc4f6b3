package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/CrowderSoup/boardsync/board"
	"github.com/CrowderSoup/boardsync/config"
	"github.com/CrowderSoup/boardsync/database"
	"github.com/CrowderSoup/boardsync/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.Subset(t, names, []string{"serve", "token", "watch", "move", "move-column", "add-column", "add-card"})
}

type cliEnv struct {
	dir   string
	store *database.Store
	auth  *services.AuthService
}

// newCLIEnv runs the full server in-process and points the client
// configuration at it through the environment.
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DB_DSN", filepath.Join(dir, "cli.db"))
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("BOARDSYNC_TOKEN", "")

	cfg, err := config.Load(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)

	db, err := database.InitDB(cfg.Database.DSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := database.NewStore(db)
	auth := services.NewAuthService(cfg.JWT.Secret, time.Hour)
	hub := services.NewHub(store)
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	srv := httptest.NewServer(newRouter(cfg, store, auth, hub, services.NewRateLimiter(1000, 1000)))
	t.Cleanup(srv.Close)

	t.Setenv("BOARDSYNC_API", srv.URL+"/api")
	t.Setenv("BOARDSYNC_WS", "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws")

	return &cliEnv{dir: dir, store: store, auth: auth}
}

func (e *cliEnv) run(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args,
		"--config", filepath.Join(e.dir, "absent.yaml"),
		"--env-file", filepath.Join(e.dir, ".env")))
	err := cmd.Execute()
	return out.String(), err
}

type seeded struct {
	ownerID int64
	board   *board.Board
	todo    board.Column
	doing   board.Column
	a, b    board.Card
}

// seed creates Todo [A, B] and an empty Doing owned by a user whose token
// the CLI will use.
func (e *cliEnv) seed(t *testing.T) seeded {
	t.Helper()
	ctx := context.Background()

	owner, err := e.store.EnsureUser(ctx, "owner@example.com", "Owner")
	require.NoError(t, err)
	b, err := e.store.CreateBoard(ctx, owner, "Roadmap", "", board.VisibilityPrivate)
	require.NoError(t, err)

	s := seeded{ownerID: owner, board: b}
	s.todo, err = e.store.CreateColumn(ctx, b.ID, "Todo")
	require.NoError(t, err)
	s.doing, err = e.store.CreateColumn(ctx, b.ID, "Doing")
	require.NoError(t, err)
	s.a, err = e.store.CreateCard(ctx, s.todo.ID, "A")
	require.NoError(t, err)
	s.b, err = e.store.CreateCard(ctx, s.todo.ID, "B")
	require.NoError(t, err)

	token, err := e.auth.CreateJWT(owner, "owner@example.com")
	require.NoError(t, err)
	t.Setenv("BOARDSYNC_TOKEN", token)
	return s
}

func (e *cliEnv) board(t *testing.T, s seeded) *board.Board {
	t.Helper()
	b, err := e.store.GetBoard(context.Background(), s.board.ID, s.ownerID)
	require.NoError(t, err)
	return b
}

func id(v int64) string { return strconv.FormatInt(v, 10) }

func TestTokenCmd(t *testing.T) {
	e := newCLIEnv(t)

	out, err := e.run("token", "--email", "dev@example.com", "--name", "Dev")
	require.NoError(t, err)

	claims, err := e.auth.VerifyJWT(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", claims.Email)

	again, err := e.store.EnsureUser(context.Background(), "dev@example.com", "Dev")
	require.NoError(t, err)
	assert.Equal(t, again, claims.UserID)
}

func TestMoveCmd(t *testing.T) {
	e := newCLIEnv(t)
	s := e.seed(t)

	out, err := e.run("move", "--board", id(s.board.ID), "--card", id(s.a.ID), "--to-column", id(s.doing.ID), "--index", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Doing")

	b := e.board(t, s)
	require.Len(t, b.Column(s.doing.ID).Cards, 1)
	assert.Equal(t, s.a.ID, b.Column(s.doing.ID).Cards[0].ID)
	require.Len(t, b.Column(s.todo.ID).Cards, 1)
	assert.Equal(t, 0, b.Column(s.todo.ID).Cards[0].Position)
}

func TestMoveCmd_UnknownCard(t *testing.T) {
	e := newCLIEnv(t)
	s := e.seed(t)

	_, err := e.run("move", "--board", id(s.board.ID), "--card", "9999", "--to-column", id(s.doing.ID))
	assert.ErrorIs(t, err, board.ErrInvalidTarget)
}

func TestMoveColumnCmd(t *testing.T) {
	e := newCLIEnv(t)
	s := e.seed(t)

	_, err := e.run("move-column", "--board", id(s.board.ID), "--column", id(s.doing.ID), "--index", "0")
	require.NoError(t, err)

	b := e.board(t, s)
	require.Len(t, b.Columns, 2)
	assert.Equal(t, s.doing.ID, b.Columns[0].ID)
	assert.Equal(t, s.todo.ID, b.Columns[1].ID)
}

func TestAddCommands(t *testing.T) {
	e := newCLIEnv(t)
	s := e.seed(t)

	out, err := e.run("add-column", "--board", id(s.board.ID), "--title", "Review")
	require.NoError(t, err)
	assert.Contains(t, out, `"Review"`)

	out, err = e.run("add-card", "--board", id(s.board.ID), "--column", id(s.doing.ID), "--title", "Ship")
	require.NoError(t, err)
	assert.Contains(t, out, `"Ship"`)

	b := e.board(t, s)
	require.Len(t, b.Columns, 3)
	assert.Equal(t, "Review", b.Columns[2].Title)
	require.Len(t, b.Column(s.doing.ID).Cards, 1)
	assert.Equal(t, "Ship", b.Column(s.doing.ID).Cards[0].Title)
}

func TestClientCmd_RequiresToken(t *testing.T) {
	e := newCLIEnv(t)

	_, err := e.run("add-column", "--board", "1", "--title", "Review")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token configured")
}

func TestRenderBoard(t *testing.T) {
	b := &board.Board{ID: 1, Name: "Roadmap", Role: board.RoleOwner, Columns: []board.Column{
		{ID: 10, Title: "Todo", Position: 0, Cards: []board.Card{{ID: 100, Title: "A", Position: 0}}},
	}}

	var out bytes.Buffer
	renderBoard(&out, b)

	assert.Equal(t, "Roadmap (#1, owner)\n  [0] Todo #10\n      0. A #100\n", out.String())
}
