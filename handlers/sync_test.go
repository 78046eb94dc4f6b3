package handlers_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/CrowderSoup/boardsync/board"
	"github.com/CrowderSoup/boardsync/client"
	"github.com/CrowderSoup/boardsync/reconcile"
	"github.com/CrowderSoup/boardsync/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type peer struct {
	session *session.Session
	conn    *client.Conn
	changes chan reconcile.Change
}

// connect opens a session for token's user on boardID, joined to the
// board's room and listening for changes.
func (e *testEnv) connect(t *testing.T, token string, userID, boardID int64) *peer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	api := client.NewAPI(e.apiURL(), token, client.WithTimeout(5*time.Second))
	b, err := api.GetBoard(ctx, boardID)
	require.NoError(t, err)

	conn, err := client.Dial(ctx, e.wsURL(), token)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.Join(boardID))

	p := &peer{conn: conn, changes: make(chan reconcile.Change, 16)}
	p.session = session.New(b,
		session.WithPersister(api),
		session.WithBroadcaster(conn),
		session.WithViewer(userID),
		session.WithObserver(func(c reconcile.Change) { p.changes <- c }),
	)
	go p.session.Listen(ctx, conn.Events())
	return p
}

func (p *peer) awaitChange(t *testing.T) reconcile.Change {
	t.Helper()
	select {
	case c := <-p.changes:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a board change")
	}
	return nil
}

func columnTitles(b *board.Board) [][]string {
	var out [][]string
	for _, col := range b.Columns {
		titles := []string{}
		for _, card := range col.Cards {
			titles = append(titles, card.Title)
		}
		out = append(out, titles)
	}
	return out
}

func TestSync_CardMoveReachesCollaborator(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.user(t, "alice@example.com")
	bobID, bobToken := env.user(t, "bob@example.com")
	b, todo, doing, cards := env.seedBoard(t, aliceToken)
	require.NoError(t, env.store.AddMember(context.Background(), b.ID, bobID, board.RoleMember))

	alice := env.connect(t, aliceToken, aliceID, b.ID)
	bob := env.connect(t, bobToken, bobID, b.ID)
	require.Eventually(t, func() bool { return env.hub.Subscribers(b.ID) == 2 }, 2*time.Second, 10*time.Millisecond)

	drop := board.Drop{
		Kind:        board.DropCard,
		Source:      board.Location{ContainerID: todo.ID, Index: 0},
		Destination: &board.Location{ContainerID: doing.ID, Index: 0},
	}
	require.NoError(t, alice.session.Drop(context.Background(), drop))

	change := bob.awaitChange(t)
	assert.Equal(t, &reconcile.CardMoved{CardID: cards[0].ID, FromColumnID: todo.ID, ToColumnID: doing.ID, Position: 0}, change)

	want := [][]string{{"B"}, {"A"}}
	assert.Equal(t, want, columnTitles(alice.session.Board()))
	assert.Equal(t, want, columnTitles(bob.session.Board()))

	server := env.getBoard(t, aliceToken, b.ID)
	assert.Equal(t, want, columnTitles(&server))
	assert.Equal(t, doing.ID, server.Columns[1].Cards[0].ColumnID)

	// the sender does not get its own change back
	select {
	case c := <-alice.changes:
		t.Fatalf("sender received its own change %s", c.Type())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSync_ColumnAndCardCreation(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.user(t, "alice@example.com")
	bobID, bobToken := env.user(t, "bob@example.com")
	b, _, _, _ := env.seedBoard(t, aliceToken)
	require.NoError(t, env.store.AddMember(context.Background(), b.ID, bobID, board.RoleAdmin))

	alice := env.connect(t, aliceToken, aliceID, b.ID)
	bob := env.connect(t, bobToken, bobID, b.ID)
	require.Eventually(t, func() bool { return env.hub.Subscribers(b.ID) == 2 }, 2*time.Second, 10*time.Millisecond)

	col, err := bob.session.AddColumn(context.Background(), "Review")
	require.NoError(t, err)
	assert.Equal(t, reconcile.ColumnAddType, alice.awaitChange(t).Type())

	_, err = bob.session.AddCard(context.Background(), col.ID, "Polish")
	require.NoError(t, err)
	assert.Equal(t, reconcile.CardCreatedType, alice.awaitChange(t).Type())

	want := [][]string{{"A", "B"}, {}, {"Polish"}}
	assert.Equal(t, want, columnTitles(alice.session.Board()))
	assert.Equal(t, want, columnTitles(bob.session.Board()))
	assert.NoError(t, board.CheckDense(alice.session.Board().Columns))
}

func TestSync_ServerRejectionRollsBack(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.user(t, "alice@example.com")
	bobID, bobToken := env.user(t, "bob@example.com")
	b, todo, doing, _ := env.seedBoard(t, aliceToken)
	require.NoError(t, env.store.AddMember(context.Background(), b.ID, bobID, board.RoleMember))

	bob := env.connect(t, bobToken, bobID, b.ID)
	require.Eventually(t, func() bool { return env.hub.Subscribers(b.ID) == 1 }, 2*time.Second, 10*time.Millisecond)
	before := bob.session.Board()

	// demoted on the server after the board was loaded
	code, _ := env.do(t, http.MethodPost, "/boards/"+itoa(b.ID)+"/members", aliceToken,
		map[string]any{"email": "bob@example.com", "role": "observer"})
	require.Equal(t, http.StatusCreated, code)

	// the demotion is published to the room; wait for it and then restore the
	// stale role so the local gate lets the drop through
	change := bob.awaitChange(t)
	require.Equal(t, reconcile.AddMemberType, change.Type())
	require.Equal(t, board.RoleObserver, bob.session.Board().Role)
	require.NoError(t, bob.session.Apply(&reconcile.MemberUpdated{Member: board.Member{UserID: bobID, Role: board.RoleMember}}))
	<-bob.changes

	drop := board.Drop{
		Kind:        board.DropCard,
		Source:      board.Location{ContainerID: todo.ID, Index: 1},
		Destination: &board.Location{ContainerID: doing.ID, Index: 0},
	}
	err := bob.session.Drop(context.Background(), drop)

	assert.ErrorIs(t, err, session.ErrPersistenceFailure)
	assert.ErrorIs(t, err, client.ErrRequestFailed)
	assert.Equal(t, columnTitles(before), columnTitles(bob.session.Board()))
}

func TestSync_NonMemberCannotJoin(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.user(t, "alice@example.com")
	_, strangerToken := env.user(t, "stranger@example.com")
	b, _, _, _ := env.seedBoard(t, aliceToken)

	conn, err := client.Dial(context.Background(), env.wsURL(), strangerToken)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.Join(b.ID))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, env.hub.Subscribers(b.ID))
}

func TestSync_BadCredentialCannotDial(t *testing.T) {
	env := newTestEnv(t)

	_, err := client.Dial(context.Background(), env.wsURL(), "garbage")
	assert.ErrorIs(t, err, client.ErrTransportUnavailable)
}
