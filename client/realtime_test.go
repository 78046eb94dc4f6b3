package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/CrowderSoup/boardsync/logger"
	"github.com/CrowderSoup/boardsync/reconcile"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// relayStub accepts one websocket connection, records every inbound message
// and writes whatever is queued on out.
type relayStub struct {
	srv   *httptest.Server
	token chan string
	in    chan reconcile.Message
	out   chan []byte
}

func newRelayStub(t *testing.T) *relayStub {
	t.Helper()
	stub := &relayStub{
		token: make(chan string, 1),
		in:    make(chan reconcile.Message, 16),
		out:   make(chan []byte, 16),
	}
	upgrader := websocket.Upgrader{}
	stub.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.token <- r.URL.Query().Get("token")
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		go func() {
			for frame := range stub.out {
				if frame == nil {
					ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
				ws.WriteMessage(websocket.TextMessage, frame)
			}
		}()

		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var msg reconcile.Message
			if json.Unmarshal(raw, &msg) == nil {
				stub.in <- msg
			}
		}
	}))
	t.Cleanup(stub.srv.Close)
	return stub
}

func (s *relayStub) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *relayStub) next(t *testing.T) reconcile.Message {
	t.Helper()
	select {
	case msg := <-s.in:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for client message")
	}
	return reconcile.Message{}
}

func (s *relayStub) quiet(t *testing.T) {
	t.Helper()
	select {
	case msg := <-s.in:
		t.Fatalf("unexpected message %q", msg.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func dialStub(t *testing.T, stub *relayStub) *Conn {
	t.Helper()
	conn, err := Dial(context.Background(), stub.url(), "secret-token")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func updatedFrame(t *testing.T, boardID int64, change reconcile.Change) []byte {
	t.Helper()
	env, err := reconcile.Encode(boardID, change)
	require.NoError(t, err)
	msg, err := reconcile.NewMessage(reconcile.MsgBoardUpdated, env)
	require.NoError(t, err)
	frame, err := json.Marshal(msg)
	require.NoError(t, err)
	return frame
}

func TestConn_DialSendsCredential(t *testing.T) {
	stub := newRelayStub(t)
	dialStub(t, stub)

	assert.Equal(t, "secret-token", <-stub.token)
}

func TestConn_JoinIsIdempotent(t *testing.T) {
	stub := newRelayStub(t)
	conn := dialStub(t, stub)

	require.NoError(t, conn.Join(7))
	require.NoError(t, conn.Join(7))

	msg := stub.next(t)
	assert.Equal(t, reconcile.MsgJoinBoard, msg.Type)
	assert.JSONEq(t, `{"boardId":7}`, string(msg.Data))
	stub.quiet(t)
	assert.True(t, conn.Joined(7))
}

func TestConn_LeaveOnlyAfterJoin(t *testing.T) {
	stub := newRelayStub(t)
	conn := dialStub(t, stub)

	require.NoError(t, conn.Leave(7))
	stub.quiet(t)

	require.NoError(t, conn.Join(7))
	require.NoError(t, conn.Leave(7))
	require.NoError(t, conn.Leave(7))

	assert.Equal(t, reconcile.MsgJoinBoard, stub.next(t).Type)
	assert.Equal(t, reconcile.MsgLeaveBoard, stub.next(t).Type)
	stub.quiet(t)
	assert.False(t, conn.Joined(7))
}

func TestConn_Broadcast(t *testing.T) {
	stub := newRelayStub(t)
	conn := dialStub(t, stub)

	change := &reconcile.ColumnOrdered{ColumnID: 3, Position: 1}
	require.NoError(t, conn.Broadcast(context.Background(), 7, change))

	msg := stub.next(t)
	assert.Equal(t, reconcile.MsgBoardChange, msg.Type)

	var env reconcile.Envelope
	require.NoError(t, json.Unmarshal(msg.Data, &env))
	assert.Equal(t, int64(7), env.BoardID)
	assert.Equal(t, reconcile.ColumnOrderType, env.ChangeType)
}

func TestConn_BroadcastAfterClose(t *testing.T) {
	stub := newRelayStub(t)
	conn := dialStub(t, stub)
	require.NoError(t, conn.Close())

	err := conn.Broadcast(context.Background(), 7, &reconcile.ColumnOrdered{ColumnID: 3})
	assert.ErrorIs(t, err, ErrTransportUnavailable)
	assert.ErrorIs(t, conn.Join(7), ErrTransportUnavailable)
	assert.NoError(t, conn.Close())
}

func TestConn_EventsInDeliveryOrder(t *testing.T) {
	stub := newRelayStub(t)
	conn := dialStub(t, stub)

	first := updatedFrame(t, 7, &reconcile.ColumnOrdered{ColumnID: 1, Position: 0})
	second := updatedFrame(t, 7, &reconcile.ColumnDeleted{ColumnID: 2})
	third := updatedFrame(t, 7, &reconcile.ColumnOrdered{ColumnID: 3, Position: 1})

	// two frames batched into one websocket message, then a third on its own
	stub.out <- append(append(first, '\n'), second...)
	stub.out <- []byte(`{"type":"pong"}`)
	stub.out <- third

	var got []reconcile.ChangeType
	for i := 0; i < 3; i++ {
		select {
		case env := <-conn.Events():
			got = append(got, env.ChangeType)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	assert.Equal(t, []reconcile.ChangeType{reconcile.ColumnOrderType, reconcile.ColumnDeleteType, reconcile.ColumnOrderType}, got)
}

func TestConn_MalformedErrorFrameIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf, zerolog.WarnLevel)
	t.Cleanup(func() { logger.Init("info") })

	stub := newRelayStub(t)
	conn := dialStub(t, stub)

	stub.out <- []byte(`{"type":"error","data":"not an object"}`)
	stub.out <- updatedFrame(t, 7, &reconcile.ColumnDeleted{ColumnID: 2})

	select {
	case env := <-conn.Events():
		assert.Equal(t, reconcile.ColumnDeleteType, env.ChangeType)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	assert.Contains(t, buf.String(), "Bad error data")
	assert.NotContains(t, buf.String(), "Relay rejected message")
}

func TestConn_EventsClosedWhenServerCloses(t *testing.T) {
	stub := newRelayStub(t)
	conn := dialStub(t, stub)

	stub.out <- nil

	select {
	case _, ok := <-conn.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("events channel was not closed")
	}

	err := conn.Broadcast(context.Background(), 7, &reconcile.ColumnOrdered{ColumnID: 3})
	assert.ErrorIs(t, err, ErrTransportUnavailable)
}
