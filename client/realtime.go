package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/CrowderSoup/boardsync/logger"
	"github.com/CrowderSoup/boardsync/reconcile"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
)

// ErrTransportUnavailable is returned when a message is sent on a closed
// connection.
var ErrTransportUnavailable = errors.New("realtime transport unavailable")

// Conn is a realtime connection to the relay. It is safe for concurrent use.
type Conn struct {
	ws      *websocket.Conn
	send    chan []byte
	events  chan reconcile.Envelope
	done    chan struct{}
	flushed chan struct{} // closed when writePump has returned

	closeOnce sync.Once

	mu     sync.Mutex
	joined map[int64]bool
}

// Dial opens a realtime connection, authenticating with credential.
func Dial(ctx context.Context, wsURL, credential string) (*Conn, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parsing websocket url: %w", err)
	}
	q := u.Query()
	q.Set("token", credential)
	u.RawQuery = q.Encode()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}

	c := &Conn{
		ws:      ws,
		send:    make(chan []byte, 256),
		events:  make(chan reconcile.Envelope, 64),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		joined:  make(map[int64]bool),
	}
	go c.writePump()
	go c.readPump()
	return c, nil
}

// Events returns inbound board changes in delivery order. The channel is
// closed when the connection ends.
func (c *Conn) Events() <-chan reconcile.Envelope {
	return c.events
}

// Join subscribes to a board's changes. Joining a board twice sends nothing.
func (c *Conn) Join(boardID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.joined[boardID] {
		return nil
	}
	if err := c.enqueue(context.Background(), reconcile.MsgJoinBoard, reconcile.BoardRef{BoardID: boardID}); err != nil {
		return err
	}
	c.joined[boardID] = true
	return nil
}

// Leave unsubscribes from a board. Leaving a board that was never joined
// sends nothing.
func (c *Conn) Leave(boardID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.joined[boardID] {
		return nil
	}
	if err := c.enqueue(context.Background(), reconcile.MsgLeaveBoard, reconcile.BoardRef{BoardID: boardID}); err != nil {
		return err
	}
	delete(c.joined, boardID)
	return nil
}

// Joined reports whether the connection is subscribed to a board.
func (c *Conn) Joined(boardID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined[boardID]
}

// Broadcast sends a change to the other collaborators on the board.
func (c *Conn) Broadcast(ctx context.Context, boardID int64, change reconcile.Change) error {
	env, err := reconcile.Encode(boardID, change)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, reconcile.MsgBoardChange, env)
}

// Close sends whatever is still queued and disconnects. It is safe to call
// more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.flushed
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) enqueue(ctx context.Context, msgType string, data any) error {
	msg, err := reconcile.NewMessage(msgType, data)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrTransportUnavailable
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrTransportUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) readPump() {
	defer func() {
		close(c.events)
		c.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("Realtime connection lost")
			}
			return
		}

		// the server batches queued frames into one message
		for _, part := range bytes.Split(raw, []byte("\n")) {
			if len(bytes.TrimSpace(part)) == 0 {
				continue
			}
			if !c.dispatch(part) {
				return
			}
		}
	}
}

// dispatch handles one frame and reports whether reading should continue.
func (c *Conn) dispatch(frame []byte) bool {
	var msg reconcile.Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		logger.Warn().Err(err).Msg("Error unmarshalling realtime message")
		return true
	}

	switch msg.Type {
	case reconcile.MsgBoardUpdated:
		var env reconcile.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			logger.Warn().Err(err).Msg("Bad board_updated data")
			return true
		}
		select {
		case c.events <- env:
			return true
		case <-c.done:
			return false
		}
	case reconcile.MsgError:
		var data reconcile.ErrorData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			logger.Warn().Err(err).Msg("Bad error data")
			return true
		}
		logger.Warn().Int64("board", data.BoardID).Str("error", data.Message).Msg("Relay rejected message")
	case reconcile.MsgPong:
	default:
		logger.Debug().Str("type", msg.Type).Msg("Ignoring realtime message")
	}
	return true
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.flushed)
	}()

	for {
		select {
		case <-c.done:
			c.drain()
			return
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				logger.Warn().Err(err).Msg("Realtime write failed")
				// unblocks readPump, which closes the connection
				c.ws.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.ws.Close()
				return
			}
		}
	}
}

// drain writes the frames queued before the connection was closed.
func (c *Conn) drain() {
	for {
		select {
		case frame := <-c.send:
			if c.write(frame) != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(frame []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}
