package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/CrowderSoup/boardsync/board"
	"github.com/CrowderSoup/boardsync/logger"
	"github.com/CrowderSoup/boardsync/reconcile"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 1024 * 1024 // 1MB
)

// MembershipChecker resolves a user's role on a board.
type MembershipChecker interface {
	MemberRole(ctx context.Context, boardID, userID int64) (board.Role, error)
}

// Client represents a connected WebSocket client
type Client struct {
	ID     string // one per connection; a user may hold several
	UserID int64
	Email  string
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
}

type subscription struct {
	client  *Client
	boardID int64
	role    board.Role
}

type relay struct {
	sender   *Client
	envelope reconcile.Envelope
}

// Hub maintains the set of active clients, groups them into board rooms and
// relays board changes between the members of a room.
type Hub struct {
	clients    map[*Client]bool
	rooms      map[int64]map[*Client]board.Role
	register   chan *Client
	unregister chan *Client
	join       chan subscription
	leave      chan subscription
	relay      chan relay
	query      chan func()
	quit       chan struct{}
	members    MembershipChecker
}

// NewHub creates a new hub instance
func NewHub(members MembershipChecker) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[int64]map[*Client]board.Role),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan subscription),
		leave:      make(chan subscription),
		relay:      make(chan relay),
		query:      make(chan func()),
		quit:       make(chan struct{}),
		members:    members,
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
	}
}

// Unregister removes a client from the hub and all of its rooms
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// Publish sends a server-originated change to everyone in the board's room.
func (h *Hub) Publish(env reconcile.Envelope) {
	select {
	case h.relay <- relay{envelope: env}:
	case <-h.quit:
	}
}

// Subscribers returns the number of connections joined to a board.
func (h *Hub) Subscribers(boardID int64) int {
	reply := make(chan int, 1)
	select {
	case h.query <- func() { reply <- len(h.rooms[boardID]) }:
		return <-reply
	case <-h.quit:
		return 0
	}
}

// Shutdown stops the run loop.
func (h *Hub) Shutdown() {
	close(h.quit)
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			for client := range h.clients {
				close(client.Send)
			}
			h.clients = map[*Client]bool{}
			h.rooms = map[int64]map[*Client]board.Role{}
			return
		case client := <-h.register:
			h.clients[client] = true
			logger.Debug().Str("conn", client.ID).Str("user", client.Email).Msg("Client connected")
		case client := <-h.unregister:
			h.drop(client)
		case sub := <-h.join:
			if !h.clients[sub.client] {
				continue
			}
			room, ok := h.rooms[sub.boardID]
			if !ok {
				room = make(map[*Client]board.Role)
				h.rooms[sub.boardID] = room
			}
			room[sub.client] = sub.role
			logger.Debug().Str("conn", sub.client.ID).Int64("board", sub.boardID).Msg("Joined board")
		case sub := <-h.leave:
			if room, ok := h.rooms[sub.boardID]; ok {
				delete(room, sub.client)
				if len(room) == 0 {
					delete(h.rooms, sub.boardID)
				}
			}
		case r := <-h.relay:
			h.broadcast(r)
		case fn := <-h.query:
			fn()
		}
	}
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for boardID, room := range h.rooms {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, boardID)
		}
	}
	close(client.Send)
	logger.Debug().Str("conn", client.ID).Str("user", client.Email).Msg("Client disconnected")
}

func (h *Hub) broadcast(r relay) {
	room := h.rooms[r.envelope.BoardID]
	if r.sender != nil {
		role, joined := room[r.sender]
		if !joined {
			h.sendError(r.sender, r.envelope.BoardID, "join the board before sending changes")
			return
		}
		if !role.CanEdit() {
			h.sendError(r.sender, r.envelope.BoardID, board.ErrPermissionDenied.Error())
			return
		}
	}

	msg, err := reconcile.NewMessage(reconcile.MsgBoardUpdated, r.envelope)
	if err != nil {
		logger.Error().Err(err).Msg("Error marshalling board update")
		return
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		logger.Error().Err(err).Msg("Error marshalling board update")
		return
	}

	logger.Debug().
		Int64("board", r.envelope.BoardID).
		Str("change", string(r.envelope.ChangeType)).
		Int("subscribers", len(room)).
		Msg("Relaying board change")

	for client := range room {
		// skip the sender to avoid echo
		if client == r.sender {
			continue
		}
		select {
		case client.Send <- frame:
		default:
			logger.Warn().Str("conn", client.ID).Msg("Client send buffer full, removing client")
			h.drop(client)
		}
	}

	if r.sender == nil {
		h.syncRoles(r.envelope)
	}
}

// syncRoles applies a server-published membership change to the roles held
// for the room's connections. A removed member leaves the room.
func (h *Hub) syncRoles(env reconcile.Envelope) {
	var userID int64
	role := board.RoleNone
	switch env.ChangeType {
	case reconcile.AddMemberType, reconcile.UpdateMemberType, reconcile.RemoveMemberType:
	default:
		return
	}
	change, err := env.Decode()
	if err != nil {
		return
	}
	switch c := change.(type) {
	case *reconcile.MemberAdded:
		userID, role = c.UserID, c.Role
	case *reconcile.MemberUpdated:
		userID, role = c.UserID, c.Role
	case *reconcile.MemberRemoved:
		userID = c.UserID
	}

	room := h.rooms[env.BoardID]
	for client := range room {
		if client.UserID != userID {
			continue
		}
		if role == board.RoleNone {
			delete(room, client)
		} else {
			room[client] = role
		}
	}
	if room != nil && len(room) == 0 {
		delete(h.rooms, env.BoardID)
	}
}

func (h *Hub) sendError(client *Client, boardID int64, text string) {
	msg, err := reconcile.NewMessage(reconcile.MsgError, reconcile.ErrorData{BoardID: boardID, Message: text})
	if err != nil {
		return
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case client.Send <- frame:
	default:
	}
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Str("conn", c.ID).Msg("WebSocket error")
			}
			return
		}

		var msg reconcile.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Warn().Err(err).Str("conn", c.ID).Msg("Error unmarshalling WebSocket message")
			continue
		}

		c.handle(msg)
	}
}

func (c *Client) handle(msg reconcile.Message) {
	switch msg.Type {
	case reconcile.MsgPing:
		pong, err := reconcile.NewMessage(reconcile.MsgPong, map[string]string{"timestamp": time.Now().Format(time.RFC3339)})
		if err != nil {
			return
		}
		if frame, err := json.Marshal(pong); err == nil {
			c.Hub.deliver(c, frame)
		}

	case reconcile.MsgJoinBoard:
		var ref reconcile.BoardRef
		if err := json.Unmarshal(msg.Data, &ref); err != nil {
			logger.Warn().Err(err).Str("conn", c.ID).Msg("Bad join_board data")
			return
		}
		role, err := c.Hub.members.MemberRole(context.Background(), ref.BoardID, c.UserID)
		if err != nil {
			logger.Error().Err(err).Int64("board", ref.BoardID).Msg("Error checking membership")
			return
		}
		if role == board.RoleNone {
			c.Hub.relayError(c, ref.BoardID, "not a member of this board")
			return
		}
		select {
		case c.Hub.join <- subscription{client: c, boardID: ref.BoardID, role: role}:
		case <-c.Hub.quit:
		}

	case reconcile.MsgLeaveBoard:
		var ref reconcile.BoardRef
		if err := json.Unmarshal(msg.Data, &ref); err != nil {
			return
		}
		select {
		case c.Hub.leave <- subscription{client: c, boardID: ref.BoardID}:
		case <-c.Hub.quit:
		}

	case reconcile.MsgBoardChange:
		var env reconcile.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			logger.Warn().Err(err).Str("conn", c.ID).Msg("Bad board_change data")
			return
		}
		logger.Debug().Str("conn", c.ID).Str("change", string(env.ChangeType)).Msg("Received board change")
		select {
		case c.Hub.relay <- relay{sender: c, envelope: env}:
		case <-c.Hub.quit:
		}

	default:
		logger.Debug().Str("conn", c.ID).Str("type", msg.Type).Msg("Ignoring message")
	}
}

// deliver queues a frame for one client from outside the run loop. The
// send happens on the hub goroutine so it never races a closed channel.
func (h *Hub) deliver(client *Client, frame []byte) {
	select {
	case h.query <- func() {
		if !h.clients[client] {
			return
		}
		select {
		case client.Send <- frame:
		default:
		}
	}:
	case <-h.quit:
	}
}

// relayError queues an error frame for the client from outside the run loop.
func (h *Hub) relayError(client *Client, boardID int64, text string) {
	select {
	case h.query <- func() {
		if h.clients[client] {
			h.sendError(client, boardID, text)
		}
	}:
	case <-h.quit:
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte("\n"))
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
