package reconcile

import "encoding/json"

// Message types on the realtime channel.
const (
	MsgJoinBoard    = "join_board"
	MsgLeaveBoard   = "leave_board"
	MsgBoardChange  = "board_change"
	MsgBoardUpdated = "board_updated"
	MsgPing         = "ping"
	MsgPong         = "pong"
	MsgError        = "error"
)

// Message is the standard frame exchanged over the realtime channel.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// BoardRef is the data of join_board and leave_board.
type BoardRef struct {
	BoardID int64 `json:"boardId"`
}

// ErrorData is the data of an error frame.
type ErrorData struct {
	BoardID int64  `json:"boardId,omitempty"`
	Message string `json:"message"`
}

// NewMessage marshals data into a frame of the given type.
func NewMessage(msgType string, data any) (Message, error) {
	if data == nil {
		return Message{Type: msgType}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: msgType, Data: raw}, nil
}
