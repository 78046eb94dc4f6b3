package database

import (
	"encoding/json"
	"errors"

	"github.com/CrowderSoup/boardsync/board"
)

var (
	// ErrNotFound is returned when a board, column, card or user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCrossBoard is returned when a card is moved into a column on
	// another board.
	ErrCrossBoard = errors.New("destination column belongs to another board")
)

// cardExtras holds the nested card collections, stored as JSON text on the
// card row.
type cardExtras struct {
	Labels      []board.Label      `json:"labels,omitempty"`
	Attachments []board.Attachment `json:"attachments,omitempty"`
	Comments    []board.Comment    `json:"comments,omitempty"`
	Cover       *board.Cover       `json:"cover,omitempty"`
}

func (e cardExtras) apply(c *board.Card) {
	c.Labels = e.Labels
	c.Attachments = e.Attachments
	c.Comments = e.Comments
	c.Cover = e.Cover
}

func decodeExtras(raw string) (cardExtras, error) {
	var e cardExtras
	if raw == "" {
		return e, nil
	}
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return e, err
	}
	return e, nil
}
