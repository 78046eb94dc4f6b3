package reconcile

import (
	"errors"

	"github.com/CrowderSoup/boardsync/board"
)

// ColumnUpdated replaces a column's fields. The local position is kept, and
// the local cards are kept unless the payload carries its own.
type ColumnUpdated struct {
	board.Column
}

func (c *ColumnUpdated) Type() ChangeType { return ColumnUpdateType }

func (c *ColumnUpdated) Apply(b *board.Board) error {
	local := b.Column(c.ID)
	if local == nil {
		return nil
	}
	next := c.Column.Clone()
	next.Position = local.Position
	if next.Cards == nil {
		next.Cards = local.Cards
	}
	*local = next
	return nil
}

type ColumnAdded struct {
	board.Column
}

func (c *ColumnAdded) Type() ChangeType { return ColumnAddType }

func (c *ColumnAdded) Apply(b *board.Board) error {
	b.Columns = board.InsertColumn(b.Columns, c.Column)
	return nil
}

type ColumnDeleted struct {
	ColumnID int64 `json:"column_id"`
}

func (c *ColumnDeleted) Type() ChangeType { return ColumnDeleteType }

func (c *ColumnDeleted) Apply(b *board.Board) error {
	cols, err := board.RemoveColumn(b.Columns, c.ColumnID)
	if errors.Is(err, board.ErrInvalidTarget) {
		return nil // already gone
	}
	if err != nil {
		return err
	}
	b.Columns = cols
	return nil
}

// ColumnOrdered moves a column to a new position.
type ColumnOrdered struct {
	ColumnID int64 `json:"column_id"`
	Position int   `json:"position"`
}

func (c *ColumnOrdered) Type() ChangeType { return ColumnOrderType }

func (c *ColumnOrdered) Apply(b *board.Board) error {
	cols, err := board.MoveColumn(b.Columns, c.ColumnID, c.Position)
	if err != nil {
		return err
	}
	b.Columns = cols
	return nil
}

// CardMoved moves a card to a position in a (possibly different) column.
type CardMoved struct {
	CardID       int64 `json:"card_id"`
	FromColumnID int64 `json:"from_column_id"`
	ToColumnID   int64 `json:"to_column_id"`
	Position     int   `json:"position"`
}

func (c *CardMoved) Type() ChangeType { return CardMoveType }

func (c *CardMoved) Apply(b *board.Board) error {
	cols, err := board.MoveCard(b.Columns, c.CardID, c.ToColumnID, c.Position)
	if err != nil {
		return err
	}
	b.Columns = cols
	return nil
}

type CardCreated struct {
	board.Card
}

func (c *CardCreated) Type() ChangeType { return CardCreatedType }

func (c *CardCreated) Apply(b *board.Board) error {
	cols, err := board.InsertCard(b.Columns, c.Card)
	if err != nil {
		return err
	}
	b.Columns = cols
	return nil
}
