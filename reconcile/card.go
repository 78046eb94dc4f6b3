package reconcile

import (
	"slices"

	"github.com/CrowderSoup/boardsync/board"
)

// Card-scoped changes match a card by id. A change for a card that is not
// on the local board is ignored.

// CardUpdated replaces every field of the matching card.
type CardUpdated struct {
	board.Card
}

func (c *CardUpdated) Type() ChangeType { return CardUpdatedType }

func (c *CardUpdated) Apply(b *board.Board) error {
	local := b.Card(c.ID)
	if local == nil {
		return nil
	}
	if c.ColumnID != local.ColumnID && b.Column(c.ColumnID) != nil {
		cols, err := board.MoveCard(b.Columns, c.ID, c.ColumnID, c.Position)
		if err != nil {
			return err
		}
		b.Columns = cols
		local = b.Card(c.ID)
	}

	// placement stays dense locally
	pos, col := local.Position, local.ColumnID
	*local = c.Card.Clone()
	local.Position = pos
	local.ColumnID = col
	return nil
}

// CommentAdded appends a comment to the matching card.
type CommentAdded struct {
	CardID  int64         `json:"card_id"`
	Comment board.Comment `json:"comment"`
}

func (c *CommentAdded) Type() ChangeType { return CommentAddedType }

func (c *CommentAdded) Apply(b *board.Board) error {
	if card := b.Card(c.CardID); card != nil {
		card.Comments = append(slices.Clone(card.Comments), c.Comment)
	}
	return nil
}

// AttachmentAdded puts an attachment at the head of the matching card's list.
type AttachmentAdded struct {
	CardID     int64            `json:"card_id"`
	Attachment board.Attachment `json:"attachment"`
}

func (c *AttachmentAdded) Type() ChangeType { return AttachmentAddedType }

func (c *AttachmentAdded) Apply(b *board.Board) error {
	if card := b.Card(c.CardID); card != nil {
		card.Attachments = append([]board.Attachment{c.Attachment}, card.Attachments...)
	}
	return nil
}

type AttachmentRemoved struct {
	CardID       int64 `json:"card_id"`
	AttachmentID int64 `json:"attachment_id"`
}

func (c *AttachmentRemoved) Type() ChangeType { return AttachmentRemovedType }

func (c *AttachmentRemoved) Apply(b *board.Board) error {
	if card := b.Card(c.CardID); card != nil {
		card.Attachments = slices.DeleteFunc(slices.Clone(card.Attachments), func(a board.Attachment) bool {
			return a.ID == c.AttachmentID
		})
	}
	return nil
}

// LabelAdded appends a label to the matching card.
type LabelAdded struct {
	CardID int64       `json:"card_id"`
	Label  board.Label `json:"label"`
}

func (c *LabelAdded) Type() ChangeType { return LabelAddedToCardType }

func (c *LabelAdded) Apply(b *board.Board) error {
	if card := b.Card(c.CardID); card != nil {
		card.Labels = append(slices.Clone(card.Labels), c.Label)
	}
	return nil
}

type LabelRemoved struct {
	CardID  int64 `json:"card_id"`
	LabelID int64 `json:"label_id"`
}

func (c *LabelRemoved) Type() ChangeType { return LabelRemovedFromCardType }

func (c *LabelRemoved) Apply(b *board.Board) error {
	if card := b.Card(c.CardID); card != nil {
		card.Labels = slices.DeleteFunc(slices.Clone(card.Labels), func(l board.Label) bool {
			return l.ID == c.LabelID
		})
	}
	return nil
}
