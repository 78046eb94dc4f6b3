package board

import "slices"

// Clone returns a deep copy of the board. The copy shares no slices or
// pointers with b, so it can serve as a rollback snapshot.
func (b *Board) Clone() *Board {
	if b == nil {
		return nil
	}
	out := *b
	out.Columns = cloneColumns(b.Columns)
	out.Members = slices.Clone(b.Members)
	return &out
}

func (c Column) Clone() Column {
	out := c
	if c.Cards != nil {
		out.Cards = make([]Card, len(c.Cards))
		for i, card := range c.Cards {
			out.Cards[i] = card.Clone()
		}
	}
	return out
}

func (c Card) Clone() Card {
	out := c
	if c.DueDate != nil {
		due := *c.DueDate
		out.DueDate = &due
	}
	if c.AssigneeID != nil {
		id := *c.AssigneeID
		out.AssigneeID = &id
	}
	if c.Cover != nil {
		cover := *c.Cover
		out.Cover = &cover
	}
	out.Labels = slices.Clone(c.Labels)
	out.Attachments = slices.Clone(c.Attachments)
	out.Comments = slices.Clone(c.Comments)
	return out
}

func cloneColumns(cols []Column) []Column {
	if cols == nil {
		return nil
	}
	out := make([]Column, len(cols))
	for i, col := range cols {
		out[i] = col.Clone()
	}
	return out
}
