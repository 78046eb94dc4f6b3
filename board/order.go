package board

import (
	"fmt"
	"slices"
)

// Move returns a copy of s with the element at from relocated to index to.
// Both indexes must be within [0, len(s)).
func Move[T any](s []T, from, to int) []T {
	out := slices.Clone(s)
	item := out[from]
	out = slices.Delete(out, from, from+1)
	return slices.Insert(out, to, item)
}

// ReorderColumns moves the column at src to dst and renumbers every column.
// The input is never mutated; when src == dst the input is returned as is.
func ReorderColumns(cols []Column, src, dst int) ([]Column, error) {
	if src < 0 || src >= len(cols) || dst < 0 || dst >= len(cols) {
		return cols, fmt.Errorf("column index %d -> %d out of range (%d columns): %w", src, dst, len(cols), ErrInvalidTarget)
	}
	if src == dst {
		return cols, nil
	}

	out := Move(cloneColumns(cols), src, dst)
	renumberColumns(out)
	return out, nil
}

// ReorderCards moves the card at src in column srcCol to index dst in
// column dstCol. The moved card is a fresh copy carrying the destination
// column id; both affected columns are renumbered. The input is never
// mutated.
func ReorderCards(cols []Column, srcCol int64, src int, dstCol int64, dst int) ([]Column, error) {
	si := columnIndex(cols, srcCol)
	if si < 0 {
		return cols, fmt.Errorf("source column %d: %w", srcCol, ErrInvalidTarget)
	}
	di := columnIndex(cols, dstCol)
	if di < 0 {
		return cols, fmt.Errorf("destination column %d: %w", dstCol, ErrInvalidTarget)
	}
	if src < 0 || src >= len(cols[si].Cards) {
		return cols, fmt.Errorf("card index %d in column %d: %w", src, srcCol, ErrInvalidTarget)
	}
	limit := len(cols[di].Cards)
	if si == di {
		limit--
	}
	if dst < 0 || dst > limit {
		return cols, fmt.Errorf("destination index %d in column %d: %w", dst, dstCol, ErrInvalidTarget)
	}
	if si == di && src == dst {
		return cols, nil
	}

	out := cloneColumns(cols)
	if si == di {
		out[si].Cards = Move(out[si].Cards, src, dst)
		renumberCards(out[si].Cards)
		return out, nil
	}

	card := out[si].Cards[src].Clone()
	card.ColumnID = dstCol
	out[si].Cards = slices.Delete(out[si].Cards, src, src+1)
	out[di].Cards = slices.Insert(out[di].Cards, dst, card)
	renumberCards(out[si].Cards)
	renumberCards(out[di].Cards)
	return out, nil
}

// MoveCard relocates a card addressed by id. The destination index is
// clamped to the destination column's bounds.
func MoveCard(cols []Column, cardID, dstCol int64, dst int) ([]Column, error) {
	si, src := cardIndex(cols, cardID)
	if si < 0 {
		return cols, fmt.Errorf("card %d: %w", cardID, ErrInvalidTarget)
	}
	di := columnIndex(cols, dstCol)
	if di < 0 {
		return cols, fmt.Errorf("destination column %d: %w", dstCol, ErrInvalidTarget)
	}
	limit := len(cols[di].Cards)
	if si == di {
		limit--
	}
	return ReorderCards(cols, cols[si].ID, src, dstCol, clamp(dst, 0, limit))
}

// MoveColumn relocates a column addressed by id, clamping dst.
func MoveColumn(cols []Column, columnID int64, dst int) ([]Column, error) {
	src := columnIndex(cols, columnID)
	if src < 0 {
		return cols, fmt.Errorf("column %d: %w", columnID, ErrInvalidTarget)
	}
	return ReorderColumns(cols, src, clamp(dst, 0, len(cols)-1))
}

// InsertColumn appends col at the tail. A column already present with the
// same id is replaced in place instead.
func InsertColumn(cols []Column, col Column) []Column {
	out := cloneColumns(cols)
	col = col.Clone()
	if i := columnIndex(out, col.ID); i >= 0 {
		col.Position = out[i].Position
		out[i] = col
		return out
	}
	col.Position = len(out)
	return append(out, col)
}

// InsertCard appends card at the tail of the column named by its
// ColumnID. A card already present anywhere on the board is replaced in
// place instead, keeping its column and position.
func InsertCard(cols []Column, card Card) ([]Column, error) {
	out := cloneColumns(cols)
	card = card.Clone()
	if ci, i := cardIndex(out, card.ID); ci >= 0 {
		card.ColumnID = out[ci].ID
		card.Position = out[ci].Cards[i].Position
		out[ci].Cards[i] = card
		return out, nil
	}
	di := columnIndex(out, card.ColumnID)
	if di < 0 {
		return cols, fmt.Errorf("column %d: %w", card.ColumnID, ErrInvalidTarget)
	}
	card.Position = len(out[di].Cards)
	out[di].Cards = append(out[di].Cards, card)
	return out, nil
}

// RemoveColumn drops a column and its cards and renumbers the rest.
func RemoveColumn(cols []Column, columnID int64) ([]Column, error) {
	i := columnIndex(cols, columnID)
	if i < 0 {
		return cols, fmt.Errorf("column %d: %w", columnID, ErrInvalidTarget)
	}
	out := slices.Delete(cloneColumns(cols), i, i+1)
	renumberColumns(out)
	return out, nil
}

// RemoveCard drops a card and renumbers its former column.
func RemoveCard(cols []Column, cardID int64) ([]Column, error) {
	ci, i := cardIndex(cols, cardID)
	if ci < 0 {
		return cols, fmt.Errorf("card %d: %w", cardID, ErrInvalidTarget)
	}
	out := cloneColumns(cols)
	out[ci].Cards = slices.Delete(out[ci].Cards, i, i+1)
	renumberCards(out[ci].Cards)
	return out, nil
}

// CheckDense verifies that column positions and every column's card
// positions run 0..n-1 in slice order.
func CheckDense(cols []Column) error {
	for i, col := range cols {
		if col.Position != i {
			return fmt.Errorf("column %d at index %d has position %d", col.ID, i, col.Position)
		}
		for j, card := range col.Cards {
			if card.Position != j {
				return fmt.Errorf("card %d at index %d of column %d has position %d", card.ID, j, col.ID, card.Position)
			}
			if card.ColumnID != col.ID {
				return fmt.Errorf("card %d in column %d claims column %d", card.ID, col.ID, card.ColumnID)
			}
		}
	}
	return nil
}

func renumberColumns(cols []Column) {
	for i := range cols {
		cols[i].Position = i
	}
}

func renumberCards(cards []Card) {
	for i := range cards {
		cards[i].Position = i
	}
}

func columnIndex(cols []Column, id int64) int {
	for i := range cols {
		if cols[i].ID == id {
			return i
		}
	}
	return -1
}

func cardIndex(cols []Column, id int64) (int, int) {
	for i := range cols {
		for j := range cols[i].Cards {
			if cols[i].Cards[j].ID == id {
				return i, j
			}
		}
	}
	return -1, -1
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
