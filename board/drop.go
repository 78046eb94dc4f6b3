package board

// DropKind says what was dragged.
type DropKind string

const (
	DropColumn DropKind = "COLUMN"
	DropCard   DropKind = "CARD"
)

// Location addresses a slot in a container. For columns the container is
// the board; for cards it is a column.
type Location struct {
	ContainerID int64 `json:"containerId"`
	Index       int   `json:"index"`
}

// Drop is the result of a finished drag gesture. A nil Destination means
// the drag was cancelled.
type Drop struct {
	Kind        DropKind  `json:"kind"`
	Source      Location  `json:"source"`
	Destination *Location `json:"destination"`
}

// Cancelled reports whether the gesture ended without a drop target.
func (d Drop) Cancelled() bool {
	return d.Destination == nil
}

// NoOp reports whether the drop leaves everything where it was.
func (d Drop) NoOp() bool {
	return d.Cancelled() || (d.Source.ContainerID == d.Destination.ContainerID && d.Source.Index == d.Destination.Index)
}

// Apply runs the drop against the board's columns and returns the new
// column list. The board itself is not modified.
func (d Drop) Apply(b *Board) ([]Column, error) {
	if d.NoOp() {
		return b.Columns, nil
	}
	switch d.Kind {
	case DropColumn:
		return ReorderColumns(b.Columns, d.Source.Index, d.Destination.Index)
	case DropCard:
		return ReorderCards(b.Columns, d.Source.ContainerID, d.Source.Index, d.Destination.ContainerID, d.Destination.Index)
	}
	return b.Columns, ErrInvalidTarget
}
