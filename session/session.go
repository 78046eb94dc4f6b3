// Package session holds one open board and coordinates local edits with the
// REST backend and the realtime relay.
//
// A drop is applied optimistically: the session snapshots the board, runs the
// reorder, persists the move and broadcasts it. When persistence fails the
// move is undone. Inbound changes from other collaborators are merged
// through Apply or Listen.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/CrowderSoup/boardsync/board"
	"github.com/CrowderSoup/boardsync/logger"
	"github.com/CrowderSoup/boardsync/reconcile"
)

// ErrPersistenceFailure wraps every failed REST call made by a session.
var ErrPersistenceFailure = errors.New("failed to save change")

var errNoPersister = errors.New("session has no persister")

const deniedMessage = "You don't have permission to change this board."

// Persister saves moves and creations. client.API satisfies it.
type Persister interface {
	MoveCard(ctx context.Context, cardID, columnID int64, position int) error
	MoveColumn(ctx context.Context, columnID int64, position int) error
	CreateColumn(ctx context.Context, boardID int64, title string) (board.Column, error)
	CreateCard(ctx context.Context, columnID int64, title string) (board.Card, error)
}

// Broadcaster tells other collaborators about a saved change. client.Conn
// satisfies it.
type Broadcaster interface {
	Broadcast(ctx context.Context, boardID int64, change reconcile.Change) error
}

// Session owns the local state of one board.
type Session struct {
	mu    sync.Mutex
	board *board.Board
	rev   uint64 // bumped on every change to board

	viewerID    int64
	persister   Persister
	broadcaster Broadcaster
	notifier    Notifier
	observer    func(reconcile.Change)
}

// Option configures a Session.
type Option func(*Session)

func WithPersister(p Persister) Option {
	return func(s *Session) { s.persister = p }
}

func WithBroadcaster(b Broadcaster) Option {
	return func(s *Session) { s.broadcaster = b }
}

func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

// WithViewer sets the user id of the viewer so that member changes about
// them update the board's role.
func WithViewer(userID int64) Option {
	return func(s *Session) { s.viewerID = userID }
}

// WithObserver registers fn to be called with every inbound change after it
// has been merged.
func WithObserver(fn func(reconcile.Change)) Option {
	return func(s *Session) { s.observer = fn }
}

// New opens a session on a copy of b.
func New(b *board.Board, opts ...Option) *Session {
	s := &Session{
		board:    b.Clone(),
		notifier: LogNotifier{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Board returns a copy of the current state.
func (s *Session) Board() *board.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Clone()
}

// Drop applies a finished drag gesture. Cancelled and no-op drops do
// nothing. On a persistence failure the move is undone and the returned error
// wraps ErrPersistenceFailure.
func (s *Session) Drop(ctx context.Context, d board.Drop) error {
	if d.NoOp() {
		return nil
	}

	s.mu.Lock()
	if err := board.Authorize(s.board.Role); err != nil {
		s.mu.Unlock()
		s.notifier.Warn(deniedMessage)
		return err
	}

	snapshot := s.board.Clone()
	change, err := movedChange(snapshot, d)
	if err != nil {
		s.mu.Unlock()
		logger.Warn().Err(err).Int64("board", snapshot.ID).Msg("Ignoring drop on a stale target")
		return err
	}
	cols, err := d.Apply(s.board)
	if err != nil {
		s.mu.Unlock()
		logger.Warn().Err(err).Int64("board", snapshot.ID).Msg("Ignoring drop on a stale target")
		return err
	}
	s.board.Columns = cols
	s.rev++
	applied := s.rev
	if err := board.CheckDense(cols); err != nil {
		logger.Error().Err(err).Int64("board", snapshot.ID).Msg("Reorder produced sparse positions")
	}
	s.mu.Unlock()

	if err := s.persistMove(ctx, change); err != nil {
		s.mu.Lock()
		s.rollback(snapshot, applied, d, change)
		s.mu.Unlock()
		s.notifier.Error("Could not save the move. It has been undone.")
		return fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	s.broadcast(ctx, snapshot.ID, change)
	return nil
}

// rollback undoes a failed move. When nothing else touched the board since
// the move, the snapshot is restored as is. Otherwise only the move itself is
// reversed against the current state so that later changes survive.
func (s *Session) rollback(snapshot *board.Board, applied uint64, d board.Drop, change reconcile.Change) {
	if s.rev == applied {
		s.board = snapshot
		s.rev++
		return
	}

	var cols []board.Column
	var err error
	switch c := change.(type) {
	case *reconcile.CardMoved:
		cols, err = board.MoveCard(s.board.Columns, c.CardID, c.FromColumnID, d.Source.Index)
	case *reconcile.ColumnOrdered:
		cols, err = board.MoveColumn(s.board.Columns, c.ColumnID, d.Source.Index)
	default:
		return
	}
	if err != nil {
		// moved entity is gone; a reload will reconcile
		logger.Warn().Err(err).Int64("board", s.board.ID).Msg("Could not undo failed move")
		return
	}
	s.board.Columns = cols
	s.rev++
}

// movedChange describes the drop in terms of entity ids, resolved against
// the board before the move.
func movedChange(b *board.Board, d board.Drop) (reconcile.Change, error) {
	switch d.Kind {
	case board.DropColumn:
		if d.Source.Index < 0 || d.Source.Index >= len(b.Columns) {
			return nil, fmt.Errorf("column index %d: %w", d.Source.Index, board.ErrInvalidTarget)
		}
		return &reconcile.ColumnOrdered{
			ColumnID: b.Columns[d.Source.Index].ID,
			Position: d.Destination.Index,
		}, nil
	case board.DropCard:
		col := b.Column(d.Source.ContainerID)
		if col == nil || d.Source.Index < 0 || d.Source.Index >= len(col.Cards) {
			return nil, fmt.Errorf("card %d/%d: %w", d.Source.ContainerID, d.Source.Index, board.ErrInvalidTarget)
		}
		return &reconcile.CardMoved{
			CardID:       col.Cards[d.Source.Index].ID,
			FromColumnID: d.Source.ContainerID,
			ToColumnID:   d.Destination.ContainerID,
			Position:     d.Destination.Index,
		}, nil
	}
	return nil, fmt.Errorf("drop kind %q: %w", d.Kind, board.ErrInvalidTarget)
}

func (s *Session) persistMove(ctx context.Context, change reconcile.Change) error {
	if s.persister == nil {
		return nil
	}
	switch c := change.(type) {
	case *reconcile.CardMoved:
		return s.persister.MoveCard(ctx, c.CardID, c.ToColumnID, c.Position)
	case *reconcile.ColumnOrdered:
		return s.persister.MoveColumn(ctx, c.ColumnID, c.Position)
	}
	return nil
}

// AddColumn creates a column at the end of the board. The column is added
// locally once the server has assigned its id.
func (s *Session) AddColumn(ctx context.Context, title string) (board.Column, error) {
	s.mu.Lock()
	err := board.Authorize(s.board.Role)
	boardID := s.board.ID
	s.mu.Unlock()
	if err != nil {
		s.notifier.Warn(deniedMessage)
		return board.Column{}, err
	}

	if s.persister == nil {
		return board.Column{}, fmt.Errorf("%w: %w", ErrPersistenceFailure, errNoPersister)
	}
	col, err := s.persister.CreateColumn(ctx, boardID, title)
	if err != nil {
		s.notifier.Error("Could not create the column.")
		return board.Column{}, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	s.mu.Lock()
	s.board.Columns = board.InsertColumn(s.board.Columns, col)
	s.rev++
	s.mu.Unlock()

	s.broadcast(ctx, boardID, &reconcile.ColumnAdded{Column: col})
	return col, nil
}

// AddCard creates a card at the end of a column.
func (s *Session) AddCard(ctx context.Context, columnID int64, title string) (board.Card, error) {
	s.mu.Lock()
	err := board.Authorize(s.board.Role)
	boardID := s.board.ID
	known := s.board.Column(columnID) != nil
	s.mu.Unlock()
	if err != nil {
		s.notifier.Warn(deniedMessage)
		return board.Card{}, err
	}
	if !known {
		return board.Card{}, fmt.Errorf("column %d: %w", columnID, board.ErrInvalidTarget)
	}

	if s.persister == nil {
		return board.Card{}, fmt.Errorf("%w: %w", ErrPersistenceFailure, errNoPersister)
	}
	card, err := s.persister.CreateCard(ctx, columnID, title)
	if err != nil {
		s.notifier.Error("Could not create the card.")
		return board.Card{}, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	s.mu.Lock()
	cols, err := board.InsertCard(s.board.Columns, card)
	if err == nil {
		s.board.Columns = cols
		s.rev++
	}
	s.mu.Unlock()
	if err != nil {
		// the column was deleted remotely while the request was in flight
		logger.Warn().Err(err).Int64("card", card.ID).Msg("Created card has no local column")
	}

	s.broadcast(ctx, boardID, &reconcile.CardCreated{Card: card})
	return card, nil
}

// broadcast is best effort: the change is already saved, so a missing
// transport only delays other collaborators until they reload.
func (s *Session) broadcast(ctx context.Context, boardID int64, change reconcile.Change) {
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.Broadcast(ctx, boardID, change); err != nil {
		logger.Warn().Err(err).Int64("board", boardID).Str("change", string(change.Type())).Msg("Broadcast failed")
	}
}
