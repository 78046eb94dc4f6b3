package session

import (
	"context"
	"errors"

	"github.com/CrowderSoup/boardsync/board"
	"github.com/CrowderSoup/boardsync/logger"
	"github.com/CrowderSoup/boardsync/reconcile"
)

// Apply merges a change from another collaborator into the board.
func (s *Session) Apply(change reconcile.Change) error {
	s.mu.Lock()
	next := s.board.Clone()
	if err := change.Apply(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.updateViewerRole(next, change)
	s.board = next
	s.rev++
	s.mu.Unlock()

	if s.observer != nil {
		s.observer(change)
	}
	return nil
}

// updateViewerRole keeps the board's role in step with member changes that
// concern the viewer.
func (s *Session) updateViewerRole(b *board.Board, change reconcile.Change) {
	if s.viewerID == 0 {
		return
	}
	switch c := change.(type) {
	case *reconcile.MemberAdded:
		if c.UserID == s.viewerID {
			b.Role = c.Role
		}
	case *reconcile.MemberUpdated:
		if c.UserID == s.viewerID {
			b.Role = c.Role
		}
	case *reconcile.MemberRemoved:
		if c.UserID == s.viewerID {
			b.Role = board.RoleNone
		}
	}
}

// Listen applies envelopes for this board in the order they arrive until
// ctx is done or events is closed. Envelopes for other boards, unknown
// change types and malformed payloads are skipped.
func (s *Session) Listen(ctx context.Context, events <-chan reconcile.Envelope) {
	boardID := s.Board().ID
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-events:
			if !ok {
				return
			}
			if env.BoardID != 0 && env.BoardID != boardID {
				continue
			}
			change, err := env.Decode()
			if err != nil {
				if errors.Is(err, reconcile.ErrUnknownChange) {
					logger.Debug().Str("change", string(env.ChangeType)).Msg("Skipping unknown change")
				} else {
					logger.Warn().Err(err).Str("change", string(env.ChangeType)).Msg("Skipping malformed change")
				}
				continue
			}
			if err := s.Apply(change); err != nil {
				logger.Warn().Err(err).Str("change", string(env.ChangeType)).Msg("Failed to apply change")
			}
		}
	}
}
