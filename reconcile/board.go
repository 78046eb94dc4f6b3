package reconcile

import (
	"slices"

	"github.com/CrowderSoup/boardsync/board"
)

// BoardUpdated shallow-merges the named board fields. Nil fields are left
// alone. A change addressed to another board is ignored.
type BoardUpdated struct {
	ID          int64             `json:"id,omitempty"`
	Name        *string           `json:"name,omitempty"`
	Description *string           `json:"description,omitempty"`
	Visibility  *board.Visibility `json:"visibility,omitempty"`
	Favorite    *bool             `json:"favorite,omitempty"`
	Cover       *string           `json:"cover,omitempty"`
}

func (c *BoardUpdated) Type() ChangeType { return BoardUpdateType }

func (c *BoardUpdated) Apply(b *board.Board) error {
	if c.ID != 0 && c.ID != b.ID {
		return nil
	}
	if c.Name != nil {
		b.Name = *c.Name
	}
	if c.Description != nil {
		b.Description = *c.Description
	}
	if c.Visibility != nil {
		b.Visibility = *c.Visibility
	}
	if c.Favorite != nil {
		b.Favorite = *c.Favorite
	}
	if c.Cover != nil {
		b.Cover = *c.Cover
	}
	return nil
}

// MemberAdded inserts a member, replacing any entry with the same user id.
type MemberAdded struct {
	board.Member
}

func (c *MemberAdded) Type() ChangeType { return AddMemberType }

func (c *MemberAdded) Apply(b *board.Board) error {
	b.Members = upsertMember(b.Members, c.Member)
	return nil
}

type MemberUpdated struct {
	board.Member
}

func (c *MemberUpdated) Type() ChangeType { return UpdateMemberType }

func (c *MemberUpdated) Apply(b *board.Board) error {
	b.Members = upsertMember(b.Members, c.Member)
	return nil
}

type MemberRemoved struct {
	UserID int64 `json:"user_id"`
}

func (c *MemberRemoved) Type() ChangeType { return RemoveMemberType }

func (c *MemberRemoved) Apply(b *board.Board) error {
	b.Members = slices.DeleteFunc(slices.Clone(b.Members), func(m board.Member) bool {
		return m.UserID == c.UserID
	})
	return nil
}

func upsertMember(members []board.Member, m board.Member) []board.Member {
	out := slices.Clone(members)
	for i := range out {
		if out[i].UserID == m.UserID {
			out[i] = m
			return out
		}
	}
	return append(out, m)
}
