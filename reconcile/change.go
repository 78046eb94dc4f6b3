// Package reconcile merges remotely originated change notifications into a
// locally held board.
//
// Each change type is its own struct with a typed payload. Decode looks the
// type up in a dispatch table and unmarshals the payload into the matching
// struct; Apply performs a field-level merge that leaves every field the
// change does not name untouched.
//
// Merges are last-writer-wins. Full replacements (card_updated,
// board_update) are idempotent; list appends (comment_added,
// attachment_added, label_added_to_card) are not and will duplicate an entry
// when a change is delivered twice.
package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/CrowderSoup/boardsync/board"
)

type ChangeType string

const (
	CardUpdatedType          ChangeType = "card_updated"
	CommentAddedType         ChangeType = "comment_added"
	AttachmentAddedType      ChangeType = "attachment_added"
	AttachmentRemovedType    ChangeType = "attachment_removed"
	LabelAddedToCardType     ChangeType = "label_added_to_card"
	LabelRemovedFromCardType ChangeType = "label_removed_from_card"
	ColumnUpdateType         ChangeType = "column_update"
	ColumnAddType            ChangeType = "column_add"
	ColumnDeleteType         ChangeType = "column_delete"
	ColumnOrderType          ChangeType = "column_order"
	CardMoveType             ChangeType = "card_move"
	CardCreatedType          ChangeType = "card_created"
	BoardUpdateType          ChangeType = "board_update"
	AddMemberType            ChangeType = "add_member"
	UpdateMemberType         ChangeType = "update_member"
	RemoveMemberType         ChangeType = "remove_member"
)

// ErrUnknownChange is returned by Decode for a change type with no entry in
// the dispatch table.
var ErrUnknownChange = errors.New("unknown change type")

// Change is one remotely originated mutation.
type Change interface {
	Type() ChangeType
	Apply(b *board.Board) error
}

// Envelope is the wire form of a change: the data of an outbound
// board_change and of an inbound board_updated message.
type Envelope struct {
	BoardID    int64           `json:"boardId"`
	ChangeType ChangeType      `json:"changeType"`
	Payload    json.RawMessage `json:"payload"`
}

var registry = map[ChangeType]func() Change{
	CardUpdatedType:          func() Change { return &CardUpdated{} },
	CommentAddedType:         func() Change { return &CommentAdded{} },
	AttachmentAddedType:      func() Change { return &AttachmentAdded{} },
	AttachmentRemovedType:    func() Change { return &AttachmentRemoved{} },
	LabelAddedToCardType:     func() Change { return &LabelAdded{} },
	LabelRemovedFromCardType: func() Change { return &LabelRemoved{} },
	ColumnUpdateType:         func() Change { return &ColumnUpdated{} },
	ColumnAddType:            func() Change { return &ColumnAdded{} },
	ColumnDeleteType:         func() Change { return &ColumnDeleted{} },
	ColumnOrderType:          func() Change { return &ColumnOrdered{} },
	CardMoveType:             func() Change { return &CardMoved{} },
	CardCreatedType:          func() Change { return &CardCreated{} },
	BoardUpdateType:          func() Change { return &BoardUpdated{} },
	AddMemberType:            func() Change { return &MemberAdded{} },
	UpdateMemberType:         func() Change { return &MemberUpdated{} },
	RemoveMemberType:         func() Change { return &MemberRemoved{} },
}

// Decode builds the typed change for t from its JSON payload.
func Decode(t ChangeType, payload json.RawMessage) (Change, error) {
	factory, ok := registry[t]
	if !ok {
		return nil, fmt.Errorf("%q: %w", t, ErrUnknownChange)
	}
	change := factory()
	if err := json.Unmarshal(payload, change); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", t, err)
	}
	return change, nil
}

// Decode builds the typed change carried by the envelope.
func (e Envelope) Decode() (Change, error) {
	return Decode(e.ChangeType, e.Payload)
}

// Encode wraps a change for the given board.
func Encode(boardID int64, c Change) (Envelope, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", c.Type(), err)
	}
	return Envelope{BoardID: boardID, ChangeType: c.Type(), Payload: payload}, nil
}
