// Package board holds the in-memory kanban model and the pure operations
// that reorder it.
package board

import "time"

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
)

// Board is the top-level container a viewer has open.
type Board struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Visibility  Visibility `json:"visibility"`
	Cover       string     `json:"cover,omitempty"`
	Favorite    bool       `json:"favorite"`
	Role        Role       `json:"role"` // viewer's role on this board
	Columns     []Column   `json:"columns"`
	Members     []Member   `json:"members"`
}

type Column struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	BoardID  int64  `json:"board_id"`
	Position int    `json:"position"`
	Cards    []Card `json:"cards"`
}

type Card struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	ColumnID    int64        `json:"column_id"`
	Position    int          `json:"position"`
	Status      Status       `json:"status"`
	Priority    int          `json:"priority"`   // 0-3
	Difficulty  int          `json:"difficulty"` // 0-3
	DueDate     *time.Time   `json:"due_date"`
	AssigneeID  *int64       `json:"assignee_id"`
	Labels      []Label      `json:"labels"`
	Attachments []Attachment `json:"attachments"`
	Comments    []Comment    `json:"comments"`
	Archived    bool         `json:"archived"`
	Cover       *Cover       `json:"cover"`
}

type Cover struct {
	Color    string `json:"color,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type Label struct {
	ID      int64  `json:"id"`
	BoardID int64  `json:"board_id"`
	Name    string `json:"name"`
	Color   string `json:"color"`
}

type Attachment struct {
	ID        int64     `json:"id"`
	CardID    int64     `json:"card_id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

type Comment struct {
	ID        int64     `json:"id"`
	CardID    int64     `json:"card_id"`
	AuthorID  int64     `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type Member struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Role   Role   `json:"role"`
}

// Column returns the column with the given id, or nil.
func (b *Board) Column(id int64) *Column {
	for i := range b.Columns {
		if b.Columns[i].ID == id {
			return &b.Columns[i]
		}
	}
	return nil
}

// Card returns the card with the given id from whichever column holds it.
func (b *Board) Card(id int64) *Card {
	for i := range b.Columns {
		for j := range b.Columns[i].Cards {
			if b.Columns[i].Cards[j].ID == id {
				return &b.Columns[i].Cards[j]
			}
		}
	}
	return nil
}

// CardCount returns the number of cards across all columns.
func (b *Board) CardCount() int {
	n := 0
	for _, col := range b.Columns {
		n += len(col.Cards)
	}
	return n
}
