package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/CrowderSoup/boardsync/board"
)

// Store handles database operations for boards, columns and cards.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureUser returns the id of the user with the given email, creating the
// user if needed.
func (s *Store) EnsureUser(ctx context.Context, email, name string) (int64, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, name) VALUES (?, ?) ON CONFLICT(email) DO NOTHING`, email, name)
	if err != nil {
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE email = ?`, email).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to query user: %w", err)
	}
	return id, nil
}

// CreateBoard creates a board owned by ownerID.
func (s *Store) CreateBoard(ctx context.Context, ownerID int64, name, description string, visibility board.Visibility) (*board.Board, error) {
	if visibility == "" {
		visibility = board.VisibilityPrivate
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO boards (name, description, visibility) VALUES (?, ?, ?)`, name, description, string(visibility))
	if err != nil {
		return nil, fmt.Errorf("failed to insert board: %w", err)
	}
	boardID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO board_members (board_id, user_id, role) VALUES (?, ?, ?)`, boardID, ownerID, string(board.RoleOwner)); err != nil {
		return nil, fmt.Errorf("failed to insert owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.GetBoard(ctx, boardID, ownerID)
}

// AddMember adds userID to the board or updates the existing role.
func (s *Store) AddMember(ctx context.Context, boardID, userID int64, role board.Role) error {
	if !role.Valid() || role == board.RoleNone {
		return fmt.Errorf("invalid role %q", role)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO board_members (board_id, user_id, role) VALUES (?, ?, ?)
		ON CONFLICT(board_id, user_id) DO UPDATE SET role = excluded.role
	`, boardID, userID, string(role))
	if err != nil {
		return fmt.Errorf("failed to upsert member: %w", err)
	}
	return nil
}

// MemberRole returns the user's role on the board, or RoleNone.
func (s *Store) MemberRole(ctx context.Context, boardID, userID int64) (board.Role, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM board_members WHERE board_id = ? AND user_id = ?`, boardID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return board.RoleNone, nil
	}
	if err != nil {
		return board.RoleNone, fmt.Errorf("failed to query member role: %w", err)
	}
	return board.Role(role), nil
}

// GetBoard loads a board with its columns, cards and members as seen by
// viewerID.
func (s *Store) GetBoard(ctx context.Context, boardID, viewerID int64) (*board.Board, error) {
	b := &board.Board{ID: boardID, Columns: []board.Column{}, Members: []board.Member{}}
	var visibility string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, description, visibility, cover FROM boards WHERE id = ?`, boardID).
		Scan(&b.Name, &b.Description, &visibility, &b.Cover)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("board %d: %w", boardID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query board: %w", err)
	}
	b.Visibility = board.Visibility(visibility)
	b.Role = board.RoleNone

	members, err := s.members(ctx, boardID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.member.UserID == viewerID {
			b.Role = m.member.Role
			b.Favorite = m.favorite
		}
		b.Members = append(b.Members, m.member)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, position FROM columns WHERE board_id = ? ORDER BY position, id`, boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	for rows.Next() {
		col := board.Column{BoardID: boardID, Cards: []board.Card{}}
		if err := rows.Scan(&col.ID, &col.Title, &col.Position); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		b.Columns = append(b.Columns, col)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range b.Columns {
		cards, err := s.cards(ctx, b.Columns[i].ID)
		if err != nil {
			return nil, err
		}
		b.Columns[i].Cards = cards
	}
	return b, nil
}

type memberRow struct {
	member   board.Member
	favorite bool
}

func (s *Store) members(ctx context.Context, boardID int64) ([]memberRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.name, m.role, m.favorite
		FROM board_members m JOIN users u ON u.id = m.user_id
		WHERE m.board_id = ? ORDER BY u.id
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var out []memberRow
	for rows.Next() {
		var m memberRow
		var role string
		if err := rows.Scan(&m.member.UserID, &m.member.Email, &m.member.Name, &role, &m.favorite); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.member.Role = board.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

const cardColumns = `id, column_id, title, description, position, status, priority, difficulty, due_date, assignee_id, archived, extras`

func scanCard(scan func(dest ...any) error) (board.Card, error) {
	var (
		c        board.Card
		status   string
		due      sql.NullTime
		assignee sql.NullInt64
		extras   string
	)
	if err := scan(&c.ID, &c.ColumnID, &c.Title, &c.Description, &c.Position, &status,
		&c.Priority, &c.Difficulty, &due, &assignee, &c.Archived, &extras); err != nil {
		return c, err
	}
	c.Status = board.Status(status)
	if due.Valid {
		t := due.Time
		c.DueDate = &t
	}
	if assignee.Valid {
		id := assignee.Int64
		c.AssigneeID = &id
	}
	e, err := decodeExtras(extras)
	if err != nil {
		return c, fmt.Errorf("failed to unmarshal card extras: %w", err)
	}
	e.apply(&c)
	return c, nil
}

func (s *Store) cards(ctx context.Context, columnID int64) ([]board.Card, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE column_id = ? ORDER BY position, id`, columnID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	cards := []board.Card{}
	for rows.Next() {
		c, err := scanCard(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// ColumnBoardID returns the board that owns the column.
func (s *Store) ColumnBoardID(ctx context.Context, columnID int64) (int64, error) {
	var boardID int64
	err := s.db.QueryRowContext(ctx, `SELECT board_id FROM columns WHERE id = ?`, columnID).Scan(&boardID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("column %d: %w", columnID, ErrNotFound)
	}
	return boardID, err
}

// CardBoardID returns the board that owns the card's column.
func (s *Store) CardBoardID(ctx context.Context, cardID int64) (int64, error) {
	var boardID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT c.board_id FROM cards k JOIN columns c ON c.id = k.column_id WHERE k.id = ?
	`, cardID).Scan(&boardID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("card %d: %w", cardID, ErrNotFound)
	}
	return boardID, err
}
