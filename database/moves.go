package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/CrowderSoup/boardsync/board"
)

// CreateColumn appends a column to the board.
func (s *Store) CreateColumn(ctx context.Context, boardID int64, title string) (board.Column, error) {
	col := board.Column{BoardID: boardID, Title: title, Cards: []board.Card{}}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return col, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM boards WHERE id = ?`, boardID).Scan(&exists); err != nil {
		return col, fmt.Errorf("failed to query board: %w", err)
	}
	if exists == 0 {
		return col, fmt.Errorf("board %d: %w", boardID, ErrNotFound)
	}

	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM columns WHERE board_id = ?`, boardID).Scan(&col.Position); err != nil {
		return col, fmt.Errorf("failed to count columns: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO columns (board_id, title, position) VALUES (?, ?, ?)`, boardID, title, col.Position)
	if err != nil {
		return col, fmt.Errorf("failed to insert column: %w", err)
	}
	if col.ID, err = res.LastInsertId(); err != nil {
		return col, err
	}

	if err := tx.Commit(); err != nil {
		return col, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return col, nil
}

// MoveColumn moves a column to position within its board and renumbers the
// board's columns densely. Positions past the end are clamped.
func (s *Store) MoveColumn(ctx context.Context, columnID int64, position int) (board.Column, error) {
	col := board.Column{ID: columnID}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return col, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`SELECT board_id, title FROM columns WHERE id = ?`, columnID).Scan(&col.BoardID, &col.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return col, fmt.Errorf("column %d: %w", columnID, ErrNotFound)
	}
	if err != nil {
		return col, fmt.Errorf("failed to query column: %w", err)
	}

	ids, err := orderedIDs(ctx, tx, `SELECT id FROM columns WHERE board_id = ? ORDER BY position, id`, col.BoardID)
	if err != nil {
		return col, err
	}
	from := slices.Index(ids, columnID)
	to := clamp(position, 0, len(ids)-1)
	ids = board.Move(ids, from, to)

	if err := writePositions(ctx, tx, `UPDATE columns SET position = ? WHERE id = ?`, ids); err != nil {
		return col, err
	}
	if err := tx.Commit(); err != nil {
		return col, fmt.Errorf("failed to commit transaction: %w", err)
	}

	col.Position = to
	return col, nil
}

// CreateCard appends a card to the column.
func (s *Store) CreateCard(ctx context.Context, columnID int64, title string) (board.Card, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return board.Card{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM columns WHERE id = ?`, columnID).Scan(&exists); err != nil {
		return board.Card{}, fmt.Errorf("failed to query column: %w", err)
	}
	if exists == 0 {
		return board.Card{}, fmt.Errorf("column %d: %w", columnID, ErrNotFound)
	}

	var position int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cards WHERE column_id = ?`, columnID).Scan(&position); err != nil {
		return board.Card{}, fmt.Errorf("failed to count cards: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO cards (column_id, title, position, status) VALUES (?, ?, ?, ?)`,
		columnID, title, position, string(board.StatusTodo))
	if err != nil {
		return board.Card{}, fmt.Errorf("failed to insert card: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return board.Card{}, err
	}

	card, err := scanCard(tx.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id).Scan)
	if err != nil {
		return board.Card{}, fmt.Errorf("failed to read card: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return board.Card{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return card, nil
}

// MoveCard moves a card to position in columnID, renumbering the source and
// destination columns densely. The destination must be on the same board.
func (s *Store) MoveCard(ctx context.Context, cardID, columnID int64, position int) (board.Card, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return board.Card{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var srcColumn, srcBoard int64
	err = tx.QueryRowContext(ctx, `
		SELECT k.column_id, c.board_id FROM cards k JOIN columns c ON c.id = k.column_id WHERE k.id = ?
	`, cardID).Scan(&srcColumn, &srcBoard)
	if errors.Is(err, sql.ErrNoRows) {
		return board.Card{}, fmt.Errorf("card %d: %w", cardID, ErrNotFound)
	}
	if err != nil {
		return board.Card{}, fmt.Errorf("failed to query card: %w", err)
	}

	var dstBoard int64
	err = tx.QueryRowContext(ctx, `SELECT board_id FROM columns WHERE id = ?`, columnID).Scan(&dstBoard)
	if errors.Is(err, sql.ErrNoRows) {
		return board.Card{}, fmt.Errorf("column %d: %w", columnID, ErrNotFound)
	}
	if err != nil {
		return board.Card{}, fmt.Errorf("failed to query column: %w", err)
	}
	if dstBoard != srcBoard {
		return board.Card{}, ErrCrossBoard
	}

	const listCards = `SELECT id FROM cards WHERE column_id = ? ORDER BY position, id`
	const setPosition = `UPDATE cards SET position = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	src, err := orderedIDs(ctx, tx, listCards, srcColumn)
	if err != nil {
		return board.Card{}, err
	}
	from := slices.Index(src, cardID)

	if srcColumn == columnID {
		src = board.Move(src, from, clamp(position, 0, len(src)-1))
		if err := writePositions(ctx, tx, setPosition, src); err != nil {
			return board.Card{}, err
		}
	} else {
		dst, err := orderedIDs(ctx, tx, listCards, columnID)
		if err != nil {
			return board.Card{}, err
		}
		src = slices.Delete(src, from, from+1)
		dst = slices.Insert(dst, clamp(position, 0, len(dst)), cardID)

		if _, err := tx.ExecContext(ctx, `UPDATE cards SET column_id = ? WHERE id = ?`, columnID, cardID); err != nil {
			return board.Card{}, fmt.Errorf("failed to update card column: %w", err)
		}
		if err := writePositions(ctx, tx, setPosition, src); err != nil {
			return board.Card{}, err
		}
		if err := writePositions(ctx, tx, setPosition, dst); err != nil {
			return board.Card{}, err
		}
	}

	card, err := scanCard(tx.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, cardID).Scan)
	if err != nil {
		return board.Card{}, fmt.Errorf("failed to read card: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return board.Card{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return card, nil
}

func orderedIDs(ctx context.Context, tx *sql.Tx, query string, arg int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list siblings: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func writePositions(ctx context.Context, tx *sql.Tx, query string, ids []int64) error {
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx, query, i, id); err != nil {
			return fmt.Errorf("failed to renumber: %w", err)
		}
	}
	return nil
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
