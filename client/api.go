// Package client talks to the relay backend: a REST client that persists
// moves and creations, and a websocket connection that carries board changes
// between collaborators.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/CrowderSoup/boardsync/board"
)

// ErrRequestFailed matches every error returned by API, both transport
// failures and non-2xx responses.
var ErrRequestFailed = errors.New("request failed")

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrRequestFailed
}

// API is the REST persistence client.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

// APIOption configures an API.
type APIOption func(*API)

// WithTimeout bounds every request. A request that exceeds it fails with
// ErrRequestFailed instead of staying pending.
func WithTimeout(d time.Duration) APIOption {
	return func(a *API) { a.http.Timeout = d }
}

// WithHTTPClient replaces the underlying http client.
func WithHTTPClient(c *http.Client) APIOption {
	return func(a *API) { a.http = c }
}

// NewAPI creates a client for the API rooted at baseURL, authenticating with
// the bearer token.
func NewAPI(baseURL, token string, opts ...APIOption) *API {
	a := &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type moveCardRequest struct {
	Position int   `json:"position"`
	ColumnID int64 `json:"column_id"`
}

type moveColumnRequest struct {
	Position int `json:"position"`
}

type createColumnRequest struct {
	Title   string `json:"title"`
	BoardID int64  `json:"board_id"`
}

type createCardRequest struct {
	ColumnID int64  `json:"column_id"`
	Title    string `json:"title"`
}

// MoveCard persists a card's new column and position.
func (a *API) MoveCard(ctx context.Context, cardID, columnID int64, position int) error {
	path := fmt.Sprintf("/cards/%d", cardID)
	return a.do(ctx, http.MethodPatch, path, moveCardRequest{Position: position, ColumnID: columnID}, nil)
}

// MoveColumn persists a column's new position.
func (a *API) MoveColumn(ctx context.Context, columnID int64, position int) error {
	path := fmt.Sprintf("/columns/%d", columnID)
	return a.do(ctx, http.MethodPatch, path, moveColumnRequest{Position: position}, nil)
}

// CreateColumn creates a column at the end of the board.
func (a *API) CreateColumn(ctx context.Context, boardID int64, title string) (board.Column, error) {
	var col board.Column
	err := a.do(ctx, http.MethodPost, "/columns", createColumnRequest{Title: title, BoardID: boardID}, &col)
	return col, err
}

// CreateCard creates a card at the end of a column.
func (a *API) CreateCard(ctx context.Context, columnID int64, title string) (board.Card, error) {
	var card board.Card
	err := a.do(ctx, http.MethodPost, "/cards", createCardRequest{ColumnID: columnID, Title: title}, &card)
	return card, err
}

// GetBoard loads a board with its columns, cards and members.
func (a *API) GetBoard(ctx context.Context, boardID int64) (*board.Board, error) {
	var b board.Board
	if err := a.do(ctx, http.MethodGet, fmt.Sprintf("/boards/%d", boardID), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Identity is the holder of the client's token.
type Identity struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
}

// Whoami returns the identity the server associates with the token.
func (a *API) Whoami(ctx context.Context) (Identity, error) {
	var id Identity
	err := a.do(ctx, http.MethodGet, "/auth/verify", nil, &id)
	return id, err
}

// envelope is the response shape of every successful call.
type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrRequestFailed, method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrRequestFailed, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: decoding %s %s: %v", ErrRequestFailed, method, path, err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decoding %s %s: %v", ErrRequestFailed, method, path, err)
	}
	return nil
}
