package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CrowderSoup/boardsync/board"
	"github.com/CrowderSoup/boardsync/client"
	"github.com/CrowderSoup/boardsync/database"
	"github.com/CrowderSoup/boardsync/logger"
	"github.com/CrowderSoup/boardsync/reconcile"
	"github.com/CrowderSoup/boardsync/services"
	"github.com/CrowderSoup/boardsync/session"
	"github.com/spf13/cobra"
)

func newTokenCmd(a *app) *cobra.Command {
	var email, name string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Create a user if needed and print a bearer token for it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			db, err := database.InitDB(a.cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			userID, err := database.NewStore(db).EnsureUser(ctx, email, name)
			if err != nil {
				return err
			}

			auth := services.NewAuthService(a.cfg.JWT.Secret, time.Duration(a.cfg.JWT.ExpireHour)*time.Hour)
			token, err := auth.CreateJWT(userID, email)
			if err != nil {
				return fmt.Errorf("creating token: %w", err)
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "User %d (%s)\n", userID, email)
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "User email")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

// remote is an open session on a board served by a running server.
type remote struct {
	conn    *client.Conn
	session *session.Session
}

// connect loads the board and opens the realtime connection. When the relay
// cannot be reached the session still works, without broadcasting.
func (a *app) connect(ctx context.Context, boardID int64, opts ...session.Option) (*remote, error) {
	cfg := a.cfg.Client
	if cfg.Token == "" {
		return nil, errors.New("no token configured: set BOARDSYNC_TOKEN or client.token")
	}

	api := client.NewAPI(cfg.APIURL, cfg.Token, client.WithTimeout(cfg.Timeout))
	me, err := api.Whoami(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking token: %w", err)
	}
	b, err := api.GetBoard(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("loading board %d: %w", boardID, err)
	}

	r := &remote{}
	opts = append([]session.Option{session.WithPersister(api), session.WithViewer(me.UserID)}, opts...)

	conn, err := client.Dial(ctx, cfg.WSURL, cfg.Token)
	if err != nil {
		logger.Warn().Err(err).Msg("Realtime relay unavailable, changes will not be broadcast")
	} else if err := conn.Join(boardID); err != nil {
		conn.Close()
		logger.Warn().Err(err).Msg("Could not join board")
	} else {
		r.conn = conn
		opts = append(opts, session.WithBroadcaster(conn))
	}

	r.session = session.New(b, opts...)
	return r, nil
}

func (r *remote) Close() {
	if r.conn != nil {
		r.conn.Close()
	}
}

func newWatchCmd(a *app) *cobra.Command {
	var boardID int64

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print a board and every change made to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			var r *remote
			r, err := a.connect(ctx, boardID, session.WithObserver(func(c reconcile.Change) {
				printChange(out, c)
				renderBoard(out, r.session.Board())
			}))
			if err != nil {
				return err
			}
			defer r.Close()
			if r.conn == nil {
				return client.ErrTransportUnavailable
			}

			renderBoard(out, r.session.Board())
			r.session.Listen(ctx, r.conn.Events())
			return nil
		},
	}

	cmd.Flags().Int64Var(&boardID, "board", 0, "Board ID")
	_ = cmd.MarkFlagRequired("board")

	return cmd
}

func newMoveCmd(a *app) *cobra.Command {
	var boardID, cardID, toColumn int64
	var index int

	cmd := &cobra.Command{
		Use:   "move",
		Short: "Move a card to a position in a column",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			r, err := a.connect(ctx, boardID)
			if err != nil {
				return err
			}
			defer r.Close()

			b := r.session.Board()
			src, ok := locateCard(b, cardID)
			if !ok {
				return fmt.Errorf("card %d: %w", cardID, board.ErrInvalidTarget)
			}
			drop := board.Drop{
				Kind:        board.DropCard,
				Source:      src,
				Destination: &board.Location{ContainerID: toColumn, Index: index},
			}
			if err := r.session.Drop(ctx, drop); err != nil {
				return err
			}

			renderBoard(cmd.OutOrStdout(), r.session.Board())
			return nil
		},
	}

	cmd.Flags().Int64Var(&boardID, "board", 0, "Board ID")
	cmd.Flags().Int64Var(&cardID, "card", 0, "Card ID")
	cmd.Flags().Int64Var(&toColumn, "to-column", 0, "Destination column ID")
	cmd.Flags().IntVar(&index, "index", 0, "Destination index in the column")
	_ = cmd.MarkFlagRequired("board")
	_ = cmd.MarkFlagRequired("card")
	_ = cmd.MarkFlagRequired("to-column")

	return cmd
}

func newMoveColumnCmd(a *app) *cobra.Command {
	var boardID, columnID int64
	var index int

	cmd := &cobra.Command{
		Use:   "move-column",
		Short: "Move a column to a position on the board",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			r, err := a.connect(ctx, boardID)
			if err != nil {
				return err
			}
			defer r.Close()

			b := r.session.Board()
			src := -1
			for i, col := range b.Columns {
				if col.ID == columnID {
					src = i
				}
			}
			if src < 0 {
				return fmt.Errorf("column %d: %w", columnID, board.ErrInvalidTarget)
			}
			drop := board.Drop{
				Kind:        board.DropColumn,
				Source:      board.Location{ContainerID: boardID, Index: src},
				Destination: &board.Location{ContainerID: boardID, Index: index},
			}
			if err := r.session.Drop(ctx, drop); err != nil {
				return err
			}

			renderBoard(cmd.OutOrStdout(), r.session.Board())
			return nil
		},
	}

	cmd.Flags().Int64Var(&boardID, "board", 0, "Board ID")
	cmd.Flags().Int64Var(&columnID, "column", 0, "Column ID")
	cmd.Flags().IntVar(&index, "index", 0, "Destination index on the board")
	_ = cmd.MarkFlagRequired("board")
	_ = cmd.MarkFlagRequired("column")

	return cmd
}

func newAddColumnCmd(a *app) *cobra.Command {
	var boardID int64
	var title string

	cmd := &cobra.Command{
		Use:   "add-column",
		Short: "Add a column at the end of a board",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			r, err := a.connect(ctx, boardID)
			if err != nil {
				return err
			}
			defer r.Close()

			col, err := r.session.AddColumn(ctx, title)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created column %d %q\n", col.ID, col.Title)
			return nil
		},
	}

	cmd.Flags().Int64Var(&boardID, "board", 0, "Board ID")
	cmd.Flags().StringVar(&title, "title", "", "Column title")
	_ = cmd.MarkFlagRequired("board")
	_ = cmd.MarkFlagRequired("title")

	return cmd
}

func newAddCardCmd(a *app) *cobra.Command {
	var boardID, columnID int64
	var title string

	cmd := &cobra.Command{
		Use:   "add-card",
		Short: "Add a card at the end of a column",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			r, err := a.connect(ctx, boardID)
			if err != nil {
				return err
			}
			defer r.Close()

			card, err := r.session.AddCard(ctx, columnID, title)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created card %d %q\n", card.ID, card.Title)
			return nil
		},
	}

	cmd.Flags().Int64Var(&boardID, "board", 0, "Board ID")
	cmd.Flags().Int64Var(&columnID, "column", 0, "Column ID")
	cmd.Flags().StringVar(&title, "title", "", "Card title")
	_ = cmd.MarkFlagRequired("board")
	_ = cmd.MarkFlagRequired("column")
	_ = cmd.MarkFlagRequired("title")

	return cmd
}

func locateCard(b *board.Board, cardID int64) (board.Location, bool) {
	for _, col := range b.Columns {
		for i, card := range col.Cards {
			if card.ID == cardID {
				return board.Location{ContainerID: col.ID, Index: i}, true
			}
		}
	}
	return board.Location{}, false
}

func renderBoard(w io.Writer, b *board.Board) {
	fmt.Fprintf(w, "%s (#%d, %s)\n", b.Name, b.ID, b.Role)
	for _, col := range b.Columns {
		fmt.Fprintf(w, "  [%d] %s #%d\n", col.Position, col.Title, col.ID)
		for _, card := range col.Cards {
			fmt.Fprintf(w, "      %d. %s #%d\n", card.Position, card.Title, card.ID)
		}
	}
}

func printChange(w io.Writer, c reconcile.Change) {
	payload, _ := json.Marshal(c)
	fmt.Fprintf(w, "%s %s %s\n", time.Now().Format("15:04:05"), c.Type(), payload)
}
