package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for message feed operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveMessage inserts a new message record (inbound or outbound).
	SaveMessage(ctx context.Context, message *Message) error

	// ListUnprocessedUserMessages retrieves up to 'limit' user messages that
	// have not reached their terminal state, oldest first.
	ListUnprocessedUserMessages(ctx context.Context, limit int) ([]*Message, error)

	// ClaimMessage atomically transitions a message from unprocessed to
	// processed. It returns true only for the single caller that wins the
	// transition; a message already claimed returns false.
	ClaimMessage(ctx context.Context, id int64) (bool, error)

	// RecordProcessError attaches an error annotation to an already-claimed
	// message. The processed state itself is never reverted.
	RecordProcessError(ctx context.Context, id int64, detail string) error

	// ListConversation retrieves the most recent 'limit' messages exchanged
	// with an identity, in chronological order.
	ListConversation(ctx context.Context, identity string, limit int) ([]*Message, error)
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveMessage inserts a new message record.
func (s *sqlxStore) SaveMessage(ctx context.Context, message *Message) error {
	if message == nil {
		return fmt.Errorf("cannot save nil message")
	}
	if message.Identity == "" {
		return fmt.Errorf("message must have a non-empty identity")
	}
	if message.Origin != OriginUser && message.Origin != OriginAgent {
		return fmt.Errorf("message origin must be %q or %q, got %q", OriginUser, OriginAgent, message.Origin)
	}
	if message.Channel == "" {
		message.Channel = ChannelWeb
	}

	now := time.Now().UTC()
	message.CreatedAt = now
	message.UpdatedAt = now

	query := `
        INSERT INTO messages (created_at, updated_at, identity, body, origin, channel, chat_ref, processed_at, process_error)
        VALUES (:created_at, :updated_at, :identity, :body, :origin, :channel, :chat_ref, :processed_at, :process_error);
    `

	result, err := s.db.NamedExecContext(ctx, query, message)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving message",
			"identity", message.Identity, "origin", message.Origin, "error", err)
		return fmt.Errorf("failed to save %s message for %s: %w", message.Origin, message.Identity, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		message.ID = id
	} else {
		s.logger.WarnContext(ctx, "Could not retrieve last insert ID after saving message",
			"identity", message.Identity, "error", err)
	}

	s.logger.DebugContext(ctx, "Message saved successfully",
		"identity", message.Identity, "origin", message.Origin, "message_id", message.ID)
	return nil
}

// ListUnprocessedUserMessages retrieves user messages awaiting processing,
// oldest first so the feed's natural arrival order is preserved.
func (s *sqlxStore) ListUnprocessedUserMessages(ctx context.Context, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
		s.logger.DebugContext(ctx, "Invalid limit provided, using default", "default_limit", limit)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var messages []*Message
	query := `
        SELECT id, created_at, updated_at, identity, body, origin, channel, chat_ref, processed_at, process_error
        FROM messages
        WHERE origin = ? AND processed_at IS NULL
        ORDER BY created_at ASC, id ASC
        LIMIT ?;
    `

	err := s.db.SelectContext(ctx, &messages, query, OriginUser, limit)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching unprocessed messages", "error", err)
		return nil, err
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error getting unprocessed messages", "error", err)
		return nil, fmt.Errorf("failed to get unprocessed messages: %w", err)
	}

	s.logger.DebugContext(ctx, "Fetched unprocessed messages", "count", len(messages))
	return messages, nil
}

// ClaimMessage performs the conditional unprocessed→processed transition.
// The WHERE clause on processed_at IS NULL makes the claim atomic: of any
// number of concurrent claimers for one message id, exactly one observes an
// affected row.
func (s *sqlxStore) ClaimMessage(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, fmt.Errorf("message id must be positive")
	}

	now := time.Now().UTC()
	query := `UPDATE messages SET processed_at = ?, updated_at = ? WHERE id = ? AND processed_at IS NULL`

	result, err := s.db.ExecContext(ctx, query, now, now, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error claiming message", "message_id", id, "error", err)
		return false, fmt.Errorf("failed to claim message %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not get affected row count for claim", "message_id", id, "error", err)
		return false, fmt.Errorf("failed to verify claim for message %d: %w", id, err)
	}

	claimed := affected == 1
	s.logger.DebugContext(ctx, "Claim attempt finished", "message_id", id, "claimed", claimed)
	return claimed, nil
}

// RecordProcessError attaches an error annotation to a claimed message.
func (s *sqlxStore) RecordProcessError(ctx context.Context, id int64, detail string) error {
	if id <= 0 {
		return fmt.Errorf("message id must be positive")
	}

	query := `UPDATE messages SET process_error = ?, updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, detail, time.Now().UTC(), id); err != nil {
		s.logger.ErrorContext(ctx, "Error recording process error", "message_id", id, "error", err)
		return fmt.Errorf("failed to record process error for message %d: %w", id, err)
	}

	s.logger.DebugContext(ctx, "Recorded process error", "message_id", id)
	return nil
}

// ListConversation retrieves the most recent messages exchanged with an
// identity. The newest 'limit' rows are selected and returned oldest first,
// matching how a chat UI renders history.
func (s *sqlxStore) ListConversation(ctx context.Context, identity string, limit int) ([]*Message, error) {
	if identity == "" {
		return nil, fmt.Errorf("identity cannot be empty")
	}
	if limit <= 0 {
		limit = 100
	} else if limit > 500 {
		limit = 500
		s.logger.DebugContext(ctx, "Limit exceeded maximum value, capping", "identity", identity, "capped_limit", limit)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var messages []*Message
	query := `
        SELECT * FROM (
            SELECT id, created_at, updated_at, identity, body, origin, channel, chat_ref, processed_at, process_error
            FROM messages
            WHERE identity = ?
            ORDER BY created_at DESC, id DESC
            LIMIT ?
        ) ORDER BY created_at ASC, id ASC;
    `

	err := s.db.SelectContext(ctx, &messages, query, identity, limit)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching conversation",
			"identity", identity, "error", err)
		return nil, err
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error getting conversation", "identity", identity, "error", err)
		return nil, fmt.Errorf("failed to get conversation for %s: %w", identity, err)
	}

	return messages, nil
}
