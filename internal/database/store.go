package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for database operations.
// Lookup methods return nil, nil when the row does not exist.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// CreateUser inserts a user and returns its id.
	CreateUser(ctx context.Context, email string) (int64, error)

	// UserExists reports whether a user with the given id exists.
	UserExists(ctx context.Context, userID int64) (bool, error)

	// InsertMessage stores a normalized message. When a message with the same
	// platform reference already exists it returns that id and inserted=false.
	InsertMessage(ctx context.Context, msg *Message) (id int64, inserted bool, err error)

	// GetMessage retrieves a message by id.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// ListPendingMessages returns pending messages, newest first.
	ListPendingMessages(ctx context.Context, limit int) ([]*Message, error)

	// ListUnprocessedBefore returns ids of unprocessed messages created before cutoff, oldest first.
	ListUnprocessedBefore(ctx context.Context, cutoff time.Time, limit int) ([]int64, error)

	// CompleteProcessing flips processed false->true and stores suggestions in
	// one transaction. It returns false when the message was already processed.
	CompleteProcessing(ctx context.Context, messageID int64, suggestions []Suggestion) (bool, error)

	// MarkResponded flips status pending->responded, returning false if it was not pending.
	MarkResponded(ctx context.Context, messageID int64) (bool, error)

	// ListSuggestions returns stored suggestions grouped by message id.
	ListSuggestions(ctx context.Context, messageIDs []int64) (map[int64][]Suggestion, error)

	// CreateVerificationCode inserts a code. It returns false when the code value is already taken.
	CreateVerificationCode(ctx context.Context, code *VerificationCode) (bool, error)

	// FindEligibleCode retrieves an unused, unexpired code for the platform.
	FindEligibleCode(ctx context.Context, platform, code string, now time.Time) (*VerificationCode, error)

	// ConsumeCodeAndLink marks the code used (only if still eligible at now) and
	// upserts the account in one transaction. It returns false when the code was
	// consumed concurrently or expired in between.
	ConsumeCodeAndLink(ctx context.Context, codeID int64, now time.Time, account *Account) (bool, error)

	// GetAccount retrieves the binding of a user on a platform.
	GetAccount(ctx context.Context, userID int64, platform string) (*Account, error)

	// FindAccountByIdentity retrieves the most recently updated account for an external identity.
	FindAccountByIdentity(ctx context.Context, platform, platformUserID string) (*Account, error)

	// DeleteAccount removes a binding, returning false if none existed.
	DeleteAccount(ctx context.Context, userID int64, platform string) (bool, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
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
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) rollback(ctx context.Context, tx *sqlx.Tx) {
	if tx == nil {
		return
	}
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.logger.WarnContext(ctx, "Error rolling back transaction", "error", err)
	}
}

func (s *sqlxStore) CreateUser(ctx context.Context, email string) (int64, error) {
	var id int64
	query := s.db.Rebind(`INSERT INTO users (email, created_at) VALUES (?, ?) RETURNING id`)
	if err := s.db.QueryRowxContext(ctx, query, NullString(email), s.now()).Scan(&id); err != nil {
		s.logger.ErrorContext(ctx, "Error creating user", "error", err)
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	return id, nil
}

func (s *sqlxStore) UserExists(ctx context.Context, userID int64) (bool, error) {
	var n int
	query := s.db.Rebind(`SELECT COUNT(1) FROM users WHERE id = ?`)
	if err := s.db.GetContext(ctx, &n, query, userID); err != nil {
		return false, fmt.Errorf("failed to look up user %d: %w", userID, err)
	}
	return n > 0, nil
}

func (s *sqlxStore) InsertMessage(ctx context.Context, msg *Message) (int64, bool, error) {
	if msg == nil {
		return 0, false, errors.New("cannot save nil message")
	}
	if msg.Platform == "" || msg.PlatformThreadID == "" || msg.PlatformMessageID == "" {
		return 0, false, errors.New("message must have platform, thread id and message id")
	}
	if msg.Status == "" {
		msg.Status = StatusPending
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	if msg.RawPayload == nil {
		msg.RawPayload = JSONMap{}
	}

	query := s.db.Rebind(`
        INSERT INTO normalized_messages
            (platform, platform_thread_id, platform_message_id, sender_id, sender_name, text, raw_payload, created_at, processed, status)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT DO NOTHING
        RETURNING id`)

	var id int64
	err := s.db.QueryRowxContext(ctx, query,
		msg.Platform, msg.PlatformThreadID, msg.PlatformMessageID, msg.SenderID, msg.SenderName,
		msg.Text, msg.RawPayload, msg.CreatedAt, msg.Processed, msg.Status,
	).Scan(&id)
	switch {
	case err == nil:
		msg.ID = id
		s.logger.DebugContext(ctx, "Message saved successfully", "message_id", id, "platform", msg.Platform)
		return id, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		s.logger.ErrorContext(ctx, "Error saving message", "platform", msg.Platform, "thread_id", msg.PlatformThreadID, "error", err)
		return 0, false, fmt.Errorf("failed to save message: %w", err)
	}

	// Conflict on the platform reference: return the stored row.
	existing := s.db.Rebind(`
        SELECT id FROM normalized_messages
        WHERE platform = ? AND platform_thread_id = ? AND platform_message_id = ?`)
	if err := s.db.GetContext(ctx, &id, existing, msg.Platform, msg.PlatformThreadID, msg.PlatformMessageID); err != nil {
		return 0, false, fmt.Errorf("failed to load duplicate message: %w", err)
	}
	msg.ID = id
	s.logger.DebugContext(ctx, "Duplicate message ignored", "message_id", id, "platform", msg.Platform)
	return id, false, nil
}

const messageColumns = `id, platform, platform_thread_id, platform_message_id, sender_id, sender_name,
        text, raw_payload, created_at, processed, status`

func (s *sqlxStore) GetMessage(ctx context.Context, id int64) (*Message, error) {
	var msg Message
	query := s.db.Rebind(`SELECT ` + messageColumns + ` FROM normalized_messages WHERE id = ?`)
	if err := s.db.GetContext(ctx, &msg, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message %d: %w", id, err)
	}
	return &msg, nil
}

func (s *sqlxStore) ListPendingMessages(ctx context.Context, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
	}

	var messages []*Message
	query := s.db.Rebind(`
        SELECT ` + messageColumns + `
        FROM normalized_messages
        WHERE status = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?`)
	if err := s.db.SelectContext(ctx, &messages, query, StatusPending, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error listing pending messages", "error", err)
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}
	return messages, nil
}

func (s *sqlxStore) ListUnprocessedBefore(ctx context.Context, cutoff time.Time, limit int) ([]int64, error) {
	var ids []int64
	query := s.db.Rebind(`
        SELECT id FROM normalized_messages
        WHERE processed = ? AND created_at < ?
        ORDER BY created_at ASC, id ASC
        LIMIT ?`)
	if err := s.db.SelectContext(ctx, &ids, query, false, cutoff.UTC(), limit); err != nil {
		return nil, fmt.Errorf("failed to list unprocessed messages: %w", err)
	}
	return ids, nil
}

func (s *sqlxStore) CompleteProcessing(ctx context.Context, messageID int64, suggestions []Suggestion) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { s.rollback(ctx, tx) }()

	res, err := tx.ExecContext(ctx,
		tx.Rebind(`UPDATE normalized_messages SET processed = ? WHERE id = ? AND processed = ?`),
		true, messageID, false)
	if err != nil {
		return false, fmt.Errorf("failed to mark message %d processed: %w", messageID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	now := s.now()
	insert := tx.Rebind(`INSERT INTO suggestions (message_id, position, model, text, created_at) VALUES (?, ?, ?, ?, ?)`)
	for i, sg := range suggestions {
		if _, err := tx.ExecContext(ctx, insert, messageID, i, sg.Model, sg.Text, now); err != nil {
			return false, fmt.Errorf("failed to store suggestion %d for message %d: %w", i, messageID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Message processing recorded", "message_id", messageID, "suggestions", len(suggestions))
	return true, nil
}

func (s *sqlxStore) MarkResponded(ctx context.Context, messageID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE normalized_messages SET status = ? WHERE id = ? AND status = ?`),
		StatusResponded, messageID, StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark message %d responded: %w", messageID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

func (s *sqlxStore) ListSuggestions(ctx context.Context, messageIDs []int64) (map[int64][]Suggestion, error) {
	out := make(map[int64][]Suggestion, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`
        SELECT id, message_id, position, model, text, created_at
        FROM suggestions
        WHERE message_id IN (?)
        ORDER BY message_id, position`, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build suggestions query: %w", err)
	}

	var rows []Suggestion
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	for _, row := range rows {
		out[row.MessageID] = append(out[row.MessageID], row)
	}
	return out, nil
}

func (s *sqlxStore) CreateVerificationCode(ctx context.Context, code *VerificationCode) (bool, error) {
	if code.CreatedAt.IsZero() {
		code.CreatedAt = s.now()
	}

	query := s.db.Rebind(`
        INSERT INTO verification_codes (user_id, platform, code, used, created_at, expires_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (code) DO NOTHING
        RETURNING id`)

	var id int64
	err := s.db.QueryRowxContext(ctx, query,
		code.UserID, code.Platform, code.Code, false, code.CreatedAt.UTC(), code.ExpiresAt.UTC(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving verification code", "user_id", code.UserID, "platform", code.Platform, "error", err)
		return false, fmt.Errorf("failed to save verification code: %w", err)
	}
	code.ID = id
	return true, nil
}

func (s *sqlxStore) FindEligibleCode(ctx context.Context, platform, code string, now time.Time) (*VerificationCode, error) {
	var vc VerificationCode
	query := s.db.Rebind(`
        SELECT id, user_id, platform, code, used, created_at, expires_at
        FROM verification_codes
        WHERE code = ? AND platform = ? AND used = ? AND expires_at >= ?`)
	if err := s.db.GetContext(ctx, &vc, query, code, platform, false, now.UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up verification code: %w", err)
	}
	return &vc, nil
}

func (s *sqlxStore) ConsumeCodeAndLink(ctx context.Context, codeID int64, now time.Time, account *Account) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { s.rollback(ctx, tx) }()

	res, err := tx.ExecContext(ctx,
		tx.Rebind(`UPDATE verification_codes SET used = ? WHERE id = ? AND used = ? AND expires_at >= ?`),
		true, codeID, false, now.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to consume verification code: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		s.logger.InfoContext(ctx, "Verification code no longer eligible", "code_id", codeID)
		return false, nil
	}

	ts := s.now()
	if account.Credentials == nil {
		account.Credentials = JSONMap{}
	}
	upsert := tx.Rebind(`
        INSERT INTO user_platform_accounts
            (user_id, platform, platform_user_id, platform_chat_id, credentials, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (user_id, platform) DO UPDATE SET
            platform_user_id = excluded.platform_user_id,
            platform_chat_id = excluded.platform_chat_id,
            updated_at = excluded.updated_at
        RETURNING id`)
	if err := tx.QueryRowxContext(ctx, upsert,
		account.UserID, account.Platform, account.PlatformUserID, account.PlatformChatID,
		account.Credentials, ts, ts,
	).Scan(&account.ID); err != nil {
		return false, fmt.Errorf("failed to upsert platform account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.InfoContext(ctx, "Platform account linked",
		"user_id", account.UserID, "platform", account.Platform, "account_id", account.ID)
	return true, nil
}

const accountColumns = `id, user_id, platform, platform_user_id, platform_chat_id, credentials, created_at, updated_at`

func (s *sqlxStore) GetAccount(ctx context.Context, userID int64, platform string) (*Account, error) {
	var acc Account
	query := s.db.Rebind(`SELECT ` + accountColumns + ` FROM user_platform_accounts WHERE user_id = ? AND platform = ?`)
	if err := s.db.GetContext(ctx, &acc, query, userID, platform); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &acc, nil
}

func (s *sqlxStore) FindAccountByIdentity(ctx context.Context, platform, platformUserID string) (*Account, error) {
	var acc Account
	query := s.db.Rebind(`
        SELECT ` + accountColumns + `
        FROM user_platform_accounts
        WHERE platform = ? AND platform_user_id = ?
        ORDER BY updated_at DESC, id DESC
        LIMIT 1`)
	if err := s.db.GetContext(ctx, &acc, query, platform, platformUserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return &acc, nil
}

func (s *sqlxStore) DeleteAccount(ctx context.Context, userID int64, platform string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM user_platform_accounts WHERE user_id = ? AND platform = ?`),
		userID, platform)
	if err != nil {
		return false, fmt.Errorf("failed to delete account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// RunSQLMaintenance executes VACUUM (SQLite) or VACUUM ANALYZE (Postgres).
// Both must run outside a transaction.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	stmt := "VACUUM;"
	if s.db.DriverName() == DriverPostgres {
		stmt = "VACUUM ANALYZE;"
	}

	s.logger.InfoContext(ctx, "Starting database maintenance", "statement", stmt)
	startTime := time.Now()

	_, err := s.db.ExecContext(ctx, stmt)
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Failed to execute VACUUM", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance completed successfully", "duration", time.Since(startTime))
	return nil
}
