package database

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Platform identifiers.
const (
	PlatformTelegram = "telegram"
	PlatformPersonal = "telegram_personal"
)

// Message status values.
const (
	StatusPending   = "pending"
	StatusResponded = "responded"
)

// UnknownRef replaces a missing thread or message id.
const UnknownRef = "unknown"

// JSONMap is a JSON object column.
type JSONMap map[string]any

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode json column: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = JSONMap{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case map[string]any:
		*m = v
		return nil
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", src)
	}

	out := JSONMap{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("failed to decode json column: %w", err)
		}
	}
	*m = out
	return nil
}

// User is an internal Nexa account.
type User struct {
	ID        int64          `db:"id"`
	Email     sql.NullString `db:"email"`
	CreatedAt time.Time      `db:"created_at"`
}

// Message is a normalized inbound platform message.
type Message struct {
	ID                int64          `db:"id"`
	Platform          string         `db:"platform"`
	PlatformThreadID  string         `db:"platform_thread_id"`
	PlatformMessageID string         `db:"platform_message_id"`
	SenderID          sql.NullString `db:"sender_id"`
	SenderName        sql.NullString `db:"sender_name"`
	Text              string         `db:"text"`
	RawPayload        JSONMap        `db:"raw_payload"`
	CreatedAt         time.Time      `db:"created_at"`
	Processed         bool           `db:"processed"`
	Status            string         `db:"status"`
}

// Account binds a user to an external platform identity.
type Account struct {
	ID             int64          `db:"id"`
	UserID         int64          `db:"user_id"`
	Platform       string         `db:"platform"`
	PlatformUserID string         `db:"platform_user_id"`
	PlatformChatID sql.NullString `db:"platform_chat_id"`
	Credentials    JSONMap        `db:"credentials"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

// VerificationCode is a single-use link code.
type VerificationCode struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Platform  string    `db:"platform"`
	Code      string    `db:"code"`
	Used      bool      `db:"used"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

// Eligible reports whether the code can still be consumed at now.
func (c *VerificationCode) Eligible(now time.Time) bool {
	return !c.Used && !c.ExpiresAt.Before(now)
}

// Suggestion is one AI reply suggestion stored for a message.
type Suggestion struct {
	ID        int64     `db:"id"`
	MessageID int64     `db:"message_id"`
	Position  int       `db:"position"`
	Model     string    `db:"model"`
	Text      string    `db:"text"`
	CreatedAt time.Time `db:"created_at"`
}

// NullString wraps s as a valid sql.NullString, or an invalid one when s is empty.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ValidPlatform reports whether p is a supported platform identifier.
func ValidPlatform(p string) bool {
	return p == PlatformTelegram || p == PlatformPersonal
}
