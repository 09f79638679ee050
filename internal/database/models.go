package database

import (
	"database/sql"
	"time"
)

// Message origins. User messages flow through the intent pipeline; agent
// messages are replies and are never processed.
const (
	OriginUser  = "user"
	OriginAgent = "agent"
)

// Message channels. The channel decides where an agent reply is delivered
// in addition to the store itself.
const (
	ChannelWeb      = "web"
	ChannelTelegram = "telegram"
)

// Message represents one chat message, inbound or outbound, in the shared
// message feed. Inbound user messages carry a processing state: ProcessedAt
// is set exactly once when a processor claims the message, and never cleared.
type Message struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	Identity string `db:"identity"` // subscriber phone number
	Body     string `db:"body"`
	Origin   string `db:"origin"`
	Channel  string `db:"channel"`
	ChatRef  string `db:"chat_ref"` // channel-specific reply address

	ProcessedAt  sql.NullTime `db:"processed_at"`
	ProcessError string       `db:"process_error"`
}

// Processed reports whether the message has reached its terminal state.
func (m *Message) Processed() bool {
	return m.ProcessedAt.Valid
}
