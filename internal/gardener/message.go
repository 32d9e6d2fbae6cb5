package gardener

import "time"

// Message subtype values the classifier branches on.
const (
	MsgTypeMessage  = "message"
	MsgSubTypeBot   = "bot_message"
	MsgSubTypeJoin  = "channel_join"
	MsgSubTypeLeave = "channel_leave"
)

// Message is a single channel history event. SubType is empty for messages
// typed by a human; bot and system events carry a subtype tag. BotID is only
// present on bot-authored messages.
type Message struct {
	Type      string
	SubType   string
	User      string
	BotID     string
	Text      string
	Timestamp Timestamp
}

// IsHuman reports whether the message was typed by a human being. A message
// with type "message" and no subtype is human-authored regardless of whether
// the user field is populated.
func (m Message) IsHuman() bool {
	return m.Type == MsgTypeMessage && m.SubType == ""
}

// IsBot reports whether the message is a bot post.
func (m Message) IsBot() bool {
	return m.Type == MsgTypeMessage && m.SubType == MsgSubTypeBot
}

// Channel is an immutable view of a Slack conversation. It is re-fetched on
// every run; nothing is cached across runs.
type Channel struct {
	ID      string
	Name    string
	Created time.Time
	Members int
}

// BotIdentity identifies the gardener's own user so its warning posts can be
// told apart from all other traffic.
type BotIdentity struct {
	UserID string
	BotID  string
}
