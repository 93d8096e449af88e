package models

// Kind identifies the protocol tag of a Message.
type Kind string

const (
	// Session kinds.
	KindRegister      Kind = "register"
	KindSystemNotice  Kind = "system_notice"
	KindResponse      Kind = "response"
	KindImportantInfo Kind = "important_info"

	// Night phase kinds.
	KindNightKill Kind = "night_kill"
	KindDivine    Kind = "divine"
	KindSave      Kind = "save"
	KindPoison    Kind = "poison"

	// Day phase kinds.
	KindDayDiscuss Kind = "day_discuss"
	KindDayVote    Kind = "day_vote"

	// KindMove carries a sub-game move request or reply.
	KindMove Kind = "move"
)

// Message is the wire value exchanged with participants. Messages are
// immutable: pipelines copy them instead of mutating in place.
type Message struct {
	Kind    Kind   `json:"type"`
	Source  string `json:"source"`
	Content string `json:"content"`
}
