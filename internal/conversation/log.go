// File: internal/conversation/log.go
package conversation

// Role identifies who produced a turn.
type Role int

const (
	RoleUser Role = iota
	RoleAssistant
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	default:
		return "unknown"
	}
}

// Label is the name written to exported transcripts. The assistant's label is
// configurable; an empty label falls back to String().
func (r Role) Label(assistantLabel string) string {
	if r == RoleAssistant && assistantLabel != "" {
		return assistantLabel
	}
	return r.String()
}

// Turn is one message of the conversation.
type Turn struct {
	Role    Role
	Content string
}

// Log is the ordered, append-only record of a session's exchanges. It is owned
// by a single flow and does no locking.
type Log struct {
	turns []Turn
}

func NewLog() *Log {
	return &Log{}
}

func (l *Log) Append(turn Turn) {
	l.turns = append(l.turns, turn)
}

// AppendExchange records a prompt and its reply as one user/assistant pair.
func (l *Log) AppendExchange(prompt, reply string) {
	l.turns = append(l.turns,
		Turn{Role: RoleUser, Content: prompt},
		Turn{Role: RoleAssistant, Content: reply},
	)
}

// All returns a copy of every turn in order.
func (l *Log) All() []Turn {
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

func (l *Log) Len() int {
	return len(l.turns)
}
