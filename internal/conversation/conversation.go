// Package conversation holds dialogue turns, the bounded history view the
// router reads, and stores that keep histories between requests.
package conversation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/convrag/internal/assembler"
)

// Role is the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrInvalidTurn indicates a turn with an unknown role.
var ErrInvalidTurn = errors.New("invalid turn")

// Turn is one message in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserTurn returns a user turn.
func UserTurn(content string) Turn { return Turn{Role: RoleUser, Content: content} }

// AssistantTurn returns an assistant turn.
func AssistantTurn(content string) Turn { return Turn{Role: RoleAssistant, Content: content} }

// Validate checks the role.
func (t Turn) Validate() error {
	switch t.Role {
	case RoleUser, RoleAssistant:
		return nil
	default:
		return fmt.Errorf("%w: role %q", ErrInvalidTurn, t.Role)
	}
}

// History is a conversation in chronological order.
type History []Turn

// Validate checks every turn.
func (h History) Validate() error {
	for i, t := range h {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("turn %d: %w", i, err)
		}
	}
	return nil
}

// Last returns the final maxTurns turns. maxTurns <= 0 returns nil.
func (h History) Last(maxTurns int) History {
	if maxTurns <= 0 {
		return nil
	}
	if len(h) <= maxTurns {
		return h
	}
	return h[len(h)-maxTurns:]
}

// Format renders the last maxTurns turns, oldest first, one
// "User: ..." or "Assistant: ..." line per turn. Lines are added whole
// until the next one would push the total past maxChars characters;
// newlines are not counted.
func (h History) Format(maxTurns, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	var lines []string
	for _, t := range h.Last(maxTurns) {
		prefix := "Assistant:"
		if t.Role == RoleUser {
			prefix = "User:"
		}
		lines = append(lines, strings.TrimSpace(prefix+" "+t.Content))
	}
	return assembler.JoinTexts(lines, maxChars, "\n")
}
