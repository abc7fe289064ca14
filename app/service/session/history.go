package session

import (
	"fmt"
	"strings"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type history struct {
	size  int
	turns []Turn
}

func (h *history) add(turn Turn) {
	if len(h.turns) >= h.size {
		h.turns = append(h.turns[1:], turn)
	} else {
		h.turns = append(h.turns, turn)
	}
}

func (h *history) snapshot() []Turn {
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)

	return out
}

// FormatTurns renders turns one per line for prompts.
func FormatTurns(turns []Turn) string {
	if len(turns) == 0 {
		return "No previous messages"
	}

	var builder strings.Builder

	for _, turn := range turns {
		builder.WriteString(fmt.Sprintf("%s - %s: %s\n", turn.Timestamp.Format("15:04:05"), turn.Role, turn.Text))
	}

	return builder.String()
}
