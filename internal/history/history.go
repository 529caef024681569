// Package history records and exports conversation turns.
//
// The pipeline appends a Turn for every accepted transcript and every
// generated reply. The HTTP surface reads the same store back for the
// /api/history and export endpoints. Two implementations exist: the in-process
// Memory store and the PostgreSQL store in the postgres subpackage.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	// RoleUser marks a transcribed user utterance.
	RoleUser Role = "user"

	// RoleAssistant marks a generated reply.
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in a conversation.
type Turn struct {
	// SessionID identifies the connection that produced the turn.
	SessionID string `json:"sessionId"`

	// Role is who spoke.
	Role Role `json:"role"`

	// Text is the utterance content.
	Text string `json:"text"`

	// Language is the detected language tag, when known.
	Language string `json:"language,omitempty"`

	// Timestamp is when the turn was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// Store persists conversation turns in order.
type Store interface {
	// Append records one turn.
	Append(ctx context.Context, turn Turn) error

	// Recent returns the most recent turns oldest-first. limit <= 0 means
	// all retained turns.
	Recent(ctx context.Context, limit int) ([]Turn, error)

	// Clear removes all retained turns.
	Clear(ctx context.Context) error
}

// ExportJSON renders turns as an indented JSON document.
func ExportJSON(turns []Turn) ([]byte, error) {
	if turns == nil {
		turns = []Turn{}
	}
	data, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("history: export json: %w", err)
	}
	return data, nil
}

// ExportText renders turns as a plain-text dialogue, one line per turn.
func ExportText(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		label := "User"
		if t.Role == RoleAssistant {
			label = "Assistant"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", t.Timestamp.Format(time.RFC3339), label, t.Text)
	}
	return b.String()
}
