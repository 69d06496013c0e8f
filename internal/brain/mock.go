package brain

import (
	"context"
	"fmt"
	"strings"

	"github.com/seedhantkalra/caremind/internal/protocol"
)

// MockAdapter provides deterministic local replies when no completion
// endpoint is configured.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (a *MockAdapter) Complete(ctx context.Context, turns []protocol.Turn, onDelta DeltaHandler) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	text := buildMockReply(turns)
	if onDelta != nil && text != "" {
		if err := onDelta(text); err != nil {
			return "", err
		}
	}
	return text, nil
}

func buildMockReply(turns []protocol.Turn) string {
	lastUser := ""
	summarizing := false
	for _, t := range turns {
		switch t.Role {
		case protocol.RoleUser:
			lastUser = strings.TrimSpace(t.Text)
		case protocol.RoleSystem:
			if strings.Contains(t.Text, "discussion-specific") {
				summarizing = true
			}
		}
	}
	if lastUser == "" {
		return "I am listening."
	}
	if summarizing {
		// Shaped like a real summarization reply so the extraction pipeline
		// can be exercised end to end without a live endpoint.
		return fmt.Sprintf("- Discussion covered: %s", lastUser)
	}
	return fmt.Sprintf("I hear you: %s", lastUser)
}
