package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/seedhantkalra/caremind/internal/protocol"
)

// DeltaHandler receives streaming text fragments as the completion service
// produces them. A nil handler means the caller only wants the final text.
type DeltaHandler func(delta string) error

// Adapter is the completion-service collaborator: an ordered turn sequence
// in, one assistant text out. Treated as unreliable; errors surface to the
// caller with no retries.
type Adapter interface {
	Complete(ctx context.Context, turns []protocol.Turn, onDelta DeltaHandler) (string, error)
}

// Config controls adapter construction.
type Config struct {
	Mode      string
	HTTPURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

func NewAdapter(cfg Config) (Adapter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.HTTPURL) != "" {
			return NewHTTPAdapter(cfg), nil
		}
		return NewMockAdapter(), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("brain HTTP url is required for http mode")
		}
		return NewHTTPAdapter(cfg), nil
	case "mock":
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported brain mode %q (expected auto|http|mock)", cfg.Mode)
	}
}
