package memory

import (
	"context"
	"strings"

	"github.com/seedhantkalra/caremind/internal/privacy"
)

// NewStore creates a postgres-backed store when configured, otherwise
// in-memory.
func NewStore(ctx context.Context, databaseURL string, codec *privacy.Codec) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL, codec)
}
