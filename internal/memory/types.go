package memory

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound means no long-term memory record exists for the identity.
// Callers must provision explicitly via Create; nothing auto-provisions.
var ErrNotFound = errors.New("memory record not found")

// Insight is one durable, timestamped summary fact about a user's
// conversations. Immutable once created; the only lifecycle transition is
// deletion by expiry.
type Insight struct {
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile holds the optional user attributes carried alongside insights.
type Profile struct {
	Name      string `json:"name"`
	JobTitle  string `json:"job_title"`
	Workplace string `json:"workplace"`
}

// Record is the per-identity long-term memory document: profile attributes
// plus the ordered insight sequence. One record per identity.
type Record struct {
	UserID      string    `json:"user_id"`
	Profile     Profile   `json:"profile"`
	Insights    []Insight `json:"insights"`
	LastUpdated time.Time `json:"last_updated"`
}

// ApplyProfile overwrites profile attributes with new non-empty trimmed
// values. Blank or whitespace-only inputs never clobber existing data.
func (r *Record) ApplyProfile(p Profile) {
	if v := strings.TrimSpace(p.Name); v != "" {
		r.Profile.Name = v
	}
	if v := strings.TrimSpace(p.JobTitle); v != "" {
		r.Profile.JobTitle = v
	}
	if v := strings.TrimSpace(p.Workplace); v != "" {
		r.Profile.Workplace = v
	}
}

// Store persists long-term memory records keyed by identity.
//
// Save is a full-record upsert with last-writer-wins semantics; in-process
// callers serialize per identity, but concurrent writers in separate
// processes can still overwrite each other.
type Store interface {
	// Load returns the record for the identity or ErrNotFound.
	Load(ctx context.Context, userID string) (Record, error)
	// Create provisions a record. When one already exists it is returned
	// untouched; Create never overwrites.
	Create(ctx context.Context, userID string, profile Profile) (Record, error)
	// Save upserts the whole record.
	Save(ctx context.Context, record Record) error
	// SweepExpired bulk-deletes insights created before the cutoff across
	// all identities and reports how many were removed.
	SweepExpired(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}
