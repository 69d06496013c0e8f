package memory

import (
	"strings"
	"time"
)

const (
	// RetentionWindow is how long an insight stays live before expiry.
	RetentionWindow = 30 * 24 * time.Hour
	// minAdmissionLength is the quality bar for persisting a candidate.
	// Shorter strings are almost always fragments or filler.
	minAdmissionLength = 15
)

// genericKnowledgeDenylist rejects summarizer output that restates common
// knowledge instead of something specific to the discussion. Matched as a
// case-insensitive substring.
var genericKnowledgeDenylist = []string{
	"general information",
	"common knowledge",
	"basic information",
	"general overview",
}

func isGenericKnowledge(s string) bool {
	lower := strings.ToLower(s)
	for _, phrase := range genericKnowledgeDenylist {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// MergeStats reports what one merge actually did, so callers can account
// for admissions without re-deriving them from timestamps.
type MergeStats struct {
	Admitted int
	Expired  int
	Rejected int
}

// Merge applies the admission and expiry policy: existing insights older
// than the retention window are dropped, then surviving candidates are
// admitted with a `now` timestamp. Purely functional; the caller persists
// the result.
//
// A candidate is admitted only when it is longer than the admission
// threshold, not on the generic-knowledge denylist, and not an exact
// duplicate of a live insight or an earlier candidate.
func Merge(existing []Insight, candidates []string, now time.Time) ([]Insight, MergeStats) {
	var stats MergeStats

	// Expiry runs unconditionally, even with no candidates, so a merge
	// triggered by an uneventful exchange still prunes stale entries.
	out := make([]Insight, 0, len(existing)+len(candidates))
	seen := make(map[string]struct{}, len(existing))
	for _, ins := range existing {
		if now.Sub(ins.CreatedAt) > RetentionWindow {
			stats.Expired++
			continue
		}
		out = append(out, ins)
		seen[ins.Content] = struct{}{}
	}

	for _, cand := range candidates {
		cand = strings.TrimSpace(cand)
		if len(cand) <= minAdmissionLength {
			stats.Rejected++
			continue
		}
		if isGenericKnowledge(cand) {
			stats.Rejected++
			continue
		}
		if _, dup := seen[cand]; dup {
			stats.Rejected++
			continue
		}
		seen[cand] = struct{}{}
		out = append(out, Insight{Content: cand, CreatedAt: now})
		stats.Admitted++
	}
	return out, stats
}
