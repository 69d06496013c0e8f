package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/seedhantkalra/caremind/internal/auth"
	"github.com/seedhantkalra/caremind/internal/brain"
	"github.com/seedhantkalra/caremind/internal/memory"
	"github.com/seedhantkalra/caremind/internal/observability"
	"github.com/seedhantkalra/caremind/internal/protocol"
	"github.com/seedhantkalra/caremind/internal/session"
)

// ErrUpstream means the completion service failed on the primary reply path.
// The turn fails loud; no partial reply is returned.
var ErrUpstream = errors.New("completion service failure")

// Service runs the per-turn memory lifecycle: load the long-term record,
// buffer the user turn, assemble context, call the completion service,
// extract and merge insights, persist.
type Service struct {
	sessions    *session.Manager
	store       memory.Store
	adapter     brain.Adapter
	extractor   *memory.Extractor
	metrics     *observability.Metrics
	recallLimit int
	now         func() time.Time

	// userLocks serializes turns per identity so concurrent requests for
	// the same user cannot interleave load-merge-save. Requests for
	// different users stay fully independent. Writers in other processes
	// still race (last save wins).
	//
	// Entries are never evicted: the map grows with the set of identities
	// this process has served, one mutex per user, and ending a session
	// does not release the entry. Evicting safely would need refcounting
	// against in-flight turns.
	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

func NewService(sessions *session.Manager, store memory.Store, adapter brain.Adapter, metrics *observability.Metrics, recallLimit int) *Service {
	if recallLimit <= 0 {
		recallLimit = DefaultRecallLimit
	}
	return &Service{
		sessions:    sessions,
		store:       store,
		adapter:     adapter,
		extractor:   memory.NewExtractor(adapter),
		metrics:     metrics,
		recallLimit: recallLimit,
		now:         time.Now,
		userLocks:   make(map[string]*sync.Mutex),
	}
}

// EnsureUser provisions the long-term memory record for a verified identity.
// The returned bool reports whether a new record was created; an existing
// record is returned untouched.
func (s *Service) EnsureUser(ctx context.Context, id auth.Identity) (memory.Record, bool, error) {
	unlock := s.lockUser(id.UserID)
	defer unlock()

	if rec, err := s.store.Load(ctx, id.UserID); err == nil {
		return rec, false, nil
	} else if !errors.Is(err, memory.ErrNotFound) {
		return memory.Record{}, false, err
	}
	rec, err := s.store.Create(ctx, id.UserID, profileOf(id))
	if err != nil {
		return memory.Record{}, false, err
	}
	return rec, true, nil
}

// HandleTurn processes one chat turn for a verified identity. onDelta, when
// set, receives streaming reply fragments. The identity comes from the
// credential only; nothing request-supplied selects the memory record.
func (s *Service) HandleTurn(ctx context.Context, id auth.Identity, userText string, onDelta brain.DeltaHandler) (string, error) {
	started := s.now()
	unlock := s.lockUser(id.UserID)
	defer unlock()

	rec, err := s.store.Load(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			s.metrics.ChatTurns.WithLabelValues("not_found").Inc()
		}
		return "", err
	}
	// Fresh non-empty credential attributes refresh the stored profile;
	// blanks never clobber.
	rec.ApplyProfile(profileOf(id))

	sess := s.sessions.Acquire(id.UserID)
	userTurn := protocol.UserTurn(userText)
	sess.Buffer.Append(userTurn)

	prompt := Assemble(rec.Profile, rec.Insights, sess.Buffer.Snapshot(), s.recallLimit)
	reply, err := s.adapter.Complete(ctx, prompt, onDelta)
	if err != nil {
		s.metrics.BrainErrors.WithLabelValues("reply").Inc()
		s.metrics.ChatTurns.WithLabelValues("upstream_error").Inc()
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	assistantTurn := protocol.AssistantTurn(reply)
	sess.Buffer.Append(assistantTurn)

	s.consolidate(ctx, rec, []protocol.Turn{userTurn, assistantTurn})

	s.metrics.ChatTurns.WithLabelValues("ok").Inc()
	s.metrics.ObserveTurnLatency(s.now().Sub(started))
	return reply, nil
}

// EndSession destroys the user's short-term buffer.
func (s *Service) EndSession(userID string) error {
	_, err := s.sessions.EndForUser(userID)
	return err
}

// consolidate runs the quiet half of the turn: extraction, merge, persist.
// Failures here are logged and swallowed so chat availability never depends
// on memory subsystem health.
func (s *Service) consolidate(ctx context.Context, rec memory.Record, exchange []protocol.Turn) {
	candidates := s.extractor.Extract(ctx, exchange)
	merged, stats := memory.Merge(rec.Insights, candidates, s.now())

	if stats.Admitted > 0 {
		s.metrics.InsightEvents.WithLabelValues("admitted").Add(float64(stats.Admitted))
	}
	if stats.Expired > 0 {
		s.metrics.InsightEvents.WithLabelValues("expired").Add(float64(stats.Expired))
	}
	if stats.Rejected > 0 {
		s.metrics.InsightEvents.WithLabelValues("rejected").Add(float64(stats.Rejected))
	}

	rec.Insights = merged
	if err := s.store.Save(ctx, rec); err != nil {
		log.Printf("[chat] user %s: persisting memory failed: %v", rec.UserID, err)
		s.metrics.InsightEvents.WithLabelValues("save_failed").Inc()
	}
}

func (s *Service) lockUser(userID string) func() {
	s.mu.Lock()
	m, ok := s.userLocks[userID]
	if !ok {
		m = &sync.Mutex{}
		s.userLocks[userID] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func profileOf(id auth.Identity) memory.Profile {
	return memory.Profile{Name: id.Name, JobTitle: id.JobTitle, Workplace: id.Workplace}
}
