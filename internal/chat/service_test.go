package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/seedhantkalra/caremind/internal/auth"
	"github.com/seedhantkalra/caremind/internal/brain"
	"github.com/seedhantkalra/caremind/internal/memory"
	"github.com/seedhantkalra/caremind/internal/observability"
	"github.com/seedhantkalra/caremind/internal/protocol"
	"github.com/seedhantkalra/caremind/internal/session"
)

var drEmily = auth.Identity{
	UserID:    "u1",
	Name:      "Dr. Emily",
	JobTitle:  "Surgeon",
	Workplace: "Sunnybrook Health Centre",
}

// scriptedAdapter returns canned replies and records the prompts it saw.
type scriptedAdapter struct {
	mu      sync.Mutex
	replies []string
	err     error
	prompts [][]protocol.Turn
}

func (a *scriptedAdapter) Complete(_ context.Context, turns []protocol.Turn, onDelta brain.DeltaHandler) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prompts = append(a.prompts, turns)
	if a.err != nil {
		return "", a.err
	}
	reply := "I hear you."
	if len(a.replies) > 0 {
		reply = a.replies[0]
		a.replies = a.replies[1:]
	}
	if onDelta != nil {
		if err := onDelta(reply); err != nil {
			return "", err
		}
	}
	return reply, nil
}

// countingStore wraps a Store and counts Save calls.
type countingStore struct {
	memory.Store
	saves int
}

func (s *countingStore) Save(ctx context.Context, rec memory.Record) error {
	s.saves++
	return s.Store.Save(ctx, rec)
}

func newTestService(t *testing.T, adapter brain.Adapter, store memory.Store) *Service {
	t.Helper()
	sessions := session.NewManager(10, time.Minute)
	metrics := observability.NewMetrics(fmt.Sprintf("test_chat_%d", time.Now().UnixNano()))
	return NewService(sessions, store, adapter, metrics, 5)
}

func TestHandleTurnRequiresProvisionedUser(t *testing.T) {
	svc := newTestService(t, &scriptedAdapter{}, memory.NewInMemoryStore())
	_, err := svc.HandleTurn(context.Background(), drEmily, "hello", nil)
	if !errors.Is(err, memory.ErrNotFound) {
		t.Fatalf("error = %v, want memory.ErrNotFound", err)
	}
}

func TestEnsureUserIdempotent(t *testing.T) {
	svc := newTestService(t, &scriptedAdapter{}, memory.NewInMemoryStore())
	ctx := context.Background()

	_, created, err := svc.EnsureUser(ctx, drEmily)
	if err != nil {
		t.Fatalf("EnsureUser error = %v", err)
	}
	if !created {
		t.Fatalf("first EnsureUser created = false, want true")
	}

	other := drEmily
	other.Name = "Impostor"
	rec, created, err := svc.EnsureUser(ctx, other)
	if err != nil {
		t.Fatalf("second EnsureUser error = %v", err)
	}
	if created {
		t.Fatalf("second EnsureUser created = true, want false")
	}
	if rec.Profile.Name != "Dr. Emily" {
		t.Fatalf("second EnsureUser overwrote name: %q", rec.Profile.Name)
	}
}

func TestHandleTurnEndToEnd(t *testing.T) {
	adapter := &scriptedAdapter{replies: []string{
		"Try these recovery tips...",
		"- User works rotating night shifts and struggles with recovery sleep",
	}}
	store := &countingStore{Store: memory.NewInMemoryStore()}
	svc := newTestService(t, adapter, store)
	ctx := context.Background()

	if _, _, err := svc.EnsureUser(ctx, drEmily); err != nil {
		t.Fatalf("EnsureUser error = %v", err)
	}

	reply, err := svc.HandleTurn(ctx, drEmily, "I'm exhausted after night shifts", nil)
	if err != nil {
		t.Fatalf("HandleTurn error = %v", err)
	}
	if reply != "Try these recovery tips..." {
		t.Fatalf("reply = %q", reply)
	}

	// First prompt: begins with profile/persona system turns, ends with
	// exactly one user turn.
	if len(adapter.prompts) != 2 {
		t.Fatalf("completion called %d times, want 2 (reply + extraction)", len(adapter.prompts))
	}
	prompt := adapter.prompts[0]
	if prompt[0].Role != protocol.RoleSystem || !strings.Contains(prompt[0].Text, "Dr. Emily") {
		t.Fatalf("prompt[0] = %+v, want name system turn", prompt[0])
	}
	userTurns := 0
	for _, turn := range prompt {
		if turn.Role == protocol.RoleUser {
			userTurns++
		}
	}
	if userTurns != 1 || prompt[len(prompt)-1].Role != protocol.RoleUser {
		t.Fatalf("prompt should end with exactly one user turn: %+v", prompt)
	}

	// Session buffer now holds the exchange pair.
	sess := svc.sessions.Acquire("u1")
	if got := sess.Buffer.Len(); got != 2 {
		t.Fatalf("buffer len = %d, want 2", got)
	}

	// Extraction was called with the 2-turn exchange.
	extraction := adapter.prompts[1]
	if len(extraction) != 3 || extraction[0].Role != protocol.RoleSystem {
		t.Fatalf("extraction prompt = %+v, want instruction + 2 exchange turns", extraction)
	}

	// Save called exactly once; admitted insight is long and not generic.
	if store.saves != 1 {
		t.Fatalf("saves = %d, want 1", store.saves)
	}
	rec, err := store.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if len(rec.Insights) != 1 {
		t.Fatalf("insights = %+v, want 1 admitted", rec.Insights)
	}
	if len(rec.Insights[0].Content) <= 15 {
		t.Fatalf("admitted insight too short: %q", rec.Insights[0].Content)
	}
}

func TestHandleTurnRecallsInsightsNextTurn(t *testing.T) {
	adapter := &scriptedAdapter{replies: []string{
		"Try these recovery tips...",
		"- User works rotating night shifts and struggles with recovery sleep",
		"Here is a follow-up.",
		"no new points",
	}}
	svc := newTestService(t, adapter, memory.NewInMemoryStore())
	ctx := context.Background()
	_, _, _ = svc.EnsureUser(ctx, drEmily)

	if _, err := svc.HandleTurn(ctx, drEmily, "I'm exhausted after night shifts", nil); err != nil {
		t.Fatalf("turn 1 error = %v", err)
	}
	if _, err := svc.HandleTurn(ctx, drEmily, "what else can I do?", nil); err != nil {
		t.Fatalf("turn 2 error = %v", err)
	}

	secondPrompt := adapter.prompts[2]
	found := false
	for _, turn := range secondPrompt {
		if turn.Role == protocol.RoleSystem && strings.Contains(turn.Text, "rotating night shifts") {
			found = true
		}
	}
	if !found {
		t.Fatalf("turn 2 prompt missing recalled insight: %+v", secondPrompt)
	}
}

func TestHandleTurnUpstreamFailureFailsLoud(t *testing.T) {
	adapter := &scriptedAdapter{err: errors.New("quota exceeded")}
	store := &countingStore{Store: memory.NewInMemoryStore()}
	svc := newTestService(t, adapter, store)
	ctx := context.Background()
	_, _, _ = svc.EnsureUser(ctx, drEmily)

	_, err := svc.HandleTurn(ctx, drEmily, "hello", nil)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("error = %v, want ErrUpstream", err)
	}
	if store.saves != 0 {
		t.Fatalf("saves = %d, want 0 after failed primary reply", store.saves)
	}
}

func TestHandleTurnExtractionFailureIsQuiet(t *testing.T) {
	// First call (reply) succeeds, second (extraction) fails.
	adapter := &flakySecondCallAdapter{reply: "Try these recovery tips..."}
	store := &countingStore{Store: memory.NewInMemoryStore()}
	svc := newTestService(t, adapter, store)
	ctx := context.Background()
	_, _, _ = svc.EnsureUser(ctx, drEmily)

	reply, err := svc.HandleTurn(ctx, drEmily, "I'm exhausted after night shifts", nil)
	if err != nil {
		t.Fatalf("HandleTurn error = %v, want quiet extraction failure", err)
	}
	if reply != "Try these recovery tips..." {
		t.Fatalf("reply = %q", reply)
	}
	// The record is still saved (expiry may have pruned) with no insights.
	if store.saves != 1 {
		t.Fatalf("saves = %d, want 1", store.saves)
	}
	rec, _ := store.Load(ctx, "u1")
	if len(rec.Insights) != 0 {
		t.Fatalf("insights = %+v, want none after failed extraction", rec.Insights)
	}
}

type flakySecondCallAdapter struct {
	reply string
	calls int
}

func (a *flakySecondCallAdapter) Complete(_ context.Context, _ []protocol.Turn, _ brain.DeltaHandler) (string, error) {
	a.calls++
	if a.calls > 1 {
		return "", errors.New("rate limited")
	}
	return a.reply, nil
}

func TestHandleTurnSerializesPerIdentity(t *testing.T) {
	adapter := &scriptedAdapter{}
	svc := newTestService(t, adapter, memory.NewInMemoryStore())
	ctx := context.Background()
	_, _, _ = svc.EnsureUser(ctx, drEmily)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = svc.HandleTurn(ctx, drEmily, fmt.Sprintf("message %d", n), nil)
		}(i)
	}
	wg.Wait()

	// Every turn ran the reply and extraction calls without interleaved
	// corruption of the shared record.
	if len(adapter.prompts) != 16 {
		t.Fatalf("completion calls = %d, want 16", len(adapter.prompts))
	}
}
