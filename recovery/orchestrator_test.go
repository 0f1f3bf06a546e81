package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memStore is a minimal in-package Store for orchestrator tests.
type memStore struct {
	mu      sync.Mutex
	reports []*Report
}

func (m *memStore) CreateReport(_ context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return nil
}

func (m *memStore) UpdateReport(_ context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.reports {
		if existing.ID == r.ID {
			m.reports[i] = r
			return nil
		}
	}
	return nil
}

func (m *memStore) ListReports(_ context.Context, _ time.Time) ([]*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Report, len(m.reports))
	copy(out, m.reports)
	return out, nil
}

func fastRetry() Option { return WithRetryPolicy(1, time.Millisecond) }

func TestReportPersists(t *testing.T) {
	s := &memStore{}
	o := NewOrchestrator(s)

	r := o.Report(context.Background(), errors.New("connection refused"), "store", "ping")

	if r.Type != TypeConnection {
		t.Errorf("type: got %s", r.Type)
	}
	if len(s.reports) != 1 || s.reports[0].ID != r.ID {
		t.Errorf("report not persisted: %d stored", len(s.reports))
	}
}

func TestRecoverNoMatchingStrategy(t *testing.T) {
	o := NewOrchestrator(&memStore{}, fastRetry())
	o.Register(Strategy{
		Name:    "payments-only",
		Matches: MatchType(TypePayment),
		Attempt: func(context.Context) error { return nil },
	})

	r := Classify(errors.New("connection refused"), "store", "ping")
	err := o.Recover(context.Background(), r)
	if !errors.Is(err, ErrNoStrategy) {
		t.Errorf("got %v, want ErrNoStrategy", err)
	}
	if r.Resolved {
		t.Error("report resolved without a strategy")
	}
}

func TestRecoverSuccessResolvesReport(t *testing.T) {
	s := &memStore{}
	o := NewOrchestrator(s, fastRetry())

	calls := 0
	o.Register(Strategy{
		Name:    "reconnect",
		Matches: MatchType(TypeConnection),
		Attempt: func(context.Context) error {
			calls++
			return nil
		},
	})

	r := o.Report(context.Background(), errors.New("connection refused"), "store", "ping")
	if err := o.Recover(context.Background(), r); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if calls != 1 {
		t.Errorf("attempt calls: got %d, want 1", calls)
	}
	if !r.Resolved || r.Attempts != 1 {
		t.Errorf("report: resolved=%v attempts=%d", r.Resolved, r.Attempts)
	}
}

func TestRecoverRetriesWithBackoff(t *testing.T) {
	o := NewOrchestrator(&memStore{}, WithRetryPolicy(3, time.Millisecond))

	calls := 0
	o.Register(Strategy{
		Name:    "flaky",
		Matches: MatchType(TypeConnection),
		Attempt: func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("still down")
			}
			return nil
		},
	})

	r := Classify(errors.New("connection refused"), "store", "ping")
	if err := o.Recover(context.Background(), r); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if calls != 3 {
		t.Errorf("attempt calls: got %d, want 3", calls)
	}
	if r.Attempts != 3 {
		t.Errorf("report attempts: got %d, want 3", r.Attempts)
	}
}

func TestRecoverExhaustsStrategies(t *testing.T) {
	o := NewOrchestrator(&memStore{}, fastRetry())
	o.Register(Strategy{
		Name:    "always-fails",
		Matches: MatchType(TypeConnection),
		Attempt: func(context.Context) error { return errors.New("still down") },
	})

	r := Classify(errors.New("connection refused"), "store", "ping")
	err := o.Recover(context.Background(), r)
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("got %v, want ErrExhausted", err)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var transitions []string
	o := NewOrchestrator(&memStore{},
		fastRetry(),
		WithBreakerPolicy(2, time.Minute),
		WithStateChangeHook(func(_, from, to string) {
			transitions = append(transitions, from+"->"+to)
		}),
	)
	o.Register(Strategy{
		Name:    "always-fails",
		Matches: MatchType(TypeConnection),
		Attempt: func(context.Context) error { return errors.New("still down") },
	})

	ctx := context.Background()
	r := Classify(errors.New("connection refused"), "store", "ping")

	for range 2 {
		if err := o.Recover(ctx, r); !errors.Is(err, ErrExhausted) {
			t.Fatalf("got %v, want ErrExhausted", err)
		}
	}

	// The second consecutive failure trips the breaker; further recovery
	// for the service is refused outright.
	if err := o.Recover(ctx, r); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("got %v, want ErrBreakerOpen", err)
	}

	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Errorf("transitions: %v", transitions)
	}

	snaps := o.Snapshots()
	if len(snaps) != 1 {
		t.Fatalf("snapshots: got %d, want 1", len(snaps))
	}
	if snaps[0].Service != "store" || !snaps[0].IsOpen {
		t.Errorf("snapshot: %+v", snaps[0])
	}
}

func TestBreakerClosesAfterCooldownAndSuccess(t *testing.T) {
	o := NewOrchestrator(&memStore{},
		fastRetry(),
		WithBreakerPolicy(2, 5*time.Millisecond),
	)
	healthy := false
	o.Register(Strategy{
		Name:    "reconnect",
		Matches: MatchType(TypeConnection),
		Attempt: func(context.Context) error {
			if !healthy {
				return errors.New("still down")
			}
			return nil
		},
	})

	ctx := context.Background()
	r := Classify(errors.New("connection refused"), "store", "ping")

	for range 2 {
		if err := o.Recover(ctx, r); !errors.Is(err, ErrExhausted) {
			t.Fatalf("got %v, want ErrExhausted", err)
		}
	}
	if err := o.Recover(ctx, r); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("got %v, want ErrBreakerOpen", err)
	}

	// After the cooldown the half-open probe runs; its success closes
	// the breaker and zeroes the failure count.
	time.Sleep(20 * time.Millisecond)
	healthy = true
	if err := o.Recover(ctx, r); err != nil {
		t.Fatalf("recover after cooldown: %v", err)
	}
	if !r.Resolved {
		t.Error("report not resolved after successful recovery")
	}

	snaps := o.Snapshots()
	if len(snaps) != 1 {
		t.Fatalf("snapshots: got %d, want 1", len(snaps))
	}
	if snaps[0].IsOpen || snaps[0].ConsecutiveFailures != 0 {
		t.Errorf("snapshot after reset: %+v", snaps[0])
	}

	// The count restarts from zero: one new failure leaves the breaker
	// closed under the threshold of two.
	healthy = false
	if err := o.Recover(ctx, r); !errors.Is(err, ErrExhausted) {
		t.Fatalf("got %v, want ErrExhausted", err)
	}
	snaps = o.Snapshots()
	if snaps[0].IsOpen || snaps[0].ConsecutiveFailures != 1 {
		t.Errorf("snapshot after one fresh failure: %+v", snaps[0])
	}
}

func TestBreakersArePerService(t *testing.T) {
	o := NewOrchestrator(&memStore{}, fastRetry(), WithBreakerPolicy(1, time.Minute))
	o.Register(Strategy{
		Name:    "always-fails",
		Matches: MatchType(TypeConnection),
		Attempt: func(context.Context) error { return errors.New("still down") },
	})
	o.Register(Strategy{
		Name:    "wallet-reconnect",
		Matches: MatchService("wallet"),
		Attempt: func(context.Context) error { return nil },
	})

	ctx := context.Background()

	// Trip the store breaker.
	storeReport := Classify(errors.New("connection refused"), "store", "ping")
	if err := o.Recover(ctx, storeReport); !errors.Is(err, ErrExhausted) {
		t.Fatalf("got %v, want ErrExhausted", err)
	}
	if err := o.Recover(ctx, storeReport); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("got %v, want ErrBreakerOpen", err)
	}

	// The wallet service still recovers.
	walletReport := Classify(errors.New("rpc unreachable"), "wallet", "sign")
	if err := o.Recover(ctx, walletReport); err != nil {
		t.Errorf("wallet recover: %v", err)
	}
}

func TestHandleReportsAndRecovers(t *testing.T) {
	s := &memStore{}
	o := NewOrchestrator(s, fastRetry())
	o.Register(Strategy{
		Name:    "reconnect",
		Matches: MatchType(TypeConnection),
		Attempt: func(context.Context) error { return nil },
	})

	if err := o.Handle(context.Background(), errors.New("connection refused"), "store", "ping"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(s.reports) != 1 || !s.reports[0].Resolved {
		t.Errorf("stored report: %+v", s.reports)
	}
}
