package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Sentinel errors surfaced by the orchestrator.
var (
	ErrBreakerOpen = errors.New("recovery: circuit breaker open")
	ErrNoStrategy  = errors.New("recovery: no strategy matches")
	ErrExhausted   = errors.New("recovery: attempts exhausted")
)

// Orchestrator wraps calls to collaborating services with failure
// classification, per-service circuit breakers, and backoff-guarded
// recovery strategies.
type Orchestrator struct {
	store  Store
	logger *slog.Logger

	mu          sync.Mutex
	strategies  []Strategy
	breakers    map[string]*gobreaker.CircuitBreaker[struct{}]
	lastFailure map[string]time.Time

	failureThreshold uint32
	cooldown         time.Duration
	maxAttempts      int
	initialBackoff   time.Duration

	onStateChange func(service, from, to string)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithBreakerPolicy sets the consecutive-failure threshold that opens a
// breaker and the cool-down before it may close again.
func WithBreakerPolicy(failureThreshold uint32, cooldown time.Duration) Option {
	return func(o *Orchestrator) {
		o.failureThreshold = failureThreshold
		o.cooldown = cooldown
	}
}

// WithRetryPolicy sets the per-strategy attempt budget and the initial
// backoff interval. Backoff doubles each attempt.
func WithRetryPolicy(maxAttempts int, initialBackoff time.Duration) Option {
	return func(o *Orchestrator) {
		o.maxAttempts = maxAttempts
		o.initialBackoff = initialBackoff
	}
}

// WithStateChangeHook registers a callback invoked on breaker transitions.
func WithStateChangeHook(fn func(service, from, to string)) Option {
	return func(o *Orchestrator) { o.onStateChange = fn }
}

// NewOrchestrator creates an Orchestrator persisting reports to store.
func NewOrchestrator(store Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:            store,
		logger:           slog.Default(),
		breakers:         make(map[string]*gobreaker.CircuitBreaker[struct{}]),
		lastFailure:      make(map[string]time.Time),
		failureThreshold: 5,
		cooldown:         5 * time.Minute,
		maxAttempts:      3,
		initialBackoff:   500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Register appends a recovery strategy. Strategies are attempted in
// registration order.
func (o *Orchestrator) Register(s Strategy) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.strategies = append(o.strategies, s)
}

// Report classifies and persists a caught failure.
func (o *Orchestrator) Report(ctx context.Context, err error, service, operation string) *Report {
	report := Classify(err, service, operation)

	if storeErr := o.store.CreateReport(ctx, report); storeErr != nil {
		o.logger.Warn("failed to persist error report",
			"service", service,
			"operation", operation,
			"error", storeErr,
		)
	}

	o.logger.Error("failure reported",
		"service", service,
		"operation", operation,
		"type", report.Type,
		"severity", report.Severity,
		"error", err,
	)

	return report
}

// Recover attempts every matching strategy for the report, each retried
// with exponential backoff, behind the service's circuit breaker. The
// first strategy whose attempt succeeds resolves the report and resets
// the breaker; overall failure increments the breaker counter and leaves
// the report unresolved. While the breaker is open, recovery is skipped
// outright.
func (o *Orchestrator) Recover(ctx context.Context, report *Report) error {
	cb := o.breaker(report.Service)

	_, err := cb.Execute(func() (struct{}, error) {
		return struct{}{}, o.attemptStrategies(ctx, report)
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			o.logger.Warn("recovery skipped, breaker open", "service", report.Service)
			return fmt.Errorf("%w: %s", ErrBreakerOpen, report.Service)
		}

		o.mu.Lock()
		o.lastFailure[report.Service] = time.Now().UTC()
		o.mu.Unlock()

		return err
	}

	report.Resolved = true
	if storeErr := o.store.UpdateReport(ctx, report); storeErr != nil {
		o.logger.Warn("failed to mark report resolved", "report_id", report.ID, "error", storeErr)
	}

	return nil
}

// Handle reports the failure and immediately attempts recovery. It returns
// nil only when a strategy succeeded.
func (o *Orchestrator) Handle(ctx context.Context, err error, service, operation string) error {
	report := o.Report(ctx, err, service, operation)
	return o.Recover(ctx, report)
}

func (o *Orchestrator) attemptStrategies(ctx context.Context, report *Report) error {
	o.mu.Lock()
	matched := make([]Strategy, 0, len(o.strategies))
	for _, s := range o.strategies {
		if s.Matches != nil && s.Matches(report) {
			matched = append(matched, s)
		}
	}
	maxAttempts := o.maxAttempts
	initial := o.initialBackoff
	o.mu.Unlock()

	if len(matched) == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNoStrategy, report.Type, report.Service)
	}

	for _, s := range matched {
		err := o.retryStrategy(ctx, s, report, maxAttempts, initial)
		if err == nil {
			o.logger.Info("recovery succeeded",
				"strategy", s.Name,
				"service", report.Service,
				"attempts", report.Attempts,
			)
			return nil
		}

		o.logger.Warn("recovery strategy failed",
			"strategy", s.Name,
			"service", report.Service,
			"error", err,
		)
	}

	return fmt.Errorf("%w: %d strategies failed for %s", ErrExhausted, len(matched), report.Service)
}

// retryStrategy runs one strategy with exponential backoff: initial,
// initial*2, initial*4, ... up to maxAttempts tries.
func (o *Orchestrator) retryStrategy(ctx context.Context, s Strategy, report *Report, maxAttempts int, initial time.Duration) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initial
	policy.RandomizationFactor = 0
	policy.Multiplier = 2
	policy.MaxInterval = initial * 64

	operation := func() (struct{}, error) {
		report.Attempts++
		if err := s.Attempt(ctx); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(maxAttempts)),
	)

	if updateErr := o.store.UpdateReport(ctx, report); updateErr != nil {
		o.logger.Warn("failed to persist attempt count", "report_id", report.ID, "error", updateErr)
	}

	return err
}

// breaker returns the circuit breaker for the service, creating it lazily.
func (o *Orchestrator) breaker(service string) *gobreaker.CircuitBreaker[struct{}] {
	o.mu.Lock()
	defer o.mu.Unlock()

	if cb, ok := o.breakers[service]; ok {
		return cb
	}

	threshold := o.failureThreshold

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        service,
		MaxRequests: 1,
		Timeout:     o.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			o.logger.Info("circuit breaker state change",
				"service", name,
				"from", stateString(from),
				"to", stateString(to),
			)
			if o.onStateChange != nil {
				o.onStateChange(name, stateString(from), stateString(to))
			}
		},
	})

	o.breakers[service] = cb
	return cb
}

// Snapshots returns a point-in-time view of every known breaker.
func (o *Orchestrator) Snapshots() []BreakerSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snaps := make([]BreakerSnapshot, 0, len(o.breakers))
	for service, cb := range o.breakers {
		state := cb.State()
		snaps = append(snaps, BreakerSnapshot{
			Service:             service,
			State:               stateString(state),
			ConsecutiveFailures: cb.Counts().ConsecutiveFailures,
			LastFailure:         o.lastFailure[service],
			IsOpen:              state == gobreaker.StateOpen,
		})
	}
	return snaps
}

func stateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
