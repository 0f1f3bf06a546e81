package recovery

import "context"

// Strategy is one pluggable recovery action: reopen a connection, recreate
// a payment channel, switch gateways. Strategies are distinguished only by
// their matching predicate and have no side effects beyond Attempt.
type Strategy struct {
	Name string

	// Matches guards the strategy: it is attempted only for reports it
	// matches.
	Matches func(r *Report) bool

	// Attempt performs the recovery action once. It is retried with
	// exponential backoff up to the orchestrator's attempt budget.
	Attempt func(ctx context.Context) error
}

// MatchType returns a predicate matching any of the given error types,
// the common guard for connection/network strategies.
func MatchType(typs ...Type) func(*Report) bool {
	return func(r *Report) bool {
		for _, t := range typs {
			if r.Type == t {
				return true
			}
		}
		return false
	}
}

// MatchService returns a predicate matching reports from one service.
func MatchService(service string) func(*Report) bool {
	return func(r *Report) bool { return r.Service == service }
}
