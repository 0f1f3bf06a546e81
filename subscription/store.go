package subscription

import "context"

// Store is the subscription slice of the storage layer.
type Store interface {
	// UpsertStatus replaces the user's subscription status wholesale.
	UpsertStatus(ctx context.Context, s *Status) error
	// GetStatus returns the user's stored status, or nil when the user has
	// never subscribed.
	GetStatus(ctx context.Context, userID string) (*Status, error)
}
