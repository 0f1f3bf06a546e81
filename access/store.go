package access

import "context"

// Store is the access-right slice of the storage layer.
type Store interface {
	CreateRight(ctx context.Context, r *Right) error
	ListRights(ctx context.Context, userID string) ([]*Right, error)
	// ActiveRight returns the newest unexpired right for the content/user
	// pair, or nil when none exists.
	ActiveRight(ctx context.Context, contentID, userID string) (*Right, error)
}
