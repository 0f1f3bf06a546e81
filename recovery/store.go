package recovery

import (
	"context"
	"time"
)

// Store is the error-report slice of the storage layer.
type Store interface {
	CreateReport(ctx context.Context, r *Report) error
	// UpdateReport persists attempt counts and the resolved flag.
	UpdateReport(ctx context.Context, r *Report) error
	ListReports(ctx context.Context, since time.Time) ([]*Report, error)
}
