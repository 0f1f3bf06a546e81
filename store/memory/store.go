// Package memory provides an in-memory Store for embedding and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	tunegate "github.com/tunegate/tunegate"
	"github.com/tunegate/tunegate/access"
	"github.com/tunegate/tunegate/batch"
	"github.com/tunegate/tunegate/channel"
	"github.com/tunegate/tunegate/id"
	"github.com/tunegate/tunegate/recovery"
	"github.com/tunegate/tunegate/subscription"
)

type Store struct {
	mu sync.RWMutex

	// Channel storage
	channels     map[string]*channel.Channel
	activeByUser map[string]string // userID -> channelID

	// Transaction history per user
	transactions map[string][]*channel.Transaction

	// Pending settlement queues per user
	pending map[string][]*channel.Transaction

	// Settlement batches
	batches map[string]*batch.Batch

	// Balance audit rings per user
	rings     map[string]*batch.Ring
	ringLimit int

	// Access rights per user
	rights map[string][]*access.Right

	// Subscription status per user
	subscriptions map[string]*subscription.Status

	// Error reports in insertion order
	reports []*recovery.Report

	closed bool
}

// Option configures the memory store.
type Option func(*Store)

// WithHistoryLimit sets the balance-history ring capacity per user.
func WithHistoryLimit(limit int) Option {
	return func(s *Store) { s.ringLimit = limit }
}

func New(opts ...Option) *Store {
	s := &Store{
		channels:      make(map[string]*channel.Channel),
		activeByUser:  make(map[string]string),
		transactions:  make(map[string][]*channel.Transaction),
		pending:       make(map[string][]*channel.Transaction),
		batches:       make(map[string]*batch.Batch),
		rings:         make(map[string]*batch.Ring),
		ringLimit:     100,
		rights:        make(map[string][]*access.Right),
		subscriptions: make(map[string]*subscription.Status),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Payment channel methods

func (s *Store) CreateChannel(_ context.Context, c *channel.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return tunegate.ErrStoreClosed
	}
	if _, exists := s.channels[c.ID.String()]; exists {
		return tunegate.ErrAlreadyExists
	}

	s.channels[c.ID.String()] = c
	if c.Status == channel.StatusActive {
		s.activeByUser[c.UserID] = c.ID.String()
	}
	return nil
}

func (s *Store) GetChannel(_ context.Context, channelID id.ChannelID) (*channel.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.channels[channelID.String()]; ok {
		return c, nil
	}
	return nil, tunegate.ErrNotFound
}

func (s *Store) ActiveChannel(_ context.Context, userID string) (*channel.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	channelID, ok := s.activeByUser[userID]
	if !ok {
		return nil, nil
	}

	c := s.channels[channelID]
	if c == nil || c.Status != channel.StatusActive {
		return nil, nil
	}
	return c, nil
}

func (s *Store) UpdateChannel(_ context.Context, c *channel.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.channels[c.ID.String()]; !exists {
		return tunegate.ErrNotFound
	}

	s.channels[c.ID.String()] = c
	if c.Status == channel.StatusActive {
		s.activeByUser[c.UserID] = c.ID.String()
	} else if s.activeByUser[c.UserID] == c.ID.String() {
		delete(s.activeByUser, c.UserID)
	}
	return nil
}

// Transaction methods

func (s *Store) CreateTransaction(_ context.Context, t *channel.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions[t.UserID] = append(s.transactions[t.UserID], t)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, userID string, since time.Time) ([]*channel.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*channel.Transaction, 0)
	for _, t := range s.transactions[userID] {
		if t.Timestamp.Before(since) {
			continue
		}
		result = append(result, t)
	}
	return result, nil
}

// Pending queue methods

func (s *Store) AppendPending(_ context.Context, t *channel.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[t.UserID] = append(s.pending[t.UserID], t)
	return nil
}

func (s *Store) PendingQueue(_ context.Context, userID string) ([]*channel.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	queue := s.pending[userID]
	result := make([]*channel.Transaction, len(queue))
	copy(result, queue)
	return result, nil
}

func (s *Store) ClearPending(_ context.Context, userID string, txnIDs []id.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear := make(map[string]struct{}, len(txnIDs))
	for _, txnID := range txnIDs {
		clear[txnID.String()] = struct{}{}
	}

	remaining := make([]*channel.Transaction, 0)
	for _, t := range s.pending[userID] {
		if _, drop := clear[t.ID.String()]; !drop {
			remaining = append(remaining, t)
		}
	}

	if len(remaining) == 0 {
		delete(s.pending, userID)
	} else {
		s.pending[userID] = remaining
	}
	return nil
}

func (s *Store) PendingUsers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]string, 0, len(s.pending))
	for userID, queue := range s.pending {
		if len(queue) > 0 {
			users = append(users, userID)
		}
	}
	sort.Strings(users)
	return users, nil
}

// Settlement batch methods

func (s *Store) CreateBatch(_ context.Context, b *batch.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.batches[b.ID.String()]; exists {
		return tunegate.ErrAlreadyExists
	}
	s.batches[b.ID.String()] = b
	return nil
}

func (s *Store) UpdateBatch(_ context.Context, b *batch.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.batches[b.ID.String()]; !exists {
		return tunegate.ErrNotFound
	}
	s.batches[b.ID.String()] = b
	return nil
}

func (s *Store) GetBatch(_ context.Context, batchID id.BatchID) (*batch.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.batches[batchID.String()]; ok {
		return b, nil
	}
	return nil, tunegate.ErrNotFound
}

func (s *Store) ListBatches(_ context.Context, userID string) ([]*batch.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*batch.Batch, 0)
	for _, b := range s.batches {
		if b.UserID == userID {
			result = append(result, b)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Balance history methods

func (s *Store) RecordBalanceEvent(_ context.Context, userID string, e batch.BalanceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring, ok := s.rings[userID]
	if !ok {
		ring = batch.NewRing(s.ringLimit)
		s.rings[userID] = ring
	}
	ring.Push(e)
	return nil
}

func (s *Store) BalanceHistory(_ context.Context, userID string) ([]batch.BalanceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring, ok := s.rings[userID]
	if !ok {
		return nil, nil
	}
	return ring.Events(), nil
}

// Access right methods

func (s *Store) CreateRight(_ context.Context, r *access.Right) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rights[r.UserID] = append(s.rights[r.UserID], r)
	return nil
}

func (s *Store) ListRights(_ context.Context, userID string) ([]*access.Right, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rights := s.rights[userID]
	result := make([]*access.Right, len(rights))
	copy(result, rights)
	return result, nil
}

func (s *Store) ActiveRight(_ context.Context, contentID, userID string) (*access.Right, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().UTC()

	// Rights are append-only; the newest grant wins.
	var newest *access.Right
	for _, r := range s.rights[userID] {
		if r.ContentID != contentID || r.Expired(now) {
			continue
		}
		if newest == nil || r.GrantedAt.After(newest.GrantedAt) {
			newest = r
		}
	}
	return newest, nil
}

// Subscription methods

func (s *Store) UpsertStatus(_ context.Context, status *subscription.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscriptions[status.UserID] = status
	return nil
}

func (s *Store) GetStatus(_ context.Context, userID string) (*subscription.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if status, ok := s.subscriptions[userID]; ok {
		return status, nil
	}
	return nil, nil
}

// Error report methods

func (s *Store) CreateReport(_ context.Context, r *recovery.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reports = append(s.reports, r)
	return nil
}

func (s *Store) UpdateReport(_ context.Context, r *recovery.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.reports {
		if existing.ID.String() == r.ID.String() {
			s.reports[i] = r
			return nil
		}
	}
	return tunegate.ErrNotFound
}

func (s *Store) ListReports(_ context.Context, since time.Time) ([]*recovery.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*recovery.Report, 0)
	for _, r := range s.reports {
		if r.Timestamp.Before(since) {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

// Core methods

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return tunegate.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
