// Package badger provides a BadgerDB-backed Store for durable embedded
// deployments. Values are JSON; keys are prefixed per entity, with
// secondary keys for per-user lookups. TypeID suffixes are UUIDv7, so
// iteration over a user prefix yields entities in creation order.
package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	tunegate "github.com/tunegate/tunegate"
	"github.com/tunegate/tunegate/access"
	"github.com/tunegate/tunegate/batch"
	"github.com/tunegate/tunegate/channel"
	"github.com/tunegate/tunegate/id"
	"github.com/tunegate/tunegate/recovery"
	"github.com/tunegate/tunegate/subscription"
)

// Key prefixes for BadgerDB storage.
const (
	channelKeyPrefix   = "channel:"
	activeKeyPrefix    = "channel_active:"
	txnKeyPrefix       = "txn:"
	pendingKeyPrefix   = "pending:"
	batchKeyPrefix     = "batch:"
	batchUserKeyPrefix = "batch_user:"
	balanceKeyPrefix   = "balance:"
	rightKeyPrefix     = "right:"
	subKeyPrefix       = "sub:"
	reportKeyPrefix    = "report:"
)

type Store struct {
	db        *badgerdb.DB
	ringLimit int
}

// Option configures the badger store.
type Option func(*Store)

// WithHistoryLimit sets the balance-history ring capacity per user.
func WithHistoryLimit(limit int) Option {
	return func(s *Store) { s.ringLimit = limit }
}

// New wraps an open BadgerDB handle. The caller owns the handle; Close
// closes it.
func New(db *badgerdb.DB, opts ...Option) *Store {
	s := &Store{db: db, ringLimit: 100}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens a BadgerDB at dir and wraps it. Logging from badger itself
// is discarded; the engine logs store errors.
func Open(dir string, opts ...Option) (*Store, error) {
	db, err := badgerdb.Open(badgerdb.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return New(db, opts...), nil
}

func (s *Store) set(txn *badgerdb.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

func (s *Store) get(txn *badgerdb.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return tunegate.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

// Payment channel methods

func (s *Store) CreateChannel(_ context.Context, c *channel.Channel) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		key := channelKeyPrefix + c.ID.String()
		if _, err := txn.Get([]byte(key)); err == nil {
			return tunegate.ErrAlreadyExists
		}
		if err := s.set(txn, key, c); err != nil {
			return err
		}
		if c.Status == channel.StatusActive {
			return txn.Set([]byte(activeKeyPrefix+c.UserID), []byte(c.ID.String()))
		}
		return nil
	})
}

func (s *Store) GetChannel(_ context.Context, channelID id.ChannelID) (*channel.Channel, error) {
	var c channel.Channel
	err := s.db.View(func(txn *badgerdb.Txn) error {
		return s.get(txn, channelKeyPrefix+channelID.String(), &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ActiveChannel(_ context.Context, userID string) (*channel.Channel, error) {
	var c channel.Channel
	found := false

	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(activeKeyPrefix + userID))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get active channel mapping: %w", err)
		}

		var channelID string
		if err := item.Value(func(val []byte) error {
			channelID = string(val)
			return nil
		}); err != nil {
			return err
		}

		if err := s.get(txn, channelKeyPrefix+channelID, &c); err != nil {
			if errors.Is(err, tunegate.ErrNotFound) {
				return nil // stale mapping
			}
			return err
		}
		found = c.Status == channel.StatusActive
		return nil
	})

	if err != nil || !found {
		return nil, err
	}
	return &c, nil
}

func (s *Store) UpdateChannel(_ context.Context, c *channel.Channel) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		key := channelKeyPrefix + c.ID.String()
		if _, err := txn.Get([]byte(key)); errors.Is(err, badgerdb.ErrKeyNotFound) {
			return tunegate.ErrNotFound
		} else if err != nil {
			return fmt.Errorf("get channel: %w", err)
		}
		if err := s.set(txn, key, c); err != nil {
			return err
		}

		activeKey := []byte(activeKeyPrefix + c.UserID)
		if c.Status == channel.StatusActive {
			return txn.Set(activeKey, []byte(c.ID.String()))
		}

		// Drop the active mapping only if it still points at this channel.
		item, err := txn.Get(activeKey)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var mapped string
		if err := item.Value(func(val []byte) error {
			mapped = string(val)
			return nil
		}); err != nil {
			return err
		}
		if mapped == c.ID.String() {
			return txn.Delete(activeKey)
		}
		return nil
	})
}

// Transaction methods

func (s *Store) CreateTransaction(_ context.Context, t *channel.Transaction) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return s.set(txn, txnKeyPrefix+t.UserID+":"+t.ID.String(), t)
	})
}

func (s *Store) ListTransactions(_ context.Context, userID string, since time.Time) ([]*channel.Transaction, error) {
	result := make([]*channel.Transaction, 0)

	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(txnKeyPrefix + userID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var t channel.Transaction
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &t)
			}); err != nil {
				return err
			}
			if t.Timestamp.Before(since) {
				continue
			}
			result = append(result, &t)
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return result, nil
}

// Pending queue methods

func (s *Store) AppendPending(_ context.Context, t *channel.Transaction) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return s.set(txn, pendingKeyPrefix+t.UserID+":"+t.ID.String(), t)
	})
}

func (s *Store) PendingQueue(_ context.Context, userID string) ([]*channel.Transaction, error) {
	result := make([]*channel.Transaction, 0)

	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(pendingKeyPrefix + userID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var t channel.Transaction
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &t)
			}); err != nil {
				return err
			}
			result = append(result, &t)
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return result, nil
}

func (s *Store) ClearPending(_ context.Context, userID string, txnIDs []id.TransactionID) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		for _, txnID := range txnIDs {
			key := []byte(pendingKeyPrefix + userID + ":" + txnID.String())
			if err := txn.Delete(key); err != nil && !errors.Is(err, badgerdb.ErrKeyNotFound) {
				return fmt.Errorf("clear pending: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) PendingUsers(_ context.Context) ([]string, error) {
	seen := make(map[string]struct{})

	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(pendingKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			rest := key[len(pendingKeyPrefix):]
			for i := len(rest) - 1; i >= 0; i-- {
				if rest[i] == ':' {
					seen[rest[:i]] = struct{}{}
					break
				}
			}
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("scan pending users: %w", err)
	}

	users := make([]string, 0, len(seen))
	for userID := range seen {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users, nil
}

// Settlement batch methods

func (s *Store) CreateBatch(_ context.Context, b *batch.Batch) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		key := batchKeyPrefix + b.ID.String()
		if _, err := txn.Get([]byte(key)); err == nil {
			return tunegate.ErrAlreadyExists
		}
		if err := s.set(txn, key, b); err != nil {
			return err
		}
		userKey := batchUserKeyPrefix + b.UserID + ":" + b.ID.String()
		return txn.Set([]byte(userKey), []byte(b.ID.String()))
	})
}

func (s *Store) UpdateBatch(_ context.Context, b *batch.Batch) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		key := batchKeyPrefix + b.ID.String()
		if _, err := txn.Get([]byte(key)); errors.Is(err, badgerdb.ErrKeyNotFound) {
			return tunegate.ErrNotFound
		} else if err != nil {
			return fmt.Errorf("get batch: %w", err)
		}
		return s.set(txn, key, b)
	})
}

func (s *Store) GetBatch(_ context.Context, batchID id.BatchID) (*batch.Batch, error) {
	var b batch.Batch
	err := s.db.View(func(txn *badgerdb.Txn) error {
		return s.get(txn, batchKeyPrefix+batchID.String(), &b)
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) ListBatches(_ context.Context, userID string) ([]*batch.Batch, error) {
	result := make([]*batch.Batch, 0)

	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(batchUserKeyPrefix + userID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var batchID string
			if err := it.Item().Value(func(val []byte) error {
				batchID = string(val)
				return nil
			}); err != nil {
				return err
			}

			var b batch.Batch
			if err := s.get(txn, batchKeyPrefix+batchID, &b); err != nil {
				if errors.Is(err, tunegate.ErrNotFound) {
					continue
				}
				return err
			}
			result = append(result, &b)
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return result, nil
}

// Balance history methods

func (s *Store) RecordBalanceEvent(_ context.Context, userID string, e batch.BalanceEvent) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		key := balanceKeyPrefix + userID

		var events []batch.BalanceEvent
		if err := s.get(txn, key, &events); err != nil && !errors.Is(err, tunegate.ErrNotFound) {
			return err
		}

		events = append(events, e)
		if len(events) > s.ringLimit {
			events = events[len(events)-s.ringLimit:]
		}
		return s.set(txn, key, events)
	})
}

func (s *Store) BalanceHistory(_ context.Context, userID string) ([]batch.BalanceEvent, error) {
	var events []batch.BalanceEvent
	err := s.db.View(func(txn *badgerdb.Txn) error {
		return s.get(txn, balanceKeyPrefix+userID, &events)
	})
	if errors.Is(err, tunegate.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Access right methods

func (s *Store) CreateRight(_ context.Context, r *access.Right) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return s.set(txn, rightKeyPrefix+r.UserID+":"+r.ID.String(), r)
	})
}

func (s *Store) ListRights(_ context.Context, userID string) ([]*access.Right, error) {
	result := make([]*access.Right, 0)

	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(rightKeyPrefix + userID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r access.Right
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return err
			}
			result = append(result, &r)
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("list rights: %w", err)
	}
	return result, nil
}

func (s *Store) ActiveRight(ctx context.Context, contentID, userID string) (*access.Right, error) {
	rights, err := s.ListRights(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var newest *access.Right
	for _, r := range rights {
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
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return s.set(txn, subKeyPrefix+status.UserID, status)
	})
}

func (s *Store) GetStatus(_ context.Context, userID string) (*subscription.Status, error) {
	var status subscription.Status
	err := s.db.View(func(txn *badgerdb.Txn) error {
		return s.get(txn, subKeyPrefix+userID, &status)
	})
	if errors.Is(err, tunegate.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// Error report methods

func (s *Store) CreateReport(_ context.Context, r *recovery.Report) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return s.set(txn, reportKeyPrefix+r.ID.String(), r)
	})
}

func (s *Store) UpdateReport(_ context.Context, r *recovery.Report) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		key := reportKeyPrefix + r.ID.String()
		if _, err := txn.Get([]byte(key)); errors.Is(err, badgerdb.ErrKeyNotFound) {
			return tunegate.ErrNotFound
		} else if err != nil {
			return fmt.Errorf("get report: %w", err)
		}
		return s.set(txn, key, r)
	})
}

func (s *Store) ListReports(_ context.Context, since time.Time) ([]*recovery.Report, error) {
	result := make([]*recovery.Report, 0)

	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(reportKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r recovery.Report
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return err
			}
			if r.Timestamp.Before(since) {
				continue
			}
			result = append(result, &r)
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return result, nil
}

// Core methods

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return tunegate.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }
