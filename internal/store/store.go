// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

// Package store persists pending outbound records, the last confirmed push
// token and the per-channel retry counters in BadgerDB.
//
// Key layout:
//
//	rec/<channel>/<hex(user tag)>/<created unix nanos, 20 digits>/<uuid>  -> Record JSON
//	tok/confirmed                                                          -> TokenPayload JSON
//	cnt/<channel>                                                          -> decimal retry counter
//
// Because creation time is encoded zero-padded in the key, a prefix scan
// returns one user's records for a channel oldest-first without decoding
// values. Every mutation runs in its own badger transaction.
package store

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/pushrelay/internal/logging"
	"github.com/tomtom215/pushrelay/internal/metrics"
	"github.com/tomtom215/pushrelay/internal/models"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store is closed")

	// ErrNotFound is returned when a record no longer exists.
	ErrNotFound = errors.New("record not found")

	// ErrCorrupt is returned when a stored value cannot be decoded. The
	// engine treats it as a fatal local error.
	ErrCorrupt = errors.New("store value is corrupt")

	// ErrInvalidRecord is returned by Insert for records missing a channel.
	ErrInvalidRecord = errors.New("invalid record")
)

const (
	prefixRecords  = "rec/"
	prefixToken    = "tok/"
	prefixCounters = "cnt/"

	keyConfirmedToken = prefixToken + "confirmed"
)

// Record is one pending outbound operation.
type Record struct {
	ID            string          `json:"id"`
	Channel       models.Channel  `json:"channel"`
	UserTag       string          `json:"user_tag"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	Attempts      int             `json:"attempts"`
	LastAttemptAt time.Time       `json:"last_attempt_at,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
}

// NewRecord builds an unsaved record with payload encoded as JSON.
func NewRecord(channel models.Channel, userTag string, payload interface{}) (*Record, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Record{Channel: channel, UserTag: userTag, Payload: raw}, nil
}

// DecodePayload unmarshals the payload into v.
func (r *Record) DecodePayload(v interface{}) error {
	return json.Unmarshal(r.Payload, v)
}

func (r *Record) key() []byte {
	return []byte(userPrefix(r.Channel, r.UserTag) +
		fmt.Sprintf("%020d/", r.CreatedAt.UnixNano()) + r.ID)
}

func channelPrefix(ch models.Channel) string {
	return prefixRecords + string(ch) + "/"
}

func userPrefix(ch models.Channel, userTag string) string {
	return channelPrefix(ch) + hex.EncodeToString([]byte(userTag)) + "/"
}

// createdFromKey extracts the creation time encoded in a record key.
func createdFromKey(key []byte) (time.Time, bool) {
	parts := strings.Split(string(key), "/")
	if len(parts) != 5 {
		return time.Time{}, false
	}
	nanos, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, nanos).UTC(), true
}

// Store is the badger-backed record store.
type Store struct {
	db     *badger.DB
	config Config

	mu          sync.RWMutex
	closed      bool
	lastCreated time.Time
}

// Open opens (or creates) the store described by cfg.
func Open(cfg *Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
		opts.SyncWrites = cfg.SyncWrites
	}
	if cfg.Compression {
		opts.Compression = options.Snappy
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("record store opened")

	return &Store{db: db, config: *cfg}, nil
}

// OpenInMemory opens a throwaway store, mainly for tests.
func OpenInMemory() (*Store, error) {
	cfg := DefaultConfig()
	cfg.InMemory = true
	cfg.Path = ""
	return Open(&cfg)
}

func (s *Store) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// nextCreatedAt returns a strictly increasing timestamp so that two records
// inserted within the same clock tick keep their insertion order.
func (s *Store) nextCreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if !now.After(s.lastCreated) {
		now = s.lastCreated.Add(time.Nanosecond)
	}
	s.lastCreated = now
	return now
}

// Insert assigns an ID and creation time to rec and persists it with zero attempts.
func (s *Store) Insert(ctx context.Context, rec *Record) (*Record, error) {
	defer observe("insert", time.Now())

	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	if rec == nil || !rec.Channel.Valid() {
		return nil, ErrInvalidRecord
	}

	saved := *rec
	saved.ID = uuid.New().String()
	saved.CreatedAt = s.nextCreatedAt()
	saved.Attempts = 0
	saved.LastAttemptAt = time.Time{}
	saved.LastError = ""

	data, err := json.Marshal(&saved)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(saved.key(), data)
	}); err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}
	return &saved, nil
}

// FetchAll returns the user's pending records for a channel, oldest first.
func (s *Store) FetchAll(ctx context.Context, channel models.Channel, userTag string) ([]*Record, error) {
	defer observe("fetch", time.Now())

	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}

	var records []*Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(userPrefix(channel, userTag))
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var rec Record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("%w: key %s: %v", ErrCorrupt, item.Key(), err)
			}
			records = append(records, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s records: %w", channel, err)
	}
	return records, nil
}

// Delete removes rec. It reports false when the record was already gone.
func (s *Store) Delete(ctx context.Context, rec *Record) (bool, error) {
	defer observe("delete", time.Now())

	if err := s.checkOpen(ctx); err != nil {
		return false, err
	}

	var existed bool
	err := s.db.Update(func(txn *badger.Txn) error {
		key := rec.key()
		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		existed = true
		return txn.Delete(key)
	})
	if err != nil {
		return false, fmt.Errorf("delete record %s: %w", rec.ID, err)
	}
	return existed, nil
}

// IncrementAttempts bumps the stored attempt counter of rec and records the
// failure. It returns the new count and updates rec in place.
func (s *Store) IncrementAttempts(ctx context.Context, rec *Record, lastErr string) (int, error) {
	defer observe("increment", time.Now())

	if err := s.checkOpen(ctx); err != nil {
		return 0, err
	}

	var updated Record
	err := s.db.Update(func(txn *badger.Txn) error {
		key := rec.key()
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &updated)
		}); err != nil {
			return fmt.Errorf("%w: key %s: %v", ErrCorrupt, key, err)
		}

		updated.Attempts++
		updated.LastAttemptAt = time.Now().UTC()
		updated.LastError = lastErr

		data, err := json.Marshal(&updated)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return 0, fmt.Errorf("increment attempts %s: %w", rec.ID, err)
	}

	rec.Attempts = updated.Attempts
	rec.LastAttemptAt = updated.LastAttemptAt
	rec.LastError = updated.LastError
	return updated.Attempts, nil
}

// PurgeStale deletes every record of the channel, for any user, created
// before the cutoff. It returns the number of records removed.
func (s *Store) PurgeStale(ctx context.Context, channel models.Channel, before time.Time) (int, error) {
	defer observe("purge", time.Now())

	if err := s.checkOpen(ctx); err != nil {
		return 0, err
	}

	var purged int
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		var stale [][]byte
		prefix := []byte(channelPrefix(channel))
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			created, ok := createdFromKey(it.Item().Key())
			if ok && created.Before(before) {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		it.Close()

		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
			purged++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge stale %s records: %w", channel, err)
	}
	return purged, nil
}

// Count returns the number of pending records of a channel across all users.
func (s *Store) Count(ctx context.Context, channel models.Channel) (int, error) {
	if err := s.checkOpen(ctx); err != nil {
		return 0, err
	}

	var n int
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(channelPrefix(channel))
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count %s records: %w", channel, err)
	}
	return n, nil
}

// ConfirmedToken returns the token last accepted by the server, or nil.
func (s *Store) ConfirmedToken(ctx context.Context) (*models.TokenPayload, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}

	var tok *models.TokenPayload
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyConfirmedToken))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		tok = &models.TokenPayload{}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, tok)
		}); err != nil {
			return fmt.Errorf("%w: confirmed token: %v", ErrCorrupt, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read confirmed token: %w", err)
	}
	return tok, nil
}

// SetConfirmedToken records tok as the token the server knows about.
func (s *Store) SetConfirmedToken(ctx context.Context, tok *models.TokenPayload) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyConfirmedToken), data)
	})
}

// ClearConfirmedToken forgets the confirmed token.
func (s *Store) ClearConfirmedToken(ctx context.Context) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyConfirmedToken))
	})
}

// RetryCount returns the channel's persisted backoff counter.
func (s *Store) RetryCount(ctx context.Context, channel models.Channel) (int, error) {
	if err := s.checkOpen(ctx); err != nil {
		return 0, err
	}

	var n int
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixCounters + string(channel)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v, perr := strconv.Atoi(string(val))
			if perr != nil {
				return fmt.Errorf("%w: retry counter %s: %v", ErrCorrupt, channel, perr)
			}
			n = v
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("read retry counter: %w", err)
	}
	return n, nil
}

// SetRetryCount persists the channel's backoff counter.
func (s *Store) SetRetryCount(ctx context.Context, channel models.Channel, n int) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixCounters+string(channel)), []byte(strconv.Itoa(n)))
	})
}

// Clear wipes all records, token state and retry counters.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}

	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for _, p := range []string{prefixRecords, prefixToken, prefixCounters} {
			prefix := []byte(p)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear store: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("clear store: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}

	logging.Info().Int("keys", len(keys)).Msg("record store cleared")
	return nil
}

// RunGC runs badger value-log garbage collection until nothing is left to
// rewrite. In-memory stores have no value log and return nil.
func (s *Store) RunGC() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if s.config.InMemory {
		return nil
	}

	for rewrites := 0; ; rewrites++ {
		err := s.db.RunValueLogGC(s.config.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			if rewrites > 0 {
				logging.Debug().Int("rewrites", rewrites).Msg("record store value log compacted")
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("value log gc: %w", err)
		}
	}
}

// Close flushes and closes the database, bounded by CloseTimeout.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	timeout := s.config.CloseTimeout
	s.mu.Unlock()

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("record store closed")
		return nil
	case <-time.After(timeout):
		logging.Warn().Dur("timeout", timeout).Msg("BadgerDB close timed out")
		return fmt.Errorf("badgerdb close timeout after %v", timeout)
	}
}

func observe(op string, start time.Time) {
	metrics.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
