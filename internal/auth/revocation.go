// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/switchboard/internal/logging"
)

// Revocation errors
var (
	ErrTokenRevoked          = errors.New("auth: token revoked")
	ErrRevocationStoreClosed = errors.New("auth: revocation store is closed")
)

// RevocationEntry is the stored record for one revoked token.
type RevocationEntry struct {
	JTI          string    `json:"jti"`
	SubscriberID int64     `json:"sid"`
	RevokedAt    time.Time `json:"revoked_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// RevocationStore records revoked token ids until the token would have expired.
type RevocationStore interface {
	// Revoke marks a token id as revoked until expiresAt. Revoking an id that
	// has already passed expiresAt is a no-op.
	Revoke(ctx context.Context, entry RevocationEntry) error

	// IsRevoked reports whether jti is currently revoked.
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// Close releases resources held by the store.
	Close() error
}

// MemoryRevocationStore keeps revocations in process memory.
// Entries are lost on restart.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]RevocationEntry
	closed  bool
	now     func() time.Time
}

// NewMemoryRevocationStore creates an empty in-memory store.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{
		entries: make(map[string]RevocationEntry),
		now:     time.Now,
	}
}

// Revoke implements RevocationStore.
func (s *MemoryRevocationStore) Revoke(_ context.Context, entry RevocationEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrRevocationStoreClosed
	}
	now := s.now()
	if !entry.ExpiresAt.After(now) {
		return nil
	}
	if entry.RevokedAt.IsZero() {
		entry.RevokedAt = now
	}
	s.entries[entry.JTI] = entry

	// Sweep expired entries on write.
	for jti, e := range s.entries {
		if !e.ExpiresAt.After(now) {
			delete(s.entries, jti)
		}
	}
	RevocationStoreOperations.WithLabelValues("revoke", "success").Inc()
	return nil
}

// IsRevoked implements RevocationStore.
func (s *MemoryRevocationStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, ErrRevocationStoreClosed
	}
	e, ok := s.entries[jti]
	return ok && e.ExpiresAt.After(s.now()), nil
}

// Len returns the number of tracked entries, including expired ones not yet swept.
func (s *MemoryRevocationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close implements RevocationStore.
func (s *MemoryRevocationStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// BadgerRevocationStore persists revocations in BadgerDB.
// Entries are written with a TTL so badger drops them once the token expires.
type BadgerRevocationStore struct {
	db     *badger.DB
	prefix []byte
	ownsDB bool

	mu     sync.RWMutex
	closed bool
}

// NewBadgerRevocationStore wraps an already open BadgerDB.
// The caller keeps ownership of db.
func NewBadgerRevocationStore(db *badger.DB, prefix string) *BadgerRevocationStore {
	if prefix == "" {
		prefix = "revoked:"
	}
	return &BadgerRevocationStore{
		db:     db,
		prefix: []byte(prefix),
	}
}

// OpenBadgerRevocationStore opens a BadgerDB at path and returns a store that
// closes it on Close.
func OpenBadgerRevocationStore(path string) (*BadgerRevocationStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open revocation store at %s: %w", path, err)
	}
	s := NewBadgerRevocationStore(db, "")
	s.ownsDB = true
	return s, nil
}

func (s *BadgerRevocationStore) makeKey(jti string) []byte {
	key := make([]byte, 0, len(s.prefix)+len(jti))
	key = append(key, s.prefix...)
	return append(key, jti...)
}

// Revoke implements RevocationStore.
func (s *BadgerRevocationStore) Revoke(_ context.Context, entry RevocationEntry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrRevocationStoreClosed
	}

	now := time.Now()
	ttl := entry.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}
	if entry.RevokedAt.IsZero() {
		entry.RevokedAt = now
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(s.makeKey(entry.JTI), data).WithTTL(ttl))
	})
	if err != nil {
		RevocationStoreOperations.WithLabelValues("revoke", "failure").Inc()
		return fmt.Errorf("revoke %s: %w", entry.JTI, err)
	}

	RevocationStoreOperations.WithLabelValues("revoke", "success").Inc()
	logging.Info().
		Str("jti", entry.JTI).
		Int64("subscriber_id", entry.SubscriberID).
		Time("expires_at", entry.ExpiresAt).
		Msg("Token revoked")
	return nil
}

// IsRevoked implements RevocationStore.
func (s *BadgerRevocationStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrRevocationStoreClosed
	}

	var revoked bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(s.makeKey(jti))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		revoked = true
		return nil
	})
	if err != nil {
		RevocationStoreOperations.WithLabelValues("check", "failure").Inc()
		return false, err
	}
	if revoked {
		RevocationStoreOperations.WithLabelValues("check", "hit").Inc()
	}
	return revoked, nil
}

// RunGC reclaims value log space left behind by expired revocations. It
// rewrites files until badger reports nothing left to collect.
func (s *BadgerRevocationStore) RunGC(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrRevocationStoreClosed
	}

	for ctx.Err() == nil {
		err := s.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			RevocationStoreOperations.WithLabelValues("gc", "failure").Inc()
			return fmt.Errorf("revocation store gc: %w", err)
		}
		RevocationStoreOperations.WithLabelValues("gc", "success").Inc()
	}
	return ctx.Err()
}

// Close implements RevocationStore. The underlying DB is closed only when
// the store opened it.
func (s *BadgerRevocationStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
