package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/terminal-bench/remitter/internal/remitter"
)

const (
	stateCacheKey = "remitter:state"
	stateCacheTTL = 5 * time.Second

	idempotencyPrefix = "remitter:idem:"
	idempotencyTTL    = 24 * time.Hour
)

// cachedState returns the ledger state snapshot, served from Redis when a
// fresh copy is cached. Without Redis it falls through to the ledger.
func (s *Server) cachedState(ctx context.Context) remitter.State {
	if s.rdb == nil {
		return s.ledger.ViewState()
	}

	raw, err := s.rdb.Get(ctx, stateCacheKey).Bytes()
	if err == nil {
		var state remitter.State
		if json.Unmarshal(raw, &state) == nil {
			return state
		}
	}

	state := s.ledger.ViewState()
	if data, err := json.Marshal(state); err == nil {
		s.rdb.Set(ctx, stateCacheKey, data, stateCacheTTL)
	}
	return state
}

// invalidateState drops the cached snapshot after a mutating operation
func (s *Server) invalidateState(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	s.rdb.Del(ctx, stateCacheKey)
}

// claimIdempotencyKey records a client-supplied Idempotency-Key. Returns
// false when the key was already used, meaning the request is a replay.
func (s *Server) claimIdempotencyKey(ctx context.Context, key string) (bool, error) {
	if s.rdb == nil || key == "" {
		return true, nil
	}

	ok, err := s.rdb.SetNX(ctx, idempotencyPrefix+key, time.Now().Unix(), idempotencyTTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// releaseIdempotencyKey frees a key when the guarded operation failed, so
// the client can retry with the same key
func (s *Server) releaseIdempotencyKey(ctx context.Context, key string) {
	if s.rdb == nil || key == "" {
		return
	}
	s.rdb.Del(ctx, idempotencyPrefix+key)
}
