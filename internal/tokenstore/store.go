// Package tokenstore caches the upstream bearer token and the serialized
// profile per browser session in Redis. It is a passive collaborator: no
// validation, no business rules, and every storage failure degrades to
// "no stored credentials" so the worst outcome is a fresh login.
package tokenstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/barkeep-app/barkeep/internal/session"
)

// Store implements session.TokenStore on Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New constructs a Store. Entries share the browser session TTL so
// credentials never outlive the session that keys them.
func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, ttl: ttl, logger: logger}
}

func tokenKey(browserID string) string { return "authtok:" + browserID }
func userKey(browserID string) string  { return "authusr:" + browserID }

// Save writes the token and profile together. Side effect only; failures
// are logged and swallowed.
func (s *Store) Save(ctx context.Context, browserID, token string, user session.Profile) {
	data, err := json.Marshal(user)
	if err != nil {
		s.logger.Warn("marshal cached profile", slog.Any("error", err))
		return
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, tokenKey(browserID), token, s.ttl)
	pipe.Set(ctx, userKey(browserID), data, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("save credentials", slog.Any("error", err))
	}
}

// Read returns whatever is present without interpreting validity. Any
// storage or decode failure reports absent.
func (s *Store) Read(ctx context.Context, browserID string) (session.StoredCredentials, bool) {
	token, err := s.client.Get(ctx, tokenKey(browserID)).Result()
	if err != nil {
		return session.StoredCredentials{}, false
	}
	data, err := s.client.Get(ctx, userKey(browserID)).Bytes()
	if err != nil {
		return session.StoredCredentials{}, false
	}
	var user session.Profile
	if err := json.Unmarshal(data, &user); err != nil {
		return session.StoredCredentials{}, false
	}
	return session.StoredCredentials{Token: token, User: user}, true
}

// Clear removes both entries. Idempotent: clearing an empty store is a
// no-op success.
func (s *Store) Clear(ctx context.Context, browserID string) {
	if err := s.client.Del(ctx, tokenKey(browserID), userKey(browserID)).Err(); err != nil {
		s.logger.Warn("clear credentials", slog.Any("error", err))
	}
}

var _ session.TokenStore = (*Store)(nil)
