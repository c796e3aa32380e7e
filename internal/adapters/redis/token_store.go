// Package redis provides Redis-based adapters for the portal core.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swachh/portal-core/internal/data/cryptoutil"
	domainauth "github.com/swachh/portal-core/internal/domain/auth"
	"github.com/swachh/portal-core/internal/ports"
)

var _ ports.TokenStore = (*TokenStore)(nil)

const defaultTokenTTL = 24 * time.Hour

// TokenStore is a Redis-based store for portal client token handles.
// TTL follows the session's ExpiresAt; sessions without expiry use the fallback TTL.
type TokenStore struct {
	client      redis.UniversalClient
	prefix      string
	fallbackTTL time.Duration
	sealer      cryptoutil.Sealer
	now         func() time.Time
}

// TokenStoreOptions configures a TokenStore.
type TokenStoreOptions struct {
	Prefix      string        // default "portal:token:"
	FallbackTTL time.Duration // default 24h
	// Sealer protects stored handles; values are bound to their client id.
	// Default stores them unencrypted.
	Sealer cryptoutil.Sealer
	Clock  func() time.Time
}

// NewTokenStore creates a new Redis-based token store.
func NewTokenStore(client redis.UniversalClient, opts TokenStoreOptions) *TokenStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "portal:token:"
	}
	ttl := opts.FallbackTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	sealer := opts.Sealer
	if sealer == nil {
		sealer = cryptoutil.Plain{}
	}
	return &TokenStore{client: client, prefix: prefix, fallbackTTL: ttl, sealer: sealer, now: now}
}

func (s *TokenStore) Save(ctx context.Context, clientID string, sess domainauth.Session) error {
	if clientID == "" {
		return errors.New("client ID cannot be empty")
	}

	ttl := s.fallbackTTL
	if !sess.ExpiresAt.IsZero() {
		ttl = sess.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			return errors.New("session is expired")
		}
	}

	// Only the handle and the identity snapshot are persisted.
	sess.IsRestoring = false
	sess.Seq = 0
	sess.SelectedRole = domainauth.RoleAnonymous
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	sealed, err := s.sealer.Seal(data, clientID)
	if err != nil {
		return fmt.Errorf("seal session: %w", err)
	}
	return s.client.Set(ctx, s.prefix+clientID, sealed, ttl).Err()
}

func (s *TokenStore) Load(ctx context.Context, clientID string) (domainauth.Session, error) {
	if clientID == "" {
		return domainauth.Session{}, ports.ErrNoSession
	}

	raw, err := s.client.Get(ctx, s.prefix+clientID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, ports.ErrNoSession
		}
		return domainauth.Session{}, fmt.Errorf("redis get: %w", err)
	}

	sess, err := s.decode(raw, clientID)
	if err != nil {
		return domainauth.Session{}, err
	}

	if !sess.ExpiresAt.IsZero() && s.now().After(sess.ExpiresAt) {
		if deleteErr := s.Delete(ctx, clientID); deleteErr != nil {
			return domainauth.Session{}, fmt.Errorf("cleanup expired token: %w", deleteErr)
		}
		return domainauth.Session{}, ports.ErrNoSession
	}
	return sess, nil
}

func (s *TokenStore) Delete(ctx context.Context, clientID string) error {
	if clientID == "" {
		return nil
	}
	return s.client.Del(ctx, s.prefix+clientID).Err()
}

// StoredHandle is one persisted token handle as seen by operators.
type StoredHandle struct {
	ClientID string
	Session  domainauth.Session
	TTL      time.Duration
}

// List scans up to limit persisted handles. Unreadable entries are skipped.
func (s *TokenStore) List(ctx context.Context, limit int) ([]StoredHandle, error) {
	if limit <= 0 {
		limit = 100
	}
	out := make([]StoredHandle, 0, min(limit, 64))
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) && len(out) < limit {
		key := iter.Val()
		clientID := key[len(s.prefix):]
		raw, err := s.client.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("redis get %s: %w", key, err)
		}
		sess, err := s.decode(raw, clientID)
		if err != nil {
			continue
		}
		ttl, err := s.client.TTL(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("redis ttl %s: %w", key, err)
		}
		out = append(out, StoredHandle{
			ClientID: clientID,
			Session:  sess,
			TTL:      ttl,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return out, nil
}

func (s *TokenStore) decode(raw, clientID string) (domainauth.Session, error) {
	data, err := s.sealer.Open(raw, clientID)
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("open session: %w", err)
	}
	var sess domainauth.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return sess, nil
}
