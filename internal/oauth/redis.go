// internal/oauth/redis.go
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisGrantStore keeps protocol state in redis. GETDEL makes redemption a
// single round trip and atomic: concurrent redeemers of one key race and
// only one sees the value.
type redisGrantStore struct {
	rdb *redis.Client
}

func NewRedisGrantStore(rdb *redis.Client) GrantStore {
	return &redisGrantStore{rdb: rdb}
}

const (
	codePrefix    = "oauth:code:"
	refreshPrefix = "oauth:refresh:"
	pendingPrefix = "oauth:pending:"
	revokedPrefix = "oauth:revoked:"
)

func (s *redisGrantStore) SaveCode(ctx context.Context, g Grant, ttl time.Duration) error {
	b, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, codePrefix+g.Code, b, ttl).Err()
}

func (s *redisGrantStore) RedeemCode(ctx context.Context, code string) (*Grant, error) {
	b, err := s.rdb.GetDel(ctx, codePrefix+code).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrGrantNotFound
	}
	if err != nil {
		return nil, err
	}
	var g Grant
	if err := json.Unmarshal(b, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *redisGrantStore) SaveRefresh(ctx context.Context, g RefreshGrant, ttl time.Duration) error {
	b, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, refreshPrefix+g.Token, b, ttl).Err()
}

func (s *redisGrantStore) RedeemRefresh(ctx context.Context, tok string) (*RefreshGrant, error) {
	b, err := s.rdb.GetDel(ctx, refreshPrefix+tok).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrGrantNotFound
	}
	if err != nil {
		return nil, err
	}
	var g RefreshGrant
	if err := json.Unmarshal(b, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *redisGrantStore) SavePending(ctx context.Context, p PendingRequest, ttl time.Duration) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, pendingPrefix+p.ID, b, ttl).Err()
}

func (s *redisGrantStore) TakePending(ctx context.Context, id string) (*PendingRequest, error) {
	b, err := s.rdb.GetDel(ctx, pendingPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrGrantNotFound
	}
	if err != nil {
		return nil, err
	}
	var p PendingRequest
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *redisGrantStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	return s.rdb.Set(ctx, revokedPrefix+jti, "1", ttl).Err()
}

func (s *redisGrantStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.rdb.Exists(ctx, revokedPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
