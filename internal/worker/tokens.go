package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/brandstamp/brandstamp/internal/logger"
	"github.com/redis/go-redis/v9"
)

type tokenQuerier interface {
	GetAccessToken(ctx context.Context, shop string) (string, error)
}

// CachedTokenSource fronts the credential store with a short-TTL Redis
// cache so repeated jobs for the same shop skip the database read. Cache
// failures degrade to a direct read, never to a job failure.
type CachedTokenSource struct {
	queries tokenQuerier
	client  *redis.Client
	ttl     time.Duration
}

var _ TokenSource = (*CachedTokenSource)(nil)

func NewCachedTokenSource(queries tokenQuerier, client *redis.Client, ttl time.Duration) *CachedTokenSource {
	return &CachedTokenSource{queries: queries, client: client, ttl: ttl}
}

func (s *CachedTokenSource) Get(ctx context.Context, shop string) (string, error) {
	log := logger.FromContext(ctx)
	key := "catalog_token:" + shop

	if s.client != nil {
		token, err := s.client.Get(ctx, key).Result()
		if err == nil && token != "" {
			return token, nil
		}
		if err != nil && err != redis.Nil {
			log.Warn("token cache read failed", "shop", shop, "error", err)
		}
	}

	token, err := s.queries.GetAccessToken(ctx, shop)
	if err != nil {
		return "", fmt.Errorf("access token for %s: %w", shop, err)
	}

	if s.client != nil {
		if err := s.client.Set(ctx, key, token, s.ttl).Err(); err != nil {
			log.Warn("token cache write failed", "shop", shop, "error", err)
		}
	}
	return token, nil
}

// StaticTokenSource returns a fixed token. Used in tests.
type StaticTokenSource string

func (s StaticTokenSource) Get(ctx context.Context, shop string) (string, error) {
	return string(s), nil
}
