// Package health reports readiness of the worker's backing services: the
// job database, the queue broker's Redis, and the archive store.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type StorageHealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

type ComponentHealth struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Latency int64  `json:"latency_ms"`
	Error   string `json:"error,omitempty"`
}

type Response struct {
	Status     Status            `json:"status"`
	Components []ComponentHealth `json:"components,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

type Checker struct {
	pool    *pgxpool.Pool
	redis   *redis.Client
	storage StorageHealthChecker
}

func NewChecker(pool *pgxpool.Pool, redisClient *redis.Client) *Checker {
	return &Checker{pool: pool, redis: redisClient}
}

func (c *Checker) WithStorage(s StorageHealthChecker) *Checker {
	c.storage = s
	return c
}

// CheckAll probes every configured backend concurrently. A worker that
// cannot reach one of them must not be marked ready, since jobs would
// start and immediately fail.
func (c *Checker) CheckAll(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	components := make([]ComponentHealth, 0, 3)

	probe := func(name string, check func(context.Context) error) {
		defer wg.Done()
		start := time.Now()
		err := check(ctx)
		comp := ComponentHealth{
			Name:    name,
			Status:  StatusHealthy,
			Latency: time.Since(start).Milliseconds(),
		}
		if err != nil {
			comp.Status = StatusUnhealthy
			comp.Error = err.Error()
		}
		mu.Lock()
		components = append(components, comp)
		mu.Unlock()
	}

	if c.pool != nil {
		wg.Add(1)
		go probe("database", c.pool.Ping)
	}
	if c.redis != nil {
		wg.Add(1)
		go probe("redis", func(ctx context.Context) error {
			return c.redis.Ping(ctx).Err()
		})
	}
	if c.storage != nil {
		wg.Add(1)
		go probe("archive_storage", c.storage.HealthCheck)
	}

	wg.Wait()

	status := StatusHealthy
	for _, comp := range components {
		if comp.Status == StatusUnhealthy {
			status = StatusUnhealthy
			break
		}
	}

	return Response{
		Status:     status,
		Components: components,
		Timestamp:  time.Now(),
	}
}

func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}
}

func ReadinessHandler(checker *Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := checker.CheckAll(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
