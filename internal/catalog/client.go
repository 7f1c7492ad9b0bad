// Package catalog is the client for the commerce platform's GraphQL admin
// API: product listing, media management, staged uploads, and variant
// image assignment. Calls are paced by a shared per-shop rate limiter and
// failures are classified so the queue can tell transient from permanent.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brandstamp/brandstamp/internal/apperror"
	"github.com/brandstamp/brandstamp/internal/logger"
	"github.com/brandstamp/brandstamp/internal/metrics"
)

// API is the surface the job pipeline consumes. Implemented by Client and
// by test doubles.
type API interface {
	ListProductIDs(ctx context.Context, cursor string) (Page, error)
	ListCollectionProductIDs(ctx context.Context, collectionID, cursor string) (Page, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	CreateStagedUploads(ctx context.Context, inputs []StagedUploadInput) ([]StagedTarget, error)
	UploadToTarget(ctx context.Context, target StagedTarget, filename string, body io.Reader) error
	CreateProductMedia(ctx context.Context, productID string, media []NewMedia) ([]Media, error)
	DeleteProductMedia(ctx context.Context, productID string, mediaIDs []string) error
	ReorderProductMedia(ctx context.Context, productID string, moves []MediaMove) error
	AssignVariantMedia(ctx context.Context, productID string, variantIDs []string, mediaID string) error
	GetMediaStatus(ctx context.Context, mediaID string) (MediaStatus, error)
}

// Limiter gates one API call per Wait.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// NopLimiter performs no pacing. Used in tests.
type NopLimiter struct{}

func (NopLimiter) Wait(ctx context.Context, key string) error { return ctx.Err() }

const (
	// stagedUploadBatchLimit is the platform maximum for upload targets
	// requested in one call.
	stagedUploadBatchLimit = 25

	// mediaCreateBatchLimit is the platform maximum for media attached in
	// one call. Exceeding it silently truncates on some API versions, so
	// batching here is mandatory, not an optimization.
	mediaCreateBatchLimit = 10
)

var _ API = (*Client)(nil)

type Client struct {
	httpClient   *http.Client
	uploadClient *http.Client
	endpoint     string
	shop         string
	token        string
	limiter      Limiter
	pageSize     int
}

type ClientConfig struct {
	BaseURL    string // e.g. https://%s/admin/api
	APIVersion string
	Shop       string
	Token      string
	Limiter    Limiter
	Timeout    time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NopLimiter{}
	}

	base := cfg.BaseURL
	if strings.Contains(base, "%s") {
		base = fmt.Sprintf(base, cfg.Shop)
	}

	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		uploadClient: &http.Client{Timeout: 5 * time.Minute},
		endpoint:     fmt.Sprintf("%s/%s/graphql.json", strings.TrimRight(base, "/"), cfg.APIVersion),
		shop:         cfg.Shop,
		token:        cfg.Token,
		limiter:      limiter,
		pageSize:     250,
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// do executes one GraphQL call and decodes data into out.
func (c *Client) do(ctx context.Context, operation, query string, variables map[string]any, out any) error {
	if err := c.limiter.Wait(ctx, "catalog:"+c.shop); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	log := logger.FromContext(ctx)
	start := time.Now()

	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Access-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.CatalogCallsTotal.WithLabelValues(operation, "network_error").Inc()
		return apperror.Wrap(fmt.Errorf("%s: %w", operation, err), apperror.ErrPlatformUnavailable)
	}
	defer func() { _ = resp.Body.Close() }()

	metrics.CatalogCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		metrics.CatalogCallsTotal.WithLabelValues(operation, "throttled").Inc()
		return apperror.Wrap(fmt.Errorf("%s: status 429", operation), apperror.ErrThrottled)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		metrics.CatalogCallsTotal.WithLabelValues(operation, "unauthorized").Inc()
		return apperror.Wrap(fmt.Errorf("%s: status %d", operation, resp.StatusCode), apperror.ErrUnauthorized)
	case resp.StatusCode >= 500:
		metrics.CatalogCallsTotal.WithLabelValues(operation, "server_error").Inc()
		return apperror.Wrap(fmt.Errorf("%s: status %d", operation, resp.StatusCode), apperror.ErrPlatformUnavailable)
	case resp.StatusCode != http.StatusOK:
		metrics.CatalogCallsTotal.WithLabelValues(operation, "client_error").Inc()
		return fmt.Errorf("%s: unexpected status %d", operation, resp.StatusCode)
	}

	var envelope graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}

	if len(envelope.Errors) > 0 {
		for _, gqlErr := range envelope.Errors {
			if gqlErr.Extensions.Code == "THROTTLED" {
				metrics.CatalogCallsTotal.WithLabelValues(operation, "throttled").Inc()
				return apperror.Wrap(fmt.Errorf("%s: %s", operation, gqlErr.Message), apperror.ErrThrottled)
			}
		}
		metrics.CatalogCallsTotal.WithLabelValues(operation, "graphql_error").Inc()
		return fmt.Errorf("%s: graphql errors: %s", operation, envelope.Errors[0].Message)
	}

	metrics.CatalogCallsTotal.WithLabelValues(operation, "ok").Inc()
	log.Debug("catalog call completed", "operation", operation, "duration_ms", time.Since(start).Milliseconds())

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode %s data: %w", operation, err)
		}
	}
	return nil
}

// userErrorsToErr converts platform mutation userErrors into a permanent
// classified error.
func userErrorsToErr(operation string, userErrors []userError) error {
	if len(userErrors) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(userErrors))
	for _, ue := range userErrors {
		msgs = append(msgs, ue.Message)
	}
	return apperror.Wrap(
		fmt.Errorf("%s: %s", operation, strings.Join(msgs, "; ")),
		apperror.ErrUserErrors,
	)
}

type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}
