// Package lookup is the rate-limited, retrying client for the external person registry.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/oak/pkg/errors"
	"github.com/Ramsey-B/oak/pkg/identifier"
	"github.com/Ramsey-B/oak/pkg/metrics"
	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/normalizers"
	"github.com/Ramsey-B/oak/pkg/tracing"
)

const (
	DefaultTimeout           = 30 * time.Second
	DefaultRequestsPerMinute = 60
	DefaultMaxRetries        = 3
	DefaultRetryDelay        = 2 * time.Second
	DefaultTokenHeader       = "Authorization"

	// MaxResponseSize is the maximum response body size (10MB)
	MaxResponseSize = 10 * 1024 * 1024

	// MinNameLength is the shortest parent name accepted for a search.
	MinNameLength = 3
)

// Lookup is the registry contract consumed by the cache and the aggregator.
type Lookup interface {
	LookupByIdentifier(ctx context.Context, id string) (models.PersonRecord, error)
	LookupByParentName(ctx context.Context, role models.ParentRole, name string) ([]models.PersonRecord, error)
}

type Config struct {
	BaseURL     string
	Token       string
	TokenHeader string
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
}

func DefaultConfig() Config {
	return Config{
		TokenHeader: DefaultTokenHeader,
		Timeout:     DefaultTimeout,
		MaxRetries:  DefaultMaxRetries,
		RetryDelay:  DefaultRetryDelay,
	}
}

type Client struct {
	client  *http.Client
	cfg     Config
	limiter RateLimiter
	logger  ectologger.Logger
}

// NewClient creates a registry client. A nil limiter disables rate limiting.
func NewClient(cfg Config, limiter RateLimiter, logger ectologger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.TokenHeader == "" {
		cfg.TokenHeader = DefaultTokenHeader
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		client:  &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		limiter: limiter,
		logger:  logger,
	}
}

// LookupByIdentifier fetches one person record. The identifier is validated
// before any network call.
func (c *Client) LookupByIdentifier(ctx context.Context, id string) (models.PersonRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "lookup.Client.LookupByIdentifier")
	defer span.End()

	normalized, err := identifier.Validate(id)
	if err != nil {
		return models.PersonRecord{}, err
	}

	body, err := c.get(ctx, "identifier", fmt.Sprintf("%s/cpf/%s", c.cfg.BaseURL, normalized))
	if err != nil {
		tracing.RecordError(ctx, err)
		return models.PersonRecord{}, err
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil || data == nil {
		return models.PersonRecord{}, errors.NewUpstream(http.StatusBadGateway, "malformed identifier response")
	}
	return models.NewPersonRecord(data), nil
}

// LookupByParentName searches for persons whose mother or father has the given name.
func (c *Client) LookupByParentName(ctx context.Context, role models.ParentRole, name string) ([]models.PersonRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "lookup.Client.LookupByParentName")
	defer span.End()

	path, err := rolePath(role)
	if err != nil {
		return nil, err
	}
	query, err := SearchName(name)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/%s?nome=%s", c.cfg.BaseURL, path, url.QueryEscape(query))
	body, err := c.get(ctx, "parent_"+string(role), endpoint)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	records, err := decodeRecordList(body)
	if err != nil {
		return nil, errors.NewUpstream(http.StatusBadGateway, "malformed parent search response")
	}
	return records, nil
}

func rolePath(role models.ParentRole) (string, error) {
	switch role {
	case models.ParentRoleMother:
		return "mae", nil
	case models.ParentRoleFather:
		return "pai", nil
	default:
		return "", errors.NewInvalidInput("role", string(role), "role must be mother or father")
	}
}

// SearchName validates a parent name and returns the form sent upstream.
func SearchName(name string) (string, error) {
	normalized := normalizers.NormalizeName(name)
	if utf8.RuneCountInString(normalized) < MinNameLength {
		return "", errors.NewInvalidInput("name", name, "name must have at least %d characters", MinNameLength)
	}
	return normalizers.CollapseWhitespace(strings.ToUpper(name)), nil
}

// decodeRecordList accepts a bare array or an object wrapping it under "resultados".
func decodeRecordList(body []byte) ([]models.PersonRecord, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case map[string]any:
		list, ok := v["resultados"]
		if !ok || list == nil {
			return []models.PersonRecord{}, nil
		}
		if items, ok = list.([]any); !ok {
			return nil, fmt.Errorf("resultados is %T", list)
		}
	case nil:
		return []models.PersonRecord{}, nil
	default:
		return nil, fmt.Errorf("unexpected body %T", raw)
	}

	records := make([]models.PersonRecord, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			records = append(records, models.NewPersonRecord(m))
		}
	}
	return records, nil
}

// get performs a GET with rate limiting and retries on server-class responses.
func (c *Client) get(ctx context.Context, op, endpoint string) ([]byte, error) {
	var lastErr *errors.UpstreamError

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.cfg.RetryDelay); err != nil {
				return nil, err
			}
		}

		if c.limiter != nil {
			waitStart := time.Now()
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			metrics.RateLimitWaitTime.Observe(time.Since(waitStart).Seconds())
		}

		status, body, err := c.do(ctx, op, endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.NewNoResponse(op, err)
		}

		if status >= 200 && status < 300 {
			return body, nil
		}

		lastErr = errors.NewUpstream(status, upstreamMessage(body))
		lastErr.Attempts = attempt + 1
		if !lastErr.Retryable() {
			return nil, lastErr
		}

		c.logger.WithContext(ctx).WithFields(map[string]any{
			"operation": op,
			"status":    status,
			"attempt":   attempt + 1,
		}).Warnf("Registry returned %d, retrying", status)
	}

	return nil, lastErr
}

func (c *Client) do(ctx context.Context, op, endpoint string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set(c.cfg.TokenHeader, c.cfg.Token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.RecordLookup(op, "error", time.Since(start).Seconds())
		c.logger.WithContext(ctx).WithError(err).Errorf("Registry request failed: %s", op)
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > MaxResponseSize {
		return resp.StatusCode, nil, fmt.Errorf("response body too large: %d bytes (max %d)", len(body), MaxResponseSize)
	}

	duration := time.Since(start)
	metrics.RecordLookup(op, strconv.Itoa(resp.StatusCode), duration.Seconds())
	c.logger.WithContext(ctx).Debugf("Registry %s -> %d (%s)", op, resp.StatusCode, duration)

	return resp.StatusCode, body, nil
}

// upstreamMessage extracts the registry's error message from a JSON body.
func upstreamMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return msg
	}
	for _, key := range []string{"message", "mensagem", "erro", "error"} {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
