// Package autotask implements the Autotask REST client: single GET
// requests, paginated query requests merged into one envelope, response
// caching, and a closed error taxonomy.
//
// The client never surfaces transport errors directly. Every failure is
// converted to an *APIError at the single request-execution point, so
// callers branch on a value instead of recovering from panics or
// inspecting wrapped transport types.
package autotask

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cduffy/autotask-mcp/internal/cache"
	"github.com/cduffy/autotask-mcp/internal/config"
	"github.com/cduffy/autotask-mcp/internal/redact"
)

// Client issues requests against the Autotask REST API. It is stateless
// beyond its configuration and safe for concurrent use; the cache it
// holds does its own locking.
type Client struct {
	cfg      *config.Config
	http     *http.Client
	cache    *cache.Cache
	cacheTTL time.Duration
	log      zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Tests use this
// to point at a local server; the default carries the configured
// per-request timeout.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithCache enables response caching through the given cache.
func WithCache(cc *cache.Cache) Option {
	return func(c *Client) { c.cache = cc }
}

// WithCacheTTL overrides the cache's default TTL for entries written
// by this client.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.cacheTTL = ttl }
}

// WithLogger sets the client's logger. The default discards output.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a Client for the given configuration.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches a single resource, e.g. "/Tickets/12345". Successful
// responses are cached under the endpoint.
func (c *Client) Get(ctx context.Context, endpoint string) (map[string]any, *APIError) {
	return c.request(ctx, http.MethodGet, endpoint, nil, true)
}

// Query posts a filter payload to endpoint+"/query" and follows the
// backend's pagination until the last page, merging all pages' items
// into one envelope.
//
// Page fetches bypass the cache; only the merged result is cached, and
// it is keyed by the original payload so a repeat of the same query is
// a single cache hit. Any page-level failure aborts the whole query:
// callers get a complete merged result or an error, never a truncated
// one.
func (c *Client) Query(ctx context.Context, endpoint string, payload map[string]any) (map[string]any, *APIError) {
	queryEndpoint := endpoint + "/query"

	var key string
	if c.cache != nil {
		key = cache.Key(http.MethodPost, queryEndpoint, payload)
		if cached, ok := c.cache.Get(key); ok {
			c.log.Info().Str("endpoint", endpoint).Msg("query cache hit")
			return cached, nil
		}
	}

	c.log.Info().Str("endpoint", endpoint).Msg("querying with pagination")

	allItems := []any{}
	pagePayload := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		pagePayload[k] = v
	}

	var first map[string]any
	var lastDetails PageDetails
	page := 1

	for {
		resp, apiErr := c.request(ctx, http.MethodPost, queryEndpoint, pagePayload, false)
		if apiErr != nil {
			c.log.Error().Str("endpoint", endpoint).Int("page", page).
				Str("error_type", string(apiErr.Type)).Msg("query failed")
			return nil, apiErr
		}
		// A 2xx body can still carry the backend's own error shape.
		if hasErrorMarker(resp) {
			c.log.Error().Str("endpoint", endpoint).Int("page", page).Msg("query returned error payload")
			return resp, nil
		}

		if first == nil {
			first = resp
		}

		items, present := resp["items"]
		if !present || items == nil {
			c.log.Warn().Str("endpoint", endpoint).Msg("no items in query response")
			break
		}
		if list, ok := items.([]any); ok {
			allItems = append(allItems, list...)
			c.log.Debug().Int("page", page).Int("items", len(list)).Msg("page fetched")
		}

		lastDetails = pageDetailsFrom(resp)
		if !lastDetails.Complete() {
			c.log.Debug().Msg("no pagination info, assuming single page")
			break
		}
		if lastDetails.LastPage() {
			c.log.Info().Str("endpoint", endpoint).
				Int("items", len(allItems)).Int("pages", page).Msg("query complete")
			break
		}

		pagePayload["page"] = lastDetails.PageNumber + 1
		page++
	}

	if first == nil {
		c.log.Warn().Str("endpoint", endpoint).Msg("query returned no data")
		return map[string]any{"items": []any{}}, nil
	}

	merged := make(map[string]any, len(first))
	for k, v := range first {
		merged[k] = v
	}
	merged["items"] = allItems
	if firstDetails, ok := first["pageDetails"].(map[string]any); ok {
		total := lastDetails.TotalCount
		if total == 0 {
			total = len(allItems)
		}
		rewritten := make(map[string]any, len(firstDetails))
		for k, v := range firstDetails {
			rewritten[k] = v
		}
		rewritten["pageNumber"] = 1
		rewritten["pageSize"] = len(allItems)
		rewritten["totalCount"] = total
		merged["pageDetails"] = rewritten
	}

	if c.cache != nil {
		c.cacheSet(key, merged)
	}
	return merged, nil
}

// request is the single execution point: every network call, status
// check and failure classification goes through here.
func (c *Client) request(ctx context.Context, method, endpoint string, body map[string]any, useCache bool) (map[string]any, *APIError) {
	if ok, missing := c.cfg.Validate(); !ok {
		return nil, validationError(missing)
	}

	var key string
	cacheable := method == http.MethodGet && useCache && c.cache != nil
	if cacheable {
		key = cache.Key(method, endpoint, nil)
		if cached, ok := c.cache.Get(key); ok {
			c.log.Debug().Str("endpoint", endpoint).Msg("cache hit")
			return cached, nil
		}
	}

	headers, err := c.cfg.Headers()
	if err != nil {
		_, missing := c.cfg.Validate()
		return nil, validationError(missing)
	}

	url := c.cfg.BaseURL() + endpoint
	reqID := uuid.NewString()

	c.log.Debug().
		Str("request_id", reqID).
		Str("method", method).
		Str("url", url).
		Interface("body", redact.Value(body)).
		Msg("api request")

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, &APIError{
				Type:    ErrUnknown,
				Message: "Failed to encode request body: " + err.Error(),
			}
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &APIError{
			Type:    ErrUnknown,
			Message: "Failed to build request: " + err.Error(),
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		apiErr := classifyTransport(err, c.cfg.Timeout)
		c.log.Error().Str("request_id", reqID).Str("endpoint", endpoint).
			Str("error_type", string(apiErr.Type)).Err(err).Msg("request failed")
		return nil, apiErr
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		apiErr := classifyTransport(err, c.cfg.Timeout)
		c.log.Error().Str("request_id", reqID).Str("endpoint", endpoint).
			Str("error_type", string(apiErr.Type)).Err(err).Msg("response read failed")
		return nil, apiErr
	}

	c.log.Debug().Str("request_id", reqID).
		Str("method", method).Str("endpoint", endpoint).
		Int("status", resp.StatusCode).Msg("api response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := classifyStatus(resp.StatusCode, endpoint, raw)
		c.log.Warn().Str("request_id", reqID).Str("endpoint", endpoint).
			Int("status", resp.StatusCode).Str("error_type", string(apiErr.Type)).Msg("api error")
		return nil, apiErr
	}

	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &APIError{
			Type:       ErrUnknown,
			Message:    "Failed to decode response: " + err.Error(),
			StatusCode: resp.StatusCode,
			Details:    map[string]any{"body": truncateBody(raw)},
		}
	}

	if cacheable {
		c.cacheSet(key, result)
	}
	return result, nil
}

func (c *Client) cacheSet(key string, value map[string]any) {
	if c.cacheTTL > 0 {
		c.cache.SetTTL(key, value, c.cacheTTL)
		return
	}
	c.cache.Set(key, value)
}

func hasErrorMarker(resp map[string]any) bool {
	if _, ok := resp["error"]; ok {
		return true
	}
	_, ok := resp["error_type"]
	return ok
}
