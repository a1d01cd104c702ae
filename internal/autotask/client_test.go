package autotask

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cduffy/autotask-mcp/internal/cache"
	"github.com/cduffy/autotask-mcp/internal/config"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		APIBaseURL:      baseURL,
		IntegrationCode: "integration-code",
		UserCode:        "user@example.com",
		ResourceID:      "29682999",
		Timeout:         5 * time.Second,
		CacheTTL:        5 * time.Minute,
	}
}

func newTestCache() *cache.Cache {
	return cache.New(cache.NewMemoryStore(), 5*time.Minute, zerolog.Nop())
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

// requestedPage reads the page number the client asked for, defaulting
// to 1 when the payload carries none.
func requestedPage(t *testing.T, r *http.Request) int {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	if p, ok := body["page"].(float64); ok {
		return int(p)
	}
	return 1
}

func TestQuery_MergesAllPages(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/Tickets/query", r.URL.Path)

		pages := map[int]map[string]any{
			1: {
				"items":       []any{map[string]any{"id": 1}, map[string]any{"id": 2}},
				"pageDetails": map[string]any{"pageNumber": 1, "pageSize": 2, "totalCount": 5, "nextPageUrl": "x"},
			},
			2: {
				"items":       []any{map[string]any{"id": 3}, map[string]any{"id": 4}},
				"pageDetails": map[string]any{"pageNumber": 2, "pageSize": 2, "totalCount": 5},
			},
			3: {
				"items":       []any{map[string]any{"id": 5}},
				"pageDetails": map[string]any{"pageNumber": 3, "pageSize": 2, "totalCount": 5},
			},
		}
		writeJSON(t, w, pages[requestedPage(t, r)])
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	result, apiErr := c.Query(context.Background(), "/Tickets", AndFilter(Eq("AssignedResourceID", "29682999")))
	require.Nil(t, apiErr)

	assert.Equal(t, int64(3), requests.Load())

	items, ok := result["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 5)
	for i, item := range items {
		assert.Equal(t, float64(i+1), item.(map[string]any)["id"], "items must stay in page arrival order")
	}

	details, ok := result["pageDetails"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, details["pageNumber"])
	assert.Equal(t, 5, details["pageSize"])
	assert.Equal(t, 5, details["totalCount"])
	assert.Equal(t, "x", details["nextPageUrl"], "unknown pageDetails fields carry over from page one")
}

func TestQuery_SinglePageWithoutPageDetails(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		writeJSON(t, w, map[string]any{"items": []any{map[string]any{"id": 7}}})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	result, apiErr := c.Query(context.Background(), "/Tasks", map[string]any{})
	require.Nil(t, apiErr)

	assert.Equal(t, int64(1), requests.Load())
	items := result["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, float64(7), items[0].(map[string]any)["id"])
	assert.NotContains(t, result, "pageDetails")
}

func TestQuery_ZeroPageSizeStopsPagination(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		writeJSON(t, w, map[string]any{
			"items":       []any{map[string]any{"id": 1}},
			"pageDetails": map[string]any{"pageNumber": 1, "pageSize": 0, "totalCount": 5},
		})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	result, apiErr := c.Query(context.Background(), "/Tickets", map[string]any{})
	require.Nil(t, apiErr)

	assert.Equal(t, int64(1), requests.Load(), "a zero pageSize means no usable pagination info")
	assert.Len(t, result["items"], 1)
}

func TestQuery_ErrorOnLaterPageDiscardsPartialResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestedPage(t, r) > 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, "backend down")
			return
		}
		writeJSON(t, w, map[string]any{
			"items":       []any{map[string]any{"id": 1}, map[string]any{"id": 2}},
			"pageDetails": map[string]any{"pageNumber": 1, "pageSize": 2, "totalCount": 5},
		})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	result, apiErr := c.Query(context.Background(), "/Tickets", map[string]any{})

	require.NotNil(t, apiErr)
	assert.Equal(t, ErrServerError, apiErr.Type)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Nil(t, result, "partial items from earlier pages must not surface")
}

func TestQuery_ErrorPayloadReturnedWithoutMerging(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestedPage(t, r) > 1 {
			writeJSON(t, w, map[string]any{"error": "query expired"})
			return
		}
		writeJSON(t, w, map[string]any{
			"items":       []any{map[string]any{"id": 1}, map[string]any{"id": 2}},
			"pageDetails": map[string]any{"pageNumber": 1, "pageSize": 2, "totalCount": 5},
		})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	result, apiErr := c.Query(context.Background(), "/Tickets", map[string]any{})
	require.Nil(t, apiErr)

	assert.Equal(t, "query expired", result["error"])
	assert.NotContains(t, result, "items")
}

func TestQuery_NoEnvelopeReturnsEmptyItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"items": nil})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	result, apiErr := c.Query(context.Background(), "/Projects", map[string]any{})
	require.Nil(t, apiErr)

	items, ok := result["items"].([]any)
	require.True(t, ok)
	assert.Empty(t, items)
}

func TestQuery_CachesMergedResultUnderOriginalPayload(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		page := requestedPage(t, r)
		items := []any{map[string]any{"id": page}}
		writeJSON(t, w, map[string]any{
			"items":       items,
			"pageDetails": map[string]any{"pageNumber": page, "pageSize": 1, "totalCount": 2},
		})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), WithCache(newTestCache()))
	payload := AndFilter(Eq("Status", "1"))

	first, apiErr := c.Query(context.Background(), "/Tickets", payload)
	require.Nil(t, apiErr)
	require.Equal(t, int64(2), requests.Load())

	second, apiErr := c.Query(context.Background(), "/Tickets", payload)
	require.Nil(t, apiErr)
	assert.Equal(t, int64(2), requests.Load(), "repeat query must be served from cache")
	assert.Len(t, second["items"], 2)
	assert.Equal(t, toJSON(t, first), toJSON(t, second))
}

func TestGet_StatusMapping(t *testing.T) {
	cases := []struct {
		status   int
		kind     ErrorType
		wantBody bool
	}{
		{http.StatusUnauthorized, ErrAuthentication, false},
		{http.StatusNotFound, ErrNotFound, false},
		{http.StatusTooManyRequests, ErrRateLimit, false},
		{http.StatusServiceUnavailable, ErrServerError, true},
		{http.StatusInternalServerError, ErrServerError, true},
		{http.StatusTeapot, ErrUnknown, true},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d", tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, strings.Repeat("x", 600))
			}))
			defer srv.Close()

			c := NewClient(testConfig(srv.URL))
			_, apiErr := c.Get(context.Background(), "/Tickets/1")

			require.NotNil(t, apiErr)
			assert.Equal(t, tc.kind, apiErr.Type)
			assert.Equal(t, tc.status, apiErr.StatusCode)
			if tc.wantBody {
				body, _ := apiErr.Details["body"].(string)
				assert.Len(t, body, 500, "body detail must be truncated to 500 chars")
			}
		})
	}
}

func TestGet_TimeoutClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Timeout = 20 * time.Millisecond
	c := NewClient(cfg, WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))

	_, apiErr := c.Get(context.Background(), "/Tickets/1")
	require.NotNil(t, apiErr)
	assert.Equal(t, ErrTimeout, apiErr.Type)
	assert.Contains(t, apiErr.Message, "timeout")
	assert.Equal(t, cfg.Timeout.Seconds(), apiErr.Details["timeout"])
}

func TestGet_NetworkErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(testConfig(url))
	_, apiErr := c.Get(context.Background(), "/Tickets/1")

	require.NotNil(t, apiErr)
	assert.Equal(t, ErrNetwork, apiErr.Type)
	assert.NotEmpty(t, apiErr.Details["category"])
}

func TestGet_InvalidConfigShortCircuits(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.IntegrationCode = ""
	c := NewClient(cfg)

	_, apiErr := c.Get(context.Background(), "/Tickets/1")
	require.NotNil(t, apiErr)
	assert.Equal(t, ErrValidation, apiErr.Type)
	assert.Equal(t, []string{config.EnvIntegrationCode}, apiErr.Details["missing_fields"])
	assert.Zero(t, requests.Load(), "invalid configuration must not reach the network")
}

func TestGet_SendsCredentialHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "integration-code", r.Header.Get("ApiIntegrationCode"))
		assert.Equal(t, "user@example.com", r.Header.Get("UserName"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		writeJSON(t, w, map[string]any{"item": "x"})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	_, apiErr := c.Get(context.Background(), "/Tickets/1")
	require.Nil(t, apiErr)
}

func TestGet_CachesSuccessfulResponses(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		writeJSON(t, w, map[string]any{"id": 42})
	}))
	defer srv.Close()

	cc := newTestCache()
	c := NewClient(testConfig(srv.URL), WithCache(cc))

	first, apiErr := c.Get(context.Background(), "/Tickets/42")
	require.Nil(t, apiErr)
	second, apiErr := c.Get(context.Background(), "/Tickets/42")
	require.Nil(t, apiErr)

	assert.Equal(t, int64(1), requests.Load())
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), cc.Stats().Hits)
}

func TestGet_ErrorsAreNotCached(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), WithCache(newTestCache()))

	for i := 0; i < 2; i++ {
		_, apiErr := c.Get(context.Background(), "/Tickets/999")
		require.NotNil(t, apiErr)
		assert.Equal(t, ErrNotFound, apiErr.Type)
	}
	assert.Equal(t, int64(2), requests.Load())
}

func TestGet_MalformedBodyIsUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not json")
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	_, apiErr := c.Get(context.Background(), "/Tickets/1")

	require.NotNil(t, apiErr)
	assert.Equal(t, ErrUnknown, apiErr.Type)
	assert.Equal(t, "not json", apiErr.Details["body"])
}

func toJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
