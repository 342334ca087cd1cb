// Package intercom provides the Intercom REST client used by the exporter:
// bearer authentication, conditional-request caching and error classification.
package intercom

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/intercom-export/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Prometheus metrics for Intercom client operations.
var (
	intercomRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intercom_requests_total",
		Help: "Total Intercom requests by endpoint and status",
	}, []string{"endpoint", "status"})

	intercomRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "intercom_request_duration_seconds",
		Help:    "Intercom request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	intercomErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intercom_errors_total",
		Help: "Total Intercom errors by class",
	}, []string{"class"})
)

const (
	// DefaultBaseURL is the Intercom US region API root.
	DefaultBaseURL = "https://api.intercom.io"

	// DefaultAPIVersion is sent as the Intercom-Version header.
	DefaultAPIVersion = "2.11"

	// DefaultTimeout bounds every single request.
	DefaultTimeout = 30 * time.Second

	conversationsPath = "/conversations"
)

// Client is the Intercom API client.
type Client struct {
	httpClient *http.Client
	cache      *cache.Manager
	cacheScope string
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Token is the Intercom access token, sent as a bearer token.
	// An empty token is not rejected here; the API answers 401.
	Token string

	// BaseURL is the API root (default: DefaultBaseURL).
	BaseURL string

	// APIVersion is sent as Intercom-Version (default: DefaultAPIVersion).
	APIVersion string

	// UserAgent header value.
	UserAgent string

	// Timeout per request (default: DefaultTimeout).
	Timeout time.Duration

	// Cache enables conditional requests when non-nil.
	Cache *cache.Manager

	// Transport is the base round tripper under the auth layer (default: http.DefaultTransport).
	Transport http.RoundTripper
}

// DefaultConfig returns a configuration pointing at the public Intercom API.
func DefaultConfig(token string) Config {
	return Config{
		Token:      token,
		BaseURL:    DefaultBaseURL,
		APIVersion: DefaultAPIVersion,
		UserAgent:  "intercom-export/1.0",
		Timeout:    DefaultTimeout,
	}
}

// New creates a new Intercom client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	logger := log.With().Str("component", "intercom-client").Logger()

	// oauth2 picks its base transport from the context.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: cfg.Transport})
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.Token,
		TokenType:   "Bearer",
	})
	httpClient := oauth2.NewClient(ctx, tokenSource)
	httpClient.Timeout = cfg.Timeout

	return &Client{
		httpClient: httpClient,
		cache:      cfg.Cache,
		cacheScope: cacheScope(base.Host, cfg.Token),
		config:     cfg,
		logger:     logger,
	}, nil
}

// Do performs an HTTP request with caching and error classification.
// Any non-2xx status is returned as *APIError; the response body is closed in that case.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := routeLabel(req.URL.Path)

	startTime := time.Now()
	defer func() {
		intercomRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	var cacheKey cache.CacheKey
	var cachedEntry *cache.CacheEntry
	if c.cache != nil {
		cacheKey = cache.CacheKey{
			Scope:       c.cacheScope,
			Endpoint:    req.URL.Path,
			QueryParams: req.URL.Query(),
			Version:     c.config.APIVersion,
		}
		entry, err := c.cache.Get(ctx, cacheKey)
		if err != nil && err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
		if entry != nil && cache.ShouldMakeConditionalRequest(entry) {
			cachedEntry = entry
			cache.AddConditionalHeaders(req, entry)
			cache.ConditionalRequestsSent.Inc()
			c.logger.Debug().
				Str("endpoint", endpoint).
				Str("etag", entry.ETag).
				Msg("Making conditional request")
		}
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Intercom-Version", c.config.APIVersion)
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Str("query", req.URL.RawQuery).
		Msg("Executing Intercom request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		intercomErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		intercomRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, &APIError{
			ErrorClass: ErrorClassNetwork,
			Endpoint:   req.URL.Path,
			Message:    "request failed",
			Err:        err,
		}
	}

	intercomRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		c.logger.Debug().Str("endpoint", endpoint).Str("remaining", remaining).Msg("Rate limit quota")
	}

	if resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")
		cache.NotModifiedResponses.Inc()
		resp.Body.Close()

		if err := c.cache.Touch(ctx, cacheKey); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to refresh cache TTL")
		}
		cached := cache.EntryToResponse(cachedEntry)
		// Quota headers describe the current call, not the cached one.
		for _, h := range []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"} {
			if v := resp.Header.Get(h); v != "" {
				cached.Header.Set(h, v)
			}
		}
		return cached, nil
	}

	if class := classifyStatus(resp.StatusCode); class != "" {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()

		intercomErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Intercom request error")

		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Endpoint:   req.URL.Path,
			Message:    errorMessage(resp.Status, body),
		}
	}

	if c.cache != nil && resp.StatusCode == http.StatusOK {
		entry, err := cache.ResponseToEntry(resp, c.cache.DefaultTTL())
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if cache.ShouldMakeConditionalRequest(entry) {
			if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to cache response")
			} else {
				c.logger.Debug().
					Str("endpoint", endpoint).
					Dur("ttl", entry.TTL()).
					Msg("Cached response")
			}
		}
	}

	return resp, nil
}

// Get performs a GET request against an API path.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	u := c.config.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.Do(req)
}

// getJSON performs a GET and decodes the JSON body into v.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) (http.Header, error) {
	resp, err := c.Get(ctx, path, query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		intercomErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Endpoint:   path,
			Message:    "malformed response body",
			Err:        err,
		}
	}
	return resp.Header, nil
}

// ListConversations fetches one page of the conversations listing.
func (c *Client) ListConversations(ctx context.Context, cursor PageCursor) (*ConversationPage, error) {
	var page ConversationPage
	header, err := c.getJSON(ctx, conversationsPath, cursor.Params(), &page)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	page.Header = header

	c.logger.Debug().
		Int("conversations", len(page.Conversations)).
		Str("starting_after", cursor.StartingAfter).
		Bool("has_next", page.HasNext()).
		Msg("Fetched conversation page")

	return &page, nil
}

// FindConversation fetches the full detail of one conversation.
// With plainText set, message bodies are requested as plain text instead of HTML.
func (c *Client) FindConversation(ctx context.Context, id ID, plainText bool) (*ConversationDetail, error) {
	if id == "" {
		return nil, fmt.Errorf("find conversation: empty id")
	}

	query := url.Values{}
	if plainText {
		query.Set("display_as", "plaintext")
	}

	var detail ConversationDetail
	path := conversationsPath + "/" + url.PathEscape(string(id))
	if _, err := c.getJSON(ctx, path, query, &detail); err != nil {
		return nil, fmt.Errorf("find conversation %s: %w", id, err)
	}
	return &detail, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// cacheScope keys cached responses to one API host and access token.
// Only a short fingerprint of the token ends up in Redis.
func cacheScope(host, token string) string {
	sum := sha256.Sum256([]byte(token))
	return host + "/" + hex.EncodeToString(sum[:4])
}

// routeLabel collapses ids out of a path so metric labels stay bounded.
func routeLabel(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	if len(parts) > 1 {
		parts[1] = "{id}"
	}
	return strings.Join(parts, "/")
}
