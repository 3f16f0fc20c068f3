// Package adminsdk is the persistence client for the configuration admin API.
// It reads and writes configuration entities with optimistic concurrency.
package adminsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultProduct is the vendor segment of the Accept media type.
const DefaultProduct = "go.cd"

// Client is the admin API HTTP client. It is safe for concurrent use once
// configured.
type Client struct {
	BaseURL     string
	BearerToken string
	Product     string
	HTTPClient  *http.Client
	// Timeout bounds each request, reading the body included.
	Timeout  time.Duration
	Logger   *zap.Logger
	Tokens   TokenStore
	Observer Observer

	gets singleflight.Group
	// fallback holds ETags for a Client built without New and without Tokens.
	fallbackOnce sync.Once
	fallback     *MemoryTokens
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Product:    DefaultProduct,
		HTTPClient: &http.Client{},
		Timeout:    10 * time.Second,
		Logger:     zap.NewNop(),
		Tokens:     NewMemoryTokens(),
	}
}

// WriteEvent describes one successful write.
type WriteEvent struct {
	Family string
	ID     string
	Method string
	Path   string
	Status int
	ETag   string
	At     time.Time
}

// Observer receives every successful write.
type Observer interface {
	Observe(ctx context.Context, ev WriteEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev WriteEvent)

func (f ObserverFunc) Observe(ctx context.Context, ev WriteEvent) { f(ctx, ev) }

// Accept returns the versioned media type for version.
func (c *Client) Accept(version int) string {
	product := c.Product
	if product == "" {
		product = DefaultProduct
	}
	return fmt.Sprintf("application/vnd.%s.v%d+json", product, version)
}

type request struct {
	family  string
	method  string
	path    string
	version int
	body    any
	ifMatch string
}

type response struct {
	status int
	etag   string
	body   []byte
}

func (c *Client) do(ctx context.Context, r request) (*response, error) {
	if r.method != http.MethodGet {
		return c.roundTrip(ctx, r)
	}
	key := r.path + "#" + strconv.Itoa(r.version)
	v, err, shared := c.gets.Do(key, func() (any, error) {
		return c.roundTrip(ctx, r)
	})
	if shared {
		sharedGets.Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.(*response), nil
}

func (c *Client) roundTrip(ctx context.Context, r request) (*response, error) {
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	log := c.logger()
	url := c.base() + "/" + strings.TrimLeft(r.path, "/")
	var buf bytes.Buffer
	if r.body != nil {
		if err := json.NewEncoder(&buf).Encode(r.body); err != nil {
			return nil, fmt.Errorf("encode %s body: %w", r.family, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, r.method, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", c.Accept(r.version))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if r.ifMatch != "" {
		req.Header.Set("If-Match", r.ifMatch)
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}

	start := time.Now()
	resp, err := hc.Do(req)
	requestLatency.WithLabelValues(r.method, r.family).Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues(r.method, r.family, "error").Inc()
		log.Debug("request failed", zap.String("method", r.method), zap.String("url", url), zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()
	requestsTotal.WithLabelValues(r.method, r.family, strconv.Itoa(resp.StatusCode)).Inc()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", r.family, err)
	}
	log.Debug("request",
		zap.String("method", r.method),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)
	if resp.StatusCode >= 300 {
		return nil, decodeError(resp.StatusCode, body)
	}
	return &response{status: resp.StatusCode, etag: resp.Header.Get("ETag"), body: body}, nil
}

// decodeError builds the error for a non-2xx response from its
// {message, data} body.
func decodeError(status int, body []byte) error {
	var doc struct {
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	_ = json.Unmarshal(body, &doc)
	msg := doc.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: msg, Data: doc.Data}
}

// Patch sends a bulk document to path and returns the raw response body.
func (c *Client) Patch(ctx context.Context, family, path string, version int, doc any) (json.RawMessage, error) {
	resp, err := c.do(ctx, request{family: family, method: http.MethodPatch, path: path, version: version, body: doc})
	if err != nil {
		return nil, err
	}
	c.observe(ctx, WriteEvent{Family: family, Method: http.MethodPatch, Path: path, Status: resp.status})
	return resp.body, nil
}

// GetRaw reads path and returns the body and ETag.
func (c *Client) GetRaw(ctx context.Context, family, path string, version int) (json.RawMessage, string, error) {
	resp, err := c.do(ctx, request{family: family, method: http.MethodGet, path: path, version: version})
	if err != nil {
		return nil, "", err
	}
	return resp.body, resp.etag, nil
}

func (c *Client) observe(ctx context.Context, ev WriteEvent) {
	if c.Observer == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	c.Observer.Observe(ctx, ev)
}

func (c *Client) tokens() TokenStore {
	if c.Tokens != nil {
		return c.Tokens
	}
	c.fallbackOnce.Do(func() { c.fallback = NewMemoryTokens() })
	return c.fallback
}

func (c *Client) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
