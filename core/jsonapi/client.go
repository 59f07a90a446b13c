package jsonapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"asc-manager/core/ratelimit"

	"go.uber.org/zap"
)

// Doer sends an HTTP request. *http.Client satisfies it; tests plug in the
// sandbox simulator.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks JSON:API to the remote system. Every request passes through
// the rate controller.
type Client struct {
	base      *url.URL
	token     string
	userAgent string
	doer      Doer
	ctl       *ratelimit.Controller
	logger    *zap.Logger
}

// NewHTTPClient builds an *http.Client with strict transport timeouts.
func NewHTTPClient(cfg Config) *http.Client {
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	timeoutDuration := time.Duration(timeout) * time.Second

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeoutDuration,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeoutDuration,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeoutDuration,
	}

	return &http.Client{Transport: transport, Timeout: timeoutDuration}
}

// NewClient creates a client for cfg.BaseURL. A nil doer uses NewHTTPClient.
func NewClient(cfg Config, doer Doer, ctl *ratelimit.Controller, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if doer == nil {
		doer = NewHTTPClient(cfg)
	}
	if ctl == nil {
		ctl = ratelimit.New(ratelimit.Config{})
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		base:      base,
		token:     cfg.Token,
		userAgent: cfg.UserAgent,
		doer:      doer,
		ctl:       ctl,
		logger:    logger,
	}, nil
}

// Resolve turns a path relative to the base URL, a host-relative path or an
// absolute URL into an absolute URL.
func (c *Client) Resolve(ref string) (*url.URL, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid reference %q: %w", ref, err)
	}
	return c.base.ResolveReference(parsed), nil
}

// Get fetches ref with the extra query parameters merged in.
func (c *Client) Get(ctx context.Context, ref string, query url.Values) (*Document, error) {
	return c.do(ctx, http.MethodGet, ref, query, nil)
}

// Post sends a creation payload.
func (c *Client) Post(ctx context.Context, ref string, payload *Payload) (*Document, error) {
	return c.do(ctx, http.MethodPost, ref, nil, payload)
}

// Patch sends an update payload.
func (c *Client) Patch(ctx context.Context, ref string, payload *Payload) (*Document, error) {
	return c.do(ctx, http.MethodPatch, ref, nil, payload)
}

// Delete removes the resource at ref.
func (c *Client) Delete(ctx context.Context, ref string) error {
	_, err := c.do(ctx, http.MethodDelete, ref, nil, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, ref string, query url.Values, payload *Payload) (*Document, error) {
	u, err := c.Resolve(ref)
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		merged := u.Query()
		for key, values := range query {
			merged[key] = values
		}
		u.RawQuery = merged.Encode()
	}

	var body []byte
	if payload != nil {
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", payload.Data.Type, err)
		}
	}

	var doc *Document
	err = c.ctl.Do(ctx, func(ctx context.Context) error {
		d, err := c.send(ctx, method, u, body)
		if err != nil {
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *Client) send(ctx context.Context, method string, u *url.URL, body []byte) (*Document, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	started := time.Now()
	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Path: u.Path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, Path: u.Path, Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.Debug("API request",
		zap.String("method", method),
		zap.String("path", u.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       u.Path,
			Retry:      parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
		var doc Document
		if json.Unmarshal(raw, &doc) == nil {
			apiErr.Errors = doc.Errors
		}
		return nil, apiErr
	}

	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0 {
		return &Document{}, nil
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &TransportError{Method: method, Path: u.Path, Err: fmt.Errorf("decode body: %w", err)}
	}
	return &doc, nil
}
