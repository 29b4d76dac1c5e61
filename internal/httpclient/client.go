// Package httpclient provides the HTTP client used to talk to the publishing
// backend and remote matching engines.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/net/http2"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent is sent when no user agent is configured
	DefaultUserAgent = "exposure-sync/1.0"

	// DefaultMaxBodySize is the maximum accepted response body (100MB)
	DefaultMaxBodySize = 100 * 1024 * 1024

	// maxErrorBodySize bounds how much of an error body ends up in HTTPError.Message
	maxErrorBodySize = 4096
)

// ErrResponseTooLarge is returned when a response body exceeds the configured limit
var ErrResponseTooLarge = errors.New("response too large")

// Client is an interface for HTTP operations
type Client interface {
	// Get performs an HTTP GET request. Non-2xx statuses are returned as *HTTPError.
	Get(ctx context.Context, url string) (*Response, error)

	// PostJSON sends body encoded as JSON. Non-2xx statuses are returned as *HTTPError.
	PostJSON(ctx context.Context, url string, body any, headers map[string]string) (*Response, error)
}

// DefaultClient is the default HTTP client implementation
type DefaultClient struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
}

var _ Client = (*DefaultClient)(nil)

// Option configures a DefaultClient
type Option func(*DefaultClient)

// WithUserAgent overrides the User-Agent header
func WithUserAgent(userAgent string) Option {
	return func(c *DefaultClient) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithMaxBodySize overrides the maximum accepted response body size
func WithMaxBodySize(size int64) Option {
	return func(c *DefaultClient) {
		if size > 0 {
			c.maxBodySize = size
		}
	}
}

// WithHTTPClient replaces the underlying http.Client, for example one built by NewHTTP2Client
func WithHTTPClient(client *http.Client) Option {
	return func(c *DefaultClient) {
		if client != nil {
			c.client = client
		}
	}
}

// NewDefaultClient creates a new HTTP client with the given timeout.
// A zero timeout uses DefaultTimeout.
func NewDefaultClient(timeout time.Duration, opts ...Option) *DefaultClient {
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	c := &DefaultClient{
		client:      &http.Client{Timeout: timeout},
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewHTTP2Client creates an HTTP/2 client authenticating with a client
// certificate over TLS 1.3
func NewHTTP2Client(certFile, keyFile, caFile string, timeout time.Duration) (*http.Client, error) {
	if certFile == "" || keyFile == "" {
		return nil, fmt.Errorf("certFile and keyFile are required")
	}

	clientCert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{clientCert},
		MinVersion:   tls.VersionTLS13,
	}

	if caFile != "" {
		caCert, err := os.ReadFile(filepath.Clean(caFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}

	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Transport: &http2.Transport{TLSClientConfig: tlsConfig},
		Timeout:   timeout,
	}, nil
}

// Get performs an HTTP GET request and returns the response
func (c *DefaultClient) Get(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req)
}

// PostJSON performs an HTTP POST request with a JSON body
func (c *DefaultClient) PostJSON(
	ctx context.Context, url string, body any, headers map[string]string,
) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

func (c *DefaultClient) do(req *http.Request) (*Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	url := req.URL.String()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, NewHTTPError(resp.StatusCode, url, string(msg))
	}

	if resp.ContentLength > c.maxBodySize {
		return nil, fmt.Errorf("%w: body size %d exceeds maximum allowed size of %.2f MB",
			ErrResponseTooLarge, resp.ContentLength, float64(c.maxBodySize)/(1024*1024))
	}

	// Read one extra byte to detect bodies over the limit without a Content-Length
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > c.maxBodySize {
		return nil, fmt.Errorf("%w: body exceeds maximum allowed size of %.2f MB",
			ErrResponseTooLarge, float64(c.maxBodySize)/(1024*1024))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}
