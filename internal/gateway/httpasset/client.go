// Package httpasset carries image blobs over plain HTTP: a Client that
// implements gateway.AssetGateway and a Server that fronts any other gateway.
package httpasset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/satmihir/photocache/internal/constants"
	"github.com/satmihir/photocache/internal/gateway"
	"github.com/satmihir/photocache/internal/retry"
)

// Errors returned by the client
var (
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")
	ErrBadRequest      = errors.New("bad request")
)

// Client is an asset client for a single server
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config
}

var _ gateway.AssetGateway = (*Client)(nil)

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		client.httpClient.Timeout = d
	}
}

// WithRetryConfig sets the retry configuration used for downloads
func WithRetryConfig(config retry.Config) Option {
	return func(client *Client) {
		client.retryConfig = config
	}
}

// NewClient creates a new Client for the given server address
func NewClient(serverAddr string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(serverAddr, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retryConfig: retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upload sends data once. Uploads are not retried here; the caller owns the
// decision to re-upload.
func (c *Client) Upload(ctx context.Context, data []byte, destinationHint string) (string, error) {
	if len(data) > constants.MaxImageSizeBytes {
		return "", ErrPayloadTooLarge
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(destinationHint), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		storagePath := resp.Header.Get(headerStoragePath)
		if storagePath == "" {
			return "", fmt.Errorf("server returned no storage path")
		}
		return storagePath, nil
	case http.StatusRequestEntityTooLarge:
		return "", ErrPayloadTooLarge
	case http.StatusBadRequest:
		return "", ErrBadRequest
	default:
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}

// Download fetches a blob, retrying transient failures with backoff.
// Returns gateway.ErrNotFound without retrying if the blob doesn't exist.
func (c *Client) Download(ctx context.Context, storagePath string) ([]byte, error) {
	if err := gateway.ValidatePath(storagePath); err != nil {
		return nil, err
	}
	return retry.DoWithHint(ctx, c.retryConfig, func() ([]byte, error, bool, time.Duration) {
		data, retryAfter, err := c.get(ctx, storagePath)
		if err != nil {
			// NotFound and bad requests are not retryable
			if errors.Is(err, gateway.ErrNotFound) || errors.Is(err, ErrBadRequest) ||
				errors.Is(err, ErrPayloadTooLarge) || ctx.Err() != nil {
				return nil, err, false, 0
			}
			return nil, err, true, retryAfter
		}
		return data, nil, false, 0
	})
}

func (c *Client) get(ctx context.Context, storagePath string) ([]byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(storagePath), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxImageSizeBytes+1))
		if err != nil {
			return nil, 0, fmt.Errorf("reading response body: %w", err)
		}
		if len(data) > constants.MaxImageSizeBytes {
			return nil, 0, ErrPayloadTooLarge
		}
		return data, 0, nil
	case http.StatusNotFound:
		return nil, 0, gateway.ErrNotFound
	case http.StatusBadRequest:
		return nil, 0, ErrBadRequest
	default:
		return nil, parseRetryAfter(resp), fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}

// parseRetryAfter extracts Retry-After (in seconds) from response headers
func parseRetryAfter(resp *http.Response) time.Duration {
	if retryStr := resp.Header.Get("Retry-After"); retryStr != "" {
		if seconds, err := strconv.Atoi(retryStr); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

// Delete removes a blob.
func (c *Client) Delete(ctx context.Context, storagePath string) error {
	if err := gateway.ValidatePath(storagePath); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url(storagePath), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK, http.StatusNotFound:
		return nil
	case http.StatusBadRequest:
		return ErrBadRequest
	default:
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}

// url constructs the full URL for an asset path, escaping each segment
func (c *Client) url(assetPath string) string {
	segments := strings.Split(strings.Trim(assetPath, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.baseURL + assetPathPrefix + strings.Join(segments, "/")
}
