package brevo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

const (
	DefaultURL     = "https://api.brevo.com/v3/contacts"
	DefaultListID  = 2
	DefaultTimeout = 10 * time.Second

	// maxErrorBody caps how much of a failed response is kept for logging.
	maxErrorBody = 64 << 10
)

// Client adds contacts to Brevo mailing lists.
type Client struct {
	apiKey     string
	url        string
	listIDs    []int64
	httpClient *http.Client
	limiter    Limiter
}

type config struct {
	url       string
	listIDs   []int64
	transport http.RoundTripper
	timeout   time.Duration
	limiter   Limiter
}

func defaultConfig() *config {
	return &config{
		url:       DefaultURL,
		listIDs:   []int64{DefaultListID},
		transport: http.DefaultTransport,
		timeout:   DefaultTimeout,
		limiter:   NoopLimiter{},
	}
}

type Option func(c *config)

func WithURL(url string) Option {
	return func(c *config) {
		c.url = url
	}
}

func WithListIDs(ids ...int64) Option {
	return func(c *config) {
		c.listIDs = ids
	}
}

func WithTransport(transport http.RoundTripper) Option {
	return func(c *config) {
		c.transport = transport
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}

func WithLimiter(limiter Limiter) Option {
	return func(c *config) {
		c.limiter = limiter
	}
}

func NewClient(apiKey string, opts ...Option) *Client {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &Client{
		apiKey:  apiKey,
		url:     cfg.url,
		listIDs: cfg.listIDs,
		httpClient: &http.Client{
			Transport: cfg.transport,
			Timeout:   cfg.timeout,
		},
		limiter: cfg.limiter,
	}
}

// CreateContactRequest is the body of POST /v3/contacts.
type CreateContactRequest struct {
	Email   string  `json:"email"`
	ListIDs []int64 `json:"listIds"`
}

// Submit adds email to the configured lists. Any non-2xx answer is an error.
func (c *Client) Submit(ctx context.Context, email string) error {
	if c.apiKey == "" {
		return &APIError{
			Stage:     StageBeforeRequest,
			Type:      TypeMissingKey,
			SourceErr: ErrMissingAPIKey,
		}
	}

	if err := c.limiter.Limit(ctx); err != nil {
		return &APIError{
			Stage:     StageBeforeRequest,
			Type:      TypeRateLimit,
			SourceErr: err,
		}
	}

	data, err := json.Marshal(CreateContactRequest{
		Email:   email,
		ListIDs: c.listIDs,
	})
	if err != nil {
		return &APIError{
			Stage:     StageBeforeRequest,
			Type:      TypeJSONEncode,
			SourceErr: err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return &APIError{
			Stage:     StageBeforeRequest,
			Type:      TypeRequestPrep,
			SourceErr: err,
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", c.apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{
			Stage:     StageRequest,
			Type:      TypeIO,
			SourceErr: err,
		}
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return &APIError{
			Stage:      StageAfterRequest,
			Type:       TypeHTTPStatus,
			Body:       body,
			StatusCode: res.StatusCode,
		}
	}

	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}
