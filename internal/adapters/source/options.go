package source

import (
	"net/http"
	"time"

	"github.com/okian/turnlat/pkg/logger"
)

// Default source configuration constants.
const (
	DefaultTwilioBaseURL = "https://api.twilio.com"
	defaultPageSize      = 100
	defaultFetchRPS      = 5.0
	defaultFetchRetries  = 3
	defaultRetryBackoff  = 500 * time.Millisecond
	defaultHTTPTimeout   = 60 * time.Second
)

// Option applies a configuration option to a source.
type Option func(*options)

type options struct {
	baseURL      string
	client       *http.Client
	pageSize     int
	fetchRPS     float64
	retries      int
	retryBackoff time.Duration
	format       string
	log          logger.Logger
}

func defaultOptions() options {
	return options{
		baseURL:      DefaultTwilioBaseURL,
		client:       &http.Client{Timeout: defaultHTTPTimeout},
		pageSize:     defaultPageSize,
		fetchRPS:     defaultFetchRPS,
		retries:      defaultFetchRetries,
		retryBackoff: defaultRetryBackoff,
		format:       "wav",
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.baseURL = u
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.client = c
		}
	}
}

// WithPageSize sets the listing page size.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithFetchRate limits requests per second. Zero or negative disables the limit.
func WithFetchRate(rps float64) Option {
	return func(o *options) {
		o.fetchRPS = rps
	}
}

// WithRetries sets how many times a failed request is retried, with a linear backoff.
func WithRetries(n int, backoff time.Duration) Option {
	return func(o *options) {
		if n >= 0 {
			o.retries = n
		}
		if backoff > 0 {
			o.retryBackoff = backoff
		}
	}
}

// WithFormat selects the media format to download: "wav" or "mp3".
func WithFormat(f string) Option {
	return func(o *options) {
		if f == "wav" || f == "mp3" {
			o.format = f
		}
	}
}

// WithLogger sets the source logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}
