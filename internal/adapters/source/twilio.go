package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/turnlat/internal/domain/model"
	"github.com/okian/turnlat/pkg/logger"
)

const (
	apiVersion   = "2010-04-01"
	twilioDay    = "2006-01-02"
	dualChannels = "2"
)

// twilioPage is one page of the Recordings list resource.
type twilioPage struct {
	Recordings  []twilioRecording `json:"recordings"`
	NextPageURI string            `json:"next_page_uri"`
}

type twilioRecording struct {
	SID         string `json:"sid"`
	CallSID     string `json:"call_sid"`
	DateCreated string `json:"date_created"`
	URI         string `json:"uri"`
	Channels    int    `json:"channels"`
}

// TwilioSource lists and downloads recordings from the Twilio REST API.
type TwilioSource struct {
	accountSID string
	authToken  string
	opts       options
	limiter    *rate.Limiter
	log        logger.Logger
}

// NewTwilio creates a Twilio source for the given account credentials.
func NewTwilio(accountSID, authToken string, opts ...Option) (*TwilioSource, error) {
	if accountSID == "" || authToken == "" {
		return nil, fmt.Errorf("%w: account sid and auth token are required", ErrUnauthorized)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &TwilioSource{
		accountSID: accountSID,
		authToken:  authToken,
		opts:       o,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		log:        o.log,
	}
	if o.fetchRPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(o.fetchRPS), 1)
	}
	if s.log == nil {
		s.log = logger.Get().Named("twilio")
	}
	return s, nil
}

// List implements Source.List. Twilio filters by calendar day, so the
// window is applied again on the exact creation time.
func (s *TwilioSource) List(ctx context.Context, w model.Window) ([]model.Recording, error) {
	q := url.Values{}
	q.Set("PageSize", strconv.Itoa(s.opts.pageSize))
	if !w.Start.IsZero() {
		q.Set("DateCreated>", w.Start.UTC().Format(twilioDay))
	}
	if !w.End.IsZero() {
		// Twilio's upper bound is inclusive of the whole day.
		q.Set("DateCreated<", w.End.UTC().Format(twilioDay))
	}
	next := fmt.Sprintf("/%s/Accounts/%s/Recordings.json?%s", apiVersion, url.PathEscape(s.accountSID), q.Encode())

	var out []model.Recording
	for page := 0; next != ""; page++ {
		body, _, err := s.get(ctx, s.opts.baseURL+next)
		if err != nil {
			return nil, s.listError(err)
		}

		var p twilioPage
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("%w: decode page %d: %v", ErrUnavailable, page, err)
		}
		for _, r := range p.Recordings {
			if r.Channels == 1 {
				s.log.Debug(ctx, "skipping single-channel recording", logger.String("sid", r.SID))
				continue
			}
			rec, err := s.toRecording(r)
			if err != nil {
				s.log.Warn(ctx, "unparseable recording entry", logger.String("sid", r.SID), logger.Error(err))
				continue
			}
			if !w.Contains(rec.CreatedAt) {
				continue
			}
			out = append(out, rec)
		}
		next = p.NextPageURI
	}

	s.log.Info(ctx, "recordings listed", logger.Int("count", len(out)))
	return out, nil
}

func (s *TwilioSource) toRecording(r twilioRecording) (model.Recording, error) {
	created, err := time.Parse(time.RFC1123Z, r.DateCreated)
	if err != nil {
		return model.Recording{}, fmt.Errorf("date_created %q: %w", r.DateCreated, err)
	}
	media := strings.TrimSuffix(r.URI, ".json") + "." + s.opts.format
	if s.opts.format == "wav" {
		media += "?RequestedChannels=" + dualChannels
	}
	return model.Recording{
		ID:        r.SID,
		CallID:    r.CallSID,
		CreatedAt: created,
		FetchURI:  s.opts.baseURL + media,
		Format:    s.opts.format,
	}, nil
}

func (s *TwilioSource) listError(err error) error {
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// Fetch implements Source.Fetch. Requests are rate limited; server errors,
// throttling and network failures are retried with a linear backoff.
func (s *TwilioSource) Fetch(ctx context.Context, uri string) ([]byte, string, error) {
	body, contentType, err := s.get(ctx, uri)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return body, contentType, nil
}

// statusError is a non-2xx response.
type statusError struct {
	code int
}

func (e *statusError) Error() string { return "unexpected status " + strconv.Itoa(e.code) }

func (e *statusError) retryable() bool {
	return e.code >= http.StatusInternalServerError || e.code == http.StatusTooManyRequests
}

func (s *TwilioSource) get(ctx context.Context, uri string) ([]byte, string, error) {
	var lastErr error
	for attempt := 0; attempt <= s.opts.retries; attempt++ {
		if attempt > 0 {
			s.log.Debug(ctx, "retrying request",
				logger.String("uri", uri),
				logger.Int("attempt", attempt),
				logger.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(time.Duration(attempt) * s.opts.retryBackoff):
			}
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, "", err
		}

		body, contentType, err := s.do(ctx, uri)
		if err == nil {
			return body, contentType, nil
		}
		lastErr = err

		var se *statusError
		switch {
		case ctx.Err() != nil:
			return nil, "", ctx.Err()
		case errors.As(err, &se) && (se.code == http.StatusUnauthorized || se.code == http.StatusForbidden):
			return nil, "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
		case errors.As(err, &se) && !se.retryable():
			return nil, "", err
		}
	}
	return nil, "", lastErr
}

func (s *TwilioSource) do(ctx context.Context, uri string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, "", err
	}
	req.SetBasicAuth(s.accountSID, s.authToken)

	resp, err := s.opts.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			s.log.Error(ctx, "failed to close response body", logger.Error(err))
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, "", &statusError{code: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}
