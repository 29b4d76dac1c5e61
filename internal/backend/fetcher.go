package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/proxtrace/exposure-sync/internal/daybucket"
	"github.com/proxtrace/exposure-sync/internal/httpclient"
	"github.com/proxtrace/exposure-sync/internal/status"
)

//go:generate mockgen -destination=mocks/mock_backend.go -package=mocks -source=fetcher.go BatchFetcher

// PublishedUntilHeader carries the publication horizon in epoch milliseconds
const PublishedUntilHeader = "x-published-until"

// BatchFetcher fetches and classifies one day's batch
type BatchFetcher interface {
	Fetch(ctx context.Context, day daybucket.DayID) Result
}

// Fetcher is the HTTP BatchFetcher for {baseURL}/bucket/{dayTimestamp}
type Fetcher struct {
	client       httpclient.Client
	baseURL      string
	calendar     daybucket.Calendar
	maxClockSkew time.Duration
	verifier     *SignatureVerifier
	now          func() time.Time
}

var _ BatchFetcher = (*Fetcher)(nil)

// FetcherOption configures a Fetcher
type FetcherOption func(*Fetcher)

// WithMaxClockSkew rejects responses whose Date header differs from the
// device clock by more than skew. Zero disables the check.
func WithMaxClockSkew(skew time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.maxClockSkew = skew
	}
}

// WithSignatureVerifier requires batches to carry a valid signature
func WithSignatureVerifier(v *SignatureVerifier) FetcherOption {
	return func(f *Fetcher) {
		f.verifier = v
	}
}

// WithDeviceClock overrides the clock Date headers are compared with
func WithDeviceClock(now func() time.Time) FetcherOption {
	return func(f *Fetcher) {
		f.now = now
	}
}

// NewFetcher creates a Fetcher for the backend at baseURL
func NewFetcher(client httpclient.Client, baseURL string, calendar daybucket.Calendar, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:   client,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		calendar: calendar,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// BucketURL returns the batch URL of day
func (f *Fetcher) BucketURL(day daybucket.DayID) string {
	return fmt.Sprintf("%s/bucket/%s", f.baseURL, f.calendar.TimestampString(day))
}

// Fetch downloads the batch of day and classifies the outcome
func (f *Fetcher) Fetch(ctx context.Context, day daybucket.DayID) Result {
	url := f.BucketURL(day)
	logger := slog.With("day", day.String(), "url", url)

	resp, err := f.client.Get(ctx, url)
	if err != nil {
		res := classifyError(day, err)
		logger.Debug("Batch fetch failed", "kind", res.Kind.String(), "error", err)
		return res
	}

	if res, ok := f.checkClock(day, resp.Header); !ok {
		return res
	}

	publishedUntil, err := parsePublishedUntil(resp.Header.Get(PublishedUntilHeader))
	if err != nil {
		return permanent(day, status.ErrorKindMalformed, err)
	}

	if resp.StatusCode == http.StatusNoContent {
		return Result{Day: day, Kind: KindNoContent, PublishedUntil: publishedUntil}
	}

	if f.verifier != nil {
		if err := f.verifier.Verify(resp.Body, resp.Header.Get(SignatureHeader)); err != nil {
			logger.Warn("Rejecting batch with invalid signature", "error", err)
			return permanent(day, status.ErrorKindSignature, err)
		}
	}

	return Result{Day: day, Kind: KindContent, Body: resp.Body, PublishedUntil: publishedUntil}
}

func (f *Fetcher) checkClock(day daybucket.DayID, header http.Header) (Result, bool) {
	if f.maxClockSkew <= 0 {
		return Result{}, true
	}
	raw := header.Get("Date")
	if raw == "" {
		return Result{}, true
	}
	serverTime, err := http.ParseTime(raw)
	if err != nil {
		return Result{}, true
	}
	skew := f.now().Sub(serverTime)
	if skew.Abs() > f.maxClockSkew {
		return transient(day, status.ErrorKindTiming,
			fmt.Errorf("device clock differs from backend by %s", skew.Round(time.Second))), false
	}
	return Result{}, true
}

func parsePublishedUntil(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing %s header", PublishedUntilHeader)
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || millis <= 0 {
		return time.Time{}, fmt.Errorf("invalid %s header %q", PublishedUntilHeader, raw)
	}
	return time.UnixMilli(millis), nil
}

func classifyError(day daybucket.DayID, err error) Result {
	var httpErr *httpclient.HTTPError
	switch {
	case errors.As(err, &httpErr):
		switch code := httpErr.StatusCode; {
		case code >= 500, code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
			return transient(day, status.ErrorKindServer, err)
		default:
			return permanent(day, status.ErrorKindServer, err)
		}
	case errors.Is(err, httpclient.ErrResponseTooLarge):
		return permanent(day, status.ErrorKindMalformed, err)
	default:
		// network failures, timeouts and cancellation
		return transient(day, status.ErrorKindNetwork, err)
	}
}
