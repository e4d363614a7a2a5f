// Package tfl is a small client for the TfL Unified API covering the arrival
// and station directory endpoints.
package tfl

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

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/travigo/catchtrain/pkg/metrics"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.tfl.gov.uk"

	userAgent = "curl/7.54.1"
)

var ErrUnexpectedStatus = errors.New("unexpected status from TfL")

type Client struct {
	baseURL    string
	appKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries uint64
	metrics    *metrics.Collector
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithMaxRetries(retries uint64) Option {
	return func(c *Client) {
		c.maxRetries = retries
	}
}

func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

func NewClient(appKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		appKey:     appKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(8), 8),
		maxRetries: 3,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// LineArrivals returns the arrival predictions for one line at one stop.
func (c *Client) LineArrivals(ctx context.Context, lineID string, stopID string) ([]ArrivalPrediction, error) {
	var arrivals []ArrivalPrediction

	path := fmt.Sprintf("/Line/%s/Arrivals/%s", url.PathEscape(lineID), url.PathEscape(stopID))
	if err := c.get(ctx, "line_arrivals", path, nil, &arrivals); err != nil {
		return nil, err
	}

	return arrivals, nil
}

// StopLines returns the ids of the lines serving a stop.
func (c *Client) StopLines(ctx context.Context, stopID string) ([]string, error) {
	var stopPoint StopPoint

	path := fmt.Sprintf("/StopPoint/%s", url.PathEscape(stopID))
	if err := c.get(ctx, "stop_point", path, nil, &stopPoint); err != nil {
		return nil, err
	}

	lineIDs := make([]string, 0, len(stopPoint.Lines))
	for _, line := range stopPoint.Lines {
		if line.ID != "" {
			lineIDs = append(lineIDs, line.ID)
		}
	}

	return lineIDs, nil
}

// SearchStopPoints performs a free text station search restricted to modes.
func (c *Client) SearchStopPoints(ctx context.Context, query string, modes []string) ([]SearchMatch, error) {
	var response SearchResponse

	params := url.Values{}
	if len(modes) > 0 {
		params.Set("modes", strings.Join(modes, ","))
	}

	path := fmt.Sprintf("/StopPoint/Search/%s", url.PathEscape(query))
	if err := c.get(ctx, "stop_point_search", path, params, &response); err != nil {
		return nil, err
	}

	return response.Matches, nil
}

// StopPointsByMode returns the station directory for the given modes.
// Only station level records are kept, entrances and platforms are skipped.
func (c *Client) StopPointsByMode(ctx context.Context, modes []string) ([]StopPoint, error) {
	var response StopPointsResponse

	path := fmt.Sprintf("/StopPoint/Mode/%s", url.PathEscape(strings.Join(modes, ",")))
	if err := c.get(ctx, "stop_point_mode", path, nil, &response); err != nil {
		return nil, err
	}

	stations := make([]StopPoint, 0, len(response.StopPoints))
	for _, stopPoint := range response.StopPoints {
		if stopPoint.IsStation() {
			stations = append(stations, stopPoint)
		}
	}

	return stations, nil
}

func (c *Client) get(ctx context.Context, endpoint string, path string, params url.Values, target interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	if c.appKey != "" {
		params.Set("app_key", c.appKey)
	}

	requestURL := c.baseURL + path
	if encoded := params.Encode(); encoded != "" {
		requestURL = requestURL + "?" + encoded
	}

	var body []byte
	operation := func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", userAgent) // TfL is protected by cloudflare and it gets angry when no user agent is set

		startTime := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.metrics.ObserveTfLRequest(endpoint, "error", time.Since(startTime))
			return err
		}
		defer resp.Body.Close()

		c.metrics.ObserveTfLRequest(endpoint, strconv.Itoa(resp.StatusCode), time.Since(startTime))

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode))
		}

		body, err = io.ReadAll(resp.Body)
		return err
	}

	retry := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), c.maxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		log.Debug().Err(err).Str("endpoint", endpoint).Dur("wait", wait).Msg("Retrying TfL request")
	}

	if err := backoff.RetryNotify(operation, retry, notify); err != nil {
		return fmt.Errorf("tfl %s: %w", endpoint, err)
	}

	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("tfl %s: decode response: %w", endpoint, err)
	}

	return nil
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 10 * time.Second
	return b
}
