package bookings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"flightdesk/app/config"
	"flightdesk/app/model"

	"github.com/cenkalti/backoff/v5"
	"github.com/samber/do"
)

const IdempotencyHeader = "Idempotency-Key"

var errAttempt = errors.New("attempt failed")

type Options struct {
	BaseURL          string
	Timeout          time.Duration
	Retries          int
	RetryDelay       time.Duration
	FailureThreshold int
	OpenDuration     time.Duration
	Now              func() time.Time
	HTTPClient       *http.Client
}

// Client talks to the booking store. Every call goes through the shared
// breaker and is retried on transport errors and 5xx responses.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *Breaker
	retries    int
	retryDelay time.Duration
}

func New(di *do.Injector) (*Client, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewClient(Options{
		BaseURL:          cfg.Booking.BaseURL,
		Timeout:          cfg.Booking.Timeout,
		Retries:          *cfg.Booking.Retries,
		RetryDelay:       cfg.Booking.RetryDelay,
		FailureThreshold: cfg.Booking.FailureThreshold,
		OpenDuration:     cfg.Booking.OpenDuration,
	}), nil
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		breaker:    NewBreaker(opts.FailureThreshold, opts.OpenDuration, opts.Now),
		retries:    max(opts.Retries, 0),
		retryDelay: opts.RetryDelay,
	}
}

func (c *Client) Breaker() *Breaker {
	return c.breaker
}

func (c *Client) Create(ctx context.Context, userID, tripID string, price float64) *Envelope {
	body, err := json.Marshal(model.BookingRequest{
		UserID: userID,
		TripID: tripID,
		Price:  price,
	})
	if err != nil {
		return transportError(fmt.Errorf("failed to encode booking: %w", err))
	}

	header := http.Header{}
	header.Set(IdempotencyHeader, userID+":"+tripID)

	return c.Do(ctx, http.MethodPost, "/bookings", body, header)
}

func (c *Client) Get(ctx context.Context, id string) *Envelope {
	return c.Do(ctx, http.MethodGet, "/bookings/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Update(ctx context.Context, id string, req model.BookingRequest) *Envelope {
	body, err := json.Marshal(req)
	if err != nil {
		return transportError(fmt.Errorf("failed to encode booking: %w", err))
	}

	return c.Do(ctx, http.MethodPut, "/bookings/"+url.PathEscape(id), body, nil)
}

func (c *Client) Delete(ctx context.Context, id string) *Envelope {
	return c.Do(ctx, http.MethodDelete, "/bookings/"+url.PathEscape(id), nil, nil)
}

func (c *Client) List(ctx context.Context) *Envelope {
	return c.Do(ctx, http.MethodGet, "/bookings", nil, nil)
}

// Do sends one request through the breaker and the retry loop. path is
// relative to the base url.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, header http.Header) *Envelope {
	var last *Envelope

	operation := func() (*Envelope, error) {
		if !c.breaker.Allow() {
			last = circuitOpen()
			return last, backoff.Permanent(errAttempt)
		}

		last = c.attempt(ctx, method, path, body, header)
		if last.OK() {
			c.breaker.Success()
			return last, nil
		}

		c.breaker.Failure()

		if !retryable(last.HTTPStatus) {
			return last, backoff.Permanent(errAttempt)
		}

		slog.Debug("Booking call failed",
			"method", method,
			"path", path,
			"status", last.HTTPStatus,
			"message", last.Message,
		)

		return last, errAttempt
	}

	// the last envelope is the result whatever the retry loop reports
	_, _ = backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retryDelay)),
		backoff.WithMaxTries(uint(c.retries+1)),
	)

	return last
}

func (c *Client) attempt(ctx context.Context, method, path string, body []byte, header http.Header) *Envelope {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return transportError(err)
	}

	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(err)
	}

	return fromResponse(resp.StatusCode, data)
}

// retryable covers 5xx and transport failures; 4xx is returned at once.
func retryable(status int) bool {
	return status >= http.StatusInternalServerError
}
