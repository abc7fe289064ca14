package profiles

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"flightdesk/app/client/bookings"
	"flightdesk/app/config"
	"flightdesk/app/model"

	"github.com/samber/do"
	"github.com/samber/oops"
)

// Client reads customer profiles. It shares the booking transport, so calls
// are retried and guarded by their own breaker.
type Client struct {
	transport *bookings.Client
}

func New(di *do.Injector) (*Client, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewClient(bookings.Options{
		BaseURL:          cfg.Profile.BaseURL,
		Timeout:          cfg.Booking.Timeout,
		Retries:          *cfg.Booking.Retries,
		RetryDelay:       cfg.Booking.RetryDelay,
		FailureThreshold: cfg.Booking.FailureThreshold,
		OpenDuration:     cfg.Booking.OpenDuration,
	}), nil
}

func NewClient(opts bookings.Options) *Client {
	return &Client{
		transport: bookings.NewClient(opts),
	}
}

func (c *Client) List(ctx context.Context) ([]model.Profile, error) {
	env := c.transport.Do(ctx, http.MethodGet, "/profiles", nil, nil)
	if err := env.Err(); err != nil {
		return nil, err
	}

	var result []model.Profile
	if err := env.Decode(&result); err != nil {
		return nil, oops.In("profiles").Code(model.CodeInternal).Wrapf(err, "failed to read profiles")
	}

	return result, nil
}

// Get accepts either the profile id or the owning user id.
func (c *Client) Get(ctx context.Context, id string) (model.Profile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Profile{}, oops.In("profiles").Code(model.CodeValidation).Wrapf(model.ErrValidation, "profile id is required")
	}

	env := c.transport.Do(ctx, http.MethodGet, "/profiles/"+url.PathEscape(id), nil, nil)
	if err := env.Err(); err != nil {
		return model.Profile{}, err
	}

	var result model.Profile
	if err := env.Decode(&result); err != nil {
		return model.Profile{}, oops.In("profiles").Code(model.CodeInternal).Wrapf(err, "failed to read profile %s", id)
	}

	return result, nil
}
