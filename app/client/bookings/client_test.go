package bookings_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"flightdesk/app/client/bookings"
	"flightdesk/app/model"
	"flightdesk/app/service/bookingstore"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	store  *bookingstore.Service
	server *httptest.Server
	calls  atomic.Int64
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store: bookingstore.NewService("", nil),
		now:   time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC),
	}

	handler := adaptor.FiberApp(h.store.App())
	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(h.server.Close)

	return h
}

func (h *harness) client(retries, threshold int) *bookings.Client {
	return bookings.NewClient(bookings.Options{
		BaseURL:          h.server.URL + "/api",
		Timeout:          2 * time.Second,
		Retries:          retries,
		FailureThreshold: threshold,
		OpenDuration:     10 * time.Second,
		Now:              func() time.Time { return h.now },
	})
}

func TestClient_CRUD(t *testing.T) {
	h := newHarness(t)
	c := h.client(2, 3)
	ctx := context.Background()

	created := c.Create(ctx, "u-100", "Delta-DL412-2025-12-24", 289)
	require.True(t, created.OK(), created.Message)
	assert.Equal(t, http.StatusCreated, created.HTTPStatus)

	booking, err := created.Booking()
	require.NoError(t, err)
	assert.Equal(t, "u-100", booking.UserID)

	again := c.Create(ctx, "u-100", "Delta-DL412-2025-12-24", 289)
	require.True(t, again.OK())
	assert.Equal(t, http.StatusOK, again.HTTPStatus)

	same, err := again.Booking()
	require.NoError(t, err)
	assert.Equal(t, booking.ID, same.ID)

	got := c.Get(ctx, booking.ID)
	require.True(t, got.OK())

	updated := c.Update(ctx, booking.ID, model.BookingRequest{UserID: "u-100", TripID: "Delta-DL412-2025-12-26", Price: 241})
	require.True(t, updated.OK())

	list := c.List(ctx)
	require.True(t, list.OK())

	var all []model.BookingSummary
	require.NoError(t, list.Decode(&all))
	require.Len(t, all, 1)
	assert.Equal(t, "Delta-DL412-2025-12-26", all[0].TripID)

	deleted := c.Delete(ctx, booking.ID)
	require.True(t, deleted.OK())
	assert.Equal(t, http.StatusNoContent, deleted.HTTPStatus)

	missing := c.Get(ctx, booking.ID)
	assert.False(t, missing.OK())
	assert.Equal(t, http.StatusNotFound, missing.HTTPStatus)
	assert.Contains(t, missing.Message, "booking not found")
	assert.ErrorIs(t, missing.Err(), model.ErrNotFound)
	assert.Nil(t, deleted.Err())
}

func TestClient_Retries(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retries   int
		wantCalls int64
	}{
		{name: "4xx is not retried", status: http.StatusConflict, retries: 2, wantCalls: 1},
		{name: "400 is not retried", status: http.StatusBadRequest, retries: 2, wantCalls: 1},
		{name: "5xx is retried", status: http.StatusInternalServerError, retries: 2, wantCalls: 3},
		{name: "503 is retried", status: http.StatusServiceUnavailable, retries: 1, wantCalls: 2},
		{name: "no retry budget", status: http.StatusBadGateway, retries: 0, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.store.SetHook(func(string, string) int { return tt.status })

			env := h.client(tt.retries, 10).List(context.Background())

			assert.Equal(t, tt.wantCalls, h.calls.Load())
			assert.Equal(t, bookings.StatusError, env.Status)
			assert.Equal(t, tt.status, env.HTTPStatus)
		})
	}
}

func TestClient_RetryRecovers(t *testing.T) {
	h := newHarness(t)

	var failures atomic.Int64
	h.store.SetHook(func(string, string) int {
		if failures.Add(1) == 1 {
			return http.StatusInternalServerError
		}
		return 0
	})

	c := h.client(2, 3)
	env := c.List(context.Background())

	require.True(t, env.OK())
	assert.Equal(t, int64(2), h.calls.Load())
	assert.Equal(t, 0, c.Breaker().Failures())
}

func TestClient_CircuitBreaker(t *testing.T) {
	h := newHarness(t)
	h.store.SetHook(func(string, string) int { return http.StatusInternalServerError })

	c := h.client(0, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		env := c.Get(ctx, "b-1")
		assert.Equal(t, http.StatusInternalServerError, env.HTTPStatus)
	}
	require.Equal(t, int64(3), h.calls.Load())

	env := c.Get(ctx, "b-1")
	assert.Equal(t, int64(3), h.calls.Load(), "fourth call must not reach the transport")
	assert.Equal(t, bookings.StatusError, env.Status)
	assert.Equal(t, http.StatusServiceUnavailable, env.HTTPStatus)
	assert.Equal(t, bookings.MessageCircuitOpen, env.Message)
	assert.ErrorIs(t, env.Err(), model.ErrCircuitOpen)

	// after the window a healthy call closes the circuit again
	h.store.SetHook(nil)
	h.now = h.now.Add(10 * time.Second)

	env = c.List(ctx)
	require.True(t, env.OK())
	assert.Equal(t, int64(4), h.calls.Load())
	assert.Equal(t, 0, c.Breaker().Failures())
}

func TestClient_CircuitOpensBetweenAttempts(t *testing.T) {
	h := newHarness(t)
	h.store.SetHook(func(string, string) int { return http.StatusInternalServerError })

	env := h.client(5, 3).Delete(context.Background(), "b-1")

	assert.Equal(t, int64(3), h.calls.Load())
	assert.Equal(t, bookings.MessageCircuitOpen, env.Message)
}

func TestClient_TransportError(t *testing.T) {
	h := newHarness(t)
	h.server.Close()

	c := h.client(1, 3)
	env := c.Create(context.Background(), "u-1", "A-1-2025-12-24", 10)

	assert.Equal(t, bookings.StatusError, env.Status)
	assert.Equal(t, bookings.StatusTransport, env.HTTPStatus)
	assert.NotEmpty(t, env.Message)
	assert.Equal(t, 2, c.Breaker().Failures())
	assert.Equal(t, model.CodeInternal, model.ErrorCode(env.Err()))
}

func TestClient_IdempotencyHeader(t *testing.T) {
	var key atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key.Store(r.Header.Get(bookings.IdempotencyHeader))
		assert.True(t, strings.HasSuffix(r.URL.Path, "/bookings"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"bookingId":"b-42","userId":"u-100"}`))
	}))
	defer server.Close()

	c := bookings.NewClient(bookings.Options{BaseURL: server.URL, Timeout: time.Second, FailureThreshold: 3, OpenDuration: time.Second})
	env := c.Create(context.Background(), "u-100", "ACMEAir-AC101-2025-12-24", 99.5)

	require.True(t, env.OK())
	assert.Equal(t, "u-100:ACMEAir-AC101-2025-12-24", key.Load())

	booking, err := env.Booking()
	require.NoError(t, err)
	assert.Equal(t, "b-42", booking.ID)
}

func TestEnvelope_Err(t *testing.T) {
	tests := []struct {
		name string
		env  *bookings.Envelope
		want string
	}{
		{name: "not found", env: &bookings.Envelope{Status: bookings.StatusError, HTTPStatus: 404}, want: model.CodeNotFound},
		{name: "bad request", env: &bookings.Envelope{Status: bookings.StatusError, HTTPStatus: 400}, want: model.CodeValidation},
		{name: "circuit", env: &bookings.Envelope{Status: bookings.StatusError, HTTPStatus: 503, Message: bookings.MessageCircuitOpen}, want: model.CodeCircuitOpen},
		{name: "plain 503", env: &bookings.Envelope{Status: bookings.StatusError, HTTPStatus: 503}, want: model.CodeInternal},
		{name: "conflict", env: &bookings.Envelope{Status: bookings.StatusError, HTTPStatus: 409}, want: model.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, model.ErrorCode(tt.env.Err()))
		})
	}
}
