package booking

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"flightdesk/app/client/bookings"
	"flightdesk/app/model"
	"flightdesk/app/service/bookingstore"
	"flightdesk/app/service/session"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sessionID = "s-1"

var newFlight = model.Flight{
	Carrier:      "Delta",
	FlightNumber: "DL412",
	Origin:       "SFO",
	Destination:  "JFK",
	Date:         "2025-12-26",
	Price:        241,
}

type harness struct {
	store    *bookingstore.Service
	sessions *session.Store
	svc      *Service

	mu       sync.Mutex
	requests []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:    bookingstore.NewService("", nil),
		sessions: session.NewStore(20, nil),
	}

	handler := adaptor.FiberApp(h.store.App())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.requests = append(h.requests, r.Method+" "+r.URL.Path)
		h.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client := bookings.NewClient(bookings.Options{
		BaseURL:          server.URL + "/api",
		Timeout:          2 * time.Second,
		Retries:          0,
		FailureThreshold: 100,
		OpenDuration:     time.Second,
	})

	h.svc = NewService(client, h.sessions)

	return h
}

func (h *harness) seed(t *testing.T, userID, tripID string) string {
	t.Helper()

	booking, _ := h.store.Store().Create(model.BookingRequest{UserID: userID, TripID: tripID, Price: 289}, "")
	return booking.ID
}

func (h *harness) deletes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []string
	for _, r := range h.requests {
		if strings.HasPrefix(r, http.MethodDelete) {
			out = append(out, r)
		}
	}

	return out
}

func (h *harness) status(id string) string {
	booking, ok := h.store.Store().Get(id)
	if !ok {
		return "MISSING"
	}

	return booking.Status
}

func TestCreate(t *testing.T) {
	h := newHarness(t)

	env, err := h.svc.Create(context.Background(), sessionID, "u-100", newFlight.TripID(), newFlight.Price)
	require.NoError(t, err)
	require.True(t, env.OK(), env.Message)

	created, err := env.Booking()
	require.NoError(t, err)
	assert.Equal(t, "Delta-DL412-2025-12-26", created.TripID)
	assert.Equal(t, created.ID, h.sessions.Get(sessionID).LastBookingID)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		tripID string
		price  float64
	}{
		{name: "missing user", tripID: "Delta-DL412-2025-12-26", price: 10},
		{name: "missing trip", userID: "u-100", price: 10},
		{name: "negative price", userID: "u-100", tripID: "Delta-DL412-2025-12-26", price: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			env, err := h.svc.Create(context.Background(), sessionID, tt.userID, tt.tripID, tt.price)
			assert.Nil(t, env)
			assert.ErrorIs(t, err, model.ErrValidation)
			assert.Empty(t, h.requests)
		})
	}
}

func TestCancel(t *testing.T) {
	tests := []struct {
		name       string
		owner      string
		activeUser string
		wantErr    error
		wantStatus string
	}{
		{name: "owner", owner: "u-100", activeUser: "u-100", wantStatus: "MISSING"},
		{name: "no active user", owner: "u-100", wantStatus: "MISSING"},
		{name: "other user", owner: "u-100", activeUser: "u-200", wantErr: model.ErrOwnership, wantStatus: model.BookingStatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			id := h.seed(t, tt.owner, "United-UA1536-2025-12-24")

			env, err := h.svc.Cancel(context.Background(), id, tt.activeUser)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, h.deletes())
			} else {
				require.NoError(t, err)
				assert.True(t, env.OK())
			}

			assert.Equal(t, tt.wantStatus, h.status(id))
		})
	}
}

func TestCancel_Missing(t *testing.T) {
	h := newHarness(t)

	env, err := h.svc.Cancel(context.Background(), "nope", "u-100")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, env.HTTPStatus)
	assert.Empty(t, h.deletes())

	_, err = h.svc.Cancel(context.Background(), "", "u-100")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestList_FiltersByUser(t *testing.T) {
	h := newHarness(t)
	first := h.seed(t, "u-100", "A-1-2025-12-24")
	h.seed(t, "u-200", "B-2-2025-12-24")
	third := h.seed(t, "u-100", "C-3-2025-12-24")

	mine, env := h.svc.List(context.Background(), "u-100")
	require.True(t, env.OK())
	require.Len(t, mine, 2)
	assert.Equal(t, third, mine[0].ID)
	assert.Equal(t, first, mine[1].ID)

	all, _ := h.svc.List(context.Background(), "")
	assert.Len(t, all, 3)
}

func TestReschedule_Completed(t *testing.T) {
	h := newHarness(t)
	target := h.seed(t, "u-100", "United-UA1536-2025-12-24")
	h.sessions.Update(sessionID, func(st *session.State) {
		st.RescheduleTargetBookingID = target
		st.RescheduleNewDate = "2025-12-26"
	})

	res := h.svc.Reschedule(context.Background(), sessionID, target, "2025-12-26", newFlight, "u-100")

	require.Equal(t, OutcomeCompleted, res.Outcome, res.Reason)
	assert.NotEmpty(t, res.NewBookingID)
	assert.Equal(t, "MISSING", h.status(target))
	assert.Equal(t, model.BookingStatusActive, h.status(res.NewBookingID))

	st := h.sessions.Get(sessionID)
	assert.Equal(t, res.NewBookingID, st.LastBookingID)
	assert.Equal(t, session.StageIdle, st.RescheduleStage())
	assert.Empty(t, st.RescheduleNewDate)
}

func TestReschedule_CreateFailsCancelsNothing(t *testing.T) {
	h := newHarness(t)
	target := h.seed(t, "u-100", "United-UA1536-2025-12-24")
	h.store.SetHook(func(method, path string) int {
		if method == http.MethodPost {
			return http.StatusConflict
		}
		return 0
	})

	res := h.svc.Reschedule(context.Background(), sessionID, target, "2025-12-26", newFlight, "u-100")

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Reason, "could not create the new booking")
	assert.Empty(t, h.deletes())
	assert.Equal(t, model.BookingStatusActive, h.status(target))
}

func TestReschedule_CancelFailsRollsBack(t *testing.T) {
	h := newHarness(t)
	target := h.seed(t, "u-100", "United-UA1536-2025-12-24")
	h.store.SetHook(func(method, path string) int {
		if method == http.MethodDelete && path == "/api/bookings/"+target {
			return http.StatusInternalServerError
		}
		return 0
	})
	h.sessions.Update(sessionID, func(st *session.State) {
		st.RescheduleTargetBookingID = target
	})

	res := h.svc.Reschedule(context.Background(), sessionID, target, "2025-12-26", newFlight, "u-100")

	require.Equal(t, OutcomeRolledBack, res.Outcome, res.Reason)
	assert.Empty(t, res.NewBookingID)
	assert.Equal(t, model.BookingStatusActive, h.status(target))
	assert.Len(t, h.store.Store().List(), 1)
	assert.Len(t, h.deletes(), 2)

	// the workflow stays so it can be confirmed again
	assert.Equal(t, target, h.sessions.Get(sessionID).RescheduleTargetBookingID)
}

func TestReschedule_OwnershipRollsBack(t *testing.T) {
	h := newHarness(t)
	target := h.seed(t, "u-200", "United-UA1536-2025-12-24")

	res := h.svc.Reschedule(context.Background(), sessionID, target, "2025-12-26", newFlight, "u-100")

	require.Equal(t, OutcomeRolledBack, res.Outcome)
	assert.ErrorIs(t, res.Err, model.ErrOwnership)
	assert.Contains(t, res.Reason, "belongs to another user")
	assert.Equal(t, model.BookingStatusActive, h.status(target))
	assert.Len(t, h.store.Store().List(), 1)
}

func TestReschedule_MissingTargetRollsBack(t *testing.T) {
	h := newHarness(t)

	res := h.svc.Reschedule(context.Background(), sessionID, "gone", "2025-12-26", newFlight, "u-100")

	require.Equal(t, OutcomeRolledBack, res.Outcome)
	assert.ErrorIs(t, res.Err, model.ErrNotFound)
	assert.Empty(t, h.store.Store().List())
}

func TestReschedule_CompensationFailureReportsOrphan(t *testing.T) {
	h := newHarness(t)
	target := h.seed(t, "u-100", "United-UA1536-2025-12-24")
	h.store.SetHook(func(method, path string) int {
		if method == http.MethodDelete {
			return http.StatusConflict
		}
		return 0
	})

	res := h.svc.Reschedule(context.Background(), sessionID, target, "2025-12-26", newFlight, "u-100")

	require.Equal(t, OutcomeFailed, res.Outcome)
	require.NotEmpty(t, res.NewBookingID)
	assert.Contains(t, res.Reason, res.NewBookingID)
	assert.Contains(t, res.Reason, target)
	assert.Contains(t, res.Reason, "injected failure 409")

	// one cancel attempt and one compensation attempt, nothing more
	assert.Len(t, h.deletes(), 2)
	assert.Equal(t, model.BookingStatusActive, h.status(target))
	assert.Equal(t, model.BookingStatusActive, h.status(res.NewBookingID))
}

func TestReschedule_SameFlight(t *testing.T) {
	h := newHarness(t)

	env, err := h.svc.Create(context.Background(), sessionID, "u-100", newFlight.TripID(), newFlight.Price)
	require.NoError(t, err)
	existing, err := env.Booking()
	require.NoError(t, err)

	res := h.svc.Reschedule(context.Background(), sessionID, existing.ID, "2025-12-26", newFlight, "u-100")

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, "already booked on this flight", res.Reason)
	assert.Empty(t, h.deletes())
	assert.Equal(t, model.BookingStatusActive, h.status(existing.ID))
}

func TestReschedule_ExistingBookingOnChosenFlightIsKept(t *testing.T) {
	h := newHarness(t)

	env, err := h.svc.Create(context.Background(), sessionID, "u-1", newFlight.TripID(), newFlight.Price)
	require.NoError(t, err)
	existing, err := env.Booking()
	require.NoError(t, err)

	target := h.seed(t, "u-2", "United-UA1536-2025-12-24")

	res := h.svc.Reschedule(context.Background(), sessionID, target, "2025-12-26", newFlight, "u-1")

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, existing.ID, res.NewBookingID)
	assert.Contains(t, res.Reason, "already hold booking "+existing.ID)
	assert.Empty(t, h.deletes())
	assert.Equal(t, model.BookingStatusActive, h.status(existing.ID))
	assert.Equal(t, model.BookingStatusActive, h.status(target))
}

func TestUpdate(t *testing.T) {
	tests := []struct {
		name       string
		activeUser string
		change     model.BookingRequest
		wantErr    error
		wantTrip   string
		wantPrice  float64
	}{
		{
			name:       "new trip and price",
			activeUser: "u-100",
			change:     model.BookingRequest{TripID: newFlight.TripID(), Price: newFlight.Price},
			wantTrip:   newFlight.TripID(),
			wantPrice:  newFlight.Price,
		},
		{
			name:       "price only",
			activeUser: "u-100",
			change:     model.BookingRequest{Price: 199},
			wantTrip:   "United-UA1536-2025-12-24",
			wantPrice:  199,
		},
		{
			name:       "owner is kept",
			activeUser: "u-100",
			change:     model.BookingRequest{UserID: "u-200", Status: model.BookingStatusCancelled},
			wantTrip:   "United-UA1536-2025-12-24",
			wantPrice:  289,
		},
		{
			name:       "other user",
			activeUser: "u-200",
			change:     model.BookingRequest{Price: 1},
			wantErr:    model.ErrOwnership,
			wantTrip:   "United-UA1536-2025-12-24",
			wantPrice:  289,
		},
		{
			name:      "no active user",
			change:    model.BookingRequest{Price: 1},
			wantErr:   model.ErrValidation,
			wantTrip:  "United-UA1536-2025-12-24",
			wantPrice: 289,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			id := h.seed(t, "u-100", "United-UA1536-2025-12-24")

			env, err := h.svc.Update(context.Background(), id, tt.activeUser, tt.change)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				require.True(t, env.OK(), env.Message)
			}

			stored, ok := h.store.Store().Get(id)
			require.True(t, ok)
			assert.Equal(t, "u-100", stored.UserID)
			assert.Equal(t, tt.wantTrip, stored.TripID)
			assert.Equal(t, tt.wantPrice, stored.Price)
		})
	}
}

func TestUpdate_Missing(t *testing.T) {
	h := newHarness(t)

	env, err := h.svc.Update(context.Background(), "nope", "u-100", model.BookingRequest{Price: 1})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, env.HTTPStatus)
}
