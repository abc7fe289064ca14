package booking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"flightdesk/app/client/bookings"
	"flightdesk/app/model"
	"flightdesk/app/service/session"
	"flightdesk/app/util/mylog"

	"github.com/elliotchance/pie/v2"
	"github.com/go-playground/validator/v10"
	"github.com/samber/do"
	"github.com/samber/oops"
)

// Service runs booking operations against the booking store and keeps the
// session pointers to the latest booking up to date.
type Service struct {
	client   *bookings.Client
	sessions *session.Store
	validate *validator.Validate
}

func New(di *do.Injector) (*Service, error) {
	return NewService(
		do.MustInvoke[*bookings.Client](di),
		do.MustInvoke[*session.Store](di),
	), nil
}

func NewService(client *bookings.Client, sessions *session.Store) *Service {
	return &Service{
		client:   client,
		sessions: sessions,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Create books tripID for userID and remembers the new id in the session.
// Validation problems are returned as errors, downstream failures as the
// envelope.
func (s *Service) Create(ctx context.Context, sessionID, userID, tripID string, price float64) (*bookings.Envelope, error) {
	req := model.BookingRequest{
		UserID: userID,
		TripID: tripID,
		Price:  price,
	}

	if err := s.validate.Struct(req); err != nil {
		return nil, oops.In("booking").Code(model.CodeValidation).Wrapf(model.ErrValidation, "%s", err.Error())
	}

	env := s.client.Create(ctx, userID, tripID, price)
	if !env.OK() {
		slog.WarnContext(ctx, "Booking create failed",
			"user_id", userID,
			"trip_id", tripID,
			"http_status", env.HTTPStatus,
			"message", env.Message,
		)
		return env, nil
	}

	created, err := env.Booking()
	if err != nil {
		return env, fmt.Errorf("failed to decode created booking: %w", err)
	}

	if created.ID != "" {
		s.sessions.Update(sessionID, func(st *session.State) {
			st.LastBookingID = created.ID
		})
	}

	slog.InfoContext(ctx, "Booking created",
		"booking_id", created.ID,
		"user_id", userID,
		"trip_id", tripID,
		mylog.TelegramKey, true,
	)

	return env, nil
}

// Cancel deletes a booking. With a known active user the owner is checked
// first.
func (s *Service) Cancel(ctx context.Context, bookingID, activeUserID string) (*bookings.Envelope, error) {
	if bookingID == "" {
		return nil, oops.In("booking").Code(model.CodeValidation).Wrapf(model.ErrValidation, "booking id is required")
	}

	if activeUserID != "" {
		env := s.client.Get(ctx, bookingID)
		if !env.OK() {
			return env, nil
		}

		existing, err := env.Booking()
		if err != nil {
			return env, fmt.Errorf("failed to decode booking: %w", err)
		}

		if existing.UserID != activeUserID {
			return nil, ownershipError(bookingID, activeUserID)
		}
	}

	env := s.client.Delete(ctx, bookingID)
	if env.OK() {
		slog.InfoContext(ctx, "Booking cancelled",
			"booking_id", bookingID,
			"user_id", activeUserID,
			mylog.TelegramKey, true,
		)
	}

	return env, nil
}

// List returns bookings newest first, only the user's when userID is set.
func (s *Service) List(ctx context.Context, userID string) ([]model.BookingSummary, *bookings.Envelope) {
	env := s.client.List(ctx)
	if !env.OK() {
		return nil, env
	}

	var all []model.BookingSummary
	if len(env.Data) > 0 {
		if err := env.Decode(&all); err != nil {
			slog.ErrorContext(ctx, "Failed to decode booking list", "error", err)
			return nil, &bookings.Envelope{
				Status:     bookings.StatusError,
				HTTPStatus: env.HTTPStatus,
				Message:    err.Error(),
			}
		}
	}

	if userID != "" {
		all = pie.Filter(all, func(b model.BookingSummary) bool {
			return b.UserID == userID
		})
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	return all, env
}

func ownershipError(bookingID, userID string) error {
	return oops.In("booking").
		Code(model.CodeOwnership).
		With("booking_id", bookingID).
		Wrapf(model.ErrOwnership, "booking %s does not belong to %s", bookingID, userID)
}

// Get fetches one booking.
func (s *Service) Get(ctx context.Context, bookingID string) (model.BookingSummary, error) {
	env := s.client.Get(ctx, bookingID)
	if err := env.Err(); err != nil {
		return model.BookingSummary{}, err
	}

	return env.Booking()
}

// Update changes the trip, price or status of a booking owned by
// activeUserID. Empty fields of change keep their current value and the
// owner never changes.
func (s *Service) Update(ctx context.Context, bookingID, activeUserID string, change model.BookingRequest) (*bookings.Envelope, error) {
	if bookingID == "" {
		return nil, oops.In("booking").Code(model.CodeValidation).Wrapf(model.ErrValidation, "booking id is required")
	}
	if activeUserID == "" {
		return nil, oops.In("booking").Code(model.CodeValidation).Wrapf(model.ErrValidation, "an active user is required to update a booking")
	}

	env := s.client.Get(ctx, bookingID)
	if !env.OK() {
		return env, nil
	}

	existing, err := env.Booking()
	if err != nil {
		return env, fmt.Errorf("failed to decode booking: %w", err)
	}

	if existing.UserID != activeUserID {
		return nil, ownershipError(bookingID, activeUserID)
	}

	req := model.BookingRequest{
		UserID: existing.UserID,
		TripID: existing.TripID,
		Price:  existing.Price,
		Status: existing.Status,
	}
	if change.TripID != "" {
		req.TripID = change.TripID
	}
	if change.Price > 0 {
		req.Price = change.Price
	}
	if change.Status != "" {
		req.Status = change.Status
	}

	if err = s.validate.Struct(req); err != nil {
		return nil, oops.In("booking").Code(model.CodeValidation).Wrapf(model.ErrValidation, "%s", err.Error())
	}

	env = s.client.Update(ctx, bookingID, req)
	if env.OK() {
		slog.InfoContext(ctx, "Booking updated",
			"booking_id", bookingID,
			"user_id", activeUserID,
			"trip_id", req.TripID,
		)
	}

	return env, nil
}
