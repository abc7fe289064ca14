package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"flightdesk/app/client/bookings"
	"flightdesk/app/model"
	"flightdesk/app/service/session"
	"flightdesk/app/util/mylog"

	"github.com/samber/oops"
)

type Outcome string

const (
	OutcomeCompleted  Outcome = "COMPLETED"
	OutcomeRolledBack Outcome = "ROLLED_BACK"
	OutcomeFailed     Outcome = "FAILED"
)

// SagaResult describes how a reschedule ended. Err classifies the failure
// and Envelope holds the downstream response that caused it, if any.
type SagaResult struct {
	Outcome      Outcome
	NewBookingID string
	Reason       string
	Err          error
	Envelope     *bookings.Envelope
}

// Reschedule books the chosen flight first and cancels the target only after
// that succeeded. Any failure after the new booking exists deletes it again.
func (s *Service) Reschedule(
	ctx context.Context,
	sessionID, targetID, newDate string,
	chosen model.Flight,
	activeUserID string,
) SagaResult {
	logger := slog.With(
		"session_id", sessionID,
		"target_id", targetID,
		"new_date", newDate,
		"trip_id", chosen.TripID(),
	)

	if targetID == "" || activeUserID == "" {
		return SagaResult{
			Outcome: OutcomeFailed,
			Reason:  "a target booking and a user id are required",
			Err:     oops.In("booking").Code(model.CodeValidation).Wrapf(model.ErrValidation, "missing target or user"),
		}
	}

	created := s.client.Create(ctx, activeUserID, chosen.TripID(), chosen.Price)
	if !created.OK() {
		logger.WarnContext(ctx, "Reschedule create failed", "http_status", created.HTTPStatus, "message", created.Message)

		return SagaResult{
			Outcome:  OutcomeFailed,
			Reason:   "could not create the new booking: " + describe(created),
			Err:      created.Err(),
			Envelope: created,
		}
	}

	newBooking, err := created.Booking()
	if err == nil && newBooking.ID == "" {
		err = errors.New("booking id is missing")
	}
	if err != nil {
		return SagaResult{
			Outcome:  OutcomeFailed,
			Reason:   "the booking service returned no booking id",
			Err:      err,
			Envelope: created,
		}
	}

	if newBooking.ID == targetID {
		return SagaResult{
			Outcome:      OutcomeFailed,
			NewBookingID: newBooking.ID,
			Reason:       "already booked on this flight",
			Envelope:     created,
		}
	}

	// an idempotent replay returns a booking this saga does not own, so it
	// must never be compensated
	if created.HTTPStatus != http.StatusCreated {
		logger.WarnContext(ctx, "Reschedule target flight already booked", "existing_booking_id", newBooking.ID)

		return SagaResult{
			Outcome:      OutcomeFailed,
			NewBookingID: newBooking.ID,
			Reason:       fmt.Sprintf("you already hold booking %s on this flight", newBooking.ID),
			Envelope:     created,
		}
	}

	target := s.client.Get(ctx, targetID)
	if !target.OK() {
		return s.compensate(ctx, logger, newBooking.ID, targetID,
			"could not load booking "+targetID+": "+describe(target), target.Err(), target)
	}

	existing, err := target.Booking()
	if err != nil {
		return s.compensate(ctx, logger, newBooking.ID, targetID,
			"could not read booking "+targetID, err, target)
	}

	if existing.UserID != activeUserID {
		return s.compensate(ctx, logger, newBooking.ID, targetID,
			"booking "+targetID+" belongs to another user", ownershipError(targetID, activeUserID), target)
	}

	deleted := s.client.Delete(ctx, targetID)
	if !deleted.OK() {
		return s.compensate(ctx, logger, newBooking.ID, targetID,
			"could not cancel booking "+targetID+": "+describe(deleted), deleted.Err(), deleted)
	}

	s.sessions.Update(sessionID, func(st *session.State) {
		st.LastBookingID = newBooking.ID
		st.ClearReschedule()
	})

	logger.InfoContext(ctx, "Booking rescheduled",
		"new_booking_id", newBooking.ID,
		mylog.TelegramKey, true,
	)

	return SagaResult{
		Outcome:      OutcomeCompleted,
		NewBookingID: newBooking.ID,
		Envelope:     created,
	}
}

// compensate deletes the booking created in the first phase. A failed
// compensation is not retried further; the orphan is reported instead.
func (s *Service) compensate(
	ctx context.Context,
	logger *slog.Logger,
	newID, targetID, reason string,
	cause error,
	env *bookings.Envelope,
) SagaResult {
	rollback := s.client.Delete(ctx, newID)
	if !rollback.OK() {
		logger.ErrorContext(ctx, "Reschedule compensation failed",
			"orphan_booking_id", newID,
			"http_status", rollback.HTTPStatus,
			"message", rollback.Message,
			mylog.TelegramKey, true,
		)

		return SagaResult{
			Outcome:      OutcomeFailed,
			NewBookingID: newID,
			Reason: fmt.Sprintf("%s; rollback failed: new booking %s is still active and booking %s was kept (%s)",
				reason, newID, targetID, describe(rollback)),
			Err:      errors.Join(cause, rollback.Err()),
			Envelope: rollback,
		}
	}

	logger.WarnContext(ctx, "Reschedule rolled back",
		"rolled_back_booking_id", newID,
		"reason", reason,
	)

	return SagaResult{
		Outcome:  OutcomeRolledBack,
		Reason:   reason,
		Err:      cause,
		Envelope: env,
	}
}

func describe(env *bookings.Envelope) string {
	if env.Message != "" {
		return fmt.Sprintf("%d %s", env.HTTPStatus, env.Message)
	}

	return fmt.Sprint(env.HTTPStatus)
}
