package conversation

import (
	"context"
	"errors"
	"fmt"

	"flightdesk/app/model"
	"flightdesk/app/service/booking"
	"flightdesk/app/service/intent"
	"flightdesk/app/service/selection"
	"flightdesk/app/service/session"

	"github.com/elliotchance/pie/v2"
)

func (s *Service) listBookings(ctx context.Context, state session.State) string {
	list, env := s.booking.List(ctx, state.ActiveUserID)
	if err := env.Err(); err != nil {
		return errorReply(ctx, err)
	}

	if len(list) == 0 {
		return "You have no bookings."
	}

	return "Your bookings:\n" + numbered(list, formatBooking)
}

func (s *Service) createBooking(ctx context.Context, sessionID string, slots intent.Slots) string {
	state := s.sessions.Get(sessionID)

	if len(state.LastSearchResults) > 0 && (slots.Ordinal > 0 || slots.Last || !slots.Criteria.IsZero()) {
		chosen, ok := pick(state.LastSearchResults, slots)
		if !ok {
			return noMatchReply(len(state.LastSearchResults))
		}

		state = s.sessions.Update(sessionID, func(st *session.State) {
			st.Choose(chosen)
		})
	}

	if state.ActiveUserID == "" {
		return "Please tell me your user id so I can book the flight."
	}

	if state.LastChosenFlight == nil {
		if len(state.LastSearchResults) > 0 {
			return "Which flight should I book? Reply with its number from the list."
		}
		return "Let's find a flight first. Tell me where and when you want to fly."
	}

	flight := *state.LastChosenFlight

	env, err := s.booking.Create(ctx, sessionID, state.ActiveUserID, flight.TripID(), flight.Price)
	if err != nil {
		return errorReply(ctx, err)
	}
	if err = env.Err(); err != nil {
		return errorReply(ctx, err)
	}

	created, err := env.Booking()
	if err != nil {
		return errorReply(ctx, err)
	}

	return fmt.Sprintf("Booked %s.\nBooking id: %s (trip %s).", flight.Summary(), created.ID, created.TripID)
}

func (s *Service) cancelBooking(ctx context.Context, sessionID string, slots intent.Slots) string {
	if slots.BookingID != "" {
		return s.cancelByID(ctx, sessionID, slots.BookingID)
	}

	state := s.sessions.Get(sessionID)

	if slots.Last && state.LastBookingID != "" {
		return s.cancelByID(ctx, sessionID, state.LastBookingID)
	}

	if (slots.Ordinal > 0 || slots.Last) && len(state.PendingCancelCandidates) > 0 {
		return s.cancelCandidate(ctx, sessionID, state, slots)
	}

	list, env := s.booking.List(ctx, state.ActiveUserID)
	if err := env.Err(); err != nil {
		return errorReply(ctx, err)
	}

	active := pie.Filter(list, func(b model.BookingSummary) bool {
		return b.Status == model.BookingStatusActive
	})
	if len(active) == 0 {
		return "You have no active bookings to cancel."
	}

	state = s.sessions.Update(sessionID, func(st *session.State) {
		st.PendingCancelCandidates = active
	})

	if slots.Ordinal > 0 {
		return s.cancelCandidate(ctx, sessionID, state, slots)
	}

	return "Which booking should I cancel? Reply with its number:\n" + numbered(active, formatBooking)
}

func (s *Service) cancelCandidate(ctx context.Context, sessionID string, state session.State, slots intent.Slots) string {
	candidates := state.PendingCancelCandidates

	index := slots.Ordinal - 1
	if slots.Last {
		index = len(candidates) - 1
	}

	if index < 0 || index >= len(candidates) {
		return fmt.Sprintf("Please pick a number between 1 and %d.", len(candidates))
	}

	return s.cancelByID(ctx, sessionID, candidates[index].ID)
}

func (s *Service) cancelByID(ctx context.Context, sessionID, bookingID string) string {
	state := s.sessions.Get(sessionID)

	env, err := s.booking.Cancel(ctx, bookingID, state.ActiveUserID)
	if err != nil {
		return errorReply(ctx, err)
	}
	if err = env.Err(); err != nil {
		return errorReply(ctx, err)
	}

	s.sessions.Update(sessionID, func(st *session.State) {
		st.PendingCancelCandidates = nil
		if st.LastBookingID == bookingID {
			st.LastBookingID = ""
		}
		if st.RescheduleTargetBookingID == bookingID {
			st.ClearReschedule()
		}
	})

	return fmt.Sprintf("Booking %s is cancelled.", bookingID)
}

func (s *Service) selectOption(ctx context.Context, sessionID string, slots intent.Slots) string {
	state := s.sessions.Get(sessionID)

	if len(state.PendingCancelCandidates) > 0 && (slots.Ordinal > 0 || slots.Last) {
		return s.cancelCandidate(ctx, sessionID, state, slots)
	}

	if len(state.LastSearchResults) == 0 {
		return "There is nothing to choose from yet. Tell me where and when you want to fly."
	}

	chosen, ok := pick(state.LastSearchResults, slots)
	if !ok {
		return noMatchReply(len(state.LastSearchResults))
	}

	state = s.sessions.Update(sessionID, func(st *session.State) {
		st.Choose(chosen)
	})

	if state.RescheduleTargetBookingID != "" && chosen.Date == state.RescheduleNewDate {
		return fmt.Sprintf("You picked %s.\nSay \"confirm\" to move booking %s to this flight.", chosen.Summary(), state.RescheduleTargetBookingID)
	}

	return fmt.Sprintf("You picked %s.\nSay \"book it\" to book it.", chosen.Summary())
}

func (s *Service) search(ctx context.Context, sessionID string, result intent.Result) string {
	slots := result.Slots

	if slots.Date == "" {
		return fmt.Sprintf("What date do you want to fly from %s to %s? Please use YYYY-MM-DD.", slots.Origin, slots.Destination)
	}

	if result.Kind == intent.KindCheapest {
		flight, err := s.catalog.Cheapest(slots.Origin, slots.Destination, slots.Date)
		if err != nil {
			return errorReply(ctx, err)
		}

		s.sessions.Update(sessionID, func(st *session.State) {
			st.Remember([]model.Flight{*flight})
			st.Choose(*flight)
			if st.RescheduleTargetBookingID != "" {
				st.RescheduleNewDate = slots.Date
			}
		})

		return fmt.Sprintf("The cheapest flight is %s.\nSay \"book it\" to book it.", flight.Summary())
	}

	flights, err := s.catalog.Search(slots.Origin, slots.Destination, slots.Date)
	if err != nil {
		return errorReply(ctx, err)
	}

	state := s.sessions.Update(sessionID, func(st *session.State) {
		st.Remember(flights)
		if st.RescheduleTargetBookingID != "" {
			st.RescheduleNewDate = slots.Date
		}
	})

	if len(flights) == 0 {
		return "I found no flights for that route and date."
	}

	next := "Reply with a number to choose a flight."
	if state.RescheduleStage() == session.StageAwaitingConfirmation {
		next = fmt.Sprintf("Reply with a number to choose, then \"confirm\" to move booking %s.", state.RescheduleTargetBookingID)
	}

	return fmt.Sprintf("Flights from %s to %s on %s:\n%s\n%s",
		flights[0].Origin, flights[0].Destination, slots.Date, numbered(flights, model.Flight.Summary), next)
}

func (s *Service) advise(ctx context.Context, sessionID string, slots intent.Slots) string {
	flights, err := s.catalog.SuggestDestinations(slots.Origin, slots.Date, 0)
	if err != nil {
		return errorReply(ctx, err)
	}

	if len(flights) == 0 {
		return fmt.Sprintf("I have no flights from %s yet.", slots.Origin)
	}

	s.sessions.Update(sessionID, func(st *session.State) {
		st.Remember(flights)
	})

	return fmt.Sprintf("From %s you could fly to:\n%s\nReply with a number to choose.", slots.Origin, numbered(flights, model.Flight.Summary))
}

func (s *Service) startReschedule(ctx context.Context, sessionID string, slots intent.Slots) string {
	state := s.sessions.Get(sessionID)

	target := slots.BookingID
	if target == "" {
		target = state.RescheduleTargetBookingID
	}
	if target == "" {
		target = state.LastBookingID
	}
	if target == "" {
		return "Which booking do you want to reschedule? Send me its booking id."
	}

	date := slots.Date
	if date == "" && target == state.RescheduleTargetBookingID {
		date = state.RescheduleNewDate
	}

	s.sessions.Update(sessionID, func(st *session.State) {
		st.RescheduleTargetBookingID = target
		st.RescheduleNewDate = date
	})

	if date == "" {
		return fmt.Sprintf("What new date do you want for booking %s? Please use YYYY-MM-DD.", target)
	}

	existing, err := s.booking.Get(ctx, target)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.sessions.Update(sessionID, func(st *session.State) {
				st.ClearReschedule()
			})
		}
		return errorReply(ctx, err)
	}

	current, ok := s.catalog.LookupByTripID(existing.TripID)
	if !ok {
		s.sessions.Update(sessionID, func(st *session.State) {
			st.ClearReschedule()
		})
		return fmt.Sprintf("I could not find the flight %s of booking %s.", existing.TripID, target)
	}

	flights, err := s.catalog.Search(current.Origin, current.Destination, date)
	if err != nil {
		return errorReply(ctx, err)
	}

	cheapest, ok := selection.Select(flights, selection.Criteria{Cheapest: true})
	if !ok {
		return fmt.Sprintf("I found no flights from %s to %s on %s.", current.Origin, current.Destination, date)
	}

	s.sessions.Update(sessionID, func(st *session.State) {
		st.Remember(flights)
		st.Choose(cheapest)
	})

	return fmt.Sprintf("Booking %s (%s) can move to %s.\nSay \"confirm\" to reschedule, or pick another option:\n%s",
		target, existing.TripID, cheapest.Summary(), numbered(flights, model.Flight.Summary))
}

func (s *Service) confirmReschedule(ctx context.Context, sessionID string) string {
	state := s.sessions.Get(sessionID)
	target := state.RescheduleTargetBookingID

	if state.RescheduleStage() != session.StageAwaitingConfirmation {
		return fmt.Sprintf("What new date do you want for booking %s? Please use YYYY-MM-DD.", target)
	}

	if state.ActiveUserID == "" {
		return "Please tell me your user id before I reschedule the booking."
	}

	chosen, ok := rescheduleChoice(state)
	if !ok {
		return noMatchReply(len(state.LastSearchResults))
	}

	result := s.booking.Reschedule(ctx, sessionID, target, state.RescheduleNewDate, chosen, state.ActiveUserID)

	switch result.Outcome {
	case booking.OutcomeCompleted:
		return fmt.Sprintf("Done. Booking %s is cancelled and you are booked on %s.\nNew booking id: %s.",
			target, chosen.Summary(), result.NewBookingID)
	case booking.OutcomeRolledBack:
		if errors.Is(result.Err, model.ErrOwnership) {
			s.sessions.Update(sessionID, func(st *session.State) {
				st.ClearReschedule()
			})
			return fmt.Sprintf("I could not reschedule: %s. Nothing was changed.", result.Reason)
		}
		return fmt.Sprintf("I could not reschedule: %s. Your original booking is unchanged. Say \"confirm\" to try again.", result.Reason)
	default:
		return fmt.Sprintf("Reschedule failed: %s.", result.Reason)
	}
}

// rescheduleChoice prefers the chosen flight when it is on the new date and
// falls back to the cheapest flight of that date.
func rescheduleChoice(state session.State) (model.Flight, bool) {
	if f := state.LastChosenFlight; f != nil && f.Date == state.RescheduleNewDate {
		return *f, true
	}

	return selection.Select(state.LastSearchResults, selection.Criteria{
		Cheapest: true,
		Date:     state.RescheduleNewDate,
	})
}

func pick(flights []model.Flight, slots intent.Slots) (model.Flight, bool) {
	criteria := slots.Criteria
	if slots.Ordinal > 0 {
		criteria.Ordinal = slots.Ordinal
	}

	if slots.Last {
		filtered := selection.Filter(flights, criteria)
		if len(filtered) == 0 {
			return model.Flight{}, false
		}
		return filtered[len(filtered)-1], true
	}

	return selection.Select(flights, criteria)
}
