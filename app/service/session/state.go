package session

import (
	"slices"

	"flightdesk/app/model"
)

type Stage string

const (
	StageIdle                 Stage = "IDLE"
	StageAwaitingDate         Stage = "AWAITING_DATE"
	StageAwaitingConfirmation Stage = "AWAITING_CONFIRMATION"
)

// State is the cross-turn memory of one conversation.
type State struct {
	LastSearchResults []model.Flight `json:"lastSearchResults,omitempty"`
	LastChosenFlight  *model.Flight  `json:"lastChosenFlight,omitempty"`

	ActiveUserID  string `json:"activeUserId,omitempty"`
	LastBookingID string `json:"lastBookingId,omitempty"`

	RescheduleTargetBookingID string `json:"rescheduleTargetBookingId,omitempty"`
	RescheduleNewDate         string `json:"rescheduleNewDate,omitempty"`

	PendingCancelCandidates []model.BookingSummary `json:"pendingCancelCandidates,omitempty"`
}

// RescheduleStage derives the reschedule workflow position from the fields
// present, so a conversation resumes correctly after unrelated turns.
func (s State) RescheduleStage() Stage {
	switch {
	case s.RescheduleTargetBookingID == "":
		return StageIdle
	case s.RescheduleNewDate == "":
		return StageAwaitingDate
	case s.hasCandidatesOn(s.RescheduleNewDate):
		return StageAwaitingConfirmation
	default:
		return StageAwaitingDate
	}
}

func (s State) hasCandidatesOn(date string) bool {
	return slices.ContainsFunc(s.LastSearchResults, func(f model.Flight) bool {
		return f.Date == date
	})
}

// Remember replaces the last search and drops a chosen flight that is not
// part of it.
func (s *State) Remember(results []model.Flight) {
	s.LastSearchResults = slices.Clone(results)

	if s.LastChosenFlight != nil && !s.inLastSearch(*s.LastChosenFlight) {
		s.LastChosenFlight = nil
	}
}

// Choose marks f as chosen. Only flights of the last search can be chosen.
func (s *State) Choose(f model.Flight) bool {
	if !s.inLastSearch(f) {
		return false
	}

	chosen := f
	s.LastChosenFlight = &chosen

	return true
}

func (s State) inLastSearch(f model.Flight) bool {
	id := f.TripID()

	return slices.ContainsFunc(s.LastSearchResults, func(candidate model.Flight) bool {
		return candidate.TripID() == id
	})
}

func (s *State) ClearReschedule() {
	s.RescheduleTargetBookingID = ""
	s.RescheduleNewDate = ""
}

func (s State) Clone() State {
	out := s
	out.LastSearchResults = slices.Clone(s.LastSearchResults)
	out.PendingCancelCandidates = slices.Clone(s.PendingCancelCandidates)

	if s.LastChosenFlight != nil {
		chosen := *s.LastChosenFlight
		out.LastChosenFlight = &chosen
	}

	return out
}
