package intent

import (
	"context"
	"log/slog"
	"strings"

	"flightdesk/app/service/selection"
	"flightdesk/app/service/session"

	"github.com/samber/do"
)

type Kind string

const (
	KindListBookings      Kind = "LIST_BOOKINGS"
	KindCreateBooking     Kind = "CREATE_BOOKING"
	KindCancelBooking     Kind = "CANCEL_BOOKING"
	KindStartReschedule   Kind = "START_RESCHEDULE"
	KindConfirmReschedule Kind = "CONFIRM_RESCHEDULE"
	KindOrdinalSelection  Kind = "ORDINAL_SELECTION"
	KindSearch            Kind = "SEARCH"
	KindCheapest          Kind = "CHEAPEST"
	KindAdvice            Kind = "ADVICE"
	KindUnknown           Kind = "UNKNOWN"
)

type Slots struct {
	Origin      string `json:"origin,omitempty"`
	Destination string `json:"destination,omitempty"`
	Date        string `json:"date,omitempty"`
	BookingID   string `json:"bookingId,omitempty"`
	Ordinal     int    `json:"ordinal,omitempty"`
	Last        bool   `json:"last,omitempty"`

	Criteria selection.Criteria `json:"criteria,omitzero"`
}

type Result struct {
	Kind  Kind  `json:"kind"`
	Slots Slots `json:"slots"`
}

// DateNormalizer turns free text into a YYYY-MM-DD date. An empty string
// means the text carries no usable date.
type DateNormalizer interface {
	Normalize(ctx context.Context, text string) (string, error)
}

// Engine classifies user messages with ordered keyword rules. The only
// external call it makes is date normalization.
type Engine struct {
	dates DateNormalizer
}

func New(di *do.Injector) (*Engine, error) {
	return NewEngine(do.MustInvoke[*DateExtractor](di)), nil
}

func NewEngine(dates DateNormalizer) *Engine {
	return &Engine{dates: dates}
}

// message caches what several rules look at, and resolves the date lazily so
// that rules which never need it never trigger a model call.
type message struct {
	ctx    context.Context
	engine *Engine

	raw       string
	lower     string
	tokens    []string
	bookingID string
	route     *route

	dateResolved bool
	date         string
}

func (m *message) resolveDate() string {
	if m.dateResolved {
		return m.date
	}
	m.dateResolved = true

	if iso := isoDatePattern.FindString(m.raw); iso != "" {
		m.date = iso
		return m.date
	}

	withoutIDs := bookingIDPattern.ReplaceAllString(m.lower, " ")
	if m.engine.dates == nil || !hasDateHint(withoutIDs) {
		return ""
	}

	date, err := m.engine.dates.Normalize(m.ctx, m.raw)
	if err != nil {
		slog.WarnContext(m.ctx, "Date normalization failed",
			"text", m.raw,
			"error", err,
		)
		return ""
	}

	m.date = date
	return m.date
}

// Classify evaluates the rules in order and returns the first match.
func (e *Engine) Classify(ctx context.Context, text string, state session.State) Result {
	raw := strings.TrimSpace(text)
	lower := strings.ToLower(raw)

	m := &message{
		ctx:       ctx,
		engine:    e,
		raw:       raw,
		lower:     lower,
		tokens:    tokenize(lower),
		bookingID: bookingIDPattern.FindString(lower),
		route:     extractRoute(raw),
	}

	cancel := cancelPattern.MatchString(lower)
	pending := state.RescheduleTargetBookingID != ""

	// 1-2: cancellation wording never lists bookings
	if !cancel && isListBookings(m) {
		return Result{Kind: KindListBookings}
	}

	// 3
	if rescheduleStart(m, cancel, pending) {
		return Result{Kind: KindStartReschedule, Slots: Slots{BookingID: m.bookingID, Date: m.resolveDate()}}
	}

	// 4
	if pending && isConfirmation(m) {
		return Result{Kind: KindConfirmReschedule}
	}

	// 5
	if !cancel && m.route == nil && isCreate(m) {
		n, last := parseOrdinal(m.tokens)
		return Result{Kind: KindCreateBooking, Slots: Slots{
			Ordinal:  n,
			Last:     last,
			Criteria: extractCriteria(lower),
		}}
	}

	// 6
	if cancel {
		n, last := parseOrdinal(m.tokens)
		if m.bookingID != "" || n > 0 || last || bookingWordPattern.MatchString(lower) || onlyWords(m.tokens, cancelWords, fillerWords) {
			return Result{Kind: KindCancelBooking, Slots: Slots{BookingID: m.bookingID, Ordinal: n, Last: last}}
		}
	}

	// 7
	if n, last, ok := ordinalOnly(m.tokens); ok {
		return Result{Kind: KindOrdinalSelection, Slots: Slots{Ordinal: n, Last: last}}
	}
	if m.route == nil && len(state.LastSearchResults) > 0 {
		if criteria := extractCriteria(lower); !criteria.IsZero() && criteriaOnly(m.tokens) {
			return Result{Kind: KindOrdinalSelection, Slots: Slots{Criteria: criteria}}
		}
	}

	// 8
	cheapest := cheapestPattern.MatchString(lower)
	advice := advicePattern.MatchString(lower)

	if m.route != nil {
		kind := KindSearch
		if cheapest || advice {
			kind = KindCheapest
		}

		return Result{Kind: kind, Slots: Slots{
			Origin:      m.route.origin,
			Destination: m.route.destination,
			Date:        m.resolveDate(),
		}}
	}

	if advice {
		if origin := extractOrigin(raw); origin != "" {
			return Result{Kind: KindAdvice, Slots: Slots{Origin: origin, Date: m.resolveDate()}}
		}
	}

	return Result{Kind: KindUnknown}
}

func rescheduleStart(m *message, cancel, pending bool) bool {
	if reschedulePattern.MatchString(m.lower) {
		return true
	}

	if m.bookingID != "" && !cancel && m.resolveDate() != "" {
		return true
	}

	return pending && m.route == nil && !cancel && m.resolveDate() != ""
}
