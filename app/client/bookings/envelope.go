package bookings

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"flightdesk/app/model"

	"github.com/samber/oops"
)

const (
	StatusOK    = "OK"
	StatusError = "ERROR"

	// StatusTransport is reported when no HTTP response was received.
	StatusTransport = 599

	MessageCircuitOpen = "CIRCUIT_OPEN"
)

// Envelope is the normalized outcome of a booking store call.
type Envelope struct {
	Status     string          `json:"status"`
	HTTPStatus int             `json:"httpStatus"`
	Message    string          `json:"message,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

func (e *Envelope) OK() bool {
	return e != nil && e.Status == StatusOK
}

func (e *Envelope) Decode(v any) error {
	if e == nil || len(e.Data) == 0 {
		return errors.New("empty response body")
	}

	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}

	return nil
}

// Err classifies a failed envelope. It returns nil for successful ones.
func (e *Envelope) Err() error {
	if e.OK() {
		return nil
	}
	if e == nil {
		return errors.New("no response")
	}

	builder := oops.In("bookings").With("http_status", e.HTTPStatus)

	switch {
	case e.HTTPStatus == http.StatusServiceUnavailable && e.Message == MessageCircuitOpen:
		return builder.Code(model.CodeCircuitOpen).Wrapf(model.ErrCircuitOpen, "booking service is temporarily unavailable")
	case e.HTTPStatus == http.StatusNotFound:
		return builder.Code(model.CodeNotFound).Wrapf(model.ErrNotFound, "%s", e.describe())
	case e.HTTPStatus == http.StatusBadRequest || e.HTTPStatus == http.StatusUnprocessableEntity:
		return builder.Code(model.CodeValidation).Wrapf(model.ErrValidation, "%s", e.describe())
	}

	return builder.Code(model.CodeInternal).Errorf("%s", e.describe())
}

func (e *Envelope) describe() string {
	if e.Message != "" {
		return fmt.Sprintf("booking service returned %d: %s", e.HTTPStatus, e.Message)
	}

	return fmt.Sprintf("booking service returned %d", e.HTTPStatus)
}

// Booking decodes the envelope payload as a single booking. The store reports
// the id either as id or bookingId.
func (e *Envelope) Booking() (model.BookingSummary, error) {
	var raw struct {
		model.BookingSummary
		BookingID string `json:"bookingId"`
	}

	if err := e.Decode(&raw); err != nil {
		return model.BookingSummary{}, err
	}

	if raw.ID == "" {
		raw.ID = raw.BookingID
	}

	return raw.BookingSummary, nil
}

func circuitOpen() *Envelope {
	return &Envelope{
		Status:     StatusError,
		HTTPStatus: http.StatusServiceUnavailable,
		Message:    MessageCircuitOpen,
	}
}

func transportError(err error) *Envelope {
	return &Envelope{
		Status:     StatusError,
		HTTPStatus: StatusTransport,
		Message:    err.Error(),
	}
}

func fromResponse(code int, body []byte) *Envelope {
	env := &Envelope{HTTPStatus: code, Status: StatusError}
	if code >= 200 && code < 300 {
		env.Status = StatusOK
	}

	if len(body) == 0 {
		return env
	}

	if !json.Valid(body) {
		env.Message = string(body)
		return env
	}

	env.Data = body

	if env.Status == StatusError {
		var problem struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(body, &problem) == nil {
			env.Message = problem.Message
			if env.Message == "" {
				env.Message = problem.Error
			}
		}
	}

	return env
}
