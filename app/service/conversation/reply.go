package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"flightdesk/app/model"
)

const maxListed = 5

const (
	helpReply = "I can search flights (for example \"SFO to JFK on 2025-12-24\"), book the one you choose, " +
		"list or cancel your bookings and reschedule a booking to another date."
	agentFailureReply = "Sorry, I could not process that right now. Please try again."
)

var sentinels = []error{model.ErrValidation, model.ErrNotFound, model.ErrOwnership, model.ErrCircuitOpen}

func numbered[T any](items []T, format func(T) string) string {
	var builder strings.Builder

	for i, item := range items {
		if i == maxListed {
			builder.WriteString(fmt.Sprintf("(+%d more)\n", len(items)-maxListed))
			break
		}
		builder.WriteString(fmt.Sprintf("%d. %s\n", i+1, format(item)))
	}

	return strings.TrimSuffix(builder.String(), "\n")
}

func formatBooking(b model.BookingSummary) string {
	return fmt.Sprintf("%s · %s · %.2f · %s", b.ID, b.TripID, b.Price, b.Status)
}

func noMatchReply(total int) string {
	return fmt.Sprintf("No flight matches that. There are %d options, reply with a number between 1 and %d.", total, total)
}

// errorReply turns a failure into a message for the user.
func errorReply(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, model.ErrValidation):
		return fmt.Sprintf("Please check your request: %s.", userMessage(err))
	case errors.Is(err, model.ErrNotFound):
		return fmt.Sprintf("I could not find it: %s.", userMessage(err))
	case errors.Is(err, model.ErrOwnership):
		return "That booking belongs to another user, so I can't change it."
	case errors.Is(err, model.ErrCircuitOpen):
		return "The booking service is temporarily unavailable. Please try again in a few seconds."
	}

	slog.ErrorContext(ctx, "Request failed", "error", err)

	return "Something went wrong while talking to the booking service. Please try again."
}

// userMessage drops the sentinel suffix from a wrapped error message.
func userMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range sentinels {
		msg = strings.TrimSuffix(msg, ": "+sentinel.Error())
	}

	return msg
}
