package model

import (
	"fmt"
	"strings"
	"time"
)

type Flight struct {
	Carrier         string  `json:"carrier"`
	FlightNumber    string  `json:"flightNumber"`
	Origin          string  `json:"origin"`
	Destination     string  `json:"destination"`
	Date            string  `json:"date"`
	Departure       string  `json:"departure"`
	Arrival         string  `json:"arrival"`
	Price           float64 `json:"price"`
	Currency        string  `json:"currency"`
	Stops           *int    `json:"stops,omitempty"`
	OriginCity      string  `json:"originCity,omitempty"`
	DestinationCity string  `json:"destinationCity,omitempty"`
}

// TripID is the booking key of a flight instance: carrier without spaces,
// flight number and date joined by dashes.
func (f Flight) TripID() string {
	return NormalizeCarrier(f.Carrier) + "-" + f.FlightNumber + "-" + f.Date
}

// Summary renders the flight on one line for replies and prompts.
func (f Flight) Summary() string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("%s %s %s→%s", f.Carrier, f.FlightNumber, f.Origin, f.Destination))
	builder.WriteString(" " + clock(f.Departure, f.Date))
	if f.Arrival != "" {
		builder.WriteString("–" + clock(f.Arrival, ""))
	}

	builder.WriteString(fmt.Sprintf(", %.2f %s", f.Price, f.Currency))

	if f.Stops != nil {
		switch *f.Stops {
		case 0:
			builder.WriteString(", nonstop")
		case 1:
			builder.WriteString(", 1 stop")
		default:
			builder.WriteString(fmt.Sprintf(", %d stops", *f.Stops))
		}
	}

	return builder.String()
}

func clock(value, date string) string {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		if value == "" {
			return date
		}
		return value
	}

	if date != "" {
		return t.Format("2006-01-02 15:04")
	}

	return t.Format("15:04")
}

func NormalizeCarrier(carrier string) string {
	return strings.TrimSpace(strings.ReplaceAll(carrier, " ", ""))
}
