package selection

import (
	"strings"
	"time"

	"flightdesk/app/model"

	"github.com/elliotchance/pie/v2"
)

const (
	TimeOfDayMorning = "morning"
	TimeOfDayEvening = "evening"
)

// Criteria narrows a list of flights down to one. Zero values are treated as
// not supplied.
type Criteria struct {
	Ordinal  int  `json:"ordinal,omitempty"`
	Cheapest bool `json:"cheapest,omitempty"`
	Earliest bool `json:"earliest,omitempty"`
	Latest   bool `json:"latest,omitempty"`
	Nonstop  bool `json:"nonstop,omitempty"`

	Date        string  `json:"date,omitempty"`
	Destination string  `json:"destination,omitempty"`
	Carrier     string  `json:"carrier,omitempty"`
	TimeOfDay   string  `json:"timeOfDay,omitempty"`
	MaxPrice    float64 `json:"maxPrice,omitempty"`
}

// IsZero reports whether no criterion is supplied.
func (c Criteria) IsZero() bool {
	return c == Criteria{}
}

// Select filters candidates by every supplied criterion and picks a single
// flight: cheapest, then earliest, then latest, then the 1-based ordinal,
// otherwise the first remaining one.
func Select(candidates []model.Flight, c Criteria) (model.Flight, bool) {
	filtered := Filter(candidates, c)
	if len(filtered) == 0 {
		return model.Flight{}, false
	}

	switch {
	case c.Cheapest:
		best := filtered[0]
		for _, f := range filtered[1:] {
			if f.Price < best.Price {
				best = f
			}
		}
		return best, true

	case c.Earliest:
		best := filtered[0]
		for _, f := range filtered[1:] {
			if f.Departure < best.Departure {
				best = f
			}
		}
		return best, true

	case c.Latest:
		best := filtered[0]
		for _, f := range filtered[1:] {
			if f.Departure > best.Departure {
				best = f
			}
		}
		return best, true

	case c.Ordinal != 0:
		if c.Ordinal < 1 || c.Ordinal > len(filtered) {
			return model.Flight{}, false
		}
		return filtered[c.Ordinal-1], true
	}

	return filtered[0], true
}

// Filter applies the filtering part of c and keeps the candidate order.
func Filter(candidates []model.Flight, c Criteria) []model.Flight {
	date := strings.TrimSpace(c.Date)
	destination := strings.TrimSpace(c.Destination)
	carrier := strings.ToLower(model.NormalizeCarrier(c.Carrier))
	band := strings.ToLower(strings.TrimSpace(c.TimeOfDay))

	return pie.Filter(candidates, func(f model.Flight) bool {
		if date != "" && !strings.HasPrefix(f.Date, date) {
			return false
		}
		if destination != "" && !strings.EqualFold(f.Destination, destination) {
			return false
		}
		if c.MaxPrice > 0 && f.Price > c.MaxPrice {
			return false
		}
		if carrier != "" && !strings.Contains(strings.ToLower(model.NormalizeCarrier(f.Carrier)), carrier) {
			return false
		}
		if !inBand(f.Departure, band) {
			return false
		}
		if c.Nonstop && f.Stops != nil && *f.Stops != 0 {
			return false
		}

		return true
	})
}

func inBand(departure, band string) bool {
	var from, to int

	switch band {
	case TimeOfDayMorning:
		from, to = 5, 12
	case TimeOfDayEvening:
		from, to = 17, 24
	default:
		return true
	}

	t, err := time.Parse(time.RFC3339, departure)
	if err != nil {
		return false
	}

	return t.Hour() >= from && t.Hour() < to
}
