package agent

import (
	"context"
	"encoding/json"
	"strings"

	"flightdesk/app/model"
	"flightdesk/app/service/selection"
	"flightdesk/app/service/session"

	"github.com/samber/oops"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

var _ tools.Tool = (*agentTool)(nil)

type agentTool struct {
	name        string
	description string
	parameters  map[string]any
	call        func(ctx context.Context, input string) (string, error)
}

func (m *agentTool) Name() string {
	return m.name
}

func (m *agentTool) Description() string {
	return m.description
}

func (m *agentTool) Call(ctx context.Context, input string) (string, error) {
	return m.call(ctx, input)
}

func (m *agentTool) definition() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        m.name,
			Description: m.description,
			Parameters:  m.parameters,
		},
	}
}

type toolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type toolResult struct {
	Status string     `json:"status"`
	Data   any        `json:"data,omitempty"`
	Error  *toolError `json:"error,omitempty"`
}

func success(data any) string {
	result, _ := json.Marshal(toolResult{Status: "OK", Data: data})
	return string(result)
}

func failure(err error) string {
	result, _ := json.Marshal(toolResult{
		Status: "ERROR",
		Error: &toolError{
			Code:    model.ErrorCode(err),
			Message: err.Error(),
		},
	})
	return string(result)
}

// jsonTool decodes the arguments into T and wraps the outcome into a result
// envelope. Tool errors are reported to the model, never returned.
func jsonTool[T any](name, description string, parameters map[string]any, fn func(ctx context.Context, args T) (any, error)) *agentTool {
	return &agentTool{
		name:        name,
		description: description,
		parameters:  parameters,
		call: func(ctx context.Context, input string) (string, error) {
			var args T
			if strings.TrimSpace(input) != "" {
				if err := json.Unmarshal([]byte(input), &args); err != nil {
					return failure(oops.In("agent").Code(model.CodeValidation).Wrapf(model.ErrValidation, "invalid arguments: %s", err.Error())), nil
				}
			}

			data, err := fn(ctx, args)
			if err != nil {
				return failure(err), nil
			}

			return success(data), nil
		},
	}
}

func object(required []string, properties map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func numberProp(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

func boolProp(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

type routeArgs struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Date        string `json:"date"`
}

type suggestArgs struct {
	Origin string `json:"origin"`
	Date   string `json:"date"`
	Limit  int    `json:"limit"`
}

type createArgs struct {
	UserID string `json:"userId"`
	TripID string `json:"tripId"`
}

type cancelArgs struct {
	BookingID string `json:"bookingId"`
}

type updateArgs struct {
	BookingID string  `json:"bookingId"`
	TripID    string  `json:"tripId"`
	Price     float64 `json:"price"`
}

type profileArgs struct {
	ID string `json:"id"`
}

type flightView struct {
	Option int    `json:"option,omitempty"`
	TripID string `json:"tripId"`
	model.Flight
}

func views(flights []model.Flight) []flightView {
	result := make([]flightView, 0, len(flights))
	for i, f := range flights {
		result = append(result, flightView{Option: i + 1, TripID: f.TripID(), Flight: f})
	}

	return result
}

func routeSchema() map[string]any {
	return object([]string{"origin", "destination", "date"}, map[string]any{
		"origin":      stringProp("Origin city name or 3-letter airport code"),
		"destination": stringProp("Destination city name or 3-letter airport code"),
		"date":        stringProp("Departure date, YYYY-MM-DD"),
	})
}

// sessionTools builds the tool set for one session. The session id is
// captured by each closure.
func (s *Service) sessionTools(sessionID string) []*agentTool {
	return []*agentTool{
		jsonTool("search_flights",
			"Search flights for a route and date. Results are remembered as the last search of the session.",
			routeSchema(),
			func(ctx context.Context, args routeArgs) (any, error) {
				flights, err := s.catalog.Search(args.Origin, args.Destination, args.Date)
				if err != nil {
					return nil, err
				}

				s.sessions.Update(sessionID, func(st *session.State) {
					st.Remember(flights)
				})

				return views(flights), nil
			},
		),
		jsonTool("cheapest_flight",
			"Find the cheapest flight for a route and date and choose it.",
			routeSchema(),
			func(ctx context.Context, args routeArgs) (any, error) {
				flight, err := s.catalog.Cheapest(args.Origin, args.Destination, args.Date)
				if err != nil {
					return nil, err
				}

				s.sessions.Update(sessionID, func(st *session.State) {
					st.Remember([]model.Flight{*flight})
					st.Choose(*flight)
				})

				return flightView{TripID: flight.TripID(), Flight: *flight}, nil
			},
		),
		jsonTool("suggest_destinations",
			"Suggest destinations reachable from an origin, cheapest flight per destination.",
			object([]string{"origin"}, map[string]any{
				"origin": stringProp("Origin city name or 3-letter airport code"),
				"date":   stringProp("Optional departure date, YYYY-MM-DD"),
				"limit":  numberProp("How many destinations to return, at most 10"),
			}),
			func(ctx context.Context, args suggestArgs) (any, error) {
				flights, err := s.catalog.SuggestDestinations(args.Origin, args.Date, args.Limit)
				if err != nil {
					return nil, err
				}

				return views(flights), nil
			},
		),
		jsonTool("select_from_last_search",
			"Choose one flight from the last search by position or criteria.",
			object(nil, map[string]any{
				"ordinal":   numberProp("1-based position in the last search results"),
				"cheapest":  boolProp("Pick the cheapest"),
				"earliest":  boolProp("Pick the earliest departure"),
				"latest":    boolProp("Pick the latest departure"),
				"nonstop":   boolProp("Only nonstop flights"),
				"carrier":   stringProp("Carrier name"),
				"timeOfDay": map[string]any{"type": "string", "enum": []string{selection.TimeOfDayMorning, selection.TimeOfDayEvening}},
				"maxPrice":  numberProp("Price ceiling"),
			}),
			func(ctx context.Context, criteria selection.Criteria) (any, error) {
				state := s.sessions.Get(sessionID)
				if len(state.LastSearchResults) == 0 {
					return nil, oops.In("agent").Code(model.CodeValidation).Wrapf(model.ErrValidation, "there is no search to choose from")
				}

				chosen, ok := selection.Select(state.LastSearchResults, criteria)
				if !ok {
					return nil, oops.In("agent").Code(model.CodeNotFound).Wrapf(model.ErrNotFound, "no flight matches")
				}

				s.sessions.Update(sessionID, func(st *session.State) {
					st.Choose(chosen)
				})

				return flightView{TripID: chosen.TripID(), Flight: chosen}, nil
			},
		),
		jsonTool("create_booking",
			"Book a flight. Defaults to the chosen flight and the active user of the session.",
			object(nil, map[string]any{
				"userId": stringProp("User id, required when the session has no active user. Must match the active user otherwise"),
				"tripId": stringProp("Trip id of the flight, defaults to the chosen flight"),
			}),
			func(ctx context.Context, args createArgs) (any, error) {
				var mismatch bool
				state := s.sessions.Update(sessionID, func(st *session.State) {
					switch {
					case args.UserID == "" || args.UserID == st.ActiveUserID:
					case st.ActiveUserID == "":
						st.ActiveUserID = args.UserID
					default:
						mismatch = true
					}
				})
				if mismatch {
					return nil, oops.In("agent").
						Code(model.CodeOwnership).
						Wrapf(model.ErrOwnership, "the session belongs to %s, not %s", state.ActiveUserID, args.UserID)
				}

				flight, err := s.flightForBooking(state, args.TripID)
				if err != nil {
					return nil, err
				}

				env, err := s.booking.Create(ctx, sessionID, state.ActiveUserID, flight.TripID(), flight.Price)
				if err != nil {
					return nil, err
				}
				if err = env.Err(); err != nil {
					return nil, err
				}

				return env.Booking()
			},
		),
		jsonTool("recommend_flight",
			"Recommend the cheapest flight leaving an origin to any destination and choose it.",
			object([]string{"origin"}, map[string]any{
				"origin": stringProp("Origin city name or 3-letter airport code"),
				"date":   stringProp("Optional departure date, YYYY-MM-DD"),
			}),
			func(ctx context.Context, args suggestArgs) (any, error) {
				flight, err := s.catalog.RecommendFromOrigin(args.Origin, args.Date)
				if err != nil {
					return nil, err
				}

				s.sessions.Update(sessionID, func(st *session.State) {
					st.Remember([]model.Flight{*flight})
					st.Choose(*flight)
				})

				return flightView{TripID: flight.TripID(), Flight: *flight}, nil
			},
		),
		jsonTool("get_booking",
			"Show one booking. Defaults to the last booking of the session.",
			object(nil, map[string]any{
				"bookingId": stringProp("Booking id"),
			}),
			func(ctx context.Context, args cancelArgs) (any, error) {
				state := s.sessions.Get(sessionID)

				id := args.BookingID
				if id == "" {
					id = state.LastBookingID
				}
				if id == "" {
					return nil, oops.In("agent").Code(model.CodeValidation).Wrapf(model.ErrValidation, "booking id is required")
				}

				found, err := s.booking.Get(ctx, id)
				if err != nil {
					return nil, err
				}
				if state.ActiveUserID != "" && found.UserID != state.ActiveUserID {
					return nil, oops.In("agent").
						Code(model.CodeOwnership).
						Wrapf(model.ErrOwnership, "booking %s does not belong to %s", id, state.ActiveUserID)
				}

				return found, nil
			},
		),
		jsonTool("update_booking",
			"Move a booking of the active user to another trip or change its price. Defaults to the last booking of the session.",
			object(nil, map[string]any{
				"bookingId": stringProp("Booking id"),
				"tripId":    stringProp("New trip id, its catalog price is used unless price is given"),
				"price":     numberProp("New price"),
			}),
			func(ctx context.Context, args updateArgs) (any, error) {
				state := s.sessions.Get(sessionID)

				id := args.BookingID
				if id == "" {
					id = state.LastBookingID
				}

				change := model.BookingRequest{Price: args.Price}
				if args.TripID != "" {
					flight, err := s.flightForBooking(state, args.TripID)
					if err != nil {
						return nil, err
					}

					change.TripID = flight.TripID()
					if change.Price == 0 {
						change.Price = flight.Price
					}
				}

				env, err := s.booking.Update(ctx, id, state.ActiveUserID, change)
				if err != nil {
					return nil, err
				}
				if err = env.Err(); err != nil {
					return nil, err
				}

				return env.Booking()
			},
		),
		jsonTool("list_profiles",
			"List customer profiles.",
			object(nil, map[string]any{}),
			func(ctx context.Context, _ struct{}) (any, error) {
				return s.profiles.List(ctx)
			},
		),
		jsonTool("get_profile",
			"Show one customer profile by profile id or user id. Defaults to the active user.",
			object(nil, map[string]any{
				"id": stringProp("Profile id or user id"),
			}),
			func(ctx context.Context, args profileArgs) (any, error) {
				id := args.ID
				if id == "" {
					id = s.sessions.Get(sessionID).ActiveUserID
				}

				return s.profiles.Get(ctx, id)
			},
		),
		jsonTool("list_bookings",
			"List bookings of the active user, newest first.",
			object(nil, map[string]any{}),
			func(ctx context.Context, _ struct{}) (any, error) {
				state := s.sessions.Get(sessionID)

				list, env := s.booking.List(ctx, state.ActiveUserID)
				if err := env.Err(); err != nil {
					return nil, err
				}

				return list, nil
			},
		),
		jsonTool("cancel_booking",
			"Cancel a booking by id. Defaults to the last booking of the session.",
			object(nil, map[string]any{
				"bookingId": stringProp("Booking id"),
			}),
			func(ctx context.Context, args cancelArgs) (any, error) {
				state := s.sessions.Get(sessionID)

				id := args.BookingID
				if id == "" {
					id = state.LastBookingID
				}

				env, err := s.booking.Cancel(ctx, id, state.ActiveUserID)
				if err != nil {
					return nil, err
				}
				if err = env.Err(); err != nil {
					return nil, err
				}

				return map[string]string{"bookingId": id, "status": model.BookingStatusCancelled}, nil
			},
		),
	}
}

func (s *Service) flightForBooking(state session.State, tripID string) (model.Flight, error) {
	if tripID != "" {
		flight, ok := s.catalog.LookupByTripID(tripID)
		if !ok {
			return model.Flight{}, oops.In("agent").Code(model.CodeNotFound).Wrapf(model.ErrNotFound, "unknown trip %s", tripID)
		}

		return flight, nil
	}

	if state.LastChosenFlight == nil {
		return model.Flight{}, oops.In("agent").Code(model.CodeValidation).Wrapf(model.ErrValidation, "no flight is chosen")
	}

	return *state.LastChosenFlight, nil
}
