package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"flightdesk/app/client/bookings"
	"flightdesk/app/client/profiles"
	"flightdesk/app/model"
	"flightdesk/app/service/booking"
	"flightdesk/app/service/bookingstore"
	"flightdesk/app/service/catalog"
	"flightdesk/app/service/session"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

const sessionID = "s-1"

type modelCall struct {
	messages []llms.MessageContent
	options  llms.CallOptions
}

// scriptedModel replays responses in order and records every request.
type scriptedModel struct {
	mu        sync.Mutex
	responses []*llms.ContentResponse
	errs      []error
	calls     []modelCall
}

func (m *scriptedModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var opts llms.CallOptions
	for _, option := range options {
		option(&opts)
	}

	i := len(m.calls)
	m.calls = append(m.calls, modelCall{messages: append([]llms.MessageContent(nil), messages...), options: opts})

	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}

	return m.responses[len(m.responses)-1], nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func text(content string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: content}}}
}

func toolCall(id, name, arguments string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{
			ID:   id,
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      name,
				Arguments: arguments,
			},
		}},
	}}}
}

type harness struct {
	catalog  *catalog.Service
	sessions *session.Store
	store    *bookingstore.Service
	booking  *booking.Service
	profiles *profiles.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	catalogSvc, err := catalog.NewService(catalog.Options{
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	store := bookingstore.NewService("", nil)
	server := httptest.NewServer(adaptor.FiberApp(store.App()))
	t.Cleanup(server.Close)

	sessions := session.NewStore(20, nil)
	opts := bookings.Options{
		BaseURL:          server.URL + "/api",
		Timeout:          2 * time.Second,
		FailureThreshold: 3,
		OpenDuration:     10 * time.Second,
	}

	return &harness{
		catalog:  catalogSvc,
		sessions: sessions,
		store:    store,
		booking:  booking.NewService(bookings.NewClient(opts), sessions),
		profiles: profiles.NewClient(opts),
	}
}

func (h *harness) agent(llm llms.Model, opts Options) *Service {
	return NewService(llm, h.catalog, h.sessions, h.booking, h.profiles, opts)
}

func toolResponse(t *testing.T, call modelCall) toolResult {
	t.Helper()

	last := call.messages[len(call.messages)-1]
	require.Equal(t, llms.ChatMessageTypeTool, last.Role)

	response, ok := last.Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)

	var result toolResult
	require.NoError(t, json.Unmarshal([]byte(response.Content), &result))

	return result
}

func TestAsk_ToolLoopSearches(t *testing.T) {
	h := newHarness(t)
	fake := &scriptedModel{responses: []*llms.ContentResponse{
		toolCall("call-1", "search_flights", `{"origin":"San Francisco","destination":"JFK","date":"2025-12-24"}`),
		text(" I found 5 flights, the cheapest is AS12. "),
	}}

	reply, err := h.agent(fake, Options{ToolsEnabled: true}).Ask(context.Background(), sessionID, "what can I fly to New York on Christmas eve?")
	require.NoError(t, err)
	assert.Equal(t, "I found 5 flights, the cheapest is AS12.", reply)

	require.Len(t, fake.calls, 2)
	assert.Len(t, fake.calls[0].options.Tools, 12)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.calls[0].messages[0].Role)

	result := toolResponse(t, fake.calls[1])
	assert.Equal(t, "OK", result.Status)

	state := h.sessions.Get(sessionID)
	require.Len(t, state.LastSearchResults, 5)
	assert.Equal(t, "AS12", state.LastSearchResults[0].FlightNumber)
}

func TestAsk_ToolsBoundToSession(t *testing.T) {
	h := newHarness(t)

	flights, err := h.catalog.Search("SFO", "JFK", "2025-12-24")
	require.NoError(t, err)
	h.sessions.Update(sessionID, func(st *session.State) {
		st.ActiveUserID = "u-100"
		st.Remember(flights)
		st.Choose(flights[3])
	})

	fake := &scriptedModel{responses: []*llms.ContentResponse{
		toolCall("call-1", "create_booking", `{}`),
		text("Booked."),
	}}

	reply, err := h.agent(fake, Options{ToolsEnabled: true}).Ask(context.Background(), sessionID, "go for it")
	require.NoError(t, err)
	assert.Equal(t, "Booked.", reply)

	result := toolResponse(t, fake.calls[1])
	require.Equal(t, "OK", result.Status, result.Error)

	list := h.store.Store().List()
	require.Len(t, list, 1)
	assert.Equal(t, "Delta-DL412-2025-12-24", list[0].TripID)
	assert.Equal(t, "u-100", list[0].UserID)
	assert.Equal(t, list[0].ID, h.sessions.Get(sessionID).LastBookingID)

	// another session is untouched
	assert.Empty(t, h.sessions.Get("s-2").LastBookingID)
}

func TestAsk_ToolErrorsReachTheModel(t *testing.T) {
	tests := []struct {
		name     string
		tool     string
		args     string
		wantCode string
	}{
		{name: "bad json", tool: "search_flights", args: `{"origin":`, wantCode: model.CodeValidation},
		{name: "past date", tool: "search_flights", args: `{"origin":"SFO","destination":"JFK","date":"2020-01-01"}`, wantCode: model.CodeValidation},
		{name: "nothing to select from", tool: "select_from_last_search", args: `{"cheapest":true}`, wantCode: model.CodeValidation},
		{name: "booking without user", tool: "create_booking", args: `{"tripId":"Delta-DL412-2025-12-24"}`, wantCode: model.CodeValidation},
		{name: "unknown trip", tool: "create_booking", args: `{"userId":"u-1","tripId":"Nope-X1-2025-12-24"}`, wantCode: model.CodeNotFound},
		{name: "unknown tool", tool: "delete_everything", args: `{}`, wantCode: model.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			fake := &scriptedModel{responses: []*llms.ContentResponse{
				toolCall("call-1", tt.tool, tt.args),
				text("Sorry."),
			}}

			_, err := h.agent(fake, Options{ToolsEnabled: true}).Ask(context.Background(), sessionID, "hm")
			require.NoError(t, err)

			result := toolResponse(t, fake.calls[1])
			assert.Equal(t, "ERROR", result.Status)
			require.NotNil(t, result.Error)
			assert.Equal(t, tt.wantCode, result.Error.Code)
		})
	}
}

func TestAsk_SelectFromLastSearch(t *testing.T) {
	h := newHarness(t)

	flights, err := h.catalog.Search("SFO", "JFK", "2025-12-24")
	require.NoError(t, err)
	h.sessions.Update(sessionID, func(st *session.State) { st.Remember(flights) })

	fake := &scriptedModel{responses: []*llms.ContentResponse{
		toolCall("call-1", "select_from_last_search", `{"nonstop":true,"timeOfDay":"morning"}`),
		text("Chosen."),
	}}

	_, err = h.agent(fake, Options{ToolsEnabled: true}).Ask(context.Background(), sessionID, "a morning nonstop please")
	require.NoError(t, err)

	chosen := h.sessions.Get(sessionID).LastChosenFlight
	require.NotNil(t, chosen)
	assert.Equal(t, "UA1536", chosen.FlightNumber)
}

func TestAsk_FallsBackWhenToolsUnsupported(t *testing.T) {
	h := newHarness(t)
	fake := &scriptedModel{
		errs:      []error{errors.New("API returned unexpected status code: 404: No endpoints found that support tool use")},
		responses: []*llms.ContentResponse{nil, text("Plain answer")},
	}

	reply, err := h.agent(fake, Options{ToolsEnabled: true}).Ask(context.Background(), sessionID, "hello")
	require.NoError(t, err)
	assert.Equal(t, "Plain answer", reply)

	require.Len(t, fake.calls, 2)
	assert.NotEmpty(t, fake.calls[0].options.Tools)
	assert.Empty(t, fake.calls[1].options.Tools)
	assert.Len(t, fake.calls[1].messages, 2)
}

func TestAsk_OtherErrorsAreReturned(t *testing.T) {
	h := newHarness(t)
	fake := &scriptedModel{
		errs:      []error{errors.New("rate limited")},
		responses: []*llms.ContentResponse{nil},
	}

	_, err := h.agent(fake, Options{ToolsEnabled: true}).Ask(context.Background(), sessionID, "hello")
	assert.ErrorContains(t, err, "rate limited")
	assert.Len(t, fake.calls, 1)
}

func TestAsk_ToolsDisabled(t *testing.T) {
	h := newHarness(t)
	fake := &scriptedModel{responses: []*llms.ContentResponse{text("Hi")}}

	reply, err := h.agent(fake, Options{ToolsEnabled: false}).Ask(context.Background(), sessionID, "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi", reply)

	require.Len(t, fake.calls, 1)
	assert.Empty(t, fake.calls[0].options.Tools)
}

func TestAsk_StepLimit(t *testing.T) {
	h := newHarness(t)
	fake := &scriptedModel{responses: []*llms.ContentResponse{
		toolCall("call-1", "list_bookings", `{}`),
		toolCall("call-2", "list_bookings", `{}`),
		text("Giving up."),
	}}

	reply, err := h.agent(fake, Options{ToolsEnabled: true, MaxToolSteps: 2}).Ask(context.Background(), sessionID, "loop")
	require.NoError(t, err)
	assert.Equal(t, "Giving up.", reply)

	require.Len(t, fake.calls, 3)
	assert.Empty(t, fake.calls[2].options.Tools)
}

func TestDescribeState(t *testing.T) {
	flights := make([]model.Flight, 7)
	for i := range flights {
		flights[i] = model.Flight{Carrier: "Nimbus", FlightNumber: "NB1", Origin: "LHR", Destination: "CDG", Date: "2025-12-24", Price: 99, Currency: "GBP"}
	}

	state := session.State{
		LastSearchResults:         flights,
		RescheduleTargetBookingID: "b-1",
	}

	described := describeState(state)
	assert.Contains(t, described, "Active user: unknown")
	assert.Contains(t, described, "Last search: 7 flights")
	assert.Contains(t, described, "(+2 more)")
	assert.Contains(t, described, "Rescheduling booking b-1, new date: unknown")
}

func runTool(t *testing.T, h *harness, name, args string) toolResult {
	t.Helper()

	fake := &scriptedModel{responses: []*llms.ContentResponse{
		toolCall("call-1", name, args),
		text("Done."),
	}}

	_, err := h.agent(fake, Options{ToolsEnabled: true}).Ask(context.Background(), sessionID, "please")
	require.NoError(t, err)
	require.Len(t, fake.calls, 2)

	return toolResponse(t, fake.calls[1])
}

func TestCreateBooking_ActiveUser(t *testing.T) {
	tests := []struct {
		name       string
		activeUser string
		argUser    string
		wantStatus string
		wantCode   string
		wantActive string
		wantOwner  string
	}{
		{name: "other user is rejected", activeUser: "u-100", argUser: "u-200", wantStatus: "ERROR", wantCode: model.CodeOwnership, wantActive: "u-100"},
		{name: "same user", activeUser: "u-100", argUser: "u-100", wantStatus: "OK", wantActive: "u-100", wantOwner: "u-100"},
		{name: "active user by default", activeUser: "u-100", wantStatus: "OK", wantActive: "u-100", wantOwner: "u-100"},
		{name: "first user is adopted", argUser: "u-300", wantStatus: "OK", wantActive: "u-300", wantOwner: "u-300"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.sessions.Update(sessionID, func(st *session.State) {
				st.ActiveUserID = tt.activeUser
			})

			args := `{"tripId":"Delta-DL412-2025-12-24"`
			if tt.argUser != "" {
				args += `,"userId":"` + tt.argUser + `"`
			}
			args += "}"

			result := runTool(t, h, "create_booking", args)
			assert.Equal(t, tt.wantStatus, result.Status)
			if tt.wantCode != "" {
				require.NotNil(t, result.Error)
				assert.Equal(t, tt.wantCode, result.Error.Code)
			}

			assert.Equal(t, tt.wantActive, h.sessions.Get(sessionID).ActiveUserID)

			list := h.store.Store().List()
			if tt.wantOwner == "" {
				assert.Empty(t, list)
				return
			}
			require.Len(t, list, 1)
			assert.Equal(t, tt.wantOwner, list[0].UserID)
		})
	}
}

func TestGetBooking(t *testing.T) {
	tests := []struct {
		name       string
		activeUser string
		bookingID  string
		wantCode   string
	}{
		{name: "owner", activeUser: "u-100"},
		{name: "defaults to last booking", activeUser: "u-100", bookingID: "-"},
		{name: "no active user", activeUser: ""},
		{name: "other user", activeUser: "u-200", wantCode: model.CodeOwnership},
		{name: "unknown", activeUser: "u-100", bookingID: "nope", wantCode: model.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			created, _ := h.store.Store().Create(model.BookingRequest{UserID: "u-100", TripID: "Delta-DL412-2025-12-24", Price: 289}, "")
			h.sessions.Update(sessionID, func(st *session.State) {
				st.ActiveUserID = tt.activeUser
				st.LastBookingID = created.ID
			})

			args := `{"bookingId":"` + created.ID + `"}`
			switch tt.bookingID {
			case "":
			case "-":
				args = `{}`
			default:
				args = `{"bookingId":"` + tt.bookingID + `"}`
			}

			result := runTool(t, h, "get_booking", args)
			if tt.wantCode != "" {
				assert.Equal(t, "ERROR", result.Status)
				require.NotNil(t, result.Error)
				assert.Equal(t, tt.wantCode, result.Error.Code)
				return
			}

			require.Equal(t, "OK", result.Status, result.Error)
			data, ok := result.Data.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, created.ID, data["id"])
			assert.Equal(t, "Delta-DL412-2025-12-24", data["tripId"])
		})
	}
}

func TestUpdateBooking(t *testing.T) {
	tests := []struct {
		name       string
		activeUser string
		args       string
		wantCode   string
		wantTrip   string
		wantPrice  float64
	}{
		{name: "new trip takes catalog price", activeUser: "u-100", args: `{"tripId":"UnitedAirlines-UA1536-2025-12-24"}`, wantTrip: "UnitedAirlines-UA1536-2025-12-24", wantPrice: 254.5},
		{name: "price only", activeUser: "u-100", args: `{"price":199}`, wantTrip: "Delta-DL412-2025-12-24", wantPrice: 199},
		{name: "unknown trip", activeUser: "u-100", args: `{"tripId":"Nope-X1-2025-12-24"}`, wantCode: model.CodeNotFound, wantTrip: "Delta-DL412-2025-12-24", wantPrice: 289},
		{name: "other user", activeUser: "u-200", args: `{"price":1}`, wantCode: model.CodeOwnership, wantTrip: "Delta-DL412-2025-12-24", wantPrice: 289},
		{name: "no active user", args: `{"price":1}`, wantCode: model.CodeValidation, wantTrip: "Delta-DL412-2025-12-24", wantPrice: 289},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			created, _ := h.store.Store().Create(model.BookingRequest{UserID: "u-100", TripID: "Delta-DL412-2025-12-24", Price: 289}, "")
			h.sessions.Update(sessionID, func(st *session.State) {
				st.ActiveUserID = tt.activeUser
				st.LastBookingID = created.ID
			})

			result := runTool(t, h, "update_booking", tt.args)
			if tt.wantCode != "" {
				assert.Equal(t, "ERROR", result.Status)
				require.NotNil(t, result.Error)
				assert.Equal(t, tt.wantCode, result.Error.Code)
			} else {
				assert.Equal(t, "OK", result.Status, result.Error)
			}

			stored, ok := h.store.Store().Get(created.ID)
			require.True(t, ok)
			assert.Equal(t, "u-100", stored.UserID)
			assert.Equal(t, tt.wantTrip, stored.TripID)
			assert.Equal(t, tt.wantPrice, stored.Price)
		})
	}
}

func TestRecommendFlight(t *testing.T) {
	h := newHarness(t)

	result := runTool(t, h, "recommend_flight", `{"origin":"LHR"}`)
	require.Equal(t, "OK", result.Status, result.Error)

	chosen := h.sessions.Get(sessionID).LastChosenFlight
	require.NotNil(t, chosen)
	assert.Equal(t, "AF1081", chosen.FlightNumber)

	result = runTool(t, h, "recommend_flight", `{"origin":"Nowhere"}`)
	require.NotNil(t, result.Error)
	assert.Equal(t, model.CodeNotFound, result.Error.Code)
}

func TestProfiles(t *testing.T) {
	h := newHarness(t)

	result := runTool(t, h, "list_profiles", `{}`)
	require.Equal(t, "OK", result.Status, result.Error)
	list, ok := result.Data.([]any)
	require.True(t, ok)
	assert.Len(t, list, 5)

	result = runTool(t, h, "get_profile", `{"id":"`+bookingstore.ProfileID("u-101")+`"}`)
	require.Equal(t, "OK", result.Status, result.Error)
	profile, ok := result.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Bob Smith", profile["name"])

	result = runTool(t, h, "get_profile", `{}`)
	require.NotNil(t, result.Error)
	assert.Equal(t, model.CodeValidation, result.Error.Code)

	h.sessions.Update(sessionID, func(st *session.State) { st.ActiveUserID = "u-102" })
	result = runTool(t, h, "get_profile", `{}`)
	require.Equal(t, "OK", result.Status, result.Error)
	profile, ok = result.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "PLATINUM", profile["loyaltyTier"])
}

func TestQuery(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "I fly from SFO"},
		{Role: RoleAssistant, Content: "Where to?"},
	}

	tests := []struct {
		name      string
		useTools  bool
		responses []*llms.ContentResponse
		wantCalls int
		wantTools bool
	}{
		{name: "llm mode", responses: []*llms.ContentResponse{text("To JFK then.")}, wantCalls: 1},
		{
			name:     "agent mode",
			useTools: true,
			responses: []*llms.ContentResponse{
				toolCall("call-1", "search_flights", `{"origin":"SFO","destination":"JFK","date":"2025-12-24"}`),
				text("To JFK then."),
			},
			wantCalls: 2,
			wantTools: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			fake := &scriptedModel{responses: tt.responses}

			answer, err := h.agent(fake, Options{ToolsEnabled: true}).Query(context.Background(), "JFK on 2025-12-24", history, tt.useTools)
			require.NoError(t, err)
			assert.Equal(t, "To JFK then.", answer)

			require.Len(t, fake.calls, tt.wantCalls)
			first := fake.calls[0]
			assert.Equal(t, tt.wantTools, len(first.options.Tools) > 0)

			roles := make([]llms.ChatMessageType, 0, len(first.messages))
			for _, msg := range first.messages {
				roles = append(roles, msg.Role)
			}
			assert.Equal(t, []llms.ChatMessageType{
				llms.ChatMessageTypeSystem,
				llms.ChatMessageTypeHuman,
				llms.ChatMessageTypeAI,
				llms.ChatMessageTypeHuman,
			}, roles)

			assert.Empty(t, h.sessions.Keys())
		})
	}
}
