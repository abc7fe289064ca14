package conversation

import (
	"context"
	"log/slog"
	"strings"

	"flightdesk/app/service/agent"
	"flightdesk/app/service/booking"
	"flightdesk/app/service/catalog"
	"flightdesk/app/service/intent"
	"flightdesk/app/service/session"

	"github.com/samber/do"
)

// Asker answers messages that no deterministic rule handles.
type Asker interface {
	Ask(ctx context.Context, sessionID, text string) (string, error)
}

type Dump struct {
	ID    string         `json:"id"`
	Stage session.Stage  `json:"stage"`
	State session.State  `json:"state"`
	Turns []session.Turn `json:"turns"`
}

type Service struct {
	sessions *session.Store
	intents  *intent.Engine
	catalog  *catalog.Service
	booking  *booking.Service
	agent    Asker
}

func New(di *do.Injector) (*Service, error) {
	return NewService(
		do.MustInvoke[*session.Store](di),
		do.MustInvoke[*intent.Engine](di),
		do.MustInvoke[*catalog.Service](di),
		do.MustInvoke[*booking.Service](di),
		do.MustInvoke[*agent.Service](di),
	), nil
}

func NewService(
	sessions *session.Store,
	intents *intent.Engine,
	catalogSvc *catalog.Service,
	bookingSvc *booking.Service,
	asker Asker,
) *Service {
	return &Service{
		sessions: sessions,
		intents:  intents,
		catalog:  catalogSvc,
		booking:  bookingSvc,
		agent:    asker,
	}
}

// Respond handles one user turn. Turns of the same session run one at a
// time. The error is only set when ctx is done; every other failure is
// turned into a reply.
func (s *Service) Respond(ctx context.Context, sessionID, text, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	unlock := s.sessions.LockTurn(sessionID)
	defer unlock()

	if userID = strings.TrimSpace(userID); userID != "" {
		s.sessions.Update(sessionID, func(st *session.State) {
			st.ActiveUserID = userID
		})
	}

	text = strings.TrimSpace(text)
	s.sessions.AppendTurn(sessionID, session.RoleUser, text)

	reply := s.handle(ctx, sessionID, text)
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.sessions.AppendTurn(sessionID, session.RoleAssistant, reply)

	return reply, nil
}

func (s *Service) handle(ctx context.Context, sessionID, text string) string {
	if text == "" {
		return helpReply
	}

	state := s.sessions.Get(sessionID)
	result := s.intents.Classify(ctx, text, state)

	slog.DebugContext(ctx, "Intent classified",
		"session_id", sessionID,
		"kind", result.Kind,
		"slots", result.Slots,
	)

	switch result.Kind {
	case intent.KindListBookings:
		return s.listBookings(ctx, state)
	case intent.KindCreateBooking:
		return s.createBooking(ctx, sessionID, result.Slots)
	case intent.KindCancelBooking:
		return s.cancelBooking(ctx, sessionID, result.Slots)
	case intent.KindStartReschedule:
		return s.startReschedule(ctx, sessionID, result.Slots)
	case intent.KindConfirmReschedule:
		return s.confirmReschedule(ctx, sessionID)
	case intent.KindOrdinalSelection:
		return s.selectOption(ctx, sessionID, result.Slots)
	case intent.KindSearch, intent.KindCheapest:
		return s.search(ctx, sessionID, result)
	case intent.KindAdvice:
		return s.advise(ctx, sessionID, result.Slots)
	default:
		return s.askAgent(ctx, sessionID, text)
	}
}

func (s *Service) askAgent(ctx context.Context, sessionID, text string) string {
	if s.agent == nil {
		return helpReply
	}

	reply, err := s.agent.Ask(ctx, sessionID, text)
	if err != nil {
		if ctx.Err() == nil {
			slog.ErrorContext(ctx, "Assistant failed",
				"session_id", sessionID,
				"error", err,
			)
		}
		return agentFailureReply
	}

	if reply == "" {
		return helpReply
	}

	return reply
}

// Sessions returns the ids of all sessions, sorted.
func (s *Service) Sessions() []string {
	return s.sessions.Keys()
}

func (s *Service) Dump(id string) (Dump, bool) {
	state, turns, ok := s.sessions.Peek(id)
	if !ok {
		return Dump{}, false
	}

	return Dump{
		ID:    id,
		Stage: state.RescheduleStage(),
		State: state,
		Turns: turns,
	}, true
}

func (s *Service) Clear(id string) {
	s.sessions.Delete(id)

	slog.Info("Session cleared", "session_id", id)
}
