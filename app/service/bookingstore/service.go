package bookingstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"flightdesk/app/client/bookings"
	"flightdesk/app/config"
	"flightdesk/app/model"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/do"
)

// Hook lets tests force a status code for a request. Returning 0 lets the
// request through.
type Hook func(method, path string) int

// Service is an in-memory booking store speaking the REST contract the
// assistant consumes.
type Service struct {
	listen   string
	store    *Store
	profiles map[string]model.Profile
	app      *fiber.App
	validate *validator.Validate

	hookMu sync.RWMutex
	hook   Hook
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(cfg.BookingStore.Listen, nil), nil
}

func NewService(listen string, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}

	s := &Service{
		listen:   listen,
		store:    NewStore(now),
		profiles: newProfiles(now()),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "bookingstore",
		DisableStartupMessage: true,
		Immutable:             true,
		ErrorHandler:          errorHandler,
	})

	api := s.app.Group("/api", s.injectFaults)
	api.Get("/bookings", s.handleList)
	api.Post("/bookings", s.handleCreate)
	api.Get("/bookings/:id", s.handleGet)
	api.Put("/bookings/:id", s.handleUpdate)
	api.Delete("/bookings/:id", s.handleDelete)
	api.Get("/profiles", s.handleListProfiles)
	api.Get("/profiles/:id", s.handleGetProfile)

	return s
}

func (s *Service) App() *fiber.App {
	return s.app
}

func (s *Service) Store() *Store {
	return s.store
}

func (s *Service) SetHook(hook Hook) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()

	s.hook = hook
}

func (s *Service) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		slog.Info("Booking store listening", "addr", s.listen)
		errCh <- s.app.Listen(s.listen)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("booking store stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.app.ShutdownWithContext(shutdownCtx)
}

func (s *Service) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Service) injectFaults(c *fiber.Ctx) error {
	s.hookMu.RLock()
	hook := s.hook
	s.hookMu.RUnlock()

	if hook == nil {
		return c.Next()
	}

	if code := hook(c.Method(), c.Path()); code != 0 {
		return c.Status(code).JSON(problem("INJECTED", fmt.Sprintf("injected failure %d", code)))
	}

	return c.Next()
}

func (s *Service) handleList(c *fiber.Ctx) error {
	return c.JSON(s.store.List())
}

func (s *Service) handleCreate(c *fiber.Ctx) error {
	var req model.BookingRequest
	if err := s.parse(c, &req); err != nil {
		return err
	}

	booking, created := s.store.Create(req, c.Get(bookings.IdempotencyHeader))
	if !created {
		return c.Status(fiber.StatusOK).JSON(booking)
	}

	slog.Debug("Booking created",
		"id", booking.ID,
		"user_id", booking.UserID,
		"trip_id", booking.TripID,
	)

	return c.Status(fiber.StatusCreated).JSON(booking)
}

func (s *Service) handleGet(c *fiber.Ctx) error {
	booking, ok := s.store.Get(c.Params("id"))
	if !ok {
		return notFound(c)
	}

	return c.JSON(booking)
}

func (s *Service) handleUpdate(c *fiber.Ctx) error {
	var req model.BookingRequest
	if err := s.parse(c, &req); err != nil {
		return err
	}

	booking, ok := s.store.Update(c.Params("id"), req)
	if !ok {
		return notFound(c)
	}

	return c.JSON(booking)
}

func (s *Service) handleDelete(c *fiber.Ctx) error {
	if !s.store.Delete(c.Params("id")) {
		return notFound(c)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Service) parse(c *fiber.Ctx, req *model.BookingRequest) error {
	if err := c.BodyParser(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := s.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return nil
}

func notFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(problem(model.CodeNotFound, "booking not found: "+c.Params("id")))
}

func problem(code, message string) fiber.Map {
	return fiber.Map{
		"code":    code,
		"message": message,
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	label := model.CodeInternal
	if code == fiber.StatusBadRequest {
		label = model.CodeValidation
	}

	return c.Status(code).JSON(problem(label, err.Error()))
}
