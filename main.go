package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"flightdesk/app/client/bookings"
	"flightdesk/app/client/llm"
	"flightdesk/app/client/profiles"
	"flightdesk/app/config"
	"flightdesk/app/service/agent"
	"flightdesk/app/service/api"
	"flightdesk/app/service/booking"
	"flightdesk/app/service/bookingstore"
	"flightdesk/app/service/catalog"
	"flightdesk/app/service/conversation"
	"flightdesk/app/service/intent"
	"flightdesk/app/service/session"
	"flightdesk/app/util/mylog"

	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

func main() {
	di := do.New()
	defer di.Shutdown()
	defer log.Info("Waiting for services to finish...")

	mylog.Preinit()

	appCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load(config.DefaultPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	do.Provide(di, llm.New)
	do.Provide(di, catalog.New)
	do.Provide(di, session.New)
	do.Provide(di, bookings.New)
	do.Provide(di, profiles.New)
	do.Provide(di, bookingstore.New)
	do.Provide(di, booking.New)
	do.Provide(di, intent.NewDateExtractorService)
	do.Provide(di, intent.New)
	do.Provide(di, agent.New)
	do.Provide(di, agent.NewMCP)
	do.Provide(di, conversation.New)
	do.Provide(di, api.New)

	group, groupCtx := errgroup.WithContext(appCtx)

	if cfg.BookingStore.Listen != "" {
		store := do.MustInvoke[*bookingstore.Service](di)
		group.Go(func() error {
			return store.Run(groupCtx)
		})
	}

	server := do.MustInvoke[*api.Service](di)
	group.Go(func() error {
		return server.Run(groupCtx)
	})

	slog.Info("Service started",
		"listen", cfg.Server.Listen,
		"booking_store", cfg.BookingStore.Listen,
		"mcp", cfg.MCP.Enabled,
	)

	if err = group.Wait(); err != nil {
		slog.Error("Service stopped with error", "error", err)
	}

	log.Info("Shutting down...")
}
