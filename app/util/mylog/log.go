package mylog

import (
	"context"
	"flightdesk/app/config"
	"log/slog"
	"os"

	"github.com/phsym/console-slog"
	slogmulti "github.com/samber/slog-multi"
	slogtelegram "github.com/samber/slog-telegram/v2"
)

// TelegramKey marks a record that should also be forwarded to telegram.
const TelegramKey = "telegram"

func Preinit() {
	slog.SetDefault(slog.New(consoleHandler()))
}

func Init(cfg *config.Config) error {
	router := slogmulti.Router().Add(consoleHandler())

	if cfg.Log.Telegram.Token != "" {
		router = router.Add(
			slogtelegram.Option{
				Level:     slog.LevelDebug,
				Token:     cfg.Log.Telegram.Token,
				Username:  cfg.Log.Telegram.ChatID,
				AddSource: true,
			}.NewTelegramHandler(),
			forwardToTelegram,
		)
	}

	slog.SetDefault(slog.New(router.Handler()))

	return nil
}

func consoleHandler() slog.Handler {
	return console.NewHandler(os.Stderr, &console.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelDebug,
	})
}

// forwardToTelegram passes errors, failed sagas and anything tagged with TelegramKey.
func forwardToTelegram(_ context.Context, r slog.Record) bool {
	if r.Level >= slog.LevelError {
		return true
	}

	tagged := false
	r.Attrs(func(attr slog.Attr) bool {
		if attr.Key == TelegramKey {
			tagged = true
			return false
		}

		return true
	})

	return tagged
}
