package mylog

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestForwardToTelegram(t *testing.T) {
	tests := []struct {
		name  string
		level slog.Level
		attrs []slog.Attr
		want  bool
	}{
		{name: "error", level: slog.LevelError, want: true},
		{name: "plain info", level: slog.LevelInfo, want: false},
		{name: "tagged info", level: slog.LevelInfo, attrs: []slog.Attr{slog.Bool(TelegramKey, true)}, want: true},
		{name: "other attrs", level: slog.LevelWarn, attrs: []slog.Attr{slog.String("session", "s1")}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := slog.NewRecord(time.Now(), tt.level, "msg", 0)
			r.AddAttrs(tt.attrs...)
			assert.Equal(t, tt.want, forwardToTelegram(context.Background(), r))
		})
	}
}
