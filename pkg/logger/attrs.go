package logger

import (
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

func ensureInstanceID(v string) string {
	if v != "" {
		return v
	}

	hn, _ := os.Hostname()
	return hn + "-" + uuid.New().String()[:8]
}

func commonAttrs(cfg Config) []slog.Attr {
	return []slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("env", string(cfg.Env)),
		slog.String("version", cfg.Version),
		slog.String("instance_id", cfg.InstanceID),
		slog.Time("started_at", time.Now()),
	}
}

// Room and Player keep attribute keys the same across packages.
func Room(id string) slog.Attr { return slog.String("room_id", id) }

func Player(id int64) slog.Attr { return slog.Int64("player_id", id) }

func Err(err error) slog.Attr { return slog.Any("err", err) }
