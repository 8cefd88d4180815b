package logger

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu  sync.Mutex
	def *slog.Logger
)

// Init builds the process logger and installs it as slog's default.
func Init(cfg Config) *slog.Logger {
	return InitWriter(os.Stdout, cfg)
}

// InitWriter is Init with an explicit sink.
func InitWriter(w io.Writer, cfg Config) *slog.Logger {
	if cfg.Env == "" {
		cfg.Env = DetectEnv()
	}
	if cfg.Service == "" {
		cfg.Service = "roulette-service"
	}
	cfg.InstanceID = ensureInstanceID(cfg.InstanceID)

	if cfg.Backend == "" {
		if cfg.Env == EnvDev {
			cfg.Backend = BackendStd
		} else {
			cfg.Backend = BackendZap
		}
	}

	var h slog.Handler
	switch cfg.Backend {
	case BackendZap:
		h = newZapHandler(w, cfg)
	default:
		h = newStdHandler(w, cfg)
	}

	base := slog.New(h.WithAttrs(commonAttrs(cfg)))

	mu.Lock()
	def = base
	mu.Unlock()
	slog.SetDefault(base)

	return base
}

// L returns the configured logger, initialising a dev logger on first use.
func L() *slog.Logger {
	mu.Lock()
	l := def
	mu.Unlock()
	if l != nil {
		return l
	}
	return Init(Config{})
}
