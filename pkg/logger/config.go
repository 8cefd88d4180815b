package logger

import "log/slog"

type Backend string

const (
	BackendStd Backend = "std" // slog text handler, dev default
	BackendZap Backend = "zap" // slog-zap JSON, stage/prod default
)

type Config struct {
	Service    string
	Version    string
	InstanceID string

	Level   slog.Level
	Env     Env
	Backend Backend
	Debug   bool

	// zap sampling, per second
	SampleInitial    int
	SampleThereafter int

	AddSource bool
}

func (c Config) level() slog.Level {
	if c.Debug && c.Level == 0 {
		return slog.LevelDebug
	}
	return c.Level
}
