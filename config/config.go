package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cwrk-planet/roulette-service/internal/ledger"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type GRPC struct {
	Addr string `yaml:"addr"`
}

type HTTP struct {
	Addr           string   `yaml:"addr"`
	ReadTimeout    string   `yaml:"readTimeout"`
	RequestTimeout string   `yaml:"requestTimeout"` // non-streaming routes and unary gRPC
	IdleTimeout    string   `yaml:"idleTimeout"`
	AllowedOrigins []string `yaml:"allowedOrigins"`

	Read    time.Duration `yaml:"-"`
	Request time.Duration `yaml:"-"`
	Idle    time.Duration `yaml:"-"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // roulette-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Store struct {
	Driver     string `yaml:"driver"` // memory|postgres|sqlite
	SQLitePath string `yaml:"sqlitePath"`
}

type Postgres struct {
	DSN             string `yaml:"dsn"`
	MaxConns        int32  `yaml:"maxConns"`
	MinConns        int32  `yaml:"minConns"`
	MaxConnLifetime string `yaml:"maxConnLifetime"`
	MaxConnIdleTime string `yaml:"maxConnIdleTime"`
	ApplicationName string `yaml:"applicationName"`
	EnsureSchema    bool   `yaml:"ensureSchema"`

	ConnLifetime time.Duration `yaml:"-"`
	ConnIdleTime time.Duration `yaml:"-"`
}

type Game struct {
	Countdown       string   `yaml:"countdown"`
	LockWindow      string   `yaml:"lockWindow"`
	SpinDuration    string   `yaml:"spinDuration"`
	ResultHold      string   `yaml:"resultHold"`
	TickInterval    string   `yaml:"tickInterval"`
	AutoReset       *bool    `yaml:"autoReset"`
	AutoCreateRooms *bool    `yaml:"autoCreateRooms"`
	GiftUnits       string   `yaml:"giftUnits"` // decimal string
	Palette         []string `yaml:"palette"`

	CountdownD    time.Duration `yaml:"-"`
	LockWindowD   time.Duration `yaml:"-"`
	SpinDurationD time.Duration `yaml:"-"`
	ResultHoldD   time.Duration `yaml:"-"`
	TickIntervalD time.Duration `yaml:"-"`

	GiftUnitsD decimal.Decimal `yaml:"-"`
}

type Presence struct {
	Window string `yaml:"window"`

	WindowD time.Duration `yaml:"-"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Logging  Logging  `yaml:"logging"`
	Store    Store    `yaml:"store"`
	Postgres Postgres `yaml:"postgres"`
	Game     Game     `yaml:"game"`
	Presence Presence `yaml:"presence"`
}

// LoadConfig loads .env if present, reads the YAML file at CONFIG_PATH and
// applies env overrides.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML, applies env overrides and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("GRPC_ADDR"); v != "" {
		c.GRPC.Addr = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.GRPC.Addr == "" {
		return errors.New("grpc.addr is required")
	}

	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case "":
		c.Store.Driver = "memory"
	case "memory":
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for store.driver=postgres")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			c.Store.SQLitePath = "./data/roulette.db"
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}

	// defaults for anything left out
	if c.Logging.Service == "" {
		c.Logging.Service = "roulette-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}

	c.HTTP.Read = parseDurationOr(10*time.Second, c.HTTP.ReadTimeout)
	c.HTTP.Request = parseDurationOr(15*time.Second, c.HTTP.RequestTimeout)
	c.HTTP.Idle = parseDurationOr(60*time.Second, c.HTTP.IdleTimeout)

	c.Postgres.ConnLifetime = parseDurationOr(time.Hour, c.Postgres.MaxConnLifetime)
	c.Postgres.ConnIdleTime = parseDurationOr(30*time.Minute, c.Postgres.MaxConnIdleTime)
	if c.Postgres.ApplicationName == "" {
		c.Postgres.ApplicationName = c.Logging.Service
	}

	g := &c.Game
	timers := []struct {
		key string
		raw string
		def time.Duration
		dst *time.Duration
	}{
		{"countdown", g.Countdown, 20 * time.Second, &g.CountdownD},
		{"lockWindow", g.LockWindow, 3 * time.Second, &g.LockWindowD},
		{"spinDuration", g.SpinDuration, 15 * time.Second, &g.SpinDurationD},
		{"resultHold", g.ResultHold, 6 * time.Second, &g.ResultHoldD},
	}
	for _, tm := range timers {
		d, err := gameDuration(tm.key, tm.raw, tm.def)
		if err != nil {
			return err
		}
		*tm.dst = d
	}
	g.TickIntervalD = parseDurationOr(250*time.Millisecond, g.TickInterval)
	if g.AutoReset == nil {
		g.AutoReset = boolPtr(true)
	}
	if g.AutoCreateRooms == nil {
		g.AutoCreateRooms = boolPtr(true)
	}
	if g.GiftUnits == "" {
		g.GiftUnits = "1"
	}
	gift, err := decimal.NewFromString(g.GiftUnits)
	if err != nil {
		return fmt.Errorf("game.giftUnits: %w", err)
	}
	if err := ledger.ValidateAmount(gift); err != nil {
		return fmt.Errorf("game.giftUnits: %w", err)
	}
	g.GiftUnitsD = gift
	if len(g.Palette) == 0 {
		g.Palette = ledger.DefaultPalette
	}
	if g.LockWindowD >= g.CountdownD {
		return fmt.Errorf("game.lockWindow (%s) must be shorter than game.countdown (%s)", g.LockWindowD, g.CountdownD)
	}

	c.Presence.WindowD = parseDurationOr(60*time.Second, c.Presence.Window)
	return nil
}

func boolPtr(b bool) *bool { return &b }

// parseDurationOr falls back to def for empty, invalid or non-positive values.
func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}

// gameDuration parses a game timer. Empty means def; zero is a valid timer.
func gameDuration(key, raw string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("game.%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("game.%s must not be negative", key)
	}
	return d, nil
}
