package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("http:\n  addr: \":8080\"\ngrpc:\n  addr: \":9090\"\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Store.Driver != "memory" {
		t.Fatalf("driver = %q", cfg.Store.Driver)
	}
	g := cfg.Game
	if g.CountdownD != 20*time.Second || g.LockWindowD != 3*time.Second ||
		g.SpinDurationD != 15*time.Second || g.ResultHoldD != 6*time.Second ||
		g.TickIntervalD != 250*time.Millisecond {
		t.Fatalf("game timings: %+v", g)
	}
	if !*g.AutoReset || !*g.AutoCreateRooms || g.GiftUnits != "1" || len(g.Palette) != 6 {
		t.Fatalf("game defaults: %+v", g)
	}
	if cfg.Presence.WindowD != time.Minute {
		t.Fatalf("presence window = %v", cfg.Presence.WindowD)
	}
	if cfg.Logging.Service != "roulette-service" || cfg.Logging.Backend != "std" {
		t.Fatalf("logging defaults: %+v", cfg.Logging)
	}
}

func TestParse_ExplicitFalseIsKept(t *testing.T) {
	cfg, err := Parse([]byte(`
http: {addr: ":1"}
grpc: {addr: ":2"}
game:
  autoReset: false
  autoCreateRooms: false
  countdown: 30s
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if *cfg.Game.AutoReset || *cfg.Game.AutoCreateRooms {
		t.Fatalf("explicit false overwritten: %+v", cfg.Game)
	}
	if cfg.Game.CountdownD != 30*time.Second {
		t.Fatalf("countdown = %v", cfg.Game.CountdownD)
	}
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"no http":         "grpc: {addr: \":2\"}",
		"unknown driver":  "http: {addr: \":1\"}\ngrpc: {addr: \":2\"}\nstore: {driver: redis}",
		"postgres no dsn": "http: {addr: \":1\"}\ngrpc: {addr: \":2\"}\nstore: {driver: postgres}",
		"lock too long":   "http: {addr: \":1\"}\ngrpc: {addr: \":2\"}\ngame: {countdown: 5s, lockWindow: 5s}",
		"negative spin":   "http: {addr: \":1\"}\ngrpc: {addr: \":2\"}\ngame: {spinDuration: -1s}",
		"bad countdown":   "http: {addr: \":1\"}\ngrpc: {addr: \":2\"}\ngame: {countdown: soon}",
		"gift not number": "http: {addr: \":1\"}\ngrpc: {addr: \":2\"}\ngame: {giftUnits: one}",
		"gift too fine":   "http: {addr: \":1\"}\ngrpc: {addr: \":2\"}\ngame: {giftUnits: \"0.0000000001\"}",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParse_ZeroTimersAreKept(t *testing.T) {
	cfg, err := Parse([]byte(`
http: {addr: ":1", requestTimeout: 5s}
grpc: {addr: ":2"}
game:
  lockWindow: 0s
  spinDuration: 0s
  resultHold: 0s
  giftUnits: "2.5"
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	g := cfg.Game
	if g.LockWindowD != 0 || g.SpinDurationD != 0 || g.ResultHoldD != 0 {
		t.Fatalf("zero timers replaced: lock=%v spin=%v hold=%v", g.LockWindowD, g.SpinDurationD, g.ResultHoldD)
	}
	if g.GiftUnitsD.String() != "2.5" {
		t.Fatalf("gift units = %s", g.GiftUnitsD)
	}
	if cfg.HTTP.Request != 5*time.Second {
		t.Fatalf("request timeout = %v", cfg.HTTP.Request)
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":7000")
	t.Setenv("STORE_DRIVER", "SQLite")

	cfg, err := Parse([]byte("http: {addr: \":1\"}\ngrpc: {addr: \":2\"}\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.HTTP.Addr != ":7000" {
		t.Fatalf("http.addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Store.Driver != "sqlite" || !strings.HasSuffix(cfg.Store.SQLitePath, "roulette.db") {
		t.Fatalf("store = %+v", cfg.Store)
	}
}

func TestLoadConfig_FromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("http: {addr: \":1\"}\ngrpc: {addr: \":2\"}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.GRPC.Addr != ":2" {
		t.Fatalf("grpc.addr = %q", cfg.GRPC.Addr)
	}
}

func TestShippedConfigParses(t *testing.T) {
	data, err := os.ReadFile("config.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(data); err != nil {
		t.Fatalf("config.yaml: %v", err)
	}
}
