package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/roulette-service/config"
	"github.com/cwrk-planet/roulette-service/internal/feed"
	"github.com/cwrk-planet/roulette-service/internal/ledger"
	"github.com/cwrk-planet/roulette-service/internal/postgres"
	"github.com/cwrk-planet/roulette-service/internal/round"
	"github.com/cwrk-planet/roulette-service/internal/service"
	"github.com/cwrk-planet/roulette-service/internal/sqlite"
	"github.com/cwrk-planet/roulette-service/internal/store"
	"github.com/cwrk-planet/roulette-service/internal/store/memory"
	grpcx "github.com/cwrk-planet/roulette-service/internal/transport/grpc"
	httpx "github.com/cwrk-planet/roulette-service/internal/transport/http"
	"github.com/cwrk-planet/roulette-service/internal/transport/ws"
	"github.com/cwrk-planet/roulette-service/pkg/logger"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lg := logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	lg.Info("starting roulette-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "store", cfg.Store.Driver)

	if err := run(cfg, lg); err != nil {
		lg.Error("stopped with error", logger.Err(err))
		os.Exit(1)
	}
	lg.Info("stopped")
}

func run(cfg *config.Config, lg *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- store ---
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	// --- game ---
	rules := round.Rules{
		Countdown:    cfg.Game.CountdownD,
		LockWindow:   cfg.Game.LockWindowD,
		SpinDuration: cfg.Game.SpinDurationD,
		ResultHold:   cfg.Game.ResultHoldD,
		AutoReset:    *cfg.Game.AutoReset,
		MinPlayers:   2,
	}
	if err := rules.Validate(); err != nil {
		return fmt.Errorf("game rules: %w", err)
	}

	broker := feed.NewBroker(16)
	presence := service.NewPresenceService(st)
	presence.SetHeartbeatWindow(cfg.Presence.WindowD)
	coord := service.NewCoordinator(st, broker, presence, service.Options{
		Rules:      rules,
		Ledger:     ledger.New(cfg.Game.Palette, cfg.Game.GiftUnitsD),
		AutoCreate: *cfg.Game.AutoCreateRooms,
		Logger:     lg,
	})
	scheduler := service.NewScheduler(coord, cfg.Game.TickIntervalD, lg)

	// --- WS Hub & Server ---
	hub := ws.NewHub()
	wsServer := ws.NewServer(hub, coord, presence, lg)

	// --- HTTP ---
	handler := httpx.NewHandler(coord, lg)
	router := httpx.NewRouter(handler, wsServer, httpx.RouterConfig{AllowedOrigins: cfg.HTTP.AllowedOrigins, Timeout: cfg.HTTP.Request})
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.Read,
		WriteTimeout: 0, // event streams and sockets stay open
		IdleTimeout:  cfg.HTTP.Idle,
	}

	// --- gRPC ---
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcx.UnaryServerInterceptor(lg, cfg.HTTP.Request)),
		grpc.ChainStreamInterceptor(grpcx.StreamServerInterceptor(lg)),
	)
	grpcx.Register(grpcServer, grpcx.NewServer(coord))

	// --- run everything ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return scheduler.Run(gctx) })

	g.Go(func() error {
		lg.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		lg.Info("grpc listen", "addr", cfg.GRPC.Addr)
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})

	// --- graceful shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		lg.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		hub.CloseAll()
		grpcServer.GracefulStop()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config) (store.RoomStore, error) {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.ConnLifetime,
			MaxConnIdleTime: cfg.Postgres.ConnIdleTime,
			ApplicationName: cfg.Postgres.ApplicationName,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.Postgres.EnsureSchema {
			if err := postgres.EnsureSchema(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("postgres schema: %w", err)
			}
		}
		return postgres.NewRoomStore(pool), nil

	case "sqlite":
		db, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		return sqlite.New(db), nil

	default:
		return memory.New(), nil
	}
}
