package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zefir/statki-go-backend/config"
	healthsrv "github.com/zefir/statki-go-backend/grpc"
	"github.com/zefir/statki-go-backend/internal"
	"github.com/zefir/statki-go-backend/internal/auth"
	"github.com/zefir/statki-go-backend/internal/db"
	"github.com/zefir/statki-go-backend/internal/httpapi"
	"github.com/zefir/statki-go-backend/logger"
)

func main() {
	if err := config.Load(); err != nil {
		logger.Log.Fatal().Err(err).Msg("config")
	}
	cfg := config.AppConfig
	if err := logger.Init(cfg.LOG_LEVEL, cfg.LOG_PRETTY); err != nil {
		logger.Log.Fatal().Err(err).Msg("logger")
	}
	if err := run(cfg); err != nil {
		logger.Log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	modes, err := internal.BuildModes(cfg)
	if err != nil {
		return err
	}

	store, err := db.Open(ctx, cfg.POSTGRES_URI, cfg.SQLITE_PATH)
	if err != nil {
		return err
	}
	defer store.Close()

	accounts := auth.New(store, []byte(cfg.JWT_SECRET), cfg.TOKEN_TTL)
	keeper := internal.NewGameKeeper(store, modes, cfg.TURN_TIMEOUT)
	srv := internal.NewServer(internal.Options{
		Accounts:      accounts,
		Keeper:        keeper,
		Modes:         modes,
		QueueSize:     cfg.QUEUE_SIZE,
		PingInterval:  cfg.PING_INTERVAL,
		AcceptTimeout: cfg.MATCH_ACCEPT_TIMEOUT,
		MsgRate:       cfg.MSG_RATE,
		MsgBurst:      cfg.MSG_BURST,
	})
	api := httpapi.NewServer(":"+cfg.HTTP_PORT, httpapi.NewRouter(accounts, keeper))
	health := healthsrv.NewHealthServer()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		health.SetServing(true)
		defer health.SetServing(false)
		return srv.ListenAndServe(ctx, ":"+cfg.WS_PORT)
	})
	g.Go(func() error {
		logger.Log.Info().Str("addr", api.Addr).Msg("HTTP API started")
		if err := api.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return api.Shutdown(sctx)
	})
	g.Go(func() error {
		return health.ListenAndServe(ctx, ":"+cfg.GRPC_PORT)
	})

	err = g.Wait()
	logger.Log.Info().Msg("shut down")
	return err
}
