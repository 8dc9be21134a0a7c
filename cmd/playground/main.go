package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"github.com/wippyai/enginebridge/bridge"
	"github.com/wippyai/enginebridge/httpapi"
	"github.com/wippyai/enginebridge/internal/config"
	"github.com/wippyai/enginebridge/internal/logger"
	"github.com/wippyai/enginebridge/sqlite"
	"github.com/wippyai/enginebridge/wasi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	log.Info("config loaded", zap.Stringer("config", cfg))

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	sqlProv := sqlite.NewProvider(sqlite.Config{Path: cfg.SQLite.Path, Logger: log})
	codeProv := wasi.NewProvider(wasi.Config{
		Module:           cfg.WASI.Module,
		Args:             cfg.WASI.Args,
		SourceViaStdin:   cfg.WASI.SourceViaStdin,
		MemoryLimitPages: cfg.WASI.MemoryLimitPages,
		VerifySource:     cfg.WASI.VerifySource,
		Logger:           log,
	})
	defer func() {
		shutdown := context.Background()
		sqlProv.Terminate(shutdown)
		codeProv.Terminate(shutdown)
	}()

	opts := []bridge.Option{bridge.WithTimeout(cfg.InitTimeout), bridge.WithLogger(log)}
	if cfg.AutoInit {
		opts = append(opts, bridge.WithAutoInit())
	}

	api := httpapi.New(sqlite.NewConsole(sqlProv, opts...), wasi.NewInterpreter(codeProv, opts...), httpapi.Config{
		StaticDir: cfg.StaticDir,
		RateLimit: cfg.Limiter.Enabled,
		RPS:       cfg.Limiter.RPS,
		Burst:     cfg.Limiter.Burst,
		Logger:    log,
	})

	server := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      api.Routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.InitTimeout + 30*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", server.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
