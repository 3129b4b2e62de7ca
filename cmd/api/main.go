package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/medintell/oncochat/backend/internal/app"
	"github.com/medintell/oncochat/backend/internal/config"
	"github.com/medintell/oncochat/backend/internal/handler"
	"github.com/medintell/oncochat/backend/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.Init(cfg.Log)
	if err != nil {
		log.Fatalf("failed to initialise logging: %v", err)
	}
	slog.SetDefault(logger)

	application, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialise services", slog.Any("error", err))
		os.Exit(1)
	}

	router := handler.NewRouter(handler.Deps{
		Personas:   application.Personas,
		Controller: application.Controller,
		History:    application.History,
		Ticker:     application.Ticker,
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("MedIntell relay listening", slog.String("addr", cfg.Server.Addr))
	serveErr := runServer(ctx, srv, application.Controller.Shutdown)

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Close(closeCtx); err != nil {
		logger.Warn("history flush incomplete", slog.Any("error", err))
	}

	if serveErr != nil {
		logger.Error("server error", slog.Any("error", serveErr))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// runServer 运行 HTTP 服务直到 ctx 结束；onShutdown 在优雅关闭前调用，
// 用于取消仍在进行的对话以便 SSE 连接尽快结束。
func runServer(ctx context.Context, srv *http.Server, onShutdown func()) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		if onShutdown != nil {
			onShutdown()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
