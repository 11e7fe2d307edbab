package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"qazna.org/authcore/internal/app"
	"qazna.org/authcore/internal/config"
	"qazna.org/authcore/internal/obs"
)

func main() {
	if err := run(); err != nil {
		slog.Error("authcore api stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := obs.NewLogger(obs.LogOptions{Level: cfg.SlogLevel(), JSON: cfg.LogJSON, Service: cfg.AppName})
	slog.SetDefault(logger)
	logger.LogAttrs(context.Background(), slog.LevelInfo, "configuration loaded", cfg.SafeFields()...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := obs.SetupTracing(ctx, cfg.AppName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	metrics := obs.NewMetrics()
	metrics.SetBuildInfo(obs.Version, obs.Commit)

	svc, err := app.New(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer svc.Close()

	if applied, err := svc.Store.Migrate(ctx); err != nil {
		return err
	} else if applied > 0 {
		logger.Info("migrations applied", slog.Int("count", applied))
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           svc.API.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", slog.String("addr", srv.Addr), slog.String("version", obs.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		grpcSrv = grpc.NewServer()
		svc.Health.Register(grpcSrv)
		go svc.Health.Run(ctx)
		go func() {
			logger.Info("grpc listening", slog.String("addr", cfg.GRPCAddr))
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- err
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
		stop()
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	logger.Info("stopped")
	return serveErr
}
