package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"ws-broadcast-relay/internal/infrastructure/config"
	"ws-broadcast-relay/internal/infrastructure/hub"
	"ws-broadcast-relay/internal/infrastructure/logger"
	"ws-broadcast-relay/internal/infrastructure/metrics"
	"ws-broadcast-relay/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	gin.SetMode(cfg.GinMode)
	log := logger.NewLogrusLogger(cfg.Logger())

	// Bind before anything else so a busy port fails fast.
	ln, err := server.Listen(cfg.Addr())
	if err != nil {
		log.Fatalf("failed to start relay: %v", err)
	}

	ctx := context.Background()
	sctx := WithSignal(ctx)

	reg := metrics.NewRegistry()
	relayMetrics := metrics.NewRelayMetrics(reg)

	hubInstance := hub.New(log, relayMetrics)
	if err := hubInstance.Start(ctx); err != nil {
		ln.Close()
		log.Fatalf("failed to start hub: %v", err)
	}

	opts := hub.ConnectionOptions{
		SendQueueSize:   cfg.SendQueueSize,
		MaxMessageBytes: cfg.MaxMessageBytes,
		WriteTimeout:    cfg.WriteTimeout,
		PongTimeout:     cfg.PongTimeout,
		PingInterval:    cfg.PingInterval(),
		ForceText:       cfg.ForceText,
		Metrics:         relayMetrics,
	}

	router, closeRouter := InitRouter(hubInstance, opts, reg, relayMetrics, log)
	defer closeRouter()

	httpSrv := server.NewHTTPServer(router, ln)
	log.Infof("Waiting for WebSocket connection on ws://localhost:%d", cfg.Port)

	app := newApplication(log, httpSrv, hubInstance, cfg.ShutdownTimeout)
	if err := app.Run(sctx); err != nil {
		log.Errorf("failed to run application: %v", err)
		closeRouter()
		os.Exit(1)
	}
}

type Application struct {
	logger          logger.Logger
	httpSrv         server.Server
	hub             *hub.Hub
	shutdownTimeout time.Duration
}

func newApplication(
	logger logger.Logger,
	httpSrv *server.HTTPServer,
	hubInstance *hub.Hub,
	shutdownTimeout time.Duration,
) *Application {
	return &Application{
		logger:          logger.WithField("app", "relay"),
		httpSrv:         httpSrv,
		hub:             hubInstance,
		shutdownTimeout: shutdownTimeout,
	}
}

func (app *Application) Run(ctx context.Context) error {
	eg, gctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return app.httpSrv.Start(gctx)
	})

	eg.Go(func() error {
		<-gctx.Done()
		app.logger.Info("shutting down")

		gracefulshutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			app.shutdownTimeout,
		)
		defer cancel()

		// Stop accepting first, then drop the open connections.
		// Shutdown does not track hijacked WebSocket connections.
		err := app.httpSrv.Stop(gracefulshutdownCtx)

		if herr := app.hub.Stop(gracefulshutdownCtx); herr != nil {
			app.logger.Errorf("failed to stop hub: %v", herr)
		}

		return err
	})

	return eg.Wait()
}

func WithSignal(pctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(pctx)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		<-sigc

		cancel()
	}()

	return ctx
}
