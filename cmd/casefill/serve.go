package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yangwenmai/casefill/internal/api"
	"github.com/yangwenmai/casefill/internal/progress"
	"github.com/yangwenmai/casefill/internal/worker"
)

func newServeCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background case worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				cfg.Port = port
			}
			return serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "Listen port (overrides config)")
	return cmd
}

func serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, progress.Nop{})
	if err != nil {
		return err
	}
	defer a.Close()

	w := worker.New(a.machine,
		worker.WithConcurrency(cfg.WorkerConcurrency),
		worker.WithQueueSize(cfg.QueueSize),
		worker.WithLogger(logger),
	)
	workerDone := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(workerDone)
	}()

	srv := api.New(a.machine, w, a.store,
		api.WithLogger(logger),
		api.WithCORSOrigins(cfg.Origins()...),
	)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
	}()

	logger.Info("casefill server listening", zap.String("addr", "http://localhost:"+cfg.Port), zap.Bool("demo", cfg.Demo))
	err = httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	} else {
		stop()
	}
	<-workerDone
	return err
}
