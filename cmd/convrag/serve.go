package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/fyrsmithlabs/convrag/internal/conversation"
	httpserver "github.com/fyrsmithlabs/convrag/internal/http"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API on server.host:server.port.

Endpoints:
  GET    /health
  GET    /metrics
  GET    /api/v1/corpora/:id
  POST   /api/v1/corpora/:id/documents
  GET    /api/v1/corpora/:id/chunks?n=5
  POST   /api/v1/corpora/:id/search
  POST   /api/v1/corpora/:id/chat
  DELETE /api/v1/conversations/:cid`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, appOptions{generate: true})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	logger := a.log.Underlying()

	store, err := conversation.NewStore(ctx, cfg.Conversations)
	if err != nil {
		return fmt.Errorf("conversation store: %w", err)
	}
	defer store.Close()

	srv, err := httpserver.NewServer(httpserver.Deps{
		Engine:   a.engine,
		Registry: httpserver.NewRegistry(a.provider),
		Store:    store,
	}, logger.Named("http"), &httpserver.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout.Duration(),
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	a.log.Info(ctx, "convrag ready",
		zap.String("version", version),
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)),
		zap.String("index", cfg.Index.Provider),
		zap.String("conversations", cfg.Conversations.Store),
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
