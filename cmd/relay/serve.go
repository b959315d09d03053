package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/relay/internal/server"
)

var (
	serveAddr     string
	serveBasePath string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the relay HTTP API",
	Long: `Serve the relay HTTP API.

Routes: GET /health, GET /tasks, GET /tasks/{id}, GET /tasks/{id}/children,
GET /executors, PUT /executors/{id}/availability, POST /plans,
POST /delegate, POST /infer. The OpenAPI document is served at
<base-path>/openapi.json.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger, appOptions{Command: "serve"})
		if err != nil {
			return err
		}
		defer a.Close()

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		basePath := cfg.Server.BasePath
		if serveBasePath != "" {
			basePath = serveBasePath
		}

		handler, err := server.New(server.Config{
			Store:        a.store,
			Registry:     a.reg,
			Engine:       a.engine,
			Orchestrator: a.orch,
			BasePath:     basePath,
			Logger:       logger,
		})
		if err != nil {
			return err
		}

		srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		fmt.Printf("Serving relay API on http://%s%s (%d executors)\n", addr, basePath, a.reg.Count())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().StringVar(&serveBasePath, "base-path", "", "API base path (default from config)")
}
