package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"bookpile/internal/handlers"
	"bookpile/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search API over HTTP",
		Long: `Starts an HTTP server exposing catalog search:

  POST /api/search   {"query": "...", "limit": 10}
  GET  /health
  GET  /metrics      Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if port == "" {
				port = app.Config.Port
			}

			searchHandler := handlers.NewSearchHandler(app.Searcher)

			router := mux.NewRouter()
			router.Use(middleware.LoggingMiddleware)
			router.Use(middleware.MetricsMiddleware)

			apiRouter := router.PathPrefix("/api").Subrouter()
			apiRouter.Use(middleware.APIRateLimitMiddleware())
			apiRouter.HandleFunc("/search", searchHandler.HandleSearch).Methods("POST")

			router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("OK"))
			}).Methods("GET")

			router.Handle("/metrics", promhttp.Handler()).Methods("GET")

			server := &http.Server{
				Addr:         ":" + port,
				Handler:      router,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Server starting", slog.String("port", port))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-cmd.Context().Done():
				slog.Info("Server shutting down...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server forced to shutdown", "error", err)
					return err
				}
				slog.Info("Server exited gracefully")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (defaults to PORT env or 8080)")

	return cmd
}
