package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/SAP-F-2025/forecast-service/internal/config"
	"github.com/SAP-F-2025/forecast-service/internal/handlers"
	"github.com/SAP-F-2025/forecast-service/internal/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long:  "Run the HTTP API. When jobs do not travel over Kafka an in-process worker runs analyses.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("port", "", "Listen port (overrides PORT)")
	serveCmd.Flags().StringSlice("cors-origin", []string{"*"}, "Allowed CORS origins")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}
	origins, _ := cmd.Flags().GetStringSlice("cors-origin")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.transport.InProcess {
		worker, err := a.newWorker()
		if err != nil {
			return err
		}
		go func() {
			if err := worker.Run(ctx); err != nil {
				logger.Error("In-process worker stopped", "error", err)
			}
		}()
		<-worker.Running()
		logger.Info("In-process analysis worker running")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	tokens := newTokenParser(cfg, logger)

	appLogger := utils.NewSlogLogger(logger)
	hm := handlers.NewHandlerManager(handlers.HandlerDeps{
		Analysis:   a.analysis,
		Results:    a.results,
		Evaluation: a.evaluation,
		Tokens:     tokens,
		Logger:     appLogger,
	})
	router := handlers.NewRouter(hm, appLogger)

	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID", handlers.UserHeader},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "port", cfg.Port, "environment", cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newTokenParser returns nil when casdoor is not configured; requests are then
// attributed to whatever X-User-ID the client sends.
func newTokenParser(cfg *config.Config, logger *slog.Logger) handlers.TokenParser {
	if cfg.Casdoor.Enabled() {
		return handlers.NewCasdoorParser(cfg.Casdoor)
	}
	logger.Warn("Token verification disabled: requesting user is taken from the header unverified",
		"header", handlers.UserHeader,
		"environment", cfg.Environment)
	return nil
}
