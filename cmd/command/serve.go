package command

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"circulation/internal/database"
	"circulation/internal/handlers"
	"circulation/internal/middleware"
	"circulation/internal/rfid"
	"circulation/internal/services"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the circulation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close(db)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, db)
	},
}

func serve(ctx context.Context, db *gorm.DB) error {
	svc := services.New(db, services.WithLogger(log))

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.AccessLog(log),
		middleware.Metrics(),
	)

	handlers.RegisterRoutes(router, handlers.Deps{
		Service: svc,
		Scanner: rfid.NewScanner(),
		Ping: func(ctx context.Context) error {
			return database.Ping(ctx, db)
		},
		WriteMiddleware: []gin.HandlerFunc{
			middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		},
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
