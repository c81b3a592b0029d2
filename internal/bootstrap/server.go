package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/zsp-sports/gymbooking/api"
	"github.com/zsp-sports/gymbooking/config"
)

// Handlers collects the route groups the server mounts.
type Handlers struct {
	Bookings *api.BookingHandler
	Catalog  *api.CatalogHandler
	Credits  *api.CreditsHandler
}

// Run starts the HTTP server and blocks until the context is canceled or the
// server fails. Shutdown drains in-flight requests for up to five seconds.
func Run(ctx context.Context, cfg *config.Config, h Handlers) error {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	booking := router.Group("/booking")
	h.Bookings.Register(booking)
	h.Catalog.Register(booking)
	h.Credits.Register(booking)

	httpSrv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}
