// Package api serves a small debugging API on top of a running engine.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vrouter/nlengine/types"
)

var logger *slog.Logger

type ApiPlugin struct {
	Config

	server   *echo.Echo
	stats    StatsSource
	resolver types.FamilyResolver
}

func New(c *Config, stats StatsSource, resolver types.FamilyResolver) *ApiPlugin {
	if c == nil {
		c = &DefaultConfig
	}

	if c.Log {
		logger = slog.Default().With("t", "api")
	} else {
		logger = slog.New(slog.DiscardHandler)
	}

	logger.Debug("initialising the api plugin")

	p := &ApiPlugin{Config: *c, stats: stats, resolver: resolver}
	p.server = echo.New()

	// Extend the context of every handler with what they need.
	p.server.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&extendedContext{c, p.server.Routes(), p.stats, p.resolver})
		}
	})

	// Configure the methods for each path
	p.server.GET("/", handleRoot)
	p.server.GET("/stats", handleStats)
	p.server.GET("/families/:name", handleFamily)
	p.server.GET("/families/:name/groups/:group", handleGroup)

	// Prevent the banner from showing up in the log
	p.server.HideBanner = true
	p.server.HidePort = true

	return p
}

func (p *ApiPlugin) String() string {
	return "api"
}

// Handler exposes the API without binding a socket.
func (p *ApiPlugin) Handler() http.Handler {
	return p.server
}

func (p *ApiPlugin) Run(ctx context.Context) error {
	logger.Debug("running the api plugin", "addr", p.BindAddress, "port", p.BindPort)

	errChan := make(chan error, 1)
	go func() {
		if err := p.server.Start(fmt.Sprintf("%s:%d", p.BindAddress, p.BindPort)); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("couldn't start the API server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Debug("cleanly exiting the api plugin")
		return nil
	}
}

func (p *ApiPlugin) Cleanup() error {
	logger.Debug("cleaning up the api plugin")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down the API server: %w", err)
	}
	return nil
}
