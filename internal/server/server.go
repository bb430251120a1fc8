// package server hosts the loopback HTTP endpoint that captures OAuth
// authorization callbacks during CLI login flows.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tunesync/internal/shared"
)

// Middleware wraps an http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler pairs an http.Handler with the routes it serves so a handler
// can own its path registrations.
type Handler interface {
	http.Handler
	Routes() []string
}

// Callback is a short-lived localhost server. It exists only for the
// duration of one authorization flow and shuts down after the callback
// lands.
type Callback struct {
	addr   string
	router *Router
	logger *log.Logger
	srv    *http.Server
}

// NewCallback builds a callback server bound to the configured host
// and port.
func NewCallback(cfg shared.ServerConfig, logger *log.Logger) *Callback {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Callback{
		addr:   net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		router: NewRouter(),
		logger: logger,
	}
}

// Register mounts a handler on the server's router.
func (c *Callback) Register(h Handler) {
	c.router.Handler(h)
}

// Start begins serving in the background. Serve errors other than a
// clean shutdown are logged.
func (c *Callback) Start() error {
	ln, err := net.Listen("tcp", c.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", c.addr, err)
	}
	c.srv = &http.Server{Handler: c.router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := c.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			c.logger.Error("callback server stopped", "error", err)
		}
	}()
	c.logger.Debug("callback server listening", "addr", c.addr)
	return nil
}

// Shutdown stops the server, waiting briefly for in-flight requests.
func (c *Callback) Shutdown(ctx context.Context) error {
	if c.srv == nil {
		return nil
	}
	sctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return c.srv.Shutdown(sctx)
}

// Addr returns the bound address of the server.
func (c *Callback) Addr() string {
	return c.addr
}
