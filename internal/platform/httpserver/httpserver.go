// Package httpserver builds the process HTTP server. Per-route deadlines are
// enforced by the middleware Timeout, so only connection-level timeouts live
// here.
package httpserver

import (
	"net/http"
	"time"
)

// New builds the server with connection timeouts suited to a JSON API behind
// a gateway. WriteTimeout stays above the middleware request timeout so slow
// handlers surface as 504s from the middleware, not dropped connections.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
