package httpapi

import (
	"net/http"
	"time"

	"climatemap-server/internal/config"
)

// NewServer wraps the mux with request logging. No write timeout is set
// because /ws connections are long lived.
func NewServer(cfg config.Config, mux *http.ServeMux) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           requestLogger(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
