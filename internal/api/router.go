/**
 * @description
 * This file sets up the HTTP router for the pairing-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies the
 * standard middleware stack plus the internal API key check.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/prometheus/client_golang: The /metrics endpoint.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PairingRoutes creates and returns a new router for the pairing service.
func PairingRoutes(h *PairingHandlers, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Group routes that require the internal API key.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		// Offline request submission and status polling
		r.Post("/requests", h.SubmitRequestHandler)
		r.Get("/requests/{requestID}", h.GetRequestStatusHandler)

		// Settled transfer lookup
		r.Get("/transfers/{transferID}", h.GetTransferHandler)

		// Account provisioning
		r.Post("/accounts", h.CreateAccountHandler)
	})

	return r
}
