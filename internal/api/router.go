/**
 * @description
 * This file sets up the HTTP router for the remittance-service. It defines
 * the API endpoints, associates them with their corresponding handlers, and
 * applies middleware for logging, panic recovery, CORS, and authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for the mobile web client.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// TransferRoutes creates and returns a new router for the remittance service.
func TransferRoutes(h *TransferHandlers, jwksURL, audience, issuer string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require authentication.
	r.Route("/transfers", func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL, audience, issuer))

		// Reference data and saved recipients.
		r.Get("/corridors", h.ListCorridorsHandler)
		r.Get("/recipients", h.ListRecipientsHandler)
		r.Put("/recipients/{recipientID}/favorite", h.SetRecipientFavoriteHandler)

		// Send-money wizard sessions.
		r.Post("/sessions", h.OpenSessionHandler)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", h.GetSessionHandler)
			r.Delete("/", h.CloseSessionHandler)
			r.Put("/amount", h.SetAmountHandler)
			r.Put("/country", h.SelectCountryHandler)
			r.Post("/continue", h.ContinueHandler)
			r.Post("/recipient", h.AttachRecipientHandler)
			r.Post("/back", h.BackHandler)
			r.Post("/submit", h.SubmitHandler)
		})

		// Submitted transfer receipts.
		r.Get("/receipts", h.ListReceiptsHandler)
		r.Get("/receipts/{reference}", h.GetReceiptHandler)
	})

	return r
}
