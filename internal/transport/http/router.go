package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"consentgate/internal/platform/health"
	"consentgate/internal/platform/middleware"
)

// NewRouter wires all public endpoints with middleware.
func NewRouter(h *Handler, healthHandler *health.Handler, metricsHandler http.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	// Device runs before Logger so every request line carries the bot flag.
	r.Use(middleware.Device)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(middleware.ContentTypeJSON)

	// Consent endpoints: the banner and preferences UI dispatch intents here.
	r.Get("/consent", h.handleSnapshot)
	r.Post("/consent/accept", h.handleAcceptAll)
	r.Post("/consent/reject", h.handleRejectAll)
	r.Post("/consent/preferences", h.handleSavePreferences)
	r.Post("/consent/preferences/open", h.handleOpenPreferences)
	r.Post("/consent/preferences/close", h.handleClosePreferences)
	r.Post("/consent/banner/open", h.handleOpenBanner)
	r.Post("/consent/announce", h.handleAnnounce)

	if healthHandler != nil {
		healthHandler.Register(r)
	}
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	return r
}
