package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"duffel/internal/platform/metrics"
)

const requestTimeout = 30 * time.Second

// NewRouter assembles the public HTTP surface. ws is the websocket endpoint;
// it is mounted outside the timeout and JSON groups because an upgraded
// connection outlives any per-request budget and authenticates during its
// own handshake. metricsHandler is usually promhttp; pass nil to disable.
func NewRouter(h *Handler, ws http.Handler, metricsHandler http.Handler, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(Recovery(logger))
	r.Use(RequestID)
	r.Use(Tracing)
	r.Use(Logger(logger))
	r.Use(Latency(m))

	r.Get("/healthz", h.handleHealthz)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		if ws != nil {
			r.Handle("/lists/{listID}/ws", ws)
		}

		r.Group(func(r chi.Router) {
			r.Use(Timeout(requestTimeout))
			r.Use(ContentTypeJSON)

			r.Post("/auth/token", h.handleMintToken)

			r.Group(func(r chi.Router) {
				r.Use(RequireAuth(h.tokens, logger))

				r.Post("/lists", h.handleCreateList)
				r.Route("/lists/{listID}", func(r chi.Router) {
					r.Get("/", h.handleGetSnapshot)
					r.Post("/share", h.handleShare)

					r.Get("/items", h.handleListItems)
					r.Post("/items", h.handleCreateItem)
					r.Post("/items/bulk", h.handleBulkUpdateItems)
					r.Patch("/items/{itemID}", h.handleUpdateItem)
					r.Delete("/items/{itemID}", h.handleDeleteItem)

					r.Get("/containers", h.handleListContainers)
					r.Post("/containers", h.handleCreateContainer)
					r.Patch("/containers/{containerID}", h.handleRenameContainer)
					r.Delete("/containers/{containerID}", h.handleDeleteContainer)

					r.Get("/presence", h.handlePresence)
					r.Get("/journal", h.handleJournal)
				})
			})
		})
	})

	return r
}
