package api

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/middleware"
)

// NewRouter builds the reader API.
//
//	GET    /api/v1/documents
//	POST   /api/v1/documents
//	DELETE /api/v1/documents/{key}
//	GET    /api/v1/documents/{key}/search
//	POST   /api/v1/documents/{key}/view
//	GET    /api/v1/documents/{key}/pages/{page}
//	GET    /api/v1/stats
//	POST   /api/v1/indices/clear
//	GET    /health/live, /health/ready
//
// Middleware, outermost first: RequestID, CORS, Metrics, Timeout.
func NewRouter(h *Handler, checker *health.Checker, m *metrics.Metrics, timeout time.Duration) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mux.HandleFunc("GET /api/v1/documents", h.ListDocuments)
	mux.HandleFunc("POST /api/v1/documents", h.OpenDocument)
	mux.HandleFunc("DELETE /api/v1/documents/{key}", h.CloseDocument)
	mux.HandleFunc("GET /api/v1/documents/{key}/search", h.Search)
	mux.HandleFunc("POST /api/v1/documents/{key}/view", h.View)
	mux.HandleFunc("GET /api/v1/documents/{key}/pages/{page}", h.Page)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("POST /api/v1/indices/clear", h.ClearIndices)

	var chain http.Handler = mux
	if timeout > 0 {
		chain = middleware.Timeout(timeout)(chain)
	}
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	return middleware.RequestID(chain)
}
