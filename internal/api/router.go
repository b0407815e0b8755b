// Package api exposes the import pipeline over HTTP.
package api

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-import/internal/api/handlers"
	"github.com/dvloznov/ledger-import/internal/api/middleware"
)

// NewRouter registers every endpoint and wraps the mux in the middleware
// chain.
func NewRouter(imports *handlers.ImportsHandler, aiCache *handlers.AICacheHandler, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Import endpoints
	mux.HandleFunc("POST /api/imports/process", imports.Process)
	mux.HandleFunc("POST /api/imports/execute", imports.Execute)
	mux.HandleFunc("POST /api/imports/process/async", imports.ProcessAsync)
	mux.HandleFunc("POST /api/imports/execute/async", imports.ExecuteAsync)
	mux.HandleFunc("GET /api/imports/{session}", func(w http.ResponseWriter, r *http.Request) {
		imports.GetSession(w, r, r.PathValue("session"))
	})

	// AI cache endpoints
	mux.HandleFunc("DELETE /api/ai-cache", aiCache.Clear)

	// Health check endpoint
	mux.HandleFunc("GET /health", handlers.Health)

	return middleware.RequestID(
		middleware.Logger(log)(
			middleware.Recovery(log)(
				middleware.CORS(mux),
			),
		),
	)
}
