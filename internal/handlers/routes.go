package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Router builds the HTTP surface. Handlers read the package-level Mux,
// Sessions, and StatusFanout set from main.go.
func Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/health", HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/servers", ListServers)

		r.Get("/terminals", ListTerminals)
		r.Post("/terminals", CreateTerminal)
		r.Post("/terminals/reuse", ReuseTerminal)
		r.Get("/terminals/status", TerminalsStatus)
		r.Delete("/terminals/{id}", DeleteTerminal)
		r.Put("/terminals/{id}/name", RenameTerminal)
		r.Put("/terminals/{id}/color", RecolorTerminal)
		r.Post("/terminals/{id}/focus", FocusTerminal)
		r.Post("/terminals/{id}/reconnect", ReconnectTerminal)
		r.Post("/terminals/{id}/divider", DividerTerminal)
		r.Get("/terminals/{id}/ws", TerminalAttachWS)

		r.Put("/layout/viewport", SetViewport)
	})

	return r
}
