package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"orchestrator/internal/http/handlers"
	"orchestrator/internal/middleware"
)

// NewRouter builds the HTTP surface: the client-facing generation-request
// routes and the worker-facing callback routes, the latter guarded by the
// shared callback secret.
func NewRouter(app *handlers.App, callbackSecret string) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
	)

	r.Get("/healthz", app.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/generation-requests", func(r chi.Router) {
			r.Post("/", app.GenerationRequestCreate)
			r.Get("/{request_id}", app.GenerationRequestGet)
			r.Post("/{request_id}/select-sample", app.GenerationRequestSelectSample)
			r.Post("/{request_id}/regenerate", app.GenerationRequestRegenerate)
		})
		r.Route("/callbacks", func(r chi.Router) {
			r.Use(middleware.CallbackSecret(callbackSecret))
			r.Post("/sample-result", app.CallbackSampleResult)
			r.Post("/final-result", app.CallbackFinalResult)
			r.Post("/error", app.CallbackError)
		})
	})

	return r
}
