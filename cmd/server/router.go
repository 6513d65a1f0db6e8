package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/beepbeepai/alttext-api/internal/api"
	apiMiddleware "github.com/beepbeepai/alttext-api/internal/api/middleware"
)

// setupRouter configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.Trace)

	queueHandler := api.NewQueueHandler(app.queue, app.trigger, app.reconciler, app.logger)
	usageHandler := api.NewUsageHandler(app.reconciler, app.logger)
	subjectHandler := api.NewSubjectHandler(app.subjectStore, app.logger)
	credentialsHandler := api.NewCredentialsHandler(app.credentialStore, app.reconciler, app.logger)

	r.Route("/queue", func(r chi.Router) {
		r.Post("/jobs", queueHandler.Enqueue)
		r.Post("/bulk", queueHandler.EnqueueBulk)
		r.Get("/stats", queueHandler.Stats)
		r.Get("/jobs", queueHandler.Jobs)
		r.Post("/retry-failed", queueHandler.RetryFailed)
		r.Post("/clear-completed", queueHandler.ClearCompleted)
		r.Post("/process", queueHandler.Process)
	})
	r.Get("/usage", usageHandler.Usage)
	r.Route("/credentials", func(r chi.Router) {
		r.Get("/", credentialsHandler.Status)
		r.Put("/", credentialsHandler.Save)
		r.Delete("/token", credentialsHandler.ClearToken)
		r.Delete("/license", credentialsHandler.ClearLicense)
	})
	r.Route("/subjects", func(r chi.Router) {
		r.Put("/{id}", subjectHandler.Upsert)
		r.Get("/{id}", subjectHandler.Get)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
