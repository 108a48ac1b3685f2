package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"genstudio/internal/http/handlers"
	"genstudio/internal/middleware"
)

// Options configure the router's surrounding middleware.
type Options struct {
	CORSOrigins     []string
	RateLimitPerMin int
	Country         middleware.CountryLookup
	// Events serves the websocket job event stream. Optional.
	Events http.Handler
	// StaticDir is served under /static when the filesystem store is used.
	StaticDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RealIP,
		middleware.RequestID,
		middleware.Country(opts.Country),
		middleware.Logger(app.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.CORSOrigins),
	)

	// Mutating routes share one per-IP budget.
	limited := func(next http.Handler) http.Handler { return next }
	if opts.RateLimitPerMin > 0 {
		limited = middleware.RateLimit(opts.RateLimitPerMin, time.Minute)
	}

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/models", app.ListModels)

	r.Route("/v1/generations", func(r chi.Router) {
		r.With(limited).Post("/", app.SubmitGeneration)
		r.Get("/{id}", app.GenerationStatus)
		r.With(limited).Post("/{id}/complete", app.CompleteGeneration)
		r.Get("/{id}/archive", app.GenerationArchive)
	})

	r.Route("/v1/images", func(r chi.Router) {
		r.Get("/", app.ListImages)
		r.Get("/{id}", app.GetImage)
		r.With(limited).Post("/{id}/variations", app.VaryImage)
		r.With(limited).Post("/{id}/upscale", app.UpscaleImage)
		r.With(limited).Post("/{id}/remove-background", app.RemoveImageBackground)
	})

	r.Route("/v1/uploads", func(r chi.Router) {
		r.Use(limited)
		r.Post("/", app.PresignUpload)
		r.Post("/confirm", app.ConfirmUpload)
	})

	if opts.Events != nil {
		r.Get("/v1/events", opts.Events.ServeHTTP)
	}
	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	return r
}
