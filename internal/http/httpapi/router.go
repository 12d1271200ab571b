package httpapi

import (
	"net/http"

	"courtside/internal/http/handlers"
	"courtside/internal/infra"
	appmw "courtside/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterOptions carries the cross-cutting settings the router needs.
type RouterOptions struct {
	Logger             infra.Logger
	CORSAllowedOrigins []string
}

func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(
		appmw.RequestID,
		middleware.RealIP,
		appmw.Logger(opts.Logger),
		middleware.Recoverer,
		appmw.CORS(opts.CORSAllowedOrigins),
	)

	// Health
	r.Get("/v1/healthz", app.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", app.Chat)
		r.Get("/proxy", app.Proxy)
	})

	return r
}
