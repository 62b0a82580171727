// internal/handlers/router.go
package handlers

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jason-s-yu/scoretracker/internal/middleware"
)

// RouterOptions configures the HTTP surface.
type RouterOptions struct {
	// AllowedOrigins is used for CORS and for WebSocket origin checks. Empty
	// means any http(s) origin, which is only meant for development.
	AllowedOrigins []string
}

// NewRouter mounts every table endpoint.
func NewRouter(s *TableServer, opts RouterOptions) http.Handler {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.LogMiddleware(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Route("/table", func(r chi.Router) {
		r.Post("/create", CreateTableHandler(s))
		r.Get("/state", TableStateHandler(s))
		r.Get("/history", TableHistoryHandler(s))
		r.Get("/standings", TableStandingsHandler(s))
		r.Post("/action", TableActionHandler(s))
		r.Get("/ws", TableWSHandler(s, wsOriginPatterns(opts.AllowedOrigins)))
	})
	return r
}

// wsOriginPatterns converts CORS origins into the host patterns websocket.Accept expects.
func wsOriginPatterns(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		}
	}
	return patterns
}
