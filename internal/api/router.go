package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/logbridge/internal/convert"
	"github.com/starford/logbridge/internal/ledger"
	"github.com/starford/logbridge/internal/resolver"
	"github.com/starford/logbridge/internal/runservice"
)

// Runner is the run service as seen by the API.
type Runner interface {
	Convert(ctx context.Context) (*convert.Report, error)
	Latest() (*convert.Report, error)
	LookupBlock(id string) (resolver.Target, error)
	Preview(source string) (*runservice.Preview, error)
	Runs(limit int) ([]ledger.RunRow, error)
}

var _ Runner = (*runservice.Service)(nil)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc Runner, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Post("/runs", h.Convert)
	r.Get("/runs", h.ListRuns)
	r.Get("/report", h.Report)
	r.Get("/blocks/{id}", h.LookupBlock)
	r.Get("/preview", h.Preview)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
