package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/praxis/internal/api/v1"
	"github.com/gosuda/praxis/internal/api/ws"
)

func registerAPIRoutes(api huma.API, deps Deps, defaultRetentionDays int) {
	v1.RegisterAuditRoutes(api, deps.Recorder, deps.Querier)
	v1.RegisterDocumentRoutes(api, deps.Documents)
	v1.RegisterAdminRoutes(api, deps.Querier, defaultRetentionDays)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/audit/{entityType}/{entityId}", hub.ServeAudit)
}
