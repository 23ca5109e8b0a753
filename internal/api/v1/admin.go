package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/praxis/internal/server/middleware"
)

type CleanupAuditLogsInput struct {
	Body struct {
		DaysToKeep int `json:"daysToKeep,omitempty" minimum:"0" doc:"Retention window in days; 0 uses the configured default"`
	}
}

type CleanupAuditLogsOutput struct {
	Body struct {
		Success bool  `json:"success"`
		Deleted int64 `json:"deleted"`
	}
}

// RegisterAdminRoutes exposes maintenance operations. defaultDays applies
// when the request leaves daysToKeep unset.
func RegisterAdminRoutes(api huma.API, querier AuditQuerier, defaultDays int) {
	huma.Register(api, huma.Operation{
		OperationID: "cleanup-audit-logs",
		Method:      http.MethodPost,
		Path:        "/admin/audit-logs/cleanup",
		Summary:     "Delete audit entries older than the retention window",
		Tags:        []string{"Admin"},
		Middlewares: huma.Middlewares{middleware.RequireRole(api, middleware.AdminRoles...)},
	}, func(ctx context.Context, input *CleanupAuditLogsInput) (*CleanupAuditLogsOutput, error) {
		days := input.Body.DaysToKeep
		if days == 0 {
			days = defaultDays
		}

		n, err := querier.CleanOld(ctx, days)
		if err != nil {
			return nil, apiError(err, "failed to clean audit logs")
		}

		out := &CleanupAuditLogsOutput{}
		out.Body.Success = true
		out.Body.Deleted = n
		return out, nil
	})
}
