package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/praxis/internal/audit"
	"github.com/gosuda/praxis/internal/domain"
)

// AuditLogView is a persisted entry plus, for updates, the display-only
// list of fields that differ between oldData and newData.
type AuditLogView struct {
	domain.AuditEntry
	Changes []audit.FieldChange `json:"changes,omitempty"`
}

type AuditLogsBody struct {
	Logs []AuditLogView `json:"logs"`
}

type AuditLogsOutput struct {
	Body AuditLogsBody
}

type GetEntityAuditLogsInput struct {
	EntityType string `path:"entityType" doc:"Collection name, e.g. utenti"`
	EntityID   string `path:"entityId" doc:"Entity document id"`
	Limit      int    `query:"limit" default:"50" doc:"Max results, clamped to 1000"`
}

type GetUserAuditLogsInput struct {
	UserID string `path:"userId" doc:"Actor user id"`
	Limit  int    `query:"limit" default:"50" doc:"Max results, clamped to 1000"`
}

type SearchAuditLogsInput struct {
	EntityType string `query:"entityType" doc:"Filter by entity type"`
	Action     string `query:"action" doc:"Filter by action: create, update, delete or read"`
	UserID     string `query:"userId" doc:"Filter by actor user id"`
	StartDate  string `query:"startDate" doc:"Inclusive lower bound (RFC 3339)"`
	EndDate    string `query:"endDate" doc:"Inclusive upper bound (RFC 3339)"`
	Limit      int    `query:"limit" default:"100" doc:"Max results, clamped to 1000"`
}

type CreateAuditLogInput struct {
	Body struct {
		EntityType string          `json:"entityType" doc:"Entity type"`
		EntityID   string          `json:"entityId" doc:"Entity id"`
		Action     string          `json:"action" doc:"create, update, delete or read"`
		Metadata   domain.Metadata `json:"metadata,omitempty" doc:"Free-form context"`
	}
}

type CreateAuditLogOutput struct {
	Body struct {
		Success bool      `json:"success"`
		AuditID uuid.UUID `json:"auditId"`
	}
}

func RegisterAuditRoutes(api huma.API, recorder AuditRecorder, querier AuditQuerier) {
	huma.Register(api, huma.Operation{
		OperationID: "get-entity-audit-logs",
		Method:      http.MethodGet,
		Path:        "/audit-logs/entities/{entityType}/{entityId}",
		Summary:     "List the audit trail of one entity",
		Tags:        []string{"Audit"},
	}, func(ctx context.Context, input *GetEntityAuditLogsInput) (*AuditLogsOutput, error) {
		if _, err := requireIdentity(ctx); err != nil {
			return nil, err
		}

		entries, err := querier.ByEntity(ctx, input.EntityType, input.EntityID, input.Limit)
		if err != nil {
			return nil, apiError(err, "failed to load audit logs")
		}

		return logsOutput(entries), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user-audit-logs",
		Method:      http.MethodGet,
		Path:        "/audit-logs/users/{userId}",
		Summary:     "List the audit entries attributed to one user",
		Tags:        []string{"Audit"},
	}, func(ctx context.Context, input *GetUserAuditLogsInput) (*AuditLogsOutput, error) {
		if _, err := requireIdentity(ctx); err != nil {
			return nil, err
		}

		entries, err := querier.ByUser(ctx, input.UserID, input.Limit)
		if err != nil {
			return nil, apiError(err, "failed to load audit logs")
		}

		return logsOutput(entries), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "search-audit-logs",
		Method:      http.MethodGet,
		Path:        "/audit-logs",
		Summary:     "Search the audit trail",
		Tags:        []string{"Audit"},
	}, func(ctx context.Context, input *SearchAuditLogsInput) (*AuditLogsOutput, error) {
		if _, err := requireIdentity(ctx); err != nil {
			return nil, err
		}

		filter := domain.AuditFilter{
			EntityType: input.EntityType,
			Action:     domain.AuditAction(input.Action),
			UserID:     input.UserID,
			Limit:      input.Limit,
		}

		var err error
		if filter.StartDate, err = parseDate(input.StartDate); err != nil {
			return nil, huma.Error400BadRequest("startDate must be an RFC 3339 timestamp")
		}
		if filter.EndDate, err = parseDate(input.EndDate); err != nil {
			return nil, huma.Error400BadRequest("endDate must be an RFC 3339 timestamp")
		}

		entries, err := querier.Search(ctx, filter)
		if err != nil {
			return nil, apiError(err, "failed to search audit logs")
		}

		return logsOutput(entries), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-audit-log",
		Method:      http.MethodPost,
		Path:        "/audit-logs",
		Summary:     "Record a manual audit entry for the caller",
		Tags:        []string{"Audit"},
	}, func(ctx context.Context, input *CreateAuditLogInput) (*CreateAuditLogOutput, error) {
		caller, err := requireIdentity(ctx)
		if err != nil {
			return nil, err
		}

		p := audit.LogParams{
			EntityType: input.Body.EntityType,
			EntityID:   input.Body.EntityID,
			Action:     domain.AuditAction(input.Body.Action),
			UserID:     &caller.UserID,
			Metadata:   input.Body.Metadata,
			Source:     domain.SourceWeb,
		}
		if caller.Email != "" {
			p.UserEmail = &caller.Email
		}

		id, err := recorder.Log(ctx, p)
		if err != nil {
			return nil, apiError(err, "failed to record audit log")
		}

		out := &CreateAuditLogOutput{}
		out.Body.Success = true
		out.Body.AuditID = id
		return out, nil
	})
}

func logsOutput(entries []*domain.AuditEntry) *AuditLogsOutput {
	views := make([]AuditLogView, 0, len(entries))
	for _, e := range entries {
		v := AuditLogView{AuditEntry: *e}
		if e.Action == domain.AuditActionUpdate {
			v.Changes = audit.DetectChanges(e.OldData, e.NewData)
		}
		views = append(views, v)
	}
	return &AuditLogsOutput{Body: AuditLogsBody{Logs: views}}
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
