package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/praxis/internal/domain"
	"github.com/gosuda/praxis/internal/server/middleware"
)

type DocumentPathInput struct {
	Collection string `path:"collection" doc:"Collection name"`
	ID         string `path:"id" doc:"Document id"`
}

type ListDocumentsInput struct {
	Collection string `path:"collection" doc:"Collection name"`
	Limit      int    `query:"limit" default:"50" doc:"Max results, clamped to 1000"`
	Offset     int    `query:"offset" minimum:"0" default:"0" doc:"Offset for pagination"`
}

type ListDocumentsOutput struct {
	Body struct {
		Documents []*domain.Document `json:"documents"`
	}
}

type DocumentOutput struct {
	Body *domain.Document
}

type PutDocumentInput struct {
	Collection string `path:"collection" doc:"Collection name"`
	ID         string `path:"id" doc:"Document id"`
	Body       domain.Snapshot
}

func RegisterDocumentRoutes(api huma.API, docs DocumentService) {
	huma.Register(api, huma.Operation{
		OperationID: "list-documents",
		Method:      http.MethodGet,
		Path:        "/collections/{collection}/documents",
		Summary:     "List documents of a collection",
		Tags:        []string{"Documents"},
	}, func(ctx context.Context, input *ListDocumentsInput) (*ListDocumentsOutput, error) {
		if _, err := requireIdentity(ctx); err != nil {
			return nil, err
		}

		list, err := docs.List(ctx, input.Collection, input.Limit, input.Offset)
		if err != nil {
			return nil, apiError(err, "failed to list documents")
		}
		if list == nil {
			list = []*domain.Document{}
		}

		out := &ListDocumentsOutput{}
		out.Body.Documents = list
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-document",
		Method:      http.MethodGet,
		Path:        "/collections/{collection}/documents/{id}",
		Summary:     "Get a document",
		Tags:        []string{"Documents"},
	}, func(ctx context.Context, input *DocumentPathInput) (*DocumentOutput, error) {
		if _, err := requireIdentity(ctx); err != nil {
			return nil, err
		}

		doc, err := docs.Get(ctx, input.Collection, input.ID)
		if err != nil {
			return nil, apiError(err, "failed to get document")
		}

		return &DocumentOutput{Body: doc}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-document",
		Method:      http.MethodPut,
		Path:        "/collections/{collection}/documents/{id}",
		Summary:     "Create or replace a document",
		Description: "Bookkeeping fields (created, changed, lastModifiedBy, lastModifiedByEmail) are stamped by the server. A timestamp field is stored as sent and ignored by change detection.",
		Tags:        []string{"Documents"},
		Middlewares: huma.Middlewares{middleware.RequireRole(api, middleware.WriterRoles...)},
	}, func(ctx context.Context, input *PutDocumentInput) (*DocumentOutput, error) {
		caller, err := requireIdentity(ctx)
		if err != nil {
			return nil, err
		}

		after, err := docs.Put(ctx, caller, input.Collection, input.ID, input.Body)
		if err != nil {
			return nil, apiError(err, "failed to save document")
		}

		return &DocumentOutput{Body: &domain.Document{
			Collection: input.Collection,
			ID:         input.ID,
			Data:       after,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-document",
		Method:        http.MethodDelete,
		Path:          "/collections/{collection}/documents/{id}",
		Summary:       "Delete a document",
		Tags:          []string{"Documents"},
		DefaultStatus: http.StatusNoContent,
		Middlewares:   huma.Middlewares{middleware.RequireRole(api, middleware.WriterRoles...)},
	}, func(ctx context.Context, input *DocumentPathInput) (*struct{}, error) {
		if err := docs.Delete(ctx, input.Collection, input.ID); err != nil {
			return nil, apiError(err, "failed to delete document")
		}

		return nil, nil
	})
}
