package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerSourceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listSources",
		Method:      http.MethodGet,
		Path:        "/api/v1/sources",
		Summary:     "List sources",
		Description: "Returns the tags of the catalogs downloads can use",
		Tags:        []string{"Sources"},
	}, s.handleListSources)
}

// ListSourcesResponse contains source tags.
type ListSourcesResponse struct {
	Sources []string `json:"sources" doc:"Source tags, sorted"`
}

// ListSourcesOutput wraps the source list for Huma.
type ListSourcesOutput struct {
	Body ListSourcesResponse
}

func (s *Server) handleListSources(_ context.Context, _ *struct{}) (*ListSourcesOutput, error) {
	tags := []string{}
	if s.services.Sources != nil {
		tags = append(tags, s.services.Sources.Tags()...)
	}
	return &ListSourcesOutput{Body: ListSourcesResponse{Sources: tags}}, nil
}
