package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/novelvault/internal/domain"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "searchWorks",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Search works",
		Description: "Fuzzy-matches the query against the title and author of every work in the library",
		Tags:        []string{"Search"},
	}, s.handleSearch)
}

// SearchInput contains search parameters.
type SearchInput struct {
	Query string `query:"q" doc:"Search text"`
	Limit int    `query:"limit" minimum:"0" doc:"Maximum results (default 20)"`
}

// SearchResponse contains search results.
type SearchResponse struct {
	Query string         `json:"query" doc:"The query as received"`
	Works []*domain.Work `json:"works" doc:"Matches, best first"`
}

// SearchOutput wraps the search response for Huma.
type SearchOutput struct {
	Body SearchResponse
}

func (s *Server) handleSearch(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	works, err := s.services.Library.Search(ctx, input.Query, listLimit(input.Limit))
	if err != nil {
		return nil, err
	}
	if works == nil {
		works = []*domain.Work{}
	}
	return &SearchOutput{Body: SearchResponse{Query: input.Query, Works: works}}, nil
}
