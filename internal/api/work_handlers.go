package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/novelvault/internal/domain"
)

func (s *Server) registerWorkRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listWorks",
		Method:      http.MethodGet,
		Path:        "/api/v1/works",
		Summary:     "List works",
		Description: "Returns works in the library. The view selects the ordering and filter.",
		Tags:        []string{"Works"},
	}, s.handleListWorks)

	huma.Register(s.api, huma.Operation{
		OperationID: "getWork",
		Method:      http.MethodGet,
		Path:        "/api/v1/works/{id}",
		Summary:     "Get work",
		Description: "Returns a work by ID",
		Tags:        []string{"Works"},
	}, s.handleGetWork)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteWork",
		Method:        http.MethodDelete,
		Path:          "/api/v1/works/{id}",
		Summary:       "Delete work",
		Description:   "Removes a work with its progress, history, downloads and category membership. Artifacts on disk are kept.",
		Tags:          []string{"Works"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteWork)

	huma.Register(s.api, huma.Operation{
		OperationID: "listWorkDownloads",
		Method:      http.MethodGet,
		Path:        "/api/v1/works/{id}/downloads",
		Summary:     "List work downloads",
		Description: "Returns the download records of a work, newest first",
		Tags:        []string{"Works", "Downloads"},
	}, s.handleListWorkDownloads)

	huma.Register(s.api, huma.Operation{
		OperationID: "listWorkCategories",
		Method:      http.MethodGet,
		Path:        "/api/v1/works/{id}/categories",
		Summary:     "List work categories",
		Description: "Returns the categories a work belongs to",
		Tags:        []string{"Works", "Categories"},
	}, s.handleListWorkCategories)
}

// === DTOs ===

// ListWorksInput contains parameters for listing works.
type ListWorksInput struct {
	View  string `query:"view" enum:"all,recent,popular,recently_read,bookmarked" default:"all" doc:"Which works to list"`
	Limit int    `query:"limit" minimum:"0" doc:"Maximum results for ranked views (default 20)"`
}

// ListWorksResponse contains a list of works.
type ListWorksResponse struct {
	Works []*domain.Work `json:"works" doc:"Works"`
}

// ListWorksOutput wraps the list works response for Huma.
type ListWorksOutput struct {
	Body ListWorksResponse
}

// WorkIDInput identifies a work by path.
type WorkIDInput struct {
	ID string `path:"id" doc:"Work ID (<source>_<id>)"`
}

// WorkOutput wraps a work for Huma.
type WorkOutput struct {
	Body *domain.Work
}

// DeleteWorkOutput is empty; the route answers 204.
type DeleteWorkOutput struct{}

// ListDownloadsResponse contains download records.
type ListDownloadsResponse struct {
	Downloads []*domain.DownloadRecord `json:"downloads" doc:"Download records, newest first"`
}

// ListDownloadsOutput wraps the download list for Huma.
type ListDownloadsOutput struct {
	Body ListDownloadsResponse
}

// ListCategoriesResponse contains categories.
type ListCategoriesResponse struct {
	Categories []*domain.Category `json:"categories" doc:"Categories"`
}

// ListCategoriesOutput wraps the category list for Huma.
type ListCategoriesOutput struct {
	Body ListCategoriesResponse
}

// === Handlers ===

func (s *Server) handleListWorks(ctx context.Context, input *ListWorksInput) (*ListWorksOutput, error) {
	lib := s.services.Library
	limit := listLimit(input.Limit)

	var (
		works []*domain.Work
		err   error
	)
	switch input.View {
	case "recent":
		works, err = lib.RecentSearches(ctx, limit)
	case "popular":
		works, err = lib.MostSearched(ctx, limit)
	case "recently_read":
		works, err = lib.RecentlyRead(ctx, limit)
	case "bookmarked":
		works, err = lib.Bookmarked(ctx)
	default:
		works, err = lib.ListWorks(ctx)
	}
	if err != nil {
		return nil, err
	}

	if works == nil {
		works = []*domain.Work{}
	}
	return &ListWorksOutput{Body: ListWorksResponse{Works: works}}, nil
}

func (s *Server) handleGetWork(ctx context.Context, input *WorkIDInput) (*WorkOutput, error) {
	id, err := parseWorkID(input.ID)
	if err != nil {
		return nil, err
	}

	work, err := s.services.Library.GetWork(ctx, id)
	if err != nil {
		return nil, err
	}
	return &WorkOutput{Body: work}, nil
}

func (s *Server) handleDeleteWork(ctx context.Context, input *WorkIDInput) (*DeleteWorkOutput, error) {
	id, err := parseWorkID(input.ID)
	if err != nil {
		return nil, err
	}

	if err := s.services.Library.DeleteWork(ctx, id); err != nil {
		return nil, err
	}
	return &DeleteWorkOutput{}, nil
}

func (s *Server) handleListWorkDownloads(ctx context.Context, input *WorkIDInput) (*ListDownloadsOutput, error) {
	id, err := parseWorkID(input.ID)
	if err != nil {
		return nil, err
	}

	records, err := s.services.Library.Downloads(ctx, id)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*domain.DownloadRecord{}
	}
	return &ListDownloadsOutput{Body: ListDownloadsResponse{Downloads: records}}, nil
}

func (s *Server) handleListWorkCategories(ctx context.Context, input *WorkIDInput) (*ListCategoriesOutput, error) {
	id, err := parseWorkID(input.ID)
	if err != nil {
		return nil, err
	}

	cats, err := s.services.Library.CategoriesForWork(ctx, id)
	if err != nil {
		return nil, err
	}
	if cats == nil {
		cats = []*domain.Category{}
	}
	return &ListCategoriesOutput{Body: ListCategoriesResponse{Categories: cats}}, nil
}
