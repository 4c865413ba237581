package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/novelvault/internal/domain"
)

func (s *Server) registerCategoryRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listCategories",
		Method:      http.MethodGet,
		Path:        "/api/v1/categories",
		Summary:     "List categories",
		Description: "Returns all categories with their work counts",
		Tags:        []string{"Categories"},
	}, s.handleListCategories)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createCategory",
		Method:        http.MethodPost,
		Path:          "/api/v1/categories",
		Summary:       "Create category",
		Description:   "Creates a user category",
		Tags:          []string{"Categories"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateCategory)

	huma.Register(s.api, huma.Operation{
		OperationID: "listCategoryWorks",
		Method:      http.MethodGet,
		Path:        "/api/v1/categories/{name}/works",
		Summary:     "List category works",
		Description: "Returns the works in a category. An unknown name answers 404 with close names as suggestions.",
		Tags:        []string{"Categories"},
	}, s.handleListCategoryWorks)
}

// === DTOs ===

// CreateCategoryRequest is the request body for creating a category.
type CreateCategoryRequest struct {
	Name  string `json:"name" minLength:"1" maxLength:"64" doc:"Category name"`
	Color string `json:"color,omitempty" doc:"Display color as #RRGGBB"`
}

// CreateCategoryInput wraps the create category request for Huma.
type CreateCategoryInput struct {
	Body CreateCategoryRequest
}

// CategoryOutput wraps a category for Huma.
type CategoryOutput struct {
	Body *domain.Category
}

// CategoryNameInput identifies a category by path.
type CategoryNameInput struct {
	Name string `path:"name" doc:"Category name"`
}

// === Handlers ===

func (s *Server) handleListCategories(ctx context.Context, _ *struct{}) (*ListCategoriesOutput, error) {
	cats, err := s.services.Library.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	return &ListCategoriesOutput{Body: ListCategoriesResponse{Categories: cats}}, nil
}

func (s *Server) handleCreateCategory(ctx context.Context, input *CreateCategoryInput) (*CategoryOutput, error) {
	c, err := s.services.Library.CreateCategory(ctx, input.Body.Name, input.Body.Color)
	if err != nil {
		return nil, err
	}
	return &CategoryOutput{Body: c}, nil
}

func (s *Server) handleListCategoryWorks(ctx context.Context, input *CategoryNameInput) (*ListWorksOutput, error) {
	works, err := s.services.Library.WorksInCategory(ctx, input.Name)
	if err != nil {
		return nil, err
	}
	if works == nil {
		works = []*domain.Work{}
	}
	return &ListWorksOutput{Body: ListWorksResponse{Works: works}}, nil
}
