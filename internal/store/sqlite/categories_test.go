package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/listenupapp/novelvault/internal/domain"
	"github.com/listenupapp/novelvault/internal/store"
)

func TestEnsureMembership_ConcurrentSamePair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := domain.WorkID("qidian_cat")
	insertTestWork(t, s, id, "Categorized")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Categories.EnsureMembership(ctx, id, "Cultivation"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("EnsureMembership: %v", err)
	}

	cat, err := s.GetCategory(ctx, "Cultivation")
	if err != nil {
		t.Fatalf("category should have been created: %v", err)
	}
	if cat.WorkCount != 1 {
		t.Errorf("WorkCount: got %d, want 1", cat.WorkCount)
	}
}

func TestEnsureMembership_UnknownWorkIsNoop(t *testing.T) {
	s := newTestStore(t)

	if err := s.Categories.EnsureMembership(context.Background(), "qidian_missing", domain.CategoryFavorites); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}

	cat, err := s.GetCategory(context.Background(), domain.CategoryFavorites)
	if err != nil {
		t.Fatalf("GetCategory: %v", err)
	}
	if cat.WorkCount != 0 {
		t.Errorf("WorkCount: got %d, want 0", cat.WorkCount)
	}
}

func TestRemoveMembership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := domain.WorkID("qidian_rm")
	insertTestWork(t, s, id, "Removable")

	if err := s.Categories.EnsureMembership(ctx, id, domain.CategoryToRead); err != nil {
		t.Fatalf("EnsureMembership: %v", err)
	}
	if err := s.Categories.RemoveMembership(ctx, id, domain.CategoryToRead); err != nil {
		t.Fatalf("RemoveMembership: %v", err)
	}
	// Removing again, or from a category that does not exist, is fine.
	if err := s.Categories.RemoveMembership(ctx, id, domain.CategoryToRead); err != nil {
		t.Fatalf("RemoveMembership again: %v", err)
	}
	if err := s.Categories.RemoveMembership(ctx, id, "No Such Category"); err != nil {
		t.Fatalf("RemoveMembership unknown category: %v", err)
	}

	if member, _ := s.IsMember(ctx, id, domain.CategoryToRead); member {
		t.Error("membership should be gone")
	}
}

func TestCreateCategory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cat, err := s.CreateCategory(ctx, "Xianxia", "#123456")
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if cat.ID == 0 {
		t.Error("expected an ID")
	}

	if _, err := s.CreateCategory(ctx, "Xianxia", ""); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("duplicate: expected ErrAlreadyExists, got %v", err)
	}
	if _, err := s.CreateCategory(ctx, "  ", ""); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("blank: expected ErrInvalidInput, got %v", err)
	}
	if _, err := s.GetCategory(ctx, "Nope"); !errors.Is(err, store.ErrCategoryNotFound) {
		t.Errorf("missing: expected ErrCategoryNotFound, got %v", err)
	}
}

func TestCategoryListings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestWork(t, s, "qidian_x", "X")
	insertTestWork(t, s, "qidian_y", "Y")
	for _, id := range []domain.WorkID{"qidian_x", "qidian_y"} {
		if err := s.Categories.EnsureMembership(ctx, id, domain.CategoryOngoing); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Categories.EnsureMembership(ctx, "qidian_x", domain.CategoryFinished); err != nil {
		t.Fatal(err)
	}

	works, err := s.WorksInCategory(ctx, domain.CategoryOngoing)
	if err != nil {
		t.Fatalf("WorksInCategory: %v", err)
	}
	if len(works) != 2 {
		t.Errorf("WorksInCategory: got %d works", len(works))
	}

	cats, err := s.CategoriesForWork(ctx, "qidian_x")
	if err != nil {
		t.Fatalf("CategoriesForWork: %v", err)
	}
	if len(cats) != 2 || cats[0].Name != domain.CategoryFinished || cats[1].Name != domain.CategoryOngoing {
		t.Errorf("CategoriesForWork: %+v", cats)
	}
	if cats[1].WorkCount != 2 {
		t.Errorf("Ongoing WorkCount: got %d, want 2", cats[1].WorkCount)
	}

	all, err := s.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(all) != len(domain.BuiltinCategories) {
		t.Errorf("ListCategories: got %d", len(all))
	}
}
