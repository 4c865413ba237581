package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	lfuzzy "github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/sahilm/fuzzy"

	"github.com/listenupapp/novelvault/internal/domain"
	domainerrors "github.com/listenupapp/novelvault/internal/errors"
	"github.com/listenupapp/novelvault/internal/store"
	"github.com/listenupapp/novelvault/internal/validation"
)

// Export layout.
const (
	ExportDatabaseFile = "novel_library.db"
	ExportMetadataFile = "metadata.json"
	ExportProgressFile = "reading_progress.json"
	ExportDownloadsDir = "downloads"
)

// LibraryService manages the local library: works, categories, bookmarks,
// reading progress and maintenance.
type LibraryService struct {
	store     store.Store
	validator *validation.Validator
	logger    *slog.Logger
}

// NewLibraryService creates a library service.
func NewLibraryService(st store.Store, v *validation.Validator, logger *slog.Logger) *LibraryService {
	return &LibraryService{store: st, validator: v, logger: logger}
}

// ListWorks returns every known work, most recently seen first.
func (s *LibraryService) ListWorks(ctx context.Context) ([]*domain.Work, error) {
	works, err := s.store.ListWorks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list works: %w", err)
	}
	return works, nil
}

// GetWork returns one work.
func (s *LibraryService) GetWork(ctx context.Context, id domain.WorkID) (*domain.Work, error) {
	work, err := s.store.GetWork(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "work %s not found", id)
	}
	return work, nil
}

// DeleteWork removes a work and everything attached to it. Artifacts on
// disk are left alone.
func (s *LibraryService) DeleteWork(ctx context.Context, id domain.WorkID) error {
	if err := s.store.DeleteWork(ctx, id); err != nil {
		return mapNotFound(err, "work %s not found", id)
	}
	s.logger.Info("work deleted", "work_id", id)
	return nil
}

// RecentSearches returns works ordered by when they were last looked up.
func (s *LibraryService) RecentSearches(ctx context.Context, limit int) ([]*domain.Work, error) {
	return s.store.RecentSearches(ctx, limit)
}

// MostSearched returns works ordered by how often they were looked up.
func (s *LibraryService) MostSearched(ctx context.Context, limit int) ([]*domain.Work, error) {
	return s.store.MostSearched(ctx, limit)
}

// workIndex exposes works to sahilm/fuzzy as "title author" strings.
type workIndex []string

func newWorkIndex(works []*domain.Work) workIndex {
	idx := make(workIndex, len(works))
	for i, w := range works {
		idx[i] = strings.ToLower(strings.TrimSpace(w.Title + " " + w.Author))
	}
	return idx
}

func (idx workIndex) String(i int) string { return idx[i] }
func (idx workIndex) Len() int            { return len(idx) }

// Search fuzzy-matches query against the title and author of every work.
// Better matches come first; an empty query matches nothing.
func (s *LibraryService) Search(ctx context.Context, query string, limit int) ([]*domain.Work, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}

	works, err := s.store.ListWorks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list works: %w", err)
	}

	matches := fuzzy.FindFrom(query, newWorkIndex(works))
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	results := make([]*domain.Work, len(matches))
	for i, m := range matches {
		results[i] = works[m.Index]
	}
	return results, nil
}

// ListCategories returns all categories with their work counts.
func (s *LibraryService) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	return s.store.ListCategories(ctx)
}

// CreateCategory adds a user category.
func (s *LibraryService) CreateCategory(ctx context.Context, name, color string) (*domain.Category, error) {
	name = strings.TrimSpace(name)
	if err := s.validator.Var("name", name, "required,max=64"); err != nil {
		return nil, err
	}
	if color != "" {
		if err := s.validator.Var("color", color, "hexcolor"); err != nil {
			return nil, err
		}
	}

	c, err := s.store.CreateCategory(ctx, name, color)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, domainerrors.AlreadyExists(fmt.Sprintf("category %q already exists", name))
		}
		return nil, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

// WorksInCategory lists the members of a category. An unknown name is a
// not-found error carrying close category names as suggestions.
func (s *LibraryService) WorksInCategory(ctx context.Context, name string) ([]*domain.Work, error) {
	if _, err := s.store.GetCategory(ctx, name); err != nil {
		if errors.Is(err, store.ErrCategoryNotFound) {
			return nil, s.unknownCategory(ctx, name)
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return s.store.WorksInCategory(ctx, name)
}

// CategoriesForWork lists the categories a work belongs to.
func (s *LibraryService) CategoriesForWork(ctx context.Context, id domain.WorkID) ([]*domain.Category, error) {
	if _, err := s.GetWork(ctx, id); err != nil {
		return nil, err
	}
	return s.store.CategoriesForWork(ctx, id)
}

func (s *LibraryService) unknownCategory(ctx context.Context, name string) error {
	notFound := domainerrors.NotFoundf("category %q not found", name)

	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return notFound
	}
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.Name
	}

	ranks := lfuzzy.RankFindNormalizedFold(name, names)
	if len(ranks) == 0 {
		return notFound
	}
	sort.Sort(ranks)
	suggestions := make([]string, 0, 3)
	for _, r := range ranks {
		if len(suggestions) == cap(suggestions) {
			break
		}
		suggestions = append(suggestions, r.Target)
	}
	return notFound.WithDetails(map[string]any{"suggestions": suggestions})
}

// ProgressInput is a reading position update.
type ProgressInput struct {
	Chapter    int     `json:"chapter" validate:"gte=1"`
	Fraction   float64 `json:"fraction" validate:"gte=0,lte=1"`
	Bookmarked bool    `json:"bookmarked"`
}

// SaveProgress records where the reader is in a work.
func (s *LibraryService) SaveProgress(ctx context.Context, id domain.WorkID, in ProgressInput) (*domain.ReadingProgress, error) {
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}
	if err := s.store.SaveReadingProgress(ctx, id, in.Chapter, in.Fraction, in.Bookmarked); err != nil {
		return nil, mapNotFound(err, "work %s not found", id)
	}
	return s.store.GetReadingProgress(ctx, id)
}

// Progress returns the reading position of a work, clamped to its chapter
// count.
func (s *LibraryService) Progress(ctx context.Context, id domain.WorkID) (*domain.ReadingProgress, error) {
	work, err := s.GetWork(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := s.store.GetReadingProgress(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "no reading progress for %s", id)
	}
	clamped := p.Clamp(work.TotalChapters)
	return &clamped, nil
}

// ToggleBookmark flips the bookmark flag and reports the new value.
func (s *LibraryService) ToggleBookmark(ctx context.Context, id domain.WorkID) (bool, error) {
	on, err := s.store.ToggleBookmark(ctx, id)
	if err != nil {
		return false, mapNotFound(err, "work %s not found", id)
	}
	return on, nil
}

// SaveNotes stores free-form notes for a work.
func (s *LibraryService) SaveNotes(ctx context.Context, id domain.WorkID, notes string) error {
	if err := s.validator.Var("notes", notes, "max=10000"); err != nil {
		return err
	}
	if err := s.store.SaveNotes(ctx, id, notes); err != nil {
		return mapNotFound(err, "work %s not found", id)
	}
	return nil
}

// RecentlyRead returns works ordered by last reading time.
func (s *LibraryService) RecentlyRead(ctx context.Context, limit int) ([]*domain.Work, error) {
	return s.store.RecentlyRead(ctx, limit)
}

// Bookmarked returns all bookmarked works.
func (s *LibraryService) Bookmarked(ctx context.Context) ([]*domain.Work, error) {
	return s.store.BookmarkedWorks(ctx)
}

// Downloads returns the download records of a work, newest first.
func (s *LibraryService) Downloads(ctx context.Context, id domain.WorkID) ([]*domain.DownloadRecord, error) {
	if _, err := s.GetWork(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListDownloads(ctx, id)
}

// VerifyDownloads checks every recorded artifact against the disk.
func (s *LibraryService) VerifyDownloads(ctx context.Context) (*domain.VerifyResult, error) {
	res, err := s.store.VerifyDownloads(ctx)
	if err != nil {
		return nil, fmt.Errorf("verify downloads: %w", err)
	}
	s.logger.Info("downloads verified", "verified", len(res.Verified), "missing", len(res.Missing))
	return res, nil
}

// Cleanup removes rows left pointing at deleted works.
func (s *LibraryService) Cleanup(ctx context.Context) (int64, error) {
	n, err := s.store.Cleanup(ctx)
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	if n > 0 {
		s.logger.Info("orphan rows removed", "count", n)
	}
	return n, nil
}

// ExportMetadata is written to metadata.json in an export.
type ExportMetadata struct {
	ExportTime    time.Time          `json:"export_time"`
	WorkCount     int                `json:"work_count"`
	DownloadCount int                `json:"download_count"`
	Categories    []*domain.Category `json:"categories"`
}

// ExportProgress is written to reading_progress.json in an export.
type ExportProgress struct {
	Progress []*domain.ReadingProgress `json:"progress"`
	History  []*domain.ReadingSession  `json:"history"`
}

// ExportSummary describes a finished export.
type ExportSummary struct {
	Dir          string `json:"dir"`
	Works        int    `json:"works"`
	Downloads    int    `json:"downloads"`
	CopiedFiles  int    `json:"copied_files"`
	SkippedFiles int    `json:"skipped_files"`
}

// Export writes a portable copy of the library into dir: a database
// snapshot, metadata and progress JSON files, and the artifacts that still
// exist on disk. dir is created if needed; an existing snapshot is an error.
func (s *LibraryService) Export(ctx context.Context, dir string) (*ExportSummary, error) {
	if err := os.MkdirAll(filepath.Join(dir, ExportDownloadsDir), 0o755); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "create export dir")
	}

	if err := s.store.BackupTo(ctx, filepath.Join(dir, ExportDatabaseFile)); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "snapshot database")
	}

	works, err := s.store.ListWorks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list works: %w", err)
	}
	downloads, err := s.store.ListAllDownloads(ctx)
	if err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	meta := ExportMetadata{
		ExportTime:    time.Now().UTC(),
		WorkCount:     len(works),
		DownloadCount: len(downloads),
		Categories:    cats,
	}
	if err := writeJSON(filepath.Join(dir, ExportMetadataFile), meta); err != nil {
		return nil, err
	}

	prog := ExportProgress{Progress: []*domain.ReadingProgress{}, History: []*domain.ReadingSession{}}
	for _, w := range works {
		p, err := s.store.GetReadingProgress(ctx, w.ID)
		switch {
		case err == nil:
			prog.Progress = append(prog.Progress, p)
		case !errors.Is(err, store.ErrProgressNotFound):
			return nil, fmt.Errorf("progress of %s: %w", w.ID, err)
		}
		history, err := s.store.ReadingHistory(ctx, w.ID, -1)
		if err != nil {
			return nil, fmt.Errorf("history of %s: %w", w.ID, err)
		}
		prog.History = append(prog.History, history...)
	}
	if err := writeJSON(filepath.Join(dir, ExportProgressFile), prog); err != nil {
		return nil, err
	}

	summary := &ExportSummary{Dir: dir, Works: len(works), Downloads: len(downloads)}
	copied := make(map[string]bool)
	for _, d := range downloads {
		if copied[d.Path] {
			continue
		}
		copied[d.Path] = true
		err := copyFile(d.Path, filepath.Join(dir, ExportDownloadsDir, filepath.Base(d.Path)))
		switch {
		case err == nil:
			summary.CopiedFiles++
		case errors.Is(err, os.ErrNotExist):
			summary.SkippedFiles++
		default:
			return nil, domainerrors.Wrapf(err, domainerrors.CodeInternal, "copy %s", d.Path)
		}
	}

	s.logger.Info("library exported",
		"dir", dir,
		"works", summary.Works,
		"copied", summary.CopiedFiles,
		"skipped", summary.SkippedFiles,
	)
	return summary, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return domainerrors.Wrapf(err, domainerrors.CodeInternal, "encode %s", filepath.Base(path))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return domainerrors.Wrapf(err, domainerrors.CodeInternal, "write %s", filepath.Base(path))
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //#nosec G304 -- paths come from download records
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst) //#nosec G304 -- inside the export dir
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// mapNotFound turns store not-found errors into domain not-found errors.
func mapNotFound(err error, format string, args ...any) error {
	var storeErr *store.Error
	if errors.As(err, &storeErr) && storeErr.HTTPCode() == 404 {
		return domainerrors.NotFoundf(format, args...)
	}
	return err
}
