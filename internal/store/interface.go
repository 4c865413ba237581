// Package store defines the persistence interface for the library.
package store

import (
	"context"

	"github.com/listenupapp/novelvault/internal/domain"
)

// Store defines the interface for all persistence operations.
// Every mutating method is retried on contention by the implementation.
type Store interface {
	// Lifecycle
	Close() error

	// Works
	UpsertWork(ctx context.Context, w *domain.Work) error
	GetWork(ctx context.Context, id domain.WorkID) (*domain.Work, error)
	ListWorks(ctx context.Context) ([]*domain.Work, error)
	RecentSearches(ctx context.Context, limit int) ([]*domain.Work, error)
	MostSearched(ctx context.Context, limit int) ([]*domain.Work, error)
	DeleteWork(ctx context.Context, id domain.WorkID) error

	// Downloads
	RecordDownload(ctx context.Context, rec *domain.DownloadRecord) error
	ListDownloads(ctx context.Context, workID domain.WorkID) ([]*domain.DownloadRecord, error)
	ListAllDownloads(ctx context.Context) ([]*domain.DownloadRecord, error)
	SetDownloadStatusByPath(ctx context.Context, path string, status domain.DownloadStatus, size int64) (int64, error)
	VerifyDownloads(ctx context.Context) (*domain.VerifyResult, error)

	// Reading progress
	SaveReadingProgress(ctx context.Context, workID domain.WorkID, chapter int, fraction float64, bookmarked bool) error
	ToggleBookmark(ctx context.Context, workID domain.WorkID) (bool, error)
	SaveNotes(ctx context.Context, workID domain.WorkID, notes string) error
	GetReadingProgress(ctx context.Context, workID domain.WorkID) (*domain.ReadingProgress, error)
	RecentlyRead(ctx context.Context, limit int) ([]*domain.Work, error)
	BookmarkedWorks(ctx context.Context) ([]*domain.Work, error)

	// Reading history
	AddReadingSession(ctx context.Context, session *domain.ReadingSession) error
	ReadingHistory(ctx context.Context, workID domain.WorkID, limit int) ([]*domain.ReadingSession, error)
	ReadingStats(ctx context.Context, workID domain.WorkID) (*domain.ReadingStats, error)

	// Categories
	CreateCategory(ctx context.Context, name, color string) (*domain.Category, error)
	GetCategory(ctx context.Context, name string) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]*domain.Category, error)
	CategoriesForWork(ctx context.Context, workID domain.WorkID) ([]*domain.Category, error)
	WorksInCategory(ctx context.Context, name string) ([]*domain.Work, error)
	IsMember(ctx context.Context, workID domain.WorkID, name string) (bool, error)

	// Maintenance
	Cleanup(ctx context.Context) (int64, error)
	BackupTo(ctx context.Context, path string) error
}

// CategoryIndexer maintains derived category membership.
type CategoryIndexer interface {
	EnsureMembership(ctx context.Context, workID domain.WorkID, name string) error
	RemoveMembership(ctx context.Context, workID domain.WorkID, name string) error
}
