package repository

import (
	"context"

	"github.com/song-catalog/server/internal/domain"
)

// SongRepository is the persistent store contract for songs. The store is the
// sole owner of durable state; cached copies are derived from it.
type SongRepository interface {
	Create(ctx context.Context, song *domain.Song) error
	GetByID(ctx context.Context, id int64) (*domain.Song, error)
	List(ctx context.Context, q *domain.ListQuery) ([]*domain.Song, int64, error)
	Search(ctx context.Context, query string, limit int) ([]*domain.Song, error)
	TopRated(ctx context.Context, limit int) ([]*domain.Song, error)
	MostPlayed(ctx context.Context, limit int) ([]*domain.Song, error)
	Stats(ctx context.Context) (*domain.Stats, error)
	Update(ctx context.Context, id int64, in *domain.SongInput) (*domain.Song, error)
	UpdateRating(ctx context.Context, id int64, rating float64) (*domain.Song, error)
	Delete(ctx context.Context, id int64) error

	// IncrementPlayCount adds 1 to the persisted play count in a single
	// atomic statement and returns the updated song. Concurrent calls
	// must never lose increments.
	IncrementPlayCount(ctx context.Context, id int64) (*domain.Song, error)

	Count(ctx context.Context) (int64, error)
	CreateBatch(ctx context.Context, songs []*domain.Song) (int, error)
}
