// Package service implements the catalog service: the cache-aside read and
// invalidation protocol layered over song CRUD.
//
// Reads of the aggregate views (listing pages, top-rated, most-played,
// stats) go through the cache; on a miss the persistent store is queried and
// the result cached with a TTL. Every mutation writes to the store first and
// then clears the cache namespaces that could now be stale. Invalidation is
// deliberately broad: clearing a superset of affected keys costs extra cache
// misses, while a surviving stale key would serve wrong data. The cache is
// never authoritative — if it cannot be reached, requests fall through to
// the store.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/song-catalog/server/internal/cache"
	"github.com/song-catalog/server/internal/domain"
	"github.com/song-catalog/server/internal/repository"
	"github.com/song-catalog/server/pkg/logger"
)

// searchLimit caps uncached search results.
const searchLimit = 100

// TTLConfig holds the expiry for each cached view.
type TTLConfig struct {
	List      time.Duration
	Aggregate time.Duration
	Stats     time.Duration
}

// DefaultTTLConfig mirrors the production defaults: five minutes everywhere.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		List:      5 * time.Minute,
		Aggregate: 5 * time.Minute,
		Stats:     5 * time.Minute,
	}
}

// CatalogService mediates between the API layer and the two stores. It holds
// no mutable state between calls; concurrent requests coordinate only
// through the stores and the singleflight group.
type CatalogService struct {
	repo   repository.SongRepository
	cache  cache.Store
	ttl    TTLConfig
	sf     singleflight.Group
	logger logger.Logger
}

// NewCatalogService creates the catalog service.
func NewCatalogService(repo repository.SongRepository, store cache.Store, ttl TTLConfig, log logger.Logger) *CatalogService {
	return &CatalogService{
		repo:   repo,
		cache:  store,
		ttl:    ttl,
		logger: log,
	}
}

// RateResult is the payload returned by Rate.
type RateResult struct {
	Song    *domain.Song `json:"song"`
	Rating  string       `json:"rating"`
	Message string       `json:"message"`
}

// PlayResult is the payload returned by Play.
type PlayResult struct {
	PlayCount int64  `json:"play_count"`
	Message   string `json:"message"`
}

// List returns one listing page, cache-aside with a deterministic key per
// (filter, sort, page) tuple.
func (s *CatalogService) List(ctx context.Context, q *domain.ListQuery) (*domain.SongPage, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}

	var page domain.SongPage
	err := s.readThrough(ctx, cache.ListKey(q), s.ttl.List, &page, func(ctx context.Context) (interface{}, error) {
		songs, total, err := s.repo.List(ctx, q)
		if err != nil {
			return nil, err
		}
		return &domain.SongPage{Songs: songs, Total: total}, nil
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// Search matches songs by substring on title, artist and album. The query
// space is unbounded so results are never cached. A blank or unmatched query
// yields an empty result set, not an error.
func (s *CatalogService) Search(ctx context.Context, query string) ([]*domain.Song, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*domain.Song{}, nil
	}
	return s.repo.Search(ctx, query, searchLimit)
}

// Get fetches one song directly from the store.
func (s *CatalogService) Get(ctx context.Context, id int64) (*domain.Song, error) {
	return s.repo.GetByID(ctx, id)
}

// TopRated returns the highest-rated songs, cached per limit.
func (s *CatalogService) TopRated(ctx context.Context, limit int) ([]*domain.Song, error) {
	if limit <= 0 {
		return nil, domain.NewValidationError("limit", "limit must be a positive integer")
	}

	var songs []*domain.Song
	err := s.readThrough(ctx, cache.TopRatedKey(limit), s.ttl.Aggregate, &songs, func(ctx context.Context) (interface{}, error) {
		return s.repo.TopRated(ctx, limit)
	})
	return songs, err
}

// MostPlayed returns the most-played songs, cached per limit.
func (s *CatalogService) MostPlayed(ctx context.Context, limit int) ([]*domain.Song, error) {
	if limit <= 0 {
		return nil, domain.NewValidationError("limit", "limit must be a positive integer")
	}

	var songs []*domain.Song
	err := s.readThrough(ctx, cache.MostPlayedKey(limit), s.ttl.Aggregate, &songs, func(ctx context.Context) (interface{}, error) {
		return s.repo.MostPlayed(ctx, limit)
	})
	return songs, err
}

// Stats returns the catalog-wide aggregates, cached as a single entry.
func (s *CatalogService) Stats(ctx context.Context) (*domain.Stats, error) {
	var stats domain.Stats
	err := s.readThrough(ctx, cache.StatsKey(), s.ttl.Stats, &stats, func(ctx context.Context) (interface{}, error) {
		return s.repo.Stats(ctx)
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// Create validates and persists a new song, then invalidates every cached
// view: the new row changes listing pages and stats, and may enter the
// ranked views.
func (s *CatalogService) Create(ctx context.Context, in *domain.SongInput) (*domain.Song, error) {
	if err := in.ValidateCreate(); err != nil {
		return nil, err
	}

	song := songFromInput(in)
	if err := s.repo.Create(ctx, song); err != nil {
		return nil, err
	}

	s.logger.Info("Song created",
		logger.Int64("id", song.ID),
		logger.String("title", song.Title),
		logger.String("artist", song.Artist),
	)
	s.invalidate(ctx, cache.NamespaceList, cache.NamespaceStats, cache.NamespaceTopRated, cache.NamespaceMostPlayed)
	return song, nil
}

// Update applies a partial update and invalidates every cached view. Rating
// and play count rarely change here, but clearing the ranked views
// unconditionally is cheaper than proving they are unaffected.
func (s *CatalogService) Update(ctx context.Context, id int64, in *domain.SongInput) (*domain.Song, error) {
	if err := in.ValidateUpdate(); err != nil {
		return nil, err
	}

	song, err := s.repo.Update(ctx, id, in)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Song updated", logger.Int64("id", song.ID), logger.String("title", song.Title))
	s.invalidate(ctx, cache.NamespaceList, cache.NamespaceStats, cache.NamespaceTopRated, cache.NamespaceMostPlayed)
	return song, nil
}

// Delete removes a song and invalidates every cached view.
func (s *CatalogService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("Song deleted", logger.Int64("id", id))
	s.invalidate(ctx, cache.NamespaceList, cache.NamespaceStats, cache.NamespaceTopRated, cache.NamespaceMostPlayed)
	return nil
}

// Rate sets a song's rating. The value must lie in [0, 5] inclusive; the
// check happens before the store is touched so an invalid rating leaves
// nothing behind, not even a cache entry.
func (s *CatalogService) Rate(ctx context.Context, id int64, rating float64) (*RateResult, error) {
	if err := domain.ValidateRating(rating); err != nil {
		return nil, err
	}

	song, err := s.repo.UpdateRating(ctx, id, rating)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Song rated", logger.Int64("id", id), logger.Float64("rating", rating))
	s.invalidate(ctx, cache.NamespaceTopRated, cache.NamespaceStats, cache.NamespaceList, cache.NamespaceMostPlayed)

	return &RateResult{
		Song:    song,
		Rating:  fmt.Sprintf("%.2f", rating),
		Message: fmt.Sprintf("Rating updated for %s", song.Title),
	}, nil
}

// Play increments a song's play count by exactly one. The increment is a
// single atomic statement in the store, so concurrent plays all land.
func (s *CatalogService) Play(ctx context.Context, id int64) (*PlayResult, error) {
	song, err := s.repo.IncrementPlayCount(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Song played", logger.Int64("id", id), logger.Int64("play_count", song.PlayCount))
	s.invalidate(ctx, cache.NamespaceMostPlayed, cache.NamespaceStats, cache.NamespaceList)

	return &PlayResult{
		PlayCount: song.PlayCount,
		Message:   fmt.Sprintf("Play count incremented for %s", song.Title),
	}, nil
}

// WarmUp repopulates the default aggregate views so the first readers after
// an invalidation do not all pay the store roundtrip.
func (s *CatalogService) WarmUp(ctx context.Context, limit int) error {
	if _, err := s.TopRated(ctx, limit); err != nil {
		return fmt.Errorf("warm up top rated: %w", err)
	}
	if _, err := s.MostPlayed(ctx, limit); err != nil {
		return fmt.Errorf("warm up most played: %w", err)
	}
	if _, err := s.Stats(ctx); err != nil {
		return fmt.Errorf("warm up stats: %w", err)
	}
	return nil
}

// readThrough implements cache-aside for one key: serve the cached value if
// present, otherwise load from the store, cache the result and return it.
// Cache failures in either direction degrade to store reads — they are
// logged, never surfaced. Concurrent misses for the same key are collapsed
// into one store query via singleflight.
func (s *CatalogService) readThrough(
	ctx context.Context,
	key string,
	ttl time.Duration,
	out interface{},
	load func(ctx context.Context) (interface{}, error),
) error {
	data, err := s.cache.Get(ctx, key)
	if err == nil {
		if jsonErr := json.Unmarshal(data, out); jsonErr == nil {
			s.logger.Debug("Cache hit", logger.String("key", key))
			return nil
		}
		// Undecodable entry: treat as a miss and overwrite below.
		s.logger.Warn("Dropping undecodable cache entry", logger.String("key", key))
	} else if err != cache.ErrCacheMiss {
		s.logger.Warn("Cache unavailable, serving from store", logger.String("key", key), logger.Error(err))
	} else {
		s.logger.Debug("Cache miss", logger.String("key", key))
	}

	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		// Another caller may have populated the key while we waited.
		if data, err := s.cache.Get(ctx, key); err == nil {
			return data, nil
		}

		value, err := load(ctx)
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal cache value: %w", err)
		}
		if err := s.cache.Set(ctx, key, data, ttl); err != nil {
			s.logger.Warn("Failed to populate cache", logger.String("key", key), logger.Error(err))
		}
		return data, nil
	})
	if err != nil {
		return err
	}

	return json.Unmarshal(result.([]byte), out)
}

// invalidate clears the given cache namespaces after a durable write. A
// failed clear is logged and ignored: the write already succeeded and the
// stale entries expire via TTL.
func (s *CatalogService) invalidate(ctx context.Context, namespaces ...string) {
	for _, ns := range namespaces {
		if err := s.cache.ClearNamespace(ctx, ns); err != nil {
			s.logger.Warn("Cache invalidation failed, entries will expire via TTL",
				logger.String("namespace", ns),
				logger.Error(err),
			)
		}
	}
}

func songFromInput(in *domain.SongInput) *domain.Song {
	song := &domain.Song{
		Title:            strings.TrimSpace(*in.Title),
		Artist:           strings.TrimSpace(*in.Artist),
		Album:            in.Album,
		Year:             in.Year,
		Genre:            in.Genre,
		Lyrics:           in.Lyrics,
		Rating:           in.Rating,
		Danceability:     in.Danceability,
		Energy:           in.Energy,
		Key:              in.Key,
		Loudness:         in.Loudness,
		Mode:             in.Mode,
		Acousticness:     in.Acousticness,
		Instrumentalness: in.Instrumentalness,
		Liveness:         in.Liveness,
		Valence:          in.Valence,
		Tempo:            in.Tempo,
		DurationMS:       in.DurationMS,
		TimeSignature:    in.TimeSignature,
		NumBars:          in.NumBars,
		NumSections:      in.NumSections,
		NumSegments:      in.NumSegments,
		SongClass:        in.SongClass,
	}
	return song
}
