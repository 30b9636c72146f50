// Package loader ingests playlist dumps into the catalog. The dump is
// column-oriented JSON: every attribute maps row indices (as strings) to
// values, e.g. {"id": {"0": "..."}, "title": {"0": "..."}}.
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/song-catalog/server/internal/cache"
	"github.com/song-catalog/server/internal/domain"
	"github.com/song-catalog/server/internal/repository"
	"github.com/song-catalog/server/pkg/logger"
)

// Result summarises one ingestion run.
type Result struct {
	Loaded        int  `json:"loaded"`
	Skipped       int  `json:"skipped"`
	AlreadyLoaded bool `json:"already_loaded"`
}

// Loader reads a playlist dump and bulk-inserts it through the repository.
type Loader struct {
	repo   repository.SongRepository
	cache  cache.Store
	logger logger.Logger
}

// New creates a playlist loader.
func New(repo repository.SongRepository, store cache.Store, log logger.Logger) *Loader {
	return &Loader{
		repo:   repo,
		cache:  store,
		logger: log,
	}
}

// columns mirrors the dump layout: attribute -> row index -> value.
type columns struct {
	ID               map[string]string  `json:"id"`
	Title            map[string]string  `json:"title"`
	Danceability     map[string]float64 `json:"danceability"`
	Energy           map[string]float64 `json:"energy"`
	Key              map[string]int     `json:"key"`
	Loudness         map[string]float64 `json:"loudness"`
	Mode             map[string]int     `json:"mode"`
	Acousticness     map[string]float64 `json:"acousticness"`
	Instrumentalness map[string]float64 `json:"instrumentalness"`
	Liveness         map[string]float64 `json:"liveness"`
	Valence          map[string]float64 `json:"valence"`
	Tempo            map[string]float64 `json:"tempo"`
	DurationMS       map[string]int64   `json:"duration_ms"`
	TimeSignature    map[string]int     `json:"time_signature"`
	NumBars          map[string]int     `json:"num_bars"`
	NumSections      map[string]int     `json:"num_sections"`
	NumSegments      map[string]int     `json:"num_segments"`
	Class            map[string]int     `json:"class"`
}

// LoadFile ingests the dump at path. A non-empty catalog is left untouched so
// repeated calls stay idempotent.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Result, error) {
	count, err := l.repo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count songs: %w", err)
	}
	if count > 0 {
		l.logger.Info("Catalog already populated, skipping load", logger.Int64("songs", count))
		return &Result{AlreadyLoaded: true}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read playlist file: %w", err)
	}

	var cols columns
	if err := json.Unmarshal(data, &cols); err != nil {
		return nil, fmt.Errorf("parse playlist file: %w", err)
	}

	songs, skipped := l.normalize(&cols)
	if len(songs) == 0 {
		return nil, fmt.Errorf("playlist file contains no valid rows")
	}

	loaded, err := l.repo.CreateBatch(ctx, songs)
	if err != nil {
		return nil, fmt.Errorf("insert songs: %w", err)
	}

	// New rows invalidate every cached view; "songs" prefixes all four
	// namespaces so one clear covers them.
	if err := l.cache.ClearNamespace(ctx, "songs"); err != nil {
		l.logger.Warn("Cache invalidation failed after load, entries will expire via TTL", logger.Error(err))
	}

	l.logger.Info("Playlist loaded",
		logger.String("file", path),
		logger.Int("loaded", loaded),
		logger.Int("skipped", skipped),
	)
	return &Result{Loaded: loaded, Skipped: skipped}, nil
}

// normalize converts columns to rows, dropping rows without an id or title or
// with negative numeric attributes. Row order follows the numeric index.
func (l *Loader) normalize(cols *columns) ([]*domain.Song, int) {
	total := len(cols.ID)
	songs := make([]*domain.Song, 0, total)
	skipped := 0

	// The dump carries only audio analysis attributes, so catalog metadata
	// is synthesised: placeholder artist/album/genre/year, a seeded rating
	// in 1..5 and popularity-skewed play counts. A fresh ingest then boots
	// with populated top-rated, most-played and genre views.
	rng := rand.New(rand.NewSource(int64(total)))
	currentYear := time.Now().Year()

	for i := 0; i < total; i++ {
		idx := strconv.Itoa(i)

		title := strings.TrimSpace(cols.Title[idx])
		if cols.ID[idx] == "" || title == "" {
			l.logger.Warn("Skipping row without id or title", logger.Int("row", i))
			skipped++
			continue
		}
		if !validRow(cols, idx) {
			l.logger.Warn("Skipping row with invalid attributes", logger.Int("row", i), logger.String("title", title))
			skipped++
			continue
		}

		popularity := 1.0 - float64(i)/float64(total)*0.7
		playCount := int64(float64(5+rng.Intn(46)) * popularity)
		if playCount < 1 {
			playCount = 1
		}

		album := fmt.Sprintf("Album %d", i+1)
		genre := "Pop"
		year := currentYear
		rating := float64(1 + rng.Intn(5))

		song := &domain.Song{
			Title:     title,
			Artist:    fmt.Sprintf("Artist %d", i+1),
			Album:     &album,
			Year:      &year,
			Genre:     &genre,
			Rating:    &rating,
			PlayCount: playCount,
		}
		assignFeature(&song.Danceability, cols.Danceability, idx)
		assignFeature(&song.Energy, cols.Energy, idx)
		assignFeature(&song.Loudness, cols.Loudness, idx)
		assignFeature(&song.Acousticness, cols.Acousticness, idx)
		assignFeature(&song.Instrumentalness, cols.Instrumentalness, idx)
		assignFeature(&song.Liveness, cols.Liveness, idx)
		assignFeature(&song.Valence, cols.Valence, idx)
		assignFeature(&song.Tempo, cols.Tempo, idx)
		assignFeature(&song.Key, cols.Key, idx)
		assignFeature(&song.Mode, cols.Mode, idx)
		assignFeature(&song.DurationMS, cols.DurationMS, idx)
		assignFeature(&song.TimeSignature, cols.TimeSignature, idx)
		assignFeature(&song.NumBars, cols.NumBars, idx)
		assignFeature(&song.NumSections, cols.NumSections, idx)
		assignFeature(&song.NumSegments, cols.NumSegments, idx)
		if class, ok := cols.Class[idx]; ok {
			s := strconv.Itoa(class)
			song.SongClass = &s
		}

		songs = append(songs, song)
	}

	return songs, skipped
}

func validRow(cols *columns, idx string) bool {
	if v, ok := cols.Danceability[idx]; ok && v < 0 {
		return false
	}
	if v, ok := cols.Energy[idx]; ok && v < 0 {
		return false
	}
	if v, ok := cols.Acousticness[idx]; ok && v < 0 {
		return false
	}
	if v, ok := cols.Tempo[idx]; ok && v < 0 {
		return false
	}
	if v, ok := cols.DurationMS[idx]; ok && v < 0 {
		return false
	}
	return true
}

func assignFeature[T any](dst **T, col map[string]T, idx string) {
	if v, ok := col[idx]; ok {
		*dst = &v
	}
}
