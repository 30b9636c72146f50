package domain

import "strings"

// Sortable list columns, whitelisted so that sort input never reaches SQL as-is.
var sortableFields = map[string]bool{
	"title":      true,
	"artist":     true,
	"year":       true,
	"rating":     true,
	"play_count": true,
	"created_at": true,
}

// ListFilter narrows a listing query. Nil fields match everything.
type ListFilter struct {
	Artist *string
	Genre  *string
	Year   *int
}

// ListQuery describes one listing page: filter, sort and pagination.
type ListQuery struct {
	Filter   ListFilter
	SortBy   string
	SortDesc bool
	Page     int
	PageSize int
}

// DefaultPageSize bounds listing pages when the caller does not choose one.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize fills defaults and validates the query in place.
func (q *ListQuery) Normalize() error {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		return NewValidationError("page_size", "page_size must not exceed 100")
	}
	if q.SortBy == "" {
		q.SortBy = "created_at"
		q.SortDesc = true
	}
	q.SortBy = strings.ToLower(strings.TrimSpace(q.SortBy))
	if !sortableFields[q.SortBy] {
		return NewValidationError("sort", "unsupported sort field: "+q.SortBy)
	}
	return nil
}

// Offset returns the row offset for the current page.
func (q *ListQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// SongPage is one page of listing results with the total row count.
type SongPage struct {
	Songs []*Song `json:"songs"`
	Total int64   `json:"total"`
}

// GenreCount is one genre with the number of songs carrying it.
type GenreCount struct {
	Genre string `json:"genre"`
	Count int64  `json:"count"`
}

// Stats is the cached aggregate view over the whole catalog.
type Stats struct {
	TotalSongs          int64        `json:"total_songs"`
	TotalPlays          int64        `json:"total_plays"`
	AverageRating       float64      `json:"average_rating"`
	MostPopularGenre    string       `json:"most_popular_genre"`
	TopGenres           []GenreCount `json:"top_genres"`
	SongsWithRatings    int64        `json:"songs_with_ratings"`
	SongsWithoutRatings int64        `json:"songs_without_ratings"`
}
