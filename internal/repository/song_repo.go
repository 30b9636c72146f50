package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/song-catalog/server/internal/domain"
)

// songColumns is the full column list used by every SELECT so rows scan the
// same way everywhere.
const songColumns = `
	id, title, artist, album, year, genre, lyrics, rating, play_count,
	danceability, energy, key, loudness, mode, acousticness,
	instrumentalness, liveness, valence, tempo, duration_ms,
	time_signature, num_bars, num_sections, num_segments, song_class,
	created_at, updated_at`

// SongRepositoryImpl implements SongRepository on PostgreSQL.
type SongRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewSongRepository creates a song repository backed by the given pool.
func NewSongRepository(db *pgxpool.Pool) SongRepository {
	return &SongRepositoryImpl{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSong(row rowScanner) (*domain.Song, error) {
	var s domain.Song
	err := row.Scan(
		&s.ID, &s.Title, &s.Artist, &s.Album, &s.Year, &s.Genre, &s.Lyrics,
		&s.Rating, &s.PlayCount,
		&s.Danceability, &s.Energy, &s.Key, &s.Loudness, &s.Mode,
		&s.Acousticness, &s.Instrumentalness, &s.Liveness, &s.Valence,
		&s.Tempo, &s.DurationMS, &s.TimeSignature, &s.NumBars,
		&s.NumSections, &s.NumSegments, &s.SongClass,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSongs(rows pgx.Rows) ([]*domain.Song, error) {
	defer rows.Close()

	songs := make([]*domain.Song, 0)
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, err
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

// Create inserts a song and fills the store-assigned fields in place.
func (r *SongRepositoryImpl) Create(ctx context.Context, song *domain.Song) error {
	query := `
		INSERT INTO songs (
			title, artist, album, year, genre, lyrics, rating, play_count,
			danceability, energy, key, loudness, mode, acousticness,
			instrumentalness, liveness, valence, tempo, duration_ms,
			time_signature, num_bars, num_sections, num_segments, song_class
		)
		VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24
		)
		RETURNING id, play_count, created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		song.Title, song.Artist, song.Album, song.Year, song.Genre,
		song.Lyrics, song.Rating, song.PlayCount,
		song.Danceability, song.Energy, song.Key, song.Loudness, song.Mode,
		song.Acousticness, song.Instrumentalness, song.Liveness,
		song.Valence, song.Tempo, song.DurationMS, song.TimeSignature,
		song.NumBars, song.NumSections, song.NumSegments, song.SongClass,
	).Scan(&song.ID, &song.PlayCount, &song.CreatedAt, &song.UpdatedAt)
}

// GetByID fetches one song or domain.ErrSongNotFound.
func (r *SongRepositoryImpl) GetByID(ctx context.Context, id int64) (*domain.Song, error) {
	query := `SELECT` + songColumns + ` FROM songs WHERE id = $1`
	song, err := scanSong(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSongNotFound
		}
		return nil, err
	}
	return song, nil
}

// List returns one page of songs matching the query plus the total count.
func (r *SongRepositoryImpl) List(ctx context.Context, q *domain.ListQuery) ([]*domain.Song, int64, error) {
	where, args := buildFilter(&q.Filter)

	direction := "ASC"
	if q.SortDesc {
		direction = "DESC"
	}
	// SortBy is validated against a whitelist in ListQuery.Normalize; the
	// id tie-break keeps pages stable across identical sort values.
	orderBy := fmt.Sprintf("ORDER BY %s %s NULLS LAST, id ASC", q.SortBy, direction)

	query := fmt.Sprintf(
		`SELECT%s FROM songs %s %s LIMIT $%d OFFSET $%d`,
		songColumns, where, orderBy, len(args)+1, len(args)+2,
	)
	rows, err := r.db.Query(ctx, query, append(args, q.PageSize, q.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	songs, err := scanSongs(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM songs %s`, where)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return songs, total, nil
}

func buildFilter(f *domain.ListFilter) (string, []any) {
	var conds []string
	var args []any

	if f.Artist != nil {
		args = append(args, *f.Artist)
		conds = append(conds, fmt.Sprintf("artist = $%d", len(args)))
	}
	if f.Genre != nil {
		args = append(args, *f.Genre)
		conds = append(conds, fmt.Sprintf("genre = $%d", len(args)))
	}
	if f.Year != nil {
		args = append(args, *f.Year)
		conds = append(conds, fmt.Sprintf("year = $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// likeEscaper escapes LIKE metacharacters so user input matches literally:
// search("100%") must not match every row.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search performs a case-insensitive substring match on title, artist and
// album.
func (r *SongRepositoryImpl) Search(ctx context.Context, query string, limit int) ([]*domain.Song, error) {
	sql := `SELECT` + songColumns + `
		FROM songs
		WHERE title ILIKE '%' || $1 || '%'
		   OR artist ILIKE '%' || $1 || '%'
		   OR album ILIKE '%' || $1 || '%'
		ORDER BY rating DESC NULLS LAST, created_at DESC, id ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, sql, likeEscaper.Replace(query), limit)
	if err != nil {
		return nil, err
	}
	return scanSongs(rows)
}

// TopRated returns the highest-rated songs. Unrated songs are excluded; ties
// break on play count, then on the lower id.
func (r *SongRepositoryImpl) TopRated(ctx context.Context, limit int) ([]*domain.Song, error) {
	query := `SELECT` + songColumns + `
		FROM songs
		WHERE rating IS NOT NULL
		ORDER BY rating DESC, play_count DESC, id ASC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return scanSongs(rows)
}

// MostPlayed returns the most-played songs. Ties break on rating, then on the
// lower id.
func (r *SongRepositoryImpl) MostPlayed(ctx context.Context, limit int) ([]*domain.Song, error) {
	query := `SELECT` + songColumns + `
		FROM songs
		ORDER BY play_count DESC, rating DESC NULLS LAST, id ASC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return scanSongs(rows)
}

// Stats computes the catalog-wide aggregates in the store.
func (r *SongRepositoryImpl) Stats(ctx context.Context) (*domain.Stats, error) {
	var stats domain.Stats

	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(play_count), 0),
		       COALESCE(AVG(rating), 0),
		       COUNT(rating)
		FROM songs
	`
	err := r.db.QueryRow(ctx, query).Scan(
		&stats.TotalSongs,
		&stats.TotalPlays,
		&stats.AverageRating,
		&stats.SongsWithRatings,
	)
	if err != nil {
		return nil, err
	}
	stats.SongsWithoutRatings = stats.TotalSongs - stats.SongsWithRatings

	// Ties on count resolve to the lexicographically smallest genre.
	genreQuery := `
		SELECT genre, COUNT(*)
		FROM songs
		WHERE genre IS NOT NULL AND genre <> ''
		GROUP BY genre
		ORDER BY COUNT(*) DESC, genre ASC
		LIMIT 5
	`
	rows, err := r.db.Query(ctx, genreQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var gc domain.GenreCount
		if err := rows.Scan(&gc.Genre, &gc.Count); err != nil {
			return nil, err
		}
		stats.TopGenres = append(stats.TopGenres, gc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(stats.TopGenres) > 0 {
		stats.MostPopularGenre = stats.TopGenres[0].Genre
	}

	return &stats, nil
}

// Update applies the provided fields to a song and returns the updated row.
func (r *SongRepositoryImpl) Update(ctx context.Context, id int64, in *domain.SongInput) (*domain.Song, error) {
	sets, args := buildUpdateSet(in)
	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE songs SET %s, updated_at = now() WHERE id = $%d RETURNING%s`,
		strings.Join(sets, ", "), len(args), songColumns,
	)

	song, err := scanSong(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSongNotFound
		}
		return nil, err
	}
	return song, nil
}

func buildUpdateSet(in *domain.SongInput) ([]string, []any) {
	var sets []string
	var args []any

	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if in.Title != nil {
		set("title", strings.TrimSpace(*in.Title))
	}
	if in.Artist != nil {
		set("artist", strings.TrimSpace(*in.Artist))
	}
	if in.Album != nil {
		set("album", *in.Album)
	}
	if in.Year != nil {
		set("year", *in.Year)
	}
	if in.Genre != nil {
		set("genre", *in.Genre)
	}
	if in.Lyrics != nil {
		set("lyrics", *in.Lyrics)
	}
	if in.Rating != nil {
		set("rating", *in.Rating)
	}
	if in.Danceability != nil {
		set("danceability", *in.Danceability)
	}
	if in.Energy != nil {
		set("energy", *in.Energy)
	}
	if in.Key != nil {
		set("key", *in.Key)
	}
	if in.Loudness != nil {
		set("loudness", *in.Loudness)
	}
	if in.Mode != nil {
		set("mode", *in.Mode)
	}
	if in.Acousticness != nil {
		set("acousticness", *in.Acousticness)
	}
	if in.Instrumentalness != nil {
		set("instrumentalness", *in.Instrumentalness)
	}
	if in.Liveness != nil {
		set("liveness", *in.Liveness)
	}
	if in.Valence != nil {
		set("valence", *in.Valence)
	}
	if in.Tempo != nil {
		set("tempo", *in.Tempo)
	}
	if in.DurationMS != nil {
		set("duration_ms", *in.DurationMS)
	}
	if in.TimeSignature != nil {
		set("time_signature", *in.TimeSignature)
	}
	if in.NumBars != nil {
		set("num_bars", *in.NumBars)
	}
	if in.NumSections != nil {
		set("num_sections", *in.NumSections)
	}
	if in.NumSegments != nil {
		set("num_segments", *in.NumSegments)
	}
	if in.SongClass != nil {
		set("song_class", *in.SongClass)
	}

	return sets, args
}

// UpdateRating sets the rating and returns the updated song.
func (r *SongRepositoryImpl) UpdateRating(ctx context.Context, id int64, rating float64) (*domain.Song, error) {
	query := `UPDATE songs SET rating = $2, updated_at = now() WHERE id = $1 RETURNING` + songColumns
	song, err := scanSong(r.db.QueryRow(ctx, query, id, rating))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSongNotFound
		}
		return nil, err
	}
	return song, nil
}

// Delete removes a song or returns domain.ErrSongNotFound.
func (r *SongRepositoryImpl) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM songs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSongNotFound
	}
	return nil
}

// IncrementPlayCount adds 1 to play_count in a single atomic UPDATE so
// concurrent plays never lose increments, and returns the updated song.
func (r *SongRepositoryImpl) IncrementPlayCount(ctx context.Context, id int64) (*domain.Song, error) {
	query := `
		UPDATE songs
		SET play_count = play_count + 1, updated_at = now()
		WHERE id = $1
		RETURNING` + songColumns
	song, err := scanSong(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSongNotFound
		}
		return nil, err
	}
	return song, nil
}

// Count returns the total number of songs.
func (r *SongRepositoryImpl) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM songs`).Scan(&count)
	return count, err
}

// CreateBatch inserts songs in one batch and returns how many were written.
func (r *SongRepositoryImpl) CreateBatch(ctx context.Context, songs []*domain.Song) (int, error) {
	batch := &pgx.Batch{}
	query := `
		INSERT INTO songs (
			title, artist, album, year, genre, lyrics, rating, play_count,
			danceability, energy, key, loudness, mode, acousticness,
			instrumentalness, liveness, valence, tempo, duration_ms,
			time_signature, num_bars, num_sections, num_segments, song_class
		)
		VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24
		)
	`
	for _, song := range songs {
		batch.Queue(query,
			song.Title, song.Artist, song.Album, song.Year, song.Genre,
			song.Lyrics, song.Rating, song.PlayCount,
			song.Danceability, song.Energy, song.Key, song.Loudness,
			song.Mode, song.Acousticness, song.Instrumentalness,
			song.Liveness, song.Valence, song.Tempo, song.DurationMS,
			song.TimeSignature, song.NumBars, song.NumSections,
			song.NumSegments, song.SongClass,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range songs {
		if _, err := results.Exec(); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}
