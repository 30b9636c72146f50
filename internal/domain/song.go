package domain

import (
	"fmt"
	"strings"
	"time"
)

// Song is the catalog entity. Optional columns are pointers so that a nil
// value round-trips as SQL NULL and is omitted from JSON.
type Song struct {
	ID        int64    `json:"id"`
	Title     string   `json:"title"`
	Artist    string   `json:"artist"`
	Album     *string  `json:"album,omitempty"`
	Year      *int     `json:"year,omitempty"`
	Genre     *string  `json:"genre,omitempty"`
	Lyrics    *string  `json:"lyrics,omitempty"`
	Rating    *float64 `json:"rating,omitempty"`
	PlayCount int64    `json:"play_count"`

	// Audio analysis features, set at ingestion time
	Danceability     *float64 `json:"danceability,omitempty"`
	Energy           *float64 `json:"energy,omitempty"`
	Key              *int     `json:"key,omitempty"`
	Loudness         *float64 `json:"loudness,omitempty"`
	Mode             *int     `json:"mode,omitempty"`
	Acousticness     *float64 `json:"acousticness,omitempty"`
	Instrumentalness *float64 `json:"instrumentalness,omitempty"`
	Liveness         *float64 `json:"liveness,omitempty"`
	Valence          *float64 `json:"valence,omitempty"`
	Tempo            *float64 `json:"tempo,omitempty"`
	DurationMS       *int64   `json:"duration_ms,omitempty"`
	TimeSignature    *int     `json:"time_signature,omitempty"`
	NumBars          *int     `json:"num_bars,omitempty"`
	NumSections      *int     `json:"num_sections,omitempty"`
	NumSegments      *int     `json:"num_segments,omitempty"`
	SongClass        *string  `json:"song_class,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DurationSeconds returns the track duration in seconds, or 0 when unknown.
func (s *Song) DurationSeconds() float64 {
	if s.DurationMS != nil {
		return float64(*s.DurationMS) / 1000
	}
	return 0
}

// AudioFeaturesSummary renders the main audio features as a short display string.
func (s *Song) AudioFeaturesSummary() string {
	var features []string
	if s.Danceability != nil {
		features = append(features, fmt.Sprintf("Danceability: %.2f", *s.Danceability))
	}
	if s.Energy != nil {
		features = append(features, fmt.Sprintf("Energy: %.2f", *s.Energy))
	}
	if s.Tempo != nil {
		features = append(features, fmt.Sprintf("Tempo: %.0f BPM", *s.Tempo))
	}
	if s.Acousticness != nil {
		features = append(features, fmt.Sprintf("Acousticness: %.2f", *s.Acousticness))
	}
	if len(features) == 0 {
		return "No audio features available"
	}
	return strings.Join(features, ", ")
}

// MinYear is the lowest release year the catalog accepts.
const MinYear = 1900

// Rating bounds, inclusive on both ends.
const (
	MinRating = 0.0
	MaxRating = 5.0
)

// SongInput carries the writable fields for create and update operations.
// Title and Artist are pointers so that update can distinguish "not provided"
// from "set to empty" (the latter is rejected).
type SongInput struct {
	Title  *string  `json:"title"`
	Artist *string  `json:"artist"`
	Album  *string  `json:"album"`
	Year   *int     `json:"year"`
	Genre  *string  `json:"genre"`
	Lyrics *string  `json:"lyrics"`
	Rating *float64 `json:"rating"`

	Danceability     *float64 `json:"danceability"`
	Energy           *float64 `json:"energy"`
	Key              *int     `json:"key"`
	Loudness         *float64 `json:"loudness"`
	Mode             *int     `json:"mode"`
	Acousticness     *float64 `json:"acousticness"`
	Instrumentalness *float64 `json:"instrumentalness"`
	Liveness         *float64 `json:"liveness"`
	Valence          *float64 `json:"valence"`
	Tempo            *float64 `json:"tempo"`
	DurationMS       *int64   `json:"duration_ms"`
	TimeSignature    *int     `json:"time_signature"`
	NumBars          *int     `json:"num_bars"`
	NumSections      *int     `json:"num_sections"`
	NumSegments      *int     `json:"num_segments"`
	SongClass        *string  `json:"song_class"`
}

// ValidateCreate checks all constraints for a new song. Title and artist are
// required; everything else is optional but bounded.
func (in *SongInput) ValidateCreate() error {
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		return NewValidationError("title", "title is required")
	}
	if in.Artist == nil || strings.TrimSpace(*in.Artist) == "" {
		return NewValidationError("artist", "artist is required")
	}
	return in.validateBounds()
}

// ValidateUpdate checks constraints for a partial update. Fields left nil are
// untouched; provided fields must satisfy the same bounds as on create.
func (in *SongInput) ValidateUpdate() error {
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return NewValidationError("title", "title must not be empty")
	}
	if in.Artist != nil && strings.TrimSpace(*in.Artist) == "" {
		return NewValidationError("artist", "artist must not be empty")
	}
	return in.validateBounds()
}

func (in *SongInput) validateBounds() error {
	if in.Year != nil {
		maxYear := time.Now().Year()
		if *in.Year < MinYear || *in.Year > maxYear {
			return NewValidationError("year", fmt.Sprintf("year must be between %d and %d", MinYear, maxYear))
		}
	}
	if in.Rating != nil {
		if err := ValidateRating(*in.Rating); err != nil {
			return err
		}
	}
	for field, v := range map[string]*float64{
		"danceability":     in.Danceability,
		"energy":           in.Energy,
		"acousticness":     in.Acousticness,
		"instrumentalness": in.Instrumentalness,
		"liveness":         in.Liveness,
		"valence":          in.Valence,
	} {
		if v != nil && (*v < 0.0 || *v > 1.0) {
			return NewValidationError(field, field+" must be between 0.0 and 1.0")
		}
	}
	if in.Key != nil && (*in.Key < 0 || *in.Key > 11) {
		return NewValidationError("key", "key must be between 0 and 11")
	}
	if in.Mode != nil && (*in.Mode < 0 || *in.Mode > 1) {
		return NewValidationError("mode", "mode must be 0 or 1")
	}
	if in.TimeSignature != nil && (*in.TimeSignature < 3 || *in.TimeSignature > 7) {
		return NewValidationError("time_signature", "time_signature must be between 3 and 7")
	}
	if in.Tempo != nil && *in.Tempo < 0 {
		return NewValidationError("tempo", "tempo must not be negative")
	}
	if in.DurationMS != nil && *in.DurationMS < 0 {
		return NewValidationError("duration_ms", "duration_ms must not be negative")
	}
	for field, v := range map[string]*int{
		"num_bars":     in.NumBars,
		"num_sections": in.NumSections,
		"num_segments": in.NumSegments,
	} {
		if v != nil && *v < 0 {
			return NewValidationError(field, field+" must not be negative")
		}
	}
	return nil
}

// ValidateRating checks that a rating is within the inclusive [0, 5] range.
func ValidateRating(r float64) error {
	if r < MinRating || r > MaxRating {
		return NewValidationError("rating", fmt.Sprintf("rating must be between %.1f and %.1f", MinRating, MaxRating))
	}
	return nil
}
