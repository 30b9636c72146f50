package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/song-catalog/server/internal/domain"
)

func TestLikeEscaper(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"bohemian", "bohemian"},
		{"100%", `100\%`},
		{"_", `\_`},
		{`back\slash`, `back\\slash`},
		{`%_\`, `\%\_\\`},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, likeEscaper.Replace(tt.in), tt.in)
	}
}

func TestBuildFilter(t *testing.T) {
	where, args := buildFilter(&domain.ListFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	artist := "Queen"
	year := 1975
	where, args = buildFilter(&domain.ListFilter{Artist: &artist, Year: &year})
	assert.Equal(t, "WHERE artist = $1 AND year = $2", where)
	require.Len(t, args, 2)
	assert.Equal(t, "Queen", args[0])
	assert.Equal(t, 1975, args[1])
}

func TestBuildUpdateSet(t *testing.T) {
	sets, args := buildUpdateSet(&domain.SongInput{})
	assert.Empty(t, sets)
	assert.Empty(t, args)

	title := "  Renamed  "
	rating := 4.5
	sets, args = buildUpdateSet(&domain.SongInput{Title: &title, Rating: &rating})
	require.Len(t, sets, 2)
	assert.Equal(t, "title = $1", sets[0])
	assert.Equal(t, "rating = $2", sets[1])
	require.Len(t, args, 2)

	// Title is trimmed before it reaches the store.
	assert.Equal(t, "Renamed", args[0])
	assert.Equal(t, 4.5, args[1])
}
