package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"

	"github.com/song-catalog/server/internal/domain"
)

// Key namespaces for the cached catalog views. Keys follow the pattern
// {prefix}:{namespace}:{discriminator}; the prefix is applied by the store.
const (
	NamespaceList       = "songs:list"
	NamespaceTopRated   = "songs:toprated"
	NamespaceMostPlayed = "songs:mostplayed"
	NamespaceStats      = "songs:stats"
)

// ListKey builds a deterministic key for one listing page. The query is
// rendered as a canonical parameter string and digested, so identical
// (filter, sort, page) tuples always map to the same key and distinct tuples
// never collide. url.Values.Encode sorts by key and percent-escapes values,
// so filter values containing '&' or '=' cannot smuggle extra parameters
// into the canonical string.
func ListKey(q *domain.ListQuery) string {
	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("page_size", strconv.Itoa(q.PageSize))
	params.Set("sort", q.SortBy)
	params.Set("sort_desc", strconv.FormatBool(q.SortDesc))
	if q.Filter.Artist != nil {
		params.Set("artist", *q.Filter.Artist)
	}
	if q.Filter.Genre != nil {
		params.Set("genre", *q.Filter.Genre)
	}
	if q.Filter.Year != nil {
		params.Set("year", strconv.Itoa(*q.Filter.Year))
	}

	sum := md5.Sum([]byte(params.Encode()))
	return NamespaceList + ":" + hex.EncodeToString(sum[:])
}

// TopRatedKey builds the key for the top-rated view with the given limit.
func TopRatedKey(limit int) string {
	return fmt.Sprintf("%s:%d", NamespaceTopRated, limit)
}

// MostPlayedKey builds the key for the most-played view with the given limit.
func MostPlayedKey(limit int) string {
	return fmt.Sprintf("%s:%d", NamespaceMostPlayed, limit)
}

// StatsKey builds the key for the catalog statistics view.
func StatsKey() string {
	return NamespaceStats
}
