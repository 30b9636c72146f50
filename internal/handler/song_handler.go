// Package handler exposes the catalog over HTTP using gin.
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/song-catalog/server/internal/domain"
	"github.com/song-catalog/server/internal/loader"
	"github.com/song-catalog/server/internal/service"
)

const defaultRankLimit = 10

// SongHandler handles the song catalog endpoints.
type SongHandler struct {
	service *service.CatalogService
}

// NewSongHandler creates the song handler.
func NewSongHandler(svc *service.CatalogService) *SongHandler {
	return &SongHandler{service: svc}
}

// RegisterRoutes mounts the catalog endpoints on the router group.
func (h *SongHandler) RegisterRoutes(rg *gin.RouterGroup) {
	songs := rg.Group("/songs")
	{
		songs.GET("", h.ListSongs)
		songs.POST("", h.CreateSong)
		songs.GET("/search", h.SearchSongs)
		songs.GET("/top_rated", h.TopRated)
		songs.GET("/most_played", h.MostPlayed)
		songs.GET("/stats", h.Stats)
		songs.GET("/:id", h.GetSong)
		songs.PUT("/:id", h.UpdateSong)
		songs.DELETE("/:id", h.DeleteSong)
		songs.POST("/:id/play", h.PlaySong)
		songs.POST("/:id/rate", h.RateSong)
	}
}

// ListSongs returns one page of songs, filtered and sorted per query params.
func (h *SongHandler) ListSongs(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page must be an integer"})
		return
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page_size must be an integer"})
		return
	}

	q := &domain.ListQuery{Page: page, PageSize: pageSize}
	q.SortBy = c.Query("sort")
	q.SortDesc = c.Query("order") == "desc"

	if artist := c.Query("artist"); artist != "" {
		q.Filter.Artist = &artist
	}
	if genre := c.Query("genre"); genre != "" {
		q.Filter.Genre = &genre
	}
	if yearStr := c.Query("year"); yearStr != "" {
		year, err := strconv.Atoi(yearStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "year must be an integer"})
			return
		}
		q.Filter.Year = &year
	}

	result, err := h.service.List(c.Request.Context(), q)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      result.Songs,
		"total":     result.Total,
		"page":      q.Page,
		"page_size": q.PageSize,
	})
}

// SearchSongs matches songs by substring on title, artist or album.
func (h *SongHandler) SearchSongs(c *gin.Context) {
	query := c.Query("q")

	songs, err := h.service.Search(c.Request.Context(), query)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  songs,
		"count": len(songs),
	})
}

// GetSong returns one song by id.
func (h *SongHandler) GetSong(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	song, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, song)
}

// CreateSong adds a new song to the catalog.
func (h *SongHandler) CreateSong(c *gin.Context) {
	var in domain.SongInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	song, err := h.service.Create(c.Request.Context(), &in)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, song)
}

// UpdateSong applies a partial update to an existing song.
func (h *SongHandler) UpdateSong(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var in domain.SongInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	song, err := h.service.Update(c.Request.Context(), id, &in)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, song)
}

// DeleteSong removes a song.
func (h *SongHandler) DeleteSong(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "deleted successfully"})
}

// TopRated returns the highest-rated songs.
func (h *SongHandler) TopRated(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	songs, err := h.service.TopRated(c.Request.Context(), limit)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": songs})
}

// MostPlayed returns the most-played songs.
func (h *SongHandler) MostPlayed(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	songs, err := h.service.MostPlayed(c.Request.Context(), limit)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": songs})
}

// Stats returns catalog-wide aggregate statistics.
func (h *SongHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// PlaySong records one play of a song.
func (h *SongHandler) PlaySong(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	res, err := h.service.Play(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// RateSong sets a song's rating.
func (h *SongHandler) RateSong(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req struct {
		Rating *float64 `json:"rating"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Rating == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rating is required"})
		return
	}

	res, err := h.service.Rate(c.Request.Context(), id, *req.Rating)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func parseLimit(c *gin.Context) (int, bool) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultRankLimit)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return 0, false
	}
	return limit, true
}

// LoadHandler handles bulk playlist ingestion.
type LoadHandler struct {
	loader       *loader.Loader
	playlistFile string
}

// NewLoadHandler creates the ingestion handler. The playlist file path comes
// from configuration; requests may override it.
func NewLoadHandler(l *loader.Loader, playlistFile string) *LoadHandler {
	return &LoadHandler{loader: l, playlistFile: playlistFile}
}

// RegisterRoutes mounts the ingestion endpoint on the router group.
func (h *LoadHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/load_data", h.LoadData)
}

// LoadData ingests the configured playlist dump into the catalog.
func (h *LoadHandler) LoadData(c *gin.Context) {
	var req struct {
		File string `json:"file"`
	}
	// Body is optional; an empty body means "use the configured file".
	_ = c.ShouldBindJSON(&req)

	path := req.File
	if path == "" {
		path = h.playlistFile
	}
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no playlist file configured"})
		return
	}

	res, err := h.loader.LoadFile(c.Request.Context(), path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if res.AlreadyLoaded {
		c.JSON(http.StatusOK, gin.H{"message": "data already loaded", "result": res})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "data loaded successfully", "result": res})
}
