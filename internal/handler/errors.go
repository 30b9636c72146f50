package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/song-catalog/server/internal/domain"
)

// handleError maps domain errors to HTTP status codes. Anything unrecognised
// is a 500; cache errors never reach this point because the service layer
// absorbs them.
func handleError(c *gin.Context, err error) {
	var vErr *domain.ValidationError

	switch {
	case errors.Is(err, domain.ErrSongNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error(), "field": vErr.Field})

	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
