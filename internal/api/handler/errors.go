package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"handsup/backend/internal/models"
	"handsup/backend/internal/session"
	"handsup/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

// abortWithError maps err to a status code and writes {"error": ...}.
func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, storage.ErrRoomNotFound), errors.Is(err, storage.ErrParticipantNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, storage.ErrCodeTaken):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, session.ErrInvalidInput):
		status, msg = http.StatusBadRequest, err.Error()
	default:
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// roomCode reads and normalizes the :code parameter.
func roomCode(c *gin.Context) (string, bool) {
	code := models.NormalizeRoomCode(c.Param("code"))
	if !models.ValidRoomCode(code) {
		badRequest(c, session.ErrInvalidCode)
		return "", false
	}
	return code, true
}
