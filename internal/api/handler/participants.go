package handler

import (
	"errors"
	"net/http"

	"handsup/backend/internal/models"
	"handsup/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

var errBadSize = errors.New("size must be between 64 and 1024")

type handRequest struct {
	Raised *bool `json:"raised" binding:"required"`
}

func (h *Handler) GetParticipant(c *gin.Context) {
	p, err := h.Store.GetParticipant(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if p == nil {
		abortWithError(c, storage.ErrParticipantNotFound)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateParticipant(c *gin.Context) {
	var upd models.ParticipantUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.Store.UpdateParticipant(c.Request.Context(), c.Param("id"), upd); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DeleteParticipant(c *gin.Context) {
	if err := h.Store.DeleteParticipant(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetHand sets the hand state. It is a set, not a toggle: repeating a
// request changes nothing.
func (h *Handler) SetHand(c *gin.Context) {
	var req handRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.Store.SetHandRaised(c.Request.Context(), c.Param("id"), *req.Raised); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
