package handler

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"handsup/backend/internal/config"
	"handsup/backend/internal/joinlink"
	"handsup/backend/internal/models"
	"handsup/backend/internal/session"
	"handsup/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

type createRoomRequest struct {
	TeacherName string `json:"teacher_name" binding:"required,max=80"`
}

type createParticipantRequest struct {
	Name string `json:"name" binding:"required,min=2,max=80"`
}

func (h *Handler) ListRooms(c *gin.Context) {
	rooms, err := h.Store.ListActiveRooms(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	if rooms == nil {
		rooms = []models.Room{}
	}
	c.JSON(http.StatusOK, rooms)
}

func (h *Handler) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	code, err := h.Store.CreateRoom(c.Request.Context(), req.TeacherName)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": code, "join_url": joinlink.URL(h.PublicURL, code)})
}

func (h *Handler) GetRoom(c *gin.Context) {
	code, ok := roomCode(c)
	if !ok {
		return
	}
	room, err := h.Store.GetRoom(c.Request.Context(), code)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if room == nil {
		abortWithError(c, storage.ErrRoomNotFound)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handler) UpdateRoom(c *gin.Context) {
	code, ok := roomCode(c)
	if !ok {
		return
	}
	var upd models.RoomUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.Store.UpdateRoom(c.Request.Context(), code, upd); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DeleteRoom(c *gin.Context) {
	code, ok := roomCode(c)
	if !ok {
		return
	}
	if err := h.Store.DeleteRoom(c.Request.Context(), code); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// EndRoom deletes every participant of the room and then the room.
func (h *Handler) EndRoom(c *gin.Context) {
	code, ok := roomCode(c)
	if !ok {
		return
	}
	report, err := session.Terminate(c.Request.Context(), h.Store, code)
	if err != nil {
		abortWithError(c, err)
		return
	}
	failed := make([]gin.H, 0, len(report.Participants.Failed))
	for _, f := range report.Participants.Failed {
		failed = append(failed, gin.H{"id": f.ID, "error": f.Err.Error()})
	}
	c.JSON(http.StatusOK, gin.H{
		"room_deleted": report.RoomDeleted,
		"deleted":      report.Participants.Succeeded,
		"failed":       failed,
	})
}

func (h *Handler) ListParticipants(c *gin.Context) {
	code, ok := roomCode(c)
	if !ok {
		return
	}
	ps, err := h.Store.ListParticipants(c.Request.Context(), code)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if ps == nil {
		ps = []models.Participant{}
	}
	c.JSON(http.StatusOK, ps)
}

func (h *Handler) CreateParticipant(c *gin.Context) {
	code, ok := roomCode(c)
	if !ok {
		return
	}
	var req createParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if utf8.RuneCountInString(name) < session.MinNameLength {
		badRequest(c, session.ErrInvalidName)
		return
	}
	id, err := h.Store.CreateParticipant(c.Request.Context(), code, name)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// DetachParticipant removes a participant from the room's connected cache.
func (h *Handler) DetachParticipant(c *gin.Context) {
	code, ok := roomCode(c)
	if !ok {
		return
	}
	if err := h.Store.DetachParticipant(c.Request.Context(), code, c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RoomQR renders the join link of the room as a PNG QR code.
func (h *Handler) RoomQR(c *gin.Context) {
	code, ok := roomCode(c)
	if !ok {
		return
	}
	base := c.DefaultQuery("base", h.PublicURL)
	size := config.QRSize
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 64 || n > 1024 {
			badRequest(c, errBadSize)
			return
		}
		size = n
	}

	png, err := joinlink.PNG(joinlink.URL(base, code), size)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "image/png", png)
}
