// Package handler exposes the persistence gateway over HTTP and websockets.
package handler

import (
	"context"
	"net/http"

	"handsup/backend/internal/hub"
	"handsup/backend/internal/models"
	"handsup/backend/internal/session"

	"github.com/gin-gonic/gin"
)

// Store is everything the HTTP API needs from the persistence layer.
type Store interface {
	session.Gateway
	ListActiveRooms(ctx context.Context) ([]models.Room, error)
}

// Handler holds the dependencies of the HTTP endpoints.
type Handler struct {
	Store     Store
	Hub       *hub.Manager
	Auth      *Auth
	PublicURL string
}

func NewHandler(store Store, h *hub.Manager, auth *Auth, publicURL string) *Handler {
	return &Handler{Store: store, Hub: h, Auth: auth, PublicURL: publicURL}
}

// Router builds the gin engine with every route.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/healthz", h.Health)
	r.POST("/session", h.CreateSession)
	r.GET("/rooms/:code/qr.png", h.RoomQR)
	r.GET("/ws", h.Auth.Middleware(), h.ServeWebSocket)

	api := r.Group("/", h.Auth.Middleware())
	{
		api.GET("/rooms", h.ListRooms)
		api.POST("/rooms", h.CreateRoom)
		api.GET("/rooms/:code", h.GetRoom)
		api.PATCH("/rooms/:code", h.UpdateRoom)
		api.DELETE("/rooms/:code", h.DeleteRoom)
		api.POST("/rooms/:code/end", h.EndRoom)
		api.GET("/rooms/:code/participants", h.ListParticipants)
		api.POST("/rooms/:code/participants", h.CreateParticipant)
		api.DELETE("/rooms/:code/participants/:id", h.DetachParticipant)

		api.GET("/participants/:id", h.GetParticipant)
		api.PATCH("/participants/:id", h.UpdateParticipant)
		api.DELETE("/participants/:id", h.DeleteParticipant)
		api.PUT("/participants/:id/hand", h.SetHand)
	}
	return r
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": h.Hub.Count()})
}
