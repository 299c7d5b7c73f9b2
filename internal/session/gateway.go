package session

import (
	"context"

	"handsup/backend/internal/models"
	"handsup/backend/internal/storage"
)

// Gateway is the persistence contract the session runs on. It is satisfied
// by *storage.Gateway in-process and by *remote.Client over the network.
type Gateway interface {
	CreateRoom(ctx context.Context, teacherName string) (string, error)
	GetRoom(ctx context.Context, code string) (*models.Room, error)
	UpdateRoom(ctx context.Context, code string, upd models.RoomUpdate) error
	DeleteRoom(ctx context.Context, code string) error

	CreateParticipant(ctx context.Context, roomCode, name string) (string, error)
	GetParticipant(ctx context.Context, id string) (*models.Participant, error)
	UpdateParticipant(ctx context.Context, id string, upd models.ParticipantUpdate) error
	SetHandRaised(ctx context.Context, id string, raised bool) error
	DeleteParticipant(ctx context.Context, id string) error
	DetachParticipant(ctx context.Context, roomCode, id string) error
	ListParticipants(ctx context.Context, roomCode string) ([]models.Participant, error)

	SubscribeRoom(ctx context.Context, code string, onChange func(*models.Room)) (storage.Unsubscribe, error)
	SubscribeParticipant(ctx context.Context, id string, onChange func(*models.Participant)) (storage.Unsubscribe, error)
	SubscribeParticipantsInRoom(ctx context.Context, roomCode string, onChange func([]models.Participant)) (storage.Unsubscribe, error)
	SubscribeRaisedHandsInRoom(ctx context.Context, roomCode string, onChange func([]models.Participant)) (storage.Unsubscribe, error)
}

// Terminator is the subset of Gateway needed to end a room.
type Terminator interface {
	ListParticipants(ctx context.Context, roomCode string) ([]models.Participant, error)
	DeleteParticipant(ctx context.Context, id string) error
	DeleteRoom(ctx context.Context, code string) error
}

var _ Gateway = (*storage.Gateway)(nil)
