package session_test

import (
	"context"

	"handsup/backend/internal/models"
	"handsup/backend/internal/storage"

	"github.com/stretchr/testify/mock"
)

type MockGateway struct {
	mock.Mock
}

func unsubscribe(args mock.Arguments) storage.Unsubscribe {
	if fn, ok := args.Get(0).(func()); ok {
		return fn
	}
	return func() {}
}

func (m *MockGateway) CreateRoom(ctx context.Context, teacherName string) (string, error) {
	args := m.Called(ctx, teacherName)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) GetRoom(ctx context.Context, code string) (*models.Room, error) {
	args := m.Called(ctx, code)
	room, _ := args.Get(0).(*models.Room)
	return room, args.Error(1)
}

func (m *MockGateway) UpdateRoom(ctx context.Context, code string, upd models.RoomUpdate) error {
	return m.Called(ctx, code, upd).Error(0)
}

func (m *MockGateway) DeleteRoom(ctx context.Context, code string) error {
	return m.Called(ctx, code).Error(0)
}

func (m *MockGateway) CreateParticipant(ctx context.Context, roomCode, name string) (string, error) {
	args := m.Called(ctx, roomCode, name)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) GetParticipant(ctx context.Context, id string) (*models.Participant, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*models.Participant)
	return p, args.Error(1)
}

func (m *MockGateway) UpdateParticipant(ctx context.Context, id string, upd models.ParticipantUpdate) error {
	return m.Called(ctx, id, upd).Error(0)
}

func (m *MockGateway) SetHandRaised(ctx context.Context, id string, raised bool) error {
	return m.Called(ctx, id, raised).Error(0)
}

func (m *MockGateway) DeleteParticipant(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockGateway) DetachParticipant(ctx context.Context, roomCode, id string) error {
	return m.Called(ctx, roomCode, id).Error(0)
}

func (m *MockGateway) ListParticipants(ctx context.Context, roomCode string) ([]models.Participant, error) {
	args := m.Called(ctx, roomCode)
	ps, _ := args.Get(0).([]models.Participant)
	return ps, args.Error(1)
}

func (m *MockGateway) SubscribeRoom(ctx context.Context, code string, onChange func(*models.Room)) (storage.Unsubscribe, error) {
	args := m.Called(ctx, code, onChange)
	return unsubscribe(args), args.Error(1)
}

func (m *MockGateway) SubscribeParticipant(ctx context.Context, id string, onChange func(*models.Participant)) (storage.Unsubscribe, error) {
	args := m.Called(ctx, id, onChange)
	return unsubscribe(args), args.Error(1)
}

func (m *MockGateway) SubscribeParticipantsInRoom(ctx context.Context, roomCode string, onChange func([]models.Participant)) (storage.Unsubscribe, error) {
	args := m.Called(ctx, roomCode, onChange)
	return unsubscribe(args), args.Error(1)
}

func (m *MockGateway) SubscribeRaisedHandsInRoom(ctx context.Context, roomCode string, onChange func([]models.Participant)) (storage.Unsubscribe, error) {
	args := m.Called(ctx, roomCode, onChange)
	return unsubscribe(args), args.Error(1)
}
