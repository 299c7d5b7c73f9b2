// Package memstore is an in-memory storage.Repository for development and tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"handsup/backend/internal/models"
	"handsup/backend/internal/storage"

	"github.com/google/uuid"
)

// Repository keeps rooms and participants in maps. Documents are copied on
// the way in and out, so callers never share memory with the store.
type Repository struct {
	mu           sync.RWMutex
	rooms        map[string]models.Room
	participants map[string]models.Participant
	seq          map[string]int64 // insertion order of participants
	next         int64
}

var _ storage.Repository = (*Repository)(nil)

// New creates an empty repository.
func New() *Repository {
	return &Repository{
		rooms:        make(map[string]models.Room),
		participants: make(map[string]models.Participant),
		seq:          make(map[string]int64),
	}
}

func copyRoom(r models.Room) *models.Room {
	out := r
	out.ConnectedParticipants = append([]models.ConnectedParticipant(nil), r.ConnectedParticipants...)
	return &out
}

func copyParticipant(p models.Participant) models.Participant {
	out := p
	if p.HandRaisedAt != nil {
		t := *p.HandRaisedAt
		out.HandRaisedAt = &t
	}
	if p.AttendancePhoto != nil {
		s := *p.AttendancePhoto
		out.AttendancePhoto = &s
	}
	return out
}

func (r *Repository) InsertRoom(_ context.Context, room *models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[room.Code]; ok {
		return storage.ErrCodeTaken
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	r.rooms[room.Code] = *copyRoom(*room)
	return nil
}

func (r *Repository) FindRoom(_ context.Context, code string) (*models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[code]
	if !ok {
		return nil, storage.ErrRoomNotFound
	}
	return copyRoom(room), nil
}

func (r *Repository) UpdateRoom(_ context.Context, code string, upd models.RoomUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[code]
	if !ok {
		return storage.ErrRoomNotFound
	}
	if upd.TeacherName != nil {
		room.TeacherName = *upd.TeacherName
	}
	if upd.Active != nil {
		room.Active = *upd.Active
	}
	r.rooms[code] = room
	return nil
}

func (r *Repository) DeleteRoom(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[code]; !ok {
		return storage.ErrRoomNotFound
	}
	delete(r.rooms, code)
	return nil
}

func (r *Repository) ListActiveRooms(_ context.Context) ([]models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Room
	for _, room := range r.rooms {
		if room.Active {
			out = append(out, *copyRoom(room))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *Repository) AppendConnected(_ context.Context, code string, p models.ConnectedParticipant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[code]
	if !ok {
		return storage.ErrRoomNotFound
	}
	if room.HasParticipant(p.ID) {
		return nil
	}
	list := append([]models.ConnectedParticipant(nil), room.ConnectedParticipants...)
	room.ConnectedParticipants = append(list, p)
	r.rooms[code] = room
	return nil
}

func (r *Repository) RemoveConnected(_ context.Context, code, participantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[code]
	if !ok {
		return storage.ErrRoomNotFound
	}
	var list []models.ConnectedParticipant
	for _, cp := range room.ConnectedParticipants {
		if cp.ID != participantID {
			list = append(list, cp)
		}
	}
	room.ConnectedParticipants = list
	r.rooms[code] = room
	return nil
}

func (r *Repository) InsertParticipant(_ context.Context, p *models.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	r.participants[p.ID] = copyParticipant(*p)
	r.next++
	r.seq[p.ID] = r.next
	return nil
}

func (r *Repository) FindParticipant(_ context.Context, id string) (*models.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	if !ok {
		return nil, storage.ErrParticipantNotFound
	}
	out := copyParticipant(p)
	return &out, nil
}

func (r *Repository) UpdateParticipant(_ context.Context, id string, upd models.ParticipantUpdate) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return nil, storage.ErrParticipantNotFound
	}
	upd.ApplyTo(&p, time.Now().UTC())
	r.participants[id] = p
	out := copyParticipant(p)
	return &out, nil
}

func (r *Repository) DeleteParticipant(_ context.Context, id string) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return nil, storage.ErrParticipantNotFound
	}
	delete(r.participants, id)
	delete(r.seq, id)
	return &p, nil
}

func (r *Repository) ListParticipants(_ context.Context, roomCode string) ([]models.Participant, error) {
	return r.list(roomCode, func(models.Participant) bool { return true }), nil
}

func (r *Repository) ListRaisedHands(_ context.Context, roomCode string) ([]models.Participant, error) {
	return r.list(roomCode, func(p models.Participant) bool { return p.HandRaised }), nil
}

// list returns the matching participants of a room in insertion order.
func (r *Repository) list(roomCode string, keep func(models.Participant) bool) []models.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []models.Participant{}
	for _, p := range r.participants {
		if p.RoomCode == roomCode && keep(p) {
			out = append(out, copyParticipant(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.seq[out[i].ID] < r.seq[out[j].ID] })
	return out
}
