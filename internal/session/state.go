package session

import (
	"handsup/backend/internal/models"
)

// Role is the local role of a session: NoSession, Teaching or Attending.
type Role interface {
	isRole()
}

// NoSession means no room is open.
type NoSession struct{}

// Teaching means the session owns the room RoomCode.
type Teaching struct {
	RoomCode string
}

// Attending means the session joined RoomCode as a student. ParticipantID
// is empty until a name was registered.
type Attending struct {
	RoomCode      string
	ParticipantID string
}

func (NoSession) isRole() {}
func (Teaching) isRole()  {}
func (Attending) isRole() {}

// Joining reports whether the student still has to register a name.
func (a Attending) Joining() bool { return a.ParticipantID == "" }

func roomCodeOf(r Role) string {
	switch r := r.(type) {
	case Teaching:
		return r.RoomCode
	case Attending:
		return r.RoomCode
	}
	return ""
}

// Role returns the current role.
func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// RoomCode returns the code of the open room, or "".
func (s *Session) RoomCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return roomCodeOf(s.role)
}

// Name returns the cached student name. It survives leaving a room.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// HasName reports whether a student name is cached.
func (s *Session) HasName() bool {
	return s.Name() != ""
}

// ParticipantID returns the id of the local participant, or "".
func (s *Session) ParticipantID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.role.(Attending); ok {
		return a.ParticipantID
	}
	return ""
}

// HandRaised returns the last known hand state of the local student.
func (s *Session) HandRaised() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handRaised
}

// Room returns a copy of the mirrored room document, or nil.
func (s *Session) Room() *models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return nil
	}
	r := *s.room
	r.ConnectedParticipants = append([]models.ConnectedParticipant(nil), s.room.ConnectedParticipants...)
	return &r
}

// ParticipantList returns the live participant list of the taught room.
func (s *Session) ParticipantList() []models.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Participant(nil), s.participants...)
}

// ParticipantCount is the number of participants in the taught room.
func (s *Session) ParticipantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants)
}
