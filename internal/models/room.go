package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// RoomCodeLength is the number of characters in a room code.
const RoomCodeLength = 6

// RoomCodeAlphabet lists the characters a generated room code is drawn from.
const RoomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Room is a teacher-owned session keyed by a short code.
// It is the unit of grouping for participants.
type Room struct {
	// Code is the 6-character primary key. It never changes after creation.
	Code string `gorm:"primaryKey;size:6" json:"code"`
	// TeacherName is the display name of the room owner.
	TeacherName string `gorm:"not null" json:"teacherName"`
	// ConnectedParticipants is a denormalized cache of the participants
	// that joined the room, in join order.
	ConnectedParticipants datatypes.JSONSlice[ConnectedParticipant] `json:"connectedParticipants"`
	// CreatedAt is assigned by the store.
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	// Active is false once the room was terminated.
	Active bool `gorm:"not null;index" json:"active"`
}

// ConnectedParticipant is one entry of Room.ConnectedParticipants.
type ConnectedParticipant struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// RoomUpdate carries the fields of a partial room update. Nil fields are left untouched.
type RoomUpdate struct {
	TeacherName *string `json:"teacher_name,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u RoomUpdate) IsEmpty() bool {
	return u.TeacherName == nil && u.Active == nil
}

// HasParticipant reports whether id is present in the connected participants cache.
func (r *Room) HasParticipant(id string) bool {
	for _, p := range r.ConnectedParticipants {
		if p.ID == id {
			return true
		}
	}
	return false
}

// NormalizeRoomCode trims surrounding spaces and upper-cases a user supplied code.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidRoomCode reports whether code is exactly RoomCodeLength characters
// from RoomCodeAlphabet. It does not normalize.
func ValidRoomCode(code string) bool {
	if len(code) != RoomCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(RoomCodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
