package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Participant is a student's membership record within exactly one room.
// Participants are hard-deleted on leave, forced leave and room termination.
type Participant struct {
	ID       string `gorm:"primaryKey" json:"id"`
	RoomCode string `gorm:"size:6;not null;index:idx_room_hand,priority:1" json:"roomCode"`
	Name     string `gorm:"not null" json:"name"`
	// HandRaisedAt is non-nil iff HandRaised is true.
	HandRaised   bool       `gorm:"not null;index:idx_room_hand,priority:2" json:"handRaised"`
	HandRaisedAt *time.Time `json:"handRaisedAt"`

	AttendancePhoto *string   `json:"attendancePhoto"`
	Present         bool      `gorm:"not null" json:"present"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// BeforeCreate is a gorm hook that assigns a new UUID when no ID is set yet.
func (p *Participant) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return
}

// ParticipantUpdate carries the fields of a partial participant update.
// Nil fields are left untouched. Setting HandRaised also sets or clears
// HandRaisedAt, see ApplyTo.
type ParticipantUpdate struct {
	HandRaised      *bool   `json:"hand_raised,omitempty"`
	Present         *bool   `json:"present,omitempty"`
	AttendancePhoto *string `json:"attendance_photo,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u ParticipantUpdate) IsEmpty() bool {
	return u.HandRaised == nil && u.Present == nil && u.AttendancePhoto == nil
}

// ApplyTo applies the update to p. A false->true hand transition stamps
// HandRaisedAt with now; raising an already raised hand keeps the original
// timestamp; lowering clears it.
func (u ParticipantUpdate) ApplyTo(p *Participant, now time.Time) {
	if u.HandRaised != nil {
		switch {
		case *u.HandRaised && !p.HandRaised:
			t := now
			p.HandRaised = true
			p.HandRaisedAt = &t
		case !*u.HandRaised:
			p.HandRaised = false
			p.HandRaisedAt = nil
		}
	}
	if u.Present != nil {
		p.Present = *u.Present
	}
	if u.AttendancePhoto != nil {
		photo := *u.AttendancePhoto
		p.AttendancePhoto = &photo
	}
}

// Bool returns a pointer to v, for building partial updates.
func Bool(v bool) *bool { return &v }

// String returns a pointer to v, for building partial updates.
func String(v string) *string { return &v }
