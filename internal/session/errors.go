package session

import (
	"errors"
	"fmt"

	"handsup/backend/internal/models"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidCode   = fmt.Errorf("%w: room code must be %d letters or digits", ErrInvalidInput, models.RoomCodeLength)
	ErrInvalidName   = fmt.Errorf("%w: name must have at least %d characters", ErrInvalidInput, MinNameLength)
	ErrNoTeacherName = fmt.Errorf("%w: a teacher name is required to create a room", ErrInvalidInput)

	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomInactive    = errors.New("room is no longer active")
	ErrParticipantGone = errors.New("participant no longer exists")

	ErrNotTeacher    = errors.New("only the teacher of the room can do this")
	ErrNotJoined     = errors.New("not registered in a room")
	ErrSessionActive = errors.New("a room session is already active")
)

// ItemError records the failure of one item of a bulk operation.
type ItemError struct {
	ID  string
	Err error
}

func (e ItemError) Error() string { return e.ID + ": " + e.Err.Error() }

func (e ItemError) Unwrap() error { return e.Err }

// BulkReport is the per-item outcome of a best-effort bulk operation.
type BulkReport struct {
	Succeeded []string
	Failed    []ItemError
}

// Err joins every per-item failure, or returns nil.
func (r BulkReport) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

func (r *BulkReport) record(id string, err error) {
	if err != nil {
		r.Failed = append(r.Failed, ItemError{ID: id, Err: err})
		return
	}
	r.Succeeded = append(r.Succeeded, id)
}

// TerminationReport describes what ending a room removed.
type TerminationReport struct {
	RoomCode     string
	Participants BulkReport
	RoomDeleted  bool
}
