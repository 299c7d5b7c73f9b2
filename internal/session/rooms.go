package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"handsup/backend/internal/models"
	"handsup/backend/internal/storage"
)

// Rooms manages the room lifecycle of a session.
type Rooms struct {
	s *Session
}

// JoinResult is the outcome of a successful join.
type JoinResult struct {
	RoomCode      string
	ParticipantID string
	// NeedsName is true when no name is cached; call Participants.ConfirmName.
	NeedsName bool
}

// CreateRoom creates a room and makes this session its teacher. When the
// session already teaches a room, that room's subscriptions are replaced;
// the old room itself stays until it is ended. If the new room cannot be
// watched it is deleted again and the session is left in NoSession.
func (r *Rooms) CreateRoom(ctx context.Context) (string, error) {
	s := r.s
	role, _, ok := s.current()
	if !ok {
		return "", ErrSessionActive
	}
	if _, student := role.(Attending); student {
		return "", ErrSessionActive
	}
	if strings.TrimSpace(s.opts.TeacherName) == "" {
		return "", ErrNoTeacherName
	}

	code, err := s.gw.CreateRoom(ctx, s.opts.TeacherName)
	if err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}

	if prev, teaching := role.(Teaching); teaching {
		slog.Info("switching rooms", "from", prev.RoomCode, "to", code)
	}
	s.registry.DisposeAll()
	epoch := s.enter(Teaching{RoomCode: code}, nil)

	err = errors.Join(
		r.watchRoom(ctx, epoch, code),
		s.arm(keyParticipants, func() (func(), error) {
			return s.gw.SubscribeParticipantsInRoom(ctx, code, func(ps []models.Participant) {
				s.onParticipants(epoch, ps)
			})
		}),
		s.Hands.ListenToRaisedHands(ctx),
	)
	if err != nil {
		s.teardown(ExitLeft)
		if derr := s.gw.DeleteRoom(ctx, code); derr != nil && !storage.IsNotFound(derr) {
			slog.Warn("unwatched room not deleted", "room", code, "err", derr)
		}
		return "", fmt.Errorf("watch room %s: %w", code, err)
	}

	slog.Info("room created", "room", code)
	s.hooks.notify(SeveritySuccess, MsgRoomCreated, code)
	return code, nil
}

// JoinRoom joins the room as a student. The code is normalized first. If a
// name is cached from an earlier room the participant is registered right
// away, otherwise the result asks for a name.
func (r *Rooms) JoinRoom(ctx context.Context, code string) (JoinResult, error) {
	code, epoch, err := r.join(ctx, code)
	if err != nil {
		return JoinResult{}, err
	}
	res := JoinResult{RoomCode: code}

	name := r.s.Name()
	if name == "" {
		res.NeedsName = true
		return res, nil
	}
	id, err := r.s.Participants.register(ctx, epoch, code, name)
	if err != nil {
		res.NeedsName = true
		return res, err
	}
	res.ParticipantID = id
	return res, nil
}

// Resume rejoins code after a restart and restores the participant
// participantID. When that participant is gone it behaves like JoinRoom.
func (r *Rooms) Resume(ctx context.Context, code, participantID string) (JoinResult, error) {
	if participantID == "" {
		return r.JoinRoom(ctx, code)
	}
	code, epoch, err := r.join(ctx, code)
	if err != nil {
		return JoinResult{}, err
	}

	_, err = r.s.Participants.restore(ctx, epoch, code, participantID)
	switch {
	case err == nil:
		return JoinResult{RoomCode: code, ParticipantID: participantID}, nil
	case !errors.Is(err, ErrParticipantGone):
		return JoinResult{RoomCode: code, NeedsName: true}, err
	}

	res := JoinResult{RoomCode: code}
	name := r.s.Name()
	if name == "" {
		res.NeedsName = true
		return res, nil
	}
	id, err := r.s.Participants.register(ctx, epoch, code, name)
	if err != nil {
		res.NeedsName = true
		return res, err
	}
	res.ParticipantID = id
	return res, nil
}

// join validates code, checks the room and switches to Attending.
func (r *Rooms) join(ctx context.Context, raw string) (string, uint64, error) {
	s := r.s
	code := models.NormalizeRoomCode(raw)
	if !models.ValidRoomCode(code) {
		return "", 0, ErrInvalidCode
	}

	role, _, ok := s.current()
	if _, none := role.(NoSession); !none || !ok {
		return "", 0, ErrSessionActive
	}

	room, err := s.gw.GetRoom(ctx, code)
	if err != nil {
		return "", 0, fmt.Errorf("join room %s: %w", code, err)
	}
	if room == nil {
		return "", 0, ErrRoomNotFound
	}
	if !room.Active {
		return "", 0, ErrRoomInactive
	}

	s.mu.Lock()
	if _, none := s.role.(NoSession); !none || s.exiting {
		s.mu.Unlock()
		return "", 0, ErrSessionActive
	}
	s.mu.Unlock()
	epoch := s.enter(Attending{RoomCode: code}, room)

	if err := r.watchRoom(ctx, epoch, code); err != nil {
		s.teardown(ExitLeft)
		return "", 0, fmt.Errorf("join room %s: %w", code, err)
	}

	slog.Info("joined room", "room", code)
	s.hooks.notify(SeveritySuccess, MsgRoomJoined, code)
	return code, epoch, nil
}

// watchRoom mirrors the room document and turns its deletion or
// deactivation into a delayed forced leave.
func (r *Rooms) watchRoom(ctx context.Context, epoch uint64, code string) error {
	s := r.s
	return s.arm(keyRoom, func() (func(), error) {
		return s.gw.SubscribeRoom(ctx, code, func(room *models.Room) {
			s.onRoom(epoch, code, room)
		})
	})
}

func (s *Session) onRoom(epoch uint64, code string, room *models.Room) {
	s.mu.Lock()
	if !s.validLocked(epoch) {
		s.mu.Unlock()
		return
	}
	if room != nil && room.Active {
		s.room = room
		s.mu.Unlock()
		s.hooks.room(room)
		return
	}
	s.mu.Unlock()

	if s.scheduleForceLeave(epoch) {
		slog.Info("room closed remotely", "room", code)
		s.hooks.room(nil)
		s.hooks.notify(SeverityInfo, MsgRoomClosed, code)
	}
}

func (s *Session) onParticipants(epoch uint64, ps []models.Participant) {
	s.mu.Lock()
	if !s.validLocked(epoch) {
		s.mu.Unlock()
		return
	}
	s.participants = ps
	s.mu.Unlock()
	s.hooks.participants(append([]models.Participant(nil), ps...))
}

// EndRoom terminates the taught room: every participant is deleted, then
// the room, then local state is reset. Local state is reset even when the
// gateway fails. Ending twice, or while an end is running, returns an empty
// report.
func (r *Rooms) EndRoom(ctx context.Context) (TerminationReport, error) {
	s := r.s
	s.mu.Lock()
	switch s.role.(type) {
	case Attending:
		s.mu.Unlock()
		return TerminationReport{}, ErrNotTeacher
	}
	s.mu.Unlock()

	role, ok := s.beginExit(0)
	if !ok {
		return TerminationReport{}, nil
	}
	code := role.(Teaching).RoomCode

	report, err := Terminate(ctx, s.gw, code)
	s.teardown(ExitEnded)

	if err != nil || len(report.Participants.Failed) > 0 {
		s.hooks.notify(SeverityWarning, MsgRoomEndedPartial, code, len(report.Participants.Failed))
	} else {
		s.hooks.notify(SeveritySuccess, MsgRoomEnded, code, len(report.Participants.Succeeded))
	}
	return report, err
}

// LeaveRoom leaves the current room. A teacher leaving ends the room.
// A student deletes its participant and drops out of the room's cache;
// either failing is reported but does not keep the session open.
func (r *Rooms) LeaveRoom(ctx context.Context) error {
	s := r.s
	s.mu.Lock()
	_, teaching := s.role.(Teaching)
	s.mu.Unlock()
	if teaching {
		_, err := r.EndRoom(ctx)
		return err
	}

	role, ok := s.beginExit(0)
	if !ok {
		return nil
	}
	a := role.(Attending)
	err := r.dropSelf(ctx, a)
	s.teardown(ExitLeft)
	s.hooks.notify(SeverityInfo, MsgRoomLeft, a.RoomCode)
	return err
}

// ForceLeaveRoom leaves a room that was closed by its teacher. The own
// participant is removed best-effort.
func (r *Rooms) ForceLeaveRoom(ctx context.Context) error {
	return r.forceLeave(ctx, 0)
}

func (r *Rooms) forceLeave(ctx context.Context, epoch uint64) error {
	s := r.s
	role, ok := s.beginExit(epoch)
	if !ok {
		return nil
	}
	var err error
	if a, student := role.(Attending); student {
		err = r.dropSelf(ctx, a)
	}
	s.teardown(ExitRoomClosed)
	return err
}

// dropSelf deletes the student's participant and cache entry. Already
// missing documents count as success.
func (r *Rooms) dropSelf(ctx context.Context, a Attending) error {
	if a.Joining() {
		return nil
	}
	var errs []error
	if err := r.s.gw.DeleteParticipant(ctx, a.ParticipantID); err != nil && !storage.IsNotFound(err) {
		errs = append(errs, fmt.Errorf("delete participant: %w", err))
	}
	if err := r.s.gw.DetachParticipant(ctx, a.RoomCode, a.ParticipantID); err != nil && !storage.IsNotFound(err) {
		errs = append(errs, fmt.Errorf("detach participant: %w", err))
	}
	return errors.Join(errs...)
}

// Terminate deletes every participant of the room one by one, then the room.
// Participant failures are recorded and skipped. A room that is already gone
// is not an error.
func Terminate(ctx context.Context, gw Terminator, code string) (TerminationReport, error) {
	report := TerminationReport{RoomCode: code}

	ps, err := gw.ListParticipants(ctx, code)
	if err != nil {
		return report, fmt.Errorf("list participants of %s: %w", code, err)
	}
	for _, p := range ps {
		err := gw.DeleteParticipant(ctx, p.ID)
		if storage.IsNotFound(err) {
			err = nil
		}
		if err != nil {
			slog.Warn("participant not deleted", "room", code, "participant", p.ID, "err", err)
		}
		report.Participants.record(p.ID, err)
	}

	err = gw.DeleteRoom(ctx, code)
	if err != nil && !storage.IsNotFound(err) {
		return report, fmt.Errorf("delete room %s: %w", code, err)
	}
	report.RoomDeleted = err == nil
	return report, nil
}
