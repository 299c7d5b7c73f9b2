package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"handsup/backend/internal/models"
)

// Participants manages the local student's participant record.
type Participants struct {
	s *Session
}

// ConfirmName registers the student in the joined room under name.
// Every successful call creates a new participant; check Session.HasName first.
func (p *Participants) ConfirmName(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) < MinNameLength {
		return "", ErrInvalidName
	}

	role, epoch, ok := p.s.current()
	a, attending := role.(Attending)
	if !attending || !ok {
		return "", ErrNotJoined
	}
	return p.register(ctx, epoch, a.RoomCode, name)
}

func (p *Participants) register(ctx context.Context, epoch uint64, code, name string) (string, error) {
	s := p.s
	id, err := s.gw.CreateParticipant(ctx, code, name)
	if err != nil {
		return "", fmt.Errorf("register %q: %w", name, err)
	}

	if !p.adopt(epoch, code, id, name, false) {
		// the session left the room while the create was in flight
		if err := s.gw.DeleteParticipant(ctx, id); err != nil {
			slog.Warn("orphan participant not deleted", "participant", id, "err", err)
		}
		return "", ErrNotJoined
	}

	if err := p.watchSelf(ctx, epoch, id); err != nil {
		return id, err
	}
	slog.Info("participant registered", "room", code, "participant", id)
	s.hooks.notify(SeveritySuccess, MsgNameRegistered, name)
	return id, nil
}

// adopt stores name and id as the local participant if epoch is current.
func (p *Participants) adopt(epoch uint64, code, id, name string, raised bool) bool {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validLocked(epoch) {
		return false
	}
	if a, ok := s.role.(Attending); !ok || a.RoomCode != code {
		return false
	}
	s.role = Attending{RoomCode: code, ParticipantID: id}
	s.name = name
	s.handRaised = raised
	return true
}

// watchSelf keeps the local hand state in line with the stored participant,
// e.g. after the teacher acknowledged the hand.
func (p *Participants) watchSelf(ctx context.Context, epoch uint64, id string) error {
	s := p.s
	return s.arm(keySelf, func() (func(), error) {
		return s.gw.SubscribeParticipant(ctx, id, func(doc *models.Participant) {
			s.onSelf(epoch, id, doc)
		})
	})
}

func (s *Session) onSelf(epoch uint64, id string, doc *models.Participant) {
	if doc == nil {
		return
	}
	s.mu.Lock()
	if !s.validLocked(epoch) {
		s.mu.Unlock()
		return
	}
	if a, ok := s.role.(Attending); !ok || a.ParticipantID != id {
		s.mu.Unlock()
		return
	}
	was := s.handRaised
	own := s.pendingHand != nil && *s.pendingHand == doc.HandRaised
	s.handRaised = doc.HandRaised
	s.mu.Unlock()

	if was == doc.HandRaised {
		return
	}
	s.hooks.handState(doc.HandRaised)
	if was && !doc.HandRaised && !own {
		s.hooks.notify(SeverityInfo, MsgHandAcknowledged)
	}
}

// Clear forgets the local name and participant id. Remote state is untouched.
func (p *Participants) Clear() {
	s := p.s
	s.registry.Dispose(keySelf)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = ""
	s.handRaised = false
	s.pendingHand = nil
	if a, ok := s.role.(Attending); ok {
		s.role = Attending{RoomCode: a.RoomCode}
	}
}

// Restore repopulates the local name from the stored participant id, so a
// restarted client does not have to ask for the name again.
func (p *Participants) Restore(ctx context.Context, participantID string) (string, error) {
	role, epoch, ok := p.s.current()
	a, attending := role.(Attending)
	if !attending || !ok {
		return "", ErrNotJoined
	}
	return p.restore(ctx, epoch, a.RoomCode, participantID)
}

func (p *Participants) restore(ctx context.Context, epoch uint64, code, id string) (string, error) {
	s := p.s
	doc, err := s.gw.GetParticipant(ctx, id)
	if err != nil {
		return "", fmt.Errorf("restore participant: %w", err)
	}
	if doc == nil || doc.RoomCode != code {
		return "", ErrParticipantGone
	}
	if !p.adopt(epoch, code, id, doc.Name, doc.HandRaised) {
		return "", ErrNotJoined
	}
	if err := p.watchSelf(ctx, epoch, id); err != nil {
		return doc.Name, err
	}
	s.hooks.notify(SeverityInfo, MsgNameRestored, doc.Name)
	return doc.Name, nil
}

// MarkPresent records attendance for the local participant. photoRef is an
// optional reference to a captured photo.
func (p *Participants) MarkPresent(ctx context.Context, photoRef string) error {
	s := p.s
	role, _, _ := s.current()
	a, ok := role.(Attending)
	if !ok || a.Joining() {
		return ErrNotJoined
	}
	upd := models.ParticipantUpdate{Present: models.Bool(true)}
	if photoRef != "" {
		upd.AttendancePhoto = models.String(photoRef)
	}
	if err := s.gw.UpdateParticipant(ctx, a.ParticipantID, upd); err != nil {
		return fmt.Errorf("mark present: %w", err)
	}
	return nil
}
