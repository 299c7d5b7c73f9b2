package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"handsup/backend/internal/joinlink"
	"handsup/backend/internal/localization"
	"handsup/backend/internal/models"
	"handsup/backend/internal/session"
	"handsup/backend/internal/storage"
)

// terminal renders session events and runs the typed commands.
type terminal struct {
	out       io.Writer
	loc       *localization.Localizer
	lang      string
	publicURL string
	state     stateFile
	sess      *session.Session

	mu sync.Mutex
}

func (t *terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

func (t *terminal) prompt() { t.printf("> ") }

var severityMark = map[session.Severity]string{
	session.SeveritySuccess: "[ok]",
	session.SeverityError:   "[!!]",
	session.SeverityWarning: "[!]",
	session.SeverityInfo:    "[i]",
}

func (t *terminal) hooks() session.Hooks {
	return session.Hooks{
		Notify: func(n session.Notification) {
			t.printf("%s %s\n", severityMark[n.Severity], t.loc.Format(t.lang, n.Key, n.Args...))
		},
		OnHands: func(ps []models.Participant) {
			t.printQueue(ps)
		},
		OnExit: func(r session.ExitReason) {
			t.state.clear()
		},
	}
}

func (t *terminal) printQueue(ps []models.Participant) {
	if len(ps) == 0 {
		t.printf("%s\n", t.loc.Format(t.lang, "telegram.queue_empty"))
		return
	}
	var b strings.Builder
	for i, p := range ps {
		fmt.Fprintf(&b, "  %d. %s (%s)\n", i+1, p.Name, p.ID)
	}
	t.printf("%s", b.String())
}

// errorKey maps a session error to its message key.
func errorKey(err error) string {
	switch {
	case errors.Is(err, session.ErrInvalidCode):
		return "error.invalid_code"
	case errors.Is(err, session.ErrInvalidName):
		return "error.invalid_name"
	case errors.Is(err, session.ErrNoTeacherName):
		return "error.no_teacher_name"
	case errors.Is(err, session.ErrRoomNotFound):
		return "error.room_not_found"
	case errors.Is(err, session.ErrRoomInactive):
		return "error.room_inactive"
	case errors.Is(err, session.ErrNotTeacher):
		return "error.not_teacher"
	case errors.Is(err, session.ErrNotJoined):
		return "error.not_joined"
	case errors.Is(err, session.ErrSessionActive):
		return "error.session_active"
	case errors.Is(err, joinlink.ErrUnrecognized):
		return "scan.unrecognized"
	default:
		return "error.storage"
	}
}

func (t *terminal) fail(err error) {
	t.printf("%s %s\n", severityMark[session.SeverityError], t.loc.Format(t.lang, errorKey(err)))
	var se *storage.StorageError
	if errors.As(err, &se) {
		t.printf("    %v\n", se)
	}
}

func (t *terminal) help() {
	t.printf(`teacher:  create | hands | ack <n|id> | clear | end | link | qr
student:  join <code|link> | name <your name> | raise | present <photo> | leave
          status | help | quit
`)
}

// exec runs one command line. It returns false to quit.
func (t *terminal) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	cmd, arg := strings.ToLower(fields[0]), strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))
	s := t.sess

	switch cmd {
	case "quit", "exit":
		return false
	case "help":
		t.help()
	case "status":
		t.status()

	case "create":
		code, err := s.Rooms.CreateRoom(ctx)
		if err != nil {
			t.fail(err)
			return true
		}
		t.printf("%s\n", joinlink.URL(t.publicURL, code))
	case "link":
		if code := s.RoomCode(); code != "" {
			t.printf("%s\n", joinlink.URL(t.publicURL, code))
		}
	case "qr":
		code := s.RoomCode()
		if code == "" {
			t.fail(session.ErrNotTeacher)
			return true
		}
		qr, err := joinlink.Terminal(joinlink.URL(t.publicURL, code))
		if err != nil {
			t.fail(err)
			return true
		}
		t.printf("%s\n", qr)
	case "hands":
		t.printQueue(s.Hands.Queue())
	case "ack":
		id := arg
		queue := s.Hands.Queue()
		var pos int
		if _, err := fmt.Sscanf(arg, "%d", &pos); err == nil && pos >= 1 && pos <= len(queue) {
			id = queue[pos-1].ID
		}
		if err := s.Hands.AcknowledgeHand(ctx, id); err != nil {
			t.fail(err)
		}
	case "clear":
		if _, err := s.Hands.ClearAllHands(ctx); err != nil {
			t.fail(err)
		}
	case "end":
		if _, err := s.Rooms.EndRoom(ctx); err != nil {
			t.fail(err)
		}

	case "join":
		t.join(ctx, arg)
	case "name":
		if _, err := s.Participants.ConfirmName(ctx, arg); err != nil {
			t.fail(err)
			return true
		}
		t.state.save(s)
	case "raise":
		if _, err := s.Hands.RaiseHand(ctx); err != nil {
			t.fail(err)
		}
	case "present":
		if err := s.Participants.MarkPresent(ctx, arg); err != nil {
			t.fail(err)
		}
	case "leave":
		if err := s.Rooms.LeaveRoom(ctx); err != nil {
			t.fail(err)
		}

	default:
		t.printf("unknown command %q, try help\n", cmd)
	}
	return true
}

// join accepts a bare code or a scanned join link.
func (t *terminal) join(ctx context.Context, arg string) {
	code := arg
	if scan, err := joinlink.ParseScan(arg); err == nil && scan.Kind == joinlink.ScanURL {
		if scan.Code == "" {
			t.printf("%s\n", t.loc.Format(t.lang, "scan.url", scan.URL))
			return
		}
		code = scan.Code
	}

	res, err := t.sess.Rooms.JoinRoom(ctx, code)
	if err != nil {
		t.fail(err)
		if res.RoomCode == "" {
			return
		}
	}
	if res.NeedsName {
		t.printf("%s\n", t.loc.Format(t.lang, "prompt.name"))
		return
	}
	t.state.save(t.sess)
}

func (t *terminal) status() {
	s := t.sess
	switch r := s.Role().(type) {
	case session.Teaching:
		t.printf("teaching %s, %d students, %d hands raised\n", r.RoomCode, s.ParticipantCount(), len(s.Hands.Queue()))
	case session.Attending:
		hand := "down"
		if s.HandRaised() {
			hand = "up"
		}
		t.printf("in room %s as %q, hand %s\n", r.RoomCode, s.Name(), hand)
	default:
		t.printf("not in a room\n")
	}
}

// resume rejoins the room remembered in the state file.
func (t *terminal) resume(ctx context.Context) {
	st, ok := t.state.load()
	if !ok {
		return
	}
	if _, err := t.sess.Rooms.Resume(ctx, st.RoomCode, st.ParticipantID); err != nil {
		t.fail(err)
		t.state.clear()
		return
	}
	t.state.save(t.sess)
}

// savedState is what survives a restart of a student's client.
type savedState struct {
	RoomCode      string `json:"room_code"`
	ParticipantID string `json:"participant_id"`
}

type stateFile string

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "handsup", "session.json")
}

func (f stateFile) load() (savedState, bool) {
	var st savedState
	if f == "" {
		return st, false
	}
	data, err := os.ReadFile(string(f))
	if err != nil || json.Unmarshal(data, &st) != nil || st.RoomCode == "" {
		return st, false
	}
	return st, true
}

func (f stateFile) save(s *session.Session) {
	a, ok := s.Role().(session.Attending)
	if f == "" || !ok || a.Joining() {
		return
	}
	data, err := json.Marshal(savedState{RoomCode: a.RoomCode, ParticipantID: a.ParticipantID})
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(string(f)), 0o700); err != nil {
		return
	}
	_ = os.WriteFile(string(f), data, 0o600)
}

func (f stateFile) clear() {
	if f != "" {
		_ = os.Remove(string(f))
	}
}
