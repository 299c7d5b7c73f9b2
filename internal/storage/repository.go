package storage

import (
	"context"
	"errors"
	"time"

	"handsup/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists rooms and participants. Implementations return
// ErrRoomNotFound / ErrParticipantNotFound for missing documents and
// ErrCodeTaken when a room code is already in use.
type Repository interface {
	InsertRoom(ctx context.Context, room *models.Room) error
	FindRoom(ctx context.Context, code string) (*models.Room, error)
	UpdateRoom(ctx context.Context, code string, upd models.RoomUpdate) error
	DeleteRoom(ctx context.Context, code string) error
	ListActiveRooms(ctx context.Context) ([]models.Room, error)

	// AppendConnected and RemoveConnected edit Room.ConnectedParticipants
	// atomically with respect to each other.
	AppendConnected(ctx context.Context, code string, p models.ConnectedParticipant) error
	RemoveConnected(ctx context.Context, code, participantID string) error

	InsertParticipant(ctx context.Context, p *models.Participant) error
	FindParticipant(ctx context.Context, id string) (*models.Participant, error)
	// UpdateParticipant applies upd and returns the participant as stored afterwards.
	UpdateParticipant(ctx context.Context, id string, upd models.ParticipantUpdate) (*models.Participant, error)
	// DeleteParticipant removes the participant and returns what was deleted.
	DeleteParticipant(ctx context.Context, id string) (*models.Participant, error)
	ListParticipants(ctx context.Context, roomCode string) ([]models.Participant, error)
	ListRaisedHands(ctx context.Context, roomCode string) ([]models.Participant, error)
}

// GormRepository stores documents through gorm. It works on Postgres and SQLite.
type GormRepository struct {
	DB *gorm.DB
}

// NewGormRepository wraps db. The connection should be opened with
// gorm.Config{TranslateError: true} so duplicate keys become ErrCodeTaken.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{DB: db}
}

// Migrate creates or updates the rooms and participants tables.
func (r *GormRepository) Migrate() error {
	return r.DB.AutoMigrate(&models.Room{}, &models.Participant{})
}

func (r *GormRepository) InsertRoom(ctx context.Context, room *models.Room) error {
	err := r.DB.WithContext(ctx).Create(room).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrCodeTaken
	}
	return err
}

func (r *GormRepository) FindRoom(ctx context.Context, code string) (*models.Room, error) {
	var room models.Room
	err := r.DB.WithContext(ctx).Where("code = ?", code).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *GormRepository) UpdateRoom(ctx context.Context, code string, upd models.RoomUpdate) error {
	fields := map[string]interface{}{}
	if upd.TeacherName != nil {
		fields["teacher_name"] = *upd.TeacherName
	}
	if upd.Active != nil {
		fields["active"] = *upd.Active
	}
	if len(fields) == 0 {
		_, err := r.FindRoom(ctx, code)
		return err
	}

	res := r.DB.WithContext(ctx).Model(&models.Room{}).Where("code = ?", code).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (r *GormRepository) DeleteRoom(ctx context.Context, code string) error {
	res := r.DB.WithContext(ctx).Where("code = ?", code).Delete(&models.Room{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (r *GormRepository) ListActiveRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	err := r.DB.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at asc").
		Find(&rooms).Error
	return rooms, err
}

func (r *GormRepository) AppendConnected(ctx context.Context, code string, p models.ConnectedParticipant) error {
	return r.editConnected(ctx, code, func(list []models.ConnectedParticipant) []models.ConnectedParticipant {
		for _, existing := range list {
			if existing.ID == p.ID {
				return list
			}
		}
		return append(list, p)
	})
}

func (r *GormRepository) RemoveConnected(ctx context.Context, code, participantID string) error {
	return r.editConnected(ctx, code, func(list []models.ConnectedParticipant) []models.ConnectedParticipant {
		out := list[:0:0]
		for _, existing := range list {
			if existing.ID != participantID {
				out = append(out, existing)
			}
		}
		return out
	})
}

// editConnected reads the cache, applies edit and writes it back in one
// transaction. On Postgres the row is locked for the duration.
func (r *GormRepository) editConnected(ctx context.Context, code string, edit func([]models.ConnectedParticipant) []models.ConnectedParticipant) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("code = ?", code)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var room models.Room
		if err := q.First(&room).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoomNotFound
			}
			return err
		}

		room.ConnectedParticipants = edit(room.ConnectedParticipants)
		return tx.Model(&models.Room{}).
			Where("code = ?", code).
			Update("connected_participants", room.ConnectedParticipants).Error
	})
}

func (r *GormRepository) InsertParticipant(ctx context.Context, p *models.Participant) error {
	return r.DB.WithContext(ctx).Create(p).Error
}

func (r *GormRepository) FindParticipant(ctx context.Context, id string) (*models.Participant, error) {
	var p models.Participant
	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrParticipantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormRepository) UpdateParticipant(ctx context.Context, id string, upd models.ParticipantUpdate) (*models.Participant, error) {
	var out *models.Participant
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Participant
		if err := tx.Where("id = ?", id).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrParticipantNotFound
			}
			return err
		}

		upd.ApplyTo(&p, time.Now().UTC())
		fields := map[string]interface{}{
			"hand_raised":      p.HandRaised,
			"hand_raised_at":   p.HandRaisedAt,
			"present":          p.Present,
			"attendance_photo": p.AttendancePhoto,
		}
		if err := tx.Model(&models.Participant{}).Where("id = ?", id).Updates(fields).Error; err != nil {
			return err
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *GormRepository) DeleteParticipant(ctx context.Context, id string) (*models.Participant, error) {
	var deleted models.Participant
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&deleted).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrParticipantNotFound
			}
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Participant{}).Error
	})
	if err != nil {
		return nil, err
	}
	return &deleted, nil
}

func (r *GormRepository) ListParticipants(ctx context.Context, roomCode string) ([]models.Participant, error) {
	var ps []models.Participant
	err := r.DB.WithContext(ctx).
		Where("room_code = ?", roomCode).
		Order("created_at asc").
		Find(&ps).Error
	return ps, err
}

// ListRaisedHands returns the raised hands of a room, oldest raise first.
func (r *GormRepository) ListRaisedHands(ctx context.Context, roomCode string) ([]models.Participant, error) {
	var ps []models.Participant
	err := r.DB.WithContext(ctx).
		Where("room_code = ? AND hand_raised = ?", roomCode, true).
		Order("hand_raised_at asc").
		Find(&ps).Error
	return ps, err
}
