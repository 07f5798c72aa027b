package scheduledtasks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

const maxErrorLen = 1024

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// InsertTx stores task unless a task with the same dedupe key exists. It
// reports whether a row was written.
func (r *Repository) InsertTx(tx *gorm.DB, task *models.ScheduledTask) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedupe_key"}},
		DoNothing: true,
	}).Create(task)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ClaimDue leases up to limit pending tasks whose due time has passed and
// whose previous lease, if any, expired. Each claim counts as an attempt.
func (r *Repository) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]models.ScheduledTask, error) {
	var claimed []models.ScheduledTask
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []models.ScheduledTask
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND due_at <= ?", enums.TaskStatusPending, now).
			Where("locked_until IS NULL OR locked_until < ?", now).
			Order("due_at ASC").
			Limit(limit).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		until := now.Add(lease)
		if err := tx.Model(&models.ScheduledTask{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"locked_until": until,
				"attempts":     gorm.Expr("attempts + 1"),
				"updated_at":   now,
			}).Error; err != nil {
			return err
		}
		for i := range rows {
			rows[i].LockedUntil = &until
			rows[i].Attempts++
		}
		claimed = rows
		return nil
	})
	return claimed, err
}

func (r *Repository) MarkDone(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).Model(&models.ScheduledTask{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       enums.TaskStatusDone,
			"processed_at": now,
			"locked_until": nil,
			"updated_at":   now,
		}).Error
}

// Reschedule releases the lease and pushes the task to dueAt.
func (r *Repository) Reschedule(ctx context.Context, id uuid.UUID, dueAt time.Time, cause error) error {
	return r.db.WithContext(ctx).Model(&models.ScheduledTask{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"due_at":       dueAt,
			"locked_until": nil,
			"last_error":   truncate(cause),
			"updated_at":   time.Now().UTC(),
		}).Error
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, now time.Time, cause error) error {
	return r.db.WithContext(ctx).Model(&models.ScheduledTask{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       enums.TaskStatusFailed,
			"processed_at": now,
			"locked_until": nil,
			"last_error":   truncate(cause),
			"updated_at":   now,
		}).Error
}

func (r *Repository) FindByDedupeKey(ctx context.Context, key string) (*models.ScheduledTask, error) {
	var task models.ScheduledTask
	err := r.db.WithContext(ctx).Where("dedupe_key = ?", key).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func truncate(err error) *string {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return &msg
}
