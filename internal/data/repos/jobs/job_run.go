package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/yungbote/keyresult-tracker/internal/domain/jobs"
	"github.com/yungbote/keyresult-tracker/internal/platform/dbctx"
	"github.com/yungbote/keyresult-tracker/internal/platform/logger"
)

type JobRunRepo interface {
	Create(dbc dbctx.Context, job *domain.JobRun) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.JobRun, error)
	ClaimNextRunnable(dbc dbctx.Context, staleRunning time.Duration) (*domain.JobRun, error)
	MarkSucceeded(dbc dbctx.Context, id uuid.UUID) error
	MarkRetry(dbc dbctx.Context, id uuid.UUID, cause string, runAt time.Time) error
	MarkDead(dbc dbctx.Context, id uuid.UUID, cause string) error
	CountByStatus(dbc dbctx.Context) (map[string]int64, error)
}

type jobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return &jobRunRepo{
		db:  db,
		log: baseLog.With("repo", "JobRunRepo"),
	}
}

func (r *jobRunRepo) Create(dbc dbctx.Context, job *domain.JobRun) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = domain.StatusQueued
	}
	if job.RunAt.IsZero() {
		job.RunAt = time.Now().UTC()
	}
	return transaction.WithContext(dbc.Ctx).Create(job).Error
}

func (r *jobRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.JobRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out domain.JobRun
	res := transaction.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&out)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &out, nil
}

// ClaimNextRunnable locks the oldest due job and marks it running. Jobs left
// running past staleRunning (a crashed worker) are claimable again.
func (r *jobRunRepo) ClaimNextRunnable(dbc dbctx.Context, staleRunning time.Duration) (*domain.JobRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	staleCutoff := now.Add(-staleRunning)
	var claimed *domain.JobRun
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var job domain.JobRun
		qErr := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
        (
          status = ? AND run_at <= ?
        )
        OR (
          status = ? AND locked_at IS NOT NULL AND locked_at < ?
        )
      `, domain.StatusQueued, now, domain.StatusRunning, staleCutoff).
			Order("run_at ASC").
			First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&domain.JobRun{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":     domain.StatusRunning,
				"attempts":   gorm.Expr("attempts + 1"),
				"locked_at":  now,
				"updated_at": now,
			}).Error
		if uErr != nil {
			return uErr
		}
		job.Status = domain.StatusRunning
		job.Attempts++
		job.LockedAt = &now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *jobRunRepo) MarkSucceeded(dbc dbctx.Context, id uuid.UUID) error {
	return r.updateFields(dbc, id, map[string]interface{}{
		"status":     domain.StatusSucceeded,
		"error":      "",
		"locked_at":  nil,
		"updated_at": time.Now().UTC(),
	})
}

func (r *jobRunRepo) MarkRetry(dbc dbctx.Context, id uuid.UUID, cause string, runAt time.Time) error {
	now := time.Now().UTC()
	return r.updateFields(dbc, id, map[string]interface{}{
		"status":        domain.StatusQueued,
		"error":         cause,
		"run_at":        runAt.UTC(),
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	})
}

func (r *jobRunRepo) MarkDead(dbc dbctx.Context, id uuid.UUID, cause string) error {
	now := time.Now().UTC()
	return r.updateFields(dbc, id, map[string]interface{}{
		"status":        domain.StatusDead,
		"error":         cause,
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	})
}

func (r *jobRunRepo) CountByStatus(dbc dbctx.Context) (map[string]int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []struct {
		Status string
		Count  int64
	}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&domain.JobRun{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

func (r *jobRunRepo) updateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&domain.JobRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}
