package progress

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/yungbote/keyresult-tracker/internal/domain/progress"
	"github.com/yungbote/keyresult-tracker/internal/platform/dbctx"
	"github.com/yungbote/keyresult-tracker/internal/platform/logger"
)

type TrendRepo interface {
	Upsert(dbc dbctx.Context, snap *domain.TrendSnapshot) (bool, error)
	Get(dbc dbctx.Context, keyResultID uuid.UUID) (*domain.TrendSnapshot, error)
	Delete(dbc dbctx.Context, keyResultID uuid.UUID) error
}

type trendRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTrendRepo(db *gorm.DB, baseLog *logger.Logger) TrendRepo {
	return &trendRepo{
		db:  db,
		log: baseLog.With("repo", "TrendSnapshotRepo"),
	}
}

// Upsert stores snap unless the row already holds a snapshot computed later.
// computed_at keeps rising across deletes, so a recompute after the latest
// version is removed still lands. The bool reports whether the row was written.
func (r *trendRepo) Upsert(dbc dbctx.Context, snap *domain.TrendSnapshot) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if snap == nil || snap.KeyResultID == uuid.Nil {
		return false, nil
	}
	snap.ComputedAt = snap.ComputedAt.UTC()
	snap.UpdatedAt = time.Now().UTC()
	res := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "key_result_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"objective_id",
				"current_progress",
				"status",
				"total_updates",
				"latest_version",
				"average_progress_rate",
				"estimated_completion_date",
				"is_on_track",
				"source_job",
				"computed_at",
				"updated_at",
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "key_result_trend.computed_at <= excluded.computed_at"},
			}},
		}).
		Create(snap)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		r.log.Debug("trend snapshot superseded", "key_result_id", snap.KeyResultID, "computed_at", snap.ComputedAt)
		return false, nil
	}
	return true, nil
}

func (r *trendRepo) Get(dbc dbctx.Context, keyResultID uuid.UUID) (*domain.TrendSnapshot, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out domain.TrendSnapshot
	res := transaction.WithContext(dbc.Ctx).
		Where("key_result_id = ?", keyResultID).
		Limit(1).
		Find(&out)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &out, nil
}

func (r *trendRepo) Delete(dbc dbctx.Context, keyResultID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Where("key_result_id = ?", keyResultID).
		Delete(&domain.TrendSnapshot{}).Error
}
