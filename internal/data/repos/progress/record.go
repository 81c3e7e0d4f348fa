package progress

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/yungbote/keyresult-tracker/internal/domain/progress"
	"github.com/yungbote/keyresult-tracker/internal/platform/dbctx"
	"github.com/yungbote/keyresult-tracker/internal/platform/logger"
)

type RecordFilter struct {
	KeyResultID *uuid.UUID
	ObjectiveID *uuid.UUID
	Status      domain.Status
	StartDate   *time.Time
	EndDate     *time.Time
	LatestOnly  bool
}

type Page struct {
	Limit  int
	Offset int
}

// RecordRepo is the progress store. Lookups return (nil, nil) when no live
// record matches.
type RecordRepo interface {
	Create(dbc dbctx.Context, rec *domain.Record) error
	GetByID(dbc dbctx.Context, id uuid.UUID, forUpdate bool) (*domain.Record, error)
	GetLatest(dbc dbctx.Context, keyResultID uuid.UUID, forUpdate bool) (*domain.Record, error)
	ListHistory(dbc dbctx.Context, keyResultID uuid.UUID) ([]domain.Record, error)
	Find(dbc dbctx.Context, filter RecordFilter, page Page) ([]domain.Record, int64, error)
	Update(dbc dbctx.Context, rec *domain.Record) error
	MaxVersion(dbc dbctx.Context, keyResultID uuid.UUID) (int, error)
	SoftDelete(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error)
	HardDelete(dbc dbctx.Context, id uuid.UUID) (bool, error)
}

type recordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRecordRepo(db *gorm.DB, baseLog *logger.Logger) RecordRepo {
	return &recordRepo{
		db:  db,
		log: baseLog.With("repo", "ProgressRecordRepo"),
	}
}

func (r *recordRepo) Create(dbc dbctx.Context, rec *domain.Record) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	return transaction.WithContext(dbc.Ctx).Create(rec).Error
}

func (r *recordRepo) GetByID(dbc dbctx.Context, id uuid.UUID, forUpdate bool) (*domain.Record, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	q := transaction.WithContext(dbc.Ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var out domain.Record
	res := q.Where("id = ?", id).Limit(1).Find(&out)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &out, nil
}

func (r *recordRepo) GetLatest(dbc dbctx.Context, keyResultID uuid.UUID, forUpdate bool) (*domain.Record, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if keyResultID == uuid.Nil {
		return nil, nil
	}
	q := transaction.WithContext(dbc.Ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var out domain.Record
	res := q.Where("key_result_id = ? AND is_latest = ?", keyResultID, true).
		Order("version DESC").
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

func (r *recordRepo) ListHistory(dbc dbctx.Context, keyResultID uuid.UUID) ([]domain.Record, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []domain.Record
	if keyResultID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("key_result_id = ?", keyResultID).
		Order("recorded_at ASC, version ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *recordRepo) Find(dbc dbctx.Context, filter RecordFilter, page Page) ([]domain.Record, int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).Model(&domain.Record{})
	if filter.KeyResultID != nil {
		q = q.Where("key_result_id = ?", *filter.KeyResultID)
	}
	if filter.ObjectiveID != nil {
		q = q.Where("objective_id = ?", *filter.ObjectiveID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.StartDate != nil {
		q = q.Where("recorded_at >= ?", filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		q = q.Where("recorded_at <= ?", filter.EndDate.UTC())
	}
	if filter.LatestOnly {
		q = q.Where("is_latest = ?", true)
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []domain.Record
	if err := q.Order("recorded_at DESC, version DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Update overwrites every column of a live record by id.
func (r *recordRepo) Update(dbc dbctx.Context, rec *domain.Record) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&domain.Record{}).
		Where("id = ?", rec.ID).
		Select("*").
		Omit("id", "created_at", "deleted_at").
		Updates(rec)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MaxVersion includes soft-deleted rows so versions are never reused.
func (r *recordRepo) MaxVersion(dbc dbctx.Context, keyResultID uuid.UUID) (int, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var max sql.NullInt64
	row := transaction.WithContext(dbc.Ctx).
		Unscoped().
		Model(&domain.Record{}).
		Where("key_result_id = ?", keyResultID).
		Select("MAX(version)").
		Row()
	if err := row.Scan(&max); err != nil {
		return 0, err
	}
	return int(max.Int64), nil
}

func (r *recordRepo) SoftDelete(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&domain.Record{}).
		Where("id = ?", id).
		Update("deleted_at", at.UTC())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *recordRepo) HardDelete(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Unscoped().
		Where("id = ?", id).
		Delete(&domain.Record{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
