package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	progressrepo "github.com/yungbote/keyresult-tracker/internal/data/repos/progress"
	domainagg "github.com/yungbote/keyresult-tracker/internal/domain/aggregates"
	"github.com/yungbote/keyresult-tracker/internal/domain/jobs"
	"github.com/yungbote/keyresult-tracker/internal/domain/progress"
	"github.com/yungbote/keyresult-tracker/internal/observability"
	"github.com/yungbote/keyresult-tracker/internal/platform/ctxutil"
	"github.com/yungbote/keyresult-tracker/internal/platform/dbctx"
	"github.com/yungbote/keyresult-tracker/internal/platform/logger"
)

// JobEmitter hands recalculation jobs to the queue without blocking.
type JobEmitter interface {
	Emit(ctx context.Context, name string, payload any) bool
}

type CreateProgressRequest struct {
	KeyResultID     string          `json:"keyResultId"`
	ObjectiveID     string          `json:"objectiveId"`
	KeyResultName   string          `json:"keyResultName"`
	Description     string          `json:"description"`
	MetricType      string          `json:"metricType"`
	TargetValue     *float64        `json:"targetValue"`
	StartingValue   *float64        `json:"startingValue"`
	CurrentValue    *float64        `json:"currentValue"`
	UpdatedBy       string          `json:"updatedBy"`
	UpdateSource    string          `json:"updateSource"`
	MetricMetadata  json.RawMessage `json:"metricMetadata"`
	Comment         string          `json:"comment"`
	RecordedAt      string          `json:"recordedAt"`
	DueDate         string          `json:"dueDate"`
	ConfidenceScore *int            `json:"confidenceScore"`
}

type UpdateProgressRequest struct {
	CurrentValue    *float64        `json:"currentValue"`
	Status          string          `json:"status"`
	UpdatedBy       string          `json:"updatedBy"`
	UpdateSource    *string         `json:"updateSource"`
	MetricMetadata  json.RawMessage `json:"metricMetadata"`
	Comment         *string         `json:"comment"`
	RecordedAt      string          `json:"recordedAt"`
	ConfidenceScore *int            `json:"confidenceScore"`
}

// ProgressQuery holds the raw query string values of a list request.
type ProgressQuery struct {
	KeyResultID string
	ObjectiveID string
	Status      string
	StartDate   string
	EndDate     string
	LatestOnly  string
	Limit       string
	Offset      string
}

type ProgressList struct {
	Data   []progress.View `json:"data"`
	Total  int64           `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

type ProgressService interface {
	Create(ctx context.Context, req CreateProgressRequest) (*progress.View, error)
	Update(ctx context.Context, id string, req UpdateProgressRequest, expectedVersion *int) (*progress.View, error)
	GetByID(ctx context.Context, id string) (*progress.View, error)
	GetLatest(ctx context.Context, keyResultID string) (*progress.View, error)
	List(ctx context.Context, q ProgressQuery) (*ProgressList, error)
	History(ctx context.Context, keyResultID string) ([]progress.View, error)
	Summary(ctx context.Context, keyResultID string) (*progress.Summary, error)
	Trend(ctx context.Context, keyResultID string) (*progress.TrendSnapshot, error)
	Delete(ctx context.Context, id string) error
	HardDelete(ctx context.Context, id string) error

	// ApplyToLatest updates the live latest record of a key result.
	ApplyToLatest(ctx context.Context, keyResultID uuid.UUID, patch domainagg.ProgressPatch) (*progress.View, error)
}

type progressService struct {
	log       *logger.Logger
	aggregate domainagg.ProgressAggregate
	records   progressrepo.RecordRepo
	trends    progressrepo.TrendRepo
	emitter   JobEmitter
	metrics   *observability.Metrics
	now       func() time.Time
}

func NewProgressService(
	baseLog *logger.Logger,
	aggregate domainagg.ProgressAggregate,
	records progressrepo.RecordRepo,
	trends progressrepo.TrendRepo,
	emitter JobEmitter,
	metrics *observability.Metrics,
) ProgressService {
	return &progressService{
		log:       baseLog.With("service", "ProgressService"),
		aggregate: aggregate,
		records:   records,
		trends:    trends,
		emitter:   emitter,
		metrics:   metrics,
		now:       time.Now,
	}
}

func (s *progressService) Create(ctx context.Context, req CreateProgressRequest) (*progress.View, error) {
	const op = "progress.create"
	var fe fieldErrors
	in := domainagg.CreateProgressInput{
		KeyResultID:     fe.requiredUUID("keyResultId", req.KeyResultID),
		ObjectiveID:     fe.requiredUUID("objectiveId", req.ObjectiveID),
		KeyResultName:   req.KeyResultName,
		Description:     req.Description,
		MetricType:      progress.MetricType(strings.TrimSpace(req.MetricType)),
		UpdatedBy:       fe.optionalUUID("updatedBy", req.UpdatedBy),
		UpdateSource:    req.UpdateSource,
		MetricMetadata:  req.MetricMetadata,
		Comment:         req.Comment,
		RecordedAt:      fe.optionalTime("recordedAt", req.RecordedAt),
		DueDate:         fe.optionalTime("dueDate", req.DueDate),
		ConfidenceScore: req.ConfidenceScore,
	}
	if req.TargetValue == nil {
		fe.add("targetValue", "is required")
	} else {
		in.TargetValue = *req.TargetValue
	}
	if req.CurrentValue == nil {
		fe.add("currentValue", "is required")
	} else {
		in.CurrentValue = *req.CurrentValue
	}
	if req.StartingValue != nil {
		in.StartingValue = *req.StartingValue
	}
	if err := fe.err(op); err != nil {
		return nil, err
	}

	rec, err := s.aggregate.CreateInitial(ctx, in)
	if err != nil {
		return nil, err
	}
	s.metrics.IncVersionCreated(rec.UpdateSource, string(rec.Status))
	s.emitTrends(ctx, rec)
	view := progress.NewView(*rec, s.now())
	return &view, nil
}

func (s *progressService) Update(ctx context.Context, id string, req UpdateProgressRequest, expectedVersion *int) (*progress.View, error) {
	const op = "progress.update"
	var fe fieldErrors
	var recordID uuid.UUID
	if strings.TrimSpace(id) != "" {
		recordID = fe.requiredUUID("id", id)
	} else {
		fe.add("id", "is required")
	}
	patch := domainagg.ProgressPatch{
		CurrentValue:    req.CurrentValue,
		UpdatedBy:       fe.optionalUUID("updatedBy", req.UpdatedBy),
		UpdateSource:    req.UpdateSource,
		MetricMetadata:  req.MetricMetadata,
		Comment:         req.Comment,
		RecordedAt:      fe.optionalTime("recordedAt", req.RecordedAt),
		ConfidenceScore: req.ConfidenceScore,
		ExpectedVersion: expectedVersion,
	}
	if st := strings.TrimSpace(req.Status); st != "" {
		status := progress.Status(st)
		patch.Status = &status
	}
	if err := fe.err(op); err != nil {
		return nil, err
	}
	return s.apply(ctx, recordID, patch)
}

func (s *progressService) ApplyToLatest(ctx context.Context, keyResultID uuid.UUID, patch domainagg.ProgressPatch) (*progress.View, error) {
	latest, err := s.records.GetLatest(dbctx.Context{Ctx: ctx}, keyResultID, false)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, "progress.get_latest", err)
	}
	if latest == nil {
		return nil, domainagg.NotFound("progress.get_latest", "progress for key result "+keyResultID.String())
	}
	return s.apply(ctx, latest.ID, patch)
}

func (s *progressService) apply(ctx context.Context, recordID uuid.UUID, patch domainagg.ProgressPatch) (*progress.View, error) {
	res, err := s.aggregate.ApplyUpdate(ctx, domainagg.ApplyProgressUpdateInput{RecordID: recordID, Patch: patch})
	if err != nil {
		return nil, err
	}
	if res.NewVersion {
		s.metrics.IncVersionCreated(res.Record.UpdateSource, string(res.Record.Status))
		s.emitTrends(ctx, res.Record)
	}
	view := progress.NewView(*res.Record, s.now())
	return &view, nil
}

func (s *progressService) GetByID(ctx context.Context, id string) (*progress.View, error) {
	const op = "progress.get"
	recordID, err := ParseID(op, "id", id)
	if err != nil {
		return nil, err
	}
	rec, err := s.records.GetByID(dbctx.Context{Ctx: ctx}, recordID, false)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	if rec == nil {
		return nil, domainagg.NotFound(op, "progress record "+recordID.String())
	}
	view := progress.NewView(*rec, s.now())
	return &view, nil
}

func (s *progressService) GetLatest(ctx context.Context, keyResultID string) (*progress.View, error) {
	const op = "progress.get_latest"
	kr, err := ParseID(op, "keyResultId", keyResultID)
	if err != nil {
		return nil, err
	}
	rec, err := s.records.GetLatest(dbctx.Context{Ctx: ctx}, kr, false)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	if rec == nil {
		return nil, domainagg.NotFound(op, "progress for key result "+kr.String())
	}
	view := progress.NewView(*rec, s.now())
	return &view, nil
}

func (s *progressService) List(ctx context.Context, q ProgressQuery) (*ProgressList, error) {
	const op = "progress.list"
	var fe fieldErrors
	filter := progressrepo.RecordFilter{
		KeyResultID: fe.optionalUUID("keyResultId", q.KeyResultID),
		ObjectiveID: fe.optionalUUID("objectiveId", q.ObjectiveID),
		StartDate:   fe.optionalTime("startDate", q.StartDate),
		EndDate:     fe.optionalTime("endDate", q.EndDate),
		LatestOnly:  fe.optionalBool("latestOnly", q.LatestOnly),
	}
	if st := strings.TrimSpace(q.Status); st != "" {
		filter.Status = progress.Status(st)
		if !filter.Status.Valid() {
			fe.add("status", "must be one of on_track, at_risk, off_track, completed")
		}
	}
	page := progressrepo.Page{
		Limit:  fe.optionalInt("limit", q.Limit, defaultListLimit, 1, maxListLimit),
		Offset: fe.optionalInt("offset", q.Offset, 0, 0, 0),
	}
	if err := fe.err(op); err != nil {
		return nil, err
	}

	rows, total, err := s.records.Find(dbctx.Context{Ctx: ctx}, filter, page)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	return &ProgressList{
		Data:   progress.NewViews(rows, s.now()),
		Total:  total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}, nil
}

func (s *progressService) History(ctx context.Context, keyResultID string) ([]progress.View, error) {
	const op = "progress.history"
	kr, err := ParseID(op, "keyResultId", keyResultID)
	if err != nil {
		return nil, err
	}
	rows, err := s.records.ListHistory(dbctx.Context{Ctx: ctx}, kr)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	if len(rows) == 0 {
		return nil, domainagg.NotFound(op, "progress for key result "+kr.String())
	}
	return progress.NewViews(rows, s.now()), nil
}

func (s *progressService) Summary(ctx context.Context, keyResultID string) (*progress.Summary, error) {
	const op = "progress.summary"
	kr, err := ParseID(op, "keyResultId", keyResultID)
	if err != nil {
		return nil, err
	}
	rows, err := s.records.ListHistory(dbctx.Context{Ctx: ctx}, kr)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	summary, err := progress.Summarize(rows, s.now())
	if errors.Is(err, progress.ErrEmptyHistory) {
		return nil, domainagg.NotFound(op, "progress for key result "+kr.String())
	}
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	return &summary, nil
}

func (s *progressService) Trend(ctx context.Context, keyResultID string) (*progress.TrendSnapshot, error) {
	const op = "progress.trend"
	kr, err := ParseID(op, "keyResultId", keyResultID)
	if err != nil {
		return nil, err
	}
	snap, err := s.trends.Get(dbctx.Context{Ctx: ctx}, kr)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	if snap == nil {
		return nil, domainagg.NotFound(op, "trend for key result "+kr.String())
	}
	return snap, nil
}

func (s *progressService) Delete(ctx context.Context, id string) error {
	const op = "progress.delete"
	recordID, err := ParseID(op, "id", id)
	if err != nil {
		return err
	}
	rec, err := s.records.GetByID(dbctx.Context{Ctx: ctx}, recordID, false)
	if err != nil {
		return domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	if err := s.aggregate.SoftDelete(ctx, recordID); err != nil {
		return err
	}
	if rec != nil {
		s.emitTrends(ctx, rec)
	}
	return nil
}

func (s *progressService) HardDelete(ctx context.Context, id string) error {
	const op = "progress.hard_delete"
	recordID, err := ParseID(op, "id", id)
	if err != nil {
		return err
	}
	removed, err := s.aggregate.HardDelete(ctx, recordID)
	if err != nil {
		return err
	}
	if removed != nil {
		s.emitTrends(ctx, removed)
	}
	return nil
}

func (s *progressService) emitTrends(ctx context.Context, rec *progress.Record) {
	if s.emitter == nil || rec == nil {
		return
	}
	accepted := s.emitter.Emit(ctx, jobs.JobCalculateTrends, jobs.CalculateTrendsPayload{
		KeyResultID: rec.KeyResultID,
		ProgressID:  rec.ID,
		Version:     rec.Version,
	})
	if !accepted {
		s.log.Warn("trend recalculation not scheduled",
			append([]interface{}{"key_result_id", rec.KeyResultID, "record_id", rec.ID}, ctxutil.TraceFields(ctx)...)...)
	}
}
