package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/keyresult-tracker/internal/data/repos/jobs"
	"github.com/yungbote/keyresult-tracker/internal/data/repos/progress"
	"github.com/yungbote/keyresult-tracker/internal/platform/logger"
)

type ProgressRecordRepo = progress.RecordRepo
type TrendSnapshotRepo = progress.TrendRepo
type JobRunRepo = jobs.JobRunRepo

type RecordFilter = progress.RecordFilter
type Page = progress.Page

func NewProgressRecordRepo(db *gorm.DB, baseLog *logger.Logger) ProgressRecordRepo {
	return progress.NewRecordRepo(db, baseLog)
}
func NewTrendSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) TrendSnapshotRepo {
	return progress.NewTrendRepo(db, baseLog)
}
func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
