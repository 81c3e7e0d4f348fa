package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/keyresult-tracker/internal/data/repos"
	"github.com/yungbote/keyresult-tracker/internal/platform/logger"
)

type Repos struct {
	Records repos.ProgressRecordRepo
	Trends  repos.TrendSnapshotRepo
	JobRuns repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Records: repos.NewProgressRecordRepo(db, log),
		Trends:  repos.NewTrendSnapshotRepo(db, log),
		JobRuns: repos.NewJobRunRepo(db, log),
	}
}
