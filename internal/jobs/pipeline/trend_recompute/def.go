package trend_recompute

import (
	"time"

	progressrepo "github.com/yungbote/keyresult-tracker/internal/data/repos/progress"
	"github.com/yungbote/keyresult-tracker/internal/domain/jobs"
	"github.com/yungbote/keyresult-tracker/internal/platform/logger"
)

type Pipeline struct {
	log     *logger.Logger
	records progressrepo.RecordRepo
	trends  progressrepo.TrendRepo
	now     func() time.Time
}

func New(baseLog *logger.Logger, records progressrepo.RecordRepo, trends progressrepo.TrendRepo) *Pipeline {
	return &Pipeline{
		log:     baseLog.With("job", jobs.JobCalculateTrends),
		records: records,
		trends:  trends,
		now:     time.Now,
	}
}

func (p *Pipeline) Type() string { return jobs.JobCalculateTrends }
