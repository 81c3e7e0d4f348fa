package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/keyresult-tracker/internal/domain/jobs"
	"github.com/yungbote/keyresult-tracker/internal/domain/progress"
)

// indexes gorm tags cannot express. Both dialects accept this syntax.
var indexStatements = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_krp_latest
		ON key_result_progress (key_result_id)
		WHERE is_latest = TRUE AND deleted_at IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_krp_version
		ON key_result_progress (key_result_id, version)`,
	`CREATE INDEX IF NOT EXISTS idx_krp_recorded
		ON key_result_progress (key_result_id, recorded_at)`,
	`CREATE INDEX IF NOT EXISTS idx_krp_status
		ON key_result_progress (key_result_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_job_run_claim
		ON job_run (status, run_at)`,
}

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&progress.Record{},
		&progress.TrendSnapshot{},
		&jobs.JobRun{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	for _, stmt := range indexStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
