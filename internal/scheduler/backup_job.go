package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/weihanlu/investrack/internal/reliability"
)

// BackupJob runs the nightly database backup upload.
type BackupJob struct {
	backups *reliability.BackupService
	log     zerolog.Logger
}

// NewBackupJob creates the backup job.
func NewBackupJob(backups *reliability.BackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backups: backups,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

// Name implements Job.
func (j *BackupJob) Name() string { return "backup" }

// Run implements Job.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	return j.backups.CreateAndUploadBackup(ctx)
}
