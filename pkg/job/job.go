package job

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// New creates a new Job for a connection.
func New(parentCtx context.Context, cfg Config) *Job {
	jobID := cfg.ID
	if jobID == "" {
		jobID = uuid.New().String()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job_id", jobID))

	ctx, cancel := parentCtx, context.CancelFunc(func() {})
	if cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(parentCtx, cfg.Timeout)
	}

	j := &Job{
		ID:      jobID,
		Remote:  cfg.Remote,
		Context: NewJobContext(ctx, logger),
		logger:  logger,
		cancel:  cancel,
	}
	j.Context.OnShutdown(func(string) { cancel() })

	logger.Debug("Created new job",
		slog.String("remote", cfg.Remote),
		slog.Duration("timeout", cfg.Timeout))
	return j
}

// Logger returns the job-scoped logger.
func (j *Job) Logger() *slog.Logger {
	return j.logger
}

// Shutdown gracefully shuts down the job with the given reason.
func (j *Job) Shutdown(reason string) {
	j.Context.Shutdown(reason)
}

// Wait blocks until the job context is cancelled.
// Returns the context error (context.Canceled or context.DeadlineExceeded).
func (j *Job) Wait() error {
	<-j.Context.Done()
	return j.Context.Err()
}

// IsActive returns true if the job is still running (not shut down).
func (j *Job) IsActive() bool {
	return !j.Context.IsShutdown() && j.Context.Err() == nil
}

// String returns a string representation of the job for logging.
func (j *Job) String() string {
	status := "active"
	if !j.IsActive() {
		status = "shutdown"
	}
	return fmt.Sprintf("Job{ID: %s, Remote: %s, Status: %s}", j.ID, j.Remote, status)
}
