// Package job manages the lifecycle of one gateway connection: a cancellable
// context plus shutdown hooks that release per-connection resources exactly
// once, whichever exit path triggers the shutdown.
package job

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job represents the work bound to a single client connection.
type Job struct {
	// ID is the unique identifier for this job
	ID string

	// Remote is the client address, for logging
	Remote string

	// Context provides lifecycle management and shutdown coordination
	Context *JobContext

	logger *slog.Logger
	cancel context.CancelFunc
}

// JobContext manages the lifecycle and cleanup of a job.
type JobContext struct {
	// Ctx is the context that gets cancelled when the job ends
	Ctx context.Context

	cancel        context.CancelFunc
	logger        *slog.Logger
	shutdownMu    sync.Mutex
	shutdownHooks []func(string)
	shutdown      bool
	reason        string
}

// Config contains configuration options for creating a new Job.
type Config struct {
	// ID for the job (if empty, one will be generated)
	ID string

	// Remote is the client address
	Remote string

	// Timeout bounds the connection lifetime; zero means no limit
	Timeout time.Duration

	Logger *slog.Logger
}

// ShutdownHookTimeout bounds how long Shutdown waits for hooks.
const ShutdownHookTimeout = 5 * time.Second
