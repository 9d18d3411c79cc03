// Package scheduler runs background linkage jobs on a small worker pool.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobStatus represents the status of a scheduled job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// JobKind names the work a job performs
type JobKind string

// JobKindPromoteContacts promotes every prospect holding a policy to client
const JobKindPromoteContacts JobKind = "PROMOTE_CONTACTS"

// Job is one execution of a JobKind, including its retries
type Job struct {
	ID          uuid.UUID  `json:"id"`
	Kind        JobKind    `json:"kind"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
}

// NewJob creates a pending job
func NewJob(kind JobKind, maxRetries int) *Job {
	return &Job{
		ID:         uuid.New(),
		Kind:       kind,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
	}
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.CompletedAt = nil
	j.Error = ""
}

// Complete marks the job as successful
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
}

// Fail marks the job as failed
func (j *Job) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if the job should be retried
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

func (j *Job) prepareRetry() {
	j.RetryCount++
	j.Status = JobStatusPending
}

// JobExecutor performs the work of one job kind
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// Config holds scheduler configuration
type Config struct {
	MaxConcurrentJobs int
	QueueSize         int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrentJobs: 1,
		QueueSize:         16,
		JobTimeout:        5 * time.Minute,
		RetryAttempts:     3,
		RetryDelay:        30 * time.Second,
	}
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithLogger sets the scheduler logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// Scheduler runs submitted jobs on a worker pool. At most one job per kind
// is queued or running at any time.
type Scheduler struct {
	config    Config
	executors map[JobKind]JobExecutor
	logger    *zap.Logger

	jobs   chan *Job
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	isRunning bool
	inFlight  map[JobKind]bool
	lastRun   map[JobKind]Job
	timers    map[*time.Timer]struct{}
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config Config, opts ...Option) *Scheduler {
	if config.MaxConcurrentJobs <= 0 {
		config.MaxConcurrentJobs = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = DefaultConfig().JobTimeout
	}

	s := &Scheduler{
		config:    config,
		executors: make(map[JobKind]JobExecutor),
		logger:    zap.NewNop(),
		jobs:      make(chan *Job, config.QueueSize),
		inFlight:  make(map[JobKind]bool),
		lastRun:   make(map[JobKind]Job),
		timers:    make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register binds an executor to a job kind. Call before Start.
func (s *Scheduler) Register(kind JobKind, executor JobExecutor) {
	s.executors[kind] = executor
}

// Start starts the worker pool
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Job scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs, drops pending retries and waits for the
// workers to exit
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	for t := range s.timers {
		t.Stop()
	}
	clear(s.timers)
	clear(s.inFlight)
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Job scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Job scheduler stop timed out")
		return ctx.Err()
	}
}

// Submit queues a job of the given kind and returns its ID
func (s *Scheduler) Submit(kind JobKind) (uuid.UUID, error) {
	if _, ok := s.executors[kind]; !ok {
		return uuid.Nil, ErrUnknownJobKind
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return uuid.Nil, ErrSchedulerNotRunning
	}
	if s.inFlight[kind] {
		return uuid.Nil, ErrJobInFlight
	}

	job := NewJob(kind, s.config.RetryAttempts)
	select {
	case s.jobs <- job:
	default:
		return uuid.Nil, ErrJobQueueFull
	}
	s.inFlight[kind] = true
	s.lastRun[kind] = *job

	s.logger.Debug("Job submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(kind)),
	)
	return job.ID, nil
}

// LastRun returns a snapshot of the most recent job of the given kind
func (s *Scheduler) LastRun(kind JobKind) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.lastRun[kind]
	return job, ok
}

// InFlight reports whether a job of the given kind is queued or running
func (s *Scheduler) InFlight(kind JobKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[kind]
}

func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.jobs:
			s.processJob(ctx, job, workerID)
		}
	}
}

func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	job.Start()
	s.record(job, false)

	fields := []zap.Field{
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(job.Kind)),
		zap.Int("attempt", job.RetryCount+1),
	}
	s.logger.Info("Processing job", fields...)

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	err := s.executors[job.Kind].Execute(jobCtx, job)
	cancel()

	if err == nil {
		job.Complete()
		s.record(job, true)
		s.logger.Info("Job completed successfully", fields...)
		return
	}

	job.Fail(err.Error())
	s.logger.Error("Job failed", append(fields, zap.Error(err))...)

	if job.ShouldRetry() && ctx.Err() == nil {
		job.prepareRetry()
		s.record(job, false)
		s.retryAfter(job, s.config.RetryDelay)
		return
	}
	s.record(job, true)
}

// record stores a snapshot of job; done releases its kind for new submissions
func (s *Scheduler) record(job *Job, done bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun[job.Kind] = *job
	if done {
		delete(s.inFlight, job.Kind)
	}
}

func (s *Scheduler) retryAfter(job *Job, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	s.logger.Info("Job scheduled for retry",
		zap.String("job_id", job.ID.String()),
		zap.Int("retry_count", job.RetryCount),
		zap.Int("max_retries", job.MaxRetries),
		zap.Duration("delay", delay),
	)

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(s.timers, timer)
		if !s.isRunning {
			return
		}
		select {
		case s.jobs <- job:
		default:
			delete(s.inFlight, job.Kind)
			s.logger.Warn("Failed to re-queue job for retry",
				zap.String("job_id", job.ID.String()),
			)
		}
	})
	s.timers[timer] = struct{}{}
}
