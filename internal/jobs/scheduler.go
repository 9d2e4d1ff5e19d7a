package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Job is a unit of scheduled background work
type Job interface {
	Run(ctx context.Context) error
}

// JobScheduler manages and runs scheduled jobs
type JobScheduler struct {
	scheduler gocron.Scheduler
	jobs      map[string]Job
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler() (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &JobScheduler{
		scheduler: scheduler,
		jobs:      make(map[string]Job),
	}, nil
}

// RegisterDaily adds a job that runs once a day at the given UTC hour
func (s *JobScheduler) RegisterDaily(name string, hour int, job Job) error {
	_, err := s.scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(hour), 0, 0))),
		gocron.NewTask(func() { s.runJob(name, job) }),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", name, err)
	}

	s.jobs[name] = job
	log.Printf("✅ [SCHEDULER] Registered daily job: %s (%02d:00 UTC)", name, hour)
	return nil
}

// runJob executes a job with logging around it
func (s *JobScheduler) runJob(name string, job Job) {
	log.Printf("▶️  [SCHEDULER] Running job: %s", name)
	startTime := time.Now()

	if err := job.Run(context.Background()); err != nil {
		log.Printf("❌ [SCHEDULER] Job '%s' failed: %v", name, err)
		return
	}

	log.Printf("✅ [SCHEDULER] Job '%s' completed in %v", name, time.Since(startTime))
}

// Start begins running all registered jobs
func (s *JobScheduler) Start() {
	log.Printf("🚀 [SCHEDULER] Starting job scheduler with %d jobs", len(s.jobs))
	s.scheduler.Start()
}

// RunNow immediately runs a specific job (useful for testing)
func (s *JobScheduler) RunNow(ctx context.Context, name string) error {
	job, exists := s.jobs[name]
	if !exists {
		return fmt.Errorf("job %s not found", name)
	}
	return job.Run(ctx)
}

// Stop gracefully stops all jobs
func (s *JobScheduler) Stop() {
	if err := s.scheduler.Shutdown(); err != nil {
		log.Printf("⚠️ [SCHEDULER] Shutdown error: %v", err)
		return
	}
	log.Println("✅ [SCHEDULER] Job scheduler stopped")
}
