package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

// Job interface that all scheduled jobs must implement
type Job interface {
	Run(ctx context.Context) error
}

// Schedule describes when a job runs: a fixed interval, or a five-field cron
// expression when Cron is set
type Schedule struct {
	Interval time.Duration
	Cron     string
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCron reports whether expr is a valid five-field cron expression
func ValidateCron(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

func (s Schedule) definition() (gocron.JobDefinition, error) {
	if s.Cron != "" {
		if err := ValidateCron(s.Cron); err != nil {
			return nil, err
		}
		return gocron.CronJob(s.Cron, false), nil
	}
	if s.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", s.Interval)
	}
	return gocron.DurationJob(s.Interval), nil
}

type registeredJob struct {
	job      Job
	schedule Schedule
	handle   gocron.Job
}

// JobScheduler runs registered jobs on gocron. Overlapping runs of the same job
// are skipped and rescheduled.
type JobScheduler struct {
	scheduler gocron.Scheduler
	jobs      map[string]*registeredJob
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	running   bool
	stopped   bool
}

// NewJobScheduler creates a scheduler on the real clock
func NewJobScheduler() (*JobScheduler, error) {
	return NewJobSchedulerWithClock(clockwork.NewRealClock())
}

// NewJobSchedulerWithClock creates a scheduler driven by clock
func NewJobSchedulerWithClock(clock clockwork.Clock) (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithClock(clock),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		scheduler: scheduler,
		jobs:      make(map[string]*registeredJob),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Register adds a job to the scheduler
func (s *JobScheduler) Register(name string, schedule Schedule, job Job) error {
	if name == "" {
		return errors.New("job name is required")
	}
	if job == nil {
		return fmt.Errorf("job %q is nil", name)
	}

	definition, err := schedule.definition()
	if err != nil {
		return fmt.Errorf("job %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("job %q: scheduler is stopped", name)
	}
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q is already registered", name)
	}

	handle, err := s.scheduler.NewJob(
		definition,
		gocron.NewTask(func() {
			s.runJob(name, job)
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %q: %w", name, err)
	}

	s.jobs[name] = &registeredJob{job: job, schedule: schedule, handle: handle}
	log.Printf("✅ [SCHEDULER] Registered job: %s", name)
	return nil
}

// Start begins running all registered jobs
func (s *JobScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.stopped {
		return
	}

	s.running = true
	s.scheduler.Start()
	log.Printf("🚀 [SCHEDULER] Starting job scheduler with %d jobs", len(s.jobs))
}

// runJob executes a scheduled run
func (s *JobScheduler) runJob(name string, job Job) {
	log.Printf("▶️  [SCHEDULER] Running job: %s", name)
	startTime := time.Now()

	if err := job.Run(s.ctx); err != nil {
		log.Printf("❌ [SCHEDULER] Job '%s' failed: %v", name, err)
		return
	}

	log.Printf("✅ [SCHEDULER] Job '%s' completed in %v", name, time.Since(startTime))
}

// Trigger runs a job immediately on the calling goroutine and returns its error
func (s *JobScheduler) Trigger(name string) error {
	s.mu.Lock()
	registered, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("job %q not found", name)
	}

	log.Printf("🚀 [SCHEDULER] Running job '%s' immediately", name)
	return registered.job.Run(s.ctx)
}

// Stop cancels in-flight runs and waits for them to return. Safe to call twice.
func (s *JobScheduler) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.running = false
	s.mu.Unlock()

	log.Println("🛑 [SCHEDULER] Stopping job scheduler...")
	s.cancel()
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}

	log.Println("✅ [SCHEDULER] Job scheduler stopped")
	return nil
}

// GetStatus returns the status of all jobs, ordered by name
func (s *JobScheduler) GetStatus() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := make([]JobStatus, 0, len(s.jobs))
	for name, registered := range s.jobs {
		js := JobStatus{
			Name:     name,
			Interval: registered.schedule.Interval.String(),
			Cron:     registered.schedule.Cron,
			Running:  s.running,
		}
		if registered.schedule.Cron != "" {
			js.Interval = ""
		}
		if s.running {
			if next, err := registered.handle.NextRun(); err == nil && !next.IsZero() {
				js.NextRunTime = &next
			}
		}
		status = append(status, js)
	}

	sort.Slice(status, func(i, j int) bool { return status[i].Name < status[j].Name })
	return status
}

// JobStatus represents the status of a job
type JobStatus struct {
	Name        string     `json:"name"`
	Interval    string     `json:"interval,omitempty"`
	Cron        string     `json:"cron,omitempty"`
	Running     bool       `json:"running"`
	NextRunTime *time.Time `json:"next_run_time,omitempty"`
}
