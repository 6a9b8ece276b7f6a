// Package cron runs the watchlist: persisted companies re-investigated on a
// cron schedule.
package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Handler runs one job and returns the saved report path.
type Handler func(ctx context.Context, job Job) (string, error)

type Service struct {
	storePath string
	mu        sync.Mutex
	jobs      []Job
	OnJob     Handler
	cron      *rcron.Cron
	entryMap  map[string]rcron.EntryID // job ID -> cron entry ID
	runCtx    context.Context
	cancel    context.CancelFunc
	stopCh    chan struct{}
	log       *slog.Logger
}

func NewService(storePath string) *Service {
	s := &Service{
		storePath: storePath,
		entryMap:  make(map[string]rcron.EntryID),
		log:       slog.Default().With("component", "watch"),
	}
	if err := s.load(); err != nil {
		s.log.Warn("failed to load jobs", "path", storePath, "error", err)
	}
	return s
}

func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	stopCh := make(chan struct{})

	c := rcron.New(
		rcron.WithLogger(cronLogger{s.log}),
		rcron.WithChain(rcron.Recover(cronLogger{s.log}), rcron.SkipIfStillRunning(cronLogger{s.log})),
	)

	s.mu.Lock()
	s.runCtx = runCtx
	s.cancel = cancel
	s.stopCh = stopCh
	s.cron = c
	for i := range s.jobs {
		if s.jobs[i].Enabled {
			s.registerJob(&s.jobs[i])
		}
	}
	count := len(s.jobs)
	s.mu.Unlock()

	c.Start()
	s.log.Info("started", "jobs", count)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stopCh:
			return
		}
	}()

	return nil
}

// registerJob adds job to the scheduler. Callers hold s.mu.
func (s *Service) registerJob(job *Job) {
	jobID := job.ID
	id, err := s.cron.AddFunc(job.Schedule, func() {
		s.fire(jobID)
	})
	if err != nil {
		s.log.Error("failed to register job", "job", job.Name, "schedule", job.Schedule, "error", err)
		return
	}
	s.entryMap[job.ID] = id
}

func (s *Service) unregisterJob(id string) {
	if entryID, ok := s.entryMap[id]; ok {
		if s.cron != nil {
			s.cron.Remove(entryID)
		}
		delete(s.entryMap, id)
	}
}

// fire looks the job up again so edits made after registration are honoured.
func (s *Service) fire(id string) {
	s.mu.Lock()
	ctx := s.runCtx
	var job *Job
	for i := range s.jobs {
		if s.jobs[i].ID == id {
			j := s.jobs[i]
			job = &j
			break
		}
	}
	s.mu.Unlock()
	if job == nil || !job.Enabled || ctx == nil {
		return
	}
	_, _ = s.executeJob(ctx, *job)
}

func (s *Service) executeJob(ctx context.Context, job Job) (string, error) {
	s.log.Info("executing job", "job", job.Name, "id", job.ID, "company", job.Company)

	if s.OnJob == nil {
		s.log.Warn("no OnJob handler set")
		return "", fmt.Errorf("no job handler configured")
	}

	report, err := s.OnJob(ctx, job)

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.jobs {
		if s.jobs[i].ID == job.ID {
			s.jobs[i].State.LastRunAtMs = time.Now().UnixMilli()
			if err != nil {
				s.jobs[i].State.LastStatus = StatusError
				s.jobs[i].State.LastError = err.Error()
				s.log.Error("job failed", "job", job.Name, "error", err)
			} else {
				s.jobs[i].State.LastStatus = StatusOK
				s.jobs[i].State.LastError = ""
				s.jobs[i].State.LastReport = report
				s.log.Info("job finished", "job", job.Name, "report", report)
			}
			break
		}
	}

	if saveErr := s.save(); saveErr != nil {
		s.log.Error("failed to save jobs", "error", saveErr)
	}
	return report, err
}

// RunJob executes a job immediately, outside its schedule.
func (s *Service) RunJob(ctx context.Context, id string) (string, error) {
	job, ok := s.GetJob(id)
	if !ok {
		return "", fmt.Errorf("job %s not found", id)
	}
	return s.executeJob(ctx, job)
}

func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	stopCh := s.stopCh
	c := s.cron
	s.cancel = nil
	s.stopCh = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if stopCh != nil {
		close(stopCh)
	}

	if c != nil {
		stopCtx := c.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
			s.log.Warn("stop timeout waiting for running jobs")
		}
	}
	s.log.Info("stopped")
}

// AddJob validates the schedule and persists a new job.
func (s *Service) AddJob(name, company, ticker, schedule string) (*Job, error) {
	if strings.TrimSpace(company) == "" {
		return nil, fmt.Errorf("company is empty")
	}
	if err := ValidateSchedule(schedule); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job := NewJob(name, company, ticker, schedule)
	s.jobs = append(s.jobs, job)

	if err := s.save(); err != nil {
		s.jobs = s.jobs[:len(s.jobs)-1]
		return nil, fmt.Errorf("save jobs: %w", err)
	}

	if s.cron != nil {
		s.registerJob(&s.jobs[len(s.jobs)-1])
	}

	return &job, nil
}

func (s *Service) RemoveJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, job := range s.jobs {
		if job.ID == id {
			s.unregisterJob(id)
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			_ = s.save()
			return true
		}
	}
	return false
}

func (s *Service) GetJob(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.ID == id {
			return job, true
		}
	}
	return Job{}, false
}

func (s *Service) ListJobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Job, len(s.jobs))
	copy(result, s.jobs)
	return result
}

func (s *Service) EnableJob(id string, enabled bool) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.jobs {
		if s.jobs[i].ID == id {
			s.jobs[i].Enabled = enabled
			if s.cron != nil {
				if enabled {
					if _, ok := s.entryMap[id]; !ok {
						s.registerJob(&s.jobs[i])
					}
				} else {
					s.unregisterJob(id)
				}
			}
			_ = s.save()
			job := s.jobs[i]
			return &job, nil
		}
	}
	return nil, fmt.Errorf("job %s not found", id)
}

func (s *Service) load() error {
	data, err := os.ReadFile(s.storePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, &s.jobs)
}

// save writes the store through a temp file so a crash never leaves it
// half-written.
func (s *Service) save() error {
	dir := filepath.Dir(s.storePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.jobs, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.storePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.storePath)
}

// cronLogger routes robfig/cron's logging into slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
