// Package cron schedules reminders and recurring agent tasks. Jobs are
// registered through the cron tool, persisted as JSON in the data dir,
// and fired through a handler that runs the job message through the
// agent.
package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	cronv3 "github.com/robfig/cron/v3"

	"github.com/okapi-bot/okapi/internal/bus"
)

// jobTimeout bounds a single job execution.
const jobTimeout = 5 * time.Minute

// Job is a scheduled task. Exactly one of EverySeconds, CronExpr, At is
// set, matching the cron tool's add actions.
type Job struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`

	EverySeconds int    `json:"every_seconds,omitempty"`
	CronExpr     string `json:"cron_expr,omitempty"`
	At           string `json:"at,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	RunCount  int        `json:"run_count"`
}

// ScheduleText renders the job's schedule for listings.
func (j *Job) ScheduleText() string {
	switch {
	case j.EverySeconds > 0:
		return fmt.Sprintf("every %ds", j.EverySeconds)
	case j.CronExpr != "":
		return "cron " + j.CronExpr
	case j.At != "":
		return "at " + j.At
	}
	return "unscheduled"
}

// Handler runs a fired job's message through the agent and returns the
// reply.
type Handler func(ctx context.Context, job *Job) (string, error)

// Service owns the job table and the underlying cron runner. It
// implements the callback interface the cron tool needs.
type Service struct {
	Bus     *bus.MessageBus
	handler Handler
	logger  *slog.Logger

	jobsFile string
	runner   *cronv3.Cron
	ctx      context.Context
	cancel   context.CancelFunc

	mu      sync.Mutex
	jobs    map[string]*Job
	entries map[string]cronv3.EntryID
	running map[string]bool
}

// NewService creates a cron service persisting jobs under dataDir.
func NewService(dataDir string, msgBus *bus.MessageBus, handler Handler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Bus:      msgBus,
		handler:  handler,
		logger:   logger,
		jobsFile: filepath.Join(dataDir, "cron_jobs.json"),
		jobs:     make(map[string]*Job),
		entries:  make(map[string]cronv3.EntryID),
		running:  make(map[string]bool),
	}
}

// Start loads persisted jobs and begins firing them.
func (s *Service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.runner = cronv3.New()

	s.mu.Lock()
	if err := s.loadLocked(); err != nil {
		s.logger.Warn("failed to load cron jobs", "error", err)
	}
	for _, job := range s.jobs {
		if err := s.scheduleLocked(job); err != nil {
			s.logger.Warn("skipping job with invalid schedule",
				"id", job.ID, "schedule", job.ScheduleText(), "error", err)
		}
	}
	count := len(s.jobs)
	s.mu.Unlock()

	s.runner.Start()
	s.logger.Info("cron service started", "jobs", count)
	return nil
}

// Stop shuts the runner down, waiting briefly for in-flight jobs.
func (s *Service) Stop() {
	if s.runner != nil {
		done := s.runner.Stop()
		select {
		case <-done.Done():
		case <-time.After(10 * time.Second):
			s.logger.Warn("cron stop timed out")
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
}

// AddJob registers a new job. Exactly one of everySeconds, cronExpr, at
// must be provided. Returns a human-readable confirmation for the model.
func (s *Service) AddJob(name, message, channel, chatID string, everySeconds int, cronExpr string, at string) (string, error) {
	if message == "" {
		return "", fmt.Errorf("job message is required")
	}
	set := 0
	if everySeconds > 0 {
		set++
	}
	if cronExpr != "" {
		set++
	}
	if at != "" {
		set++
	}
	if set != 1 {
		return "", fmt.Errorf("exactly one of every_seconds, cron, at must be set")
	}

	job := &Job{
		ID:           uuid.NewString()[:8],
		Name:         name,
		Message:      message,
		Channel:      channel,
		ChatID:       chatID,
		EverySeconds: everySeconds,
		CronExpr:     cronExpr,
		At:           at,
		CreatedAt:    time.Now(),
	}
	if job.Name == "" {
		job.Name = job.ID
	}

	s.mu.Lock()
	if err := s.scheduleLocked(job); err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("invalid schedule: %w", err)
	}
	s.jobs[job.ID] = job
	s.saveLocked()
	s.mu.Unlock()

	s.logger.Info("cron job added", "id", job.ID, "name", job.Name, "schedule", job.ScheduleText())
	return fmt.Sprintf("Scheduled job %q (id: %s, %s).", job.Name, job.ID, job.ScheduleText()), nil
}

// ListJobs renders all jobs as text for the model.
func (s *Service) ListJobs() (string, error) {
	s.mu.Lock()
	jobs := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	if len(jobs) == 0 {
		return "No scheduled jobs.", nil
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.Before(jobs[k].CreatedAt) })

	var b strings.Builder
	fmt.Fprintf(&b, "%d scheduled job(s):\n", len(jobs))
	for _, j := range jobs {
		fmt.Fprintf(&b, "- [%s] %q %s -> %s:%s (runs: %d)", j.ID, j.Name, j.ScheduleText(), j.Channel, j.ChatID, j.RunCount)
		if j.LastError != "" {
			fmt.Fprintf(&b, " last error: %s", j.LastError)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// RemoveJob deletes a job by ID.
func (s *Service) RemoveJob(jobID string) (string, error) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("job %q not found", jobID)
	}
	s.removeLocked(jobID)
	s.mu.Unlock()

	s.logger.Info("cron job removed", "id", jobID)
	return fmt.Sprintf("Removed job %q (id: %s).", job.Name, jobID), nil
}

// Jobs returns a snapshot of all jobs, oldest first.
func (s *Service) Jobs() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.Before(jobs[k].CreatedAt) })
	return jobs
}

// scheduleLocked registers a job with the runner. Caller holds s.mu.
func (s *Service) scheduleLocked(job *Job) error {
	if s.runner == nil {
		// Not started yet; Start will schedule loaded jobs.
		return nil
	}

	if job.At != "" {
		target, err := parseOneShotTime(job.At)
		if err != nil {
			return err
		}
		go s.runOneShot(job, target)
		return nil
	}

	expr := job.CronExpr
	if job.EverySeconds > 0 {
		expr = fmt.Sprintf("@every %ds", job.EverySeconds)
	}
	id := job.ID
	entryID, err := s.runner.AddFunc(expr, func() { s.fire(id) })
	if err != nil {
		return err
	}
	s.entries[job.ID] = entryID
	return nil
}

// removeLocked drops a job from the table and runner. Caller holds s.mu.
func (s *Service) removeLocked(jobID string) {
	if entryID, ok := s.entries[jobID]; ok {
		s.runner.Remove(entryID)
		delete(s.entries, jobID)
	}
	delete(s.jobs, jobID)
	s.saveLocked()
}

// runOneShot waits until target and fires the job once, then removes it.
func (s *Service) runOneShot(job *Job, target time.Time) {
	delay := time.Until(target)
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			return
		}
	}

	s.mu.Lock()
	_, exists := s.jobs[job.ID]
	s.mu.Unlock()
	if !exists {
		return
	}

	s.fire(job.ID)

	s.mu.Lock()
	s.removeLocked(job.ID)
	s.mu.Unlock()
}

// fire executes one job run: handler, bookkeeping, outbound reply.
func (s *Service) fire(jobID string) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok || s.running[jobID] {
		s.mu.Unlock()
		return
	}
	s.running[jobID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, jobID)
		s.mu.Unlock()
		if r := recover(); r != nil {
			s.logger.Error("cron job panicked", "id", jobID, "panic", r)
		}
	}()

	s.logger.Info("cron job firing", "id", job.ID, "name", job.Name)

	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()
	reply, err := s.handler(ctx, job)

	now := time.Now()
	s.mu.Lock()
	job.LastRunAt = &now
	job.RunCount++
	if err != nil {
		job.LastError = err.Error()
	} else {
		job.LastError = ""
	}
	s.saveLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("cron job failed", "id", job.ID, "error", err)
		return
	}
	if reply != "" && job.Channel != "" && job.ChatID != "" {
		s.Bus.PublishOutbound(bus.OutboundMessage{
			Channel: job.Channel,
			ChatID:  job.ChatID,
			Content: reply,
		})
	}
}

// saveLocked persists the job table. Caller holds s.mu.
func (s *Service) saveLocked() {
	jobs := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.Before(jobs[k].CreatedAt) })

	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		s.logger.Error("failed to marshal cron jobs", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.jobsFile), 0o755); err != nil {
		s.logger.Error("failed to create data dir", "error", err)
		return
	}
	if err := os.WriteFile(s.jobsFile, data, 0o644); err != nil {
		s.logger.Error("failed to save cron jobs", "error", err)
	}
}

// loadLocked reads the persisted job table. Caller holds s.mu.
func (s *Service) loadLocked() error {
	data, err := os.ReadFile(s.jobsFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var jobs []*Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return fmt.Errorf("parse %s: %w", s.jobsFile, err)
	}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return nil
}

// parseOneShotTime accepts a relative duration ("5m", "1h30m"), RFC3339,
// "2006-01-02 15:04", or "15:04" (today, or tomorrow if already past).
func parseOneShotTime(timeStr string) (time.Time, error) {
	now := time.Now()

	if d, err := time.ParseDuration(timeStr); err == nil && d > 0 {
		return now.Add(d), nil
	}
	if t, err := time.Parse(time.RFC3339, timeStr); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02 15:04", timeStr); err == nil {
		return t, nil
	}
	if t, err := time.Parse("15:04", timeStr); err == nil {
		target := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
		if target.Before(now) {
			target = target.Add(24 * time.Hour)
		}
		return target, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time format: %s", timeStr)
}
