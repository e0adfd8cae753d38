// Package cron schedules recurring chat announcements.
package cron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"twitchbot/pkg/chat"
	"twitchbot/pkg/fileutil"
	"twitchbot/pkg/logger"
)

// ErrJobNotFound is returned for an unknown job ID.
var ErrJobNotFound = errors.New("timer not found")

// Job is one scheduled announcement.
type Job struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Schedule    string    `json:"schedule"`          // standard cron spec or @every
	Channel     string    `json:"channel,omitempty"` // empty means the first joined channel
	Text        string    `json:"text"`
	Action      bool      `json:"action,omitempty"` // send as /me
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	LastRun     time.Time `json:"last_run"`
	NextRun     time.Time `json:"next_run"`
	RunCount    int       `json:"run_count"`
	LastError   string    `json:"last_error"`
	LastSuccess bool      `json:"last_success"`
}

// Spec describes a new job.
type Spec struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	Action   bool   `json:"action"`
}

// Manager runs announcement jobs against a chat transport.
type Manager struct {
	log       *logger.Logger
	transport chat.Transport
	jobsFile  string

	scheduler *cron.Cron
	jobs      map[string]*Job
	entries   map[string]cron.EntryID
	mu        sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a manager persisting jobs to jobsFile. An empty jobsFile
// keeps jobs in memory only.
func New(log *logger.Logger, transport chat.Transport, jobsFile string) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		log:       log.Module("timers"),
		transport: transport,
		jobsFile:  jobsFile,
		scheduler: cron.New(),
		jobs:      make(map[string]*Job),
		entries:   make(map[string]cron.EntryID),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start loads persisted jobs and starts the scheduler.
func (m *Manager) Start() error {
	if err := m.loadJobs(); err != nil {
		m.log.Warn("Failed to load timers", zap.Error(err))
	}

	m.mu.Lock()
	for _, job := range m.jobs {
		if !job.Enabled {
			continue
		}
		if err := m.scheduleJob(job); err != nil {
			m.log.Error("Failed to schedule timer",
				zap.String("job_id", job.ID),
				zap.Error(err))
		}
	}
	count := len(m.entries)
	m.mu.Unlock()

	m.scheduler.Start()
	m.log.Info("Timers started", zap.Int("scheduled", count))
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (m *Manager) Stop() error {
	ctx := m.scheduler.Stop()
	m.cancel()
	<-ctx.Done()

	m.log.Info("Timers stopped")
	return nil
}

// AddJob validates spec and schedules it.
func (m *Manager) AddJob(spec Spec) (*Job, error) {
	if strings.TrimSpace(spec.Text) == "" {
		return nil, fmt.Errorf("timer text is required")
	}
	if _, err := cron.ParseStandard(spec.Schedule); err != nil {
		return nil, fmt.Errorf("invalid cron schedule: %w", err)
	}

	name := strings.TrimSpace(spec.Name)
	id := "timer_" + uuid.NewString()[:8]
	if name == "" {
		name = id
	}

	job := &Job{
		ID:        id,
		Name:      name,
		Schedule:  spec.Schedule,
		Channel:   spec.Channel,
		Text:      spec.Text,
		Action:    spec.Action,
		Enabled:   true,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	err := m.scheduleJob(job)
	jobCopy := *job
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("scheduling timer: %w", err)
	}

	m.persist()
	m.log.Info("Added timer",
		zap.String("job_id", job.ID),
		zap.String("name", name),
		zap.String("schedule", spec.Schedule))

	return &jobCopy, nil
}

// RemoveJob unschedules and deletes a job.
func (m *Manager) RemoveJob(jobID string) error {
	m.mu.Lock()
	job, exists := m.jobs[jobID]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	m.unscheduleJob(jobID)
	delete(m.jobs, jobID)
	m.mu.Unlock()

	m.persist()
	m.log.Info("Removed timer", zap.String("job_id", jobID), zap.String("name", job.Name))
	return nil
}

// EnableJob schedules a disabled job.
func (m *Manager) EnableJob(jobID string) error {
	return m.setEnabled(jobID, true)
}

// DisableJob unschedules a job without deleting it.
func (m *Manager) DisableJob(jobID string) error {
	return m.setEnabled(jobID, false)
}

func (m *Manager) setEnabled(jobID string, enabled bool) error {
	m.mu.Lock()
	job, exists := m.jobs[jobID]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.Enabled == enabled {
		m.mu.Unlock()
		return nil
	}

	job.Enabled = enabled
	if enabled {
		if err := m.scheduleJob(job); err != nil {
			job.Enabled = false
			m.mu.Unlock()
			return fmt.Errorf("scheduling timer: %w", err)
		}
	} else {
		m.unscheduleJob(jobID)
		job.NextRun = time.Time{}
	}
	m.mu.Unlock()

	m.persist()
	m.log.Info("Timer toggled", zap.String("job_id", jobID), zap.Bool("enabled", enabled))
	return nil
}

// ListJobs returns copies of all jobs ordered by creation time.
func (m *Manager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobCopy := *job
		jobs = append(jobs, &jobCopy)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

// GetJob returns a copy of one job.
func (m *Manager) GetJob(jobID string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	jobCopy := *job
	return &jobCopy, nil
}

// RunJob sends a job's announcement immediately, outside its schedule.
func (m *Manager) RunJob(jobID string) error {
	m.mu.RLock()
	_, exists := m.jobs[jobID]
	m.mu.RUnlock()
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return m.executeJob(jobID)
}

// scheduleJob adds job to the scheduler. Caller holds m.mu.
func (m *Manager) scheduleJob(job *Job) error {
	m.unscheduleJob(job.ID)

	jobID := job.ID
	entryID, err := m.scheduler.AddFunc(job.Schedule, func() {
		if err := m.executeJob(jobID); err != nil {
			m.log.Warn("Timer run failed", zap.String("job_id", jobID), zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	m.entries[job.ID] = entryID
	job.NextRun = m.scheduler.Entry(entryID).Next
	return nil
}

// unscheduleJob removes a job's entry. Caller holds m.mu.
func (m *Manager) unscheduleJob(jobID string) {
	if entryID, exists := m.entries[jobID]; exists {
		m.scheduler.Remove(entryID)
		delete(m.entries, jobID)
	}
}

func (m *Manager) executeJob(jobID string) error {
	m.mu.RLock()
	job, exists := m.jobs[jobID]
	if !exists {
		m.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	channel, text, action := job.Channel, job.Text, job.Action
	m.mu.RUnlock()

	if channel == "" {
		if joined := m.transport.JoinedChannels(); len(joined) > 0 {
			channel = joined[0]
		}
	}

	ctx, cancel := context.WithTimeout(m.ctx, 30*time.Second)
	defer cancel()

	var err error
	switch {
	case channel == "":
		err = errors.New("no channel to announce in")
	case action:
		err = m.transport.SendAction(ctx, channel, text)
	default:
		err = m.transport.SendMessage(ctx, channel, text)
	}

	m.mu.Lock()
	if job, exists := m.jobs[jobID]; exists {
		job.LastRun = time.Now()
		job.RunCount++
		job.LastSuccess = err == nil
		job.LastError = ""
		if err != nil {
			job.LastError = err.Error()
		}
		if entryID, scheduled := m.entries[jobID]; scheduled {
			job.NextRun = m.scheduler.Entry(entryID).Next
		}
	}
	m.mu.Unlock()

	m.persist()

	if err != nil {
		return err
	}
	m.log.Debug("Timer sent", zap.String("job_id", jobID), zap.String("channel", channel))
	return nil
}

func (m *Manager) loadJobs() error {
	if m.jobsFile == "" {
		return nil
	}

	data, err := os.ReadFile(m.jobsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var jobs []*Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return fmt.Errorf("unmarshaling timers: %w", err)
	}

	m.mu.Lock()
	for _, job := range jobs {
		m.jobs[job.ID] = job
	}
	m.mu.Unlock()

	m.log.Info("Loaded timers", zap.Int("count", len(jobs)))
	return nil
}

func (m *Manager) persist() {
	if m.jobsFile == "" {
		return
	}
	if err := fileutil.WriteJSONAtomic(m.jobsFile, m.ListJobs(), 0644); err != nil {
		m.log.Error("Failed to save timers", zap.Error(err))
	}
}
