// Package memory provides the in-memory job store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/siteintel/analyzer/internal/analysis"
)

// JobStore keeps every job in memory. Mutations run under the store
// lock, so a reader never observes a half-applied transition, and a job
// that reached a terminal status cannot leave it.
type JobStore struct {
	mu        sync.RWMutex
	jobs      map[string]analysis.Job
	clock     analysis.Clock
	retention time.Duration
	maxJobs   int
}

// Options tune eviction.
type Options struct {
	// Retention is how long terminal jobs stay queryable.
	Retention time.Duration
	// MaxJobs bounds the total number of stored jobs.
	MaxJobs int
}

// NewJobStore constructs a JobStore.
func NewJobStore(clock analysis.Clock, opts Options) *JobStore {
	if opts.Retention <= 0 {
		opts.Retention = time.Hour
	}
	if opts.MaxJobs <= 0 {
		opts.MaxJobs = 500
	}
	return &JobStore{
		jobs:      make(map[string]analysis.Job),
		clock:     clock,
		retention: opts.Retention,
		maxJobs:   opts.MaxJobs,
	}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job analysis.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return analysis.ErrJobExists
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// GetJob fetches a deep copy of a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (analysis.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return analysis.Job{}, analysis.ErrJobNotFound
	}
	return job.Clone(), nil
}

// UpdateJob applies mutate to the stored job atomically. Updates to a
// job already in a terminal status are rejected. Started and Finished
// timestamps are maintained here so callers cannot forget them.
func (s *JobStore) UpdateJob(_ context.Context, jobID string, mutate func(*analysis.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return analysis.ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return analysis.ErrJobTerminal
	}

	mutate(&job)

	now := s.clock.Now()
	if job.Status == analysis.JobStatusRunning && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if job.Status.IsTerminal() && job.Finished == nil {
		job.Finished = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// ListJobIDs returns all stored job IDs sorted by submission time,
// newest first.
func (s *JobStore) ListJobIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type entry struct {
		id        string
		submitted time.Time
	}
	entries := make([]entry, 0, len(s.jobs))
	for id, job := range s.jobs {
		entries = append(entries, entry{id: id, submitted: job.Submitted})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].submitted.Equal(entries[j].submitted) {
			return entries[i].id < entries[j].id
		}
		return entries[i].submitted.After(entries[j].submitted)
	})
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids, nil
}

// Evict removes terminal jobs past retention, then trims the oldest
// terminal jobs while the store exceeds MaxJobs. Queued and running
// jobs are never evicted. It returns how many jobs were removed.
func (s *JobStore) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if !job.Status.IsTerminal() || job.Finished == nil {
			continue
		}
		if now.Sub(*job.Finished) > s.retention {
			delete(s.jobs, id)
			removed++
		}
	}

	if len(s.jobs) <= s.maxJobs {
		return removed
	}

	type entry struct {
		id       string
		finished time.Time
	}
	var terminal []entry
	for id, job := range s.jobs {
		if job.Status.IsTerminal() && job.Finished != nil {
			terminal = append(terminal, entry{id: id, finished: *job.Finished})
		}
	}
	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].finished.Before(terminal[j].finished)
	})
	for _, e := range terminal {
		if len(s.jobs) <= s.maxJobs {
			break
		}
		delete(s.jobs, e.id)
		removed++
	}
	return removed
}

// Len reports how many jobs are stored.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Janitor runs Evict on the given interval until ctx is canceled.
func (s *JobStore) Janitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Evict(s.clock.Now())
		}
	}
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
