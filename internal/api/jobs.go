package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/khanhnv2901/cmpscan/internal/detect"
	"github.com/khanhnv2901/cmpscan/internal/scanner"
	consts "github.com/khanhnv2901/cmpscan/internal/shared/constants"
	apperrors "github.com/khanhnv2901/cmpscan/internal/shared/errors"
	"go.uber.org/zap"
)

const (
	JobPending = "pending"
	JobRunning = "running"
	JobDone    = "done"
	JobError   = "error"
)

// ErrTooManyJobs is returned when the running-job limit is reached.
var ErrTooManyJobs = errors.New("too many scan jobs in progress")

type Job struct {
	ID         string         `json:"id"`
	URL        string         `json:"url"`
	Status     string         `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Result     *detect.Result `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	Details    string         `json:"details,omitempty"`
}

type JobRequest struct {
	URL string `json:"url"`
}

// JobManager keeps scan jobs in memory and fans updates out to subscribers.
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	subscribers map[chan Job]struct{}
	maxJobs     int // finished jobs beyond this are evicted, oldest first
	logger      *zap.Logger
	done        chan struct{}
	stopOnce    sync.Once
}

func NewJobManager(logger *zap.Logger) *JobManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &JobManager{
		jobs:        make(map[string]*Job),
		subscribers: make(map[chan Job]struct{}),
		maxJobs:     1000,
		logger:      logger,
		done:        make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

func (m *JobManager) CreateJob(url string) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := &Job{
		ID:        generateID("job"),
		URL:       url,
		Status:    JobPending,
		CreatedAt: time.Now(),
	}
	m.jobs[job.ID] = job
	m.broadcast(*job)
	out := *job
	return &out
}

func (m *JobManager) UpdateJob(id string, update func(*Job)) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	update(job)
	m.broadcast(*job)
	out := *job
	return &out
}

func (m *JobManager) GetJob(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if job, ok := m.jobs[id]; ok {
		out := *job
		return &out
	}
	return nil
}

// ListJobs returns up to limit jobs, newest first.
func (m *JobManager) ListJobs(limit int) []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, *job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs
}

func (m *JobManager) Subscribe() (chan Job, func()) {
	ch := make(chan Job, 16)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()
	return ch, func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
}

// broadcast must be called with m.mu held. Slow subscribers miss updates.
func (m *JobManager) broadcast(job Job) {
	for ch := range m.subscribers {
		select {
		case ch <- job:
		default:
			m.logger.Debug("dropped job update for slow subscriber", zap.String("job_id", job.ID))
		}
	}
}

func generateID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(b))
}

func (m *JobManager) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evict()
		case <-m.done:
			return
		}
	}
}

// evict drops the oldest finished jobs until at most maxJobs remain.
func (m *JobManager) evict() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.jobs) <= m.maxJobs {
		return
	}

	type finished struct {
		id   string
		time time.Time
	}
	var candidates []finished
	for id, job := range m.jobs {
		if job.Status != JobDone && job.Status != JobError {
			continue
		}
		t := job.CreatedAt
		if job.FinishedAt != nil {
			t = *job.FinishedAt
		}
		candidates = append(candidates, finished{id: id, time: t})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].time.Before(candidates[j].time)
	})

	toRemove := min(len(m.jobs)-m.maxJobs, len(candidates))
	for i := 0; i < toRemove; i++ {
		delete(m.jobs, candidates[i].id)
	}
}

// SetMaxJobs configures how many jobs are retained in memory.
func (m *JobManager) SetMaxJobs(max int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if max > 0 {
		m.maxJobs = max
	}
}

// Close stops the cleanup loop.
func (m *JobManager) Close() {
	m.stopOnce.Do(func() { close(m.done) })
}

// ScanJobService runs asynchronous scans on top of a JobManager.
type ScanJobService struct {
	manager *JobManager
	scans   ScanService
	timeout time.Duration
	slots   chan struct{}
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewScanJobService bounds running scans to maxRunning and each scan to timeout.
func NewScanJobService(manager *JobManager, scans ScanService, maxRunning int, timeout time.Duration, logger *zap.Logger) *ScanJobService {
	if maxRunning <= 0 {
		maxRunning = 1
	}
	if timeout <= 0 {
		timeout = consts.DefaultJobTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScanJobService{
		manager: manager,
		scans:   scans,
		timeout: timeout,
		slots:   make(chan struct{}, maxRunning),
		logger:  logger,
	}
}

func (s *ScanJobService) StartJob(ctx context.Context, req JobRequest) (*Job, error) {
	target, err := scanner.NormalizeURL(req.URL)
	if err != nil {
		return nil, err
	}

	select {
	case s.slots <- struct{}{}:
	default:
		return nil, ErrTooManyJobs
	}

	job := s.manager.CreateJob(target)
	s.wg.Add(1)
	go s.execute(job.ID, target)
	return job, nil
}

func (s *ScanJobService) execute(id, target string) {
	defer s.wg.Done()
	defer func() { <-s.slots }()

	now := time.Now()
	s.manager.UpdateJob(id, func(j *Job) {
		j.Status = JobRunning
		j.StartedAt = &now
	})

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result, err := s.scans.Scan(ctx, target)
	finished := time.Now()
	if err != nil {
		s.logger.Warn("scan job failed", zap.String("job_id", id), zap.String("url", target), zap.Error(err))
		s.manager.UpdateJob(id, func(j *Job) {
			j.Status = JobError
			j.Error = scanner.ScanFailedMessage
			j.Details = jobErrorDetails(err)
			j.FinishedAt = &finished
		})
		return
	}
	s.manager.UpdateJob(id, func(j *Job) {
		j.Status = JobDone
		j.Result = result
		j.FinishedAt = &finished
	})
}

func jobErrorDetails(err error) string {
	var scanErr *scanner.ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Err.Error()
	}
	return err.Error()
}

func (s *ScanJobService) GetJob(ctx context.Context, id string) (*Job, error) {
	job := s.manager.GetJob(id)
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", id, apperrors.ErrJobNotFound)
	}
	return job, nil
}

func (s *ScanJobService) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	return s.manager.ListJobs(limit), nil
}

func (s *ScanJobService) Subscribe() (chan Job, func()) {
	return s.manager.Subscribe()
}

// Wait blocks until every started job has finished.
func (s *ScanJobService) Wait() {
	s.wg.Wait()
}
