package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/drivecopy/internal/models"
	"github.com/desertthunder/drivecopy/internal/references"
	"github.com/desertthunder/drivecopy/internal/shared"
	"github.com/desertthunder/drivecopy/internal/tasks"
)

// Engine runs a batch copy. Implemented by [tasks.CopyEngine].
type Engine interface {
	Run(ctx context.Context, progress chan<- tasks.ItemUpdate, refs []models.Reference, destFolderID string, opts tasks.RunOpts) ([]tasks.ItemOutcome, error)
}

// FolderResolver creates destination folders. Implemented by every services.Backend.
type FolderResolver interface {
	CreateFolder(ctx context.Context, name, parentID string) (string, error)
}

// Recorder persists jobs once they reach a terminal state.
type Recorder interface {
	RecordJob(ctx context.Context, job *models.Job) error
}

// Options configures a [Registry].
type Options struct {
	DefaultConcurrency int           // Used when a request omits concurrency (default 3)
	CallTimeout        time.Duration // Per backend call bound passed to the engine
	RateLimit          float64       // Backend calls per second per job
	Recorder           Recorder      // Optional history sink
	Logger             *log.Logger
	Now                func() time.Time
}

// SubmitRequest is the input to [Registry.CreateJob].
type SubmitRequest struct {
	References       []string `json:"references"`
	TargetFolderID   string   `json:"targetFolderId,omitempty"`
	TargetFolderName string   `json:"targetFolderName,omitempty"`
	Concurrency      *int     `json:"concurrency,omitempty"` // nil uses Options.DefaultConcurrency
}

type entry struct {
	job      *models.Job
	cancel   context.CancelFunc
	canceled bool
}

// Registry owns every job of the process.
type Registry struct {
	engine  Engine
	folders FolderResolver
	opts    Options
	logger  *log.Logger

	mu   sync.Mutex
	jobs map[string]*entry

	wg        sync.WaitGroup
	baseCtx   context.Context
	cancelAll context.CancelFunc
}

// NewRegistry creates an empty [Registry].
func NewRegistry(engine Engine, folders FolderResolver, opts Options) *Registry {
	if opts.DefaultConcurrency <= 0 {
		opts.DefaultConcurrency = tasks.DefaultConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		engine:    engine,
		folders:   folders,
		opts:      opts,
		logger:    opts.Logger,
		jobs:      make(map[string]*entry),
		baseCtx:   ctx,
		cancelAll: cancel,
	}
}

// DefaultFolderName is the destination folder name used when a request names none.
func DefaultFolderName(now time.Time) string {
	return "Copied files " + now.Format("2006-01-02 15:04:05")
}

// CreateJob registers a job, resolves its destination folder and starts the copy in the background.
//
// The returned snapshot is the job as registered. When the destination cannot be resolved the
// job is still registered, in the error state, and the error wraps [shared.ErrDestination].
func (r *Registry) CreateJob(ctx context.Context, req SubmitRequest) (*models.Job, error) {
	// Blank entries stay in place so item indices match submission positions.
	raws := req.References
	blank := 0
	for _, raw := range raws {
		if strings.TrimSpace(raw) == "" {
			blank++
		}
	}
	if blank == len(raws) {
		return nil, fmt.Errorf("%w: no references supplied", shared.ErrInvalidInput)
	}

	concurrency := r.opts.DefaultConcurrency
	if req.Concurrency != nil {
		concurrency = *req.Concurrency
	}
	concurrency = tasks.ClampConcurrency(concurrency)

	refs := references.ParseAll(raws)
	now := r.opts.Now()
	job := &models.Job{
		Status:           models.JobProcessing,
		TotalItems:       len(refs),
		Items:            make([]models.CopyItem, len(refs)),
		TargetFolderName: req.TargetFolderName,
		Concurrency:      concurrency,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for i, ref := range refs {
		job.Items[i] = models.CopyItem{Index: i, Source: raws[i], Reference: ref, Status: models.ItemPending}
	}

	dest, err := r.resolveDestination(ctx, req, now)
	if err != nil {
		job.Status = models.JobError
		job.Error = err.Error()
		job.CompletedAt = &now
		snapshot := r.register(job, nil)
		r.logger.Error("destination resolution failed", "job", snapshot.ID, "err", err)
		r.record(snapshot)
		return snapshot, err
	}
	job.TargetFolderID = dest
	if job.TargetFolderName == "" && req.TargetFolderID == "" {
		job.TargetFolderName = DefaultFolderName(now)
	}

	jctx, cancel := context.WithCancel(r.baseCtx)
	snapshot := r.register(job, cancel)
	r.logger.Info("job created", "job", snapshot.ID, "items", job.TotalItems, "dest", dest, "concurrency", concurrency)

	opts := tasks.RunOpts{Concurrency: concurrency, CallTimeout: r.opts.CallTimeout, RateLimit: r.opts.RateLimit}
	r.wg.Add(1)
	go r.execute(jctx, cancel, snapshot.ID, refs, dest, opts)

	return snapshot, nil
}

func (r *Registry) resolveDestination(ctx context.Context, req SubmitRequest, now time.Time) (string, error) {
	if id := strings.TrimSpace(req.TargetFolderID); id != "" {
		return id, nil
	}
	if r.folders == nil {
		return "", fmt.Errorf("%w: no folder resolver configured", shared.ErrDestination)
	}

	name := req.TargetFolderName
	if name == "" {
		name = DefaultFolderName(now)
	}

	if r.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.CallTimeout)
		defer cancel()
	}

	id, err := r.folders.CreateFolder(ctx, name, "")
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrDestination, err)
	}
	if id == "" {
		return "", fmt.Errorf("%w: backend returned an empty folder id", shared.ErrDestination)
	}
	return id, nil
}

// register assigns a unique id and stores the job.
func (r *Registry) register(job *models.Job, cancel context.CancelFunc) *models.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		job.ID = shared.NewJobID(job.CreatedAt)
		if _, taken := r.jobs[job.ID]; !taken {
			break
		}
	}
	r.jobs[job.ID] = &entry{job: job, cancel: cancel}
	return job.Clone()
}

// execute runs the engine for one job and folds its events into the record.
func (r *Registry) execute(ctx context.Context, cancel context.CancelFunc, id string, refs []models.Reference, dest string, opts tasks.RunOpts) {
	defer r.wg.Done()
	defer cancel()

	progress := make(chan tasks.ItemUpdate, 64)
	done := make(chan struct{})

	var (
		outcomes []tasks.ItemOutcome
		runErr   error
	)
	go func() {
		defer close(done)
		defer close(progress)
		defer func() {
			if p := recover(); p != nil {
				runErr = fmt.Errorf("engine panic: %v", p)
			}
		}()
		outcomes, runErr = r.engine.Run(ctx, progress, refs, dest, opts)
	}()

	for u := range progress {
		if snapshot := r.apply(id, u); snapshot != nil {
			r.record(snapshot)
		}
	}
	<-done

	if snapshot := r.finish(id, outcomes, runErr); snapshot != nil {
		r.record(snapshot)
	}
}

// apply folds one item event into the job. It returns a snapshot when the job became terminal.
func (r *Registry) apply(id string, u tasks.ItemUpdate) *models.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok || e.job.Status.Terminal() {
		return nil
	}
	job := e.job
	if u.Index < 0 || u.Index >= len(job.Items) {
		return nil
	}

	item := &job.Items[u.Index]
	if item.Status.Terminal() {
		return nil
	}

	item.Status = u.Status
	item.Percent = max(item.Percent, u.Percent)
	item.Message = u.Message
	if u.Result != nil {
		res := *u.Result
		item.Result = &res
	}
	if u.Error != "" {
		item.Error = u.Error
	}
	job.UpdatedAt = r.opts.Now()

	if u.Terminal() {
		job.CompletedItems++
		if u.Status == models.ItemSuccess {
			job.SucceededItems++
		} else {
			job.FailedItems++
		}
	}

	if job.CompletedItems == job.TotalItems {
		r.complete(e)
		return job.Clone()
	}
	return nil
}

var errNoOutcome = errors.New("no outcome reported by engine")

// finish settles the job after the engine returned, unless an update already did.
func (r *Registry) finish(id string, outcomes []tasks.ItemOutcome, runErr error) *models.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok || e.job.Status.Terminal() {
		return nil
	}
	job := e.job
	now := r.opts.Now()

	if runErr != nil {
		job.Status = models.JobError
		job.Error = runErr.Error()
		job.UpdatedAt = now
		job.CompletedAt = &now
		r.logger.Error("job failed", "job", id, "err", runErr)
		return job.Clone()
	}

	for _, out := range outcomes {
		if out.Index < 0 || out.Index >= len(job.Items) {
			continue
		}
		item := &job.Items[out.Index]
		if item.Status.Terminal() || !out.Status.Terminal() {
			continue
		}
		item.Status = out.Status
		item.Result = out.Result
		if out.Err != nil {
			item.Error = out.Err.Error()
			job.FailedItems++
		} else {
			job.SucceededItems++
		}
		job.CompletedItems++
	}

	for i := range job.Items {
		item := &job.Items[i]
		if item.Status.Terminal() {
			continue
		}
		item.Status = models.ItemError
		item.Error = errNoOutcome.Error()
		item.Message = "Failed: " + item.Error
		job.FailedItems++
		job.CompletedItems++
	}
	r.complete(e)
	return job.Clone()
}

// complete marks the job terminal. Must be called with r.mu held.
func (r *Registry) complete(e *entry) {
	job := e.job
	now := r.opts.Now()
	job.UpdatedAt = now
	job.CompletedAt = &now

	if e.canceled {
		job.Status = models.JobError
		job.Error = shared.ErrCanceled.Error()
	} else {
		job.Status = models.JobComplete
	}

	r.logger.Info("job finished", "job", job.ID, "status", job.Status,
		"succeeded", job.SucceededItems, "failed", job.FailedItems, "elapsed", now.Sub(job.CreatedAt).Round(time.Millisecond))
}

func (r *Registry) record(job *models.Job) {
	if r.opts.Recorder == nil {
		return
	}
	if err := r.opts.Recorder.RecordJob(context.Background(), job); err != nil {
		r.logger.Warn("failed to record job", "job", job.ID, "err", err)
	}
}

// GetJob returns a snapshot of the job, or false when it does not exist.
func (r *Registry) GetJob(id string) (*models.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	return e.job.Clone(), true
}

// ListJobs returns snapshots of every job, newest first.
func (r *Registry) ListJobs() []*models.Job {
	r.mu.Lock()
	out := make([]*models.Job, 0, len(r.jobs))
	for _, e := range r.jobs {
		out = append(out, e.job.Clone())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// DeleteJob removes the job record. In-flight work is not stopped; use [Registry.CancelJob] for that.
func (r *Registry) DeleteJob(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[id]; !ok {
		return false
	}
	delete(r.jobs, id)
	r.logger.Info("job deleted", "job", id)
	return true
}

// CancelJob asks a processing job to stop. Items not yet finished end in error and the job ends
// in the error state. It returns false when the job does not exist or is already terminal.
func (r *Registry) CancelJob(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok || e.job.Status.Terminal() || e.cancel == nil {
		return false
	}
	e.canceled = true
	e.cancel()
	r.logger.Info("job canceled", "job", id)
	return true
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Wait blocks until every started job has finished.
func (r *Registry) Wait() {
	r.wg.Wait()
}

// Close cancels every running job and waits for them to settle.
func (r *Registry) Close() {
	r.cancelAll()
	r.wg.Wait()
}
