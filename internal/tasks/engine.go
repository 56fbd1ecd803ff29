// package tasks implements the batch copy engine.
//
// The core abstraction is [CopyEngine], which copies a list of references into a destination folder
// with a bounded worker pool and emits per-item progress via channels.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/drivecopy/internal/models"
	"github.com/desertthunder/drivecopy/internal/services"
	"github.com/desertthunder/drivecopy/internal/shared"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	MinConcurrency     = 1
	MaxConcurrency     = 10
	DefaultConcurrency = 3
)

// ClampConcurrency forces n into [MinConcurrency, MaxConcurrency].
func ClampConcurrency(n int) int {
	if n < MinConcurrency {
		return MinConcurrency
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}

// RunOpts contains configuration for a single run.
type RunOpts struct {
	Concurrency int           // Workers, clamped to 1..10
	CallTimeout time.Duration // Bound on each backend call, 0 disables
	RateLimit   float64       // Backend calls per second across all workers, 0 disables
}

// ItemOutcome is the final state of one item, addressed by its original index.
type ItemOutcome struct {
	Index     int
	Reference models.Reference
	Status    models.ItemStatus
	Result    *models.CopyResult
	Err       error
}

// CopyEngine copies references into a destination folder through a [services.Backend].
type CopyEngine struct {
	backend services.Backend
	logger  *log.Logger
}

// NewCopyEngine creates a new [CopyEngine] with the provided backend.
func NewCopyEngine(backend services.Backend, logger *log.Logger) *CopyEngine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &CopyEngine{backend: backend, logger: logger}
}

// Run copies every reference in refs into destFolderID and returns one outcome per index.
//
// Progress events are sent on progress (which may be nil) with blocking sends. Run returns an
// error only for faults that prevent any item from starting; per item failures are reported
// through the outcomes.
func (e *CopyEngine) Run(
	ctx context.Context,
	progress chan<- ItemUpdate,
	refs []models.Reference,
	destFolderID string,
	opts RunOpts,
) ([]ItemOutcome, error) {
	if e.backend == nil {
		return nil, fmt.Errorf("%w: backend not initialized", shared.ErrServiceUnavailable)
	}
	if destFolderID == "" {
		return nil, fmt.Errorf("%w: empty destination folder id", shared.ErrDestination)
	}

	r := &run{
		backend:  e.backend,
		logger:   e.logger,
		progress: progress,
		dest:     destFolderID,
		timeout:  opts.CallTimeout,
	}
	if opts.RateLimit > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	outcomes := make([]ItemOutcome, len(refs))
	workers := min(ClampConcurrency(opts.Concurrency), len(refs))

	var cursor atomic.Int64
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				i := int(cursor.Add(1) - 1)
				if i >= len(refs) {
					return nil
				}
				outcomes[i] = r.process(ctx, i, refs[i])
			}
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}

	e.logger.Debug("run finished", "items", len(refs), "workers", workers, "dest", destFolderID)
	return outcomes, nil
}

// run is the state shared by the workers of one [CopyEngine.Run] call.
type run struct {
	backend  services.Backend
	logger   *log.Logger
	progress chan<- ItemUpdate
	dest     string
	timeout  time.Duration
	limiter  *rate.Limiter
}

func (r *run) emit(u ItemUpdate) {
	if r.progress != nil {
		r.progress <- u
	}
}

// process copies one item and guarantees exactly one terminal event for it.
func (r *run) process(ctx context.Context, index int, ref models.Reference) (out ItemOutcome) {
	t := &tracker{run: r, index: index, ref: ref}

	defer func() {
		if p := recover(); p != nil {
			out = t.fail(fmt.Errorf("internal error: %v", p))
		}
	}()

	if !ref.Valid() {
		return t.fail(fmt.Errorf("%w: %q", shared.ErrInvalidReference, ref.Raw))
	}
	if err := ctx.Err(); err != nil {
		return t.fail(shared.ErrCanceled)
	}

	r.emit(startedUpdate(index, ref))

	var (
		res *models.CopyResult
		err error
	)
	switch ref.Kind {
	case models.KindFolder:
		res, err = r.copyFolder(ctx, t, ref.ID)
	default:
		res, err = r.copyFile(ctx, t, ref.ID)
	}
	if err != nil {
		return t.fail(err)
	}
	return t.succeed(res)
}

func (r *run) copyFile(ctx context.Context, t *tracker, id string) (*models.CopyResult, error) {
	var res *models.CopyResult
	err := r.call(ctx, func(cctx context.Context) error {
		var err error
		res, err = r.backend.CopyFile(cctx, id, r.dest, "", t.progress)
		return err
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("%w: empty copy result for %s", shared.ErrAPIRequest, id)
	}
	t.kind = models.KindFile
	return res, nil
}

// copyFolder recreates the folder under the destination and copies its subtree.
// Progress advances after each top level child.
func (r *run) copyFolder(ctx context.Context, t *tracker, id string) (*models.CopyResult, error) {
	meta, err := r.metadata(ctx, id)
	if err != nil {
		return nil, err
	}
	if meta.Kind != models.KindFolder {
		return r.copyFile(ctx, t, id)
	}

	newID, err := r.createFolder(ctx, meta.Name, r.dest)
	if err != nil {
		return nil, err
	}

	children, err := r.children(ctx, id)
	if err != nil {
		return nil, err
	}

	w := &walk{visited: map[string]bool{id: true}}
	for k, child := range children {
		if ctx.Err() != nil {
			return nil, shared.ErrCanceled
		}
		r.copyEntry(ctx, w, child, newID)
		t.progress((k + 1) * 100 / len(children))
	}
	t.progress(100)

	if w.failed > 0 {
		return nil, fmt.Errorf("%d of %d entries failed (copied %d files): %w", w.failed, w.failed+w.files, w.files, w.firstErr)
	}
	t.kind = models.KindFolder
	return &models.CopyResult{ID: newID, Name: meta.Name, FilesCopied: w.files}, nil
}

// walk accumulates the outcome of a recursive folder copy.
type walk struct {
	visited  map[string]bool
	files    int
	failed   int
	firstErr error
}

func (w *walk) fail(name string, err error) {
	w.failed++
	if w.firstErr == nil {
		w.firstErr = fmt.Errorf("%s: %w", name, err)
	}
}

func (r *run) copyEntry(ctx context.Context, w *walk, entry models.Metadata, destID string) {
	if entry.Kind != models.KindFolder {
		err := r.call(ctx, func(cctx context.Context) error {
			_, err := r.backend.CopyFile(cctx, entry.ID, destID, "", nil)
			return err
		})
		if err != nil {
			w.fail(entry.Name, err)
			return
		}
		w.files++
		return
	}

	if w.visited[entry.ID] {
		r.logger.Warn("skipping folder already copied in this tree", "folder", entry.ID, "name", entry.Name)
		return
	}
	w.visited[entry.ID] = true

	subID, err := r.createFolder(ctx, entry.Name, destID)
	if err != nil {
		w.fail(entry.Name, err)
		return
	}

	children, err := r.children(ctx, entry.ID)
	if err != nil {
		w.fail(entry.Name, err)
		return
	}

	for _, child := range children {
		if ctx.Err() != nil {
			w.fail(child.Name, shared.ErrCanceled)
			return
		}
		r.copyEntry(ctx, w, child, subID)
	}
}

func (r *run) metadata(ctx context.Context, id string) (*models.Metadata, error) {
	var meta *models.Metadata
	err := r.call(ctx, func(cctx context.Context) error {
		var err error
		meta, err = r.backend.GetMetadata(cctx, id)
		return err
	})
	if err == nil && meta == nil {
		err = fmt.Errorf("%w: no metadata for %s", shared.ErrNotFound, id)
	}
	return meta, err
}

func (r *run) createFolder(ctx context.Context, name, parentID string) (string, error) {
	var id string
	err := r.call(ctx, func(cctx context.Context) error {
		var err error
		id, err = r.backend.CreateFolder(cctx, name, parentID)
		return err
	})
	return id, err
}

func (r *run) children(ctx context.Context, folderID string) ([]models.Metadata, error) {
	var children []models.Metadata
	err := r.call(ctx, func(cctx context.Context) error {
		var err error
		children, err = r.backend.ListChildren(cctx, folderID)
		return err
	})
	return children, err
}

// call runs one backend call under the rate limiter and the per call timeout.
//
// fn runs on its own goroutine so a backend that ignores its context still cannot hold the
// worker past the deadline. Panics inside fn are returned as errors.
func (r *run) call(ctx context.Context, fn func(context.Context) error) error {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return shared.ErrCanceled
			}
			return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
		}
	}

	cctx, cancel := ctx, context.CancelFunc(func() {})
	if r.timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, r.timeout)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("backend panic: %v", p)
			}
		}()
		done <- fn(cctx)
	}()

	select {
	case err := <-done:
		return r.classify(ctx, cctx, err)
	case <-cctx.Done():
		select {
		case err := <-done:
			return r.classify(ctx, cctx, err)
		default:
		}
		return r.classify(ctx, cctx, cctx.Err())
	}
}

// classify rewrites context errors into the timeout and cancellation sentinels.
func (r *run) classify(ctx, cctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %v", shared.ErrCanceled, err)
	case errors.Is(cctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w after %s", shared.ErrTimeout, r.timeout)
	}
	return err
}

// tracker holds per item progress so events stay monotonic and terminal exactly once.
//
// progress may be called from a backend goroutine that outlives the item (after a timeout).
// The send happens under mu, so once finish returns no further event for the index can be sent.
type tracker struct {
	run   *run
	index int
	ref   models.Reference
	kind  models.Kind // kind actually copied, which can differ from ref.Kind

	mu      sync.Mutex
	percent int
	done    bool
}

func (t *tracker) progress(p int) {
	p = max(0, min(p, 100))

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done || p <= t.percent {
		return
	}
	t.percent = p
	t.run.emit(progressUpdate(t.index, p, t.ref))
}

func (t *tracker) finish() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return t.percent, false
	}
	t.done = true
	return t.percent, true
}

func (t *tracker) succeed(res *models.CopyResult) ItemOutcome {
	out := ItemOutcome{Index: t.index, Reference: t.ref, Status: models.ItemSuccess, Result: res}
	if _, first := t.finish(); !first {
		return out
	}

	if t.kind == models.KindFolder {
		t.run.emit(folderCopiedUpdate(t.index, res))
	} else {
		t.run.emit(fileCopiedUpdate(t.index, res))
	}
	return out
}

func (t *tracker) fail(err error) ItemOutcome {
	out := ItemOutcome{Index: t.index, Reference: t.ref, Status: models.ItemError, Err: err}
	percent, first := t.finish()
	if !first {
		return out
	}

	t.run.logger.Warn("item failed", "index", t.index, "source", t.ref.Raw, "err", err)
	t.run.emit(failedUpdate(t.index, percent, err))
	return out
}
