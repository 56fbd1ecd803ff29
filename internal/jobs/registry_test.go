package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/drivecopy/internal/models"
	"github.com/desertthunder/drivecopy/internal/shared"
	"github.com/desertthunder/drivecopy/internal/tasks"
	mock "github.com/desertthunder/drivecopy/internal/testing"
)

const (
	fileA = "FILE_AAAAAAAAAAAAAAAAAAAAAAAA"
	fileB = "FILE_BBBBBBBBBBBBBBBBBBBBBBBB"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memRecorder struct {
	mu   sync.Mutex
	jobs []*models.Job
	err  error
}

func (m *memRecorder) RecordJob(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
	return m.err
}

func (m *memRecorder) recorded() []*models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Job(nil), m.jobs...)
}

// stubEngine returns a fixed result without emitting events.
type stubEngine struct {
	err   error
	panic bool
}

func (s *stubEngine) Run(ctx context.Context, progress chan<- tasks.ItemUpdate, refs []models.Reference, dest string, opts tasks.RunOpts) ([]tasks.ItemOutcome, error) {
	if s.panic {
		panic("engine exploded")
	}
	return nil, s.err
}

func concurrency(n int) *int { return &n }

func newTestRegistry(backend *mock.FakeBackend, opts Options) *Registry {
	opts.Logger = shared.NewLogger(io.Discard)
	engine := tasks.NewCopyEngine(backend, opts.Logger)
	return NewRegistry(engine, backend, opts)
}

func newBackend() *mock.FakeBackend {
	b := mock.NewFakeBackend()
	b.AddFile(fileA, "a.txt", 1, "")
	b.AddFile(fileB, "b.txt", 2, "")
	return b
}

func mustCreate(t *testing.T, r *Registry, req SubmitRequest) *models.Job {
	t.Helper()
	job, err := r.CreateJob(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	return job
}

func waitTerminal(t *testing.T, r *Registry, id string) *models.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := r.GetJob(id)
		if !ok {
			t.Fatalf("job %s disappeared", id)
		}
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish in time", id)
	return nil
}

func assertInvariant(t *testing.T, job *models.Job) {
	t.Helper()
	completed, succeeded, failed := 0, 0, 0
	for _, item := range job.Items {
		switch item.Status {
		case models.ItemSuccess:
			completed++
			succeeded++
		case models.ItemError:
			completed++
			failed++
		}
	}
	if job.CompletedItems != completed {
		t.Errorf("completedItems %d != terminal items %d", job.CompletedItems, completed)
	}
	if job.SucceededItems != succeeded || job.FailedItems != failed {
		t.Errorf("counters %d/%d disagree with items %d/%d", job.SucceededItems, job.FailedItems, succeeded, failed)
	}
	if job.Status == models.JobComplete && job.CompletedItems != job.TotalItems {
		t.Errorf("complete job has %d of %d items done", job.CompletedItems, job.TotalItems)
	}
}

func TestRegistry_CreateJob(t *testing.T) {
	t.Run("rejects empty input", func(t *testing.T) {
		r := newTestRegistry(newBackend(), Options{})
		for _, refs := range [][]string{nil, {}, {"", "   "}} {
			if _, err := r.CreateJob(context.Background(), SubmitRequest{References: refs}); !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("refs %q: expected ErrInvalidInput, got %v", refs, err)
			}
		}
		if r.Len() != 0 {
			t.Errorf("rejected requests must not register jobs, got %d", r.Len())
		}
	})

	t.Run("single file", func(t *testing.T) {
		backend := newBackend()
		r := newTestRegistry(backend, Options{})

		created := mustCreate(t, r, SubmitRequest{
			References:  []string{"https://drive.example.com/file/d/" + fileA + "/view"},
			Concurrency: concurrency(1),
		})
		if created.ID == "" || created.TotalItems != 1 || created.Status != models.JobProcessing {
			t.Fatalf("unexpected created job %+v", created)
		}
		if created.TargetFolderID == "" {
			t.Error("expected destination to be resolved before returning")
		}

		job := waitTerminal(t, r, created.ID)
		if job.Status != models.JobComplete {
			t.Fatalf("expected complete, got %s (%s)", job.Status, job.Error)
		}
		item := job.Items[0]
		if item.Status != models.ItemSuccess || item.Result == nil || item.Result.ID == "" || item.Result.Name != "a.txt" {
			t.Errorf("unexpected item %+v", item)
		}
		if job.CompletedAt == nil {
			t.Error("expected completedAt to be set")
		}
		assertInvariant(t, job)
	})

	t.Run("valid and malformed", func(t *testing.T) {
		r := newTestRegistry(newBackend(), Options{})
		job := waitTerminal(t, r, mustCreate(t, r, SubmitRequest{References: []string{"not-a-url", fileA}}).ID)

		if job.Status != models.JobComplete || job.TotalItems != 2 {
			t.Fatalf("unexpected job %+v", job)
		}
		if job.Items[0].Status != models.ItemError || job.Items[1].Status != models.ItemSuccess {
			t.Errorf("expected [error success], got [%s %s]", job.Items[0].Status, job.Items[1].Status)
		}
		if job.Items[0].Source != "not-a-url" {
			t.Errorf("expected raw source kept, got %q", job.Items[0].Source)
		}
		assertInvariant(t, job)
	})

	t.Run("blank entries keep their positions", func(t *testing.T) {
		r := newTestRegistry(newBackend(), Options{})
		job := waitTerminal(t, r, mustCreate(t, r, SubmitRequest{References: []string{"  ", fileA, "not-a-url"}}).ID)

		if job.TotalItems != 3 {
			t.Fatalf("expected 3 items, got %d", job.TotalItems)
		}
		want := []struct {
			source string
			status models.ItemStatus
		}{
			{"  ", models.ItemError},
			{fileA, models.ItemSuccess},
			{"not-a-url", models.ItemError},
		}
		for i, w := range want {
			item := job.Items[i]
			if item.Index != i || item.Source != w.source || item.Status != w.status {
				t.Errorf("item %d: expected %q %s, got index=%d %q %s", i, w.source, w.status, item.Index, item.Source, item.Status)
			}
		}
		assertInvariant(t, job)
	})

	t.Run("explicit concurrency", func(t *testing.T) {
		r := newTestRegistry(newBackend(), Options{DefaultConcurrency: 4})
		tests := []struct {
			requested *int
			want      int
		}{
			{nil, 4},
			{concurrency(0), 1},
			{concurrency(-3), 1},
			{concurrency(7), 7},
		}
		for _, tt := range tests {
			created := mustCreate(t, r, SubmitRequest{References: []string{fileA}, Concurrency: tt.requested})
			if created.Concurrency != tt.want {
				t.Errorf("requested %v: expected concurrency %d, got %d", tt.requested, tt.want, created.Concurrency)
			}
		}
		r.Wait()
	})

	t.Run("completion invariant over a large batch", func(t *testing.T) {
		backend := newBackend()
		var refs []string
		for i := 0; i < 40; i++ {
			id := fmt.Sprintf("FILE_%024d", i)
			backend.AddFile(id, id, 1, "")
			if i%5 == 0 {
				backend.Fail[id] = errors.New("simulated failure")
			}
			refs = append(refs, id)
		}
		refs = append(refs, "garbage")

		r := newTestRegistry(backend, Options{})
		created := mustCreate(t, r, SubmitRequest{References: refs, Concurrency: concurrency(999)})
		if created.Concurrency != 10 {
			t.Errorf("expected concurrency clamped to 10, got %d", created.Concurrency)
		}

		// Polling while the run is in flight exercises concurrent reads.
		for {
			job, _ := r.GetJob(created.ID)
			assertInvariant(t, job)
			if job.Status.Terminal() {
				break
			}
			time.Sleep(time.Millisecond)
		}

		job, _ := r.GetJob(created.ID)
		if job.Status != models.JobComplete || job.CompletedItems != job.TotalItems {
			t.Errorf("expected complete with all items, got %s %d/%d", job.Status, job.CompletedItems, job.TotalItems)
		}
		for _, item := range job.Items {
			if !item.Status.Terminal() {
				t.Errorf("item %d left in %s", item.Index, item.Status)
			}
		}
		if job.FailedItems != 9 {
			t.Errorf("expected 9 failures, got %d", job.FailedItems)
		}
	})

	t.Run("default concurrency", func(t *testing.T) {
		r := newTestRegistry(newBackend(), Options{})
		job := mustCreate(t, r, SubmitRequest{References: []string{fileA}})
		if job.Concurrency != tasks.DefaultConcurrency {
			t.Errorf("expected default concurrency %d, got %d", tasks.DefaultConcurrency, job.Concurrency)
		}
		r.Wait()
	})

	t.Run("destination by id skips folder creation", func(t *testing.T) {
		backend := newBackend()
		r := newTestRegistry(backend, Options{})
		job := mustCreate(t, r, SubmitRequest{References: []string{fileA}, TargetFolderID: "existing-folder"})
		r.Wait()

		if job.TargetFolderID != "existing-folder" {
			t.Errorf("expected target existing-folder, got %s", job.TargetFolderID)
		}
		if folders := backend.CreatedFolders(); len(folders) != 0 {
			t.Errorf("expected no folder creation, got %v", folders)
		}
	})

	t.Run("destination created with default name", func(t *testing.T) {
		backend := newBackend()
		clock := newFakeClock()
		r := newTestRegistry(backend, Options{Now: clock.Now})
		job := mustCreate(t, r, SubmitRequest{References: []string{fileA}})
		r.Wait()

		want := "Copied files 2025-01-02 03:04:05"
		if folders := backend.CreatedFolders(); len(folders) != 1 || folders[0] != want {
			t.Errorf("expected folder %q, got %v", want, folders)
		}
		if job.TargetFolderName != want {
			t.Errorf("expected job folder name %q, got %q", want, job.TargetFolderName)
		}
	})

	t.Run("destination failure is fatal", func(t *testing.T) {
		backend := newBackend()
		backend.CreateFolderErr = errors.New("drive is full")
		rec := &memRecorder{}
		r := newTestRegistry(backend, Options{Recorder: rec})

		job, err := r.CreateJob(context.Background(), SubmitRequest{References: []string{fileA}, TargetFolderName: "Backup"})
		if !errors.Is(err, shared.ErrDestination) {
			t.Fatalf("expected ErrDestination, got %v", err)
		}
		if job == nil || job.ID == "" {
			t.Fatal("expected the failed job to be registered")
		}

		stored, ok := r.GetJob(job.ID)
		if !ok || stored.Status != models.JobError || !strings.Contains(stored.Error, "drive is full") {
			t.Errorf("expected stored error job, got %+v", stored)
		}
		if stored.Items[0].Status != models.ItemPending {
			t.Errorf("no item should run, got %s", stored.Items[0].Status)
		}
		if copied := backend.Copied(); len(copied) != 0 {
			t.Errorf("expected no copies, got %v", copied)
		}
		if len(rec.recorded()) != 1 {
			t.Errorf("expected failed job to be recorded once, got %d", len(rec.recorded()))
		}
	})
}

func TestRegistry_EngineFaults(t *testing.T) {
	tests := []struct {
		name    string
		engine  *stubEngine
		wantErr string
	}{
		{name: "engine error", engine: &stubEngine{err: errors.New("engine broke")}, wantErr: "engine broke"},
		{name: "engine panic", engine: &stubEngine{panic: true}, wantErr: "engine exploded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newBackend()
			r := NewRegistry(tt.engine, backend, Options{Logger: shared.NewLogger(io.Discard)})

			created := mustCreate(t, r, SubmitRequest{References: []string{fileA}})
			r.Wait()

			job, _ := r.GetJob(created.ID)
			if job.Status != models.JobError || !strings.Contains(job.Error, tt.wantErr) {
				t.Errorf("expected error job with %q, got %s %q", tt.wantErr, job.Status, job.Error)
			}
		})
	}

	t.Run("engine completes without events", func(t *testing.T) {
		r := NewRegistry(&stubEngine{}, newBackend(), Options{Logger: shared.NewLogger(io.Discard)})
		created := mustCreate(t, r, SubmitRequest{References: []string{fileA, fileB}})
		r.Wait()

		job, _ := r.GetJob(created.ID)
		if job.Status != models.JobComplete {
			t.Errorf("expected engine completion to complete the job, got %s", job.Status)
		}
		if job.CompletedItems != job.TotalItems || job.FailedItems != 2 {
			t.Errorf("expected unreported items counted as failed, got %d/%d failed=%d", job.CompletedItems, job.TotalItems, job.FailedItems)
		}
		for _, item := range job.Items {
			if item.Status != models.ItemError || !strings.Contains(item.Error, "no outcome") {
				t.Errorf("item %d: expected error for missing outcome, got %s %q", item.Index, item.Status, item.Error)
			}
		}
		assertInvariant(t, job)
	})
}

func TestRegistry_Snapshots(t *testing.T) {
	r := newTestRegistry(newBackend(), Options{})
	id := mustCreate(t, r, SubmitRequest{References: []string{fileA, fileB}}).ID
	waitTerminal(t, r, id)

	first, _ := r.GetJob(id)
	second, _ := r.GetJob(id)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated GetJob returned different snapshots:\n%+v\n%+v", first, second)
	}

	first.Items[0].Status = models.ItemPending
	first.Items[1].Result.Name = "mutated"
	third, _ := r.GetJob(id)
	if !reflect.DeepEqual(second, third) {
		t.Error("mutating a snapshot leaked into the registry")
	}
}

func TestRegistry_ListJobs(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(newBackend(), Options{Now: clock.Now})

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, mustCreate(t, r, SubmitRequest{References: []string{fileA}}).ID)
		clock.Advance(time.Minute)
	}
	r.Wait()

	jobs := r.ListJobs()
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	for i, job := range jobs {
		if want := ids[len(ids)-1-i]; job.ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, job.ID)
		}
	}
}

func TestRegistry_DeleteJob(t *testing.T) {
	t.Run("unknown id", func(t *testing.T) {
		r := newTestRegistry(newBackend(), Options{})
		if r.DeleteJob("does-not-exist") {
			t.Error("expected false for unknown job")
		}
	})

	t.Run("finished job", func(t *testing.T) {
		r := newTestRegistry(newBackend(), Options{})
		id := mustCreate(t, r, SubmitRequest{References: []string{fileA}}).ID
		waitTerminal(t, r, id)

		if !r.DeleteJob(id) {
			t.Fatal("expected delete to succeed")
		}
		if _, ok := r.GetJob(id); ok {
			t.Error("job still present after delete")
		}
		if r.DeleteJob(id) {
			t.Error("second delete should report not found")
		}
	})

	t.Run("in-flight job keeps running silently", func(t *testing.T) {
		backend := newBackend()
		backend.Gate = make(chan struct{})
		r := newTestRegistry(backend, Options{})

		id := mustCreate(t, r, SubmitRequest{References: []string{fileA, fileB}}).ID
		if !r.DeleteJob(id) {
			t.Fatal("expected delete to succeed")
		}
		close(backend.Gate)
		r.Wait()

		if _, ok := r.GetJob(id); ok {
			t.Error("deleted job resurrected by in-flight updates")
		}
		if copied := backend.Copied(); len(copied) != 2 {
			t.Errorf("delete must not cancel work, expected 2 copies, got %v", copied)
		}
	})
}

func TestRegistry_CancelJob(t *testing.T) {
	backend := newBackend()
	backend.Gate = make(chan struct{})
	r := newTestRegistry(backend, Options{})

	id := mustCreate(t, r, SubmitRequest{References: []string{fileA, fileB}, Concurrency: concurrency(1)}).ID
	if !r.CancelJob(id) {
		t.Fatal("expected cancel to succeed")
	}
	r.Wait()

	job, _ := r.GetJob(id)
	if job.Status != models.JobError || job.Error != shared.ErrCanceled.Error() {
		t.Errorf("expected canceled error job, got %s %q", job.Status, job.Error)
	}
	for _, item := range job.Items {
		if item.Status != models.ItemError {
			t.Errorf("item %d: expected error, got %s", item.Index, item.Status)
		}
	}
	assertInvariant(t, job)

	if r.CancelJob(id) {
		t.Error("canceling a terminal job should report false")
	}
	if r.CancelJob("unknown") {
		t.Error("canceling an unknown job should report false")
	}
}

func TestRegistry_GC(t *testing.T) {
	clock := newFakeClock()
	backend := newBackend()
	r := newTestRegistry(backend, Options{Now: clock.Now})

	done := mustCreate(t, r, SubmitRequest{References: []string{fileA}}).ID
	waitTerminal(t, r, done)

	backend.Gate = make(chan struct{})
	running := mustCreate(t, r, SubmitRequest{References: []string{fileB}}).ID

	clock.Advance(2 * time.Hour)

	if n := r.GC(3 * time.Hour); n != 0 {
		t.Errorf("nothing is old enough yet, removed %d", n)
	}
	if n := r.GC(time.Hour); n != 1 {
		t.Errorf("expected 1 job collected, got %d", n)
	}
	if _, ok := r.GetJob(done); ok {
		t.Error("terminal job should have been collected")
	}
	if _, ok := r.GetJob(running); !ok {
		t.Error("processing job must never be collected")
	}

	close(backend.Gate)
	r.Wait()
}

func TestRegistry_StartGC(t *testing.T) {
	r := newTestRegistry(newBackend(), Options{})
	id := mustCreate(t, r, SubmitRequest{References: []string{fileA}}).ID
	waitTerminal(t, r, id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartGC(ctx, 5*time.Millisecond, time.Nanosecond)

	deadline := time.Now().Add(2 * time.Second)
	for r.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if r.Len() != 0 {
		t.Error("expected background collector to remove the finished job")
	}
}

func TestRegistry_Recorder(t *testing.T) {
	rec := &memRecorder{err: errors.New("disk full")}
	r := newTestRegistry(newBackend(), Options{Recorder: rec})

	id := mustCreate(t, r, SubmitRequest{References: []string{fileA, "nope"}}).ID
	r.Wait()

	got := rec.recorded()
	if len(got) != 1 {
		t.Fatalf("expected exactly one recorded job, got %d", len(got))
	}
	if got[0].ID != id || got[0].Status != models.JobComplete {
		t.Errorf("unexpected recorded job %+v", got[0])
	}

	job, _ := r.GetJob(id)
	if job.Status != models.JobComplete {
		t.Errorf("recorder failure must not affect the job, got %s", job.Status)
	}
}

func TestRegistry_Close(t *testing.T) {
	backend := newBackend()
	backend.Gate = make(chan struct{})
	r := newTestRegistry(backend, Options{})

	id := mustCreate(t, r, SubmitRequest{References: []string{fileA}}).ID
	r.Close()

	job, _ := r.GetJob(id)
	if !job.Status.Terminal() {
		t.Errorf("expected job to settle on close, got %s", job.Status)
	}
}
