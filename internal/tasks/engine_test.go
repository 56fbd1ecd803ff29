package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/drivecopy/internal/models"
	"github.com/desertthunder/drivecopy/internal/references"
	"github.com/desertthunder/drivecopy/internal/shared"
	mock "github.com/desertthunder/drivecopy/internal/testing"
)

const testDest = "dest-folder"

func fileRef(id string) models.Reference {
	return models.Reference{Kind: models.KindFile, ID: id, Raw: id}
}

func folderRef(id string) models.Reference {
	return models.Reference{Kind: models.KindFolder, ID: id, Raw: "https://drive.google.com/drive/folders/" + id}
}

func newTestEngine(backend *mock.FakeBackend) *CopyEngine {
	return NewCopyEngine(backend, shared.NewLogger(io.Discard))
}

// runAndCollect runs the engine while draining the progress channel.
func runAndCollect(t *testing.T, ctx context.Context, e *CopyEngine, refs []models.Reference, opts RunOpts) ([]ItemOutcome, []ItemUpdate) {
	t.Helper()

	progress := make(chan ItemUpdate)
	var updates []ItemUpdate
	done := make(chan struct{})
	go func() {
		for u := range progress {
			updates = append(updates, u)
		}
		close(done)
	}()

	outcomes, err := e.Run(ctx, progress, refs, testDest, opts)
	close(progress)
	<-done

	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(outcomes) != len(refs) {
		t.Fatalf("expected %d outcomes, got %d", len(refs), len(outcomes))
	}
	return outcomes, updates
}

func updatesFor(updates []ItemUpdate, index int) []ItemUpdate {
	var out []ItemUpdate
	for _, u := range updates {
		if u.Index == index {
			out = append(out, u)
		}
	}
	return out
}

// assertWellFormed checks that each index has non-decreasing percents and exactly one terminal event, last.
func assertWellFormed(t *testing.T, updates []ItemUpdate, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		events := updatesFor(updates, i)
		if len(events) == 0 {
			t.Errorf("item %d: no events", i)
			continue
		}
		last := -1
		for k, u := range events {
			if u.Percent < last {
				t.Errorf("item %d: percent decreased from %d to %d", i, last, u.Percent)
			}
			last = u.Percent
			if u.Terminal() != (k == len(events)-1) {
				t.Errorf("item %d: terminal event at position %d of %d", i, k, len(events))
			}
		}
	}
}

func TestClampConcurrency(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{in: -5, want: 1},
		{in: 0, want: 1},
		{in: 1, want: 1},
		{in: 3, want: 3},
		{in: 10, want: 10},
		{in: 11, want: 10},
		{in: 999, want: 10},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.in), func(t *testing.T) {
			if got := ClampConcurrency(tt.in); got != tt.want {
				t.Errorf("ClampConcurrency(%d) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestCopyEngine_Run(t *testing.T) {
	t.Run("single file link", func(t *testing.T) {
		id := "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
		backend := mock.NewFakeBackend()
		backend.AddFile(id, "report.pdf", 1024, "")

		ref, ok := references.Parse("https://drive.example.com/file/d/" + id + "/view")
		if !ok {
			t.Fatal("expected reference to parse")
		}

		outcomes, updates := runAndCollect(t, context.Background(), newTestEngine(backend), []models.Reference{ref}, RunOpts{Concurrency: 1})

		out := outcomes[0]
		if out.Status != models.ItemSuccess {
			t.Fatalf("expected success, got %s (%v)", out.Status, out.Err)
		}
		if out.Result == nil || out.Result.ID == "" || out.Result.Name != "report.pdf" {
			t.Errorf("expected populated result, got %+v", out.Result)
		}

		events := updatesFor(updates, 0)
		if events[0].Status != models.ItemProcessing || events[0].Percent != 0 {
			t.Errorf("expected first event processing/0%%, got %+v", events[0])
		}
		if final := events[len(events)-1]; final.Status != models.ItemSuccess || final.Percent != 100 {
			t.Errorf("expected final success/100%%, got %+v", final)
		}
		assertWellFormed(t, updates, 1)
	})

	t.Run("valid and malformed in either order", func(t *testing.T) {
		orders := map[string][]string{
			"valid first":     {"FILE_AAAAAAAAAAAAAAAAAAAAAAAA", "not-a-url"},
			"malformed first": {"not-a-url", "FILE_AAAAAAAAAAAAAAAAAAAAAAAA"},
		}

		for name, inputs := range orders {
			t.Run(name, func(t *testing.T) {
				backend := mock.NewFakeBackend()
				backend.AddFile("FILE_AAAAAAAAAAAAAAAAAAAAAAAA", "a.txt", 1, "")

				refs := references.ParseAll(inputs)
				outcomes, updates := runAndCollect(t, context.Background(), newTestEngine(backend), refs, RunOpts{Concurrency: 2})

				var succeeded, failed int
				for i, out := range outcomes {
					if out.Index != i {
						t.Errorf("outcome %d carries index %d", i, out.Index)
					}
					switch out.Status {
					case models.ItemSuccess:
						succeeded++
					case models.ItemError:
						failed++
						if !errors.Is(out.Err, shared.ErrInvalidReference) {
							t.Errorf("expected ErrInvalidReference, got %v", out.Err)
						}
						if events := updatesFor(updates, i); len(events) != 1 {
							t.Errorf("invalid item should emit exactly one event, got %d", len(events))
						}
					}
				}
				if succeeded != 1 || failed != 1 {
					t.Errorf("expected 1 success and 1 error, got %d and %d", succeeded, failed)
				}
				if copied := backend.Copied(); len(copied) != 1 {
					t.Errorf("expected exactly one backend copy, got %v", copied)
				}
				assertWellFormed(t, updates, 2)
			})
		}
	})

	t.Run("folder with three children", func(t *testing.T) {
		backend := mock.NewFakeBackend()
		backend.AddFolder("folder-1", "Photos", "")
		for i := 1; i <= 3; i++ {
			backend.AddFile(fmt.Sprintf("photo-%d", i), fmt.Sprintf("%d.jpg", i), 10, "folder-1")
		}

		outcomes, updates := runAndCollect(t, context.Background(), newTestEngine(backend), []models.Reference{folderRef("folder-1")}, RunOpts{Concurrency: 1})

		if outcomes[0].Status != models.ItemSuccess {
			t.Fatalf("expected success, got %s (%v)", outcomes[0].Status, outcomes[0].Err)
		}
		if outcomes[0].Result.FilesCopied != 3 {
			t.Errorf("expected 3 files copied, got %d", outcomes[0].Result.FilesCopied)
		}

		var percents []int
		events := updatesFor(updates, 0)
		for _, u := range events {
			if u.Status == models.ItemProcessing && u.Percent > 0 {
				percents = append(percents, u.Percent)
			}
		}
		if fmt.Sprint(percents) != "[33 66 100]" {
			t.Errorf("expected progress [33 66 100], got %v", percents)
		}

		final := events[len(events)-1]
		if !strings.Contains(final.Message, "filesCopied=3") {
			t.Errorf("expected final message to report filesCopied=3, got %q", final.Message)
		}
		if folders := backend.CreatedFolders(); len(folders) != 1 || folders[0] != "Photos" {
			t.Errorf("expected destination folder Photos to be created, got %v", folders)
		}
		assertWellFormed(t, updates, 1)
	})

	t.Run("folder link resolving to a file", func(t *testing.T) {
		backend := mock.NewFakeBackend()
		backend.AddFile("not-really-a-folder", "notes.txt", 5, "")

		outcomes, updates := runAndCollect(t, context.Background(), newTestEngine(backend), []models.Reference{folderRef("not-really-a-folder")}, RunOpts{})
		if outcomes[0].Status != models.ItemSuccess || outcomes[0].Result.Name != "notes.txt" {
			t.Fatalf("expected file copy success, got %+v", outcomes[0])
		}

		events := updatesFor(updates, 0)
		final := events[len(events)-1]
		if final.Message != `Copied "notes.txt"` {
			t.Errorf("expected file copy message, got %q", final.Message)
		}
		if len(backend.CreatedFolders()) != 0 {
			t.Errorf("no folder should be created, got %v", backend.CreatedFolders())
		}
		assertWellFormed(t, updates, 1)
	})

	t.Run("empty folder", func(t *testing.T) {
		backend := mock.NewFakeBackend()
		backend.AddFolder("empty", "Empty", "")

		outcomes, _ := runAndCollect(t, context.Background(), newTestEngine(backend), []models.Reference{folderRef("empty")}, RunOpts{})
		if outcomes[0].Status != models.ItemSuccess || outcomes[0].Result.FilesCopied != 0 {
			t.Errorf("expected success with no files, got %+v", outcomes[0])
		}
	})

	t.Run("backend fault isolated under concurrency 2", func(t *testing.T) {
		backend := mock.NewFakeBackend()
		backend.AddFile("file-0", "zero", 1, "")
		backend.AddFile("file-1", "one", 1, "")
		backend.Fail["file-0"] = fmt.Errorf("%w: quota exhausted", shared.ErrQuotaExceeded)

		outcomes, updates := runAndCollect(t, context.Background(), newTestEngine(backend), []models.Reference{fileRef("file-0"), fileRef("file-1")}, RunOpts{Concurrency: 2})

		if outcomes[0].Status != models.ItemError {
			t.Errorf("expected item 0 to fail, got %s", outcomes[0].Status)
		}
		if !errors.Is(outcomes[0].Err, shared.ErrQuotaExceeded) {
			t.Errorf("expected quota error preserved, got %v", outcomes[0].Err)
		}
		if outcomes[1].Status != models.ItemSuccess {
			t.Errorf("expected item 1 to succeed, got %s (%v)", outcomes[1].Status, outcomes[1].Err)
		}

		events := updatesFor(updates, 0)
		if final := events[len(events)-1]; !strings.Contains(final.Error, "quota exhausted") {
			t.Errorf("expected error detail in final event, got %q", final.Error)
		}
		assertWellFormed(t, updates, 2)
	})

	t.Run("backend panic isolated", func(t *testing.T) {
		backend := mock.NewFakeBackend()
		backend.AddFile("file-0", "zero", 1, "")
		backend.AddFile("file-1", "one", 1, "")
		backend.Panic["file-0"] = true

		outcomes, updates := runAndCollect(t, context.Background(), newTestEngine(backend), []models.Reference{fileRef("file-0"), fileRef("file-1")}, RunOpts{Concurrency: 2})

		if outcomes[0].Status != models.ItemError || !strings.Contains(outcomes[0].Err.Error(), "panic") {
			t.Errorf("expected item 0 to fail with panic, got %+v", outcomes[0])
		}
		if outcomes[1].Status != models.ItemSuccess {
			t.Errorf("expected item 1 to succeed, got %+v", outcomes[1])
		}
		assertWellFormed(t, updates, 2)
	})

	t.Run("file progress mapped and clamped", func(t *testing.T) {
		backend := mock.NewFakeBackend()
		backend.AddFile("file-0", "zero", 1, "")
		backend.ProgressSteps = []int{10, 50, 40, 150}

		_, updates := runAndCollect(t, context.Background(), newTestEngine(backend), []models.Reference{fileRef("file-0")}, RunOpts{})

		var percents []int
		for _, u := range updates {
			if u.Status == models.ItemProcessing {
				percents = append(percents, u.Percent)
			}
		}
		if fmt.Sprint(percents) != "[0 10 50 100]" {
			t.Errorf("expected processing percents [0 10 50 100], got %v", percents)
		}
	})

	t.Run("call timeout", func(t *testing.T) {
		backend := mock.NewFakeBackend()
		backend.AddFile("slow", "slow", 1, "")
		backend.AddFile("fast", "fast", 1, "")
		backend.Delay["slow"] = 2 * time.Second

		outcomes, updates := runAndCollect(t, context.Background(), newTestEngine(backend), []models.Reference{fileRef("slow"), fileRef("fast")}, RunOpts{Concurrency: 2, CallTimeout: 50 * time.Millisecond})

		if !errors.Is(outcomes[0].Err, shared.ErrTimeout) {
			t.Errorf("expected timeout, got %v", outcomes[0].Err)
		}
		if outcomes[1].Status != models.ItemSuccess {
			t.Errorf("expected fast item to succeed, got %+v", outcomes[1])
		}
		assertWellFormed(t, updates, 2)
	})

	t.Run("cancellation", func(t *testing.T) {
		backend := mock.NewFakeBackend()
		var refs []models.Reference
		for i := 0; i < 5; i++ {
			id := fmt.Sprintf("file-%d", i)
			backend.AddFile(id, id, 1, "")
			refs = append(refs, fileRef(id))
		}
		backend.Gate = make(chan struct{})

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(50*time.Millisecond, cancel)

		outcomes, updates := runAndCollect(t, ctx, newTestEngine(backend), refs, RunOpts{Concurrency: 2})

		for _, out := range outcomes {
			if out.Status != models.ItemError || !errors.Is(out.Err, shared.ErrCanceled) {
				t.Errorf("item %d: expected canceled error, got %s (%v)", out.Index, out.Status, out.Err)
			}
		}
		assertWellFormed(t, updates, len(refs))
	})

	t.Run("folder cycle guard", func(t *testing.T) {
		backend := mock.NewFakeBackend()
		backend.AddFolder("a", "A", "")
		backend.AddFile("f1", "one.txt", 1, "a")
		backend.AddFolder("b", "B", "a")
		backend.AddFile("f2", "two.txt", 1, "b")
		backend.Link("b", "a")

		outcomes, _ := runAndCollect(t, context.Background(), newTestEngine(backend), []models.Reference{folderRef("a")}, RunOpts{CallTimeout: time.Second})

		if outcomes[0].Status != models.ItemSuccess {
			t.Fatalf("expected success, got %s (%v)", outcomes[0].Status, outcomes[0].Err)
		}
		if outcomes[0].Result.FilesCopied != 2 {
			t.Errorf("expected 2 files copied, got %d", outcomes[0].Result.FilesCopied)
		}
		if folders := backend.CreatedFolders(); fmt.Sprint(folders) != "[A B]" {
			t.Errorf("expected folders [A B], got %v", folders)
		}
	})

	t.Run("folder child failure", func(t *testing.T) {
		backend := mock.NewFakeBackend()
		backend.AddFolder("dir", "Dir", "")
		backend.AddFile("ok", "ok.txt", 1, "dir")
		backend.AddFile("bad", "bad.txt", 1, "dir")
		backend.Fail["bad"] = errors.New("permission denied")

		outcomes, updates := runAndCollect(t, context.Background(), newTestEngine(backend), []models.Reference{folderRef("dir")}, RunOpts{})

		if outcomes[0].Status != models.ItemError {
			t.Fatalf("expected folder item to fail, got %s", outcomes[0].Status)
		}
		if msg := outcomes[0].Err.Error(); !strings.Contains(msg, "bad.txt") || !strings.Contains(msg, "permission denied") {
			t.Errorf("expected failing child and cause in message, got %q", msg)
		}
		assertWellFormed(t, updates, 1)
	})

	t.Run("worker bound", func(t *testing.T) {
		backend := mock.NewFakeBackend()
		var refs []models.Reference
		for i := 0; i < 8; i++ {
			id := fmt.Sprintf("file-%d", i)
			backend.AddFile(id, id, 1, "")
			backend.Delay[id] = 10 * time.Millisecond
			refs = append(refs, fileRef(id))
		}

		outcomes, _ := runAndCollect(t, context.Background(), newTestEngine(backend), refs, RunOpts{Concurrency: 2, RateLimit: 1000})

		if peak := backend.PeakConcurrency(); peak > 2 {
			t.Errorf("expected at most 2 concurrent copies, observed %d", peak)
		}
		for _, out := range outcomes {
			if out.Status != models.ItemSuccess {
				t.Errorf("item %d: expected success, got %v", out.Index, out.Err)
			}
		}
	})

	t.Run("empty list", func(t *testing.T) {
		backend := mock.NewFakeBackend()
		outcomes, err := newTestEngine(backend).Run(context.Background(), nil, nil, testDest, RunOpts{})
		if err != nil || len(outcomes) != 0 {
			t.Errorf("expected no outcomes and no error, got %v, %v", outcomes, err)
		}
	})

	t.Run("missing destination", func(t *testing.T) {
		backend := mock.NewFakeBackend()
		_, err := newTestEngine(backend).Run(context.Background(), nil, []models.Reference{fileRef("x")}, "", RunOpts{})
		if !errors.Is(err, shared.ErrDestination) {
			t.Errorf("expected ErrDestination, got %v", err)
		}
	})
}
