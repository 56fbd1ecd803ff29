package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/drivecopy/internal/models"
	"github.com/desertthunder/drivecopy/internal/server"
	"github.com/desertthunder/drivecopy/internal/shared"
)

type fakeClient struct {
	mu       sync.Mutex
	jobs     []server.JobView
	gets     []func() (*server.JobView, error)
	canceled []string
	listErr  error
}

func (f *fakeClient) List(ctx context.Context) ([]server.JobView, error) {
	return f.jobs, f.listErr
}

func (f *fakeClient) Get(ctx context.Context, id string) (*server.JobView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.gets) == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrJobNotFound, id)
	}
	next := f.gets[0]
	f.gets = f.gets[1:]
	return next()
}

func (f *fakeClient) Cancel(ctx context.Context, id string) error {
	f.canceled = append(f.canceled, id)
	return nil
}

func snapshot(status models.JobStatus, done, total int) func() (*server.JobView, error) {
	return func() (*server.JobView, error) {
		items := make([]models.CopyItem, total)
		for i := range items {
			items[i] = models.CopyItem{Index: i, Source: fmt.Sprintf("src-%d", i), Status: models.ItemPending}
			if i < done {
				items[i].Status = models.ItemSuccess
				items[i].Percent = 100
			}
		}
		return &server.JobView{Job: &models.Job{
			ID:             "job-1",
			Status:         status,
			TotalItems:     total,
			CompletedItems: done,
			SucceededItems: done,
			Items:          items,
		}}, nil
	}
}

// run executes a command synchronously and returns its message, skipping batches and ticks.
func run(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	return cmd()
}

func TestModel(t *testing.T) {
	ctx := context.Background()

	t.Run("Watch until terminal", func(t *testing.T) {
		client := &fakeClient{gets: []func() (*server.JobView, error){
			snapshot(models.JobProcessing, 1, 3),
			snapshot(models.JobComplete, 3, 3),
		}}
		m := NewModel(ctx, client, "job-1", Options{})

		msg := run(t, m.poll(m.gen))
		_, cmd := m.Update(msg)
		if m.Current() == nil || m.Current().CompletedItems != 1 {
			t.Fatalf("expected first snapshot, got %+v", m.Current())
		}
		if cmd == nil {
			t.Fatal("expected a follow-up poll to be scheduled")
		}
		if !strings.Contains(m.View(), "1/3 items") {
			t.Errorf("view missing counters:\n%s", m.View())
		}

		_, cmd = m.Update(pollTickMsg(m.gen))
		_, cmd = m.Update(run(t, cmd))
		if m.Current().Status != models.JobComplete {
			t.Errorf("expected complete, got %s", m.Current().Status)
		}
		if cmd != nil {
			t.Error("polling should stop once the job is terminal")
		}
		if !strings.Contains(m.View(), "complete") {
			t.Errorf("view missing status:\n%s", m.View())
		}
	})

	t.Run("Backoff on error", func(t *testing.T) {
		client := &fakeClient{gets: []func() (*server.JobView, error){
			func() (*server.JobView, error) { return nil, fmt.Errorf("%w: dial", shared.ErrServiceUnavailable) },
			snapshot(models.JobComplete, 1, 1),
		}}
		m := NewModel(ctx, client, "job-1", Options{})

		_, cmd := m.Update(run(t, m.poll(m.gen)))
		if m.pollErr == nil {
			t.Error("expected poll error to be recorded")
		}
		if cmd == nil {
			t.Fatal("expected a retry to be scheduled")
		}
		if !strings.Contains(m.View(), "Retrying in 2s") {
			t.Errorf("view should mention backoff:\n%s", m.View())
		}

		m.Update(pollTickMsg(m.gen))
		m.Update(run(t, m.poll(m.gen)))
		if m.pollErr != nil || m.Current() == nil {
			t.Errorf("expected recovery, err=%v current=%v", m.pollErr, m.Current())
		}
	})

	t.Run("Not found is terminal", func(t *testing.T) {
		m := NewModel(ctx, &fakeClient{}, "job-1", Options{})

		_, cmd := m.Update(run(t, m.poll(m.gen)))
		if cmd != nil {
			t.Error("expected polling to stop")
		}
		if !m.gone || !strings.Contains(m.View(), "no longer exists") {
			t.Errorf("expected gone view:\n%s", m.View())
		}
	})

	t.Run("Stale polls ignored", func(t *testing.T) {
		client := &fakeClient{gets: []func() (*server.JobView, error){snapshot(models.JobProcessing, 0, 1)}}
		m := NewModel(ctx, client, "job-1", Options{})
		stale := m.gen
		m.gen++

		if _, cmd := m.Update(run(t, m.poll(stale))); cmd != nil || m.Current() != nil {
			t.Error("poll from an old session must be dropped")
		}
		if _, cmd := m.Update(pollTickMsg(stale)); cmd != nil {
			t.Error("tick from an old session must be dropped")
		}
	})

	t.Run("List and open", func(t *testing.T) {
		job, _ := snapshot(models.JobProcessing, 0, 2)()
		client := &fakeClient{
			jobs: []server.JobView{*job},
			gets: []func() (*server.JobView, error){snapshot(models.JobProcessing, 0, 2)},
		}
		m := NewModel(ctx, client, "", Options{})
		m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})

		m.Update(run(t, m.fetchJobs()))
		if len(m.jobList.Items()) != 1 {
			t.Fatalf("expected 1 listed job, got %d", len(m.jobList.Items()))
		}

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		if m.view != JobDetailView || m.jobID != "job-1" {
			t.Fatalf("expected detail view for job-1, got view=%d id=%s", m.view, m.jobID)
		}
		m.Update(run(t, cmd))

		_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
		m.Update(run(t, cmd))
		if len(client.canceled) != 1 || client.canceled[0] != "job-1" {
			t.Errorf("expected cancel for job-1, got %v", client.canceled)
		}
		if !strings.Contains(m.View(), "Cancel requested") {
			t.Errorf("view missing cancel notice:\n%s", m.View())
		}

		m.Update(tea.KeyMsg{Type: tea.KeyEsc})
		if m.view != JobListView {
			t.Error("esc should return to the list")
		}
	})

	t.Run("List error quits", func(t *testing.T) {
		m := NewModel(ctx, &fakeClient{listErr: errors.New("connection refused")}, "", Options{})
		_, cmd := m.Update(run(t, m.fetchJobs()))
		if m.Err() == nil || cmd == nil {
			t.Error("expected error and quit command")
		}
		if !strings.Contains(m.View(), "connection refused") {
			t.Errorf("view missing error:\n%s", m.View())
		}
	})
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		percent int
		filled  int
	}{
		{0, 0},
		{50, 5},
		{100, 10},
		{150, 10},
		{-5, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.percent), func(t *testing.T) {
			bar := renderBar(tt.percent, 10)
			if got := strings.Count(bar, "█"); got != tt.filled {
				t.Errorf("expected %d filled cells, got %d", tt.filled, got)
			}
			if got := strings.Count(bar, "░"); got != 10-tt.filled {
				t.Errorf("expected %d empty cells, got %d", 10-tt.filled, got)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("expected unchanged, got %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Errorf("expected abcd…, got %q", got)
	}
}
