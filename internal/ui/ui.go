package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/drivecopy/internal/models"
	"github.com/desertthunder/drivecopy/internal/server"
	"github.com/desertthunder/drivecopy/internal/shared"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	JobListView ViewState = iota
	JobDetailView
)

const barWidth = 40

// JobClient is the part of the API client the TUI needs. Implemented by client.Client.
type JobClient interface {
	List(ctx context.Context) ([]server.JobView, error)
	Get(ctx context.Context, id string) (*server.JobView, error)
	Cancel(ctx context.Context, id string) error
}

// Options configures polling cadence. Zero values use 500ms and 2s.
type Options struct {
	Interval time.Duration
	Backoff  time.Duration
}

// Model represents the TUI application state.
type Model struct {
	ctx     context.Context
	view    ViewState
	client  JobClient
	opts    Options
	width   int
	height  int
	jobList list.Model
	listed  bool

	jobID   string
	gen     int
	current *server.JobView
	gone    bool
	offset  int
	notice  string
	pollErr error

	standalone bool
	err        error
	spinner    spinner.Model
	help       help.Model
	keys       keyMap
}

// NewModel creates a TUI model. With an empty jobID it starts on the job list, otherwise it
// watches that job directly and esc does not lead back to a list.
func NewModel(ctx context.Context, client JobClient, jobID string, opts Options) *Model {
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.title.UnsetMarginBottom()

	m := &Model{
		ctx:        ctx,
		view:       JobListView,
		client:     client,
		opts:       opts,
		jobList:    list.New(nil, list.NewDefaultDelegate(), 0, 0),
		standalone: jobID != "",
		spinner:    s,
		help:       help.New(),
		keys:       newKeyMap(),
	}
	m.jobList.Title = "Copy Jobs"
	if jobID != "" {
		m.view = JobDetailView
		m.jobID = jobID
	}
	return m
}

// Init starts the spinner and either fetches the job list or begins polling the watched job.
func (m *Model) Init() tea.Cmd {
	if m.view == JobDetailView {
		return tea.Batch(m.spinner.Tick, m.poll(m.gen))
	}
	return tea.Batch(m.spinner.Tick, m.fetchJobs())
}

// Current returns the last snapshot received for the watched job.
func (m *Model) Current() *server.JobView {
	return m.current
}

// Err returns the error that stopped the TUI, if any.
func (m *Model) Err() error {
	return m.err
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.jobList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch m.view {
		case JobListView:
			return m.handleListKeys(msg)
		case JobDetailView:
			return m.handleDetailKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	if m.view == JobListView {
		m.jobList, cmd = m.jobList.Update(msg)
	}
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgJobsFetched:
		data := msg.data.(struct {
			jobs []server.JobView
			err  error
		})
		if data.err != nil {
			m.err = data.err
			return m, tea.Quit
		}
		items := make([]list.Item, len(data.jobs))
		for i, v := range data.jobs {
			items[i] = jobItem{job: v.Job}
		}
		m.listed = true
		return m, m.jobList.SetItems(items)

	case MsgPollTick:
		gen := msg.data.(int)
		if gen != m.gen || m.view != JobDetailView {
			return m, nil
		}
		return m, m.poll(gen)

	case MsgJobPolled:
		data := msg.data.(struct {
			gen  int
			view *server.JobView
			err  error
		})
		if data.gen != m.gen || m.view != JobDetailView {
			return m, nil
		}
		switch {
		case errors.Is(data.err, shared.ErrJobNotFound):
			m.gone = true
			m.pollErr = nil
			return m, nil
		case data.err != nil:
			m.pollErr = data.err
			return m, m.schedule(m.opts.Backoff)
		}
		m.pollErr = nil
		m.current = data.view
		if data.view.Status.Terminal() {
			return m, nil
		}
		return m, m.schedule(m.opts.Interval)

	case MsgJobCanceled:
		data := msg.data.(struct {
			id  string
			err error
		})
		if data.err != nil {
			m.notice = styles.err.Render(fmt.Sprintf("Cancel failed: %v", data.err))
		} else {
			m.notice = styles.warn.Render("Cancel requested")
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.jobList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.jobList, cmd = m.jobList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchJobs()
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.jobList.SelectedItem().(jobItem); ok {
			return m, m.watch(item.job.ID)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.jobList, cmd = m.jobList.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		if m.standalone {
			return m, nil
		}
		m.view = JobListView
		m.gen++
		return m, m.fetchJobs()
	case key.Matches(msg, m.keys.cancel):
		if m.current != nil && !m.current.Status.Terminal() {
			return m, m.cancelJob(m.jobID)
		}
	case key.Matches(msg, m.keys.up):
		if m.offset > 0 {
			m.offset--
		}
	case key.Matches(msg, m.keys.down):
		if m.current != nil && m.offset < len(m.current.Items)-1 {
			m.offset++
		}
	}
	return m, nil
}

// watch switches to the detail view for id and starts a fresh polling session.
func (m *Model) watch(id string) tea.Cmd {
	m.view = JobDetailView
	m.jobID = id
	m.gen++
	m.current = nil
	m.gone = false
	m.offset = 0
	m.notice = ""
	m.pollErr = nil
	return m.poll(m.gen)
}

func (m *Model) fetchJobs() tea.Cmd {
	return func() tea.Msg {
		jobs, err := m.client.List(m.ctx)
		return jobsFetchedMsg(jobs, err)
	}
}

func (m *Model) poll(gen int) tea.Cmd {
	id := m.jobID
	return func() tea.Msg {
		view, err := m.client.Get(m.ctx, id)
		return jobPolledMsg(gen, view, err)
	}
}

func (m *Model) schedule(d time.Duration) tea.Cmd {
	gen := m.gen
	return tea.Tick(d, func(time.Time) tea.Msg {
		return pollTickMsg(gen)
	})
}

func (m *Model) cancelJob(id string) tea.Cmd {
	return func() tea.Msg {
		return jobCanceledMsg(id, m.client.Cancel(m.ctx, id))
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case JobListView:
		return m.renderList()
	case JobDetailView:
		return m.renderDetail()
	default:
		return ""
	}
}

func (m *Model) renderList() string {
	if !m.listed {
		return fmt.Sprintf("%s Loading jobs...", m.spinner.View())
	}
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.refresh, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", m.jobList.View(), helpView)
}

func (m *Model) renderDetail() string {
	var b strings.Builder

	b.WriteString(styles.title.Render(fmt.Sprintf("Job %s", m.jobID)))
	b.WriteString("\n")

	helpKeys := []key.Binding{m.keys.up, m.keys.down, m.keys.cancel}
	if !m.standalone {
		helpKeys = append(helpKeys, m.keys.back)
	}
	helpKeys = append(helpKeys, m.keys.quit)
	helpView := m.help.ShortHelpView(helpKeys)

	switch {
	case m.gone:
		b.WriteString(styles.warn.Render("Job no longer exists on the server."))
		return fmt.Sprintf("%s\n\n%s", b.String(), helpView)
	case m.current == nil:
		fmt.Fprintf(&b, "%s Waiting for first snapshot...", m.spinner.View())
		if m.pollErr != nil {
			fmt.Fprintf(&b, "\n%s", styles.warn.Render(fmt.Sprintf("Retrying in %s: %v", m.opts.Backoff, m.pollErr)))
		}
		return fmt.Sprintf("%s\n\n%s", b.String(), helpView)
	}

	job := m.current.Job
	fmt.Fprintf(&b, "%s %s\n", m.statusLine(job), renderBar(job.Percent(), barWidth))
	fmt.Fprintf(&b, "%d/%d items • %s • %s\n",
		job.CompletedItems, job.TotalItems,
		styles.ok.Render(fmt.Sprintf("%d ok", job.SucceededItems)),
		styles.err.Render(fmt.Sprintf("%d failed", job.FailedItems)))
	if job.TargetFolderName != "" || job.TargetFolderID != "" {
		fmt.Fprintf(&b, "Destination: %s %s\n", job.TargetFolderName, styles.help.Render(job.TargetFolderID))
	}
	if job.Error != "" {
		fmt.Fprintf(&b, "%s\n", styles.err.Render("Error: "+job.Error))
	}
	if m.pollErr != nil {
		fmt.Fprintf(&b, "%s\n", styles.warn.Render(fmt.Sprintf("Connection problem, retrying in %s: %v", m.opts.Backoff, m.pollErr)))
	}
	if m.notice != "" {
		fmt.Fprintf(&b, "%s\n", m.notice)
	}

	b.WriteString("\n")
	for _, item := range m.visibleItems(job.Items) {
		fmt.Fprintf(&b, "%s\n", renderItem(item))
	}
	if m.current.ItemsTruncated {
		fmt.Fprintf(&b, "%s\n", styles.help.Render(fmt.Sprintf("showing %d of %d items", len(job.Items), job.TotalItems)))
	}

	return fmt.Sprintf("%s\n%s", b.String(), helpView)
}

func (m *Model) statusLine(job *models.Job) string {
	switch job.Status {
	case models.JobComplete:
		return styles.ok.Render("✓ complete")
	case models.JobError:
		return styles.err.Render("✗ error")
	default:
		return fmt.Sprintf("%s %s", m.spinner.View(), styles.warn.Render("processing"))
	}
}

// visibleItems returns the window of items that fits the terminal, starting at the scroll offset.
func (m *Model) visibleItems(items []models.CopyItem) []models.CopyItem {
	rows := m.height - 12
	if rows < 5 {
		rows = 5
	}
	start := min(m.offset, len(items))
	end := min(start+rows, len(items))
	return items[start:end]
}

func renderItem(item models.CopyItem) string {
	var glyph string
	switch item.Status {
	case models.ItemSuccess:
		glyph = styles.ok.Render("✓")
	case models.ItemError:
		glyph = styles.err.Render("✗")
	case models.ItemProcessing:
		glyph = styles.warn.Render("→")
	default:
		glyph = styles.help.Render("·")
	}

	label := item.Source
	if item.Reference.ID != "" {
		label = fmt.Sprintf("%s %s", item.Reference.Kind, item.Reference.ID)
	}
	line := fmt.Sprintf("%s %3d. %-50s %3d%%", glyph, item.Index+1, truncate(label, 50), item.Percent)
	if item.Message != "" {
		line += "  " + styles.help.Render(truncate(item.Message, 60))
	}
	return line
}

// renderBar draws a percent bar of the given width.
func renderBar(percent, width int) string {
	percent = max(0, min(percent, 100))
	filled := percent * width / 100
	return fmt.Sprintf("%s%s %3d%%",
		styles.bar.Render(strings.Repeat("█", filled)),
		styles.track.Render(strings.Repeat("░", width-filled)),
		percent)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
