package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/drivecopy/internal/shared"
	"github.com/desertthunder/drivecopy/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive job monitor. With an id it follows that job, otherwise it lists jobs.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/drivecopy-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	c, err := r.newClient(cmd)
	if err != nil {
		return err
	}

	model := ui.NewModel(ctx, c, cmd.StringArg("id"), ui.Options{
		Interval: r.config.Poll.Interval(),
		Backoff:  r.config.Poll.Backoff(),
	})
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return model.Err()
}
