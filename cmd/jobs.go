package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/drivecopy/internal/formatter"
	"github.com/desertthunder/drivecopy/internal/models"
	"github.com/urfave/cli/v3"
)

// JobsList prints the jobs known to the server.
func (r *Runner) JobsList(ctx context.Context, cmd *cli.Command) error {
	c, err := r.newClient(cmd)
	if err != nil {
		return err
	}

	views, err := c.List(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		all := make([]*models.Job, len(views))
		for i, v := range views {
			all[i] = v.Job
		}
		return r.writeJSON(all, true)
	}

	if len(views) == 0 {
		return r.writePlain("No jobs\n")
	}

	r.writePlainHeader(fmt.Sprintf("Jobs (%d)", len(views)))
	for _, v := range views {
		r.writePlain("%s\n", formatter.Summary(v.Job))
	}
	return nil
}

// JobsGet prints or exports a single job.
func (r *Runner) JobsGet(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	c, err := r.newClient(cmd)
	if err != nil {
		return err
	}

	view, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	if view.ItemsTruncated {
		r.logger.Warn("item list truncated by the server", "job", id, "shown", len(view.Items), "total", view.TotalItems)
	}

	return r.report(view.Job, cmd.String("format"), cmd.String("output"))
}

// JobsDelete removes a job record from the server.
func (r *Runner) JobsDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	c, err := r.newClient(cmd)
	if err != nil {
		return err
	}

	deleted, err := c.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return r.writePlain("✗ Job %s not found\n", id)
	}
	return r.writePlain("✓ Deleted job %s\n", id)
}

// JobsCancel stops a processing job.
func (r *Runner) JobsCancel(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	c, err := r.newClient(cmd)
	if err != nil {
		return err
	}

	if err := c.Cancel(ctx, id); err != nil {
		return err
	}
	return r.writePlain("✓ Cancel requested for job %s\n", id)
}

// report renders job in format to stdout, or to path when set.
func (r *Runner) report(job *models.Job, format, path string) error {
	if path != "" {
		written, err := formatter.WriteExport(job, format, path)
		if err != nil {
			return err
		}
		r.logger.Info("report written", "path", written, "format", format)
		return r.writePlain("✓ Report written to %s\n", written)
	}

	data, err := formatter.Render(job, format)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
