package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/drivecopy/internal/formatter"
	"github.com/desertthunder/drivecopy/internal/jobs"
	"github.com/desertthunder/drivecopy/internal/models"
	"github.com/desertthunder/drivecopy/internal/server"
	"github.com/urfave/cli/v3"
)

// Copy submits references to the server and follows the job until it finishes.
func (r *Runner) Copy(ctx context.Context, cmd *cli.Command) error {
	refs, err := r.readReferences(cmd)
	if err != nil {
		return err
	}

	c, err := r.newClient(cmd)
	if err != nil {
		return err
	}

	req := jobs.SubmitRequest{
		References:       refs,
		TargetFolderID:   cmd.String("folder-id"),
		TargetFolderName: cmd.String("folder-name"),
	}
	if cmd.IsSet("concurrency") {
		n := cmd.Int("concurrency")
		req.Concurrency = &n
	}

	resp, err := c.Submit(ctx, req)
	if err != nil {
		if resp != nil {
			r.logger.Error("job failed before starting", "job", resp.JobID)
		}
		return err
	}

	r.logger.Info("job submitted", "job", resp.JobID, "items", len(refs), "dest", resp.TargetFolderID)
	if cmd.Bool("detach") {
		return r.writePlain("%s\n", resp.JobID)
	}

	r.writePlain("→ Job %s: copying %d item(s) into %s\n", resp.JobID, len(refs), resp.TargetFolderID)

	printer := newItemPrinter(r)
	final, err := c.Watch(ctx, resp.JobID, printer.update)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(final.Job, true)
	}

	r.writePlainln("%s", formatter.Summary(final.Job))
	if final.Status == models.JobError && final.Error != "" {
		return fmt.Errorf("job %s failed: %s", final.ID, final.Error)
	}
	return nil
}

// itemPrinter writes one line per item the first time it is seen in a terminal state.
type itemPrinter struct {
	r    *Runner
	seen map[int]bool
}

func newItemPrinter(r *Runner) *itemPrinter {
	return &itemPrinter{r: r, seen: make(map[int]bool)}
}

func (p *itemPrinter) update(view *server.JobView) {
	for _, item := range view.Items {
		if !item.Status.Terminal() || p.seen[item.Index] {
			continue
		}
		p.seen[item.Index] = true

		mark := "✓"
		if item.Status == models.ItemError {
			mark = "✗"
		}
		msg := item.Message
		if msg == "" {
			msg = item.Source
		}
		p.r.writePlain("%s [%d/%d] %s\n", mark, item.Index+1, view.TotalItems, msg)
	}
}
