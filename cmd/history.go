package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/drivecopy/internal/formatter"
	"github.com/desertthunder/drivecopy/internal/models"
	"github.com/desertthunder/drivecopy/internal/repositories"
	"github.com/desertthunder/drivecopy/internal/shared"
	"github.com/urfave/cli/v3"
)

func (r *Runner) openHistory(cmd *cli.Command) (*repositories.JobRepository, *sql.DB, error) {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	db, err := shared.OpenDatabase(config.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return repositories.NewJobRepository(db), db, nil
}

// HistoryList prints recorded jobs, newest first.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	repo, db, err := r.openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := repo.List(ctx, map[string]any{
		"status": cmd.String("status"),
		"limit":  cmd.Int("limit"),
	})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		all := make([]*models.Job, len(records))
		for i, rec := range records {
			all[i] = rec.Job
		}
		return r.writeJSON(all, true)
	}

	if len(records) == 0 {
		return r.writePlain("No recorded jobs\n")
	}

	r.writePlainHeader(fmt.Sprintf("History (%d)", len(records)))
	for _, rec := range records {
		r.writePlain("#%-4d %s  %s\n", rec.Sequence, rec.Job.CreatedAt.Format("2006-01-02 15:04"), formatter.Summary(rec.Job))
	}
	return nil
}

// HistoryShow prints or exports one recorded job with its items.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	repo, db, err := r.openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	rec, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	return r.report(rec.Job, cmd.String("format"), cmd.String("output"))
}

// HistoryDelete hides a recorded job.
func (r *Runner) HistoryDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	repo, db, err := r.openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repo.Delete(ctx, id); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted job %s from history\n", id)
}

// HistoryPrune permanently removes recorded jobs older than --older-than.
func (r *Runner) HistoryPrune(ctx context.Context, cmd *cli.Command) error {
	age := cmd.Duration("older-than")
	if age <= 0 {
		return fmt.Errorf("%w: --older-than must be positive", shared.ErrInvalidArgument)
	}

	repo, db, err := r.openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := repo.Prune(ctx, time.Now().Add(-age))
	if err != nil {
		return err
	}
	return r.writePlain("✓ Pruned %d job(s) older than %s\n", n, age)
}
