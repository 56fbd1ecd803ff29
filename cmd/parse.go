package main

import (
	"context"

	"github.com/desertthunder/drivecopy/internal/models"
	"github.com/desertthunder/drivecopy/internal/references"
	"github.com/urfave/cli/v3"
)

// Parse reports how each reference is recognized without contacting Drive.
func (r *Runner) Parse(ctx context.Context, cmd *cli.Command) error {
	raws, err := r.readReferences(cmd)
	if err != nil {
		return err
	}

	refs := references.ParseAll(raws)

	if cmd.Bool("json") {
		return r.writeJSON(refs, true)
	}

	valid := 0
	for i, ref := range refs {
		if ref.Kind == models.KindInvalid {
			r.writePlain("✗ %d. invalid  %s\n", i+1, ref.Raw)
			continue
		}
		valid++
		r.writePlain("✓ %d. %-7s %s\n", i+1, ref.Kind, ref.ID)
	}
	return r.writePlainln("%d of %d reference(s) recognized", valid, len(refs))
}
