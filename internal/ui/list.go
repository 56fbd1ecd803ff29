package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/drivecopy/internal/models"
)

var _ list.Item = jobItem{}

// jobItem wraps [models.Job] to implement [list.Item].
type jobItem struct {
	job *models.Job
}

func (i jobItem) FilterValue() string { return i.job.ID }
func (i jobItem) Title() string {
	return fmt.Sprintf("%s  %s", statusGlyph(i.job.Status), i.job.ID)
}
func (i jobItem) Description() string {
	desc := fmt.Sprintf("%d/%d items • %d ok • %d failed", i.job.CompletedItems, i.job.TotalItems, i.job.SucceededItems, i.job.FailedItems)
	if i.job.TargetFolderName != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.job.TargetFolderName)
	}
	return desc
}

func statusGlyph(s models.JobStatus) string {
	switch s {
	case models.JobComplete:
		return styles.ok.Render("✓")
	case models.JobError:
		return styles.err.Render("✗")
	default:
		return styles.warn.Render("…")
	}
}
