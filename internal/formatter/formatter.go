// package formatter renders job reports as JSON, CSV, Markdown or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/drivecopy/internal/models"
	"github.com/desertthunder/drivecopy/internal/shared"
)

// Format names accepted by [Render] and [WriteExport].
const (
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatText     = "txt"
)

// Formats lists every supported format.
var Formats = []string{FormatJSON, FormatCSV, FormatMarkdown, FormatText}

// Render converts a job to the named format. "md" and "text" are accepted as aliases.
func Render(job *models.Job, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatJSON, "":
		return shared.MarshalJSON(job, true)
	case FormatCSV:
		return ExportToCSV(job)
	case FormatMarkdown, "md":
		return ExportToMarkdown(job)
	case FormatText, "text":
		return ExportToText(job)
	default:
		return nil, fmt.Errorf("%w: unknown format %q (want one of %s)", shared.ErrInvalidArgument, format, strings.Join(Formats, ", "))
	}
}

// ExportToCSV converts a job's items to CSV with columns: Index, Source, Kind, SourceID, Status, Percent, ResultID, ResultName, FilesCopied, Error
func ExportToCSV(job *models.Job) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Index", "Source", "Kind", "SourceID", "Status", "Percent", "ResultID", "ResultName", "FilesCopied", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, item := range job.Items {
		var resultID, resultName, filesCopied string
		if item.Result != nil {
			resultID, resultName = item.Result.ID, item.Result.Name
			if item.Reference.Kind == models.KindFolder {
				filesCopied = strconv.Itoa(item.Result.FilesCopied)
			}
		}

		record := []string{
			strconv.Itoa(item.Index),
			item.Source,
			string(item.Reference.Kind),
			item.Reference.ID,
			string(item.Status),
			strconv.Itoa(item.Percent),
			resultID,
			resultName,
			filesCopied,
			item.Error,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a job to a Markdown report with a summary and an item table
func ExportToMarkdown(job *models.Job) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Copy job %s\n\n", job.ID)
	fmt.Fprintf(&buf, "**Status**: %s\n", job.Status)
	fmt.Fprintf(&buf, "**Destination**: %s\n", destination(job))
	fmt.Fprintf(&buf, "**Items**: %d/%d done, %d succeeded, %d failed\n", job.CompletedItems, job.TotalItems, job.SucceededItems, job.FailedItems)
	fmt.Fprintf(&buf, "**Created**: %s\n", job.CreatedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Fprintf(&buf, "**Duration**: %s\n", job.CompletedAt.Sub(job.CreatedAt).Round(time.Millisecond))
	}
	if job.Error != "" {
		fmt.Fprintf(&buf, "**Error**: %s\n", job.Error)
	}

	buf.WriteString("\n## Items\n\n")
	buf.WriteString("| # | Source | Status | Progress | Result |\n")
	buf.WriteString("|---|--------|--------|----------|--------|\n")
	for _, item := range job.Items {
		fmt.Fprintf(&buf, "| %d | %s | %s | %d%% | %s |\n",
			item.Index+1, escapeCell(item.Source), item.Status, item.Percent, escapeCell(outcome(item)))
	}

	return buf.Bytes(), nil
}

// ExportToText converts a job to plain text format
func ExportToText(job *models.Job) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Job: %s\n", job.ID)
	fmt.Fprintf(&buf, "Status: %s (%d%%)\n", job.Status, job.Percent())
	fmt.Fprintf(&buf, "Destination: %s\n", destination(job))
	fmt.Fprintf(&buf, "Items: %d/%d (%d ok, %d failed)\n", job.CompletedItems, job.TotalItems, job.SucceededItems, job.FailedItems)
	if job.Error != "" {
		fmt.Fprintf(&buf, "Error: %s\n", job.Error)
	}
	buf.WriteString("\n")

	for _, item := range job.Items {
		fmt.Fprintf(&buf, "%d. [%s] %s - %s\n", item.Index+1, item.Status, item.Source, outcome(item))
	}

	return buf.Bytes(), nil
}

// Summary returns a one-line description of a job.
func Summary(job *models.Job) string {
	s := fmt.Sprintf("%s  %-10s  %d/%d  ok=%d failed=%d  %s",
		job.ID, job.Status, job.CompletedItems, job.TotalItems, job.SucceededItems, job.FailedItems, destination(job))
	if job.Error != "" {
		s += "  error: " + job.Error
	}
	return s
}

// WriteExport renders the job and writes it to path.
//
// Defaults to {job.ID}.{ext} as the filename.
func WriteExport(job *models.Job, format, path string) (string, error) {
	data, err := Render(job, format)
	if err != nil {
		return "", err
	}

	if path == "" {
		path = fmt.Sprintf("%s.%s", job.ID, extension(format))
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}

func extension(format string) string {
	switch strings.ToLower(format) {
	case FormatMarkdown, "md":
		return "md"
	case FormatText, "text":
		return "txt"
	case FormatCSV:
		return "csv"
	default:
		return "json"
	}
}

func destination(job *models.Job) string {
	switch {
	case job.TargetFolderName != "" && job.TargetFolderID != "":
		return fmt.Sprintf("%s (%s)", job.TargetFolderName, job.TargetFolderID)
	case job.TargetFolderID != "":
		return job.TargetFolderID
	case job.TargetFolderName != "":
		return job.TargetFolderName
	default:
		return "-"
	}
}

// outcome describes an item's result in a few words.
func outcome(item models.CopyItem) string {
	switch {
	case item.Error != "":
		return item.Error
	case item.Result != nil && item.Reference.Kind == models.KindFolder:
		return fmt.Sprintf("%s (%d files)", item.Result.Name, item.Result.FilesCopied)
	case item.Result != nil:
		return item.Result.Name
	case item.Message != "":
		return item.Message
	default:
		return "-"
	}
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
