package tasks

import (
	"fmt"

	"github.com/desertthunder/drivecopy/internal/models"
)

// ItemUpdate is a progress event for one item of a run.
//
// Events for a single index are ordered and end in exactly one terminal event; events for
// different indices interleave freely.
type ItemUpdate struct {
	Index   int                // Position of the item in the submitted list
	Status  models.ItemStatus  // processing, success or error
	Percent int                // 0..100, non-decreasing per item
	Message string             // Human-readable message for display
	Result  *models.CopyResult // Set on success
	Error   string             // Set on error
}

// Terminal reports whether this is the item's final event.
func (u ItemUpdate) Terminal() bool {
	return u.Status.Terminal()
}

func startedUpdate(index int, ref models.Reference) ItemUpdate {
	return ItemUpdate{
		Index:   index,
		Status:  models.ItemProcessing,
		Message: fmt.Sprintf("Copying %s %s...", ref.Kind, ref.ID),
	}
}

func progressUpdate(index, percent int, ref models.Reference) ItemUpdate {
	return ItemUpdate{
		Index:   index,
		Status:  models.ItemProcessing,
		Percent: percent,
		Message: fmt.Sprintf("Copying %s %s (%d%%)", ref.Kind, ref.ID, percent),
	}
}

func fileCopiedUpdate(index int, res *models.CopyResult) ItemUpdate {
	return ItemUpdate{
		Index:   index,
		Status:  models.ItemSuccess,
		Percent: 100,
		Message: fmt.Sprintf("Copied %q", res.Name),
		Result:  res,
	}
}

func folderCopiedUpdate(index int, res *models.CopyResult) ItemUpdate {
	return ItemUpdate{
		Index:   index,
		Status:  models.ItemSuccess,
		Percent: 100,
		Message: fmt.Sprintf("Copied folder %q (filesCopied=%d)", res.Name, res.FilesCopied),
		Result:  res,
	}
}

func failedUpdate(index, percent int, err error) ItemUpdate {
	return ItemUpdate{
		Index:   index,
		Status:  models.ItemError,
		Percent: percent,
		Message: fmt.Sprintf("Failed: %v", err),
		Error:   err.Error(),
	}
}
