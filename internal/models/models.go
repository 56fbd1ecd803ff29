// package models defines the data model for the drive copy service
package models

import (
	"time"
)

// Kind identifies what a [Reference] points at.
type Kind string

const (
	KindInvalid Kind = ""
	KindFile    Kind = "file"
	KindFolder  Kind = "folder"
)

// Reference is a parsed identifier extracted from user input.
//
// Raw keeps the original text so invalid input can still be reported per item.
type Reference struct {
	Kind Kind   `json:"kind,omitempty"`
	ID   string `json:"id,omitempty"`
	Raw  string `json:"raw"`
}

// Valid reports whether the reference resolved to a file or a folder.
func (r Reference) Valid() bool {
	return (r.Kind == KindFile || r.Kind == KindFolder) && r.ID != ""
}

// Metadata describes a remote object as returned by a backend.
type Metadata struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Kind      Kind     `json:"kind"`
	Size      int64    `json:"size,omitempty"`
	ParentIDs []string `json:"parentIds,omitempty"`
}

// CopyResult is the object created by a successful copy.
type CopyResult struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Size        int64  `json:"size,omitempty"`
	FilesCopied int    `json:"filesCopied,omitempty"` // Set for folder copies only
}

// ItemStatus is the lifecycle state of a [CopyItem].
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemProcessing ItemStatus = "processing"
	ItemSuccess    ItemStatus = "success"
	ItemError      ItemStatus = "error"
)

// Terminal reports whether no further updates are expected for the item.
func (s ItemStatus) Terminal() bool {
	return s == ItemSuccess || s == ItemError
}

// JobStatus is the lifecycle state of a [Job].
type JobStatus string

const (
	JobProcessing JobStatus = "processing"
	JobComplete   JobStatus = "complete"
	JobError      JobStatus = "error"
)

// Terminal reports whether the job has stopped processing.
func (s JobStatus) Terminal() bool {
	return s == JobComplete || s == JobError
}

// CopyItem is one element of a job, addressed by its Index.
type CopyItem struct {
	Index     int         `json:"index"`
	Source    string      `json:"source"`
	Reference Reference   `json:"reference"`
	Status    ItemStatus  `json:"status"`
	Percent   int         `json:"percent"`
	Message   string      `json:"message,omitempty"`
	Result    *CopyResult `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Job is one submitted batch of references with aggregate and per-item status.
type Job struct {
	ID               string     `json:"id"`
	Status           JobStatus  `json:"status"`
	TotalItems       int        `json:"totalItems"`
	CompletedItems   int        `json:"completedItems"`
	SucceededItems   int        `json:"succeededItems"`
	FailedItems      int        `json:"failedItems"`
	Items            []CopyItem `json:"items"`
	TargetFolderID   string     `json:"targetFolderId"`
	TargetFolderName string     `json:"targetFolderName,omitempty"`
	Concurrency      int        `json:"concurrency"`
	Error            string     `json:"error,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

// Clone returns a deep copy of the job so callers never share item state with the registry.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Items = make([]CopyItem, len(j.Items))
	for i, item := range j.Items {
		if item.Result != nil {
			r := *item.Result
			item.Result = &r
		}
		c.Items[i] = item
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Percent returns the aggregate progress of the job as a whole number between 0 and 100.
func (j *Job) Percent() int {
	if j.TotalItems == 0 {
		return 0
	}
	return j.CompletedItems * 100 / j.TotalItems
}
