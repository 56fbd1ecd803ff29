// Package repositories implements SQLite persistence for finished copy jobs.
//
// The in-memory job registry is the source of truth while a job runs. Once a job reaches a terminal
// state the registry hands it to [JobRepository.RecordJob], which stores the summary in jobs and one
// row per item in job_items. The history command reads it back after restarts.
//
// Records are soft deleted via deleted_at timestamps and excluded from queries by default.
//
// Sequence numbers provide stable, human-readable ordering (e.g. job #42) independent of job ids and
// creation timestamps. The [NextSequence] function atomically increments per-table sequence counters
// in dedicated sequence tables.
package repositories
