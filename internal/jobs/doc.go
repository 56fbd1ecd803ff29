// Package jobs owns the in-memory job registry that sits between request handlers and the copy engine.
//
// A [Registry] is constructed once at process start and injected where it is needed. It holds one
// [models.Job] per submitted batch, starts a tracked goroutine per job that runs the
// [tasks.CopyEngine] and folds the engine's [tasks.ItemUpdate] events into the job record.
//
// # Consistency
//
// All reads and writes go through a single mutex. Callers only ever receive deep copies, so a
// snapshot is never torn and never changes after it is returned.
//
// Updates look the job up by id. Deleting a job while it runs is safe: the worker goroutines keep
// going and their updates no-op once the record is gone.
//
// # Lifecycle
//
//	processing -> complete   every item terminal
//	processing -> error      destination resolution failed, engine fault, or cancellation
//
// Terminal jobs are handed to the optional [Recorder] and become eligible for [Registry.GC].
package jobs
