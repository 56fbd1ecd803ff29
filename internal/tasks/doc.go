// Package tasks runs batch copies against a remote storage backend with real-time progress reporting.
//
// # Work Distribution
//
// [CopyEngine.Run] starts min(concurrency, len(refs)) workers. Each worker claims the next index
// from a shared atomic cursor and processes it until the list is exhausted, so one large folder
// occupies a single worker while the others keep draining the list. Concurrency is clamped into
// [MinConcurrency, MaxConcurrency] by [ClampConcurrency].
//
// # Per Item Processing
//
//  1. Invalid reference : immediate error, no backend call
//  2. File : a single [services.Backend.CopyFile] call, backend progress mapped 1:1
//  3. Folder : metadata lookup, destination folder creation, then a recursive walk of the
//     children. Progress is floor(done/total*100) over the top level children and the final
//     message reports filesCopied=N.
//
// Errors, timeouts and panics are caught at the item boundary and become an error event for that
// index only. Sibling items and other workers are unaffected.
//
// # Progress Reporting
//
// Updates are sent on the progress channel with a blocking send. The consumer must drain the
// channel until Run returns, which guarantees every item's terminal event is delivered.
//
// # Limits
//
// [RunOpts.CallTimeout] bounds every backend call and [RunOpts.RateLimit] throttles them with a
// token bucket shared by all workers of the run. Cancelling the run's context stops new backend
// calls; items not yet finished end with [shared.ErrCanceled].
package tasks
