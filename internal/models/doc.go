// Package models defines the domain entities shared by the copy engine, the job registry and the HTTP layer.
//
// The package contains three groups of types:
//
// 1. Source references produced by the URL parser
//   - [Reference] : a parsed file or folder identifier (kind + id), or an invalid input
//
// 2. Remote storage metadata returned by a backend
//   - [Metadata] : id, name, kind, size and parents of a remote object
//   - [CopyResult] : the object created by a successful copy
//
// 3. Job state owned by the registry
//   - [Job] : one submitted batch with aggregate counters and per-item state
//   - [CopyItem] : one reference's copy outcome within a job
//
// A [Job] is only mutated by the registry; every value handed out to callers is a deep copy made with [Job.Clone].
package models
