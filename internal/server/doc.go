// Package server provides HTTP routing, middleware, the job API and OAuth handling.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [Logging] and [Recover] are the middleware the serve command installs.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns ("GET /api/jobs/{id}").
//
// # Job API
//
// [JobsHandler] exposes a [JobStore] (the job registry) over JSON:
//
//	POST   /api/jobs              submit references, 202 {jobId, targetFolderId, status}
//	GET    /api/jobs              list snapshots, newest first
//	GET    /api/jobs/{id}         one snapshot, items capped to the display limit
//	DELETE /api/jobs/{id}         remove a job record
//	POST   /api/jobs/{id}/cancel  stop a processing job
//	GET    /health                liveness
//
// Failures are reported as [ErrorResponse] bodies with a stable code.
//
// # OAuth Callback Handler
//
// OAuthHandler implements the OAuth2 authorization code callback flow for Google Drive.
//
// The handler validates the state parameter (CSRF protection), exchanges the authorization code for tokens,
// and sends the result through a channel.
//
// It only processes one callback to prevent replay attacks.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
