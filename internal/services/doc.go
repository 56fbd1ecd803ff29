// Package services defines the [Backend] interface for remote storage providers and implements it for Google Drive.
//
// # Backend Interface
//
// The copy engine never talks HTTP directly. It consumes four primitives: create a folder, read
// metadata, copy one file and list a folder's children. Recursive folder copies are composed from
// these by the engine, which keeps the provider surface small and easy to fake in tests.
//
// # Drive Implementation
//
// [DriveService] calls the Drive v3 REST API with an [oauth2.Config] built from the [credentials.drive]
// config section. Tokens are cached as JSON at the configured token path and refreshed automatically
// by the [oauth2] transport.
//
// All requests set supportsAllDrives so shared drives behave like My Drive.
//
// # Error Handling
//
// Non-2xx responses are mapped to sentinel errors from the shared package, with the API's own message kept:
//   - [shared.ErrNotAuthenticated] : no token installed
//   - [shared.ErrNotFound] : 404
//   - [shared.ErrPermissionDenied] : 401 / 403
//   - [shared.ErrQuotaExceeded] : 429 or a rate/quota 403
//   - [shared.ErrServiceUnavailable] : 5xx
//   - [shared.ErrAPIRequest] : anything else
package services
