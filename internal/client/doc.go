// Package client talks to a running drivecopy server over its JSON API.
//
// [Client.Watch] implements the status polling loop: it fetches the job every poll interval
// (500ms by default), waits the longer backoff interval (2s) after a transport fault, and stops
// when the job is terminal or the server no longer knows it.
package client
