// Package ui implements an interactive job monitor using bubbletea's Elm architecture.
//
// Two views are available:
//  1. [JobListView] : Browse jobs known to the server, newest first
//  2. [JobDetailView] : Follow one job with per-item progress bars
//
// The detail view polls the server on a fixed interval and backs off after a failed poll.
// A job that no longer exists ends polling. Each watch session carries a generation number
// so ticks and poll results from a previous session are dropped.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, c, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
