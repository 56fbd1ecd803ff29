package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/drivecopy/internal/server"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgJobsFetched MsgKind = iota
	MsgJobPolled
	MsgPollTick
	MsgJobCanceled
)

// jobsFetchedMsg is the constructor for [MsgJobsFetched]
func jobsFetchedMsg(jobs []server.JobView, err error) Msg {
	return Msg{
		kind: MsgJobsFetched,
		data: struct {
			jobs []server.JobView
			err  error
		}{jobs, err},
	}
}

// jobPolledMsg is the constructor for [MsgJobPolled]
func jobPolledMsg(gen int, view *server.JobView, err error) Msg {
	return Msg{
		kind: MsgJobPolled,
		data: struct {
			gen  int
			view *server.JobView
			err  error
		}{gen, view, err},
	}
}

// pollTickMsg is the constructor for [MsgPollTick]. gen identifies the watch session that scheduled it.
func pollTickMsg(gen int) Msg {
	return Msg{kind: MsgPollTick, data: gen}
}

// jobCanceledMsg is the constructor for [MsgJobCanceled]
func jobCanceledMsg(id string, err error) Msg {
	return Msg{
		kind: MsgJobCanceled,
		data: struct {
			id  string
			err error
		}{id, err},
	}
}
