package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ashureev/neonnexus-chat/internal/chat"
)

// snapshotMsg delivers a new controller snapshot.
type snapshotMsg struct {
	snap chat.Snapshot
}

// subscriptionClosedMsg signals that the controller was closed.
type subscriptionClosedMsg struct{}

// mountedMsg signals that history has been loaded.
type mountedMsg struct{}

// submitDoneMsg carries the result of a submission.
type submitDoneMsg struct {
	err error
}

// resetDoneMsg carries the result of starting a new thread.
type resetDoneMsg struct {
	threadID string
	err      error
}

func waitForSnapshot(updates <-chan chat.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return subscriptionClosedMsg{}
		}
		return snapshotMsg{snap: snap}
	}
}

func mountCmd(ctrl *chat.Controller) tea.Cmd {
	return func() tea.Msg {
		ctrl.Mount(context.Background())
		return mountedMsg{}
	}
}

func submitCmd(ctrl *chat.Controller, text string) tea.Cmd {
	return func() tea.Msg {
		return submitDoneMsg{err: ctrl.SubmitText(context.Background(), text)}
	}
}
