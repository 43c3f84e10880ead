package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/zhouzirui/speakeasy/internal/session"
)

type sessionChangedMsg struct{}

// Notifier bridges session callbacks into the bubbletea loop. Bursts of
// changes collapse into one wake-up; the model re-reads the snapshot anyway.
type Notifier struct {
	ch chan struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{}, 1)}
}

// SessionChanged implements session.Listener. It never blocks.
func (n *Notifier) SessionChanged(session.Snapshot) {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

func (n *Notifier) wait() tea.Cmd {
	return func() tea.Msg {
		<-n.ch
		return sessionChangedMsg{}
	}
}
