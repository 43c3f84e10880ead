package ui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/zhouzirui/speakeasy/internal/pronunciation"
	"github.com/zhouzirui/speakeasy/internal/session"
)

type opDoneMsg struct {
	op  string
	err error
}

type practiceDoneMsg struct {
	err error
}

// ChatModel is the chat screen. All state lives in the session; the model
// only mirrors its latest snapshot plus the local input widgets.
type ChatModel struct {
	ctx      context.Context
	sess     *session.Session
	notifier *Notifier
	practice pronunciation.Deps
	logger   *zap.Logger

	snap     session.Snapshot
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	width    int
	height   int
	err      error

	drill      *pronunciation.Practice
	drillBusy  bool
	drillError error
}

// NewChatModel builds the screen. notifier must be the Listener the session was created with.
func NewChatModel(ctx context.Context, sess *session.Session, notifier *Notifier, practice pronunciation.Deps, logger *zap.Logger) ChatModel {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statusStyle

	vp := viewport.New(80, 20)

	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.CharLimit = 1000
	ti.Focus()

	return ChatModel{
		ctx:      ctx,
		sess:     sess,
		notifier: notifier,
		practice: practice,
		logger:   logger,
		snap:     sess.Snapshot(),
		viewport: vp,
		input:    ti,
		spinner:  s,
		width:    80,
		height:   30,
	}
}

func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		textinput.Blink,
		m.notifier.wait(),
		m.run("init", m.sess.InitializeChat),
	)
}

// run executes a blocking session operation off the UI goroutine.
func (m ChatModel) run(op string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = max(msg.Height-10, 3)
		m.input.Width = msg.Width - 6
		m.refresh()
		return m, nil

	case sessionChangedMsg:
		m.snap = m.sess.Snapshot()
		if m.snap.Draft != m.input.Value() {
			m.input.SetValue(m.snap.Draft)
			m.input.CursorEnd()
		}
		m.refresh()
		return m, m.notifier.wait()

	case opDoneMsg:
		// 忙碌和已关闭由会话自身的弹窗表达
		if msg.err != nil && !errors.Is(msg.err, session.ErrBusy) && !errors.Is(msg.err, session.ErrClosed) {
			m.logger.Warn("operation failed", zap.String("op", msg.op), zap.Error(msg.err))
			m.err = fmt.Errorf("%s: %w", msg.op, msg.err)
		} else {
			m.err = nil
		}
		return m, nil

	case practiceDoneMsg:
		m.drillBusy = false
		m.drillError = msg.err
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if _, pending := m.snap.Pending(); pending || m.snap.IsProcessingAudio {
			m.refresh()
		}
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.closeDrill()
			return m, tea.Quit
		}
		if m.drill != nil {
			return m.updateDrill(msg)
		}
		if m.snap.Feedback != nil {
			return m.updateFeedback(msg)
		}
		return m.updateChat(msg)
	}

	return m, nil
}

func (m ChatModel) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		if m.snap.Popup != "" {
			m.sess.DismissPopup()
			return m, nil
		}
		return m, tea.Quit

	case "enter":
		m.sess.SetDraft(m.input.Value())
		return m, m.run("send", m.sess.HandleSend)

	case "ctrl+r":
		return m, m.run("microphone", m.sess.HandleMicPress)

	case "ctrl+p":
		id, ok := m.snap.LastReplyID()
		if !ok {
			return m, nil
		}
		return m, m.run("play", func(ctx context.Context) error {
			return m.sess.PlayAudio(ctx, id)
		})

	case "ctrl+s":
		m.sess.StopAudio()
		return m, nil

	case "ctrl+n":
		return m, m.run("new chat", m.sess.StartNewChat)

	case "ctrl+f":
		id, ok := m.snap.LastFeedbackID()
		if !ok {
			return m, nil
		}
		if err := m.sess.ShowFeedback(id); err != nil {
			m.err = err
		}
		return m, nil

	case "1", "2", "3":
		if m.snap.ShowTopics && m.input.Value() == "" {
			topic := session.Topics[int(msg.String()[0]-'1')]
			return m, m.run("topic", func(ctx context.Context) error {
				return m.sess.HandleTopicSelect(ctx, topic)
			})
		}

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != m.snap.Draft {
		m.sess.SetDraft(m.input.Value())
	}
	return m, cmd
}

func (m ChatModel) updateFeedback(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		m.sess.CloseFeedback()
	case "p":
		sentence, err := m.sess.PracticeCorrection()
		if err != nil {
			m.err = err
			return m, nil
		}
		// 练习有自己的录音和播放，先释放聊天占用的麦克风和扬声器
		m.sess.Blur()
		drill, err := pronunciation.New(m.practice, sentence)
		if err != nil {
			m.err = err
			return m, nil
		}
		m.drill = drill
		m.drillError = nil
	}
	return m, nil
}

func (m ChatModel) updateDrill(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.drillBusy {
		return m, nil
	}
	drill := m.drill
	ctx := m.ctx

	switch msg.String() {
	case "esc":
		m.closeDrill()
		m.drill = nil
		return m, nil

	case "ctrl+r":
		if drill.IsRecording() {
			m.drillBusy = true
			return m, func() tea.Msg {
				_, err := drill.StopAndAssess(ctx, "")
				return practiceDoneMsg{err: err}
			}
		}
		m.drillError = drill.Start(ctx)
		return m, nil

	case "ctrl+p":
		return m, func() tea.Msg {
			return practiceDoneMsg{err: drill.PlayReference(ctx)}
		}

	case "ctrl+a":
		return m, func() tea.Msg {
			return practiceDoneMsg{err: drill.PlayAttempt(ctx)}
		}
	}
	return m, nil
}

func (m *ChatModel) closeDrill() {
	if m.drill != nil {
		m.drill.Close()
	}
}

func (m *ChatModel) refresh() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(renderHistory(m.snap, m.viewport.Width, m.spinner.View()))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m ChatModel) View() string {
	if m.drill != nil {
		return m.drillView()
	}

	s := titleStyle.Render("💬 "+m.snap.Target.Label()) + "\n"

	if !m.snap.Initialized && len(m.snap.History) == 0 {
		s += fmt.Sprintf("\n  %s Starting conversation...\n", m.spinner.View())
	} else {
		s += m.viewport.View() + "\n"
	}

	if m.snap.Feedback != nil {
		return s + renderFeedback(m.snap.Feedback, m.width)
	}

	if m.snap.ShowTopics {
		s += renderTopics() + "\n"
	}

	switch {
	case m.snap.IsRecording:
		s += errorStyle.Render("● Recording... ctrl+r to send") + "\n"
	case m.snap.IsProcessingAudio:
		s += statusStyle.Render(m.spinner.View()+" Processing audio...") + "\n"
	case m.snap.IsAudioLoading:
		s += statusStyle.Render(m.spinner.View()+" Loading audio...") + "\n"
	}

	if m.snap.Popup != "" {
		s += popupStyle.Render(m.snap.Popup) + "\n"
	}
	if m.err != nil {
		s += errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n"
	}

	s += "\n" + inputStyle.Render("> ") + m.input.View() + "\n"
	s += helpStyle.Render("enter: send • ctrl+r: mic • ctrl+p: play reply • ctrl+s: stop audio • ctrl+f: feedback • ctrl+n: new chat • esc: quit")
	return s
}

func (m ChatModel) drillView() string {
	s := renderAssessment(m.drill.Sentence(), m.drill.Result(), m.width) + "\n"

	switch {
	case m.drillBusy:
		s += statusStyle.Render(m.spinner.View()+" Scoring...") + "\n"
	case m.drill.IsRecording():
		s += errorStyle.Render("● Recording... ctrl+r to score") + "\n"
	}
	if m.drillError != nil {
		s += errorStyle.Render(fmt.Sprintf("Error: %v", m.drillError)) + "\n"
	}

	s += "\n" + helpStyle.Render("ctrl+r: record/score • ctrl+p: hear it • ctrl+a: hear yourself • esc: back to chat")
	return s
}
