// Package session is the per-screen chat state machine: it owns the message
// history, the microphone and the speaker for one conversation.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/speakeasy/internal/audio"
	"github.com/zhouzirui/speakeasy/internal/model/chat"
	"github.com/zhouzirui/speakeasy/internal/model/persona"
	"github.com/zhouzirui/speakeasy/internal/model/speech"
	"github.com/zhouzirui/speakeasy/internal/service/backend"
	chatsvc "github.com/zhouzirui/speakeasy/internal/service/chat"
)

// DefaultPopupTTL is how long a transient popup stays visible.
const DefaultPopupTTL = 3 * time.Second

var (
	ErrBusy           = errors.New("session is busy")
	ErrClosed         = errors.New("session is closed")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrUnknownTopic   = errors.New("unknown topic")
	ErrUnknownMessage = errors.New("unknown message")
	ErrNoFeedback     = errors.New("message has no feedback")
	ErrNotRecording   = errors.New("no recording in progress")
	ErrInitFailed     = errors.New("chat initialization failed")
)

// Popup texts.
const (
	PopupPleaseWait   = "Please wait for the current reply to finish."
	PopupNoSpeech     = "I couldn't hear anything. Please try speaking again."
	PopupAudioError   = "An error occurred while processing your audio. Please try again."
	PopupScenarioFail = "Sorry, we couldn't start this scenario. Please try again."
)

// Backend is the chat/session API.
type Backend interface {
	CreateSession(ctx context.Context, target persona.Target) (string, error)
	Chat(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error)
}

// Speech is the subset of the AI backend the session needs.
type Speech interface {
	Synthesize(ctx context.Context, req speech.TTSRequest) ([]byte, error)
	Transcribe(ctx context.Context, req speech.TranscribeRequest) (string, error)
}

// Listener is told about every observable state change. It may be called
// from any goroutine and must not call back into the Session synchronously.
type Listener interface {
	SessionChanged(Snapshot)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Snapshot)

func (f ListenerFunc) SessionChanged(s Snapshot) { f(s) }

// Deps are the collaborators a Session drives.
type Deps struct {
	Backend      Backend
	Speech       Speech
	Recorder     audio.Recorder
	Player       audio.Player
	Configurator audio.SessionConfigurator
	Logger       *zap.Logger
	Listener     Listener
}

// Options tune a Session.
type Options struct {
	Target           persona.Target
	TokenBudget      int
	Estimator        chatsvc.TokenEstimator
	PlaybackAttempts int
	PopupTTL         time.Duration
	Speaker          string
	IDs              *chat.IDSource
}

// FeedbackView is the open feedback modal.
type FeedbackView struct {
	Feedback chat.Feedback
	Original chat.Message
}

// Snapshot is a consistent copy of everything a screen renders.
type Snapshot struct {
	Target            persona.Target
	History           []chat.Message
	Draft             string
	IsTyping          bool
	IsRecording       bool
	IsProcessingAudio bool
	PlayingAudioID    int64
	IsAudioLoading    bool
	ShowTopics        bool
	Feedback          *FeedbackView
	Popup             string
	Initialized       bool
}

// Pending returns the message awaiting a reply, if any.
func (s Snapshot) Pending() (chat.Message, bool) {
	for _, msg := range s.History {
		if msg.IsLoading {
			return msg, true
		}
	}
	return chat.Message{}, false
}

type initState int

const (
	uninitialized initState = iota
	initializing
	initialized
)

// Session is one chat screen's worth of state. All methods are safe for
// concurrent use; blocking methods take a context.
type Session struct {
	backend  Backend
	speech   Speech
	logger   *zap.Logger
	listener Listener
	opts     Options
	ids      *chat.IDSource

	modes    *audio.ModeController
	recorder *audio.RecordingManager
	playback *audio.PlaybackManager

	// lifetime context for background playback
	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	mu              sync.Mutex
	history         []chat.Message
	draft           string
	typing          bool
	processingAudio bool
	showTopics      bool
	feedback        *FeedbackView
	popup           string
	popupSeq        uint64
	popupTimer      *time.Timer
	phase           initState
	initGen         uint64
	closed          bool
}

// New wires a Session. Nothing touches the network until InitializeChat.
func New(deps Deps, opts Options) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TokenBudget <= 0 {
		opts.TokenBudget = chatsvc.DefaultTokenBudget
	}
	if opts.Estimator == nil {
		opts.Estimator = chatsvc.WordCountEstimator{}
	}
	if opts.PlaybackAttempts <= 0 {
		opts.PlaybackAttempts = audio.DefaultPlaybackAttempts
	}
	if opts.PopupTTL == 0 {
		opts.PopupTTL = DefaultPopupTTL
	}
	ids := opts.IDs
	if ids == nil {
		ids = chat.NewIDSource()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		backend:  deps.Backend,
		speech:   deps.Speech,
		logger:   logger.With(zap.String("target", opts.Target.Label())),
		listener: deps.Listener,
		opts:     opts,
		ids:      ids,
		ctx:      ctx,
		cancel:   cancel,
	}

	s.modes = audio.NewModeController(deps.Configurator, s.logger)
	s.recorder = audio.NewRecordingManager(deps.Recorder, s.modes, s.logger)

	var tts audio.Synthesizer
	if deps.Speech != nil {
		tts = deps.Speech
	}
	s.playback = audio.NewPlaybackManager(deps.Player, tts, s.modes, s.logger,
		audio.WithAttempts(opts.PlaybackAttempts),
		audio.WithSpeaker(opts.Speaker),
		audio.WithChangeHook(s.notify),
	)
	return s
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Target:            s.opts.Target,
		History:           chat.CloneAll(s.history),
		Draft:             s.draft,
		IsTyping:          s.typing,
		IsRecording:       s.recorder.IsRecording(),
		IsProcessingAudio: s.processingAudio,
		PlayingAudioID:    s.playback.PlayingID(),
		IsAudioLoading:    s.playback.IsLoading(),
		ShowTopics:        s.showTopics,
		Popup:             s.popup,
		Initialized:       s.phase == initialized,
	}
	if s.feedback != nil {
		view := *s.feedback
		view.Original = view.Original.Clone()
		snap.Feedback = &view
	}
	return snap
}

func (s *Session) notify() {
	if s.listener == nil {
		return
	}
	s.listener.SessionChanged(s.Snapshot())
}

// SetDraft replaces the text-box contents.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	s.draft = text
	s.mu.Unlock()
	s.notify()
}

// DismissPopup hides the popup before its timer fires.
func (s *Session) DismissPopup() {
	s.mu.Lock()
	if s.popup == "" {
		s.mu.Unlock()
		return
	}
	s.clearPopupLocked()
	s.mu.Unlock()
	s.notify()
}

// showPopupLocked displays text and schedules its removal. Caller holds mu.
func (s *Session) showPopupLocked(text string) {
	s.clearPopupLocked()
	s.popup = text
	if s.opts.PopupTTL < 0 || s.closed {
		return
	}
	seq := s.popupSeq
	s.popupTimer = time.AfterFunc(s.opts.PopupTTL, func() {
		s.mu.Lock()
		if s.popupSeq != seq || s.popup == "" {
			s.mu.Unlock()
			return
		}
		s.popup = ""
		s.popupTimer = nil
		s.mu.Unlock()
		s.notify()
	})
}

func (s *Session) clearPopupLocked() {
	s.popupSeq++
	s.popup = ""
	if s.popupTimer != nil {
		s.popupTimer.Stop()
		s.popupTimer = nil
	}
}

func (s *Session) popupNow(text string) {
	s.mu.Lock()
	s.showPopupLocked(text)
	s.mu.Unlock()
	s.notify()
}

// PlayAudio plays (or toggles off) the audio for a message: the user's own
// recording when there is one, otherwise synthesized speech.
func (s *Session) PlayAudio(ctx context.Context, id int64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrUnknownMessage
	}
	msg := s.history[idx]
	s.mu.Unlock()

	if s.recorder.IsRecording() {
		return ErrBusy
	}

	err := s.playback.Play(ctx, msg.ID, msg.Content, msg.AudioURI)
	if errors.Is(err, audio.ErrNothingToPlay) {
		return err
	}
	if err != nil {
		s.logger.Warn("playback gave up", zap.Int64("message_id", id), zap.Error(err))
	}
	return nil
}

// StopAudio halts playback.
func (s *Session) StopAudio() {
	s.playback.Stop()
}

// playInBackground starts playback without blocking the caller. Nothing is
// played while the microphone is open.
func (s *Session) playInBackground(id int64, text string) {
	if s.recorder.IsRecording() {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.bg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.bg.Done()
		if err := s.playback.Play(s.ctx, id, text, ""); err != nil {
			s.logger.Warn("auto playback failed", zap.Int64("message_id", id), zap.Error(err))
		}
	}()
}

// Wait blocks until background playback has been started or abandoned. It
// does not wait for started sounds to finish.
func (s *Session) Wait() {
	s.bg.Wait()
}

// Blur releases the microphone and speaker, e.g. when the screen loses focus.
func (s *Session) Blur() {
	s.recorder.CleanUp()
	s.playback.Stop()
	s.modes.ResetAudioMode(context.Background())
	s.notify()
}

// Close tears the session down. Further calls return ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.clearPopupLocked()
	s.mu.Unlock()

	s.cancel()
	s.recorder.CleanUp()
	s.playback.Stop()
	s.bg.Wait()
	s.playback.Stop()
	s.playback.Wait()
	s.modes.ResetAudioMode(context.Background())
}

func (s *Session) indexLocked(id int64) int {
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) pendingLocked() bool {
	for _, msg := range s.history {
		if msg.IsLoading {
			return true
		}
	}
	return false
}
