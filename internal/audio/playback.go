package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/zhouzirui/speakeasy/internal/model/speech"
	"go.uber.org/zap"
)

// DefaultPlaybackAttempts is how many times a clip is tried before giving up.
const DefaultPlaybackAttempts = 3

var (
	ErrNothingToPlay  = errors.New("nothing to play")
	ErrPlaybackFailed = errors.New("playback failed")
)

// PlaybackOption customizes a PlaybackManager.
type PlaybackOption func(*PlaybackManager)

// WithAttempts overrides DefaultPlaybackAttempts. Values below one mean one.
func WithAttempts(n int) PlaybackOption {
	return func(m *PlaybackManager) {
		if n < 1 {
			n = 1
		}
		m.attempts = n
	}
}

// WithSpeaker selects the TTS voice.
func WithSpeaker(speaker string) PlaybackOption {
	return func(m *PlaybackManager) {
		m.speaker = speaker
	}
}

// WithChangeHook registers a callback fired after loading/playing state changes.
func WithChangeHook(fn func()) PlaybackOption {
	return func(m *PlaybackManager) {
		m.onChange = fn
	}
}

// PlaybackManager keeps at most one sound alive. Each Play call takes a new
// generation; a load that finishes after its generation was superseded is
// unloaded immediately instead of being played.
type PlaybackManager struct {
	player   Player
	tts      Synthesizer
	modes    *ModeController
	logger   *zap.Logger
	attempts int
	speaker  string
	onChange func()

	mu      sync.Mutex
	gen     uint64
	current int64 // id of the message being loaded or played, 0 when idle
	playing bool
	loading bool
	sound   Sound
	stopCh  chan struct{}

	watchers sync.WaitGroup
}

// NewPlaybackManager creates an idle manager.
func NewPlaybackManager(player Player, tts Synthesizer, modes *ModeController, logger *zap.Logger, opts ...PlaybackOption) *PlaybackManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if modes == nil {
		modes = NewModeController(nil, logger)
	}
	m := &PlaybackManager{
		player:   player,
		tts:      tts,
		modes:    modes,
		logger:   logger,
		attempts: DefaultPlaybackAttempts,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Play starts playback for message id. A recorded audioURI is played directly;
// otherwise text is synthesized. Calling Play for the id that is already
// loading or playing stops it instead.
func (m *PlaybackManager) Play(ctx context.Context, id int64, text, audioURI string) error {
	if audioURI == "" && strings.TrimSpace(text) == "" {
		return ErrNothingToPlay
	}

	m.mu.Lock()
	if m.current != 0 && m.current == id {
		m.stopLocked()
		m.mu.Unlock()
		m.notify()
		return nil
	}
	m.stopLocked()
	gen := m.gen
	m.current = id
	m.loading = true
	m.mu.Unlock()
	m.notify()

	m.modes.SetPlaybackMode(ctx)

	return m.run(ctx, clip{gen: gen, id: id, text: text, audioURI: audioURI}, 1)
}

// clip is one Play request, tagged with the generation it belongs to.
type clip struct {
	gen      uint64
	id       int64
	text     string
	audioURI string
}

// run tries to start c, counting from attempt first, and clears the slot when
// every attempt failed.
func (m *PlaybackManager) run(ctx context.Context, c clip, first int) error {
	var lastErr error
	for attempt := first; attempt <= m.attempts; attempt++ {
		started, superseded, err := m.attempt(ctx, c, attempt)
		if started || superseded {
			return nil
		}
		lastErr = err
		m.logger.Warn("playback attempt failed",
			zap.Int64("message_id", c.id),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", m.attempts),
			zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}

	m.mu.Lock()
	if m.gen == c.gen {
		m.current = 0
		m.loading = false
		m.playing = false
	}
	m.mu.Unlock()
	m.notify()

	return fmt.Errorf("%w: %v", ErrPlaybackFailed, lastErr)
}

func (m *PlaybackManager) attempt(ctx context.Context, c clip, tries int) (started, superseded bool, err error) {
	src, err := m.source(ctx, c.text, c.audioURI)
	if err != nil {
		return false, m.superseded(c.gen), err
	}

	sound, err := m.player.Load(ctx, src)
	if err != nil {
		return false, m.superseded(c.gen), fmt.Errorf("load sound: %w", err)
	}

	m.mu.Lock()
	if m.gen != c.gen {
		m.mu.Unlock()
		m.unload(sound)
		return false, true, nil
	}
	if err := sound.Play(); err != nil {
		m.mu.Unlock()
		m.unload(sound)
		return false, false, fmt.Errorf("play sound: %w", err)
	}
	stopCh := make(chan struct{})
	m.sound = sound
	m.stopCh = stopCh
	m.playing = true
	m.loading = false
	m.watchers.Add(1)
	m.mu.Unlock()

	go m.watch(ctx, c, tries, sound, stopCh)
	m.notify()
	return true, false, nil
}

func (m *PlaybackManager) source(ctx context.Context, text, audioURI string) (Source, error) {
	if audioURI != "" {
		return Source{URI: audioURI}, nil
	}
	if m.tts == nil {
		return Source{}, errors.New("no synthesizer configured")
	}
	data, err := m.tts.Synthesize(ctx, speech.TTSRequest{Text: text, Speaker: m.speaker})
	if err != nil {
		return Source{}, fmt.Errorf("synthesize: %w", err)
	}
	return Source{Data: data, Format: "mp3"}, nil
}

// watch clears the slot when the sound ends on its own. A sound that dies
// with an error counts as a failed attempt and is started again while
// attempts remain.
func (m *PlaybackManager) watch(ctx context.Context, c clip, tries int, sound Sound, stopCh <-chan struct{}) {
	defer m.watchers.Done()

	var err error
	select {
	case err = <-sound.Done():
	case <-stopCh:
		return
	}

	m.mu.Lock()
	if m.gen != c.gen || m.sound != sound {
		m.mu.Unlock()
		return
	}
	if err == nil || tries >= m.attempts || ctx.Err() != nil {
		m.stopLocked()
		m.mu.Unlock()
		if err != nil {
			m.logger.Warn("playback ended with error", zap.Int64("message_id", c.id), zap.Error(err))
		}
		m.notify()
		return
	}
	// 播放中途失败，保留代次并重新加载
	m.sound = nil
	m.stopCh = nil
	m.playing = false
	m.loading = true
	m.mu.Unlock()
	m.unload(sound)
	m.notify()

	m.logger.Warn("playback attempt failed",
		zap.Int64("message_id", c.id),
		zap.Int("attempt", tries),
		zap.Int("max_attempts", m.attempts),
		zap.Error(err))
	if err := m.run(ctx, c, tries+1); err != nil {
		m.logger.Warn("playback gave up", zap.Int64("message_id", c.id), zap.Error(err))
	}
}

// Stop halts whatever is loading or playing.
func (m *PlaybackManager) Stop() {
	m.mu.Lock()
	active := m.current != 0 || m.sound != nil
	m.stopLocked()
	m.mu.Unlock()
	if active {
		m.notify()
	}
}

// stopLocked bumps the generation and releases the current sound. Caller holds mu.
func (m *PlaybackManager) stopLocked() {
	m.gen++
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
	if m.sound != nil {
		m.unload(m.sound)
		m.sound = nil
	}
	m.current = 0
	m.playing = false
	m.loading = false
}

func (m *PlaybackManager) unload(sound Sound) {
	if err := sound.Stop(); err != nil {
		m.logger.Warn("failed to unload sound", zap.Error(err))
	}
}

func (m *PlaybackManager) superseded(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen != gen
}

// PlayingID returns the id whose audio is audible, or 0.
func (m *PlaybackManager) PlayingID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.playing {
		return 0
	}
	return m.current
}

// LoadingID returns the id whose audio is being prepared, or 0.
func (m *PlaybackManager) LoadingID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loading {
		return 0
	}
	return m.current
}

// IsLoading reports whether a clip is being synthesized or loaded.
func (m *PlaybackManager) IsLoading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// Wait blocks until every completion watcher has returned, i.e. until every
// started sound has finished or been stopped.
func (m *PlaybackManager) Wait() {
	m.watchers.Wait()
}

func (m *PlaybackManager) notify() {
	if m.onChange != nil {
		m.onChange()
	}
}
