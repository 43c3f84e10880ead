// Package pronunciation drives the "say it again" drill that follows a
// correction: record the learner reading a sentence and score it.
package pronunciation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/speakeasy/internal/audio"
	"github.com/zhouzirui/speakeasy/internal/model/speech"
)

const (
	referenceID int64 = 1
	attemptID   int64 = 2
)

var (
	ErrEmptySentence = errors.New("nothing to practice")
	ErrNoAttempt     = errors.New("no recorded attempt yet")
)

// Assessor scores a recording against the expected sentence and voices the
// reference reading.
type Assessor interface {
	AssessPronunciation(ctx context.Context, title string, audio []byte) (*speech.Assessment, error)
	Synthesize(ctx context.Context, req speech.TTSRequest) ([]byte, error)
}

// Deps are the devices and services a Practice uses.
type Deps struct {
	Assessor     Assessor
	Recorder     audio.Recorder
	Player       audio.Player
	Configurator audio.SessionConfigurator
	Logger       *zap.Logger
}

// Practice owns its own microphone and speaker, separate from the chat's.
type Practice struct {
	sentence string
	assessor Assessor
	logger   *zap.Logger

	modes    *audio.ModeController
	recorder *audio.RecordingManager
	playback *audio.PlaybackManager

	mu      sync.Mutex
	attempt string
	result  *speech.Assessment
}

// New prepares a drill for sentence.
func New(deps Deps, sentence string) (*Practice, error) {
	sentence = strings.TrimSpace(sentence)
	if sentence == "" {
		return nil, ErrEmptySentence
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "pronunciation"))

	modes := audio.NewModeController(deps.Configurator, logger)
	var tts audio.Synthesizer
	if deps.Assessor != nil {
		tts = deps.Assessor
	}
	return &Practice{
		sentence: sentence,
		assessor: deps.Assessor,
		logger:   logger,
		modes:    modes,
		recorder: audio.NewRecordingManager(deps.Recorder, modes, logger),
		playback: audio.NewPlaybackManager(deps.Player, tts, modes, logger),
	}, nil
}

// Sentence is the text being practiced.
func (p *Practice) Sentence() string { return p.sentence }

// Start stops any playback and begins recording an attempt.
func (p *Practice) Start(ctx context.Context) error {
	p.playback.Stop()
	return p.recorder.Start(ctx)
}

// IsRecording reports whether an attempt is being captured.
func (p *Practice) IsRecording() bool {
	return p.recorder.IsRecording()
}

// StopAndAssess finishes the attempt and sends it for scoring. title defaults
// to the practiced sentence.
func (p *Practice) StopAndAssess(ctx context.Context, title string) (*speech.Assessment, error) {
	uri, err := p.recorder.Stop(ctx)
	if err != nil {
		return nil, err
	}
	if uri == "" {
		return nil, audio.ErrNothingToPlay
	}

	p.mu.Lock()
	p.attempt = uri
	p.mu.Unlock()

	data, err := os.ReadFile(strings.TrimPrefix(uri, "file://"))
	if err != nil {
		return nil, fmt.Errorf("read attempt: %w", err)
	}

	if strings.TrimSpace(title) == "" {
		title = p.sentence
	}
	result, err := p.assessor.AssessPronunciation(ctx, title, data)
	if err != nil {
		p.logger.Error("pronunciation assessment failed", zap.Error(err))
		return nil, err
	}

	p.mu.Lock()
	p.result = result
	p.mu.Unlock()

	p.logger.Info("pronunciation assessed", zap.String("accuracy", result.PronunciationAccuracy))
	return result, nil
}

// Result returns the latest assessment, if any.
func (p *Practice) Result() *speech.Assessment {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

// PlayReference speaks the sentence. Calling it again while it plays stops it.
func (p *Practice) PlayReference(ctx context.Context) error {
	return p.playback.Play(ctx, referenceID, p.sentence, "")
}

// PlayAttempt replays the learner's last recording.
func (p *Practice) PlayAttempt(ctx context.Context) error {
	p.mu.Lock()
	uri := p.attempt
	p.mu.Unlock()
	if uri == "" {
		return ErrNoAttempt
	}
	return p.playback.Play(ctx, attemptID, "", uri)
}

// PlayingReference reports whether the reference reading is audible.
func (p *Practice) PlayingReference() bool {
	return p.playback.PlayingID() == referenceID
}

// Close releases the microphone and speaker.
func (p *Practice) Close() {
	p.recorder.CleanUp()
	p.playback.Stop()
	p.playback.Wait()
	p.modes.ResetAudioMode(context.Background())
}
