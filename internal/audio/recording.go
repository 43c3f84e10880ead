package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// RecordingState models the microphone lifecycle.
type RecordingState string

const (
	RecordingIdle     RecordingState = "idle"
	RecordingActive   RecordingState = "recording"
	RecordingStopping RecordingState = "stopping"
)

var (
	ErrAlreadyRecording = errors.New("a recording is already in progress")
	ErrPermissionDenied = errors.New("microphone permission denied")
)

// RecordingManager owns at most one live recording. It belongs to a single
// session; start/stop/cleanup are serialized.
type RecordingManager struct {
	recorder Recorder
	modes    *ModeController
	logger   *zap.Logger

	opMu sync.Mutex // serializes Start/Stop/CleanUp

	mu      sync.Mutex
	state   RecordingState
	current Recording
}

// NewRecordingManager creates an idle manager.
func NewRecordingManager(recorder Recorder, modes *ModeController, logger *zap.Logger) *RecordingManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if modes == nil {
		modes = NewModeController(nil, logger)
	}
	return &RecordingManager{
		recorder: recorder,
		modes:    modes,
		logger:   logger,
		state:    RecordingIdle,
	}
}

// Start asks for microphone permission and begins capturing.
func (m *RecordingManager) Start(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if state := m.State(); state != RecordingIdle {
		m.logger.Warn("start recording ignored", zap.String("state", string(state)))
		return ErrAlreadyRecording
	}

	granted, err := m.recorder.RequestPermission(ctx)
	if err != nil {
		m.logger.Error("microphone permission request failed", zap.Error(err))
		return fmt.Errorf("request microphone permission: %w", err)
	}
	if !granted {
		m.logger.Warn("microphone permission denied")
		return ErrPermissionDenied
	}

	m.modes.SetRecordingMode(ctx)

	rec, err := m.recorder.Start(ctx)
	if err != nil {
		m.logger.Error("failed to start recording", zap.Error(err))
		m.modes.SetPlaybackMode(ctx)
		return fmt.Errorf("start recording: %w", err)
	}

	m.mu.Lock()
	m.current = rec
	m.state = RecordingActive
	m.mu.Unlock()

	m.logger.Debug("recording started")
	return nil
}

// Stop finalizes the active recording and returns its URI. It returns an empty
// URI and no error when nothing was recording.
func (m *RecordingManager) Stop(ctx context.Context) (string, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.state != RecordingActive || m.current == nil {
		m.mu.Unlock()
		return "", nil
	}
	rec := m.current
	m.state = RecordingStopping
	m.mu.Unlock()

	uri, err := rec.Stop()

	m.mu.Lock()
	m.current = nil
	m.state = RecordingIdle
	m.mu.Unlock()

	m.modes.SetPlaybackMode(ctx)

	if err != nil {
		m.logger.Error("failed to stop recording", zap.Error(err))
		return "", fmt.Errorf("stop recording: %w", err)
	}
	m.logger.Debug("recording stopped", zap.String("uri", uri))
	return uri, nil
}

// CleanUp force-stops and discards any recording. Safe to call at any time.
func (m *RecordingManager) CleanUp() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	rec := m.current
	m.current = nil
	m.state = RecordingIdle
	m.mu.Unlock()

	if rec == nil {
		return
	}
	if err := rec.Discard(); err != nil {
		m.logger.Warn("failed to discard recording", zap.Error(err))
	}
	m.modes.ResetAudioMode(context.Background())
}

// State returns the current lifecycle state.
func (m *RecordingManager) State() RecordingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsRecording reports whether the microphone is live.
func (m *RecordingManager) IsRecording() bool {
	return m.State() == RecordingActive
}
