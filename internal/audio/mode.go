package audio

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// ModeController serializes audio-session mode switches and remembers the
// last mode that was applied successfully. Failures are logged, never returned.
type ModeController struct {
	configurator SessionConfigurator
	logger       *zap.Logger

	mu   sync.Mutex
	mode Mode
}

// NewModeController wraps a device configurator.
func NewModeController(configurator SessionConfigurator, logger *zap.Logger) *ModeController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModeController{configurator: configurator, logger: logger, mode: ModeIdle}
}

// SetPlaybackMode configures shared, output-only audio.
func (c *ModeController) SetPlaybackMode(ctx context.Context) {
	c.set(ctx, ModePlayback)
}

// SetRecordingMode configures exclusive record+playback audio.
func (c *ModeController) SetRecordingMode(ctx context.Context) {
	c.set(ctx, ModeRecording)
}

// ResetAudioMode returns the session to its idle configuration.
func (c *ModeController) ResetAudioMode(ctx context.Context) {
	c.set(ctx, ModeIdle)
}

// Mode returns the last successfully applied mode.
func (c *ModeController) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *ModeController) set(ctx context.Context, mode Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.configurator == nil {
		c.mode = mode
		return
	}

	if err := c.configurator.Configure(ctx, mode); err != nil {
		c.logger.Warn("failed to switch audio mode",
			zap.String("from", string(c.mode)),
			zap.String("to", string(mode)),
			zap.Error(err))
		return
	}
	c.mode = mode
}
