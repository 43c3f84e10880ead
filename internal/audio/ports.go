package audio

import (
	"context"

	"github.com/zhouzirui/speakeasy/internal/model/speech"
)

// Mode is the device audio-session configuration.
type Mode string

const (
	ModeIdle      Mode = "idle"
	ModePlayback  Mode = "playback"  // shared output, no microphone
	ModeRecording Mode = "recording" // exclusive record + playback
)

// SessionConfigurator switches the device audio session between modes.
type SessionConfigurator interface {
	Configure(ctx context.Context, mode Mode) error
}

// Recorder captures microphone audio.
type Recorder interface {
	RequestPermission(ctx context.Context) (bool, error)
	Start(ctx context.Context) (Recording, error)
}

// Recording is one live capture. Exactly one of Stop or Discard is called.
type Recording interface {
	// Stop finalizes the capture and returns a URI for the recorded file.
	Stop() (string, error)
	// Discard stops the capture and throws the audio away.
	Discard() error
}

// Source is something playable: a local file or an in-memory clip.
type Source struct {
	URI    string
	Data   []byte
	Format string
}

// Player loads sources into sounds.
type Player interface {
	Load(ctx context.Context, src Source) (Sound, error)
}

// Sound is a loaded clip. Done delivers exactly one value (nil on natural
// completion) and is then closed. Stop unloads the sound and is idempotent.
type Sound interface {
	Play() error
	Done() <-chan error
	Stop() error
}

// Synthesizer turns text into audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, req speech.TTSRequest) ([]byte, error)
}
