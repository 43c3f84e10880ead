package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	startupGrace = 250 * time.Millisecond
	stopGrace    = 1200 * time.Millisecond
)

// FFmpegRecorder records the microphone into an .m4a file with ffmpeg.
type FFmpegRecorder struct {
	command     string
	inputFormat string
	inputDevice string
	dir         string
}

// NewFFmpegRecorder builds a recorder; empty arguments fall back to defaults.
func NewFFmpegRecorder(command, inputFormat, inputDevice, dir string) *FFmpegRecorder {
	if command == "" {
		command = "ffmpeg"
	}
	if inputFormat == "" {
		inputFormat = "pulse"
	}
	if inputDevice == "" {
		inputDevice = "default"
	}
	if dir == "" {
		dir = os.TempDir()
	}
	return &FFmpegRecorder{command: command, inputFormat: inputFormat, inputDevice: inputDevice, dir: dir}
}

// RequestPermission has no OS prompt on desktop; the microphone is usable when
// the capture binary is installed.
func (r *FFmpegRecorder) RequestPermission(ctx context.Context) (bool, error) {
	if _, err := exec.LookPath(r.command); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Start spawns ffmpeg. The process outlives ctx; it ends on Stop or Discard.
func (r *FFmpegRecorder) Start(ctx context.Context) (Recording, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}
	path := filepath.Join(r.dir, "speakeasy-"+uuid.NewString()+".m4a")

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-y",
		"-f", r.inputFormat,
		"-i", r.inputDevice,
		"-ac", "1",
		"-ar", "44100",
		"-c:a", "aac",
		path,
	}

	cmd := exec.Command(r.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		_ = os.Remove(path)
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-waitErr
		_ = os.Remove(path)
		return nil, ctx.Err()
	case <-time.After(startupGrace):
	}

	return &ffmpegRecording{
		path:    path,
		process: cmd.Process,
		stderr:  &stderr,
		waitErr: waitErr,
	}, nil
}

type ffmpegRecording struct {
	path    string
	process *os.Process
	stderr  *bytes.Buffer
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

// Stop interrupts ffmpeg so it can finalize the container, then returns a file URI.
func (r *ffmpegRecording) Stop() (string, error) {
	r.halt()
	if r.stopErr != nil {
		return "", r.stopErr
	}
	return "file://" + r.path, nil
}

func (r *ffmpegRecording) Discard() error {
	r.halt()
	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (r *ffmpegRecording) halt() {
	r.stopOnce.Do(func() {
		_ = r.process.Signal(os.Interrupt)

		select {
		case err, ok := <-r.waitErr:
			if ok {
				r.stopErr = normalizeStopErr(err)
			}
		case <-time.After(stopGrace):
			_ = r.process.Kill()
			if err, ok := <-r.waitErr; ok {
				r.stopErr = normalizeStopErr(err)
			}
		}

		if r.stopErr != nil && r.stderr.Len() > 0 {
			r.stopErr = fmt.Errorf("%w: %s", r.stopErr, strings.TrimSpace(r.stderr.String()))
		}
	})
}

// normalizeStopErr drops the non-zero exit an interrupted process reports.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// FFplayPlayer plays files and in-memory clips through ffplay.
type FFplayPlayer struct {
	command string
	dir     string
}

func NewFFplayPlayer(command, dir string) *FFplayPlayer {
	if command == "" {
		command = "ffplay"
	}
	if dir == "" {
		dir = os.TempDir()
	}
	return &FFplayPlayer{command: command, dir: dir}
}

// Load resolves src to a file on disk. In-memory data is spooled to a temp file
// that is removed when the sound is stopped.
func (p *FFplayPlayer) Load(ctx context.Context, src Source) (Sound, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if src.URI != "" {
		path := strings.TrimPrefix(src.URI, "file://")
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("open sound: %w", err)
		}
		return newFFplaySound(p.command, path, false), nil
	}

	if len(src.Data) == 0 {
		return nil, ErrNothingToPlay
	}
	ext := src.Format
	if ext == "" {
		ext = "mp3"
	}
	f, err := os.CreateTemp(p.dir, "speakeasy-tts-*."+ext)
	if err != nil {
		return nil, fmt.Errorf("create temp sound: %w", err)
	}
	if _, err := f.Write(src.Data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("write temp sound: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close temp sound: %w", err)
	}
	return newFFplaySound(p.command, f.Name(), true), nil
}

type ffplaySound struct {
	command string
	path    string
	temp    bool

	mu      sync.Mutex
	cmd     *exec.Cmd
	done    chan error
	stopped bool

	stopOnce sync.Once
}

func newFFplaySound(command, path string, temp bool) *ffplaySound {
	return &ffplaySound{command: command, path: path, temp: temp, done: make(chan error, 1)}
}

func (s *ffplaySound) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.New("sound already stopped")
	}
	if s.cmd != nil {
		return errors.New("sound already playing")
	}

	cmd := exec.Command(s.command, "-nodisp", "-autoexit", "-hide_banner", "-loglevel", "error", s.path)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffplay: %w", err)
	}
	s.cmd = cmd

	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		if s.stopped {
			err = nil
		}
		s.mu.Unlock()
		s.done <- err
		close(s.done)
	}()
	return nil
}

func (s *ffplaySound) Done() <-chan error {
	return s.done
}

func (s *ffplaySound) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		cmd := s.cmd
		s.mu.Unlock()

		if cmd == nil {
			// never started; nobody else will close done
			close(s.done)
		} else if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		if s.temp {
			if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				err = rmErr
			}
		}
	})
	return err
}

// DesktopSession is the SessionConfigurator for desktop hosts, which have no
// audio-session categories to switch. It only records the transition.
type DesktopSession struct {
	logger *zap.Logger
}

func NewDesktopSession(logger *zap.Logger) *DesktopSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DesktopSession{logger: logger}
}

func (d *DesktopSession) Configure(ctx context.Context, mode Mode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.logger.Debug("audio mode", zap.String("mode", string(mode)))
	return nil
}
