package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/speakeasy/internal/model/chat"
	"github.com/zhouzirui/speakeasy/internal/model/speech"
)

// HandleMicPress toggles the microphone: the first press starts recording,
// the second sends the clip. Presses while a clip is being processed are ignored.
func (s *Session) HandleMicPress(ctx context.Context) error {
	s.mu.Lock()
	processing := s.processingAudio
	s.mu.Unlock()
	if processing {
		return nil
	}

	if s.recorder.IsRecording() {
		return s.SendAudio(ctx)
	}
	return s.StartRecording(ctx)
}

// StartRecording stops any playback and opens the microphone.
func (s *Session) StartRecording(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	s.playback.Stop()
	if err := s.recorder.Start(ctx); err != nil {
		return err
	}
	s.notify()
	return nil
}

// StopRecording closes the microphone without sending and returns the clip URI.
func (s *Session) StopRecording(ctx context.Context) (string, error) {
	uri, err := s.recorder.Stop(ctx)
	s.notify()
	return uri, err
}

// SendAudio finishes the recording, transcribes it and sends the transcript
// as a user turn that keeps a reference to the recorded clip.
func (s *Session) SendAudio(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.processingAudio {
		s.mu.Unlock()
		return ErrBusy
	}
	if !s.recorder.IsRecording() {
		s.mu.Unlock()
		return ErrNotRecording
	}
	// 回复未到时不上传，录音保持打开，等回复后再发
	if s.pendingLocked() {
		s.showPopupLocked(PopupPleaseWait)
		s.mu.Unlock()
		s.notify()
		return ErrBusy
	}
	s.processingAudio = true
	s.mu.Unlock()
	s.notify()

	defer func() {
		s.recorder.CleanUp()
		s.mu.Lock()
		s.processingAudio = false
		s.mu.Unlock()
		s.notify()
	}()

	transcript, uri, err := s.transcribe(ctx)
	if err != nil {
		s.logger.Error("failed to process recording", zap.Error(err))
		s.popupNow(PopupAudioError)
		return nil
	}
	if strings.TrimSpace(transcript) == "" {
		s.logger.Info("transcript was empty", zap.String("uri", uri))
		s.popupNow(PopupNoSpeech)
		return nil
	}

	return s.dispatch(ctx, chat.Message{
		ID:        s.ids.Next(),
		Role:      chat.RoleUser,
		Content:   strings.TrimSpace(transcript),
		IsLoading: true,
		AudioURI:  uri,
	})
}

func (s *Session) transcribe(ctx context.Context) (string, string, error) {
	uri, err := s.recorder.Stop(ctx)
	if err != nil {
		return "", "", err
	}
	if uri == "" {
		return "", "", ErrNotRecording
	}

	path := strings.TrimPrefix(uri, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", uri, fmt.Errorf("read recording: %w", err)
	}

	transcript, err := s.speech.Transcribe(ctx, speech.TranscribeRequest{
		Filename: filepath.Base(path),
		Audio:    data,
	})
	if err != nil {
		return "", uri, fmt.Errorf("transcribe: %w", err)
	}
	return transcript, uri, nil
}
