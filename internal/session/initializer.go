package session

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/speakeasy/internal/model/chat"
)

// FallbackGreeting opens the main chat when the backend can't be reached.
const FallbackGreeting = "Hi there! I'm Mia, your English practice partner. What would you like to talk about today?"

// InitializeChat fetches the opening greeting. Only the first call per chat
// does anything; later calls return nil immediately.
//
// When the backend fails the main assistant still opens with a canned
// greeting. A scenario chat shows a popup and can be retried.
func (s *Session) InitializeChat(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.phase != uninitialized {
		s.mu.Unlock()
		return nil
	}
	s.phase = initializing
	gen := s.initGen
	s.mu.Unlock()

	target := s.opts.Target
	greeting, err := s.backend.CreateSession(ctx, target)
	if err != nil {
		if !target.IsAssistant() {
			s.logger.Error("failed to start scenario chat", zap.Error(err))
			s.mu.Lock()
			if gen == s.initGen {
				s.phase = uninitialized
				s.showPopupLocked(PopupScenarioFail)
			}
			s.mu.Unlock()
			s.notify()
			return fmt.Errorf("%w: %v", ErrInitFailed, err)
		}

		s.logger.Warn("session create failed, using fallback greeting", zap.Error(err))
		opening := ""
		if target.Persona != nil {
			opening = target.Persona.OpeningLine
		}
		greeting = fallbackGreeting(opening)
	}

	s.mu.Lock()
	if gen != s.initGen || s.closed {
		// superseded by StartNewChat or Close
		s.mu.Unlock()
		return nil
	}
	msg := chat.Message{ID: s.ids.Next(), Role: chat.RoleModel, Content: greeting}
	s.history = []chat.Message{msg}
	s.showTopics = target.IsAssistant()
	s.phase = initialized
	s.mu.Unlock()

	s.logger.Info("chat initialized", zap.Int64("greeting_id", msg.ID))
	s.notify()
	s.playInBackground(msg.ID, msg.Content)
	return nil
}

// StartNewChat clears the conversation and initializes a fresh one. It is
// refused while a reply or audio is still loading.
func (s *Session) StartNewChat(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.pendingLocked() || s.typing || s.processingAudio || s.playback.IsLoading() {
		s.showPopupLocked(PopupPleaseWait)
		s.mu.Unlock()
		s.notify()
		return ErrBusy
	}
	s.initGen++
	s.phase = uninitialized
	s.history = nil
	s.showTopics = false
	s.feedback = nil
	s.draft = ""
	s.mu.Unlock()

	s.playback.Stop()
	s.recorder.CleanUp()
	s.notify()

	return s.InitializeChat(ctx)
}

func fallbackGreeting(opening string) string {
	if strings.TrimSpace(opening) != "" {
		return opening
	}
	return FallbackGreeting
}
