package session

import (
	"strings"

	"github.com/zhouzirui/speakeasy/internal/model/chat"
)

// ShowFeedback opens the feedback modal for a resolved user message.
func (s *Session) ShowFeedback(id int64) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrUnknownMessage
	}
	msg := s.history[idx]
	if msg.Role != chat.RoleUser || msg.IsLoading || msg.Feedback == nil {
		s.mu.Unlock()
		return ErrNoFeedback
	}
	s.feedback = &FeedbackView{Feedback: *msg.Feedback, Original: msg.Clone()}
	s.mu.Unlock()
	s.notify()
	return nil
}

// CloseFeedback hides the feedback modal.
func (s *Session) CloseFeedback() {
	s.mu.Lock()
	if s.feedback == nil {
		s.mu.Unlock()
		return
	}
	s.feedback = nil
	s.mu.Unlock()
	s.notify()
}

// PracticeCorrection closes the modal and returns the sentence to practice
// pronouncing: the corrected version, or the original when nothing was corrected.
func (s *Session) PracticeCorrection() (string, error) {
	s.mu.Lock()
	view := s.feedback
	if view == nil {
		s.mu.Unlock()
		return "", ErrNoFeedback
	}
	s.feedback = nil
	s.mu.Unlock()
	s.notify()

	sentence := strings.TrimSpace(view.Feedback.CorrectedVersion)
	if sentence == "" {
		sentence = strings.TrimSpace(view.Original.Content)
	}
	return sentence, nil
}

// LastFeedbackID returns the newest resolved user message carrying feedback.
func (s Snapshot) LastFeedbackID() (int64, bool) {
	for i := len(s.History) - 1; i >= 0; i-- {
		msg := s.History[i]
		if msg.Role == chat.RoleUser && !msg.IsLoading && msg.Feedback != nil {
			return msg.ID, true
		}
	}
	return 0, false
}

// LastReplyID returns the newest model message.
func (s Snapshot) LastReplyID() (int64, bool) {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Role == chat.RoleModel {
			return s.History[i].ID, true
		}
	}
	return 0, false
}
