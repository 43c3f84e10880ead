package chat

import (
	"sync"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ChatType tells the chat backend which conversation mode a request belongs to.
type ChatType string

const (
	ChatTypeMain     ChatType = "main"
	ChatTypeRoleplay ChatType = "roleplay"
)

// FeedbackType classifies the correction attached to a user message.
type FeedbackType string

const (
	FeedbackNone       FeedbackType = "NONE"
	FeedbackGrammar    FeedbackType = "GRAMMAR"
	FeedbackVocabulary FeedbackType = "VOCABULARY"
	FeedbackSpelling   FeedbackType = "SPELLING"
	FeedbackStyle      FeedbackType = "STYLE"
)

// Feedback is the per-turn correction returned by the chat backend.
type Feedback struct {
	CorrectedVersion string       `json:"correctedVersion"`
	Explanation      string       `json:"explanation"`
	FeedbackType     FeedbackType `json:"feedbackType"`
	IsCorrect        bool         `json:"isCorrect"`
}

// NeedsAttention reports whether the UI should flag the message with a warning icon.
func (f *Feedback) NeedsAttention() bool {
	return f != nil && !f.IsCorrect
}

// ErrorFeedback is attached to a user message whose chat request failed.
func ErrorFeedback() *Feedback {
	return &Feedback{
		CorrectedVersion: "",
		Explanation:      "Error occurred",
		FeedbackType:     FeedbackNone,
		IsCorrect:        false,
	}
}

// Message is one entry of the visible chat history.
type Message struct {
	ID        int64     `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Feedback  *Feedback `json:"feedback,omitempty"`
	IsLoading bool      `json:"isLoading"`
	AudioURI  string    `json:"audioUri,omitempty"`
}

// Clone returns a deep copy so callers can't mutate shared feedback.
func (m Message) Clone() Message {
	if m.Feedback != nil {
		fb := *m.Feedback
		m.Feedback = &fb
	}
	return m
}

// CloneAll copies a history slice.
func CloneAll(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	out := make([]Message, len(messages))
	for i, msg := range messages {
		out[i] = msg.Clone()
	}
	return out
}

// IDSource hands out unique, increasing message identifiers derived from the wall clock.
type IDSource struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewIDSource returns an IDSource backed by time.Now.
func NewIDSource() *IDSource {
	return &IDSource{now: time.Now}
}

// Next returns an id strictly greater than every id returned before.
func (s *IDSource) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now
	if s.now != nil {
		now = s.now
	}

	id := now().UnixMilli()
	if id <= s.last {
		id = s.last + 1
	}
	s.last = id
	return id
}
