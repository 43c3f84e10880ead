package session

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/speakeasy/internal/model/chat"
	"github.com/zhouzirui/speakeasy/internal/service/backend"
	chatsvc "github.com/zhouzirui/speakeasy/internal/service/chat"
)

// Topic is a quick-reply shown under the opening greeting.
type Topic string

const (
	TopicFun         Topic = "Fun"
	TopicInteresting Topic = "Interesting"
	TopicYouDecide   Topic = "You decide"
)

// Topics lists the quick replies in display order.
var Topics = []Topic{TopicFun, TopicInteresting, TopicYouDecide}

var topicRequests = map[Topic]string{
	TopicFun:         "Can you suggest a fun topic for us to talk about?",
	TopicInteresting: "Can you suggest an interesting topic for us to talk about?",
	TopicYouDecide:   "You decide! Pick any topic you like and ask me a question about it.",
}

// TopicRequest returns the message sent when topic is picked.
func TopicRequest(topic Topic) (string, bool) {
	text, ok := topicRequests[topic]
	return text, ok
}

// SendMessage appends text to the conversation. A greeting is added as a
// resolved model message and spoken. Anything else is a user turn: it stays
// pending until the backend answers, then gets its feedback and the reply is
// appended and spoken. Transport failures mark the turn with error feedback
// and are not returned.
func (s *Session) SendMessage(ctx context.Context, text string, greeting bool) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	if greeting {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrClosed
		}
		msg := chat.Message{ID: s.ids.Next(), Role: chat.RoleModel, Content: text}
		s.history = append(s.history, msg)
		s.mu.Unlock()
		s.notify()
		s.playInBackground(msg.ID, msg.Content)
		return nil
	}

	return s.dispatch(ctx, chat.Message{
		ID:        s.ids.Next(),
		Role:      chat.RoleUser,
		Content:   text,
		IsLoading: true,
	})
}

// HandleSend sends the draft and clears the text box. If the session is busy
// the draft is kept.
func (s *Session) HandleSend(ctx context.Context) error {
	s.mu.Lock()
	text := s.draft
	if strings.TrimSpace(text) == "" {
		s.mu.Unlock()
		return nil
	}
	s.draft = ""
	s.mu.Unlock()
	s.notify()

	err := s.SendMessage(ctx, text, false)
	if errors.Is(err, ErrBusy) {
		s.mu.Lock()
		if s.draft == "" {
			s.draft = text
		}
		s.mu.Unlock()
		s.notify()
	}
	return err
}

// HandleTopicSelect sends the request behind a quick-reply topic.
func (s *Session) HandleTopicSelect(ctx context.Context, topic Topic) error {
	text, ok := TopicRequest(topic)
	if !ok {
		return ErrUnknownTopic
	}
	return s.SendMessage(ctx, text, false)
}

// dispatch appends a pending user message, posts the trimmed history and
// folds the answer back in.
func (s *Session) dispatch(ctx context.Context, msg chat.Message) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.pendingLocked() {
		s.showPopupLocked(PopupPleaseWait)
		s.mu.Unlock()
		s.notify()
		return ErrBusy
	}
	s.history = append(s.history, msg)
	s.showTopics = false
	s.typing = true
	req := backend.ChatRequest{
		Messages:        chatsvc.TrimHistory(s.history, s.opts.TokenBudget, s.opts.Estimator),
		ChatType:        s.opts.Target.ChatType(),
		ScenarioDetails: s.opts.Target.ScenarioDetails(),
	}
	s.mu.Unlock()
	s.notify()

	resp, err := s.backend.Chat(ctx, req)

	s.mu.Lock()
	s.typing = false
	idx := s.indexLocked(msg.ID)
	if idx < 0 {
		// the chat was reset while the request was in flight
		s.mu.Unlock()
		s.notify()
		return nil
	}

	if err != nil {
		resolved := s.history[idx]
		resolved.IsLoading = false
		resolved.Feedback = chat.ErrorFeedback()
		s.history[idx] = resolved
		s.mu.Unlock()

		s.logger.Error("chat request failed", zap.Int64("message_id", msg.ID), zap.Error(err))
		s.notify()
		return nil
	}

	resolved := s.history[idx]
	resolved.IsLoading = false
	if resp.Feedback != nil {
		fb := *resp.Feedback
		resolved.Feedback = &fb
	}
	s.history[idx] = resolved

	var reply chat.Message
	if text := strings.TrimSpace(resp.Reply); text != "" {
		reply = chat.Message{ID: s.ids.Next(), Role: chat.RoleModel, Content: text}
		s.history = append(s.history, reply)
	}
	s.mu.Unlock()
	s.notify()

	if reply.ID != 0 {
		s.playInBackground(reply.ID, reply.Content)
	} else {
		s.logger.Warn("chat reply was empty", zap.Int64("message_id", msg.ID))
	}
	return nil
}
