package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/speakeasy/internal/config"
	"github.com/zhouzirui/speakeasy/internal/model/chat"
	"github.com/zhouzirui/speakeasy/internal/model/persona"
)

var ErrNoUserMessage = errors.New("conversation has no user message")

// Turn is one request to the tutor: the trimmed history plus the mode.
type Turn struct {
	Messages []chat.Message
	ChatType chat.ChatType
	Scenario *persona.Scenario
}

// Result is the tutor's answer and its review of the learner's last message.
type Result struct {
	Reply    string        `json:"reply"`
	Feedback chat.Feedback `json:"feedback"`
}

// Tutor answers a learner turn.
type Tutor interface {
	Respond(ctx context.Context, turn Turn) (*Result, error)
}

// Service is the model-backed Tutor.
type Service struct {
	prompts *PromptManager
	chain   compose.Runnable[map[string]any, *schema.Message]
	logger  *zap.Logger
}

// NewService creates the Ark chat model from configuration and wraps it.
func NewService(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, logger)
}

// NewServiceWithModel compiles the prompt→model chain around any chat model.
func NewServiceWithModel(ctx context.Context, chatModel model.ChatModel, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		prompts: NewPromptManager(),
		chain:   runnable,
		logger:  logger,
	}, nil
}

// Respond runs the chain and parses the model's JSON answer. Output that isn't
// JSON is used verbatim as the reply with neutral feedback.
func (s *Service) Respond(ctx context.Context, turn Turn) (*Result, error) {
	input, query, err := s.buildChainInput(turn)
	if err != nil {
		return nil, err
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to run AI chain: %w", err)
	}

	result := parseResult(response.Content, query)
	s.logger.Info("generated tutor reply",
		zap.String("chat_type", string(turn.ChatType)),
		zap.Int("history", len(turn.Messages)),
		zap.Int("reply_length", len(result.Reply)),
		zap.String("feedback_type", string(result.Feedback.FeedbackType)))
	return result, nil
}

func (s *Service) buildChainInput(turn Turn) (map[string]any, string, error) {
	last := -1
	for i := len(turn.Messages) - 1; i >= 0; i-- {
		if turn.Messages[i].Role == chat.RoleUser {
			last = i
			break
		}
	}
	if last < 0 {
		return nil, "", ErrNoUserMessage
	}

	return map[string]any{
		"system":  s.buildSystemPrompt(turn),
		"history": buildHistoryMessages(turn.Messages[:last]),
		"query":   turn.Messages[last].Content,
	}, turn.Messages[last].Content, nil
}

func (s *Service) buildSystemPrompt(turn Turn) string {
	if turn.ChatType == chat.ChatTypeRoleplay && turn.Scenario != nil {
		return s.prompts.ScenarioPrompt(*turn.Scenario)
	}
	return s.prompts.AssistantPrompt(persona.MainAssistant())
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}
	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleModel:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}

// parseResult extracts the JSON object from the model output, tolerating code fences.
func parseResult(content, query string) *Result {
	raw := strings.TrimSpace(content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		raw = raw[start : end+1]
	}

	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err == nil && strings.TrimSpace(result.Reply) != "" {
		if result.Feedback.FeedbackType == "" {
			result.Feedback.FeedbackType = chat.FeedbackNone
		}
		if result.Feedback.CorrectedVersion == "" {
			result.Feedback.CorrectedVersion = query
		}
		return &result
	}

	return &Result{
		Reply: strings.TrimSpace(content),
		Feedback: chat.Feedback{
			CorrectedVersion: query,
			Explanation:      "Looks good!",
			FeedbackType:     chat.FeedbackNone,
			IsCorrect:        true,
		},
	}
}
