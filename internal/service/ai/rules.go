package ai

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/zhouzirui/speakeasy/internal/analysis/mood"
	"github.com/zhouzirui/speakeasy/internal/model/chat"
)

// RuleTutor is the offline Tutor used when no model is configured. Its
// corrections only cover capitalization, terminal punctuation and the
// pronoun "i"; replies are canned follow-up questions, prefixed with an
// acknowledgement when the learner sounds happy, upset or nervous.
type RuleTutor struct{}

func (RuleTutor) Respond(ctx context.Context, turn Turn) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var query string
	turns := 0
	for i := len(turn.Messages) - 1; i >= 0; i-- {
		if turn.Messages[i].Role == chat.RoleUser {
			if query == "" {
				query = strings.TrimSpace(turn.Messages[i].Content)
			}
			turns++
		}
	}
	if query == "" {
		return nil, ErrNoUserMessage
	}

	return &Result{
		Reply:    followUp(query, turn, turns),
		Feedback: review(query),
	}, nil
}

func review(text string) chat.Feedback {
	corrected := correct(text)
	if corrected == text {
		return chat.Feedback{
			CorrectedVersion: text,
			Explanation:      "Good job!",
			FeedbackType:     chat.FeedbackNone,
			IsCorrect:        true,
		}
	}

	explanation := "Start sentences with a capital letter and end them with punctuation."
	kind := chat.FeedbackStyle
	if strings.Contains(" "+text+" ", " i ") {
		explanation = `The pronoun "I" is always capitalized.`
		kind = chat.FeedbackGrammar
	}
	return chat.Feedback{
		CorrectedVersion: corrected,
		Explanation:      explanation,
		FeedbackType:     kind,
		IsCorrect:        false,
	}
}

func correct(text string) string {
	words := strings.Fields(text)
	for i, w := range words {
		if w == "i" || strings.HasPrefix(w, "i'") {
			words[i] = "I" + w[1:]
		}
	}
	out := strings.Join(words, " ")
	if out == "" {
		return out
	}

	runes := []rune(out)
	runes[0] = unicode.ToUpper(runes[0])
	if last := runes[len(runes)-1]; !strings.ContainsRune(".!?", last) {
		runes = append(runes, '.')
	}
	return string(runes)
}

var followUps = []string{
	"That's interesting! Can you tell me more about %s?",
	"Why do you think that about %s?",
	"How did you feel about %s?",
	"What would you change about %s?",
}

func followUp(query string, turn Turn, turns int) string {
	topic := lastWords(query, 3)
	if turn.ChatType == chat.ChatTypeRoleplay && turn.Scenario != nil {
		return fmt.Sprintf("Of course. As your %s, I can help with %s. What else do you need?", strings.ToLower(turn.Scenario.AIRole), topic)
	}
	question := fmt.Sprintf(followUps[(turns-1)%len(followUps)], topic)
	if opener := mood.Analyze(query).Opener(); opener != "" {
		return opener + " " + question
	}
	return question
}

func lastWords(text string, n int) string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(".,!?;:\"", r)
	})
	if len(words) > n {
		words = words[len(words)-n:]
	}
	if len(words) == 0 {
		return "that"
	}
	return strings.Join(words, " ")
}
