package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/zhouzirui/speakeasy/internal/model/chat"
	"github.com/zhouzirui/speakeasy/internal/model/speech"
	"github.com/zhouzirui/speakeasy/internal/session"
)

// renderHistory lays out the conversation for a viewport of the given width.
// loading is what a pending message shows in place of its feedback badge.
func renderHistory(snap session.Snapshot, width int, loading string) string {
	if width <= 0 {
		width = 80
	}
	tutor := snap.Target.Label()
	if tutor == "" {
		tutor = "Tutor"
	}

	var content strings.Builder
	for i, msg := range snap.History {
		if i > 0 {
			content.WriteString("\n")
		}

		wrapped := wordwrap.String(msg.Content, max(width-10, 10))
		if msg.Role == chat.RoleUser {
			header := messageHeaderStyle.Render("You" + badge(msg, loading))
			content.WriteString(lipgloss.NewStyle().Align(lipgloss.Right).Width(width).Render(header) + "\n")
			content.WriteString(lipgloss.NewStyle().Align(lipgloss.Right).Width(width).Render(messageFromMeStyle.Render(wrapped)) + "\n")
			continue
		}

		header := tutor
		if msg.ID != 0 && msg.ID == snap.PlayingAudioID {
			header += " ♪"
		}
		content.WriteString(messageHeaderStyle.Render(header) + "\n")
		content.WriteString(messageFromTutorStyle.Render(wrapped) + "\n")
	}
	return content.String()
}

func badge(msg chat.Message, loading string) string {
	switch {
	case msg.IsLoading:
		return " " + loading
	case msg.Feedback == nil:
		return ""
	case msg.Feedback.IsCorrect:
		return " " + correctStyle.Render("✓")
	default:
		return " " + correctionStyle.Render("✎ "+strings.ToLower(string(msg.Feedback.FeedbackType)))
	}
}

func renderTopics() string {
	items := make([]string, len(session.Topics))
	for i, topic := range session.Topics {
		items[i] = topicStyle.Render(fmt.Sprintf("%d %s", i+1, topic))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, items...)
}

func renderFeedback(view *session.FeedbackView, width int) string {
	wrap := max(width-10, 20)
	fb := view.Feedback

	var b strings.Builder
	b.WriteString(titleStyle.Render("Feedback") + "\n")
	b.WriteString(messageHeaderStyle.Render("You said") + "\n")
	b.WriteString(wordwrap.String(view.Original.Content, wrap) + "\n\n")
	if fb.IsCorrect {
		b.WriteString(correctStyle.Render("Looks good!") + "\n")
	} else {
		b.WriteString(messageHeaderStyle.Render("Better") + "\n")
		b.WriteString(correctionStyle.Render(wordwrap.String(fb.CorrectedVersion, wrap)) + "\n")
	}
	if fb.Explanation != "" {
		b.WriteString("\n" + wordwrap.String(fb.Explanation, wrap) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("p: practice saying it • esc: close"))
	return modalStyle.Render(b.String())
}

func renderAssessment(sentence string, result *speech.Assessment, width int) string {
	wrap := max(width-10, 20)

	var b strings.Builder
	b.WriteString(titleStyle.Render("Pronunciation practice") + "\n")
	b.WriteString(wordwrap.String(sentence, wrap) + "\n")
	if result == nil {
		return b.String()
	}

	b.WriteString("\n" + statusStyle.Render(fmt.Sprintf("Accuracy %s%%", result.PronunciationAccuracy)) + "\n")
	words := make([]string, 0, len(result.Words()))
	for _, w := range result.Words() {
		if w.Category == "0" {
			words = append(words, correctStyle.Render(w.Expected))
		} else {
			words = append(words, correctionStyle.Render(w.Expected))
		}
	}
	b.WriteString(strings.Join(words, " ") + "\n")
	return b.String()
}
