package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/zhouzirui/speakeasy/internal/model/chat"
	"github.com/zhouzirui/speakeasy/internal/model/persona"
	"github.com/zhouzirui/speakeasy/internal/model/speech"
	"github.com/zhouzirui/speakeasy/internal/session"
)

func TestNotifierCoalescesBursts(t *testing.T) {
	n := NewNotifier()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			n.SessionChanged(session.Snapshot{})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SessionChanged blocked")
	}

	if _, ok := n.wait()().(sessionChangedMsg); !ok {
		t.Fatal("expected sessionChangedMsg")
	}
	if len(n.ch) != 0 {
		t.Fatalf("expected burst to collapse into one wake-up, %d left", len(n.ch))
	}
}

func TestRenderHistory(t *testing.T) {
	snap := session.Snapshot{
		Target:         persona.AssistantTarget(persona.MainAssistant()),
		PlayingAudioID: 1,
		History: []chat.Message{
			{ID: 1, Role: chat.RoleModel, Content: "Hi there!"},
			{ID: 2, Role: chat.RoleUser, Content: "yesterday i went home", Feedback: &chat.Feedback{
				CorrectedVersion: "Yesterday I went home.",
				FeedbackType:     chat.FeedbackGrammar,
			}},
			{ID: 3, Role: chat.RoleModel, Content: "Where is home?"},
			{ID: 4, Role: chat.RoleUser, Content: "Near the river.", IsLoading: true},
		},
	}

	out := renderHistory(snap, 60, "<wait>")
	for _, want := range []string{"Mia ♪", "✎ grammar", "<wait>", "Where is home?"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}
	if strings.Count(out, "♪") != 1 {
		t.Fatalf("only the playing message should be marked:\n%s", out)
	}
}

func TestRenderFeedbackAndAssessment(t *testing.T) {
	view := &session.FeedbackView{
		Original: chat.Message{Content: "i like tea"},
		Feedback: chat.Feedback{CorrectedVersion: "I like tea.", Explanation: `The pronoun "I" is always capitalized.`},
	}
	out := renderFeedback(view, 80)
	if !strings.Contains(out, "I like tea.") || !strings.Contains(out, "always capitalized") {
		t.Fatalf("unexpected feedback view:\n%s", out)
	}

	result := &speech.Assessment{
		PronunciationAccuracy: "50",
		RealTranscripts:       "I like",
		MatchedTranscripts:    "I lake",
		PairAccuracyCategory:  "0 2",
	}
	out = renderAssessment("I like", result, 80)
	if !strings.Contains(out, "Accuracy 50%") {
		t.Fatalf("unexpected assessment view:\n%s", out)
	}
}
