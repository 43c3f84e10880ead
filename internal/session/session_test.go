package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/speakeasy/internal/model/chat"
	"github.com/zhouzirui/speakeasy/internal/model/persona"
	"github.com/zhouzirui/speakeasy/internal/service/backend"
	chatsvc "github.com/zhouzirui/speakeasy/internal/service/chat"
)

func TestInitializeChatRunsOnce(t *testing.T) {
	h := newHarness(t, assistant())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.session.InitializeChat(ctx)
		}()
	}
	wg.Wait()
	h.session.Wait()

	if calls := h.backend.creates(); calls != 1 {
		t.Fatalf("expected one session create, got %d", calls)
	}
	snap := h.session.Snapshot()
	if len(snap.History) != 1 || snap.History[0].Role != chat.RoleModel || snap.History[0].Content != "Welcome!" {
		t.Fatalf("unexpected history %+v", snap.History)
	}
	if !snap.ShowTopics || !snap.Initialized {
		t.Fatalf("expected topics shown and initialized, got %+v", snap)
	}
	if spoken := h.speech.spoken(); len(spoken) != 1 || spoken[0] != "Welcome!" {
		t.Fatalf("expected greeting to be spoken, got %v", spoken)
	}
}

func TestInitializeChatFallsBackForAssistant(t *testing.T) {
	h := newHarness(t, assistant())
	h.backend.createErr = errUnavailable

	if err := h.session.InitializeChat(context.Background()); err != nil {
		t.Fatalf("assistant init must not fail, got %v", err)
	}
	h.session.Wait()

	snap := h.session.Snapshot()
	if len(snap.History) != 1 {
		t.Fatalf("expected a greeting, got %+v", snap.History)
	}
	first := snap.History[0]
	if first.Role != chat.RoleModel || strings.TrimSpace(first.Content) == "" {
		t.Fatalf("expected non-empty model greeting, got %+v", first)
	}
	if !snap.ShowTopics {
		t.Fatalf("expected suggested topics after fallback")
	}
	if len(h.speech.spoken()) != 1 {
		t.Fatalf("expected fallback greeting to be spoken")
	}
}

func TestInitializeChatScenarioFailureCanRetry(t *testing.T) {
	h := newHarness(t, persona.ScenarioTarget("coffee-shop", nil))
	h.backend.createErr = errUnavailable
	ctx := context.Background()

	err := h.session.InitializeChat(ctx)
	if !errors.Is(err, ErrInitFailed) {
		t.Fatalf("expected ErrInitFailed, got %v", err)
	}
	snap := h.session.Snapshot()
	if len(snap.History) != 0 || snap.ShowTopics {
		t.Fatalf("scenario failure must not fabricate a greeting: %+v", snap)
	}
	if snap.Popup != PopupScenarioFail {
		t.Fatalf("expected scenario popup, got %q", snap.Popup)
	}

	h.backend.mu.Lock()
	h.backend.createErr = nil
	h.backend.mu.Unlock()

	if err := h.session.InitializeChat(ctx); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	snap = h.session.Snapshot()
	if len(snap.History) != 1 || snap.ShowTopics {
		t.Fatalf("expected scenario greeting without topics, got %+v", snap)
	}
}

func TestSendMessageResolvesAndAppendsReply(t *testing.T) {
	h := newHarness(t, assistant())
	h.backend.chatFn = func(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error) {
		return &backend.ChatResponse{
			Reply: "Hi!",
			Feedback: &chat.Feedback{
				CorrectedVersion: "Hello",
				Explanation:      "Good job",
				FeedbackType:     chat.FeedbackNone,
				IsCorrect:        true,
			},
		}, nil
	}

	if err := h.session.SendMessage(context.Background(), "Hello", false); err != nil {
		t.Fatalf("send: %v", err)
	}
	h.session.Wait()

	history := h.session.Snapshot().History
	if len(history) != 2 {
		t.Fatalf("expected two messages, got %+v", history)
	}
	user, reply := history[0], history[1]
	if user.Role != chat.RoleUser || user.Content != "Hello" || user.IsLoading {
		t.Fatalf("unexpected user message %+v", user)
	}
	if user.Feedback == nil || !user.Feedback.IsCorrect || user.Feedback.Explanation != "Good job" {
		t.Fatalf("unexpected feedback %+v", user.Feedback)
	}
	if reply.Role != chat.RoleModel || reply.Content != "Hi!" || reply.Feedback != nil {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if reply.ID <= user.ID {
		t.Fatalf("ids must increase: %d then %d", user.ID, reply.ID)
	}

	req := h.backend.lastRequest()
	if req.ChatType != chat.ChatTypeMain {
		t.Fatalf("expected main chat type, got %s", req.ChatType)
	}

	if spoken := h.speech.spoken(); len(spoken) != 1 || spoken[0] != "Hi!" {
		t.Fatalf("expected reply to be spoken, got %v", spoken)
	}

	// every observed state is either pending-last or fully resolved
	for _, snap := range h.snapshot.all() {
		if countLoading(snap.History) > 1 {
			t.Fatalf("more than one pending message: %+v", snap.History)
		}
		for i, msg := range snap.History {
			if msg.Role == chat.RoleUser && !msg.IsLoading && msg.Feedback != nil && msg.Feedback.IsCorrect {
				if i+1 >= len(snap.History) || snap.History[i+1].Content != "Hi!" {
					t.Fatalf("resolved message observed without its reply: %+v", snap.History)
				}
			}
		}
	}
}

func TestSendMessageServerErrorMarksFailure(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	server := httptest.NewServer(r)
	defer server.Close()

	client := backend.New(server.URL)
	s := New(Deps{Backend: client, Speech: &fakeSpeech{}, Recorder: &fakeRecorder{dir: t.TempDir()}, Player: &fakePlayer{}},
		Options{Target: assistant()})
	defer s.Close()

	if err := s.SendMessage(context.Background(), "Hello", false); err != nil {
		t.Fatalf("transport failures are absorbed, got %v", err)
	}

	history := s.Snapshot().History
	if len(history) != 1 {
		t.Fatalf("no reply may be appended, got %+v", history)
	}
	msg := history[0]
	if msg.IsLoading {
		t.Fatalf("pending flag must be cleared")
	}
	if msg.Feedback == nil || msg.Feedback.Explanation != "Error occurred" || msg.Feedback.IsCorrect {
		t.Fatalf("expected error feedback, got %+v", msg.Feedback)
	}
	if s.Snapshot().IsTyping {
		t.Fatalf("typing indicator must be cleared")
	}
}

func TestSendWhilePendingIsRefused(t *testing.T) {
	h := newHarness(t, assistant())
	entered := make(chan struct{})
	release := make(chan struct{})
	h.backend.chatFn = func(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error) {
		close(entered)
		<-release
		return &backend.ChatResponse{Reply: "done"}, nil
	}
	ctx := context.Background()

	first := make(chan error, 1)
	go func() { first <- h.session.SendMessage(ctx, "first", false) }()
	<-entered

	if err := h.session.SendMessage(ctx, "second", false); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	snap := h.session.Snapshot()
	if countLoading(snap.History) != 1 || len(snap.History) != 1 {
		t.Fatalf("expected exactly the first message pending, got %+v", snap.History)
	}
	if snap.Popup != PopupPleaseWait {
		t.Fatalf("expected please-wait popup, got %q", snap.Popup)
	}
	if !snap.IsTyping {
		t.Fatalf("expected typing indicator while waiting")
	}

	close(release)
	if err := <-first; err != nil {
		t.Fatalf("first send: %v", err)
	}
	for _, snap := range h.snapshot.all() {
		if countLoading(snap.History) > 1 {
			t.Fatalf("more than one pending message observed")
		}
	}
}

func TestHandleSendDrainsDraft(t *testing.T) {
	h := newHarness(t, assistant())
	ctx := context.Background()

	if err := h.session.HandleSend(ctx); err != nil {
		t.Fatalf("empty draft should be a no-op, got %v", err)
	}
	if len(h.session.Snapshot().History) != 0 {
		t.Fatalf("empty draft must not send")
	}

	h.session.SetDraft("  how are you  ")
	if err := h.session.HandleSend(ctx); err != nil {
		t.Fatalf("send: %v", err)
	}
	snap := h.session.Snapshot()
	if snap.Draft != "" {
		t.Fatalf("expected draft cleared, got %q", snap.Draft)
	}
	if snap.History[0].Content != "how are you" {
		t.Fatalf("unexpected content %q", snap.History[0].Content)
	}
}

func TestHandleTopicSelect(t *testing.T) {
	h := newHarness(t, assistant())
	ctx := context.Background()
	if err := h.session.InitializeChat(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	if err := h.session.HandleTopicSelect(ctx, "Boring"); !errors.Is(err, ErrUnknownTopic) {
		t.Fatalf("expected ErrUnknownTopic, got %v", err)
	}
	if err := h.session.HandleTopicSelect(ctx, TopicFun); err != nil {
		t.Fatalf("topic: %v", err)
	}

	snap := h.session.Snapshot()
	want, _ := TopicRequest(TopicFun)
	if snap.History[1].Content != want || snap.History[1].Role != chat.RoleUser {
		t.Fatalf("expected templated request, got %+v", snap.History[1])
	}
	if snap.ShowTopics {
		t.Fatalf("topics must hide after sending")
	}
}

func TestSendMessageSendsTrimmedHistory(t *testing.T) {
	h := newHarness(t, persona.ScenarioTarget("coffee-shop", &persona.Scenario{ID: "coffee-shop", Title: "Coffee"}),
		func(o *Options) {
			o.TokenBudget = 3
			o.Estimator = chatsvc.WordCountEstimator{}
		})
	h.backend.chatFn = func(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error) {
		return &backend.ChatResponse{Reply: "sure thing"}, nil
	}
	ctx := context.Background()

	if err := h.session.SendMessage(ctx, "one two", false); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := h.session.SendMessage(ctx, "three", false); err != nil {
		t.Fatalf("send: %v", err)
	}

	req := h.backend.lastRequest()
	if len(req.Messages) != 2 || req.Messages[0].Content != "sure thing" || req.Messages[1].Content != "three" {
		t.Fatalf("expected trimmed suffix, got %+v", req.Messages)
	}
	if req.ChatType != chat.ChatTypeRoleplay || req.ScenarioDetails == nil || req.ScenarioDetails.ID != "coffee-shop" {
		t.Fatalf("expected roleplay request with scenario details, got %+v", req)
	}
}

func TestSendAudioEmptyTranscriptShowsPopup(t *testing.T) {
	h := newHarness(t, assistant())
	h.speech.transcript = "   "
	ctx := context.Background()

	if err := h.session.HandleMicPress(ctx); err != nil {
		t.Fatalf("start recording: %v", err)
	}
	if !h.session.Snapshot().IsRecording {
		t.Fatalf("expected recording")
	}
	if err := h.session.HandleMicPress(ctx); err != nil {
		t.Fatalf("send audio: %v", err)
	}

	snap := h.session.Snapshot()
	if len(snap.History) != 0 {
		t.Fatalf("history must be unchanged, got %+v", snap.History)
	}
	if snap.Popup != PopupNoSpeech {
		t.Fatalf("expected no-speech popup, got %q", snap.Popup)
	}
	if snap.IsProcessingAudio || snap.IsRecording {
		t.Fatalf("expected audio flags cleared, got %+v", snap)
	}
}

func TestSendAudioDispatchesTranscript(t *testing.T) {
	h := newHarness(t, assistant())
	ctx := context.Background()

	if err := h.session.StartRecording(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.session.SendAudio(ctx); err != nil {
		t.Fatalf("send audio: %v", err)
	}

	history := h.session.Snapshot().History
	if len(history) != 2 {
		t.Fatalf("expected user turn and reply, got %+v", history)
	}
	user := history[0]
	if user.Content != "I like tea" || !strings.HasPrefix(user.AudioURI, "file://") || user.IsLoading {
		t.Fatalf("unexpected user message %+v", user)
	}
	if got := h.speech.uploads[0]; got.Filename != "clip.m4a" || string(got.Audio) != "m4a-bytes" {
		t.Fatalf("unexpected upload %+v", got)
	}

	h.session.Wait()
	h.session.StopAudio()
	if err := h.session.PlayAudio(ctx, user.ID); err != nil {
		t.Fatalf("play: %v", err)
	}
	names := h.player.names()
	if last := names[len(names)-1]; last != user.AudioURI {
		t.Fatalf("expected the recorded clip to play, got %q", last)
	}
}

func TestSendAudioTranscriptionFailure(t *testing.T) {
	h := newHarness(t, assistant())
	h.speech.transcribeErr = errUnavailable
	ctx := context.Background()

	if err := h.session.StartRecording(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.session.SendAudio(ctx); err != nil {
		t.Fatalf("send audio: %v", err)
	}

	snap := h.session.Snapshot()
	if snap.Popup != PopupAudioError || len(snap.History) != 0 {
		t.Fatalf("expected audio error popup and no messages, got %+v", snap)
	}
	if snap.IsProcessingAudio || snap.IsRecording {
		t.Fatalf("expected flags cleared")
	}
}

func TestSendAudioWithoutRecording(t *testing.T) {
	h := newHarness(t, assistant())
	if err := h.session.SendAudio(context.Background()); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording, got %v", err)
	}
}

func TestStartNewChatGuardAndReset(t *testing.T) {
	h := newHarness(t, assistant())
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	h.backend.chatFn = func(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error) {
		close(entered)
		<-release
		return &backend.ChatResponse{Reply: "later"}, nil
	}

	if err := h.session.InitializeChat(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- h.session.SendMessage(ctx, "hello", false) }()
	<-entered

	if err := h.session.StartNewChat(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy while a reply is pending, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}
	h.session.Wait()

	if err := h.session.StartNewChat(ctx); err != nil {
		t.Fatalf("new chat: %v", err)
	}
	snap := h.session.Snapshot()
	if len(snap.History) != 1 || snap.History[0].Content != "Welcome!" {
		t.Fatalf("expected fresh greeting only, got %+v", snap.History)
	}
	if h.backend.creates() != 2 {
		t.Fatalf("expected a second session create, got %d", h.backend.creates())
	}
}

func TestFeedbackModalAndPractice(t *testing.T) {
	h := newHarness(t, assistant())
	h.backend.chatFn = func(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error) {
		return &backend.ChatResponse{
			Reply: "Nice!",
			Feedback: &chat.Feedback{
				CorrectedVersion: "I went to the store.",
				Explanation:      "Use the past tense.",
				FeedbackType:     chat.FeedbackGrammar,
			},
		}, nil
	}
	ctx := context.Background()

	if err := h.session.SendMessage(ctx, "I go to the store yesterday.", false); err != nil {
		t.Fatalf("send: %v", err)
	}
	snap := h.session.Snapshot()
	id, ok := snap.LastFeedbackID()
	if !ok {
		t.Fatalf("expected a message with feedback")
	}
	reply, _ := snap.LastReplyID()
	if err := h.session.ShowFeedback(reply); !errors.Is(err, ErrNoFeedback) {
		t.Fatalf("model messages have no feedback, got %v", err)
	}

	if err := h.session.ShowFeedback(id); err != nil {
		t.Fatalf("show: %v", err)
	}
	view := h.session.Snapshot().Feedback
	if view == nil || view.Original.Content != "I go to the store yesterday." || view.Feedback.FeedbackType != chat.FeedbackGrammar {
		t.Fatalf("unexpected modal %+v", view)
	}

	sentence, err := h.session.PracticeCorrection()
	if err != nil {
		t.Fatalf("practice: %v", err)
	}
	if sentence != "I went to the store." {
		t.Fatalf("unexpected practice sentence %q", sentence)
	}
	if h.session.Snapshot().Feedback != nil {
		t.Fatalf("modal must close when practice starts")
	}

	if _, err := h.session.PracticeCorrection(); !errors.Is(err, ErrNoFeedback) {
		t.Fatalf("expected ErrNoFeedback with modal hidden, got %v", err)
	}
}

func TestPopupExpires(t *testing.T) {
	h := newHarness(t, assistant(), func(o *Options) { o.PopupTTL = 20 * time.Millisecond })
	h.speech.transcript = ""
	ctx := context.Background()

	if err := h.session.StartRecording(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.session.SendAudio(ctx); err != nil {
		t.Fatalf("send audio: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.session.Snapshot().Popup != "" {
		if time.Now().After(deadline) {
			t.Fatal("popup never expired")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPlayAudioToggleAndUnknown(t *testing.T) {
	h := newHarness(t, assistant())
	ctx := context.Background()
	if err := h.session.InitializeChat(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	h.session.Wait()

	greeting := h.session.Snapshot().History[0].ID
	if got := h.session.Snapshot().PlayingAudioID; got != greeting {
		t.Fatalf("expected greeting playing, got %d", got)
	}
	if err := h.session.PlayAudio(ctx, greeting); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if got := h.session.Snapshot().PlayingAudioID; got != 0 {
		t.Fatalf("expected toggle-off, got %d", got)
	}
	if err := h.session.PlayAudio(ctx, 42); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestCloseReleasesAudio(t *testing.T) {
	h := newHarness(t, assistant())
	ctx := context.Background()
	if err := h.session.InitializeChat(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := h.session.StartRecording(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	h.session.Close()

	snap := h.session.Snapshot()
	if snap.IsRecording || snap.PlayingAudioID != 0 {
		t.Fatalf("expected devices released, got %+v", snap)
	}
	if err := h.session.SendMessage(ctx, "hi", false); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestWaitReturnsWhileGreetingPlays(t *testing.T) {
	h := newHarness(t, assistant())
	if err := h.session.InitializeChat(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}

	done := make(chan struct{})
	go func() {
		h.session.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait blocked on a sound that is still playing")
	}
	if h.session.Snapshot().PlayingAudioID == 0 {
		t.Fatalf("expected the greeting to still be playing")
	}
}

func TestSendMessageCarriesCustomScenario(t *testing.T) {
	h := newHarness(t, persona.CustomTarget(persona.CustomScenario{
		AIName:   "Sam",
		Role:     "barista",
		UserRole: "customer",
		Context:  "A quiet cafe",
	}))

	if err := h.session.SendMessage(context.Background(), "One latte please", false); err != nil {
		t.Fatalf("send: %v", err)
	}
	h.session.Wait()

	req := h.backend.lastRequest()
	if req.ChatType != chat.ChatTypeRoleplay {
		t.Fatalf("expected roleplay chat, got %q", req.ChatType)
	}
	d := req.ScenarioDetails
	if d == nil || d.AIName != "Sam" || d.AIRole != "barista" || d.UserRole != "customer" || d.Context != "A quiet cafe" {
		t.Fatalf("expected custom scenario details, got %+v", d)
	}
}

func TestBlurDiscardsRecordingAndStopsAudio(t *testing.T) {
	h := newHarness(t, assistant())
	ctx := context.Background()
	if err := h.session.InitializeChat(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	h.session.Wait()
	if err := h.session.StartRecording(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	h.session.Blur()

	snap := h.session.Snapshot()
	if snap.IsRecording || snap.PlayingAudioID != 0 {
		t.Fatalf("expected microphone and speaker released, got %+v", snap)
	}
	if err := h.session.SendAudio(ctx); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("blurred recording must not be sent, got %v", err)
	}
	if len(h.speech.uploads) != 0 {
		t.Fatalf("expected no upload, got %d", len(h.speech.uploads))
	}
}

func TestSendAudioWhilePendingKeepsRecording(t *testing.T) {
	h := newHarness(t, assistant())
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	h.backend.chatFn = func(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error) {
		close(entered)
		<-release
		return &backend.ChatResponse{Reply: "later"}, nil
	}

	done := make(chan error, 1)
	go func() { done <- h.session.SendMessage(ctx, "hello", false) }()
	<-entered

	if err := h.session.StartRecording(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.session.SendAudio(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy while a reply is pending, got %v", err)
	}
	snap := h.session.Snapshot()
	if !snap.IsRecording || snap.Popup != PopupPleaseWait {
		t.Fatalf("expected recording kept and wait popup, got %+v", snap)
	}
	h.speech.mu.Lock()
	uploads := len(h.speech.uploads)
	h.speech.mu.Unlock()
	if uploads != 0 {
		t.Fatalf("clip must not be uploaded while busy, got %d uploads", uploads)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}
	h.backend.mu.Lock()
	h.backend.chatFn = nil
	h.backend.mu.Unlock()
	if err := h.session.SendAudio(ctx); err != nil {
		t.Fatalf("send audio after reply: %v", err)
	}
	if got := h.session.Snapshot().History; len(got) != 4 || got[2].Content != "I like tea" {
		t.Fatalf("expected transcript dispatched after the reply, got %+v", got)
	}
}
