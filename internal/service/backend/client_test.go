package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/speakeasy/internal/model/chat"
	"github.com/zhouzirui/speakeasy/internal/model/persona"
	"github.com/zhouzirui/speakeasy/pkg/utils"
)

func newTestServer(t *testing.T, register func(r chi.Router)) *Client {
	t.Helper()
	r := chi.NewRouter()
	register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return New(srv.URL, WithHTTPClient(srv.Client()))
}

func TestCreateSessionAssistantPayload(t *testing.T) {
	var got map[string]any
	client := newTestServer(t, func(r chi.Router) {
		r.Post("/session", func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("decode err: %v", err)
			}
			utils.RespondJSON(w, http.StatusOK, SessionResponse{GreetingMessage: "Hello learner"})
		})
	})

	greeting, err := client.CreateSession(context.Background(), persona.AssistantTarget(persona.MainAssistant()))
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if greeting != "Hello learner" {
		t.Fatalf("unexpected greeting %q", greeting)
	}
	if got["aiName"] != "Mia" || got["role"] == nil || got["context"] == nil {
		t.Fatalf("unexpected assistant payload: %v", got)
	}
	if _, ok := got["scenarioId"]; ok {
		t.Fatalf("assistant payload should not carry scenarioId: %v", got)
	}
}

func TestCreateSessionScenarioPayloads(t *testing.T) {
	scenario := NewSessionRequest(persona.ScenarioTarget("coffee-shop", nil))
	if scenario.ScenarioID != "coffee-shop" || scenario.CustomScenario {
		t.Fatalf("unexpected scenario request: %+v", scenario)
	}

	custom := NewSessionRequest(persona.CustomTarget(persona.CustomScenario{
		AIName:     "Ana",
		Role:       "tour guide",
		UserRole:   "tourist",
		Objectives: []string{"ask for directions"},
	}))
	if !custom.CustomScenario || custom.AIName != "Ana" || custom.UserRole != "tourist" {
		t.Fatalf("unexpected custom request: %+v", custom)
	}
}

func TestCreateSessionEmptyGreeting(t *testing.T) {
	client := newTestServer(t, func(r chi.Router) {
		r.Post("/session", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, SessionResponse{GreetingMessage: "  "})
		})
	})

	_, err := client.CreateSession(context.Background(), persona.ScenarioTarget("x", nil))
	if !errors.Is(err, ErrEmptyGreeting) {
		t.Fatalf("expected ErrEmptyGreeting, got %v", err)
	}
}

func TestChatRoundTrip(t *testing.T) {
	var got ChatRequest
	client := newTestServer(t, func(r chi.Router) {
		r.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("decode err: %v", err)
			}
			utils.RespondJSON(w, http.StatusOK, ChatResponse{
				Reply: "Hi!",
				Feedback: &chat.Feedback{
					CorrectedVersion: "Hello",
					Explanation:      "Good job",
					FeedbackType:     chat.FeedbackNone,
					IsCorrect:        true,
				},
			})
		})
	})

	resp, err := client.Chat(context.Background(), ChatRequest{
		Messages: []chat.Message{{ID: 1, Role: chat.RoleUser, Content: "Hello", IsLoading: true}},
		ChatType: chat.ChatTypeMain,
	})
	if err != nil {
		t.Fatalf("Chat err: %v", err)
	}
	if resp.Reply != "Hi!" || resp.Feedback == nil || !resp.Feedback.IsCorrect {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if got.ChatType != chat.ChatTypeMain || len(got.Messages) != 1 || got.Messages[0].Content != "Hello" {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.ScenarioDetails != nil {
		t.Fatal("main chat should not send scenario details")
	}
}

func TestChatServerErrorIsStatusError(t *testing.T) {
	client := newTestServer(t, func(r chi.Router) {
		r.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondError(w, http.StatusInternalServerError, "boom")
		})
	})

	_, err := client.Chat(context.Background(), ChatRequest{ChatType: chat.ChatTypeMain})
	if !utils.IsStatus(err, http.StatusInternalServerError) {
		t.Fatalf("expected 500 StatusError, got %v", err)
	}
}

func TestRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	r := chi.NewRouter()
	r.Get("/scenarios/options", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	srv := httptest.NewServer(r)
	defer srv.Close()
	defer close(release)

	client := New(srv.URL, WithHTTPClient(srv.Client()), WithTimeout(50*time.Millisecond))
	_, err := client.ScenarioOptions(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestScenarioCatalog(t *testing.T) {
	store := persona.NewMemoryStore(persona.Seed())
	client := newTestServer(t, func(r chi.Router) {
		r.Get("/scenarios/options", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, store.Options())
		})
		r.Get("/scenarios/by-role", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, store.ListByRole(r.URL.Query().Get("role")))
		})
		r.Get("/scenarios/{id}", func(w http.ResponseWriter, r *http.Request) {
			s, ok := store.FindByID(chi.URLParam(r, "id"))
			if !ok {
				utils.RespondError(w, http.StatusNotFound, "not found")
				return
			}
			utils.RespondJSON(w, http.StatusOK, s)
		})
	})
	ctx := context.Background()

	opts, err := client.ScenarioOptions(ctx)
	if err != nil || len(opts) != 3 {
		t.Fatalf("ScenarioOptions = %v, %v", opts, err)
	}

	byRole, err := client.ScenariosByRole(ctx, "candidate")
	if err != nil || len(byRole) != 1 || byRole[0].ID != "job-interview" {
		t.Fatalf("ScenariosByRole = %v, %v", byRole, err)
	}

	s, err := client.Scenario(ctx, "hotel-checkin")
	if err != nil || s.AIRole != "receptionist" {
		t.Fatalf("Scenario = %v, %v", s, err)
	}

	if _, err := client.Scenario(ctx, "missing"); !utils.IsStatus(err, http.StatusNotFound) {
		t.Fatalf("expected 404, got %v", err)
	}
}
