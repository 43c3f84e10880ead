package chat

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/speakeasy/internal/model/chat"
	"github.com/zhouzirui/speakeasy/internal/model/persona"
	aiService "github.com/zhouzirui/speakeasy/internal/service/ai"
	"github.com/zhouzirui/speakeasy/internal/service/backend"
	chatService "github.com/zhouzirui/speakeasy/internal/service/chat"
	"github.com/zhouzirui/speakeasy/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc   *chatService.Service
	scenarios persona.Store
	tutor     aiService.Tutor
	logger    *zap.Logger
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, scenarios persona.Store, tutor aiService.Tutor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatSvc:   chatSvc,
		scenarios: scenarios,
		tutor:     tutor,
		logger:    logger,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Get("/session/{id}", h.handleGetSession)
	r.Post("/chat", h.handleChat)
}

// handleCreateSession 创建会话并返回开场白
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload backend.SessionRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	session := chat.Session{
		ScenarioID: payload.ScenarioID,
		AIName:     payload.AIName,
		Role:       payload.Role,
	}

	switch {
	case payload.ScenarioID != "":
		scenario, ok := h.scenarios.FindByID(payload.ScenarioID)
		if !ok {
			utils.RespondError(w, http.StatusNotFound, "scenario not found")
			return
		}
		session.ChatType = chat.ChatTypeRoleplay
		session.AIName = scenario.AIName
		session.Role = scenario.AIRole
		session.Greeting = scenarioGreeting(scenario)
	case payload.CustomScenario:
		if payload.AIName == "" || payload.Role == "" {
			utils.RespondError(w, http.StatusBadRequest, "aiName and role are required")
			return
		}
		session.ChatType = chat.ChatTypeRoleplay
		session.Greeting = fmt.Sprintf("Hi, I'm %s, the %s. %s", payload.AIName, payload.Role, openingFor(payload.UserRole))
	default:
		if payload.AIName == "" {
			utils.RespondError(w, http.StatusBadRequest, "aiName is required")
			return
		}
		session.ChatType = chat.ChatTypeMain
		role := payload.Role
		if role == "" {
			role = "conversation partner"
		}
		session.Greeting = fmt.Sprintf("Hi! I'm %s, your %s. What would you like to talk about today?", payload.AIName, role)
	}

	created, err := h.chatSvc.CreateSession(r.Context(), session)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info("session created",
		zap.String("session_id", created.ID),
		zap.String("chat_type", string(created.ChatType)),
		zap.String("scenario_id", created.ScenarioID))
	utils.RespondJSON(w, http.StatusOK, backend.SessionResponse{SessionID: created.ID, GreetingMessage: created.Greeting})
}

// handleGetSession 查询已创建的会话
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, chatService.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleChat 生成回复并评估学习者的上一句话
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload backend.ChatRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.ChatType == "" {
		payload.ChatType = chat.ChatTypeMain
	}
	// 客户端只带了场景 ID 时从目录补全
	if d := payload.ScenarioDetails; d != nil && d.ID != "" && d.AIRole == "" {
		if scenario, ok := h.scenarios.FindByID(d.ID); ok {
			payload.ScenarioDetails = &scenario
		}
	}

	result, err := h.tutor.Respond(r.Context(), aiService.Turn{
		Messages: payload.Messages,
		ChatType: payload.ChatType,
		Scenario: payload.ScenarioDetails,
	})
	if errors.Is(err, aiService.ErrNoUserMessage) {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("tutor failed", zap.Int("messages", len(payload.Messages)), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to generate reply")
		return
	}

	feedback := result.Feedback
	utils.RespondJSON(w, http.StatusOK, backend.ChatResponse{Reply: result.Reply, Feedback: &feedback})
}

func scenarioGreeting(s persona.Scenario) string {
	if strings.TrimSpace(s.Greeting) != "" {
		return s.Greeting
	}
	return fmt.Sprintf("Hello! I'm %s, the %s. %s", s.AIName, s.AIRole, openingFor(s.UserRole))
}

func openingFor(userRole string) string {
	if userRole == "" {
		return "Shall we begin?"
	}
	return fmt.Sprintf("You're the %s today. Shall we begin?", userRole)
}
