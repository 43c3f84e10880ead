package persona

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/speakeasy/internal/model/persona"
	"github.com/zhouzirui/speakeasy/pkg/utils"
)

// Handler 场景目录的HTTP处理器
type Handler struct {
	scenarios persona.Store
}

// New 创建场景处理器
func New(scenarios persona.Store) *Handler {
	return &Handler{
		scenarios: scenarios,
	}
}

// RegisterRoutes 注册场景相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/scenarios/options", h.handleOptions)
	r.Get("/scenarios/by-role", h.handleByRole)
	r.Get("/scenarios/{id}", h.handleGet)
}

// handleOptions 列出可选的学习者角色
func (h *Handler) handleOptions(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.scenarios.Options())
}

// handleByRole 按角色列出场景
func (h *Handler) handleByRole(w http.ResponseWriter, r *http.Request) {
	role := strings.TrimSpace(r.URL.Query().Get("role"))
	if role == "" {
		utils.RespondError(w, http.StatusBadRequest, "role query parameter is required")
		return
	}
	items := h.scenarios.ListByRole(role)
	if items == nil {
		items = []persona.Scenario{}
	}
	utils.RespondJSON(w, http.StatusOK, items)
}

// handleGet 获取单个场景
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	scenario, ok := h.scenarios.FindByID(chi.URLParam(r, "id"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "scenario not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, scenario)
}
