package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/speakeasy/internal/model/speech"
	speechsvc "github.com/zhouzirui/speakeasy/internal/service/speech"
	"github.com/zhouzirui/speakeasy/pkg/utils"
)

// TranscriptHeader lets a dev client choose what /whisper/ "hears".
const TranscriptHeader = "X-Dev-Transcript"

// Engine 抽象语音能力，便于测试与替换实现
type Engine interface {
	Synthesize(ctx context.Context, text, speaker string) ([]byte, error)
	Transcribe(ctx context.Context, audio []byte, hint string) (string, error)
	Assess(ctx context.Context, title, heard string) (*speech.Assessment, error)
	Phonetic(ctx context.Context, text string) (string, error)
	Lookup(ctx context.Context, word string) (*speech.DictionaryEntry, error)
}

// Handler 语音服务的HTTP处理器
type Handler struct {
	engine Engine
	logger *zap.Logger
}

// New 创建语音处理器
func New(engine Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, logger: logger}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/tts/", h.handleSynthesize)
	r.Post("/whisper/", h.handleTranscribe)
	r.Post("/assess_pronunciation/", h.handleAssess)
	r.Post("/get_phonetic/", h.handlePhonetic)
	r.Get("/dictionary/{word}", h.handleDictionary)
}

// handleSynthesize 文本转语音，返回 base64 音频
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	text := strings.TrimSpace(r.PostFormValue("text"))
	if text == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	audio, err := h.engine.Synthesize(r.Context(), text, r.PostFormValue("speaker"))
	if err != nil {
		h.logger.Error("tts failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "synthesis failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, speech.TTSResponse{Audio: base64.StdEncoding.EncodeToString(audio)})
}

// handleTranscribe 语音转文本
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("files")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "files is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio")
		return
	}

	transcript, err := h.engine.Transcribe(r.Context(), audio, r.Header.Get(TranscriptHeader))
	if err != nil {
		h.logger.Error("whisper failed", zap.String("filename", header.Filename), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "transcription failed")
		return
	}

	h.logger.Debug("transcribed upload",
		zap.String("filename", header.Filename),
		zap.Int("bytes", len(audio)),
		zap.String("transcript", transcript))
	utils.RespondJSON(w, http.StatusOK, speech.TranscriptionResponse{
		Results: []speech.TranscriptResult{{Transcript: transcript}},
	})
}

// handleAssess 发音评测。和线上服务一样，结果以 JSON 字符串再包一层返回。
func (h *Handler) handleAssess(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	title := strings.TrimSpace(r.FormValue("title"))
	encoded := r.FormValue("base64Audio")
	if title == "" || encoded == "" {
		utils.RespondError(w, http.StatusBadRequest, "title and base64Audio are required")
		return
	}
	if i := strings.Index(encoded, ","); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+1:]
	}
	if _, err := base64.StdEncoding.DecodeString(encoded); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "base64Audio is not valid base64")
		return
	}

	result, err := h.engine.Assess(r.Context(), title, r.Header.Get(TranscriptHeader))
	if err != nil {
		h.logger.Error("assessment failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "assessment failed")
		return
	}

	inner, err := json.Marshal(result)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to encode assessment")
		return
	}
	utils.RespondJSON(w, http.StatusOK, string(inner))
}

// handlePhonetic 查询音标
func (h *Handler) handlePhonetic(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	text := strings.TrimSpace(r.PostFormValue("text"))
	phonetic, err := h.engine.Phonetic(r.Context(), text)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, speech.PhoneticResponse{Text: text, Phonetic: phonetic})
}

// handleDictionary 查询单词
func (h *Handler) handleDictionary(w http.ResponseWriter, r *http.Request) {
	word := chi.URLParam(r, "word")
	entry, err := h.engine.Lookup(r.Context(), word)
	if errors.Is(err, speechsvc.ErrWordNotFound) {
		utils.RespondError(w, http.StatusNotFound, "word not found")
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, entry)
}
