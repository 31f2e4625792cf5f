package assistant

import (
	"crypto/subtle"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/vera/client/internal/model/chat"
	assistantsvc "github.com/zhouzirui/vera/client/internal/service/assistant"
	"github.com/zhouzirui/vera/client/internal/service/speech"
	"github.com/zhouzirui/vera/client/pkg/utils"
)

const maxUploadBytes = 32 << 20 // 32MB max

// Handler 开发用助手端点，实现与正式助手服务相同的请求/响应约定
type Handler struct {
	responder  assistantsvc.Responder
	sessions   *assistantsvc.SessionStore
	apiKey     string
	transcript string
}

// New 创建助手处理器。apiKey 为空时不校验凭证。
func New(responder assistantsvc.Responder, sessions *assistantsvc.SessionStore, apiKey, transcript string) *Handler {
	return &Handler{
		responder:  responder,
		sessions:   sessions,
		apiKey:     apiKey,
		transcript: transcript,
	}
}

// RegisterRoutes 注册助手相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.requireBearer)
		r.Post("/", h.handleTurn)
		r.Post("/transcribe", h.handleTranscribe)
	})
}

func (h *Handler) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || subtle.ConstantTimeCompare([]byte(token), []byte(h.apiKey)) != 1 {
			utils.RespondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleTurn 处理一轮对话
func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req chat.TurnRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	token := strings.TrimSpace(req.SessionID)
	if token == "" || !h.sessions.Exists(token) {
		token = h.sessions.Create()
		log.Printf("[assistant] new session created")
	}

	history, err := h.sessions.Transcript(token)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}

	reply, err := h.responder.Reply(r.Context(), history, message)
	if err != nil {
		log.Printf("[assistant] reply error: %v", err)
		utils.RespondError(w, http.StatusBadGateway, "assistant unavailable")
		return
	}

	for _, msg := range []chat.Message{
		{Role: chat.RoleUser, Content: message},
		{Role: chat.RoleAssistant, Content: reply},
	} {
		if err := h.sessions.Append(token, msg); err != nil {
			log.Printf("[assistant] failed to persist message: %v", err)
		}
	}

	utils.RespondJSON(w, http.StatusOK, chat.TurnResponse{Response: reply, SessionID: token})
}

// handleTranscribe 接收音频并返回固定的模拟转写文本
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusRequestEntityTooLarge, "audio file too large")
			return
		}
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}

	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile(speech.FormField)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	size, err := io.Copy(io.Discard, file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio file")
		return
	}
	if size == 0 {
		utils.RespondError(w, http.StatusBadRequest, "audio file is empty")
		return
	}

	log.Printf("[assistant] transcribe filename=%s type=%s bytes=%d", header.Filename, header.Header.Get("Content-Type"), size)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"text": h.transcript})
}
