package chat

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/vera/client/internal/model/chat"
	chatservice "github.com/zhouzirui/vera/client/internal/service/chat"
	"github.com/zhouzirui/vera/client/pkg/utils"
)

// Handler 对话控制器的HTTP处理器
type Handler struct {
	ctrl *chatservice.Controller
	// background 决定后台轮次使用的上下文，默认脱离请求生命周期
	background func(r *http.Request) context.Context
}

// New 创建对话处理器
func New(ctrl *chatservice.Controller) *Handler {
	return &Handler{
		ctrl: ctrl,
		background: func(r *http.Request) context.Context {
			return context.WithoutCancel(r.Context())
		},
	}
}

// RegisterRoutes 注册对话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/messages", h.handleListMessages)
	r.Post("/messages", h.handleSubmit)
	r.Post("/messages/{messageID}/retry", h.handleRetry)
	r.Get("/input", h.handleGetInput)
	r.Put("/input", h.handleSetInput)
	r.Post("/input/send", h.handleSendInput)
}

type submitRequest struct {
	Content string `json:"content"`
	IsVoice bool   `json:"isVoice"`
}

type inputRequest struct {
	Text string `json:"text"`
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.ctrl.Messages())
}

// handleSubmit 提交一轮对话，轮次在后台执行
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload submitRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Content) == "" {
		utils.RespondError(w, http.StatusBadRequest, "content is required")
		return
	}
	run, ok := h.ctrl.Begin(payload.Content, payload.IsVoice)
	if !ok {
		utils.RespondError(w, http.StatusConflict, "a reply is already in progress")
		return
	}
	h.runInBackground(r, run)

	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleRetry 重新发送一条用户消息
func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")
	if !h.isUserMessage(messageID) {
		utils.RespondError(w, http.StatusNotFound, "user message not found")
		return
	}
	run, ok := h.ctrl.BeginRetry(messageID)
	if !ok {
		utils.RespondError(w, http.StatusConflict, "a reply is already in progress")
		return
	}
	h.runInBackground(r, run)

	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// runInBackground 在请求生命周期之外执行已预留的轮次
func (h *Handler) runInBackground(r *http.Request, run func(context.Context)) {
	ctx := h.background(r)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[chat] background turn panicked: %v", rec)
			}
		}()
		run(ctx)
	}()
}

func (h *Handler) isUserMessage(id string) bool {
	for _, msg := range h.ctrl.Messages() {
		if msg.ID == id {
			return msg.Role == chat.RoleUser
		}
	}
	return false
}

func (h *Handler) handleGetInput(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.ctrl.Input())
}

func (h *Handler) handleSetInput(w http.ResponseWriter, r *http.Request) {
	var payload inputRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.ctrl.SetInput(payload.Text)
	utils.RespondJSON(w, http.StatusOK, h.ctrl.Input())
}

// handleSendInput 确认发送输入框内容
func (h *Handler) handleSendInput(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(h.ctrl.Input().Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "input is empty")
		return
	}
	run, ok := h.ctrl.BeginInput()
	if !ok {
		utils.RespondError(w, http.StatusConflict, "a reply is already in progress")
		return
	}
	h.runInBackground(r, run)

	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
