package capture

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/vera/client/internal/service/capture"
	"github.com/zhouzirui/vera/client/pkg/utils"
)

// Handler 录音子系统的HTTP处理器
type Handler struct {
	recorder *capture.Recorder
}

// New 创建录音处理器
func New(recorder *capture.Recorder) *Handler {
	return &Handler{recorder: recorder}
}

// RegisterRoutes 注册录音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/capture", func(r chi.Router) {
		r.Get("/", h.handleStatus)
		r.Post("/start", h.handleStart)
		r.Post("/stop", h.handleStop)
		r.Delete("/error", h.handleDismiss)
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.recorder.Status())
}

// handleStart 请求麦克风并开始录音
func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	err := h.recorder.Start(r.Context())
	if err == nil {
		utils.RespondJSON(w, http.StatusOK, h.recorder.Status())
		return
	}

	var captureErr *capture.CaptureError
	if !errors.As(err, &captureErr) {
		captureErr = capture.Classify(err)
	}

	status := http.StatusServiceUnavailable
	switch captureErr.Kind {
	case capture.KindPermissionDenied, capture.KindSecurityBlocked:
		status = http.StatusForbidden
	case capture.KindDeviceBusy:
		status = http.StatusConflict
	}
	if errors.Is(err, capture.ErrClosed) {
		status = http.StatusGone
	}
	utils.RespondErrorCode(w, status, string(captureErr.Kind), captureErr.Message())
}

// handleStop 停止录音，录音结果异步交给转写流程
func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	h.recorder.Stop()
	utils.RespondJSON(w, http.StatusOK, h.recorder.Status())
}

func (h *Handler) handleDismiss(w http.ResponseWriter, r *http.Request) {
	h.recorder.Dismiss()
	w.WriteHeader(http.StatusNoContent)
}
