package events

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/vera/client/internal/model/chat"
	"github.com/zhouzirui/vera/client/internal/service/capture"
	chatservice "github.com/zhouzirui/vera/client/internal/service/chat"
	"github.com/zhouzirui/vera/client/pkg/utils"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

// State 推送给界面的完整状态
type State struct {
	Chat    chat.Snapshot  `json:"chat"`
	Capture capture.Status `json:"capture"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Handler 状态推送处理器
type Handler struct {
	ctrl          *chatservice.Controller
	recorder      *capture.Recorder
	levelInterval time.Duration
	upgrader      websocket.Upgrader
}

// New 创建状态推送处理器。levelInterval 为录音电平的推送间隔。
func New(ctrl *chatservice.Controller, recorder *capture.Recorder, levelInterval time.Duration) *Handler {
	if levelInterval <= 0 {
		levelInterval = capture.DefaultSampleInterval
	}
	return &Handler{
		ctrl:          ctrl,
		recorder:      recorder,
		levelInterval: levelInterval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册状态查询与推送路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/state", h.handleState)
	r.Get("/ws", h.handleWebSocket)
}

func (h *Handler) snapshot() State {
	return State{Chat: h.ctrl.Snapshot(), Capture: h.recorder.Status()}
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.snapshot())
}

// handleWebSocket 推送状态变化与录音电平
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[websocket] client connected from %s", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	chatChanges, unsubscribeChat := h.ctrl.Subscribe()
	defer unsubscribeChat()
	captureChanges, unsubscribeCapture := h.recorder.Subscribe()
	defer unsubscribeCapture()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go h.readLoop(conn, cancel)
	go h.pingLoop(ctx, conn)

	if !h.send(conn, "state", h.snapshot()) {
		return
	}

	ticker := time.NewTicker(h.levelInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[websocket] client disconnected")
			return
		case <-chatChanges:
			if !h.send(conn, "state", h.snapshot()) {
				return
			}
		case <-captureChanges:
			if !h.send(conn, "state", h.snapshot()) {
				return
			}
		case <-ticker.C:
			if h.recorder.State() != capture.StateRecording {
				continue
			}
			if !h.send(conn, "level", map[string]float64{"level": h.recorder.Level()}) {
				return
			}
		}
	}
}

// readLoop 丢弃客户端消息，仅用于处理 pong 与关闭帧
func (h *Handler) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, kind string, data any) bool {
	msg := outgoingMessage{
		Type:      kind,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[websocket] write %s failed: %v", kind, err)
		return false
	}
	return true
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
