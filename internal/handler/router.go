package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	capturehandler "github.com/zhouzirui/vera/client/internal/handler/capture"
	"github.com/zhouzirui/vera/client/internal/handler/chat"
	"github.com/zhouzirui/vera/client/internal/handler/events"
	"github.com/zhouzirui/vera/client/internal/metrics"
	middlewarePkg "github.com/zhouzirui/vera/client/internal/middleware"
	"github.com/zhouzirui/vera/client/internal/service/capture"
	chatService "github.com/zhouzirui/vera/client/internal/service/chat"
)

// NewRouter wires the local API to the conversation controller and the recorder.
// m may be nil, in which case /metrics is not served.
func NewRouter(ctrl *chatService.Controller, recorder *capture.Recorder, m *metrics.Metrics, levelInterval time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	// Create handlers
	chatHandler := chat.New(ctrl)
	captureHandler := capturehandler.New(recorder)
	eventsHandler := events.New(ctrl, recorder, levelInterval)

	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		eventsHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		captureHandler.RegisterRoutes(api)
	})

	return r
}
