package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/zhouzirui/vera/client/internal/config"
	"github.com/zhouzirui/vera/client/internal/handler"
	"github.com/zhouzirui/vera/client/internal/metrics"
	speechmodel "github.com/zhouzirui/vera/client/internal/model/speech"
	"github.com/zhouzirui/vera/client/internal/service/capture"
	"github.com/zhouzirui/vera/client/internal/service/chat"
	"github.com/zhouzirui/vera/client/internal/service/conversation"
	"github.com/zhouzirui/vera/client/internal/service/speech"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if cfg.Assistant.URL == "" || cfg.Assistant.APIKey == "" {
		log.Println("助手地址或密钥未配置，发送消息与转写将返回未配置错误")
	}

	m := metrics.NewMetrics()

	conversationClient := metrics.InstrumentConversation(conversation.NewClient(cfg.Assistant), m)
	speechClient := metrics.InstrumentTranscriber(speech.NewClient(cfg.Assistant), m)
	controller := chat.NewController(conversationClient, speechClient)

	// Initialize capture device
	var device capture.Device = capture.UnsupportedDevice{}
	if cfg.Capture.Source != "" {
		device = capture.FileDevice{
			Path:          cfg.Capture.Source,
			ChunkBytes:    cfg.Capture.ChunkBytes,
			ChunkInterval: cfg.Capture.ChunkInterval,
		}
		log.Printf("capture source: %s", cfg.Capture.Source)
	} else {
		log.Println("录音源未配置，录音功能不可用")
	}

	recorder := capture.NewRecorder(metrics.InstrumentDevice(device, m), capture.Options{SampleInterval: cfg.Capture.SampleInterval})
	defer recorder.Close()

	recorder.OnClip(func(clip speechmodel.Clip) {
		clipCtx, cancel := context.WithTimeout(ctx, cfg.Assistant.Timeout)
		defer cancel()
		if err := controller.HandleClip(clipCtx, clip); errors.Is(err, chat.ErrVoiceUnavailable) {
			log.Printf("[chat] voice input dropped: %v", err)
		}
	})

	router := handler.NewRouter(controller, recorder, m, cfg.Capture.SampleInterval)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("VERA client bridge listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Printf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
