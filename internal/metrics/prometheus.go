package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/vera/client/internal/model/chat"
	speechmodel "github.com/zhouzirui/vera/client/internal/model/speech"
	"github.com/zhouzirui/vera/client/internal/service/capture"
	"github.com/zhouzirui/vera/client/internal/service/speech"
)

// Metrics contains the Prometheus metrics of the client bridge
type Metrics struct {
	registry *prometheus.Registry

	// Conversation metrics
	Turns        *prometheus.CounterVec
	TurnDuration prometheus.Histogram

	// Transcription metrics
	Transcriptions        *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram
	ClipSize              prometheus.Histogram

	// Capture metrics
	CaptureStarts *prometheus.CounterVec
}

// NewMetrics creates the metrics on a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vera_conversation_turns_total",
			Help: "Conversation turns sent to the assistant by outcome",
		}, []string{"outcome"}),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vera_conversation_turn_duration_seconds",
			Help:    "Round trip time of conversation turns",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		}),

		Transcriptions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vera_transcriptions_total",
			Help: "Transcription requests by outcome",
		}, []string{"outcome"}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vera_transcription_duration_seconds",
			Help:    "Round trip time of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		ClipSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vera_clip_size_bytes",
			Help:    "Size of recorded clips sent for transcription",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		CaptureStarts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vera_capture_starts_total",
			Help: "Microphone acquisition attempts by result",
		}, []string{"result"}),
	}
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ConversationClient mirrors the conversation client operation
type ConversationClient interface {
	SendTurn(ctx context.Context, text, sessionToken string) (chat.TurnReply, error)
}

// Transcriber mirrors the transcription client operation
type Transcriber interface {
	Transcribe(ctx context.Context, clip speechmodel.Clip) (string, error)
}

type conversationRecorder struct {
	next    ConversationClient
	metrics *Metrics
}

// InstrumentConversation counts turns and their latency
func InstrumentConversation(next ConversationClient, m *Metrics) ConversationClient {
	return &conversationRecorder{next: next, metrics: m}
}

func (c *conversationRecorder) SendTurn(ctx context.Context, text, sessionToken string) (chat.TurnReply, error) {
	start := time.Now()
	reply, err := c.next.SendTurn(ctx, text, sessionToken)
	c.metrics.TurnDuration.Observe(time.Since(start).Seconds())

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.metrics.Turns.WithLabelValues(outcome).Inc()
	return reply, err
}

type transcriberRecorder struct {
	next    Transcriber
	metrics *Metrics
}

// InstrumentTranscriber counts transcriptions, their latency and clip sizes
func InstrumentTranscriber(next Transcriber, m *Metrics) Transcriber {
	return &transcriberRecorder{next: next, metrics: m}
}

func (t *transcriberRecorder) Transcribe(ctx context.Context, clip speechmodel.Clip) (string, error) {
	t.metrics.ClipSize.Observe(float64(len(clip.Data)))

	start := time.Now()
	text, err := t.next.Transcribe(ctx, clip)
	t.metrics.TranscriptionDuration.Observe(time.Since(start).Seconds())
	t.metrics.Transcriptions.WithLabelValues(transcriptionOutcome(err)).Inc()
	return text, err
}

func transcriptionOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, speech.ErrEmptyResult):
		return "empty"
	case errors.Is(err, speech.ErrNotConfigured):
		return "not_configured"
	default:
		return "failure"
	}
}

// InstrumentDevice counts acquisition attempts by failure kind
func InstrumentDevice(next capture.Device, m *Metrics) capture.Device {
	return capture.DeviceFunc(func(ctx context.Context) (capture.Source, error) {
		source, err := next.Acquire(ctx)
		result := "ok"
		if err != nil {
			result = string(capture.Classify(err).Kind)
		}
		m.CaptureStarts.WithLabelValues(result).Inc()
		return source, err
	})
}
