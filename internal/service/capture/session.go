package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"math"
	"sync"
	"time"

	speechmodel "github.com/zhouzirui/vera/client/internal/model/speech"
)

const readBufferSize = 32 << 10

// session owns the resources of one recording: the source, the reader that
// accumulates chunks and the sampling task. release runs exactly once.
type session struct {
	source  Source
	started time.Time
	cancel  context.CancelFunc

	mu     sync.Mutex
	buffer bytes.Buffer
	chunks int

	readDone   chan struct{}
	sampleDone chan struct{}
	release    func()
}

func startSession(source Source, interval time.Duration, started time.Time, setLevel func(float64)) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		source:     source,
		started:    started,
		cancel:     cancel,
		readDone:   make(chan struct{}),
		sampleDone: make(chan struct{}),
	}

	var once sync.Once
	s.release = func() {
		once.Do(func() {
			cancel()
			if err := source.Close(); err != nil {
				log.Printf("[capture] release source: %v", err)
			}
		})
	}

	go s.readLoop(ctx)
	go s.sampleLoop(ctx, interval, setLevel)
	return s
}

func (s *session) readLoop(ctx context.Context) {
	defer close(s.readDone)

	buf := make([]byte, readBufferSize)
	for {
		n, err := s.source.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.buffer.Write(buf[:n])
			s.chunks++
			s.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Printf("[capture] read audio: %v", err)
			}
			return
		}
	}
}

// sampleLoop polls the source level once per tick until ctx is cancelled.
func (s *session) sampleLoop(ctx context.Context, interval time.Duration, setLevel func(float64)) {
	defer close(s.sampleDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			setLevel(clampLevel(s.source.Level()))
		}
	}
}

// finish tears the session down and returns whatever audio was captured.
func (s *session) finish(now time.Time, mimeType string) speechmodel.Clip {
	s.release()
	<-s.sampleDone
	<-s.readDone

	s.mu.Lock()
	data := append([]byte(nil), s.buffer.Bytes()...)
	s.mu.Unlock()

	return speechmodel.Clip{
		Data:      data,
		MimeType:  mimeType,
		Duration:  now.Sub(s.started),
		CreatedAt: now,
	}
}

// abort releases resources without producing a clip.
func (s *session) abort() {
	s.release()
	<-s.sampleDone
	<-s.readDone
}

func clampLevel(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
