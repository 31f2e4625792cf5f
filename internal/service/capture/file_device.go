package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// FileDevice replays a pre-recorded file as if it were a live microphone:
// ChunkBytes are released every ChunkInterval, and once the file is drained
// the source stays open and silent until closed.
type FileDevice struct {
	Path          string
	ChunkBytes    int
	ChunkInterval time.Duration
}

// Acquire opens the file. Missing files map to ErrDeviceNotFound and
// unreadable ones to ErrPermissionDenied.
func (d FileDevice) Acquire(ctx context.Context) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Path == "" {
		return nil, ErrUnsupported
	}

	f, err := os.Open(d.Path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, d.Path)
		case errors.Is(err, fs.ErrPermission):
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, d.Path)
		default:
			return nil, fmt.Errorf("%w: %v", ErrDeviceBusy, err)
		}
	}

	chunk := d.ChunkBytes
	if chunk <= 0 {
		chunk = 4096
	}
	interval := d.ChunkInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	return &fileSource{
		file:   f,
		chunk:  chunk,
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}, nil
}

type fileSource struct {
	file   *os.File
	chunk  int
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
	level  atomic.Uint64
}

func (s *fileSource) Read(p []byte) (int, error) {
	select {
	case <-s.done:
		return 0, io.EOF
	case <-s.ticker.C:
	}

	if len(p) > s.chunk {
		p = p[:s.chunk]
	}
	n, err := s.file.Read(p)
	if n > 0 {
		s.level.Store(math.Float64bits(approximateLevel(p[:n])))
		return n, nil
	}
	if errors.Is(err, io.EOF) {
		s.level.Store(0)
		<-s.done
		return 0, io.EOF
	}
	return 0, err
}

func (s *fileSource) Level() float64 {
	return math.Float64frombits(s.level.Load())
}

func (s *fileSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.ticker.Stop()
		err = s.file.Close()
	})
	return err
}

// approximateLevel is the mean distance of each byte from the unsigned
// 8-bit midpoint, scaled to [0, 1]. Cosmetic only.
func approximateLevel(chunk []byte) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var sum float64
	for _, b := range chunk {
		sum += math.Abs(float64(b) - 128)
	}
	return clampLevel(sum / float64(len(chunk)) / 128)
}
