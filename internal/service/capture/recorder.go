package capture

import (
	"context"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	speechmodel "github.com/zhouzirui/vera/client/internal/model/speech"
	"github.com/zhouzirui/vera/client/pkg/utils"
)

// DefaultSampleInterval approximates one animation frame.
const DefaultSampleInterval = 16 * time.Millisecond

// State is the recorder state machine: Idle -> Recording -> Idle.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
)

// Options tunes a Recorder.
type Options struct {
	SampleInterval time.Duration
	MimeType       string
	Now            func() time.Time
}

// ErrorInfo is the presentable form of the last start failure.
type ErrorInfo struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Status is a read-only projection of the recorder.
type Status struct {
	State State      `json:"state"`
	Level float64    `json:"level"`
	Error *ErrorInfo `json:"error,omitempty"`
}

// Recorder owns microphone acquisition for one client. At most one recording
// session exists at a time and its resources are released on Stop, on a
// failed Start and on Close.
type Recorder struct {
	device Device
	opts   Options

	mu        sync.Mutex
	state     State
	acquiring bool
	// stopPending records a Stop that arrived while the device was being acquired.
	stopPending bool
	closed      bool
	session     *session
	lastErr     *CaptureError
	onClip      func(speechmodel.Clip)

	level   atomic.Uint64
	changes utils.Broadcaster
}

// NewRecorder creates an idle recorder on top of device.
func NewRecorder(device Device, opts Options) *Recorder {
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = DefaultSampleInterval
	}
	if opts.MimeType == "" {
		opts.MimeType = speechmodel.DefaultMimeType
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if device == nil {
		device = UnsupportedDevice{}
	}
	return &Recorder{device: device, opts: opts, state: StateIdle}
}

// OnClip registers the completion handler. It runs on its own goroutine.
func (r *Recorder) OnClip(fn func(speechmodel.Clip)) {
	r.mu.Lock()
	r.onClip = fn
	r.mu.Unlock()
}

// Start acquires the microphone and begins recording. A failure is recorded
// for display until the next Start or Dismiss and leaves the recorder Idle.
// Calling Start while already recording is a no-op.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.state == StateRecording || r.acquiring {
		r.mu.Unlock()
		return nil
	}
	r.lastErr = nil
	r.acquiring = true
	r.stopPending = false
	r.mu.Unlock()
	r.changes.Notify()

	source, err := r.device.Acquire(ctx)

	r.mu.Lock()
	r.acquiring = false
	stopPending := r.stopPending
	r.stopPending = false
	if err != nil {
		capErr := Classify(err)
		r.lastErr = capErr
		r.mu.Unlock()
		log.Printf("[capture] start failed kind=%s: %v", capErr.Kind, err)
		r.changes.Notify()
		return capErr
	}
	if r.closed {
		r.mu.Unlock()
		if err := source.Close(); err != nil {
			log.Printf("[capture] release source after close: %v", err)
		}
		return ErrClosed
	}
	if stopPending {
		r.mu.Unlock()
		if err := source.Close(); err != nil {
			log.Printf("[capture] release source after early stop: %v", err)
		}
		log.Printf("[capture] stopped before acquisition completed")
		r.changes.Notify()
		return nil
	}
	r.session = startSession(source, r.opts.SampleInterval, r.opts.Now(), r.setLevel)
	r.state = StateRecording
	r.mu.Unlock()

	log.Printf("[capture] recording started")
	r.changes.Notify()
	return nil
}

// Stop ends the recording and emits the clip. Stop while Idle is a no-op.
// A Stop during acquisition cancels the pending Start without emitting a clip.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.acquiring {
		r.stopPending = true
		r.mu.Unlock()
		return
	}
	if r.state != StateRecording || r.session == nil {
		r.mu.Unlock()
		return
	}
	s := r.session
	r.session = nil
	r.state = StateIdle
	onClip := r.onClip
	r.mu.Unlock()

	clip := s.finish(r.opts.Now(), r.opts.MimeType)
	r.setLevel(0)
	r.changes.Notify()

	log.Printf("[capture] recording stopped bytes=%d duration=%s", len(clip.Data), clip.Duration)
	if onClip != nil {
		go onClip(clip)
	}
}

// Close disposes of the recorder, releasing any live session without
// emitting a clip.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	s := r.session
	r.session = nil
	r.state = StateIdle
	r.mu.Unlock()

	if s != nil {
		s.abort()
		log.Printf("[capture] recording discarded on close")
	}
	r.setLevel(0)
	r.changes.Notify()
}

// Dismiss clears the last start failure.
func (r *Recorder) Dismiss() {
	r.mu.Lock()
	changed := r.lastErr != nil
	r.lastErr = nil
	r.mu.Unlock()
	if changed {
		r.changes.Notify()
	}
}

// State returns the current recorder state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the last start failure, if any.
func (r *Recorder) Err() *CaptureError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Level returns the latest sampled amplitude in [0, 1].
func (r *Recorder) Level() float64 {
	return math.Float64frombits(r.level.Load())
}

// Status returns a snapshot for presentation.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := Status{State: r.state, Level: r.Level()}
	if r.lastErr != nil {
		status.Error = &ErrorInfo{Kind: r.lastErr.Kind, Message: r.lastErr.Message()}
	}
	return status
}

// Subscribe notifies on state and error changes (not on level updates).
func (r *Recorder) Subscribe() (<-chan struct{}, func()) {
	return r.changes.Subscribe()
}

func (r *Recorder) setLevel(v float64) {
	r.level.Store(math.Float64bits(v))
}
