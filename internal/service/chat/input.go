package chat

import (
	"context"
	"errors"
	"log"

	"github.com/zhouzirui/vera/client/internal/model/chat"
	speechmodel "github.com/zhouzirui/vera/client/internal/model/speech"
)

// ErrVoiceUnavailable is returned when no transcriber is configured.
var ErrVoiceUnavailable = errors.New("chat: voice input not available")

// OnTranscriptReady places text in the input buffer for review. It never
// submits; the user confirms with SendInput.
func (c *Controller) OnTranscriptReady(text string) {
	c.mu.Lock()
	c.input = chat.Input{Text: text, FromTranscript: true}
	c.mu.Unlock()
	c.changes.Notify()
}

// SetInput records a user edit of the input buffer.
func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	c.input = chat.Input{Text: text}
	c.mu.Unlock()
	c.changes.Notify()
}

// Input returns the pending input buffer.
func (c *Controller) Input() chat.Input {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.input
}

// SendInput submits the input buffer. An unedited transcript goes through
// the voice path. The buffer is cleared once the submission is accepted.
func (c *Controller) SendInput(ctx context.Context) bool {
	run, ok := c.BeginInput()
	if !ok {
		return false
	}
	run(ctx)
	return true
}

// BeginInput is Begin for the input buffer. The buffer is left untouched
// when the submission is refused.
func (c *Controller) BeginInput() (func(context.Context), bool) {
	c.mu.Lock()
	input := c.input
	run, ok := c.reserveLocked(input.Text, input.FromTranscript)
	if ok {
		c.input = chat.Input{}
	}
	c.mu.Unlock()

	if ok {
		c.changes.Notify()
	}
	return run, ok
}

// HandleClip transcribes a finished recording into the input buffer.
// Failures are logged and leave the buffer untouched.
func (c *Controller) HandleClip(ctx context.Context, clip speechmodel.Clip) error {
	if c.transcriber == nil {
		return ErrVoiceUnavailable
	}
	if clip.Empty() {
		log.Printf("[chat] skipping empty recording")
		return nil
	}

	text, err := c.transcriber.Transcribe(ctx, clip)
	if err != nil {
		log.Printf("[chat] transcription failed bytes=%d: %v", len(clip.Data), err)
		return err
	}

	c.OnTranscriptReady(text)
	return nil
}
