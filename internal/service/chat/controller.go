package chat

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/vera/client/internal/model/chat"
	speechmodel "github.com/zhouzirui/vera/client/internal/model/speech"
	"github.com/zhouzirui/vera/client/pkg/utils"
)

// FailedReplyText is shown in place of an assistant reply when a turn fails.
const FailedReplyText = "Failed to get response. Please try again."

// ConversationClient sends one turn to the assistant.
type ConversationClient interface {
	SendTurn(ctx context.Context, text, sessionToken string) (chat.TurnReply, error)
}

// Transcriber turns a finished clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, clip speechmodel.Clip) (string, error)
}

// Controller owns the message history, the session token, the in-flight
// marker and the pending input. All mutation goes through its methods.
type Controller struct {
	conversation ConversationClient
	transcriber  Transcriber
	newID        func() string
	now          func() time.Time

	mu         sync.RWMutex
	messages   []chat.Message
	session    *chat.Session
	processing chat.ProcessingState
	input      chat.Input

	changes utils.Broadcaster
}

// Option customises a Controller.
type Option func(*Controller)

// WithIDGenerator overrides message id generation.
func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) { c.newID = fn }
}

// WithClock overrides the timestamp source.
func WithClock(fn func() time.Time) Option {
	return func(c *Controller) { c.now = fn }
}

// NewController wires the controller to its network clients. transcriber
// may be nil when voice input is not available.
func NewController(conversation ConversationClient, transcriber Transcriber, opts ...Option) *Controller {
	c := &Controller{
		conversation: conversation,
		transcriber:  transcriber,
		newID:        uuid.NewString,
		now:          func() time.Time { return time.Now().UTC() },
		messages:     make([]chat.Message, 0, 16),
		processing:   chat.Idle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitText sends typed content. It reports whether the submission was
// accepted; empty input and submissions while a turn is in flight are
// ignored. The call blocks until the turn completes.
func (c *Controller) SubmitText(ctx context.Context, content string) bool {
	return c.submit(ctx, content, false)
}

// SubmitVoice behaves like SubmitText for content that came from speech.
func (c *Controller) SubmitVoice(ctx context.Context, content string) bool {
	return c.submit(ctx, content, true)
}

// Retry resubmits a user message as a fresh turn. Unknown ids and
// assistant messages are ignored. The original entry is left untouched.
func (c *Controller) Retry(ctx context.Context, messageID string) bool {
	run, ok := c.BeginRetry(messageID)
	if !ok {
		return false
	}
	run(ctx)
	return true
}

// Begin reserves a turn without sending it: content is validated, the
// in-flight marker is taken and the user message is appended before Begin
// returns. The returned func performs the network call and must be called
// exactly once; it may run on another goroutine.
func (c *Controller) Begin(content string, isVoice bool) (func(context.Context), bool) {
	c.mu.Lock()
	run, ok := c.reserveLocked(content, isVoice)
	c.mu.Unlock()
	if ok {
		c.changes.Notify()
	}
	return run, ok
}

// BeginRetry is Begin for an existing user message.
func (c *Controller) BeginRetry(messageID string) (func(context.Context), bool) {
	c.mu.Lock()
	var target *chat.Message
	for i := range c.messages {
		if c.messages[i].ID == messageID {
			msg := c.messages[i]
			target = &msg
			break
		}
	}
	if target == nil || target.Role != chat.RoleUser {
		c.mu.Unlock()
		return nil, false
	}
	run, ok := c.reserveLocked(target.Content, target.IsVoice)
	c.mu.Unlock()

	if ok {
		log.Printf("[chat] retrying message=%s voice=%t", messageID, target.IsVoice)
		c.changes.Notify()
	}
	return run, ok
}

func (c *Controller) submit(ctx context.Context, content string, isVoice bool) bool {
	run, ok := c.Begin(content, isVoice)
	if !ok {
		return false
	}
	run(ctx)
	return true
}

// reserveLocked must be called with c.mu held.
func (c *Controller) reserveLocked(content string, isVoice bool) (func(context.Context), bool) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, false
	}
	if c.processing.Busy() {
		log.Printf("[chat] submission ignored, turn already in flight")
		return nil, false
	}

	c.processing = chat.ProcessingFor(isVoice)
	c.messages = append(c.messages, chat.Message{
		ID:        c.newID(),
		Role:      chat.RoleUser,
		Content:   content,
		CreatedAt: c.now(),
		IsVoice:   isVoice,
	})
	token := ""
	if c.session != nil {
		token = c.session.Token
	}

	var once sync.Once
	return func(ctx context.Context) {
		once.Do(func() { c.runTurn(ctx, content, token, isVoice) })
	}, true
}

func (c *Controller) runTurn(ctx context.Context, content, token string, isVoice bool) {
	defer c.finishTurn()

	reply, err := c.conversation.SendTurn(ctx, content, token)
	if err != nil {
		log.Printf("[chat] turn failed voice=%t: %v", isVoice, err)
		c.appendAssistant(chat.Message{Content: FailedReplyText, Failed: true})
		return
	}

	c.adoptSession(reply.SessionToken)
	c.appendAssistant(chat.Message{Content: reply.Text})
}

// finishTurn clears the in-flight marker; deferred so it also runs on panic.
func (c *Controller) finishTurn() {
	c.mu.Lock()
	c.processing = chat.Idle
	c.mu.Unlock()
	c.changes.Notify()
}

func (c *Controller) appendAssistant(msg chat.Message) {
	msg.ID = c.newID()
	msg.Role = chat.RoleAssistant
	msg.CreatedAt = c.now()

	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
}

// adoptSession keeps the first token ever received.
func (c *Controller) adoptSession(token string) {
	if token == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		if c.session.Token != token {
			log.Printf("[chat] ignoring session token from reply, session already established")
		}
		return
	}
	c.session = &chat.Session{Token: token, CreatedAt: c.now()}
	log.Printf("[chat] session established")
}

// Messages returns a copy of the thread in display order.
func (c *Controller) Messages() []chat.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	copied := make([]chat.Message, len(c.messages))
	copy(copied, c.messages)
	return copied
}

// Processing returns the in-flight marker.
func (c *Controller) Processing() chat.ProcessingState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.processing
}

// SessionToken returns the held token, or "" before the first reply.
func (c *Controller) SessionToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.Token
}

// Snapshot returns a consistent view for presentation.
func (c *Controller) Snapshot() chat.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	messages := make([]chat.Message, len(c.messages))
	copy(messages, c.messages)
	return chat.Snapshot{
		Messages:   messages,
		Processing: c.processing,
		HasSession: c.session != nil,
		Input:      c.input,
	}
}

// Subscribe notifies on every state change.
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	return c.changes.Subscribe()
}
