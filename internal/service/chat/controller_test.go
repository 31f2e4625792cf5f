package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/vera/client/internal/model/chat"
	speechmodel "github.com/zhouzirui/vera/client/internal/model/speech"
)

type turnCall struct {
	text  string
	token string
}

type turnResult struct {
	reply chat.TurnReply
	err   error
}

type fakeConversation struct {
	mu      sync.Mutex
	calls   []turnCall
	results []turnResult
	gate    chan struct{}
	started chan struct{}
	panics  bool
}

func (f *fakeConversation) SendTurn(_ context.Context, text, token string) (chat.TurnReply, error) {
	f.mu.Lock()
	f.calls = append(f.calls, turnCall{text: text, token: token})
	var res turnResult
	if len(f.results) > 0 {
		res = f.results[0]
		f.results = f.results[1:]
	}
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.panics {
		panic("boom")
	}
	return res.reply, res.err
}

func (f *fakeConversation) callList() []turnCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]turnCall(nil), f.calls...)
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(context.Context, speechmodel.Clip) (string, error) {
	return f.text, f.err
}

func counterIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("m%d", n)
	}
}

func ok(text, token string) turnResult {
	return turnResult{reply: chat.TurnReply{Text: text, SessionToken: token}}
}

func TestSubmitTextAppendsUserBeforeReply(t *testing.T) {
	conv := &fakeConversation{
		results: []turnResult{ok("Hi!", "abc")},
		gate:    make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	ctrl := NewController(conv, nil)

	done := make(chan bool)
	go func() { done <- ctrl.SubmitText(context.Background(), "  Hello  ") }()

	<-conv.started
	msgs := ctrl.Messages()
	if len(msgs) != 1 || msgs[0].Role != chat.RoleUser || msgs[0].Content != "Hello" {
		t.Fatalf("expected optimistic user message, got %+v", msgs)
	}
	if ctrl.Processing() != chat.AwaitingTextReply {
		t.Fatalf("expected awaiting text reply, got %s", ctrl.Processing())
	}

	close(conv.gate)
	if !<-done {
		t.Fatal("expected submission accepted")
	}

	msgs = ctrl.Messages()
	if len(msgs) != 2 || msgs[1].Role != chat.RoleAssistant || msgs[1].Content != "Hi!" || msgs[1].Failed {
		t.Fatalf("unexpected thread: %+v", msgs)
	}
	if ctrl.Processing() != chat.Idle {
		t.Fatalf("expected idle, got %s", ctrl.Processing())
	}
}

func TestSubmitTextIgnoresBlankInput(t *testing.T) {
	conv := &fakeConversation{}
	ctrl := NewController(conv, nil)

	for _, in := range []string{"", "   ", "\n\t "} {
		if ctrl.SubmitText(context.Background(), in) {
			t.Fatalf("blank input %q must be ignored", in)
		}
	}

	if len(ctrl.Messages()) != 0 || len(conv.callList()) != 0 {
		t.Fatal("blank input must not change state or call the endpoint")
	}
	if ctrl.Processing() != chat.Idle {
		t.Fatalf("expected idle, got %s", ctrl.Processing())
	}
}

func TestSubmitWhileInFlightIsIgnored(t *testing.T) {
	conv := &fakeConversation{
		results: []turnResult{ok("first", "")},
		gate:    make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	ctrl := NewController(conv, nil)

	done := make(chan bool)
	go func() { done <- ctrl.SubmitText(context.Background(), "one") }()
	<-conv.started

	if ctrl.SubmitText(context.Background(), "two") {
		t.Fatal("second text submission must be rejected")
	}
	if ctrl.SubmitVoice(context.Background(), "three") {
		t.Fatal("voice submission must be rejected while in flight")
	}
	if got := len(ctrl.Messages()); got != 1 {
		t.Fatalf("expected one message while in flight, got %d", got)
	}

	close(conv.gate)
	<-done

	if got := len(conv.callList()); got != 1 {
		t.Fatalf("expected one request, got %d", got)
	}
}

func TestSubmitFailureAppendsFailedAssistant(t *testing.T) {
	conv := &fakeConversation{results: []turnResult{{err: errors.New("HTTP 500")}}}
	ctrl := NewController(conv, nil)

	ctrl.SubmitText(context.Background(), "Hello")

	msgs := ctrl.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected two messages, got %d", len(msgs))
	}
	user, reply := msgs[0], msgs[1]
	if user.Content != "Hello" || user.Failed || user.Role != chat.RoleUser {
		t.Fatalf("user message must be unmodified: %+v", user)
	}
	if !reply.Failed || reply.Role != chat.RoleAssistant || reply.Content != FailedReplyText {
		t.Fatalf("unexpected failed reply: %+v", reply)
	}
	if ctrl.Processing() != chat.Idle {
		t.Fatalf("expected idle after failure, got %s", ctrl.Processing())
	}
	if ctrl.SessionToken() != "" {
		t.Fatalf("failure must not establish a session, got %q", ctrl.SessionToken())
	}
}

func TestFirstSessionWins(t *testing.T) {
	conv := &fakeConversation{results: []turnResult{
		ok("a", ""),
		ok("b", "abc"),
		ok("c", "xyz"),
		ok("d", "other"),
	}}
	ctrl := NewController(conv, nil)

	for _, text := range []string{"one", "two", "three", "four"} {
		ctrl.SubmitText(context.Background(), text)
	}

	calls := conv.callList()
	wantTokens := []string{"", "", "abc", "abc"}
	for i, want := range wantTokens {
		if calls[i].token != want {
			t.Fatalf("call %d: expected token %q, got %q", i, want, calls[i].token)
		}
	}
	if ctrl.SessionToken() != "abc" {
		t.Fatalf("expected session abc, got %q", ctrl.SessionToken())
	}
}

func TestRetryIgnoresUnknownAndAssistantIDs(t *testing.T) {
	conv := &fakeConversation{results: []turnResult{ok("Hi!", "")}}
	ctrl := NewController(conv, nil, WithIDGenerator(counterIDs()))
	ctrl.SubmitText(context.Background(), "Hello")

	if ctrl.Retry(context.Background(), "missing") {
		t.Fatal("retry of unknown id must be a no-op")
	}
	assistantID := ctrl.Messages()[1].ID
	if ctrl.Retry(context.Background(), assistantID) {
		t.Fatal("retry of assistant message must be a no-op")
	}
	if got := len(ctrl.Messages()); got != 2 {
		t.Fatalf("expected message count unchanged, got %d", got)
	}
	if got := len(conv.callList()); got != 1 {
		t.Fatalf("expected no extra requests, got %d", got)
	}
}

func TestRetryAppendsNewUserMessage(t *testing.T) {
	conv := &fakeConversation{results: []turnResult{
		{err: errors.New("down")},
		ok("back", "s1"),
	}}
	ctrl := NewController(conv, nil, WithIDGenerator(counterIDs()))
	ctrl.SubmitVoice(context.Background(), "buy milk")

	original := ctrl.Messages()[0]
	if !ctrl.Retry(context.Background(), original.ID) {
		t.Fatal("expected retry accepted")
	}

	msgs := ctrl.Messages()
	if len(msgs) != 4 {
		t.Fatalf("expected four messages, got %d", len(msgs))
	}
	if msgs[0] != original {
		t.Fatalf("original entry must be unchanged: %+v vs %+v", msgs[0], original)
	}
	resent := msgs[2]
	if resent.ID == original.ID || resent.Content != original.Content || resent.IsVoice != original.IsVoice {
		t.Fatalf("unexpected resent message: %+v", resent)
	}
	if msgs[3].Content != "back" || msgs[3].Failed {
		t.Fatalf("unexpected reply: %+v", msgs[3])
	}
	if !msgs[1].Failed {
		t.Fatal("earlier failed reply must remain flagged")
	}
}

func TestSubmitVoiceMarksMessageAndIndicator(t *testing.T) {
	conv := &fakeConversation{
		results: []turnResult{ok("noted", "")},
		gate:    make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	ctrl := NewController(conv, nil)

	done := make(chan bool)
	go func() { done <- ctrl.SubmitVoice(context.Background(), "buy milk") }()
	<-conv.started

	if ctrl.Processing() != chat.AwaitingVoiceReply {
		t.Fatalf("expected awaiting voice reply, got %s", ctrl.Processing())
	}
	if !ctrl.Messages()[0].IsVoice {
		t.Fatal("expected voice flag on user message")
	}

	close(conv.gate)
	<-done
}

func TestPanicInTurnStillClearsProcessing(t *testing.T) {
	conv := &fakeConversation{panics: true}
	ctrl := NewController(conv, nil)

	func() {
		defer func() { _ = recover() }()
		ctrl.SubmitText(context.Background(), "Hello")
	}()

	if ctrl.Processing() != chat.Idle {
		t.Fatalf("expected idle after panic, got %s", ctrl.Processing())
	}
}

func TestMessageIDsAreUnique(t *testing.T) {
	conv := &fakeConversation{}
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ctrl := NewController(conv, nil, WithClock(func() time.Time { return frozen }))

	for i := 0; i < 5; i++ {
		ctrl.SubmitText(context.Background(), "ping")
	}

	seen := make(map[string]bool)
	for _, msg := range ctrl.Messages() {
		if seen[msg.ID] {
			t.Fatalf("duplicate id %s", msg.ID)
		}
		seen[msg.ID] = true
	}
	if len(seen) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(seen))
	}
}

func TestTranscriptPopulatesInputWithoutSubmitting(t *testing.T) {
	conv := &fakeConversation{results: []turnResult{ok("sure", "")}}
	ctrl := NewController(conv, nil)

	ctrl.OnTranscriptReady("buy milk")

	if len(ctrl.Messages()) != 0 || len(conv.callList()) != 0 {
		t.Fatal("transcript must not submit")
	}
	if in := ctrl.Input(); in.Text != "buy milk" || !in.FromTranscript {
		t.Fatalf("unexpected input: %+v", in)
	}

	if !ctrl.SendInput(context.Background()) {
		t.Fatal("expected send accepted")
	}
	msgs := ctrl.Messages()
	if !msgs[0].IsVoice || msgs[0].Content != "buy milk" {
		t.Fatalf("unexpected user message: %+v", msgs[0])
	}
	if ctrl.Input() != (chat.Input{}) {
		t.Fatalf("expected cleared input, got %+v", ctrl.Input())
	}
}

func TestEditedTranscriptSendsAsText(t *testing.T) {
	conv := &fakeConversation{results: []turnResult{ok("ok", "")}}
	ctrl := NewController(conv, nil)

	ctrl.OnTranscriptReady("by milk")
	ctrl.SetInput("buy milk")
	ctrl.SendInput(context.Background())

	if ctrl.Messages()[0].IsVoice {
		t.Fatal("edited input must go through the text path")
	}
}

func TestSendInputBlankKeepsBuffer(t *testing.T) {
	ctrl := NewController(&fakeConversation{}, nil)
	ctrl.SetInput("   ")

	if ctrl.SendInput(context.Background()) {
		t.Fatal("blank input must not be sent")
	}
	if ctrl.Input().Text != "   " {
		t.Fatalf("expected buffer restored, got %q", ctrl.Input().Text)
	}
}

func TestHandleClip(t *testing.T) {
	clip := speechmodel.Clip{Data: []byte("audio")}

	ctrl := NewController(&fakeConversation{}, fakeTranscriber{text: "buy milk"})
	if err := ctrl.HandleClip(context.Background(), clip); err != nil {
		t.Fatalf("HandleClip err: %v", err)
	}
	if ctrl.Input().Text != "buy milk" {
		t.Fatalf("unexpected input: %+v", ctrl.Input())
	}

	failing := NewController(&fakeConversation{}, fakeTranscriber{err: errors.New("network")})
	failing.SetInput("draft")
	if err := failing.HandleClip(context.Background(), clip); err == nil {
		t.Fatal("expected transcription error")
	}
	if failing.Input().Text != "draft" || len(failing.Messages()) != 0 {
		t.Fatal("failed transcription must leave state untouched")
	}

	noVoice := NewController(&fakeConversation{}, nil)
	if err := noVoice.HandleClip(context.Background(), clip); !errors.Is(err, ErrVoiceUnavailable) {
		t.Fatalf("expected ErrVoiceUnavailable, got %v", err)
	}
}

func TestSubscribeNotifiesOnTurn(t *testing.T) {
	ctrl := NewController(&fakeConversation{results: []turnResult{ok("hi", "")}}, nil)
	changes, cancel := ctrl.Subscribe()
	defer cancel()

	ctrl.SubmitText(context.Background(), "hello")

	select {
	case <-changes:
	default:
		t.Fatal("expected change notification")
	}
}

func TestBeginReservesTurnBeforeSending(t *testing.T) {
	conv := &fakeConversation{results: []turnResult{{reply: chat.TurnReply{Text: "Hi!", SessionToken: "abc"}}}}
	ctrl := NewController(conv, nil, WithIDGenerator(counterIDs()))

	run, ok := ctrl.Begin("first", false)
	if !ok {
		t.Fatal("expected first reservation accepted")
	}
	if ctrl.Processing() != chat.AwaitingTextReply {
		t.Fatalf("expected awaiting text reply, got %s", ctrl.Processing())
	}
	msgs := ctrl.Messages()
	if len(msgs) != 1 || msgs[0].Content != "first" {
		t.Fatalf("expected user message appended on reserve, got %+v", msgs)
	}
	if len(conv.callList()) != 0 {
		t.Fatal("reserve must not call the assistant")
	}

	if _, ok := ctrl.Begin("second", false); ok {
		t.Fatal("expected second reservation refused while in flight")
	}
	if _, ok := ctrl.BeginRetry(msgs[0].ID); ok {
		t.Fatal("expected retry refused while in flight")
	}

	run(context.Background())
	run(context.Background())

	if got := len(conv.callList()); got != 1 {
		t.Fatalf("expected a single network call, got %d", got)
	}
	if ctrl.Processing() != chat.Idle || len(ctrl.Messages()) != 2 {
		t.Fatalf("unexpected state after run: %s %+v", ctrl.Processing(), ctrl.Messages())
	}
}

func TestBeginInputRefusedKeepsBuffer(t *testing.T) {
	conv := &fakeConversation{}
	ctrl := NewController(conv, nil)

	run, ok := ctrl.Begin("busy", false)
	if !ok {
		t.Fatal("expected reservation")
	}
	ctrl.OnTranscriptReady("buy milk")

	if _, ok := ctrl.BeginInput(); ok {
		t.Fatal("expected input refused while in flight")
	}
	if in := ctrl.Input(); in.Text != "buy milk" || !in.FromTranscript {
		t.Fatalf("buffer must survive a refused send: %+v", in)
	}

	run(context.Background())

	run, ok = ctrl.BeginInput()
	if !ok {
		t.Fatal("expected input accepted once idle")
	}
	if ctrl.Input().Text != "" {
		t.Fatal("expected buffer cleared on acceptance")
	}
	if msgs := ctrl.Messages(); !msgs[len(msgs)-1].IsVoice {
		t.Fatal("expected unedited transcript to use the voice path")
	}
	run(context.Background())
}
