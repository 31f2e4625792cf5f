package chat

// ProcessingState is the single in-flight marker of the controller.
type ProcessingState string

const (
	Idle               ProcessingState = "idle"
	AwaitingTextReply  ProcessingState = "awaiting_text_reply"
	AwaitingVoiceReply ProcessingState = "awaiting_voice_reply"
)

// Busy reports whether a turn is outstanding.
func (s ProcessingState) Busy() bool {
	return s == AwaitingTextReply || s == AwaitingVoiceReply
}

// ProcessingFor returns the in-flight variant for a submission.
func ProcessingFor(isVoice bool) ProcessingState {
	if isVoice {
		return AwaitingVoiceReply
	}
	return AwaitingTextReply
}
