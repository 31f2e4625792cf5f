package chat

// Input is the pending text the user is about to send.
type Input struct {
	Text string `json:"text"`
	// FromTranscript is set while the buffer still holds an unedited transcript.
	FromTranscript bool `json:"fromTranscript"`
}

// Snapshot is a read-only projection of the controller state.
type Snapshot struct {
	Messages   []Message       `json:"messages"`
	Processing ProcessingState `json:"processing"`
	HasSession bool            `json:"hasSession"`
	Input      Input           `json:"input"`
}
