package chat

// TurnRequest is the body posted to the assistant endpoint.
type TurnRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// TurnResponse is the body returned by the assistant endpoint.
type TurnResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id,omitempty"`
}

// TurnReply is what a successful turn yields to the controller.
type TurnReply struct {
	Text         string
	SessionToken string
}
