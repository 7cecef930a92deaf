package server

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// StartResearchRequest is the payload for launching a research session.
type StartResearchRequest struct {
	Topic string `json:"topic"`
}

// SendMessageRequest carries a human reply for a session that is waiting
// for input.
type SendMessageRequest struct {
	Message string `json:"message"`
}

// AckResponse acknowledges an accepted request.
type AckResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
