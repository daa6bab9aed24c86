package sdk

// EventType tags the events a chat stream can emit.
type EventType string

const (
	EventContent EventType = "content"
	EventSources EventType = "sources"
	EventDone    EventType = "done"
)

// Source is one retrieved document reference attached to a sources event.
type Source struct {
	Document string  `json:"document"`
	Score    float64 `json:"score,omitempty"`
}

// StreamEvent is one decoded event from the data:-framed chat stream. Which
// fields are set depends on Type: content carries Delta, sources carries
// Sources, done carries ChatID.
type StreamEvent struct {
	Type    EventType `json:"type"`
	Delta   string    `json:"delta,omitempty"`
	Sources []Source  `json:"sources,omitempty"`
	ChatID  string    `json:"chat_id,omitempty"`
}

// ChatRequest is the body posted to open a chat stream.
type ChatRequest struct {
	Message string            `json:"message"`
	ChatID  string            `json:"chat_id,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
}

// ChatResult is the fully collected outcome of one streamed chat exchange.
type ChatResult struct {
	Text    string
	Sources []Source
	ChatID  string
}
