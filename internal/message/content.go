package message

import "time"

type MessageRole string

const (
	Assistant MessageRole = "assistant"
	User      MessageRole = "user"
	System    MessageRole = "system"
	Tool      MessageRole = "tool"
)

type FinishReason string

const (
	FinishReasonEndTurn  FinishReason = "end_turn"
	FinishReasonToolUse  FinishReason = "tool_use"
	FinishReasonCanceled FinishReason = "canceled"
	FinishReasonError    FinishReason = "error"
	FinishReasonUnknown  FinishReason = "unknown"
)

type ToolCallStatus string

const (
	ToolCallStatusPending   ToolCallStatus = "pending"
	ToolCallStatusCompleted ToolCallStatus = "completed"
	ToolCallStatusError     ToolCallStatus = "error"
)

// ContentPart is one piece of a message. Parts are ordered and append-only.
type ContentPart interface {
	isPart()
}

type TextContent struct {
	Text string `json:"text"`
}

func (TextContent) isPart() {}

func (t TextContent) String() string {
	return t.Text
}

// ToolCall is one function/tool invocation observed in a stream.
//
// ID is the upstream identifier when one was provided; records without an ID
// are correlated positionally by the accumulator. Input is the raw,
// append-only accumulation of argument fragments; Arguments is set once Input
// parses as complete JSON. Status never leaves completed or error once set.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Type      string         `json:"type,omitempty"`
	Name      string         `json:"name"`
	Input     string         `json:"input"`
	Arguments any            `json:"arguments,omitempty"`
	Status    ToolCallStatus `json:"status"`
	Result    any            `json:"result,omitempty"`
}

func (ToolCall) isPart() {}

// Terminal reports whether the call has reached completed or error.
func (t ToolCall) Terminal() bool {
	return t.Status == ToolCallStatusCompleted || t.Status == ToolCallStatusError
}

type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

func (ToolResult) isPart() {}

type Finish struct {
	Reason  FinishReason `json:"reason"`
	Time    time.Time    `json:"time"`
	Message string       `json:"message,omitempty"`
}

func (Finish) isPart() {}

// Usage is the token summary reported by the upstream terminal event.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens,omitempty"`
	CompletionTokens int64 `json:"completion_tokens,omitempty"`
	TotalTokens      int64 `json:"total_tokens,omitempty"`
}
