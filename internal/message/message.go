package message

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opendocs/chatstream/internal/pubsub"
)

const (
	EventMessageCreated pubsub.EventType = "message_created"
	EventMessageUpdated pubsub.EventType = "message_updated"
)

// Message is one conversation turn. While a stream is live the assistant
// message grows part by part; once a Finish part is present it is immutable.
type Message struct {
	ID         string
	Role       MessageRole
	Parts      []ContentPart
	ResponseID string
	Usage      *Usage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// New mints a message with a fresh id.
func New(role MessageRole, parts ...ContentPart) Message {
	now := time.Now()
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Parts:     parts,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Content returns the concatenation of all text parts.
func (m *Message) Content() TextContent {
	var sb strings.Builder
	for _, part := range m.Parts {
		if text, ok := part.(TextContent); ok {
			sb.WriteString(text.Text)
		}
	}
	return TextContent{Text: sb.String()}
}

// ToolCalls returns the tool call parts in order.
func (m *Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, part := range m.Parts {
		if call, ok := part.(ToolCall); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

func (m *Message) ToolResults() []ToolResult {
	var results []ToolResult
	for _, part := range m.Parts {
		if result, ok := part.(ToolResult); ok {
			results = append(results, result)
		}
	}
	return results
}

// FinishPart returns the Finish part if the message carries one.
func (m *Message) FinishPart() *Finish {
	for _, part := range m.Parts {
		if finish, ok := part.(Finish); ok {
			return &finish
		}
	}
	return nil
}

func (m *Message) FinishReason() FinishReason {
	finish := m.FinishPart()
	if finish == nil {
		return ""
	}
	return finish.Reason
}

// IsStreaming reports whether the message is still being produced.
func (m *Message) IsStreaming() bool {
	return m.FinishPart() == nil
}

// AppendContent appends text to the last text part, creating one if needed.
func (m *Message) AppendContent(text string) {
	for i := len(m.Parts) - 1; i >= 0; i-- {
		if existing, ok := m.Parts[i].(TextContent); ok {
			m.Parts[i] = TextContent{Text: existing.Text + text}
			m.UpdatedAt = time.Now()
			return
		}
	}
	m.Parts = append(m.Parts, TextContent{Text: text})
	m.UpdatedAt = time.Now()
}

// AddToolCall appends a tool call part.
func (m *Message) AddToolCall(call ToolCall) {
	m.Parts = append(m.Parts, call)
	m.UpdatedAt = time.Now()
}

// SetToolCalls replaces all tool call parts, preserving the position of the
// first one relative to the text.
func (m *Message) SetToolCalls(calls []ToolCall) {
	var kept []ContentPart
	for _, part := range m.Parts {
		if _, ok := part.(ToolCall); !ok {
			kept = append(kept, part)
		}
	}
	m.Parts = kept
	for _, call := range calls {
		m.Parts = append(m.Parts, call)
	}
	m.UpdatedAt = time.Now()
}

// AddFinish marks the message finished. Only the first call has any effect.
func (m *Message) AddFinish(reason FinishReason) {
	if m.FinishPart() != nil {
		return
	}
	m.Parts = append(m.Parts, Finish{Reason: reason, Time: time.Now()})
	m.UpdatedAt = time.Now()
}

type partType string

const (
	textType       partType = "text"
	toolCallType   partType = "tool_call"
	toolResultType partType = "tool_result"
	finishType     partType = "finish"
)

type partWrapper struct {
	Type partType        `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalParts serializes parts with a type tag so they round-trip through
// JSON without losing their concrete type.
func MarshalParts(parts []ContentPart) ([]byte, error) {
	wrappedParts := make([]json.RawMessage, len(parts))
	for i, part := range parts {
		var typ partType
		var dataBytes []byte
		var err error

		switch p := part.(type) {
		case TextContent:
			typ = textType
			dataBytes, err = json.Marshal(p)
		case ToolCall:
			typ = toolCallType
			dataBytes, err = json.Marshal(p)
		case ToolResult:
			typ = toolResultType
			dataBytes, err = json.Marshal(p)
		case Finish:
			typ = finishType
			dataBytes, err = json.Marshal(p)
		default:
			return nil, fmt.Errorf("unknown part type for marshalling: %T", part)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to marshal part data for type %s: %w", typ, err)
		}
		wrappedBytes, err := json.Marshal(partWrapper{Type: typ, Data: dataBytes})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal part wrapper for type %s: %w", typ, err)
		}
		wrappedParts[i] = wrappedBytes
	}
	return json.Marshal(wrappedParts)
}

// UnmarshalParts is the inverse of MarshalParts.
func UnmarshalParts(data []byte) ([]ContentPart, error) {
	var rawMessages []json.RawMessage
	if err := json.Unmarshal(data, &rawMessages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parts data as array: %w", err)
	}

	parts := make([]ContentPart, 0, len(rawMessages))
	for _, rawPart := range rawMessages {
		var wrapper partWrapper
		if err := json.Unmarshal(rawPart, &wrapper); err != nil {
			return nil, fmt.Errorf("failed to unmarshal part wrapper: %w", err)
		}

		switch wrapper.Type {
		case textType:
			var p TextContent
			if err := json.Unmarshal(wrapper.Data, &p); err != nil {
				return nil, fmt.Errorf("unmarshal TextContent: %w", err)
			}
			parts = append(parts, p)
		case toolCallType:
			var p ToolCall
			if err := json.Unmarshal(wrapper.Data, &p); err != nil {
				return nil, fmt.Errorf("unmarshal ToolCall: %w", err)
			}
			parts = append(parts, p)
		case toolResultType:
			var p ToolResult
			if err := json.Unmarshal(wrapper.Data, &p); err != nil {
				return nil, fmt.Errorf("unmarshal ToolResult: %w", err)
			}
			parts = append(parts, p)
		case finishType:
			var p Finish
			if err := json.Unmarshal(wrapper.Data, &p); err != nil {
				return nil, fmt.Errorf("unmarshal Finish: %w", err)
			}
			parts = append(parts, p)
		default:
			slog.Warn("Unknown part type during unmarshalling, skipping", "type", wrapper.Type)
		}
	}
	return parts, nil
}
