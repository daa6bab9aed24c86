package stream

import (
	"regexp"
	"strings"

	"github.com/opendocs/chatstream/internal/message"
	"github.com/tidwall/gjson"
)

// Some upstream models report retrieval usage only in prose, never through
// structured tool-call events. After a stream finishes with zero decoded tool
// calls, InferRetrievalCall reconstructs a best-effort "Retrieval" record
// from indirect evidence. It is explicitly lossy: it can miss retrievals and,
// rarely, invent one from citation-like prose.

const inferredToolName = "Retrieval"

// Trigger kinds recorded in the synthesized call's arguments.
const (
	detectedFromResponseFields  = "response_fields"
	detectedFromContentPatterns = "content_patterns"
)

// Payload fields that imply retrieval happened, probed at the top level and
// one level under "data".
var retrievalFields = []string{"results", "outputs", "retrieved_documents"}

var (
	citationPattern = regexp.MustCompile(`(?i)(\[?source:|filename:|document:)`)
	prosePattern    = regexp.MustCompile(`(?i)(based on|according to) the (document|file|text|data)`)
)

// InferRetrievalCall examines the raw completion payload and the final text.
// Either trigger alone is sufficient. Returns nil when neither fires.
func InferRetrievalCall(rawPayload, finalText string) *message.ToolCall {
	if payload, ok := findRetrievalPayload(rawPayload); ok {
		return &message.ToolCall{
			Name:   inferredToolName,
			Status: message.ToolCallStatusCompleted,
			Arguments: map[string]any{
				"implicit":      true,
				"detected_from": detectedFromResponseFields,
			},
			Result: payload,
		}
	}

	if citationPattern.MatchString(finalText) || prosePattern.MatchString(finalText) {
		return &message.ToolCall{
			Name:   inferredToolName,
			Status: message.ToolCallStatusCompleted,
			Arguments: map[string]any{
				"implicit":      true,
				"detected_from": detectedFromContentPatterns,
			},
		}
	}

	return nil
}

func findRetrievalPayload(rawPayload string) (any, bool) {
	trimmed := strings.TrimSpace(rawPayload)
	if trimmed == "" || !gjson.Valid(trimmed) {
		return nil, false
	}
	root := gjson.Parse(trimmed)

	for _, field := range retrievalFields {
		if v := root.Get(field); v.Exists() {
			return v.Value(), true
		}
		if v := root.Get("data." + field); v.Exists() {
			return v.Value(), true
		}
	}
	return nil, false
}
