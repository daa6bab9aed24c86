package format

import (
	"encoding/json"
	"fmt"
)

// OutputFormat represents the format for non-interactive mode output
type OutputFormat string

const (
	// TextFormat is plain text output (default)
	TextFormat OutputFormat = "text"

	// JSONFormat is output wrapped in a JSON object
	JSONFormat OutputFormat = "json"
)

// IsValid checks if the output format is valid
func (f OutputFormat) IsValid() bool {
	return f == TextFormat || f == JSONFormat
}

// String returns the string representation of the output format
func (f OutputFormat) String() string {
	return string(f)
}

// Result is the shape emitted for JSONFormat.
type Result struct {
	Response   string   `json:"response"`
	ResponseID string   `json:"response_id,omitempty"`
	ToolCalls  []string `json:"tool_calls,omitempty"`
}

// FormatOutput formats the given content according to the specified format
func FormatOutput(content string, format OutputFormat) (string, error) {
	return FormatResult(Result{Response: content}, format)
}

// FormatResult formats a full stream result, including the tool calls the
// assistant made and the upstream response id when one was observed.
func FormatResult(result Result, format OutputFormat) (string, error) {
	switch format {
	case TextFormat:
		return result.Response, nil
	case JSONFormat:
		jsonBytes, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return string(jsonBytes), nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}
