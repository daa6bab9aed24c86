package stream

import (
	"strings"

	"github.com/opendocs/chatstream/internal/message"
	"github.com/tidwall/gjson"
)

// EventKind tags the closed set of events a wire line can decode into.
type EventKind string

const (
	EventContentDelta          EventKind = "content_delta"
	EventFunctionCallStarted   EventKind = "function_call_started"
	EventFunctionCallArgsDelta EventKind = "function_call_args_delta"
	EventToolItemAdded         EventKind = "tool_item_added"
	EventToolItemDone          EventKind = "tool_item_done"
	EventTextDelta             EventKind = "text_delta"
	EventFinishReason          EventKind = "finish_reason"
	EventCompleted             EventKind = "completed"
	EventResponseID            EventKind = "response_id"
	EventUnrecognized          EventKind = "unrecognized"
)

// ToolItem carries the item payload of an output_item lifecycle event.
type ToolItem struct {
	ID      string
	Type    string
	Name    string
	Status  string
	Inputs  any
	Results any
}

// Event is one decoded wire event. Which fields are set depends on Kind.
// Events are constructed per line and consumed immediately by the
// accumulator; they are never retained.
type Event struct {
	Kind  EventKind
	Text  string        // ContentDelta, TextDelta
	Name  string        // FunctionCallStarted
	Args  string        // FunctionCallStarted (initial fragment), FunctionCallArgsDelta
	ID    string        // ResponseID
	Item  ToolItem      // ToolItemAdded, ToolItemDone
	Usage *message.Usage // Completed
	Raw   string        // Completed: the full line, kept for heuristic inference
}

// DecodeLine classifies one complete line into wire events. It is a pure
// function over the line: it never consults or mutates session state. A line
// that fails to parse yields a single Unrecognized event; one malformed line
// must never fail the whole stream. A single line can, in principle, carry
// both a response id and content, so more than one event may be returned.
func DecodeLine(line string) []Event {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}
	root := gjson.Parse(trimmed)
	if root.Type != gjson.JSON || !gjson.Valid(trimmed) || root.IsArray() {
		return []Event{{Kind: EventUnrecognized, Raw: line}}
	}

	var events []Event

	if id := root.Get("id"); id.Type == gjson.String && id.String() != "" {
		events = append(events, Event{Kind: EventResponseID, ID: id.String()})
	}

	delta := root.Get("delta")
	typ := root.Get("type").String()

	switch {
	case delta.IsObject():
		// Delta-style chat completion chunk.
		events = append(events, decodeChunkDelta(delta)...)

	case typ == "response.output_item.added":
		if item, ok := decodeToolItem(root.Get("item")); ok {
			events = append(events, Event{Kind: EventToolItemAdded, Item: item})
		}

	case typ == "response.output_item.done":
		if item, ok := decodeToolItem(root.Get("item")); ok {
			events = append(events, Event{Kind: EventToolItemDone, Item: item})
		}

	case typ == "response.output_text.delta":
		events = append(events, Event{Kind: EventTextDelta, Text: delta.String()})

	case typ == "response.completed":
		events = append(events, Event{
			Kind:  EventCompleted,
			Usage: decodeUsage(root.Get("response.usage")),
			Raw:   trimmed,
		})

	// Legacy flat shapes.
	case root.Get("output_text").Type == gjson.String:
		events = append(events, Event{Kind: EventContentDelta, Text: root.Get("output_text").String()})

	case delta.Type == gjson.String:
		events = append(events, Event{Kind: EventContentDelta, Text: delta.String()})
	}

	if len(events) == 0 {
		return []Event{{Kind: EventUnrecognized, Raw: line}}
	}
	return events
}

// decodeChunkDelta inspects a nested delta object in marker priority order:
// function-call name, function-call arguments, tool_calls array, plain
// content, then finish reason.
func decodeChunkDelta(delta gjson.Result) []Event {
	var events []Event

	if fc := delta.Get("function_call"); fc.IsObject() {
		events = append(events, decodeFunctionCall(fc)...)
	}

	if calls := delta.Get("tool_calls"); calls.IsArray() {
		calls.ForEach(func(_, call gjson.Result) bool {
			fn := call.Get("function")
			if !fn.Exists() {
				fn = call
			}
			events = append(events, decodeFunctionCall(fn)...)
			return true
		})
	}

	if content := delta.Get("content"); content.Type == gjson.String && content.String() != "" {
		events = append(events, Event{Kind: EventContentDelta, Text: content.String()})
	} else if text := delta.Get("text"); text.Type == gjson.String && text.String() != "" {
		events = append(events, Event{Kind: EventContentDelta, Text: text.String()})
	}

	if fr := delta.Get("finish_reason"); fr.Type == gjson.String && fr.String() != "" {
		events = append(events, Event{Kind: EventFinishReason})
	}

	return events
}

func decodeFunctionCall(fc gjson.Result) []Event {
	name := fc.Get("name").String()
	args := fc.Get("arguments").String()
	if name != "" {
		return []Event{{Kind: EventFunctionCallStarted, Name: name, Args: args}}
	}
	if args != "" {
		return []Event{{Kind: EventFunctionCallArgsDelta, Args: args}}
	}
	return nil
}

// decodeToolItem accepts function_call items and any "*_call" typed item.
func decodeToolItem(item gjson.Result) (ToolItem, bool) {
	if !item.IsObject() {
		return ToolItem{}, false
	}
	itemType := item.Get("type").String()
	if itemType != "function_call" && !strings.HasSuffix(itemType, "_call") {
		return ToolItem{}, false
	}

	name := item.Get("name").String()
	if name == "" {
		name = item.Get("tool_name").String()
	}

	out := ToolItem{
		ID:     item.Get("id").String(),
		Type:   itemType,
		Name:   name,
		Status: item.Get("status").String(),
	}
	if inputs := item.Get("inputs"); inputs.Exists() {
		out.Inputs = inputs.Value()
	}
	if results := item.Get("results"); results.Exists() {
		out.Results = results.Value()
	}
	return out, true
}

func decodeUsage(usage gjson.Result) *message.Usage {
	if !usage.IsObject() {
		return nil
	}
	return &message.Usage{
		PromptTokens:     usage.Get("prompt_tokens").Int(),
		CompletionTokens: usage.Get("completion_tokens").Int(),
		TotalTokens:      usage.Get("total_tokens").Int(),
	}
}
