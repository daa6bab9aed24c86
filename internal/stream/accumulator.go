package stream

import (
	"encoding/json"
	"strings"

	"github.com/opendocs/chatstream/internal/message"
)

// State tracks a session through its lifecycle. Terminal states are final.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateCancelled
	StateCompleted
	StateFailed
)

// Session is the accumulation state for one attempt to consume one model
// response. It is exclusively owned by the generation that created it; a
// superseded generation may still hold a reference but must never publish
// from it.
type Session struct {
	Generation int

	state      State
	responseID string
	text       strings.Builder
	toolCalls  []message.ToolCall
	usage      *message.Usage

	// rawCompletion is the raw terminal line, retained for heuristic
	// retrieval inference after the stream ends.
	rawCompletion string
}

func NewSession(generation int) *Session {
	return &Session{Generation: generation, state: StateIdle}
}

func (s *Session) State() State { return s.state }

func (s *Session) ResponseID() string { return s.responseID }

func (s *Session) Text() string { return s.text.String() }

func (s *Session) Usage() *message.Usage { return s.usage }

func (s *Session) RawCompletion() string { return s.rawCompletion }

// ToolCalls returns a copy of the current tool call records in order.
func (s *Session) ToolCalls() []message.ToolCall {
	if len(s.toolCalls) == 0 {
		return nil
	}
	calls := make([]message.ToolCall, len(s.toolCalls))
	copy(calls, s.toolCalls)
	return calls
}

// Apply folds one decoded event into the session and reports whether state
// changed. Events arriving after a terminal state are ignored.
func (s *Session) Apply(ev Event) bool {
	if s.state == StateCancelled || s.state == StateCompleted || s.state == StateFailed {
		return false
	}
	if s.state == StateIdle {
		s.state = StateStreaming
	}

	switch ev.Kind {
	case EventContentDelta, EventTextDelta:
		if ev.Text == "" {
			return false
		}
		s.text.WriteString(ev.Text)
		return true

	case EventFunctionCallStarted:
		call := message.ToolCall{
			Name:   ev.Name,
			Input:  ev.Args,
			Status: message.ToolCallStatusPending,
		}
		if call.Name == "" {
			call.Name = "unknown"
		}
		s.toolCalls = append(s.toolCalls, call)
		if ev.Args != "" {
			s.tryCompleteArguments(len(s.toolCalls) - 1)
		}
		return true

	case EventFunctionCallArgsDelta:
		idx := s.lastAnonymousPending()
		if idx < 0 {
			// Fragment with no open call: open one so the data is not lost.
			s.toolCalls = append(s.toolCalls, message.ToolCall{
				Name:   "unknown",
				Status: message.ToolCallStatusPending,
			})
			idx = len(s.toolCalls) - 1
		}
		s.toolCalls[idx].Input += ev.Args
		s.tryCompleteArguments(idx)
		return true

	case EventToolItemAdded:
		s.applyItemAdded(ev.Item)
		return true

	case EventToolItemDone:
		s.applyItemDone(ev.Item)
		return true

	case EventResponseID:
		if s.responseID == "" {
			s.responseID = ev.ID
			return true
		}
		return false

	case EventFinishReason:
		return s.resolvePending(false)

	case EventCompleted:
		if ev.Usage != nil && s.usage == nil {
			s.usage = ev.Usage
		}
		if ev.Raw != "" {
			s.rawCompletion = ev.Raw
		}
		s.resolvePending(true)
		s.state = StateCompleted
		return true
	}

	return false
}

// Cancel moves the session to its cancelled terminal state.
func (s *Session) Cancel() {
	if s.state == StateCompleted || s.state == StateFailed {
		return
	}
	s.state = StateCancelled
}

// Fail moves the session to its failed terminal state.
func (s *Session) Fail() {
	if s.state == StateCompleted || s.state == StateCancelled {
		return
	}
	s.state = StateFailed
}

// lastAnonymousPending returns the index of the most recently pushed record
// that has no external id and is still pending, or -1.
func (s *Session) lastAnonymousPending() int {
	for i := len(s.toolCalls) - 1; i >= 0; i-- {
		if s.toolCalls[i].ID == "" && !s.toolCalls[i].Terminal() {
			return i
		}
	}
	return -1
}

// tryCompleteArguments parses the accumulated argument string once it looks
// syntactically complete. This is a balanced-completion heuristic, not an
// incremental parser: a trailing closing delimiter prompts a full parse.
func (s *Session) tryCompleteArguments(idx int) {
	call := &s.toolCalls[idx]
	if call.Terminal() {
		return
	}
	args, ok := parseCompleteJSON(call.Input)
	if !ok {
		return
	}
	call.Arguments = args
	call.Status = message.ToolCallStatusCompleted
}

func parseCompleteJSON(raw string) (any, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}
	if !strings.HasSuffix(trimmed, "}") && !strings.HasSuffix(trimmed, "]") {
		return nil, false
	}
	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return nil, false
	}
	return parsed, true
}

// applyItemAdded merges an item-added event into an existing record when one
// matches, creating a new record otherwise. Item-added events may arrive
// before an id is known, so correlation falls back to the newest pending
// record with a matching name or type and no id yet.
func (s *Session) applyItemAdded(item ToolItem) {
	idx := s.findByID(item.ID)
	if idx < 0 {
		for i := len(s.toolCalls) - 1; i >= 0; i-- {
			call := &s.toolCalls[i]
			if call.ID == "" && !call.Terminal() && nameMatches(call.Name, call.Type, item.Name, item.Type) {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		s.toolCalls = append(s.toolCalls, message.ToolCall{Status: message.ToolCallStatusPending})
		idx = len(s.toolCalls) - 1
	}

	call := &s.toolCalls[idx]
	if item.ID != "" {
		call.ID = item.ID
	}
	if item.Type != "" {
		call.Type = item.Type
	}
	if item.Name != "" {
		call.Name = item.Name
	} else if call.Name == "" {
		call.Name = "unknown"
	}
	if item.Inputs != nil {
		call.Arguments = item.Inputs
	}
}

// applyItemDone resolves a record by id, falling back to a fuzzy name/type
// match: upstream type strings and call names are not guaranteed consistent,
// so the substring correlation runs both directions. A record that already
// reached a terminal status keeps it.
func (s *Session) applyItemDone(item ToolItem) {
	idx := s.findByID(item.ID)
	if idx < 0 {
		for i := len(s.toolCalls) - 1; i >= 0; i-- {
			call := &s.toolCalls[i]
			if nameMatches(call.Name, call.Type, item.Name, item.Type) {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		s.toolCalls = append(s.toolCalls, message.ToolCall{Status: message.ToolCallStatusPending})
		idx = len(s.toolCalls) - 1
	}

	call := &s.toolCalls[idx]
	if item.ID != "" && call.ID == "" {
		call.ID = item.ID
	}
	if item.Name != "" && (call.Name == "" || call.Name == "unknown") {
		call.Name = item.Name
	}
	if item.Type != "" && call.Type == "" {
		call.Type = item.Type
	}
	if item.Inputs != nil {
		call.Arguments = item.Inputs
	}
	if item.Results != nil {
		call.Result = item.Results
	}
	if !call.Terminal() {
		// The wire status on a done item is optional. Upstreams omit it only
		// on the happy path, so absent reads as completed; any explicit
		// status other than "completed" reads as error.
		if item.Status == "" || item.Status == "completed" {
			call.Status = message.ToolCallStatusCompleted
		} else {
			call.Status = message.ToolCallStatusError
		}
	}
}

func (s *Session) findByID(id string) int {
	if id == "" {
		return -1
	}
	for i, call := range s.toolCalls {
		if call.ID == id {
			return i
		}
	}
	return -1
}

// nameMatches correlates a record with an item by substring in either
// direction across names and types. Ambiguous under interleaved calls with
// the same name; prefer ids whenever the upstream provides them.
func nameMatches(callName, callType, itemName, itemType string) bool {
	for _, a := range []string{callName, callType} {
		if a == "" || a == "unknown" {
			continue
		}
		for _, b := range []string{itemName, itemType} {
			if b == "" {
				continue
			}
			la, lb := strings.ToLower(a), strings.ToLower(b)
			if strings.Contains(la, lb) || strings.Contains(lb, la) {
				return true
			}
		}
	}
	return false
}

// resolvePending force-resolves still-pending records. With terminal set,
// records whose arguments do not parse are marked error with the raw string
// wrapped; otherwise only parse-complete records are promoted.
func (s *Session) resolvePending(terminal bool) bool {
	changed := false
	for i := range s.toolCalls {
		call := &s.toolCalls[i]
		if call.Terminal() {
			continue
		}
		if args, ok := parseCompleteJSON(call.Input); ok {
			call.Arguments = args
			call.Status = message.ToolCallStatusCompleted
			changed = true
			continue
		}
		if terminal {
			call.Arguments = map[string]any{"raw": call.Input}
			call.Status = message.ToolCallStatusError
			changed = true
		}
	}
	return changed
}

// Snapshot builds the read-only partial message published after each line:
// assistant role, current text, current tool calls, still streaming.
func (s *Session) Snapshot() message.Message {
	msg := message.New(message.Assistant)
	if text := s.Text(); text != "" {
		msg.AppendContent(text)
	}
	for _, call := range s.ToolCalls() {
		msg.AddToolCall(call)
	}
	msg.ResponseID = s.responseID
	return msg
}

// Final builds the immutable terminal message for a successful session.
func (s *Session) Final() message.Message {
	msg := s.Snapshot()
	msg.Usage = s.usage
	reason := message.FinishReasonEndTurn
	if len(s.toolCalls) > 0 {
		reason = message.FinishReasonToolUse
	}
	msg.AddFinish(reason)
	return msg
}
