package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/opendocs/chatstream/internal/logging"
	"github.com/opendocs/chatstream/internal/message"
	"github.com/opendocs/chatstream/internal/status"
)

const defaultStallTimeout = 60 * time.Second

// Request carries everything needed to open one model response stream.
type Request struct {
	Message            string
	PreviousResponseID string
	Filters            map[string]string
	Limit              int
	ScoreThreshold     float64
}

// Transport opens a raw byte stream for a request. Implementations return an
// *Error with ErrorKindTransport for connection failures and non-2xx
// responses; the body is only returned once the server has committed to
// streaming.
type Transport interface {
	Open(ctx context.Context, req Request) (io.ReadCloser, error)
}

// Sink receives the consumer's output. For any single Send exactly one of
// OnFinal or OnError is called, never both, and only from the generation that
// is still current at delivery time. OnSnapshot may be called any number of
// times before the terminal call.
type Sink interface {
	OnSnapshot(msg message.Message)
	OnFinal(msg message.Message, responseID string)
	OnError(err error)
}

// Consumer drives at most one live response stream at a time. Each Send
// starts a new generation and implicitly cancels the previous one; superseded
// generations fall silent without publishing anything.
type Consumer struct {
	transport    Transport
	sink         Sink
	stallTimeout time.Duration

	mu         sync.Mutex
	generation int
	cancel     context.CancelFunc
}

type Option func(*Consumer)

// WithStallTimeout overrides the window after which a silent stream is
// declared stalled.
func WithStallTimeout(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.stallTimeout = d
		}
	}
}

func NewConsumer(transport Transport, sink Sink, opts ...Option) *Consumer {
	c := &Consumer{
		transport:    transport,
		sink:         sink,
		stallTimeout: defaultStallTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send starts consuming a new response in the background and returns its
// generation number. Any in-flight generation is cancelled first; that
// cancellation is deliberate and produces no terminal sink call.
func (c *Consumer) Send(ctx context.Context, req Request) int {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.generation++
	gen := c.generation
	streamCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(streamCtx, gen, req)
	return gen
}

// Cancel stops the in-flight generation, if any. Safe to call at any time.
func (c *Consumer) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Generation returns the current generation number.
func (c *Consumer) Generation() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *Consumer) current(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.generation
}

type readResult struct {
	data []byte
	err  error
}

func (c *Consumer) run(ctx context.Context, gen int, req Request) {
	defer logging.RecoverPanic("stream-consumer", nil)

	body, err := c.transport.Open(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if _, ok := AsStreamError(err); !ok {
			err = &Error{Kind: ErrorKindTransport, Err: err}
		}
		c.fail(gen, err)
		return
	}
	// Closing the body is what unblocks the reader goroutine on cancel.
	defer body.Close()

	session := NewSession(gen)
	reassembler := &LineReassembler{}

	readCh := make(chan readResult)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, readErr := body.Read(buf)
			var chunk []byte
			if n > 0 {
				chunk = make([]byte, n)
				copy(chunk, buf[:n])
			}
			select {
			case readCh <- readResult{data: chunk, err: readErr}:
			case <-ctx.Done():
				return
			}
			if readErr != nil {
				return
			}
		}
	}()

	timer := time.NewTimer(c.stallTimeout)
	defer timer.Stop()
	received := false

	for {
		select {
		case <-ctx.Done():
			session.Cancel()
			return

		case <-timer.C:
			if !received {
				session.Fail()
				c.fail(gen, &Error{Kind: ErrorKindStallTimeout})
				return
			}
			// Data already arrived; a later stall is advisory only, the
			// stream may legitimately finish after a long pause.
			status.Warn("The response stream has gone quiet. Still waiting...")
			timer.Reset(c.stallTimeout)

		case res := <-readCh:
			if len(res.data) > 0 {
				received = true
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(c.stallTimeout)
				for _, line := range reassembler.Feed(res.data) {
					c.processLine(session, line)
				}
			}
			if res.err != nil {
				if errors.Is(res.err, io.EOF) {
					c.finish(gen, session, reassembler)
					return
				}
				if ctx.Err() != nil {
					session.Cancel()
					return
				}
				session.Fail()
				c.fail(gen, &Error{Kind: ErrorKindTransport, Err: res.err})
				return
			}
		}
	}
}

// processLine decodes and folds one line, publishing a snapshot when the
// session changed and this generation is still the live one.
func (c *Consumer) processLine(session *Session, line string) {
	changed := false
	for _, ev := range DecodeLine(line) {
		if ev.Kind == EventUnrecognized {
			slog.Warn("Skipping malformed stream line", "line", truncateForLog(ev.Raw))
			continue
		}
		if session.Apply(ev) {
			changed = true
		}
	}
	if changed && session.State() == StateStreaming && c.current(session.Generation) {
		c.sink.OnSnapshot(session.Snapshot())
	}
}

// finish runs end-of-stream finalization: drop any truncated tail, reject
// empty streams, force-resolve pending tool calls when no completion marker
// arrived, infer an implicit retrieval when nothing was reported, then
// deliver the final message exactly once.
func (c *Consumer) finish(gen int, session *Session, reassembler *LineReassembler) {
	if rest := reassembler.Rest(); strings.TrimSpace(rest) != "" {
		slog.Warn("Discarding unterminated data at end of stream", "bytes", len(rest))
	}

	if session.Text() == "" && len(session.ToolCalls()) == 0 {
		session.Fail()
		c.fail(gen, &Error{Kind: ErrorKindNoContent})
		return
	}

	if session.State() != StateCompleted {
		session.Apply(Event{Kind: EventCompleted})
	}

	if len(session.ToolCalls()) == 0 {
		if call := InferRetrievalCall(session.RawCompletion(), session.Text()); call != nil {
			session.toolCalls = append(session.toolCalls, *call)
		}
	}

	if !c.current(gen) {
		return
	}
	c.sink.OnFinal(session.Final(), session.ResponseID())
}

func (c *Consumer) fail(gen int, err error) {
	if !c.current(gen) {
		return
	}
	slog.Error("Stream failed", "error", err)
	c.sink.OnError(err)
}

// ErrorMessage renders a terminal failure as an assistant message so sinks
// that only carry messages can still surface it.
func ErrorMessage(err error) message.Message {
	text := "Something went wrong while connecting to the assistant. Please try again."
	if se, ok := AsStreamError(err); ok {
		text = se.UserMessage()
	}
	msg := message.New(message.Assistant)
	msg.AppendContent(text)
	msg.Parts = append(msg.Parts, message.Finish{
		Reason:  message.FinishReasonError,
		Time:    time.Now(),
		Message: err.Error(),
	})
	return msg
}

func truncateForLog(s string) string {
	const max = 160
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
