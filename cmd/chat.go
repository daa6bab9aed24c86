package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"time"

	"log/slog"

	charmlog "github.com/charmbracelet/log"

	"github.com/opendocs/chatstream/internal/config"
	"github.com/opendocs/chatstream/internal/format"
	"github.com/opendocs/chatstream/internal/logging"
	"github.com/opendocs/chatstream/internal/message"
	"github.com/opendocs/chatstream/internal/status"
	"github.com/opendocs/chatstream/internal/stream"
	"github.com/opendocs/chatstream/internal/transport"
)

type chatOptions struct {
	Prompt             string
	OutputFormat       format.OutputFormat
	Quiet              bool
	Verbose            bool
	PreviousResponseID string
}

// syncWriter is a thread-safe writer that prevents interleaved output
type syncWriter struct {
	w  io.Writer
	mu sync.Mutex
}

func (sw *syncWriter) Write(p []byte) (n int, err error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.w.Write(p)
}

func newSyncWriter(w io.Writer) io.Writer {
	return &syncWriter{w: w}
}

type chatOutcome struct {
	msg        message.Message
	responseID string
	err        error
}

// consoleSink streams text deltas to stdout as they arrive and hands the
// terminal result back to handleChat. Only the not-yet-printed suffix of each
// snapshot is written, so output never repeats.
type consoleSink struct {
	mu      sync.Mutex
	out     io.Writer
	live    bool
	printed int
	done    chan chatOutcome
}

func newConsoleSink(out io.Writer, live bool) *consoleSink {
	return &consoleSink{out: out, live: live, done: make(chan chatOutcome, 1)}
}

func (s *consoleSink) OnSnapshot(msg message.Message) {
	if !s.live {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	text := msg.Content().Text
	if len(text) > s.printed {
		fmt.Fprint(s.out, text[s.printed:])
		s.printed = len(text)
	}
}

func (s *consoleSink) OnFinal(msg message.Message, responseID string) {
	s.done <- chatOutcome{msg: msg, responseID: responseID}
}

func (s *consoleSink) OnError(err error) {
	s.done <- chatOutcome{err: err}
}

// Printed returns how many bytes of answer text already went to stdout.
func (s *consoleSink) Printed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.printed
}

// handleChat runs one prompt against the configured endpoint and prints the
// result in the requested format.
func handleChat(ctx context.Context, opts chatOptions) error {
	slog.Info("Sending prompt", "format", opts.OutputFormat, "quiet", opts.Quiet)

	if opts.Quiet && opts.Verbose {
		return fmt.Errorf("--quiet and --verbose flags cannot be used together")
	}

	if opts.Verbose {
		charmLogger := charmlog.NewWithOptions(newSyncWriter(os.Stderr), charmlog.Options{
			Level:           charmlog.DebugLevel,
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          "chatstream",
		})
		charmlog.SetDefault(charmLogger)
		slog.SetDefault(slog.New(charmLogger))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Surface stall advisories and other transient notices on stderr.
	go func() {
		defer logging.RecoverPanic("status-subscription", nil)
		for event := range status.GetService().Subscribe(ctx) {
			notice := event.Payload
			if notice.Level == status.LevelWarn || notice.Level == status.LevelError {
				fmt.Fprintf(os.Stderr, "%s: %s\n", notice.Level, notice.Message)
			}
		}
	}()

	cfg := config.Get()
	// Streaming to the terminal only makes sense for live text output.
	live := opts.OutputFormat == format.TextFormat && !opts.Quiet
	sink := newConsoleSink(os.Stdout, live)

	consumer := stream.NewConsumer(
		transport.NewHTTP(cfg.Server),
		sink,
		stream.WithStallTimeout(config.StallTimeout()),
	)
	consumer.Send(ctx, stream.Request{
		Message:            opts.Prompt,
		PreviousResponseID: opts.PreviousResponseID,
		Filters:            cfg.Retrieval.Filters,
		Limit:              cfg.Retrieval.Limit,
		ScoreThreshold:     cfg.Retrieval.ScoreThreshold,
	})

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	var outcome chatOutcome
	select {
	case outcome = <-sink.done:
	case <-interrupt:
		consumer.Cancel()
		if live && sink.Printed() > 0 {
			fmt.Println()
		}
		fmt.Fprintln(os.Stderr, "Cancelled.")
		return nil
	}

	if outcome.err != nil {
		userMsg := outcome.err.Error()
		if se, ok := stream.AsStreamError(outcome.err); ok {
			userMsg = se.UserMessage()
		}
		fmt.Fprintln(os.Stderr, userMsg)
		return outcome.err
	}

	return printResult(sink, outcome, opts)
}

func printResult(sink *consoleSink, outcome chatOutcome, opts chatOptions) error {
	text := outcome.msg.Content().Text
	var toolCalls []string
	for _, call := range outcome.msg.ToolCalls() {
		toolCalls = append(toolCalls, call.Name)
	}

	if opts.OutputFormat == format.TextFormat && !opts.Quiet {
		// Deltas already went to stdout; flush whatever finalization added.
		if len(text) > sink.Printed() {
			fmt.Print(text[sink.Printed():])
		}
		fmt.Println()
		if opts.Verbose && len(toolCalls) > 0 {
			slog.Info("Assistant used tools", "tools", toolCalls, "response_id", outcome.responseID)
		}
		return nil
	}

	output, err := format.FormatResult(format.Result{
		Response:   text,
		ResponseID: outcome.responseID,
		ToolCalls:  toolCalls,
	}, opts.OutputFormat)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Println(output)
	return nil
}
