package mock

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Server is a local stand-in for the chat backend, used for development and
// demos. POST /chat speaks the newline-delimited JSON protocol the consumer
// expects; POST /sdk/chat speaks the data:-framed protocol of the SDK client.
// Responses are canned and chunked on purpose so downstream reassembly gets
// exercised.
type Server struct {
	echo  *echo.Echo
	addr  string
	delay time.Duration
}

func NewServer(addr string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:  e,
		addr:  addr,
		delay: 30 * time.Millisecond,
	}
	e.POST("/chat", s.handleChat)
	e.POST("/sdk/chat", s.handleSDKChat)
	return s
}

// Start runs the server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.echo.Shutdown(shutdownCtx)
	}()
	slog.Info("Mock server listening", "addr", s.addr)
	if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleChat(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	message := gjson.Get(body, "message").String()
	if message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "application/x-ndjson")
	resp.WriteHeader(http.StatusOK)

	writeLine := func(line string) {
		fmt.Fprintln(resp, line)
		resp.Flush()
		time.Sleep(s.delay)
	}

	writeLine(fmt.Sprintf(`{"id":"resp_%s"}`, uuid.NewString()[:8]))

	if strings.Contains(strings.ToLower(message), "search") {
		writeLine(`{"delta":{"function_call":{"name":"search"}}}`)
		// Arguments arrive split mid-document to mimic real providers.
		args, _ := sjson.Set("{}", "query", message)
		half := len(args) / 2
		for _, fragment := range []string{args[:half], args[half:]} {
			line, _ := sjson.Set(`{"delta":{"function_call":{}}}`, "delta.function_call.arguments", fragment)
			writeLine(line)
		}
		writeLine(`{"delta":{"finish_reason":"function_call"}}`)
	}

	for _, word := range cannedReply(message) {
		line, _ := sjson.Set(`{"delta":{}}`, "delta.content", word)
		writeLine(line)
	}

	completed := `{"type":"response.completed","response":{"usage":{"prompt_tokens":12,"completion_tokens":24,"total_tokens":36}}}`
	if strings.Contains(strings.ToLower(message), "cite") {
		completed, _ = sjson.Set(completed, "results", []map[string]any{
			{"document": "handbook.md", "score": 0.92},
		})
	}
	writeLine(completed)
	return nil
}

func (s *Server) handleSDKChat(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	message := gjson.Get(body, "message").String()
	if message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.WriteHeader(http.StatusOK)

	writeEvent := func(event string) {
		fmt.Fprintf(resp, "data: %s\n", event)
		resp.Flush()
		time.Sleep(s.delay)
	}

	for _, word := range cannedReply(message) {
		line, _ := sjson.Set(`{"type":"content"}`, "delta", word)
		writeEvent(line)
	}

	sources, _ := sjson.Set(`{"type":"sources"}`, "sources", []map[string]any{
		{"document": "handbook.md", "score": 0.92},
	})
	writeEvent(sources)

	done, _ := sjson.Set(`{"type":"done"}`, "chat_id", "chat_"+uuid.NewString()[:8])
	writeEvent(done)
	return nil
}

func readBody(c echo.Context) (string, error) {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return "", err
	}
	if !gjson.Valid(string(raw)) {
		return "", fmt.Errorf("not json")
	}
	return string(raw), nil
}

// cannedReply splits a deterministic response into word-sized deltas.
func cannedReply(message string) []string {
	text := "This is a streamed reply to: " + message
	if strings.Contains(strings.ToLower(message), "cite") {
		text = "According to the document, the limit is 10. [source: handbook.md]"
	}
	words := strings.SplitAfter(text, " ")
	return words
}
