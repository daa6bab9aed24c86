package sdk

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const dataPrefix = "data: "

// Client consumes the data:-framed chat stream endpoint. Events arrive on a
// channel as they are decoded; malformed frames are skipped rather than
// failing the stream.
type Client struct {
	Server     string
	HTTPClient *http.Client
}

func New(server string) *Client {
	return &Client{
		Server:     strings.TrimSuffix(server, "/"),
		HTTPClient: &http.Client{},
	}
}

// Chat opens a stream for the request. The event channel closes when the
// stream ends; the error channel delivers at most one error, after which no
// further events arrive. Cancelling ctx tears the stream down.
func (c *Client) Chat(ctx context.Context, chatReq ChatRequest) (<-chan StreamEvent, <-chan error, error) {
	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Server+"/sdk/chat", bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.CopyN(io.Discard, resp.Body, 4096)
		resp.Body.Close()
		return nil, nil, fmt.Errorf("chat stream: unexpected status %s", resp.Status)
	}

	events := make(chan StreamEvent)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, dataPrefix) {
				continue
			}

			var event StreamEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, dataPrefix)), &event); err != nil {
				continue
			}
			if event.Type == "" {
				continue
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			errs <- err
		}
	}()

	return events, errs, nil
}

// Collect drives a full exchange and assembles the streamed events into one
// result. It returns what was accumulated up to the first stream error.
func (c *Client) Collect(ctx context.Context, chatReq ChatRequest) (ChatResult, error) {
	events, errs, err := c.Chat(ctx, chatReq)
	if err != nil {
		return ChatResult{}, err
	}

	var result ChatResult
	var text strings.Builder
	for event := range events {
		switch event.Type {
		case EventContent:
			text.WriteString(event.Delta)
		case EventSources:
			result.Sources = append(result.Sources, event.Sources...)
		case EventDone:
			result.ChatID = event.ChatID
		}
	}
	result.Text = text.String()

	select {
	case err := <-errs:
		return result, err
	default:
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}
