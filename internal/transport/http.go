package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/opendocs/chatstream/internal/config"
	"github.com/opendocs/chatstream/internal/stream"
)

// HTTP opens model response streams over a single POST endpoint that answers
// with newline-delimited JSON. The client carries no timeout: a healthy
// stream can legitimately stay open for minutes, stall handling lives in the
// consumer.
type HTTP struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
}

var _ stream.Transport = (*HTTP)(nil)

func NewHTTP(cfg config.ServerConfig) *HTTP {
	return &HTTP{
		endpoint: cfg.Endpoint,
		headers:  cfg.Headers,
		client:   &http.Client{},
	}
}

func (t *HTTP) Open(ctx context.Context, req stream.Request) (io.ReadCloser, error) {
	payload, err := buildPayload(req)
	if err != nil {
		return nil, &stream.Error{Kind: stream.ErrorKindTransport, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader(payload))
	if err != nil {
		return nil, &stream.Error{Kind: stream.ErrorKindTransport, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")
	for key, value := range t.headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &stream.Error{Kind: stream.ErrorKindTransport, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused, then reject.
		io.CopyN(io.Discard, resp.Body, 4096)
		resp.Body.Close()
		return nil, &stream.Error{
			Kind:       stream.ErrorKindTransport,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	return resp.Body, nil
}

// buildPayload serializes the request, leaving optional fields out entirely
// rather than sending zero values.
func buildPayload(req stream.Request) (string, error) {
	payload, err := sjson.Set("", "message", req.Message)
	if err != nil {
		return "", err
	}
	if payload, err = sjson.Set(payload, "stream", true); err != nil {
		return "", err
	}
	if req.PreviousResponseID != "" {
		if payload, err = sjson.Set(payload, "previous_response_id", req.PreviousResponseID); err != nil {
			return "", err
		}
	}
	if len(req.Filters) > 0 {
		if payload, err = sjson.Set(payload, "filters", req.Filters); err != nil {
			return "", err
		}
	}
	if req.Limit > 0 {
		if payload, err = sjson.Set(payload, "limit", req.Limit); err != nil {
			return "", err
		}
	}
	if req.ScoreThreshold > 0 {
		if payload, err = sjson.Set(payload, "score_threshold", req.ScoreThreshold); err != nil {
			return "", err
		}
	}
	return payload, nil
}
