package mock

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func testServer(t *testing.T) (*httptest.Server, *Server) {
	t.Helper()
	s := NewServer(":0")
	s.delay = 0
	ts := httptest.NewServer(s.echo)
	t.Cleanup(ts.Close)
	return ts, s
}

func postLines(t *testing.T, url, body string) []string {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestChatEndpointStreamsNDJSON(t *testing.T) {
	ts, _ := testServer(t)
	lines := postLines(t, ts.URL+"/chat", `{"message":"hello there"}`)
	require.GreaterOrEqual(t, len(lines), 3)

	assert.True(t, strings.HasPrefix(gjson.Get(lines[0], "id").String(), "resp_"))

	var text strings.Builder
	for _, line := range lines[1 : len(lines)-1] {
		require.True(t, gjson.Valid(line), "line %q", line)
		text.WriteString(gjson.Get(line, "delta.content").String())
	}
	assert.Contains(t, text.String(), "hello there")

	last := lines[len(lines)-1]
	assert.Equal(t, "response.completed", gjson.Get(last, "type").String())
	assert.Equal(t, int64(36), gjson.Get(last, "response.usage.total_tokens").Int())
}

func TestChatEndpointEmitsToolCallSequence(t *testing.T) {
	ts, _ := testServer(t)
	lines := postLines(t, ts.URL+"/chat", `{"message":"search for limits"}`)

	var sawName bool
	var args strings.Builder
	for _, line := range lines {
		if gjson.Get(line, "delta.function_call.name").String() == "search" {
			sawName = true
		}
		args.WriteString(gjson.Get(line, "delta.function_call.arguments").String())
	}
	assert.True(t, sawName, "expected a function_call name line")
	require.True(t, gjson.Valid(args.String()), "reassembled arguments should be JSON: %q", args.String())
	assert.Equal(t, "search for limits", gjson.Get(args.String(), "query").String())
}

func TestChatEndpointCiteIncludesResults(t *testing.T) {
	ts, _ := testServer(t)
	lines := postLines(t, ts.URL+"/chat", `{"message":"cite your sources"}`)

	last := lines[len(lines)-1]
	assert.Equal(t, "handbook.md", gjson.Get(last, "results.0.document").String())
}

func TestChatEndpointRejectsMissingMessage(t *testing.T) {
	ts, _ := testServer(t)
	resp, err := http.Post(ts.URL+"/chat", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSDKEndpointStreamsDataFrames(t *testing.T) {
	ts, _ := testServer(t)
	lines := postLines(t, ts.URL+"/sdk/chat", `{"message":"hi"}`)

	var types []string
	for _, line := range lines {
		require.True(t, strings.HasPrefix(line, "data: "), "line %q", line)
		payload := strings.TrimPrefix(line, "data: ")
		require.True(t, gjson.Valid(payload))
		types = append(types, gjson.Get(payload, "type").String())
	}
	require.NotEmpty(t, types)
	assert.Equal(t, "sources", types[len(types)-2])
	assert.Equal(t, "done", types[len(types)-1])

	last := strings.TrimPrefix(lines[len(lines)-1], "data: ")
	assert.True(t, strings.HasPrefix(gjson.Get(last, "chat_id").String(), "chat_"))
}
