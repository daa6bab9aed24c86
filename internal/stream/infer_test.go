package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferRetrievalCallFromResponseFields(t *testing.T) {
	payload := `{"type":"response.completed","results":[{"doc":"notes.md","score":0.9}]}`
	call := InferRetrievalCall(payload, "answer")
	require.NotNil(t, call)
	assert.Equal(t, "Retrieval", call.Name)
	args, ok := call.Arguments.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, args["implicit"])
	assert.Equal(t, "response_fields", args["detected_from"])
	assert.NotNil(t, call.Result)
}

func TestInferRetrievalCallFromNestedDataField(t *testing.T) {
	payload := `{"data":{"retrieved_documents":["a.md"]}}`
	call := InferRetrievalCall(payload, "")
	require.NotNil(t, call)
	assert.NotNil(t, call.Result)
}

func TestInferRetrievalCallFromCitationText(t *testing.T) {
	call := InferRetrievalCall("", "The answer is 42. [source: handbook.pdf]")
	require.NotNil(t, call)
	args := call.Arguments.(map[string]any)
	assert.Equal(t, "content_patterns", args["detected_from"])
	assert.Nil(t, call.Result)
}

func TestInferRetrievalCallFromProse(t *testing.T) {
	for _, text := range []string{
		"According to the document, the limit is 10.",
		"Based on the file you uploaded, this fails.",
		"based on the data provided, yes.",
	} {
		assert.NotNil(t, InferRetrievalCall("", text), "text %q", text)
	}
}

func TestInferRetrievalCallNoEvidence(t *testing.T) {
	assert.Nil(t, InferRetrievalCall("", "Just a plain answer."))
	assert.Nil(t, InferRetrievalCall(`{"type":"response.completed"}`, "Nothing cited here."))
	assert.Nil(t, InferRetrievalCall("not json", "Plain."))
}

func TestInferRetrievalCallFieldsWinOverText(t *testing.T) {
	payload := `{"outputs":[1]}`
	call := InferRetrievalCall(payload, "according to the document")
	require.NotNil(t, call)
	args := call.Arguments.(map[string]any)
	assert.Equal(t, "response_fields", args["detected_from"])
}
