package api

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marshalEnvelope(t *testing.T, status string, v any) map[string]any {
	t.Helper()
	result, err := EnvelopeTransformer(nil, status, v)
	require.NoError(t, err)

	raw, err := json.Marshal(result)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestEnvelopeTransformer_AlwaysIncludesVersion(t *testing.T) {
	tests := []struct {
		name   string
		status string
		input  any
	}{
		{name: "success response", status: "200", input: map[string]string{"key": "value"}},
		{name: "created response", status: "201", input: map[string]string{"id": "123"}},
		{name: "no content response", status: "204", input: nil},
		{name: "bad request error", status: "400", input: errors.New("invalid input")},
		{name: "not found error", status: "404", input: &APIError{Code: "NOT_FOUND", Message: "work not found"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := marshalEnvelope(t, tt.status, tt.input)
			assert.Equal(t, float64(envelopeVersion), out["v"])
			assert.NotContains(t, out, "version")
		})
	}
}

func TestEnvelopeTransformer_Success(t *testing.T) {
	out := marshalEnvelope(t, "200", map[string]string{"id": "qidian_1"})

	assert.Equal(t, true, out["success"])
	assert.Equal(t, map[string]any{"id": "qidian_1"}, out["data"])
	assert.NotContains(t, out, "error")
}

func TestEnvelopeTransformer_DetailedError(t *testing.T) {
	out := marshalEnvelope(t, "404", &APIError{
		Code:    "NOT_FOUND",
		Message: `category "favs" not found`,
		Details: map[string]any{"suggestions": []string{"Favorites"}},
	})

	assert.Equal(t, false, out["success"])
	assert.Equal(t, `category "favs" not found`, out["error"])
	assert.Equal(t, "NOT_FOUND", out["code"])
	assert.Equal(t, `category "favs" not found`, out["message"])
	assert.Contains(t, out, "details")
	assert.NotContains(t, out, "data")
}

func TestEnvelopeTransformer_PlainError(t *testing.T) {
	out := marshalEnvelope(t, "500", errors.New("boom"))

	assert.Equal(t, false, out["success"])
	assert.Equal(t, "boom", out["error"])
	assert.NotContains(t, out, "code")
}

func TestEnvelopeTransformer_AlreadyWrapped(t *testing.T) {
	env := &Envelope{V: envelopeVersion, Success: true, Data: "x"}
	result, err := EnvelopeTransformer(nil, "200", env)
	require.NoError(t, err)
	assert.Same(t, env, result)
}

func TestStatusToCode(t *testing.T) {
	assert.Equal(t, "VALIDATION", statusToCode(400))
	assert.Equal(t, "VALIDATION", statusToCode(422))
	assert.Equal(t, "NOT_FOUND", statusToCode(404))
	assert.Equal(t, "CONFLICT", statusToCode(409))
	assert.Equal(t, "RATE_LIMITED", statusToCode(429))
	assert.Equal(t, "SOURCE_UNAVAILABLE", statusToCode(502))
	assert.Equal(t, "BUSY", statusToCode(503))
	assert.Equal(t, "INTERNAL", statusToCode(500))
}
