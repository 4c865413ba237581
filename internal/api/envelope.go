package api

import (
	"strconv"

	"github.com/danielgtaylor/huma/v2"
)

// Envelope is the body shape of every JSON response.
// Successful responses carry Data; failures carry Error, plus Code, Message
// and Details when the failure is an APIError with a code.
type Envelope struct {
	V       int    `json:"v" doc:"Envelope version"`
	Success bool   `json:"success" doc:"Whether the request succeeded"`
	Data    any    `json:"data,omitempty" doc:"Response payload"`
	Error   string `json:"error,omitempty" doc:"Error summary"`
	Code    string `json:"code,omitempty" doc:"Machine-readable error code"`
	Message string `json:"message,omitempty" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// EnvelopeTransformer wraps response bodies in an Envelope.
// It is registered as a huma transformer so handlers return bare payloads.
func EnvelopeTransformer(_ huma.Context, status string, v any) (any, error) {
	if _, ok := v.(*Envelope); ok {
		return v, nil
	}

	code, err := strconv.Atoi(status)
	if err != nil {
		code = 200
	}

	env := &Envelope{V: envelopeVersion, Success: code < 400}

	switch body := v.(type) {
	case *APIError:
		env.Success = false
		env.Error = body.Message
		env.Code = body.Code
		env.Details = body.Details
		if body.Code != "" {
			env.Message = body.Message
		}
	case error:
		env.Success = false
		env.Error = body.Error()
	default:
		if code >= 400 {
			env.Error = "request failed"
		}
		env.Data = v
	}

	return env, nil
}
