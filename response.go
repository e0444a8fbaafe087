package goGateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody caps how much of a failed response is read for the error envelope.
const maxErrorBody = 1 << 20

type errorEnvelope struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// decodeResponse turns a response into a *Response or an *Error. It reads but does not
// close the body.
func decodeResponse(resp *http.Response) (*Response, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError(CodeNetwork, fmt.Errorf("read body: %w", err))
	}

	out := &Response{
		Success:    true,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return out, nil
	}

	data, success, message, ok := unwrapEnvelope(raw)
	if !ok {
		out.Data = json.RawMessage(raw)
		return out, nil
	}
	out.Data = data
	out.Message = message
	if success != nil {
		out.Success = *success
	}
	return out, nil
}

// unwrapEnvelope reports ok only for a JSON object with a "data" member.
func unwrapEnvelope(raw []byte) (json.RawMessage, *bool, string, bool) {
	if raw[0] != '{' {
		return nil, nil, "", false
	}
	var env struct {
		Data    json.RawMessage `json:"data"`
		Success *bool           `json:"success"`
		Message string          `json:"message"`
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, nil, "", false
	}
	if _, has := top["data"]; !has {
		return nil, nil, "", false
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, "", false
	}
	return env.Data, env.Success, env.Message, true
}

func decodeError(resp *http.Response) *Error {
	var env errorEnvelope
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(bytes.TrimSpace(raw)) > 0 {
		if json.Unmarshal(raw, &env) != nil {
			env = errorEnvelope{}
		}
	}
	return errorFromStatus(resp.StatusCode, resp.Header, env)
}

// DecodeData unmarshals a response payload into T.
func DecodeData[T any](resp *Response) (T, error) {
	var out T
	if resp == nil || len(resp.Data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return out, &Error{Kind: KindValidation, Code: CodeInvalidRequest, Message: "response payload did not match the expected shape", StatusCode: resp.StatusCode, Err: err}
	}
	return out, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Kind: KindValidation, Code: CodeInvalidRequest, Message: "request body is not JSON-encodable", Err: err}
		}
		return raw, nil
	}
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxErrorBody))
	_ = body.Close()
}
