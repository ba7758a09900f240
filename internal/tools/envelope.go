package tools

import (
	"bytes"
	"encoding/json"

	xerrors "WaxAgentKit/internal/errors"
)

// Envelope status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type field struct {
	key   string
	value any
}

// Response is the JSON envelope every tool returns. Keys are emitted in a
// fixed order: status, message, then payload fields (success) or code and
// details (error).
type Response struct {
	Status  string
	Message string
	Code    xerrors.Code
	fields  []field
}

// Success builds a success envelope.
func Success(message string) *Response {
	return &Response{Status: StatusSuccess, Message: message}
}

// Failure builds an error envelope.
func Failure(code xerrors.Code, message string) *Response {
	if code == "" {
		code = xerrors.CodeUnknown
	}
	return &Response{Status: StatusError, Message: message, Code: code}
}

// FailureFrom converts err into an error envelope using its registered code.
func FailureFrom(err error) *Response {
	return Failure(xerrors.CodeOf(err), xerrors.MessageOf(err))
}

// With appends a payload field. Repeated keys overwrite in place.
func (r *Response) With(key string, value any) *Response {
	for i := range r.fields {
		if r.fields[i].key == key {
			r.fields[i].value = value
			return r
		}
	}
	r.fields = append(r.fields, field{key: key, value: value})
	return r
}

// Field returns a payload value.
func (r *Response) Field(key string) (any, bool) {
	for _, f := range r.fields {
		if f.key == key {
			return f.value, true
		}
	}
	return nil, false
}

// MarshalJSON implements json.Marshaler.
func (r *Response) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	write := func(key string, value any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(value)
		if err != nil {
			return err
		}
		buf.Write(v)
		return nil
	}

	if err := write("status", r.Status); err != nil {
		return nil, err
	}
	if err := write("message", r.Message); err != nil {
		return nil, err
	}
	if r.Status == StatusError {
		if err := write("code", string(r.Code)); err != nil {
			return nil, err
		}
		if err := write("details", nil); err != nil {
			return nil, err
		}
	} else {
		for _, f := range r.fields {
			if err := write(f.key, f.value); err != nil {
				return nil, err
			}
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// String renders the envelope. Payloads that fail to marshal degrade to an
// error envelope so callers always receive valid JSON.
func (r *Response) String() string {
	data, err := json.Marshal(r)
	if err != nil {
		data, _ = json.Marshal(Failure(xerrors.CodeUnknown, err.Error()))
	}
	return string(data)
}

// Envelope is the decoded form of a tool result, used by job storage and
// API clients.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// OK reports whether the envelope carries a success status.
func (e Envelope) OK() bool { return e.Status == StatusSuccess }

// DecodeEnvelope extracts status, message and code from a tool result.
func DecodeEnvelope(raw string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
