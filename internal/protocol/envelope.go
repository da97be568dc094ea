// Package protocol is the wire codec of the host command channel.
//
// Every message is a JSON object with the keys cmd_type, cmd_id, session_id and
// cmd_info. Numbers are decoded as json.Number so 64-bit member and channel ids
// survive the round trip.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// FormatError reports a message that cannot be turned into a command.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("format error: %s: %v", e.Reason, e.Err)
	}
	return "format error: " + e.Reason
}

func (e *FormatError) Unwrap() error { return e.Err }

func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// Envelope is a decoded inbound command.
type Envelope struct {
	Type      string
	ID        *int64
	SessionID string
	Info      Payload
}

// HasID reports whether the command expects a correlated response.
func (e Envelope) HasID() bool { return e.ID != nil }

// Message is an outbound response or notification.
type Message struct {
	Type      string `json:"cmd_type"`
	ID        *int64 `json:"cmd_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Info      any    `json:"cmd_info,omitempty"`
}

func Encode(m Message) ([]byte, error) {
	if m.Type == "" {
		return nil, &FormatError{Reason: "empty cmd_type"}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type, err)
	}
	return b, nil
}

func Decode(data []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw struct {
		Type      any `json:"cmd_type"`
		ID        any `json:"cmd_id"`
		SessionID any `json:"session_id"`
		Info      any `json:"cmd_info"`
	}
	if err := dec.Decode(&raw); err != nil {
		return Envelope{}, &FormatError{Reason: "malformed json", Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return Envelope{}, &FormatError{Reason: "trailing data after envelope"}
	}

	typ, ok := raw.Type.(string)
	if !ok || typ == "" {
		return Envelope{}, &FormatError{Reason: "missing cmd_type"}
	}
	env := Envelope{Type: typ}

	if raw.ID != nil {
		_, isBool := raw.ID.(bool)
		id, ok := toInt64(raw.ID)
		if !ok || isBool {
			return Envelope{}, &FormatError{Reason: fmt.Sprintf("cmd_id %v is not an integer", raw.ID)}
		}
		env.ID = &id
	}

	switch v := raw.SessionID.(type) {
	case nil:
	case string:
		env.SessionID = v
	case json.Number:
		env.SessionID = v.String()
	default:
		return Envelope{}, &FormatError{Reason: "session_id must be a string"}
	}

	info, err := toPayload(raw.Info)
	if err != nil {
		return Envelope{}, err
	}
	env.Info = info
	return env, nil
}

func toPayload(v any) (Payload, error) {
	switch info := v.(type) {
	case nil:
		return Payload{}, nil
	case map[string]any:
		return Payload(info), nil
	case string:
		// some hosts send cmd_info as an embedded json document
		if info == "" {
			return Payload{}, nil
		}
		dec := json.NewDecoder(bytes.NewReader([]byte(info)))
		dec.UseNumber()
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			return nil, &FormatError{Reason: "cmd_info string is not a json object", Err: err}
		}
		return Payload(m), nil
	default:
		return nil, &FormatError{Reason: "cmd_info must be an object"}
	}
}

// Payload is the open key/value mapping carried in cmd_info. Unknown keys are
// ignored by the typed parsers.
type Payload map[string]any

func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}

func (p Payload) Int64(key string) (int64, bool) { return toInt64(p[key]) }

func (p Payload) Int(key string, def int) int {
	if v, ok := toInt64(p[key]); ok {
		return int(v)
	}
	return def
}

func (p Payload) Uint64(key string) (uint64, bool) {
	switch v := p[key].(type) {
	case json.Number:
		u, err := strconv.ParseUint(v.String(), 10, 64)
		return u, err == nil
	case string:
		u, err := strconv.ParseUint(v, 10, 64)
		return u, err == nil
	}
	i, ok := toInt64(p[key])
	if !ok || i < 0 {
		return 0, false
	}
	return uint64(i), true
}

func (p Payload) String(key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return ""
}

// Bool accepts true/false as well as the 0/1 integers older hosts send.
func (p Payload) Bool(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	i, ok := toInt64(p[key])
	return ok && i != 0
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil && f == float64(int64(f)) {
			return int64(f), true
		}
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, true
		}
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	case int:
		return int64(n), true
	case int64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
