package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// NetworkError means no usable answer came back from the backend
type NetworkError struct {
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return "unable to reach the server: " + e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("unable to reach the server (status %d)", e.StatusCode)
	}
	return "unable to reach the server"
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// APIError carries a single human-readable message from the backend
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// ValidationError carries field-keyed messages a form can attach to its inputs
type ValidationError struct {
	StatusCode int
	Fields     map[string][]string
	NonField   []string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	for _, key := range keys {
		parts = append(parts, key+": "+strings.Join(e.Fields[key], " "))
	}
	if len(e.NonField) > 0 {
		parts = append(parts, strings.Join(e.NonField, " "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// FieldErrors returns the first message for each field
func (e *ValidationError) FieldErrors() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for key, msgs := range e.Fields {
		if len(msgs) > 0 {
			out[key] = msgs[0]
		}
	}
	return out
}

// Keys with a meaning of their own in error bodies; everything else is a field
var messageKeys = []string{"detail", "error", "message"}

const nonFieldKey = "non_field_errors"

// NormalizeError turns a failed response into a NetworkError, ValidationError
// or APIError depending on what the body carries
func NormalizeError(status int, body []byte) error {
	var doc map[string]json.RawMessage
	if len(body) == 0 || json.Unmarshal(body, &doc) != nil || doc == nil {
		return &NetworkError{StatusCode: status}
	}

	reserved := map[string]bool{nonFieldKey: true}
	for _, key := range messageKeys {
		reserved[key] = true
	}

	fields := make(map[string][]string)
	for key, raw := range doc {
		if reserved[key] {
			continue
		}
		if msgs, ok := decodeMessages(raw); ok {
			fields[key] = msgs
		}
	}

	nonField, _ := decodeMessages(doc[nonFieldKey])

	if len(fields) > 0 {
		return &ValidationError{StatusCode: status, Fields: fields, NonField: nonField}
	}

	for _, key := range messageKeys {
		var msg string
		if raw, ok := doc[key]; ok && json.Unmarshal(raw, &msg) == nil && msg != "" {
			return &APIError{StatusCode: status, Message: msg}
		}
	}

	if len(nonField) > 0 {
		return &APIError{StatusCode: status, Message: nonField[0]}
	}

	return &APIError{StatusCode: status, Message: http.StatusText(status)}
}

// decodeMessages accepts either a string or a list of strings
func decodeMessages(raw json.RawMessage) ([]string, bool) {
	if len(raw) == 0 {
		return nil, false
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return nil, false
		}
		return list, true
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []string{single}, true
	}

	return nil, false
}
