package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
)

// ErrLoginRequired marks an unrecoverable authentication failure. The stored
// credentials have been cleared and the caller must send the user to login.
var ErrLoginRequired = errors.New("apiclient: login required")

// HTTPError is a non-2xx response from the API.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

// Problem decodes the error body.
func (e *HTTPError) Problem() Problem {
	return ParseProblem(e.Body)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}

// Problem is a DRF-style error body: {"detail": "..."}, {"error": "..."},
// {"field": ["msg", ...]} or {"non_field_errors": [...]}.
type Problem struct {
	Detail   string
	Error    string
	Fields   map[string][]string
	NonField []string
}

func ParseProblem(body []byte) Problem {
	var p Problem
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return p
	}
	for key, value := range raw {
		switch key {
		case "detail":
			p.Detail = decodeString(value)
		case "error":
			p.Error = decodeString(value)
		case "non_field_errors":
			p.NonField = decodeMessages(value)
		default:
			msgs := decodeMessages(value)
			if len(msgs) == 0 {
				continue
			}
			if p.Fields == nil {
				p.Fields = make(map[string][]string)
			}
			p.Fields[key] = msgs
		}
	}
	return p
}

// FieldMessage returns the first field-level message. Preferred fields are
// consulted in order, then the remaining fields alphabetically, then
// non_field_errors.
func (p Problem) FieldMessage(prefer ...string) (field, msg string, ok bool) {
	for _, f := range prefer {
		if msgs := p.Fields[f]; len(msgs) > 0 {
			return f, msgs[0], true
		}
	}
	names := make([]string, 0, len(p.Fields))
	for f := range p.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	for _, f := range names {
		if msgs := p.Fields[f]; len(msgs) > 0 {
			return f, msgs[0], true
		}
	}
	if len(p.NonField) > 0 {
		return "", p.NonField[0], true
	}
	return "", "", false
}

// TopLevel returns detail, else error, else "".
func (p Problem) TopLevel() string {
	if p.Detail != "" {
		return p.Detail
	}
	return p.Error
}

func decodeString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	msgs := decodeMessages(raw)
	if len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

func decodeMessages(raw json.RawMessage) []string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	var out []string
	for _, item := range list {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
