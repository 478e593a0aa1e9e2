package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Kind classifies a failed call.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindRejected     Kind = "rejected"
	KindServer       Kind = "server"
	KindTransport    Kind = "transport"
	KindDecode       Kind = "decode"
	KindCanceled     Kind = "canceled"
)

// Error is the single error type returned by Client calls.
type Error struct {
	Kind   Kind
	Status int
	// Detail is the server's "detail" field, Message its "message" (or "error") field.
	Detail  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	text := e.Detail
	if text == "" {
		text = e.Message
	}
	if text == "" && e.Err != nil {
		text = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("api %s (%d): %s", e.Kind, e.Status, text)
	}
	return fmt.Sprintf("api %s: %s", e.Kind, text)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// kindForStatus maps an HTTP status to a Kind.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status >= 500:
		return KindServer
	default:
		return KindRejected
	}
}

// errorPayload covers the error bodies the chat API produces: {"detail": "..."},
// FastAPI validation errors {"detail": [{"msg": "..."}]}, {"message": "..."} and {"error": "..."}.
type errorPayload struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func (p errorPayload) detail() string {
	if len(p.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(p.Detail, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(p.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	apiErr := &Error{Kind: kindForStatus(resp.StatusCode), Status: resp.StatusCode}
	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Detail = payload.detail()
		apiErr.Message = payload.Message
		if apiErr.Message == "" {
			apiErr.Message = payload.Error
		}
	}
	if apiErr.Detail == "" && apiErr.Message == "" {
		apiErr.Err = errors.New(resp.Status)
	}
	return apiErr
}

// Classify maps any error returned by this package, or by the transport beneath it,
// onto an *Error. It returns nil for a nil error.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindCanceled, Err: err}
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &Error{Kind: KindDecode, Err: err}
	}
	return &Error{Kind: KindTransport, Err: err}
}

// IsNotFound reports whether err means the addressed resource does not exist.
func IsNotFound(err error) bool {
	e := Classify(err)
	return e != nil && e.Kind == KindNotFound
}

// IsUnauthorized reports whether err means the caller has no valid identity.
func IsUnauthorized(err error) bool {
	e := Classify(err)
	return e != nil && e.Kind == KindUnauthorized
}

// Describe extracts a human-readable message from err: the server's detail, then
// its message, then the transport error text, then fallback.
func Describe(err error, fallback string) string {
	e := Classify(err)
	if e == nil {
		return fallback
	}
	switch {
	case e.Detail != "":
		return e.Detail
	case e.Message != "":
		return e.Message
	case (e.Kind == KindTransport || e.Kind == KindDecode) && e.Err != nil:
		return e.Err.Error()
	default:
		return fallback
	}
}
