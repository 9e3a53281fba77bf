package goGate

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ErrorResponse is the JSON body written for every failed request.
type ErrorResponse struct {
	Message   string         `json:"message"`
	Code      string         `json:"code"`
	Params    map[string]any `json:"params"`
	Status    int            `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	TraceID   string         `json:"traceId,omitempty"`
	Trace     []string       `json:"trace,omitempty"`
}

// NewErrorResponse renders err. Trace is filled only when withTrace is set.
func NewErrorResponse(err error, traceID string, withTrace bool, now time.Time) ErrorResponse {
	e := classify(err)
	if e == nil {
		e = newError(ErrInternal, nil, nil)
	}
	params := e.Params
	if params == nil {
		params = map[string]any{}
	}
	resp := ErrorResponse{
		Message:   e.Message,
		Code:      e.Code,
		Params:    params,
		Status:    e.Status(),
		Timestamp: now.UTC(),
		TraceID:   traceID,
	}
	if withTrace {
		resp.Trace = errorTrace(e)
	}
	return resp
}

// WriteErrorResponse writes resp with its status. Encoding failures are
// ignored since headers are already sent.
func WriteErrorResponse(w http.ResponseWriter, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(resp.Status)
	_ = json.NewEncoder(w).Encode(resp)
}

// errorTrace lists the error chain, outermost first, followed by the panic
// stack when one was recovered.
func errorTrace(e *Error) []string {
	var trace []string
	seen := 0
	var walk func(err error)
	walk = func(err error) {
		if err == nil || seen > 32 {
			return
		}
		seen++
		trace = append(trace, err.Error())
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		default:
			walk(errors.Unwrap(err))
		}
	}
	walk(e.Cause)
	if len(e.stack) > 0 {
		for _, line := range strings.Split(strings.TrimRight(string(e.stack), "\n"), "\n") {
			trace = append(trace, line)
		}
	}
	return trace
}
