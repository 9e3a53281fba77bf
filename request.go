package goGate

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goGate/validation"
	"github.com/goccy/go-json"
)

// RequestContext carries one request through the pipeline. It is built once
// per request before route resolution.
type RequestContext struct {
	Request *http.Request
	Writer  http.ResponseWriter
	// Input merges query values, then body fields, then uploaded files; later
	// sources override earlier keys.
	Input map[string]any
	// URI is the absolute request URI.
	URI string
	// UseCase is the normalized request path, the key for routes and role
	// requirements.
	UseCase string
	TraceID string
	// Session is nil until authentication, and stays nil on public routes.
	Session *Session
	// Authorization is nil until the authorize step ran.
	Authorization *AuthorizationDecision

	route     Route
	mapped    bool
	writer    *responseWriter
	validator Validator
	start     time.Time
	after     []func(status int, elapsed time.Duration)
}

type requestOptions struct {
	maxBodyBytes int64
	maxMemory    int64
	validator    Validator
	now          func() time.Time
}

// newRequestContext builds the context for r. The returned context is always
// usable; a non-nil error reports unreadable input and must be rendered.
func newRequestContext(w http.ResponseWriter, r *http.Request, traceID string, opts requestOptions) (*RequestContext, error) {
	rw := &responseWriter{ResponseWriter: w}
	rc := &RequestContext{
		Request:   r,
		Writer:    rw,
		Input:     make(map[string]any),
		URI:       absoluteURI(r),
		UseCase:   NormalizePath(r.URL.Path),
		TraceID:   traceID,
		writer:    rw,
		validator: opts.validator,
		start:     opts.now(),
	}
	return rc, rc.parseInput(opts)
}

// Mapping returns the route resolved for this request.
func (rc *RequestContext) Mapping() (Route, bool) {
	if !rc.mapped {
		return Route{}, false
	}
	return rc.route.clone(), true
}

func (rc *RequestContext) setMapping(route Route) error {
	if rc.mapped {
		return newError(ErrInternal, errors.New("request mapping already assigned"), nil)
	}
	rc.route = route
	rc.mapped = true
	return nil
}

// Principal returns the authenticated principal, if any.
func (rc *RequestContext) Principal() (Principal, bool) {
	if rc.Session == nil {
		return Principal{}, false
	}
	return rc.Session.Principal, true
}

// Written reports whether a response status was already sent.
func (rc *RequestContext) Written() bool {
	return rc.writer.written
}

// Status is the response status sent so far, or 0.
func (rc *RequestContext) Status() int {
	return rc.writer.status
}

// AfterResponse registers fn to run once the response is complete.
func (rc *RequestContext) AfterResponse(fn func(status int, elapsed time.Duration)) {
	if fn != nil {
		rc.after = append(rc.after, fn)
	}
}

// Validate runs the configured validator for this use case. Without a
// validator the raw input is returned.
func (rc *RequestContext) Validate() (any, error) {
	if rc.validator == nil {
		return rc.Input, nil
	}
	out, err := rc.validator.Validate(rc.Input, rc.UseCase)
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// Bind decodes Input into dst and checks its validate tags.
func (rc *RequestContext) Bind(dst any) error {
	if err := validation.Decode(rc.Input, dst); err != nil {
		return malformedInput("input", err)
	}
	if verr := validation.Struct(dst); verr != nil {
		verr.UseCase = rc.UseCase
		return validationError(verr)
	}
	return nil
}

func (rc *RequestContext) parseInput(opts requestOptions) error {
	r := rc.Request
	for k, vs := range r.URL.Query() {
		rc.Input[k] = formValue(vs)
	}

	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	if opts.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(rc.writer, r.Body, opts.maxBodyBytes)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return bodyError(err)
		}
		values, err := url.ParseQuery(string(data))
		if err != nil {
			return malformedInput("body", err)
		}
		for k, vs := range values {
			rc.Input[k] = formValue(vs)
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(opts.maxMemory); err != nil {
			return bodyError(err)
		}
		for k, vs := range r.MultipartForm.Value {
			rc.Input[k] = formValue(vs)
		}
		for k, fhs := range r.MultipartForm.File {
			if len(fhs) == 1 {
				rc.Input[k] = fhs[0]
				continue
			}
			rc.Input[k] = append([]*multipart.FileHeader(nil), fhs...)
		}
	default:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return bodyError(err)
		}
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		var body map[string]any
		if err := json.Unmarshal(data, &body); err != nil {
			return malformedInput("body", err)
		}
		for k, v := range body {
			rc.Input[k] = v
		}
	}
	return nil
}

func formValue(vs []string) any {
	if len(vs) == 1 {
		return vs[0]
	}
	return append([]string(nil), vs...)
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return malformedInput("body", fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit))
	}
	return malformedInput("body", err)
}

func malformedInput(field string, err error) *Error {
	return validationError(&validation.Error{Fields: []validation.FieldError{{
		Field:   field,
		Tag:     "format",
		Message: err.Error(),
	}}})
}

func absoluteURI(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// clientIP is the host part of RemoteAddr. Forwarding headers are not read
// here; behind a proxy, mount a middleware such as chi's RealIP in front of
// the gate so RemoteAddr already holds the caller.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// responseWriter records whether and with what status a response was sent.
type responseWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *responseWriter) WriteHeader(code int) {
	if w.written {
		return
	}
	w.status = code
	w.written = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		if !w.written {
			w.WriteHeader(http.StatusOK)
		}
		f.Flush()
	}
}

func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
