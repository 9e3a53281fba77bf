package goGate

import (
	"fmt"
	"math"
	"net/http"
	"runtime/debug"
	"sort"
	"time"

	"github.com/MrEthical07/goGate/logging"
)

// StepFunc runs before the handler. Returning an error skips the remaining
// steps and the handler; writing a response ends the pipeline.
type StepFunc func(rc *RequestContext) error

// ErrorStepFunc runs after a failure. It returns the error passed on to the
// next error step; returning nil keeps the current error. Writing a response
// ends the pipeline.
type ErrorStepFunc func(rc *RequestContext, err error) error

// Descriptor places one step in the pipeline. Exactly one of Pre and OnError
// must be set.
type Descriptor struct {
	Name    string
	Order   float64
	Pre     StepFunc
	OnError ErrorStepFunc
}

var (
	// First orders a descriptor before every finite order.
	First = math.Inf(-1)
	// Last orders a descriptor after every finite order.
	Last = math.Inf(1)
)

// Pre describes a step that runs before the handler.
func Pre(name string, order float64, fn StepFunc) Descriptor {
	return Descriptor{Name: name, Order: order, Pre: fn}
}

// OnError describes a step that runs when a pre step or the handler failed.
func OnError(name string, order float64, fn ErrorStepFunc) Descriptor {
	return Descriptor{Name: name, Order: order, OnError: fn}
}

// Pipeline is an assembled, immutable step sequence. It implements
// http.Handler.
type Pipeline struct {
	pre     []Descriptor
	onError []Descriptor
	opts    pipelineOptions
}

type pipelineOptions struct {
	request   requestOptions
	withTrace bool
	render    func(rc *RequestContext, err error)
	observe   func(rc *RequestContext, status int, elapsed time.Duration)
}

// Assemble describes the assemble operation and its observable behavior.
//
// Assemble validates every descriptor, sorts them by Order and splits them
// into pre and error steps. An undefined order, a descriptor with zero or two
// step functions, a repeated name, or two descriptors sharing an order each
// fail with a ConfigurationError naming the offending descriptors.
func Assemble(descs ...Descriptor) (*Pipeline, error) {
	names := make(map[string]struct{}, len(descs))
	for _, d := range descs {
		if d.Name == "" {
			return nil, configError("pipeline descriptor: name is required")
		}
		if _, dup := names[d.Name]; dup {
			return nil, configError("pipeline descriptor %q: name is already used", d.Name)
		}
		names[d.Name] = struct{}{}

		if math.IsNaN(d.Order) {
			return nil, configError("pipeline descriptor %q: order is not defined", d.Name)
		}
		switch {
		case d.Pre == nil && d.OnError == nil:
			return nil, configError("pipeline descriptor %q: handler is not callable", d.Name)
		case d.Pre != nil && d.OnError != nil:
			return nil, configError("pipeline descriptor %q: handler arity is ambiguous, set either Pre or OnError", d.Name)
		}
	}

	sorted := append([]Descriptor(nil), descs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Order == sorted[i-1].Order {
			return nil, configError("pipeline descriptors %q and %q share order %v",
				sorted[i-1].Name, sorted[i].Name, sorted[i].Order)
		}
	}

	p := &Pipeline{
		opts: pipelineOptions{
			request:   requestOptions{maxBodyBytes: 1 << 20, maxMemory: 8 << 20, now: time.Now},
			withTrace: true,
		},
	}
	for _, d := range sorted {
		if d.Pre != nil {
			p.pre = append(p.pre, d)
		} else {
			p.onError = append(p.onError, d)
		}
	}
	return p, nil
}

// PreSteps lists the pre steps in execution order.
func (p *Pipeline) PreSteps() []Descriptor {
	return append([]Descriptor(nil), p.pre...)
}

// ErrorSteps lists the error steps in execution order.
func (p *Pipeline) ErrorSteps() []Descriptor {
	return append([]Descriptor(nil), p.onError...)
}

func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	traceID := logging.AcceptRequestID(r.Header.Get("X-Request-ID"))
	w.Header().Set("X-Request-ID", traceID)
	ctx := logging.ContextWithRequestID(r.Context(), traceID)
	r = r.WithContext(WithClientIP(ctx, clientIP(r)))

	rc, err := newRequestContext(w, r, traceID, p.opts.request)
	if err == nil {
		err = p.runPre(rc)
	}
	if err != nil && !rc.Written() {
		err = p.runErrors(rc, err)
		if !rc.Written() {
			p.render(rc, err)
		}
	}
	p.finish(rc)
}

func (p *Pipeline) runPre(rc *RequestContext) error {
	for _, d := range p.pre {
		if err := guard(func() error { return d.Pre(rc) }); err != nil {
			return err
		}
		if rc.Written() {
			return nil
		}
	}

	route, ok := rc.Mapping()
	if !ok {
		return newError(ErrRouteNotFound, nil, map[string]any{"path": rc.UseCase})
	}
	return guard(func() error { return Wrap(route.Handler)(rc) })
}

func (p *Pipeline) runErrors(rc *RequestContext, err error) error {
	for _, d := range p.onError {
		current := err
		next := guard(func() error { return d.OnError(rc, current) })
		if next != nil {
			err = next
		}
		if rc.Written() {
			break
		}
	}
	return err
}

func (p *Pipeline) render(rc *RequestContext, err error) {
	if p.opts.render != nil {
		p.opts.render(rc, err)
		return
	}
	WriteErrorResponse(rc.Writer, NewErrorResponse(err, rc.TraceID, p.opts.withTrace, time.Now()))
}

func (p *Pipeline) finish(rc *RequestContext) {
	elapsed := time.Since(rc.start)
	status := rc.Status()
	if p.opts.observe != nil {
		p.opts.observe(rc, status, elapsed)
	}
	for _, fn := range rc.after {
		if err := guard(func() error { fn(status, elapsed); return nil }); err != nil {
			logging.Ctx(rc.Request.Context()).Warn().Err(err).Msg("goGate: after-response hook failed")
		}
	}
}

// guard runs fn and converts a panic into an internal *Error carrying the
// stack.
func guard(fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			if v == http.ErrAbortHandler {
				panic(v)
			}
			cause, ok := v.(error)
			if !ok {
				cause = fmt.Errorf("panic: %v", v)
			}
			e := newError(ErrInternal, cause, nil)
			e.stack = debug.Stack()
			err = e
		}
	}()
	return fn()
}
