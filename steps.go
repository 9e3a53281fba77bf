package goGate

import (
	"errors"
	"net/http"
	"strings"
)

// Names and orders of the library steps. Application descriptors may use any
// other order, or reuse a name to replace a library step.
const (
	StepResolveRoute = "resolve-route"
	StepAuthenticate = "authenticate"
	StepAuthorize    = "authorize"
	StepAppState     = "app-state"
	StepRenderError  = "render-error"

	OrderResolveRoute = 100
	OrderAuthenticate = 200
	OrderAuthorize    = 300
	OrderAppState     = 400
)

func (e *Engine) defaultDescriptors() []Descriptor {
	return []Descriptor{
		Pre(StepResolveRoute, OrderResolveRoute, e.resolveRoute),
		Pre(StepAuthenticate, OrderAuthenticate, e.authenticate),
		Pre(StepAuthorize, OrderAuthorize, e.authorize),
		Pre(StepAppState, OrderAppState, e.checkAppState),
		OnError(StepRenderError, Last, e.renderErrorStep),
	}
}

var errNoMapping = errors.New("route resolution did not run before this step")

func (e *Engine) resolveRoute(rc *RequestContext) error {
	route, ok := e.routes.Lookup(rc.UseCase)
	if !ok {
		e.metricInc(MetricRouteNotFound)
		return newError(ErrRouteNotFound, nil, map[string]any{"path": rc.UseCase})
	}
	if method := strings.ToLower(rc.Request.Method); method != route.Method {
		rc.Writer.Header().Set("Allow", strings.ToUpper(route.Method))
		return newError(ErrMethodNotAllowed, nil, map[string]any{
			"method":  strings.ToUpper(method),
			"allowed": strings.ToUpper(route.Method),
			"path":    rc.UseCase,
		})
	}
	return rc.setMapping(route)
}

func (e *Engine) authenticate(rc *RequestContext) error {
	route, ok := rc.Mapping()
	if !ok {
		return newError(ErrInternal, errNoMapping, nil)
	}
	if route.Public() {
		return nil
	}
	s, err := e.Authenticate(rc.Request.Header.Get("Authorization"))
	if err != nil {
		return err
	}
	rc.Session = s
	return nil
}

func (e *Engine) authorize(rc *RequestContext) error {
	route, ok := rc.Mapping()
	if !ok {
		return newError(ErrInternal, errNoMapping, nil)
	}
	if route.Public() {
		return nil
	}
	p, ok := rc.Principal()
	if !ok {
		return newError(ErrMissingAuthorization, nil, nil)
	}

	d, err := e.Authorize(rc.Request.Context(), rc.UseCase, p.ID)
	rc.Authorization = &d
	if err != nil {
		return err
	}
	if !d.Authorized {
		return newError(ErrForbidden, nil, map[string]any{
			"useCase":      d.UseCase,
			"useCaseRoles": d.UseCaseRoles,
		})
	}
	return nil
}

func (e *Engine) checkAppState(rc *RequestContext) error {
	route, ok := rc.Mapping()
	if !ok {
		return newError(ErrInternal, errNoMapping, nil)
	}
	ctx := rc.Request.Context()
	if _, err := e.gate.Check(ctx, route.AppStates, rc.UseCase); err != nil {
		ge := classify(err)
		if errors.Is(ge, ErrAppStateBlocked) {
			e.metricInc(MetricAppStateBlocked)
			ev := AuditEvent{Type: AuditAppStateBlocked, UseCase: rc.UseCase}
			if p, ok := rc.Principal(); ok {
				ev.PrincipalID = p.ID
			}
			e.emitAudit(ctx, ev)
		}
		return ge
	}
	return nil
}

func (e *Engine) renderErrorStep(rc *RequestContext, err error) error {
	if !rc.Written() {
		e.renderError(rc, err)
	}
	return err
}

var _ http.Handler = (*Engine)(nil)
