package goGate

import (
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/MrEthical07/goGate/appstate"
	"github.com/goccy/go-json"
)

// HandlerFunc handles one mapped route. A non-nil result is written as JSON
// with status 200 unless the handler already wrote a response.
type HandlerFunc func(rc *RequestContext) (any, error)

// RouteConfig is the registration form of a route.
type RouteConfig struct {
	Method  string
	Handler HandlerFunc
	// Roles must be non-nil. An empty slice denies everyone; RolePublic skips
	// authentication; RoleAuthenticated admits any signed-in principal.
	Roles []string
	// AppStates lists the states in which the route runs. Empty means ACTIVE
	// only.
	AppStates []appstate.State
}

// Route is a registered, normalized route.
type Route struct {
	Path      string
	Method    string
	Handler   HandlerFunc
	Roles     []string
	AppStates []appstate.State
}

// Public reports whether the route skips authentication and authorization.
func (r Route) Public() bool {
	return slices.Contains(r.Roles, RolePublic)
}

func (r Route) clone() Route {
	r.Roles = slices.Clone(r.Roles)
	r.AppStates = slices.Clone(r.AppStates)
	return r
}

var allowedMethods = map[string]struct{}{
	"get":     {},
	"post":    {},
	"put":     {},
	"patch":   {},
	"delete":  {},
	"head":    {},
	"options": {},
}

// RouteRegistry maps normalized paths to routes. Lookups are exact; there
// is no pattern matching. The registry becomes read-only after Freeze.
type RouteRegistry struct {
	mu     sync.RWMutex
	routes map[string]Route
	frozen bool
}

func NewRouteRegistry() *RouteRegistry {
	return &RouteRegistry{routes: make(map[string]Route)}
}

// NormalizePath trims p and ensures a single leading slash.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimLeft(p, "/")
	return "/" + p
}

// Register describes the register operation and its observable behavior.
//
// Register validates cfg and stores it under the normalized path, replacing
// any route already registered there. Every validation failure and any call
// after Freeze returns a ConfigurationError.
func (r *RouteRegistry) Register(path string, cfg RouteConfig) error {
	key := NormalizePath(path)
	method := strings.ToLower(strings.TrimSpace(cfg.Method))

	if _, ok := allowedMethods[method]; !ok {
		return configError("route %s: unsupported method %q", key, cfg.Method)
	}
	if cfg.Handler == nil {
		return configError("route %s: handler is required", key)
	}
	if cfg.Roles == nil {
		return configError("route %s: roles must be an array", key)
	}

	states := cfg.AppStates
	if len(states) == 0 {
		states = []appstate.State{appstate.StateActive}
	}
	for _, s := range states {
		if !s.Valid() {
			return configError("route %s: unknown app state %q", key, s)
		}
	}

	route := Route{
		Path:      key,
		Method:    method,
		Handler:   cfg.Handler,
		Roles:     slices.Clone(cfg.Roles),
		AppStates: slices.Clone(states),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return configError("route %s: registry is frozen", key)
	}
	r.routes[key] = route
	return nil
}

// Lookup returns a copy of the route registered at the normalized path.
func (r *RouteRegistry) Lookup(path string) (Route, bool) {
	r.mu.RLock()
	route, ok := r.routes[NormalizePath(path)]
	r.mu.RUnlock()
	if !ok {
		return Route{}, false
	}
	return route.clone(), true
}

// RequiredRoles exposes the registry as the authorization requirement source.
func (r *RouteRegistry) RequiredRoles(useCase string) ([]string, bool) {
	route, ok := r.Lookup(useCase)
	if !ok {
		return nil, false
	}
	return route.Roles, true
}

// Routes lists every registered route sorted by path.
func (r *RouteRegistry) Routes() []Route {
	r.mu.RLock()
	out := make([]Route, 0, len(r.routes))
	for _, route := range r.routes {
		out = append(out, route.clone())
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Route) int { return strings.Compare(a.Path, b.Path) })
	return out
}

func (r *RouteRegistry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

func (r *RouteRegistry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Wrap adapts h into a pipeline step. The handler's result is written as JSON
// unless the handler wrote its own response; its error is returned for the
// error steps.
func Wrap(h HandlerFunc) StepFunc {
	return func(rc *RequestContext) error {
		result, err := h(rc)
		if err != nil {
			return err
		}
		if rc.Written() {
			return nil
		}
		return writeJSON(rc.Writer, http.StatusOK, result)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, err = w.Write(append(data, '\n'))
	return err
}
