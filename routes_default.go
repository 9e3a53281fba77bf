package goGate

import (
	"github.com/MrEthical07/goGate/appstate"
)

// Default route paths. Registering an application route on the same path
// replaces the library route.
const (
	PathRefresh       = "/auth/refresh"
	PathLogout        = "/auth/logout"
	PathLogoutAll     = "/auth/logout/all"
	PathPassword      = "/auth/password"
	PathPasswordReset = "/auth/password/reset"
	PathAppState      = "/app/state"
	PathAppSchedule   = "/app/state/schedule"
)

type defaultRoute struct {
	path string
	cfg  RouteConfig
}

func (e *Engine) defaultRoutes() []defaultRoute {
	public := []string{RolePublic}
	every := appstate.AllStates()

	routes := []defaultRoute{
		{PathRefresh, RouteConfig{Method: "post", Handler: e.refreshRoute, Roles: public}},
		{PathLogout, RouteConfig{Method: "post", Handler: e.logoutRoute(false), Roles: public, AppStates: every}},
		{PathLogoutAll, RouteConfig{Method: "post", Handler: e.logoutRoute(true), Roles: public, AppStates: every}},
		{PathAppState, RouteConfig{Method: "get", Handler: e.currentStateRoute, Roles: public, AppStates: every}},
		{PathAppSchedule, RouteConfig{
			Method:    "post",
			Handler:   e.scheduleStateRoute,
			Roles:     append([]string(nil), e.config.AppState.AdminRoles...),
			AppStates: every,
		}},
	}
	if e.credentials != nil {
		routes = append(routes,
			defaultRoute{PathPassword, RouteConfig{Method: "post", Handler: e.changePasswordRoute, Roles: []string{RoleAuthenticated}}},
			defaultRoute{PathPasswordReset, RouteConfig{Method: "post", Handler: e.resetPasswordRoute, Roles: public}},
		)
	}
	return routes
}
