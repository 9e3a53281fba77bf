package goGate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goGate/appstate"
)

func withRoute(path string, cfg RouteConfig) envOption {
	return func(_ *testEnv, b *Builder, _ *Config) {
		b.WithRoute(path, cfg)
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) map[string]any {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["code"] != code {
		t.Fatalf("expected code %s, got %v", code, body["code"])
	}
	if int(body["status"].(float64)) != status {
		t.Fatalf("body status %v does not match %d", body["status"], status)
	}
	params, ok := body["params"].(map[string]any)
	if !ok {
		t.Fatalf("params must always be an object, got %T", body["params"])
	}
	return params
}

func TestAppStateGateScenario(t *testing.T) {
	env := newTestEnv(t,
		withRoute("/orders", RouteConfig{Method: "get", Handler: okHandler("orders"), Roles: []string{RoleAuthenticated}}),
		withRoute("/maintenance/report", RouteConfig{
			Method:    "get",
			Handler:   okHandler("report"),
			Roles:     []string{RoleAuthenticated},
			AppStates: []appstate.State{appstate.StateInMaintenance},
		}),
	)
	e := env.engine
	if _, err := e.ScheduleState(context.Background(), appstate.Entry{
		State:         appstate.StateActive,
		EffectiveFrom: env.clock.Now(),
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	env.clock.Advance(time.Second)

	auth := bearer(env.accessToken(t, "p1"))

	rec := env.do(t, http.MethodGet, "/orders", "", auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("ACTIVE route should pass, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/maintenance/report", "", auth)
	params := expectError(t, rec, http.StatusServiceUnavailable, "APP_STATE_BLOCKED")
	denied, ok := params["deniedState"].(map[string]any)
	if !ok || denied["appState"] != "ACTIVE" {
		t.Fatalf("expected deniedState.appState ACTIVE, got %v", params["deniedState"])
	}
	allowed, _ := params["allowedStates"].([]any)
	if len(allowed) != 1 || allowed[0] != "IN_MAINTENANCE" {
		t.Fatalf("unexpected allowedStates %v", params["allowedStates"])
	}
	if got := e.MetricsSnapshot().Counters[MetricAppStateBlocked]; got != 1 {
		t.Fatalf("expected one blocked request, got %d", got)
	}
}

func TestUnscheduledAppIsInitial(t *testing.T) {
	env := newTestEnv(t,
		withRoute("/orders", RouteConfig{Method: "get", Handler: okHandler("orders"), Roles: []string{RoleAuthenticated}}),
	)

	rec := env.do(t, http.MethodGet, "/orders", "", bearer(env.accessToken(t, "p1")))
	params := expectError(t, rec, http.StatusServiceUnavailable, "APP_STATE_BLOCKED")
	denied := params["deniedState"].(map[string]any)
	if denied["appState"] != "INITIAL" || denied["isDefault"] != true {
		t.Fatalf("expected default INITIAL state, got %v", denied)
	}

	rec = env.do(t, http.MethodGet, PathAppState, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("state route runs in every state, got %d", rec.Code)
	}
	if decodeBody(t, rec)["appState"] != "INITIAL" {
		t.Fatalf("unexpected current state %s", rec.Body.String())
	}
}

func TestRoleScenario(t *testing.T) {
	env := newTestEnv(t, withActiveState(),
		withRoute("/reports", RouteConfig{Method: "get", Handler: okHandler("reports"), Roles: []string{"Admin", "Auditor"}}),
	)
	ctx := context.Background()
	if err := env.roles.GrantRole(ctx, "reader", "User"); err != nil {
		t.Fatal(err)
	}
	if err := env.roles.GrantRole(ctx, "boss", "Admin"); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodGet, "/reports", "", bearer(env.accessToken(t, "reader")))
	params := expectError(t, rec, http.StatusForbidden, "FORBIDDEN")
	if params["useCase"] != "/reports" {
		t.Fatalf("unexpected useCase %v", params["useCase"])
	}
	roles, _ := params["useCaseRoles"].([]any)
	if len(roles) != 2 || roles[0] != "Admin" || roles[1] != "Auditor" {
		t.Fatalf("unexpected useCaseRoles %v", params["useCaseRoles"])
	}

	rec = env.do(t, http.MethodGet, "/reports", "", bearer(env.accessToken(t, "boss")))
	if rec.Code != http.StatusOK {
		t.Fatalf("admin should pass, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestEmptyRolesDenyEveryone(t *testing.T) {
	env := newTestEnv(t, withActiveState(),
		withRoute("/locked", RouteConfig{Method: "get", Handler: okHandler("x"), Roles: []string{}}),
	)
	_ = env.roles.GrantRole(context.Background(), "boss", "Admin")

	rec := env.do(t, http.MethodGet, "/locked", "", bearer(env.accessToken(t, "boss")))
	expectError(t, rec, http.StatusForbidden, "FORBIDDEN")
}

func TestAuthenticationFailures(t *testing.T) {
	env := newTestEnv(t, withActiveState(),
		withRoute("/me", RouteConfig{Method: "get", Handler: func(rc *RequestContext) (any, error) {
			p, _ := rc.Principal()
			return p, nil
		}, Roles: []string{RoleAuthenticated}}),
	)

	expired, err := env.engine.IssueAccessToken(Principal{ID: "p1"}, time.Second)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name   string
		header http.Header
		code   string
	}{
		{"missing header", nil, "MISSING_AUTHORIZATION"},
		{"basic scheme", http.Header{"Authorization": []string{"Basic dXNlcjpwYXNz"}}, "INVALID_AUTH_SCHEME"},
		{"bearer without token", http.Header{"Authorization": []string{"Bearer"}}, "INVALID_AUTH_SCHEME"},
		{"garbage token", bearer("not.a.jwt"), "INVALID_ACCESS_TOKEN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/me", "", tc.header)
			expectError(t, rec, http.StatusUnauthorized, tc.code)
		})
	}

	env.clock.Advance(time.Minute)
	rec := env.do(t, http.MethodGet, "/me", "", bearer(expired))
	expectError(t, rec, http.StatusUnauthorized, "ACCESS_TOKEN_EXPIRED")

	rec = env.do(t, http.MethodGet, "/me", "", bearer(env.accessToken(t, "p1")))
	if rec.Code != http.StatusOK || decodeBody(t, rec)["id"] != "p1" {
		t.Fatalf("unexpected response %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRouteResolutionFailures(t *testing.T) {
	env := newTestEnv(t, withActiveState(),
		withRoute("/orders", RouteConfig{Method: "post", Handler: okHandler("created"), Roles: []string{RoleAuthenticated}}),
	)

	rec := env.do(t, http.MethodGet, "/missing", "", nil)
	params := expectError(t, rec, http.StatusNotFound, "ROUTE_NOT_FOUND")
	if params["path"] != "/missing" {
		t.Fatalf("unexpected params %v", params)
	}

	rec = env.do(t, http.MethodGet, "/orders", "", nil)
	params = expectError(t, rec, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED")
	if rec.Header().Get("Allow") != "POST" || params["allowed"] != "POST" {
		t.Fatalf("expected POST to be allowed, header %q params %v", rec.Header().Get("Allow"), params)
	}

	if got := env.engine.MetricsSnapshot().Counters[MetricRouteNotFound]; got != 1 {
		t.Fatalf("expected one route miss, got %d", got)
	}
}

func TestPublicRouteSkipsAuthentication(t *testing.T) {
	env := newTestEnv(t, withActiveState(),
		withRoute("ping", RouteConfig{Method: "GET", Handler: func(rc *RequestContext) (any, error) {
			if rc.Session != nil || rc.Authorization != nil {
				t.Errorf("public route must not authenticate")
			}
			return map[string]string{"pong": rc.UseCase}, nil
		}, Roles: []string{RolePublic}}),
	)

	rec := env.do(t, http.MethodGet, "/ping", "", http.Header{"Authorization": []string{"Bearer junk"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if decodeBody(t, rec)["pong"] != "/ping" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/nope", "", http.Header{"X-Request-ID": []string{"trace-1"}})
	body := decodeBody(t, rec)
	if body["traceId"] != "trace-1" || rec.Header().Get("X-Request-ID") != "trace-1" {
		t.Fatalf("request id not propagated: header %q body %v", rec.Header().Get("X-Request-ID"), body["traceId"])
	}
}

func TestUnusableRequestIDIsReplaced(t *testing.T) {
	env := newTestEnv(t)
	for _, bad := range []string{strings.Repeat("a", 4096), "evil\"}, {\"x", "two words"} {
		rec := env.do(t, http.MethodGet, "/nope", "", http.Header{"X-Request-ID": []string{bad}})
		got := rec.Header().Get("X-Request-ID")
		if got == bad || got == "" || len(got) > 128 {
			t.Fatalf("caller id %.20q was echoed as %.20q", bad, got)
		}
		if body := decodeBody(t, rec); body["traceId"] != got {
			t.Fatalf("body trace id %v does not match header %q", body["traceId"], got)
		}
	}
}

func TestRefreshOverHTTP(t *testing.T) {
	var env *testEnv
	env = newTestEnv(t, withActiveState(),
		withRoute("/login", RouteConfig{Method: "post", Roles: []string{RolePublic}, Handler: func(rc *RequestContext) (any, error) {
			user, _ := rc.Input["user"].(string)
			g, err := env.engine.SignIn(rc.Writer, rc.Request, Principal{ID: user})
			if err != nil {
				return nil, err
			}
			return g, nil
		}}),
	)
	csrfHeader := env.engine.Config().Refresh.CSRFHeader

	rec := env.do(t, http.MethodPost, "/login", `{"user":"p1"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed %d: %s", rec.Code, rec.Body.String())
	}
	login := decodeBody(t, rec)
	if _, leaked := login["refreshToken"]; leaked {
		t.Fatal("refresh token must not appear in the body")
	}
	cookie := findCookie(t, rec, "refresh_token")
	if !cookie.HttpOnly || cookie.Path != "/auth" {
		t.Fatalf("unexpected cookie attributes %+v", cookie)
	}
	csrf := rec.Header().Get(csrfHeader)
	if csrf == "" {
		t.Fatal("expected csrf header on sign-in")
	}

	rec = env.do(t, http.MethodPost, PathRefresh, "", http.Header{
		"Cookie":   []string{cookieHeader(cookie)},
		csrfHeader: []string{csrf},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh failed %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["accessToken"] == "" || body["principal"].(map[string]any)["id"] != "p1" {
		t.Fatalf("unexpected refresh body %v", body)
	}
	rotated := findCookie(t, rec, "refresh_token")
	if rotated.Value == cookie.Value {
		t.Fatal("cookie was not rotated")
	}
	newCSRF := rec.Header().Get(csrfHeader)

	// the old CSRF token is no longer bound to the record
	rec = env.do(t, http.MethodPost, PathRefresh, "", http.Header{
		"Cookie":   []string{cookieHeader(rotated)},
		csrfHeader: []string{csrf},
	})
	expectError(t, rec, http.StatusUnauthorized, "INVALID_CSRF_TOKEN")

	rec = env.do(t, http.MethodPost, PathLogout, "", http.Header{"Cookie": []string{cookieHeader(rotated)}})
	if rec.Code != http.StatusOK {
		t.Fatalf("logout failed %d: %s", rec.Code, rec.Body.String())
	}
	if cleared := findCookie(t, rec, "refresh_token"); cleared.MaxAge >= 0 || cleared.Value != "" {
		t.Fatalf("expected cleared cookie, got %+v", cleared)
	}

	rec = env.do(t, http.MethodPost, PathRefresh, "", http.Header{
		"Cookie":   []string{cookieHeader(rotated)},
		csrfHeader: []string{newCSRF},
	})
	expectError(t, rec, http.StatusUnauthorized, "REFRESH_TOKEN_MISMATCH")
}

func findCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

func cookieHeader(c *http.Cookie) string {
	return (&http.Cookie{Name: c.Name, Value: c.Value}).String()
}

func TestPasswordRoutes(t *testing.T) {
	env := newTestEnv(t, withActiveState())
	e := env.engine
	ctx := context.Background()

	hash, err := e.HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	env.creds.hashes["p1"] = hash
	g := mustLogin(t, e, "p1")
	auth := bearer(env.accessToken(t, "p1"))

	rec := env.do(t, http.MethodPost, PathPassword, `{"current":"wrong password","next":"another long one"}`, auth)
	expectError(t, rec, http.StatusUnauthorized, "INVALID_CREDENTIALS")

	rec = env.do(t, http.MethodPost, PathPassword, `{"current":"correct horse battery","next":"short"}`, auth)
	expectError(t, rec, http.StatusBadRequest, "PASSWORD_POLICY")

	rec = env.do(t, http.MethodPost, PathPassword, `{"current":"correct horse battery"}`, auth)
	expectError(t, rec, http.StatusBadRequest, "VALIDATION_FAILED")

	rec = env.do(t, http.MethodPost, PathPassword, `{"current":"correct horse battery","next":"another long one"}`, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("change password failed %d: %s", rec.Code, rec.Body.String())
	}
	_, err = e.Refresh(ctx, g.RefreshToken, g.CSRFToken)
	expectKind(t, err, ErrRefreshTokenMismatch, http.StatusUnauthorized)

	token, err := e.IssueResetToken("p1")
	if err != nil {
		t.Fatalf("issue reset token: %v", err)
	}
	rec = env.do(t, http.MethodPost, PathPasswordReset, `{"token":"`+token+`","next":"reset password value"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset failed %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, PathPasswordReset, `{"token":"bogus","next":"reset password value"}`, nil)
	expectError(t, rec, http.StatusUnauthorized, "INVALID_RESET_TOKEN")

	unknown, _ := e.IssueResetToken("ghost")
	err = e.ResetPassword(ctx, unknown, "reset password value")
	if !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("unknown principal must read as an invalid token, got %v", err)
	}
}

func TestPasswordRoutesNeedCredentialStore(t *testing.T) {
	env := newTestEnv(t, withActiveState(), func(_ *testEnv, b *Builder, _ *Config) {
		b.WithCredentialStore(nil)
	})
	if _, ok := env.engine.Routes().Lookup(PathPassword); ok {
		t.Fatal("password route registered without a credential store")
	}
	err := env.engine.ChangePassword(context.Background(), "p1", "a", "b")
	if !errors.Is(err, ErrCredentialsNotConfigured) {
		t.Fatalf("expected ErrCredentialsNotConfigured, got %v", err)
	}
}

func TestScheduleRoute(t *testing.T) {
	env := newTestEnv(t)
	_ = env.roles.GrantRole(context.Background(), "ops", "Admin")
	from := env.clock.Now().Add(-time.Second).UTC().Format(time.RFC3339)

	rec := env.do(t, http.MethodPost, PathAppSchedule, `{"state":"active","effectiveFrom":"`+from+`"}`, bearer(env.accessToken(t, "p1")))
	expectError(t, rec, http.StatusForbidden, "FORBIDDEN")

	rec = env.do(t, http.MethodPost, PathAppSchedule, `{"state":"bogus","effectiveFrom":"`+from+`"}`, bearer(env.accessToken(t, "ops")))
	expectError(t, rec, http.StatusBadRequest, "VALIDATION_FAILED")

	rec = env.do(t, http.MethodPost, PathAppSchedule, `{"state":"active","effectiveFrom":"`+from+`","reason":"launch"}`, bearer(env.accessToken(t, "ops")))
	if rec.Code != http.StatusOK {
		t.Fatalf("schedule failed %d: %s", rec.Code, rec.Body.String())
	}
	current := decodeBody(t, rec)["current"].(map[string]any)
	if current["appState"] != "ACTIVE" || current["reason"] != "launch" {
		t.Fatalf("unexpected current state %v", current)
	}

	rec = env.do(t, http.MethodGet, PathAppState, "", nil)
	if decodeBody(t, rec)["appState"] != "ACTIVE" {
		t.Fatalf("schedule not visible: %s", rec.Body.String())
	}
}

func TestInputMergesQueryAndBody(t *testing.T) {
	env := newTestEnv(t, withActiveState(),
		withRoute("/echo", RouteConfig{Method: "post", Roles: []string{RolePublic}, Handler: func(rc *RequestContext) (any, error) {
			return rc.Input, nil
		}}),
	)

	rec := env.do(t, http.MethodPost, "/echo?a=1&b=2&tag=x&tag=y", `{"b":"body","c":3}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("echo failed %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["a"] != "1" || body["b"] != "body" || body["c"] != float64(3) {
		t.Fatalf("unexpected merged input %v", body)
	}
	if tags, _ := body["tag"].([]any); len(tags) != 2 {
		t.Fatalf("repeated query values must stay a list, got %v", body["tag"])
	}

	rec = env.do(t, http.MethodPost, "/echo", `{"b":`, nil)
	expectError(t, rec, http.StatusBadRequest, "VALIDATION_FAILED")

	rec = env.do(t, http.MethodPost, "/echo", `["not","an","object"]`, nil)
	expectError(t, rec, http.StatusBadRequest, "VALIDATION_FAILED")
}

func TestBodyLimit(t *testing.T) {
	env := newTestEnv(t, withActiveState(), func(_ *testEnv, b *Builder, cfg *Config) {
		cfg.Request.MaxBodyBytes = 16
		b.WithRoute("/echo", RouteConfig{Method: "post", Roles: []string{RolePublic}, Handler: okHandler("ok")})
	})

	rec := env.do(t, http.MethodPost, "/echo", `{"payload":"`+strings.Repeat("x", 64)+`"}`, nil)
	params := expectError(t, rec, http.StatusBadRequest, "VALIDATION_FAILED")
	fields, _ := params["fields"].([]any)
	if len(fields) != 1 {
		t.Fatalf("expected one field error, got %v", params["fields"])
	}
}

func TestHandlerPanicRendersInternalError(t *testing.T) {
	route := withRoute("/boom", RouteConfig{Method: "get", Roles: []string{RolePublic}, Handler: func(*RequestContext) (any, error) {
		panic("kaboom")
	}})

	env := newTestEnv(t, withActiveState(), route)
	rec := env.do(t, http.MethodGet, "/boom", "", nil)
	expectError(t, rec, http.StatusInternalServerError, "INTERNAL_ERROR")
	trace, _ := decodeBody(t, rec)["trace"].([]any)
	if len(trace) == 0 || !strings.Contains(trace[0].(string), "kaboom") {
		t.Fatalf("expected panic in trace, got %v", trace)
	}

	prod := newTestEnv(t, withActiveState(), route, func(_ *testEnv, _ *Builder, cfg *Config) {
		cfg.Environment = EnvironmentProduction
		cfg.Refresh.CookieSecure = true
	})
	rec = prod.do(t, http.MethodGet, "/boom", "", nil)
	expectError(t, rec, http.StatusInternalServerError, "INTERNAL_ERROR")
	if _, ok := decodeBody(t, rec)["trace"]; ok {
		t.Fatal("production responses must not carry a trace")
	}
}

func TestHandlerErrorIsRendered(t *testing.T) {
	env := newTestEnv(t, withActiveState(),
		withRoute("/fail", RouteConfig{Method: "get", Roles: []string{RolePublic}, Handler: func(*RequestContext) (any, error) {
			return nil, ErrForbidden
		}}),
	)
	rec := env.do(t, http.MethodGet, "/fail", "", nil)
	expectError(t, rec, http.StatusForbidden, "FORBIDDEN")
}

func TestCustomDescriptors(t *testing.T) {
	handled := false
	env := newTestEnv(t, withActiveState(), func(_ *testEnv, b *Builder, _ *Config) {
		b.WithRoute("/short", RouteConfig{Method: "get", Roles: []string{RolePublic}, Handler: func(*RequestContext) (any, error) {
			handled = true
			return "unreachable", nil
		}})
		b.WithDescriptor(Pre("short-circuit", 50, func(rc *RequestContext) error {
			if rc.UseCase == "/short" {
				rc.Writer.WriteHeader(http.StatusNoContent)
			}
			return nil
		}))
		b.WithDescriptor(OnError("hide-missing", 10, func(rc *RequestContext, err error) error {
			if errors.Is(err, ErrRouteNotFound) {
				return ErrForbidden
			}
			return nil
		}))
	})

	rec := env.do(t, http.MethodGet, "/short", "", nil)
	if rec.Code != http.StatusNoContent || handled {
		t.Fatalf("pre step response must end the pipeline: status %d handled %v", rec.Code, handled)
	}

	rec = env.do(t, http.MethodGet, "/missing", "", nil)
	expectError(t, rec, http.StatusForbidden, "FORBIDDEN")

	names := make([]string, 0)
	for _, d := range env.engine.Pipeline().PreSteps() {
		names = append(names, d.Name)
	}
	want := []string{"short-circuit", StepResolveRoute, StepAuthenticate, StepAuthorize, StepAppState}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected pre steps %v", names)
	}
}

func TestAfterResponseHook(t *testing.T) {
	got := make(chan int, 1)
	env := newTestEnv(t, withActiveState(),
		withRoute("/hook", RouteConfig{Method: "get", Roles: []string{RolePublic}, Handler: func(rc *RequestContext) (any, error) {
			rc.AfterResponse(func(status int, _ time.Duration) { got <- status })
			return "ok", nil
		}}),
	)
	env.do(t, http.MethodGet, "/hook", "", nil)
	select {
	case status := <-got:
		if status != http.StatusOK {
			t.Fatalf("unexpected status %d", status)
		}
	default:
		t.Fatal("after-response hook did not run")
	}
}
