package goGate

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/MrEthical07/goGate/session"
)

func mustLogin(t *testing.T, e *Engine, id string) *Grant {
	t.Helper()
	g, err := e.Login(context.Background(), Principal{ID: id})
	if err != nil {
		t.Fatalf("login %s: %v", id, err)
	}
	if g.AccessToken == "" || g.RefreshToken == "" || g.CSRFToken == "" {
		t.Fatalf("incomplete grant %+v", g)
	}
	return g
}

func refreshTokenID(t *testing.T, e *Engine, sealed string) string {
	t.Helper()
	raw, err := e.cookies.Decode(sealed)
	if err != nil {
		t.Fatalf("decode cookie: %v", err)
	}
	claims, err := e.jwt.ParseRefresh(raw)
	if err != nil {
		t.Fatalf("parse refresh: %v", err)
	}
	return claims.ID
}

func expectKind(t *testing.T, err error, sentinel error, status int) {
	t.Helper()
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected %v, got %v", sentinel, err)
	}
	var ge *Error
	if !errors.As(err, &ge) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if ge.Status() != status {
		t.Fatalf("expected status %d, got %d (%s)", status, ge.Status(), ge.Code)
	}
}

func TestRefreshRotatesInPlace(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine
	ctx := context.Background()

	first := mustLogin(t, e, "p1")
	env.clock.Advance(2 * time.Second)

	second, err := e.Refresh(ctx, first.RefreshToken, first.CSRFToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	if second.CSRFToken == first.CSRFToken {
		t.Fatal("csrf token was not rotated")
	}
	if !second.RefreshExpiresAt.After(first.RefreshExpiresAt) {
		t.Fatalf("expiry did not slide: %v -> %v", first.RefreshExpiresAt, second.RefreshExpiresAt)
	}
	if got, want := refreshTokenID(t, e, second.RefreshToken), refreshTokenID(t, e, first.RefreshToken); got != want {
		t.Fatalf("rotation changed token id %q -> %q", want, got)
	}
	if second.Principal.ID != "p1" {
		t.Fatalf("unexpected principal %+v", second.Principal)
	}

	// the replaced value no longer matches the record
	_, err = e.Refresh(ctx, first.RefreshToken, second.CSRFToken)
	expectKind(t, err, ErrRefreshTokenMismatch, http.StatusUnauthorized)

	if _, err := e.Refresh(ctx, second.RefreshToken, second.CSRFToken); err != nil {
		t.Fatalf("refresh with rotated token: %v", err)
	}
	if got := e.MetricsSnapshot().Counters[MetricRefreshSuccess]; got != 2 {
		t.Fatalf("expected 2 refresh successes, got %d", got)
	}
}

func TestRefreshWithinSameSecondRetiresOldValue(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine
	ctx := context.Background()

	// no clock movement: issue and rotation share iat and exp
	first := mustLogin(t, e, "p1")
	second, err := e.Refresh(ctx, first.RefreshToken, first.CSRFToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	oldRaw, err := e.cookies.Decode(first.RefreshToken)
	if err != nil {
		t.Fatalf("decode first: %v", err)
	}
	newRaw, err := e.cookies.Decode(second.RefreshToken)
	if err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if oldRaw == newRaw {
		t.Fatal("rotation in the same second reproduced the old token")
	}

	_, err = e.Refresh(ctx, first.RefreshToken, first.CSRFToken)
	expectKind(t, err, ErrRefreshTokenMismatch, http.StatusUnauthorized)
	_, err = e.Refresh(ctx, first.RefreshToken, second.CSRFToken)
	expectKind(t, err, ErrRefreshTokenMismatch, http.StatusUnauthorized)

	if _, err := e.Refresh(ctx, second.RefreshToken, second.CSRFToken); err != nil {
		t.Fatalf("refresh with rotated token: %v", err)
	}
}

func TestRefreshUnpersistedTokenIsMismatch(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine

	token, err := e.IssueRefreshToken(Principal{ID: "p1"})
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	sealed, err := e.cookies.Encode(token.Value)
	if err != nil {
		t.Fatalf("seal cookie: %v", err)
	}

	_, err = e.Refresh(context.Background(), sealed, "any-csrf")
	expectKind(t, err, ErrRefreshTokenMismatch, http.StatusUnauthorized)
}

func TestRefreshCheckOrder(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine
	ctx := context.Background()
	g := mustLogin(t, e, "p1")

	cases := []struct {
		name   string
		cookie string
		csrf   string
		want   error
	}{
		{"missing cookie wins over missing csrf", "", "", ErrInvalidRefreshToken},
		{"missing csrf", g.RefreshToken, "", ErrMissingCsrfToken},
		{"tampered cookie", g.RefreshToken + "x", g.CSRFToken, ErrInvalidRefreshToken},
		{"unsealed jwt", "not-a-cookie", g.CSRFToken, ErrInvalidRefreshToken},
		{"csrf mismatch", g.RefreshToken, "wrong", ErrInvalidCsrfToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Refresh(ctx, tc.cookie, tc.csrf)
			expectKind(t, err, tc.want, http.StatusUnauthorized)
		})
	}

	// failed attempts leave the record intact
	if _, err := e.Refresh(ctx, g.RefreshToken, g.CSRFToken); err != nil {
		t.Fatalf("refresh after failures: %v", err)
	}
}

func TestRefreshThrottle(t *testing.T) {
	env := newTestEnv(t, func(env *testEnv, b *Builder, cfg *Config) {
		cfg.Refresh.ThrottleEnabled = true
		cfg.Refresh.MaxAttempts = 2
		cfg.Refresh.Cooldown = time.Minute
		b.WithRedis(env.rdb)
	})
	e := env.engine
	ctx := context.Background()

	g := mustLogin(t, e, "p1")
	for i := 0; i < 2; i++ {
		next, err := e.Refresh(ctx, g.RefreshToken, g.CSRFToken)
		if err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
		g = next
	}

	_, err := e.Refresh(ctx, g.RefreshToken, g.CSRFToken)
	expectKind(t, err, ErrRefreshRateLimited, http.StatusTooManyRequests)

	env.mr.FastForward(2 * time.Minute)
	if _, err := e.Refresh(ctx, g.RefreshToken, g.CSRFToken); err != nil {
		t.Fatalf("refresh after cooldown: %v", err)
	}
}

func TestRefreshStoreOutageIsInternal(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine
	g := mustLogin(t, e, "p1")

	env.mr.Close()
	_, err := e.Refresh(context.Background(), g.RefreshToken, g.CSRFToken)
	expectKind(t, err, ErrInternal, http.StatusInternalServerError)
	if !errors.Is(err, session.ErrStoreUnavailable) {
		t.Fatalf("expected store cause, got %v", err)
	}
}

func TestLogoutRevokesOnlyThatCredential(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine
	ctx := context.Background()

	laptop := mustLogin(t, e, "p1")
	phone := mustLogin(t, e, "p1")

	if err := e.Logout(ctx, laptop.RefreshToken, false); err != nil {
		t.Fatalf("logout: %v", err)
	}

	_, err := e.Refresh(ctx, laptop.RefreshToken, laptop.CSRFToken)
	expectKind(t, err, ErrRefreshTokenMismatch, http.StatusUnauthorized)
	if _, err := e.Refresh(ctx, phone.RefreshToken, phone.CSRFToken); err != nil {
		t.Fatalf("other credential must survive single logout: %v", err)
	}
}

func TestGlobalLogoutRevokesEveryCredential(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine
	ctx := context.Background()

	laptop := mustLogin(t, e, "p1")
	phone := mustLogin(t, e, "p1")
	other := mustLogin(t, e, "p2")

	if err := e.Logout(ctx, laptop.RefreshToken, true); err != nil {
		t.Fatalf("global logout: %v", err)
	}

	for name, g := range map[string]*Grant{"laptop": laptop, "phone": phone} {
		_, err := e.Refresh(ctx, g.RefreshToken, g.CSRFToken)
		if !errors.Is(err, ErrRefreshTokenMismatch) {
			t.Fatalf("%s: expected mismatch after global logout, got %v", name, err)
		}
	}
	if _, err := e.Refresh(ctx, other.RefreshToken, other.CSRFToken); err != nil {
		t.Fatalf("another principal must not be affected: %v", err)
	}
}

func TestLogoutWithoutCookieIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.Logout(context.Background(), "", false); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if err := env.engine.Logout(context.Background(), "garbage", true); err != nil {
		t.Fatalf("expected no-op for undecodable cookie, got %v", err)
	}
}

func TestLogoutAcceptsExpiredCookie(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine
	g := mustLogin(t, e, "p1")

	// past the JWT expiry but inside the cookie MaxAge window
	env.clock.Advance(8 * 24 * time.Hour)
	if err := e.Logout(context.Background(), g.RefreshToken, false); err != nil {
		t.Fatalf("logout with expired token: %v", err)
	}
	if got := e.MetricsSnapshot().Counters[MetricLogout]; got != 1 {
		t.Fatalf("expected logout to be counted, got %d", got)
	}
}

func TestLoginRejectsEmptyPrincipal(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.Login(context.Background(), Principal{})
	expectKind(t, err, ErrInvalidPrincipal, http.StatusBadRequest)
}
