package goGate

import (
	"context"
	"slices"
	"testing"
	"time"
)

func nextAuditEvent(t *testing.T, sink *ChannelSink) AuditEvent {
	t.Helper()
	select {
	case ev := <-sink.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
		return AuditEvent{}
	}
}

func TestAuditEventsForRefreshLifecycle(t *testing.T) {
	sink := NewChannelSink(16)
	env := newTestEnv(t, func(_ *testEnv, b *Builder, cfg *Config) {
		cfg.Audit.Enabled = true
		b.WithAuditSink(sink)
	})
	e := env.engine
	ctx := WithClientIP(context.Background(), "10.0.0.7")

	g, err := e.Login(ctx, Principal{ID: "p1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	ev := nextAuditEvent(t, sink)
	if ev.Type != AuditLogin || ev.PrincipalID != "p1" || !ev.Success || ev.TokenID == "" {
		t.Fatalf("unexpected login event %+v", ev)
	}
	if ev.IP != "10.0.0.7" {
		t.Fatalf("expected client ip on event, got %q", ev.IP)
	}
	if !ev.Timestamp.Equal(env.clock.Now().UTC()) {
		t.Fatalf("event timestamp %v does not come from the engine clock", ev.Timestamp)
	}

	if _, err := e.Refresh(ctx, g.RefreshToken, "wrong"); err == nil {
		t.Fatal("expected csrf failure")
	}
	ev = nextAuditEvent(t, sink)
	if ev.Type != AuditRefreshFailure || ev.Success || ev.Error != "INVALID_CSRF_TOKEN" {
		t.Fatalf("unexpected failure event %+v", ev)
	}

	if err := e.Logout(ctx, g.RefreshToken, true); err != nil {
		t.Fatalf("logout: %v", err)
	}
	ev = nextAuditEvent(t, sink)
	if ev.Type != AuditLogoutAll || ev.PrincipalID != "p1" {
		t.Fatalf("unexpected logout event %+v", ev)
	}
}

func TestAuditDisabledByDefault(t *testing.T) {
	env := newTestEnv(t)
	if env.engine.audit != nil {
		t.Fatal("audit dispatcher must not start when disabled")
	}
	if env.engine.AuditDropped() != 0 {
		t.Fatal("disabled audit cannot drop events")
	}
}

func TestAuditRetainsCredentialEventsByDefault(t *testing.T) {
	retain := DefaultConfig().Audit.RetainTypes
	for _, typ := range []string{AuditPasswordChanged, AuditPasswordReset, AuditLogoutAll} {
		if !slices.Contains(retain, typ) {
			t.Fatalf("%s must never be dropped, retain list is %v", typ, retain)
		}
	}

	// a full queue drops a login but waits for a logout_all
	sink := &parkingSink{release: make(chan struct{}), got: make(chan AuditEvent, 8)}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true, RetainTypes: retain}, sink)
	d.Emit(context.Background(), AuditEvent{Type: AuditLogin})
	d.Emit(context.Background(), AuditEvent{Type: AuditLogin})
	d.Emit(context.Background(), AuditEvent{Type: AuditLogin})
	go d.Emit(context.Background(), AuditEvent{Type: AuditLogoutAll})
	close(sink.release)

	seen := map[string]int{}
	for seen[AuditLogoutAll] == 0 {
		select {
		case ev := <-sink.got:
			seen[ev.Type]++
		case <-time.After(2 * time.Second):
			t.Fatalf("logout_all never delivered, saw %v", seen)
		}
	}
	d.Close()
	if d.DroppedByType()[AuditLogin] == 0 {
		t.Fatal("expected a login drop with a full queue")
	}
}

type parkingSink struct {
	release chan struct{}
	got     chan AuditEvent
}

func (s *parkingSink) Emit(_ context.Context, ev AuditEvent) {
	<-s.release
	s.got <- ev
}
