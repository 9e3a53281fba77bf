package main

import (
	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/logging"
	"github.com/MrEthical07/goGate/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// whoamiPath echoes the caller's principal and roles. Useful for checking a
// token minted with the token command.
const whoamiPath = "/whoami"

type whoamiResponse struct {
	Principal goGate.Principal `json:"principal"`
	Roles     []string         `json:"roles"`
}

// buildEngine assembles the gate over b. HTTP collectors are registered on
// reg.
func buildEngine(cfg *appConfig, b *backends, reg prometheus.Registerer) (*goGate.Engine, error) {
	builder := goGate.New().
		WithConfig(cfg.Gate).
		WithRefreshStore(b.refresh).
		WithRoleStore(b.roles).
		WithAppStateStore(b.appState).
		WithAuditSink(goGate.LogSink{Logger: logging.WithComponent("audit")})

	if b.redis != nil {
		builder = builder.WithRedis(b.redis)
	}

	var engine *goGate.Engine
	builder = builder.WithRoute(whoamiPath, goGate.RouteConfig{
		Method: "GET",
		Roles:  []string{goGate.RoleAuthenticated},
		Handler: func(rc *goGate.RequestContext) (any, error) {
			roles, err := engine.Roles(rc.Request.Context(), rc.Session.Principal.ID)
			if err != nil {
				return nil, err
			}
			return whoamiResponse{Principal: rc.Session.Principal, Roles: roles}, nil
		},
	})

	if reg != nil {
		m, err := middleware.NewMetrics(reg)
		if err != nil {
			return nil, err
		}
		builder = builder.WithDescriptor(middleware.Instrument(m))
	}
	if cfg.Server.LogRequests {
		builder = builder.WithDescriptor(middleware.RequestLogger())
	}

	if cfg.Server.ThrottlePerSecond > 0 {
		throttle := middleware.NewThrottle(middleware.ThrottleConfig{
			PerSecond: cfg.Server.ThrottlePerSecond,
			Burst:     cfg.Server.ThrottleBurst,
		})
		builder = builder.WithDescriptor(throttle.Descriptor())
	}

	var err error
	if engine, err = builder.Build(); err != nil {
		return nil, err
	}
	return engine, nil
}
