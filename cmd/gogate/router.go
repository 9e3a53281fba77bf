package main

import (
	"context"
	"net/http"
	"time"

	goGate "github.com/MrEthical07/goGate"
	promexport "github.com/MrEthical07/goGate/metrics/export/prometheus"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// storePinger is implemented by stores that can measure a backend round trip.
type storePinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

const healthPingTimeout = 2 * time.Second

// newRouter mounts the gate under every path not claimed by the operational
// endpoints. reg must already hold the HTTP collectors; the engine collector
// is added here. /healthz pings every store in pingers.
func newRouter(engine *goGate.Engine, reg *prometheus.Registry, metricsPath string, pingers map[string]storePinger) (http.Handler, error) {
	if err := reg.Register(promexport.NewCollector(engine)); err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		unavailable := func(body map[string]string) {
			body["status"] = "unavailable"
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(body)
		}

		current, err := engine.CurrentState(req.Context())
		if err != nil {
			unavailable(map[string]string{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(req.Context(), healthPingTimeout)
		defer cancel()
		latency := make(map[string]float64, len(pingers))
		for name, p := range pingers {
			rtt, err := p.Ping(ctx)
			if err != nil {
				unavailable(map[string]string{"store": name, "error": err.Error()})
				return
			}
			latency[name] = float64(rtt.Microseconds()) / 1000
		}

		body := map[string]any{"status": "ok", "appState": current.State}
		if len(latency) > 0 {
			body["storeLatencyMs"] = latency
		}
		_ = json.NewEncoder(w).Encode(body)
	})
	if metricsPath != "" {
		r.Handle(metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	r.Handle("/*", engine)
	return r, nil
}

// newRegistry returns a registry carrying the Go runtime and process
// collectors next to the gate's own.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
