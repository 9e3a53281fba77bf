// Package otel publishes goGate engine counters through OpenTelemetry
// asynchronous instruments.
//
// Each counter becomes an Int64ObservableCounter; the latency histogram is
// exposed as one Int64ObservableGauge per cumulative bucket. Callers own the
// MeterProvider and pass a Meter to [NewExporter].
package otel
