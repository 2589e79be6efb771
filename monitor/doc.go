// Package monitor aggregates cache effectiveness telemetry across tiers.
//
// A Monitor records hits and misses per tier, network fetches, operation
// counts, and rolling operation latencies. It keeps a bounded in-memory ring
// of recent events for debugging and can export a JSON-friendly snapshot of
// everything it knows.
//
// Counters are always collected. When a metric.Registry is supplied the same
// signals are additionally mirrored as Prometheus metrics.
package monitor
