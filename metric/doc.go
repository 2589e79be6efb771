// Package metric manages Prometheus metric registration and exposure for
// tiercache components.
//
// The Registry wraps a private prometheus.Registry so that multiple cache
// instances in one process cannot collide on the default global registry.
// Components register named collectors under a component name; duplicate
// registrations are rejected with a classified error instead of panicking.
//
// The Server exposes the registry over HTTP via promhttp, typically on a
// loopback metrics port, with an explicit Start/Stop lifecycle owned by the
// application's composition root.
package metric
