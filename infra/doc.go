// Package infra contains technical adapters: the external allocator
// client, MQTT state publication, Sentry and metrics exporters. These
// packages should depend only on the interfaces defined in the core
// packages.
package infra
