// Package infra holds the technical adapters: the MQTT telemetry source
// and notifier, the Mongo store, metrics exporters and the logger. Each
// adapter depends only on interfaces declared by the core packages.
package infra
