// Package monitor counts what the bridge stages do and exposes it as
// periodic log records and an HTTP health endpoint.
package monitor
