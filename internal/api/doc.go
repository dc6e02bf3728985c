// Package api implements the neolinkd HTTP REST API and WebSocket stream.
//
// This package provides:
//   - REST endpoints to add, inspect, reconfigure and remove cameras
//   - camera commands: PTZ, presets, switches, LED, IR, reboot and snapshots
//   - read access to the host device registry and provider settings
//   - a WebSocket hub that pushes every camera state change
//   - Prometheus metrics on /api/v1/metrics
//
// # Security
//
// When api.jwt_secret is set, every route except /health and /metrics
// requires an HS256 bearer token (see package auth). WebSocket clients that
// cannot set headers pass the token as the token query parameter.
//
// # Graceful Degradation
//
// The server keeps serving state while the broker is down; only commands
// fail, with 502 and code broker_unavailable.
package api
