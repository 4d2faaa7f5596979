// Package server exposes followmail over HTTP.
//
// # Key Components
//
// Server routes the JSON API used by the web client. Each request carries a
// signed session cookie; mail endpoints look up the user's stored refresh
// token, build a per-request Gmail client and answer from live Gmail data.
// Nothing fetched from Gmail is cached between requests.
//
// HealthChecker serves the /healthz, /readyz and /healthz/detailed probes.
//
// MetricsServer serves Prometheus metrics on a dedicated port, isolated from
// the API traffic.
//
// # Errors
//
// Every error response is a JSON object {"error": ..., "details": ...}.
// Missing or invalid sessions, users without a refresh token and credentials
// rejected by Google all answer 401, so the client can send the user back
// through login.
package server
