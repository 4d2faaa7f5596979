// Package instrumentation provides OpenTelemetry instrumentation for the
// followmail server.
//
// # Metrics
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, route pattern, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//
// Google API Metrics:
//   - google_api_operations_total: Counter of Google API operations by service, operation, status
//   - google_api_operation_duration_seconds: Histogram of Google API operation durations
//
// OAuth Metrics:
//   - oauth_auth_total: Counter of login callbacks by result
//   - oauth_token_refresh_total: Counter of rejected refresh tokens by result
//
// Aggregation Metrics:
//   - followmail_queries_total: Counter of per-address searches by role and status
//   - followmail_query_duration_seconds: Histogram of per-address search durations
//   - followmail_replies_total: Counter of sent replies and saved drafts
//   - followmail_follow_changes_total: Counter of follow list changes by role
//
// # Tracing
//
// Spans are created for API requests (named after the route pattern) and
// for Google API calls (google.<service>.<operation>).
//
// # Audit
//
// AuditLogger writes one record per login, reply, draft and follow list
// change. Full addresses are only included when AUDIT_LOGGING_INCLUDE_PII
// is set.
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: followmail)
//   - OTEL_SERVICE_INSTANCE_ID: Instance id (default: hostname)
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII: Audit trail switches
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	metrics := provider.Metrics()
//	metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail,
//		instrumentation.OperationList, instrumentation.StatusSuccess, time.Since(start))
package instrumentation
