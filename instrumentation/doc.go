// Package instrumentation provides OpenTelemetry-based observability for the
// form relay: metrics for HTTP traffic, form submissions, security rejections
// and mail delivery, plus nil-safe tracing helpers.
//
// # Usage
//
//	inst, err := instrumentation.New(instrumentation.Config{
//	    ServiceName:    "formrelay",
//	    ServiceVersion: version,
//	    Enabled:        true,
//	})
//	if err != nil {
//	    return err
//	}
//	defer inst.Shutdown(ctx)
//
//	inst.Metrics().RecordSubmission(ctx, "contact", "accepted")
//
// When Config.Enabled is false, no-op providers are installed and every
// recording call is free. Components accept a nil *Instrumentation and must
// guard their recording paths accordingly.
//
// # Privacy
//
// Client IP addresses are only attached to telemetry when
// Config.LogClientIPs is true. Visitor email addresses are never attached;
// audit logging hashes them before they reach any sink.
package instrumentation
