// Package prometheus renders goVerify metrics in Prometheus text exposition
// format.
//
// [NewExporter] accepts any [Source], usually a *goVerify.Engine, and exposes
// an [http.Handler]. Counters are named goverify_*_total and the verify latency
// histogram is goverify_verify_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
