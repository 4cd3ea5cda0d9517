// Package metrics provides Prometheus metrics for purge runs.
//
// Three groups of collectors are exposed:
//   - Purge phase timings fed by the profiler (one observation per phase)
//   - Store statement latency and affected rows fed by the SQL gateway
//   - Reconciliation notification outcomes fed by the listeners
//
// Every group has a constructor registering with the default registry and a
// WithRegistry variant for tests. A one-shot purge run writes the gathered
// metrics to a node-exporter textfile with WriteTextfile.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	phases := metrics.NewPurgeMetricsWithRegistry(reg)
//	prof := profiler.New([]profiler.Sink{profiler.NewMetricsSink(phases)})
//	...
//	_ = metrics.WriteTextfile(path, reg)
package metrics
