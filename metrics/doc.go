/*
Package metrics exposes Prometheus collectors for the unit-of-work runtime.

Collectors register with the default registry on import. Hosts serve them with promhttp:

	http.Handle("/metrics", promhttp.Handler())

Context lifecycle events are labeled by transaction scope; provider factory startup is
labeled by factory name.
*/
package metrics
