// Package crawler implements the star-count harvesting engine: the query
// space partitioner, the rate-limit-aware paginated fetcher, the run-scoped
// deduplicator, and the bounded worker pool that drives them until a target
// record count is reached or the partitioned space is exhausted.
package crawler
