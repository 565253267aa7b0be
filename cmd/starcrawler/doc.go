// Package main hosts the starcrawler service entrypoint.
//
// Architecture overview:
//   - CLI: cobra commands (crawl, serve, export) share one service container built from Viper
//     configuration. crawl runs a single harvest to completion; serve exposes the API
//     long-lived; export renders CSV reports on demand.
//   - Query planning: the search grid is the cross product of configured languages, star
//     ranges, and creation windows, plus a broad per-language fallback. Each cell stays under
//     the 1,000-result search cap so pagination can reach every repository.
//   - Fetch pipeline: work units flow through a bounded in-memory queue to a fixed worker
//     pool. Each worker pages through one search predicate via the GraphQL client, honoring a
//     host-keyed client-side pacer plus the server's rate-limit hints, with a shared cooldown
//     gate and exponential backoff on transient failures.
//   - Dedup & delivery: node IDs are deduplicated run-wide; unique records are delivered in
//     batches to the configured database backend (postgres/sqlite/memory) and announced on
//     Pub/Sub when a topic is configured. The run audit trail records totals and final status.
//   - Observability: progress events are buffered by a hub and fanned out to zap logs,
//     Prometheus collectors, the /v1/status snapshot, and the audit trail heartbeat writer.
//     OpenTelemetry tracing exports to Google Cloud when a project is configured.
//
// Operational notes:
//   - Concurrency model: bounded queue + fixed worker pool sized by crawler.concurrency.
//     The first interrupt stops admitting work and drains in-flight pages; a second aborts.
//   - Rate limiting/backoff: client-side pacing via golang.org/x/time/rate keyed by host;
//     server rate-limit hints arm a cooldown gate that pauses all workers without charging
//     retry budgets.
//   - Cloud Run: the HTTP server listens on the configured port, health endpoints stay
//     lightweight, and SIGTERM drains cleanly.
//
// Quick checklist:
//   - Configure env vars: STARCRAWLER_GITHUB_TOKEN, STARCRAWLER_SERVER_PORT,
//     STARCRAWLER_CRAWLER_TARGET_COUNT, STARCRAWLER_CRAWLER_CONCURRENCY, database
//     (STARCRAWLER_DATABASE_*), storage (STARCRAWLER_STORAGE_*), and pubsub settings when
//     fanout beyond memory is required.
//   - Run locally: go run ./cmd/starcrawler crawl --config starcrawler.yaml (or rely on env
//     overrides).
package main
