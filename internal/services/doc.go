// Package services defines shared utilities consumed by the pipeline stages
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp podcast, episode, batch, and run identifiers
//     for logging and correlation.
//   - Structured error markers plus the Wrap helper that classify remote-call
//     failures (transient vs unauthorized vs fatal).
//   - The Retry executor that owns attempt budgets, fixed backoff, and the
//     refresh-once-then-retry handling of authorization failures, keeping
//     retry decisions out of business logic.
//
// Use these helpers when wiring new remote calls so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
