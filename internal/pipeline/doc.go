// Package pipeline ties the pieces together: subscription sync, episode
// selection, transcription orchestration, ledger bookkeeping, and feed
// rendering, under a single-instance file lock.
package pipeline
