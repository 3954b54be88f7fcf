// Package ledger keeps a SQLite record of pipeline runs and their
// per-episode outcomes for operator inspection.
package ledger
