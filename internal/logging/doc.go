// Package logging configures slog output for the pipeline and standardizes
// the structured field keys (component, podcast_id, episode_id, batch_id)
// used across packages so runs can be correlated from logs alone.
package logging
