package services

import "context"

type contextKey string

const (
	podcastIDKey contextKey = "podcast_id"
	episodeIDKey contextKey = "episode_id"
	batchIDKey   contextKey = "batch_id"
	runIDKey     contextKey = "run_id"
)

// WithPodcastID annotates context with the podcast identifier.
func WithPodcastID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, podcastIDKey, id)
}

// PodcastIDFromContext extracts the podcast identifier if present.
func PodcastIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(podcastIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithEpisodeID annotates context with the episode identifier.
func WithEpisodeID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, episodeIDKey, id)
}

// EpisodeIDFromContext extracts the episode identifier if present.
func EpisodeIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(episodeIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithBatchID annotates context with the batch correlation identifier.
func WithBatchID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, batchIDKey, id)
}

// BatchIDFromContext extracts the batch correlation identifier if present.
func BatchIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(batchIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRunID annotates context with the pipeline run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the pipeline run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
