package logging

import (
	"context"
	"log/slog"

	"podscribe/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldPodcastID is the standardized structured logging key for podcast identifiers.
	FieldPodcastID = "podcast_id"
	// FieldEpisodeID is the standardized structured logging key for episode identifiers.
	FieldEpisodeID = "episode_id"
	// FieldEpisodeTitle is the standardized structured logging key for episode titles.
	FieldEpisodeTitle = "episode_title"
	// FieldBatchID is the standardized structured logging key for batch correlation identifiers.
	FieldBatchID = "batch_id"
	// FieldRunID is the standardized structured logging key for pipeline run identifiers.
	FieldRunID = "run_id"
	// FieldTaskID is the standardized structured logging key for remote transcription task identifiers.
	FieldTaskID = "task_id"
	// FieldRecordID is the standardized structured logging key for remote record identifiers.
	FieldRecordID = "record_id"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if id, ok := services.PodcastIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPodcastID, id))
	}
	if id, ok := services.BatchIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldBatchID, id))
	}
	if id, ok := services.EpisodeIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldEpisodeID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from
// the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
