package transcribe

import (
	"context"
	"log/slog"

	"podscribe/internal/logging"
	"podscribe/internal/podcastapi"
	"podscribe/internal/services"
	"podscribe/internal/transcript"
)

// ResultFetcher retrieves the two halves of a finished job's output.
type ResultFetcher interface {
	FetchTranscript(ctx context.Context, taskID string) ([]transcript.Utterance, error)
	FetchAnnotations(ctx context.Context, taskID string) (*transcript.Annotations, error)
}

// Assembler turns a completed job's remote results into a transcript
// document. Both fetches must succeed; a document is never written from
// half a result.
type Assembler struct {
	fetcher ResultFetcher
	logger  *slog.Logger
}

// NewAssembler builds an assembler backed by the given fetcher.
func NewAssembler(fetcher ResultFetcher, logger *slog.Logger) *Assembler {
	return &Assembler{
		fetcher: fetcher,
		logger:  logging.NewComponentLogger(logger, "assembler"),
	}
}

// Assemble fetches the transcript and annotations for the job and builds
// the document for the episode. The document is deterministic for a given
// pair of fetch results.
func (a *Assembler) Assemble(ctx context.Context, episode podcastapi.Episode, taskID string) (*transcript.Document, error) {
	utterances, err := a.fetcher.FetchTranscript(ctx, taskID)
	if err != nil {
		return nil, services.Wrap(nil, "assembler", "assemble", "transcript fetch", err)
	}
	annotations, err := a.fetcher.FetchAnnotations(ctx, taskID)
	if err != nil {
		return nil, services.Wrap(nil, "assembler", "assemble", "annotation fetch", err)
	}
	return &transcript.Document{
		PodcastID:   episode.PID,
		EpisodeID:   episode.EID,
		Title:       episode.Title,
		TaskID:      taskID,
		Utterances:  utterances,
		Annotations: *annotations,
	}, nil
}
