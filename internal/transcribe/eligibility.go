package transcribe

import (
	"log/slog"
	"sort"

	"podscribe/internal/logging"
	"podscribe/internal/podcastapi"
)

const (
	// Episodes shorter than three minutes are mostly trailers and promos.
	minDurationSeconds = 180
	// Episodes over five hours risk remote processing timeouts.
	maxDurationSeconds = 18000
	// A full backlog run is capped to bound cost and latency.
	backlogCap = 50
)

// Eligible selects the episodes worth submitting for transcription. Already
// transcribed episodes are excluded first, the remainder is ordered newest
// first and capped, then records with missing fields, purchase-restricted
// audio, or out-of-range durations are dropped. Dropped episodes are logged
// and never fail the selection.
func Eligible(episodes []podcastapi.Episode, transcribed map[string]struct{}, logger *slog.Logger) []podcastapi.Episode {
	if logger == nil {
		logger = logging.NewNop()
	}

	candidates := make([]podcastapi.Episode, 0, len(episodes))
	for _, episode := range episodes {
		if _, done := transcribed[episode.EID]; done {
			continue
		}
		candidates = append(candidates, episode)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].PubDate > candidates[j].PubDate
	})
	if len(candidates) > backlogCap {
		candidates = candidates[:backlogCap]
	}

	selected := candidates[:0]
	for _, episode := range candidates {
		switch {
		case episode.EID == "" || episode.Title == "" || episode.Enclosure.URL == "" || episode.Duration == 0:
			logger.Warn("skipping episode with incomplete record",
				logging.String(logging.FieldEpisodeID, episode.EID),
				logging.String(logging.FieldEpisodeTitle, episode.Title))
		case episode.PayTier:
			logger.Info("skipping purchase-restricted episode",
				logging.String(logging.FieldEpisodeID, episode.EID),
				logging.String(logging.FieldEpisodeTitle, episode.Title))
		case episode.Duration < minDurationSeconds || episode.Duration > maxDurationSeconds:
			logger.Info("skipping episode outside duration bounds",
				logging.String(logging.FieldEpisodeID, episode.EID),
				logging.Int("duration_seconds", episode.Duration))
		default:
			selected = append(selected, episode)
		}
	}
	return selected
}
