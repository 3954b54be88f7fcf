package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"podscribe/internal/config"
	"podscribe/internal/ledger"
	"podscribe/internal/logging"
	"podscribe/internal/podcastapi"
	"podscribe/internal/rss"
	"podscribe/internal/services"
	"podscribe/internal/storage"
	"podscribe/internal/transcribe"
)

// ErrAlreadyRunning indicates another pipeline instance holds the lock.
var ErrAlreadyRunning = errors.New("another podscribe instance is already running")

// PodcastSource lists subscriptions and episode catalogs.
type PodcastSource interface {
	Subscriptions(ctx context.Context) ([]podcastapi.Podcast, error)
	Episodes(ctx context.Context, pid string) ([]podcastapi.Episode, error)
}

// PodcastResult is one podcast's outcome within a run.
type PodcastResult struct {
	PID       string
	Name      string
	Episodes  int
	Eligible  int
	Documents int
	FeedPath  string
	Err       error
}

// Result summarizes a full pipeline run.
type Result struct {
	RunID    string
	Podcasts []PodcastResult
}

// Documents counts the transcript documents produced across all podcasts.
func (r *Result) Documents() int {
	total := 0
	for _, podcast := range r.Podcasts {
		total += podcast.Documents
	}
	return total
}

// Failed reports whether any podcast run ended with an error.
func (r *Result) Failed() bool {
	for _, podcast := range r.Podcasts {
		if podcast.Err != nil {
			return true
		}
	}
	return false
}

// Pipeline drives a full run: sync subscriptions and episodes, select
// eligible episodes, run them through the transcription orchestrator, and
// render per-podcast feeds. One podcast's failure never blocks the others.
type Pipeline struct {
	cfg          *config.Config
	store        *storage.Store
	source       PodcastSource
	orchestrator *transcribe.Orchestrator
	ledger       *ledger.Ledger
	logger       *slog.Logger
	lock         *flock.Flock
}

// New assembles a pipeline from its collaborators.
func New(cfg *config.Config, store *storage.Store, source PodcastSource, registry transcribe.Registry, led *ledger.Ledger, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:          cfg,
		store:        store,
		source:       source,
		orchestrator: transcribe.NewOrchestrator(registry, store, cfg.Transcription, logger),
		ledger:       led,
		logger:       logging.NewComponentLogger(logger, "pipeline"),
		lock:         flock.New(filepath.Join(cfg.Paths.DataDir, "podscribe.lock")),
	}
}

// Run executes one full pass over every configured podcast.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	locked, err := p.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire pipeline lock: %w", err)
	}
	if !locked {
		return nil, ErrAlreadyRunning
	}
	defer func() { _ = p.lock.Unlock() }()

	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, p.logger)
	result := &Result{RunID: runID}

	if p.ledger != nil {
		if err := p.ledger.BeginRun(ctx, runID, time.Now()); err != nil {
			return nil, err
		}
	}
	logger.Info("pipeline run started",
		logging.Int("podcast_count", len(p.cfg.Podcasts)))

	subscriptions := p.syncSubscriptions(ctx)

	for _, podcast := range p.cfg.Podcasts {
		podcastResult := p.runPodcast(ctx, runID, podcast, subscriptions)
		result.Podcasts = append(result.Podcasts, podcastResult)
		if podcastResult.Err != nil {
			logger.Error("podcast run failed",
				logging.String(logging.FieldPodcastID, podcast.PID),
				logging.Error(podcastResult.Err))
		}
	}

	if p.ledger != nil {
		if err := p.ledger.FinishRun(ctx, runID, time.Now(), runErrorSummary(result)); err != nil {
			logger.Error("could not record run finish", logging.Error(err))
		}
	}
	logger.Info("pipeline run finished",
		logging.Int("documents", result.Documents()))
	return result, nil
}

// syncSubscriptions refreshes the stored subscription snapshot. A failure
// here degrades feed metadata but does not stop the run.
func (p *Pipeline) syncSubscriptions(ctx context.Context) map[string]podcastapi.Podcast {
	logger := logging.WithContext(ctx, p.logger)
	byPID := make(map[string]podcastapi.Podcast)
	subscriptions, err := p.source.Subscriptions(ctx)
	if err != nil {
		logger.Warn("could not refresh subscriptions", logging.Error(err))
		return byPID
	}
	if err := p.store.SaveSubscriptions(subscriptions); err != nil {
		logger.Warn("could not persist subscriptions", logging.Error(err))
	}
	for _, podcast := range subscriptions {
		byPID[podcast.PID] = podcast
	}
	return byPID
}

func (p *Pipeline) runPodcast(ctx context.Context, runID string, configured config.Podcast, subscriptions map[string]podcastapi.Podcast) PodcastResult {
	ctx = services.WithPodcastID(ctx, configured.PID)
	logger := logging.WithContext(ctx, p.logger)
	result := PodcastResult{PID: configured.PID, Name: configured.Name}

	podcast, subscribed := subscriptions[configured.PID]
	if !subscribed {
		podcast = podcastapi.Podcast{PID: configured.PID, Title: configured.Name}
	}
	if err := p.store.SavePodcast(podcast); err != nil {
		result.Err = err
		return result
	}

	episodes, err := p.source.Episodes(ctx, configured.PID)
	if err != nil {
		result.Err = fmt.Errorf("sync episodes: %w", err)
		return result
	}
	if err := p.store.SaveEpisodes(configured.PID, episodes); err != nil {
		result.Err = err
		return result
	}

	known, err := p.store.LoadEpisodes(configured.PID)
	if err != nil {
		result.Err = err
		return result
	}
	result.Episodes = len(known)

	transcribed, err := p.store.TranscribedSet(configured.PID)
	if err != nil {
		result.Err = err
		return result
	}
	candidates := transcribe.Eligible(known, transcribed, logger)
	result.Eligible = len(candidates)
	logger.Info("selected episodes for transcription",
		logging.Int("known", len(known)),
		logging.Int("eligible", len(candidates)))

	summary, err := p.orchestrator.Run(ctx, configured.PID, candidates)
	if err != nil {
		result.Err = fmt.Errorf("orchestrate batch: %w", err)
		return result
	}
	result.Documents = summary.Documents()
	if p.ledger != nil {
		if err := p.ledger.RecordOutcomes(ctx, runID, summary); err != nil {
			logger.Warn("could not record outcomes", logging.Error(err))
		}
	}

	feedPath, err := p.renderFeed(ctx, podcast, known)
	if err != nil {
		result.Err = fmt.Errorf("render feed: %w", err)
		return result
	}
	result.FeedPath = feedPath
	return result
}

// renderFeed rebuilds the podcast's RSS document from every stored
// transcript, newest episode first. Podcasts without any transcript yet get
// no feed file.
func (p *Pipeline) renderFeed(ctx context.Context, podcast podcastapi.Podcast, episodes []podcastapi.Episode) (string, error) {
	logger := logging.WithContext(ctx, p.logger)
	var items []rss.Item
	for _, episode := range episodes {
		if !p.store.IsTranscribed(podcast.PID, episode.EID) {
			continue
		}
		doc, err := p.store.LoadTranscript(podcast.PID, episode.EID)
		if err != nil {
			logger.Warn("skipping unreadable transcript",
				logging.String(logging.FieldEpisodeID, episode.EID),
				logging.Error(err))
			continue
		}
		items = append(items, rss.EpisodeItem(episode, doc))
	}
	if len(items) == 0 {
		return "", nil
	}
	feed := rss.RenderFeed(rss.PodcastChannel(podcast), items)
	if err := p.store.WriteFeed(podcast.PID, feed); err != nil {
		return "", err
	}
	logger.Info("feed rendered",
		logging.Int("item_count", len(items)))
	return p.store.FeedPath(podcast.PID), nil
}

func runErrorSummary(result *Result) string {
	var parts []string
	for _, podcast := range result.Podcasts {
		if podcast.Err != nil {
			parts = append(parts, fmt.Sprintf("%s: %v", podcast.PID, podcast.Err))
		}
	}
	return strings.Join(parts, "; ")
}
