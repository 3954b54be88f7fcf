package transcribe

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"podscribe/internal/config"
	"podscribe/internal/logging"
	"podscribe/internal/podcastapi"
	"podscribe/internal/services"
	"podscribe/internal/services/tongyi"
	"podscribe/internal/transcript"
)

// State tracks one episode's job through a batch.
type State string

const (
	StatePreparing State = "preparing"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Registry is the remote transcription service surface the orchestrator
// drives.
type Registry interface {
	EnsureFolder(ctx context.Context, name string) (string, error)
	ListTasks(ctx context.Context, folderID string) ([]tongyi.Task, error)
	DeleteTask(ctx context.Context, recordID string) error
	ResolveAudioSource(ctx context.Context, displayName, audioURL string) (*tongyi.SubmitFile, error)
	SubmitBatch(ctx context.Context, folderID string, files []tongyi.SubmitFile) error
	ResultFetcher
}

// DocumentStore persists assembled transcript documents.
type DocumentStore interface {
	SaveTranscript(doc *transcript.Document) error
}

// Outcome is the per-episode result of a run.
type Outcome struct {
	EpisodeID string
	Title     string
	State     State
	// Document reports whether a transcript document was persisted.
	Document bool
	Reason   string
}

// Summary aggregates one podcast run.
type Summary struct {
	PodcastID string
	FolderID  string
	Outcomes  []Outcome
}

// Documents counts the episodes that ended the run with a persisted
// transcript document.
func (s *Summary) Documents() int {
	count := 0
	for _, outcome := range s.Outcomes {
		if outcome.Document {
			count++
		}
	}
	return count
}

type job struct {
	episode  podcastapi.Episode
	state    State
	taskID   string
	recordID string
	document bool
	reason   string
}

// Orchestrator drives episode batches through the remote transcription
// service: resolve audio, submit, poll until the batch settles, clean up
// failed jobs, and fetch results for succeeded ones.
type Orchestrator struct {
	registry  Registry
	store     DocumentStore
	assembler *Assembler
	logger    *slog.Logger

	batchSize      int
	pollInterval   time.Duration
	batchTimeout   time.Duration
	cleanupStalled bool
}

// NewOrchestrator builds an orchestrator from the transcription settings.
func NewOrchestrator(registry Registry, store DocumentStore, cfg config.Transcription, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		registry:       registry,
		store:          store,
		assembler:      NewAssembler(registry, logger),
		logger:         logging.NewComponentLogger(logger, "orchestrator"),
		batchSize:      cfg.BatchSize,
		pollInterval:   time.Duration(cfg.PollIntervalSeconds) * time.Second,
		batchTimeout:   time.Duration(cfg.BatchTimeoutSeconds) * time.Second,
		cleanupStalled: cfg.CleanupStalled,
	}
}

// Run processes all candidate episodes for one podcast. Episodes already
// present in the remote folder are routed straight to classification so
// repeated runs never create duplicate jobs; the rest are submitted in
// batches. Per-episode failures are recorded in the summary, never
// escalated; only folder setup, listing, and context errors abort the run.
func (o *Orchestrator) Run(ctx context.Context, pid string, candidates []podcastapi.Episode) (*Summary, error) {
	ctx = services.WithPodcastID(ctx, pid)
	logger := logging.WithContext(ctx, o.logger)
	summary := &Summary{PodcastID: pid}
	if len(candidates) == 0 {
		return summary, nil
	}

	folderID, err := o.registry.EnsureFolder(ctx, pid)
	if err != nil {
		return nil, err
	}
	summary.FolderID = folderID

	existing, err := o.registry.ListTasks(ctx, folderID)
	if err != nil {
		return nil, err
	}

	// Route episodes that already have a remote job directly to
	// classification instead of resubmitting them.
	var carried []*job
	var fresh []podcastapi.Episode
	for _, episode := range candidates {
		task, found := matchTask(existing, episode.EID)
		if !found {
			fresh = append(fresh, episode)
			continue
		}
		j := &job{episode: episode, taskID: task.TaskID, recordID: task.RecordID}
		switch {
		case task.Status == tongyi.StatusSucceeded:
			j.state = StateSucceeded
		case tongyi.TerminalFailure(task.Status):
			j.state = StateFailed
			j.reason = "previous job failed remotely"
		default:
			j.state = StateRunning
		}
		logger.Info("episode already has a remote job",
			logging.String(logging.FieldEpisodeID, episode.EID),
			logging.String("state", string(j.state)))
		carried = append(carried, j)
	}

	if len(carried) > 0 {
		carriedCtx := services.WithBatchID(ctx, uuid.NewString())
		if err := o.settleBatch(carriedCtx, folderID, carried); err != nil {
			return nil, err
		}
		appendOutcomes(summary, carried)
	}

	for start := 0; start < len(fresh); start += o.batchSize {
		end := min(start+o.batchSize, len(fresh))
		batch := make([]*job, 0, end-start)
		for _, episode := range fresh[start:end] {
			batch = append(batch, &job{episode: episode, state: StatePreparing})
		}
		batchCtx := services.WithBatchID(ctx, uuid.NewString())
		if err := o.submitBatch(batchCtx, folderID, batch); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// A failed submission aborts this batch only. The episodes
			// stay untranscribed and return on the next run.
			logging.WithContext(batchCtx, o.logger).Error("batch submission failed",
				logging.Error(err),
				logging.Int("batch_size", len(batch)))
			appendOutcomes(summary, batch)
			continue
		}
		if err := o.settleBatch(batchCtx, folderID, batch); err != nil {
			return nil, err
		}
		appendOutcomes(summary, batch)
	}
	return summary, nil
}

// submitBatch resolves audio sources and submits the batch. Episodes whose
// resolution fails are dropped from the batch and retried on a future run.
func (o *Orchestrator) submitBatch(ctx context.Context, folderID string, batch []*job) error {
	var files []tongyi.SubmitFile
	var submitted []*job
	for _, j := range batch {
		epCtx := services.WithEpisodeID(ctx, j.episode.EID)
		file, err := o.registry.ResolveAudioSource(epCtx, j.episode.EID, j.episode.Enclosure.URL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			j.reason = "audio resolution failed"
			logging.WithContext(epCtx, o.logger).Warn("dropping episode from batch",
				logging.String(logging.FieldEpisodeTitle, j.episode.Title),
				logging.Error(err))
			continue
		}
		files = append(files, *file)
		submitted = append(submitted, j)
	}
	if len(files) == 0 {
		return nil
	}
	if err := o.registry.SubmitBatch(ctx, folderID, files); err != nil {
		return err
	}
	for _, j := range submitted {
		j.state = StateRunning
	}
	return nil
}

// settleBatch polls until no job is running or the wall-clock budget
// elapses, then cleans up failed jobs and fetches results for succeeded
// ones.
func (o *Orchestrator) settleBatch(ctx context.Context, folderID string, batch []*job) error {
	if err := o.poll(ctx, folderID, batch); err != nil {
		return err
	}
	o.cleanup(ctx, batch)
	o.fetchResults(ctx, batch)
	return nil
}

func (o *Orchestrator) poll(ctx context.Context, folderID string, batch []*job) error {
	logger := logging.WithContext(ctx, o.logger)
	deadline := time.Now().Add(o.batchTimeout)
	for hasRunning(batch) {
		tasks, err := o.registry.ListTasks(ctx, folderID)
		if err != nil {
			return err
		}
		for _, j := range batch {
			if j.state != StateRunning {
				continue
			}
			task, found := matchTask(tasks, j.episode.EID)
			if !found {
				// Not visible yet. The registry takes a moment to show
				// freshly submitted jobs; treat as still running.
				continue
			}
			j.recordID = task.RecordID
			switch {
			case task.Status == tongyi.StatusSucceeded:
				j.state = StateSucceeded
				j.taskID = task.TaskID
			case tongyi.TerminalFailure(task.Status):
				j.state = StateFailed
				j.reason = "job failed remotely"
				logger.Warn("remote job failed",
					logging.String(logging.FieldEpisodeID, j.episode.EID),
					logging.String(logging.FieldEpisodeTitle, j.episode.Title))
			}
		}
		if !hasRunning(batch) {
			break
		}
		if time.Now().After(deadline) {
			for _, j := range batch {
				if j.state == StateRunning {
					j.reason = "poll budget elapsed"
					logger.Warn("leaving job unresolved",
						logging.String(logging.FieldEpisodeID, j.episode.EID))
				}
			}
			break
		}
		if err := services.SleepWithContext(ctx, o.pollInterval); err != nil {
			return err
		}
	}
	return nil
}

// cleanup deletes the remote artifacts of failed jobs so the folder does
// not accumulate dead entries. Stuck-running jobs are deleted only when
// stalled cleanup is enabled; leaving them lets the next run's dedupe pass
// pick the job back up instead of resubmitting.
func (o *Orchestrator) cleanup(ctx context.Context, batch []*job) {
	logger := logging.WithContext(ctx, o.logger)
	for _, j := range batch {
		shouldDelete := j.state == StateFailed ||
			(o.cleanupStalled && j.state == StateRunning && j.recordID != "")
		if !shouldDelete || j.recordID == "" {
			continue
		}
		if err := o.registry.DeleteTask(ctx, j.recordID); err != nil {
			logger.Error("failed to delete remote job",
				logging.String(logging.FieldEpisodeID, j.episode.EID),
				logging.String(logging.FieldRecordID, j.recordID),
				logging.Error(err))
		}
	}
}

func (o *Orchestrator) fetchResults(ctx context.Context, batch []*job) {
	for _, j := range batch {
		if j.state != StateSucceeded {
			continue
		}
		epCtx := services.WithEpisodeID(ctx, j.episode.EID)
		logger := logging.WithContext(epCtx, o.logger)
		doc, err := o.assembler.Assemble(epCtx, j.episode, j.taskID)
		if err != nil {
			j.reason = "result fetch failed"
			logger.Error("could not assemble transcript",
				logging.String(logging.FieldTaskID, j.taskID),
				logging.Error(err))
			continue
		}
		if err := o.store.SaveTranscript(doc); err != nil {
			j.reason = "persist failed"
			logger.Error("could not persist transcript", logging.Error(err))
			continue
		}
		j.document = true
		logger.Info("transcript saved",
			logging.String(logging.FieldEpisodeTitle, j.episode.Title))
	}
}

func hasRunning(batch []*job) bool {
	for _, j := range batch {
		if j.state == StateRunning {
			return true
		}
	}
	return false
}

func appendOutcomes(summary *Summary, batch []*job) {
	for _, j := range batch {
		summary.Outcomes = append(summary.Outcomes, Outcome{
			EpisodeID: j.episode.EID,
			Title:     j.episode.Title,
			State:     j.state,
			Document:  j.document,
			Reason:    j.reason,
		})
	}
}
