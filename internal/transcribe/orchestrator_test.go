package transcribe_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"podscribe/internal/config"
	"podscribe/internal/logging"
	"podscribe/internal/podcastapi"
	"podscribe/internal/services"
	"podscribe/internal/services/tongyi"
	"podscribe/internal/transcribe"
	"podscribe/internal/transcript"
)

// fakeRegistry simulates the remote transcription service. tasksFn lets a
// test script the folder listing per poll iteration.
type fakeRegistry struct {
	mu sync.Mutex

	folderID  string
	listCalls int
	tasksFn   func(call int) []tongyi.Task

	resolveErrs map[string]error
	resolved    []string

	submitErr error
	submitted [][]tongyi.SubmitFile

	deleted []string

	transcriptErr  error
	annotationsErr error
	fetched        []string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		folderID:    "folder-1",
		resolveErrs: make(map[string]error),
	}
}

func (f *fakeRegistry) EnsureFolder(ctx context.Context, name string) (string, error) {
	return f.folderID, nil
}

func (f *fakeRegistry) ListTasks(ctx context.Context, folderID string) ([]tongyi.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.tasksFn == nil {
		return nil, nil
	}
	return f.tasksFn(f.listCalls), nil
}

func (f *fakeRegistry) DeleteTask(ctx context.Context, recordID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, recordID)
	return nil
}

func (f *fakeRegistry) ResolveAudioSource(ctx context.Context, displayName, audioURL string) (*tongyi.SubmitFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.resolveErrs[displayName]; err != nil {
		return nil, err
	}
	f.resolved = append(f.resolved, displayName)
	file := tongyi.NewSubmitFile("file-"+displayName, 1000, displayName)
	return &file, nil
}

func (f *fakeRegistry) SubmitBatch(ctx context.Context, folderID string, files []tongyi.SubmitFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, files)
	return nil
}

func (f *fakeRegistry) FetchTranscript(ctx context.Context, taskID string) ([]transcript.Utterance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transcriptErr != nil {
		return nil, f.transcriptErr
	}
	f.fetched = append(f.fetched, taskID)
	return []transcript.Utterance{
		{Time: "00:00:01", Speaker: "主持人", Text: "欢迎收听"},
	}, nil
}

func (f *fakeRegistry) FetchAnnotations(ctx context.Context, taskID string) (*transcript.Annotations, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.annotationsErr != nil {
		return nil, f.annotationsErr
	}
	return &transcript.Annotations{Summary: "本期摘要"}, nil
}

type fakeStore struct {
	mu    sync.Mutex
	saved map[string]*transcript.Document
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: make(map[string]*transcript.Document)}
}

func (s *fakeStore) SaveTranscript(doc *transcript.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[doc.EpisodeID] = doc
	return nil
}

func testSettings() config.Transcription {
	return config.Transcription{
		BatchSize:           10,
		PollIntervalSeconds: 0,
		BatchTimeoutSeconds: 60,
	}
}

func outcomeFor(t *testing.T, summary *transcribe.Summary, eid string) transcribe.Outcome {
	t.Helper()
	for _, outcome := range summary.Outcomes {
		if outcome.EpisodeID == eid {
			return outcome
		}
	}
	t.Fatalf("no outcome for %s in %+v", eid, summary.Outcomes)
	return transcribe.Outcome{}
}

func TestRunSubmitsPollsAndPersists(t *testing.T) {
	registry := newFakeRegistry()
	// Call 1 is the dedupe listing. The job appears as running on the
	// first poll and succeeds on the second.
	registry.tasksFn = func(call int) []tongyi.Task {
		switch call {
		case 1:
			return nil
		case 2:
			return []tongyi.Task{{TaskID: "t-E1", RecordID: "r-E1", Title: "E1", Status: tongyi.StatusRunning}}
		default:
			return []tongyi.Task{{TaskID: "t-E1", RecordID: "r-E1", Title: "E1", Status: tongyi.StatusSucceeded}}
		}
	}
	store := newFakeStore()
	orch := transcribe.NewOrchestrator(registry, store, testSettings(), logging.NewNop())

	summary, err := orch.Run(context.Background(), "pod1", []podcastapi.Episode{episode("E1", 600, 100)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(registry.submitted) != 1 || len(registry.submitted[0]) != 1 {
		t.Fatalf("expected one submission with one file, got %+v", registry.submitted)
	}
	if registry.submitted[0][0].Tag.ShowName != "E1" {
		t.Errorf("job title should be the episode id, got %s", registry.submitted[0][0].Tag.ShowName)
	}

	doc, ok := store.saved["E1"]
	if !ok {
		t.Fatal("expected transcript document for E1")
	}
	if len(doc.Utterances) == 0 || doc.Annotations.Summary == "" {
		t.Errorf("document missing content: %+v", doc)
	}
	if doc.TaskID != "t-E1" || doc.PodcastID != "pod1" {
		t.Errorf("unexpected document identity: %+v", doc)
	}

	outcome := outcomeFor(t, summary, "E1")
	if outcome.State != transcribe.StateSucceeded || !outcome.Document {
		t.Errorf("unexpected outcome %+v", outcome)
	}
	if len(registry.deleted) != 0 {
		t.Errorf("succeeded jobs must not be deleted, got %v", registry.deleted)
	}
}

func TestRunLogsCorrelationFields(t *testing.T) {
	registry := newFakeRegistry()
	registry.tasksFn = func(call int) []tongyi.Task {
		if call == 1 {
			return nil
		}
		return []tongyi.Task{{TaskID: "t-E1", RecordID: "r-E1", Title: "E1", Status: tongyi.StatusSucceeded}}
	}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	orch := transcribe.NewOrchestrator(registry, newFakeStore(), testSettings(), logger)

	ctx := services.WithRunID(context.Background(), "run-42")
	if _, err := orch.Run(ctx, "pod1", []podcastapi.Episode{episode("E1", 600, 100)}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	output := buf.String()
	for _, want := range []string{"run_id=run-42", "podcast_id=pod1", "batch_id=", "episode_id=E1"} {
		if !strings.Contains(output, want) {
			t.Errorf("log output missing %q:\n%s", want, output)
		}
	}
}

func TestRunDeletesFailedJobOnce(t *testing.T) {
	registry := newFakeRegistry()
	registry.tasksFn = func(call int) []tongyi.Task {
		if call == 1 {
			return nil
		}
		// The failure stays visible for many poll iterations; classification
		// must still delete it exactly once.
		return []tongyi.Task{{TaskID: "t-E3", RecordID: "r-E3", Title: "E3", Status: tongyi.StatusFailed}}
	}
	store := newFakeStore()
	orch := transcribe.NewOrchestrator(registry, store, testSettings(), logging.NewNop())

	summary, err := orch.Run(context.Background(), "pod1", []podcastapi.Episode{episode("E3", 600, 100)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(registry.deleted) != 1 || registry.deleted[0] != "r-E3" {
		t.Fatalf("expected exactly one delete of r-E3, got %v", registry.deleted)
	}
	if len(store.saved) != 0 {
		t.Errorf("failed job must not produce a document")
	}
	outcome := outcomeFor(t, summary, "E3")
	if outcome.State != transcribe.StateFailed || outcome.Document {
		t.Errorf("unexpected outcome %+v", outcome)
	}
}

func TestRunDedupeSkipsResubmission(t *testing.T) {
	registry := newFakeRegistry()
	// The episode's job already exists remotely from a previous run.
	registry.tasksFn = func(call int) []tongyi.Task {
		if call == 1 {
			return []tongyi.Task{{TaskID: "t-E1", RecordID: "r-E1", Title: "E1", Status: tongyi.StatusRunning}}
		}
		return []tongyi.Task{{TaskID: "t-E1", RecordID: "r-E1", Title: "E1", Status: tongyi.StatusSucceeded}}
	}
	store := newFakeStore()
	orch := transcribe.NewOrchestrator(registry, store, testSettings(), logging.NewNop())

	_, err := orch.Run(context.Background(), "pod1", []podcastapi.Episode{episode("E1", 600, 100)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(registry.resolved) != 0 || len(registry.submitted) != 0 {
		t.Fatalf("deduped episode must not be resubmitted: resolved=%v submitted=%v",
			registry.resolved, registry.submitted)
	}
	if _, ok := store.saved["E1"]; !ok {
		t.Fatal("carried job should still produce a document once it succeeds")
	}
}

func TestRunCarriedSucceededFetchedDirectly(t *testing.T) {
	registry := newFakeRegistry()
	registry.tasksFn = func(call int) []tongyi.Task {
		return []tongyi.Task{{TaskID: "t-E1", RecordID: "r-E1", Title: "E1", Status: tongyi.StatusSucceeded}}
	}
	store := newFakeStore()
	orch := transcribe.NewOrchestrator(registry, store, testSettings(), logging.NewNop())

	_, err := orch.Run(context.Background(), "pod1", []podcastapi.Episode{episode("E1", 600, 100)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if registry.listCalls != 1 {
		t.Errorf("already-succeeded job needs no polling, got %d list calls", registry.listCalls)
	}
	if _, ok := store.saved["E1"]; !ok {
		t.Fatal("expected document for carried succeeded job")
	}
}

func TestRunPartialFetchWritesNoDocument(t *testing.T) {
	registry := newFakeRegistry()
	registry.annotationsErr = errors.New("annotation cards unavailable")
	registry.tasksFn = func(call int) []tongyi.Task {
		if call == 1 {
			return nil
		}
		return []tongyi.Task{{TaskID: "t-E1", RecordID: "r-E1", Title: "E1", Status: tongyi.StatusSucceeded}}
	}
	store := newFakeStore()
	orch := transcribe.NewOrchestrator(registry, store, testSettings(), logging.NewNop())

	summary, err := orch.Run(context.Background(), "pod1", []podcastapi.Episode{episode("E1", 600, 100)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.saved) != 0 {
		t.Fatal("partial fetch success must not produce a document")
	}
	outcome := outcomeFor(t, summary, "E1")
	if outcome.Document {
		t.Errorf("outcome should not report a document: %+v", outcome)
	}
	if outcome.Reason == "" {
		t.Error("expected a recorded failure reason")
	}
}

func TestRunSubmitFailureAbortsBatch(t *testing.T) {
	registry := newFakeRegistry()
	registry.submitErr = errors.New("registry unavailable")
	store := newFakeStore()
	orch := transcribe.NewOrchestrator(registry, store, testSettings(), logging.NewNop())

	summary, err := orch.Run(context.Background(), "pod1", []podcastapi.Episode{
		episode("E1", 600, 200),
		episode("E2", 600, 100),
	})
	if err != nil {
		t.Fatalf("submission failure must not abort the run: %v", err)
	}
	if registry.listCalls != 1 {
		t.Errorf("aborted batch must not be polled, got %d list calls", registry.listCalls)
	}
	for _, eid := range []string{"E1", "E2"} {
		outcome := outcomeFor(t, summary, eid)
		if outcome.State != transcribe.StatePreparing || outcome.Document {
			t.Errorf("unexpected outcome for %s: %+v", eid, outcome)
		}
	}
}

func TestRunResolutionFailureDropsEpisode(t *testing.T) {
	registry := newFakeRegistry()
	registry.resolveErrs["E2"] = errors.New("resolver rejected url")
	registry.tasksFn = func(call int) []tongyi.Task {
		if call == 1 {
			return nil
		}
		return []tongyi.Task{{TaskID: "t-E1", RecordID: "r-E1", Title: "E1", Status: tongyi.StatusSucceeded}}
	}
	store := newFakeStore()
	orch := transcribe.NewOrchestrator(registry, store, testSettings(), logging.NewNop())

	summary, err := orch.Run(context.Background(), "pod1", []podcastapi.Episode{
		episode("E1", 600, 200),
		episode("E2", 600, 100),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(registry.submitted) != 1 || len(registry.submitted[0]) != 1 {
		t.Fatalf("expected only the resolved episode submitted, got %+v", registry.submitted)
	}
	dropped := outcomeFor(t, summary, "E2")
	if dropped.State != transcribe.StatePreparing || dropped.Reason == "" {
		t.Errorf("unexpected outcome for dropped episode: %+v", dropped)
	}
	if _, ok := store.saved["E1"]; !ok {
		t.Error("resolved episode should still complete")
	}
}

func TestRunPollBudgetLeavesJobUnresolved(t *testing.T) {
	registry := newFakeRegistry()
	registry.tasksFn = func(call int) []tongyi.Task {
		if call == 1 {
			return nil
		}
		return []tongyi.Task{{TaskID: "t-E1", RecordID: "r-E1", Title: "E1", Status: tongyi.StatusRunning}}
	}
	store := newFakeStore()
	cfg := testSettings()
	cfg.BatchTimeoutSeconds = 0
	orch := transcribe.NewOrchestrator(registry, store, cfg, logging.NewNop())

	summary, err := orch.Run(context.Background(), "pod1", []podcastapi.Episode{episode("E1", 600, 100)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	outcome := outcomeFor(t, summary, "E1")
	if outcome.State != transcribe.StateRunning {
		t.Errorf("expected job left running, got %+v", outcome)
	}
	if len(registry.deleted) != 0 {
		t.Errorf("stalled job must survive for the next run's dedupe, got deletes %v", registry.deleted)
	}
	if len(store.saved) != 0 {
		t.Error("unresolved job must not produce a document")
	}
}

func TestRunCleanupStalledDeletesAtTimeout(t *testing.T) {
	registry := newFakeRegistry()
	registry.tasksFn = func(call int) []tongyi.Task {
		if call == 1 {
			return nil
		}
		return []tongyi.Task{{TaskID: "t-E1", RecordID: "r-E1", Title: "E1", Status: tongyi.StatusRunning}}
	}
	store := newFakeStore()
	cfg := testSettings()
	cfg.BatchTimeoutSeconds = 0
	cfg.CleanupStalled = true
	orch := transcribe.NewOrchestrator(registry, store, cfg, logging.NewNop())

	_, err := orch.Run(context.Background(), "pod1", []podcastapi.Episode{episode("E1", 600, 100)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(registry.deleted) != 1 || registry.deleted[0] != "r-E1" {
		t.Errorf("expected stalled job deleted, got %v", registry.deleted)
	}
}

func TestRunBatchesBySize(t *testing.T) {
	registry := newFakeRegistry()
	registry.tasksFn = func(call int) []tongyi.Task {
		if call == 1 {
			return nil
		}
		// Every submitted job succeeds immediately.
		var tasks []tongyi.Task
		for _, eid := range []string{"E1", "E2", "E3"} {
			tasks = append(tasks, tongyi.Task{
				TaskID:   "t-" + eid,
				RecordID: "r-" + eid,
				Title:    eid,
				Status:   tongyi.StatusSucceeded,
			})
		}
		return tasks
	}
	store := newFakeStore()
	cfg := testSettings()
	cfg.BatchSize = 2
	orch := transcribe.NewOrchestrator(registry, store, cfg, logging.NewNop())

	_, err := orch.Run(context.Background(), "pod1", []podcastapi.Episode{
		episode("E1", 600, 300),
		episode("E2", 600, 200),
		episode("E3", 600, 100),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(registry.submitted) != 2 {
		t.Fatalf("expected 2 submissions for batch size 2, got %d", len(registry.submitted))
	}
	if len(registry.submitted[0]) != 2 || len(registry.submitted[1]) != 1 {
		t.Errorf("unexpected batch sizes: %d and %d", len(registry.submitted[0]), len(registry.submitted[1]))
	}
	if len(store.saved) != 3 {
		t.Errorf("expected 3 documents, got %d", len(store.saved))
	}
}

func TestAssembleDeterministic(t *testing.T) {
	registry := newFakeRegistry()
	assembler := transcribe.NewAssembler(registry, logging.NewNop())

	ep := episode("E1", 600, 100)
	first, err := assembler.Assemble(context.Background(), ep, "t-E1")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	second, err := assembler.Assemble(context.Background(), ep, "t-E1")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	a, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, err := json.Marshal(second)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(a) != string(b) {
		t.Errorf("identical fetch results must produce identical documents")
	}
}
