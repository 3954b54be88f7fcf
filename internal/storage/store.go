package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"podscribe/internal/logging"
	"podscribe/internal/podcastapi"
	"podscribe/internal/transcript"
)

// Store manages the on-disk JSON layout shared by the pipeline:
//
//	episodes/{pid}.json          episode records keyed by eid
//	podcasts/{pid}.json          per-podcast metadata
//	podcasts/subscriptions.json  full subscription snapshot
//	transcripts/{pid}/{eid}.json transcript documents
//	rss/{pid}.xml                rendered feeds
type Store struct {
	baseDir        string
	episodesDir    string
	podcastsDir    string
	transcriptsDir string
	rssDir         string
	logger         *slog.Logger
}

// NewStore creates the storage layout rooted at dataDir.
func NewStore(dataDir string, logger *slog.Logger) (*Store, error) {
	if dataDir == "" {
		return nil, errors.New("data directory required")
	}
	s := &Store{
		baseDir:        dataDir,
		episodesDir:    filepath.Join(dataDir, "episodes"),
		podcastsDir:    filepath.Join(dataDir, "podcasts"),
		transcriptsDir: filepath.Join(dataDir, "transcripts"),
		rssDir:         filepath.Join(dataDir, "rss"),
		logger:         logging.NewComponentLogger(logger, "storage"),
	}
	for _, dir := range []string{s.episodesDir, s.podcastsDir, s.transcriptsDir, s.rssDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return s, nil
}

// SaveEpisodes merges the supplied episodes into the podcast's episode file,
// keyed by eid so refreshed syncs update records in place.
func (s *Store) SaveEpisodes(pid string, episodes []podcastapi.Episode) error {
	if pid == "" {
		return errors.New("pid required")
	}
	existing, err := s.loadEpisodeMap(pid)
	if err != nil {
		return err
	}
	for _, episode := range episodes {
		if episode.EID == "" {
			s.logger.Warn("episode missing eid", logging.String("title", episode.Title))
			continue
		}
		existing[episode.EID] = episode
	}
	path := filepath.Join(s.episodesDir, pid+".json")
	if err := writeJSON(path, existing); err != nil {
		return fmt.Errorf("save episodes: %w", err)
	}
	s.logger.Debug("saved episodes",
		logging.String(logging.FieldPodcastID, pid),
		logging.Int("episode_count", len(existing)))
	return nil
}

// LoadEpisodes returns all known episodes for the podcast, newest first.
func (s *Store) LoadEpisodes(pid string) ([]podcastapi.Episode, error) {
	byID, err := s.loadEpisodeMap(pid)
	if err != nil {
		return nil, err
	}
	episodes := make([]podcastapi.Episode, 0, len(byID))
	for _, episode := range byID {
		episodes = append(episodes, episode)
	}
	sort.Slice(episodes, func(i, j int) bool {
		if episodes[i].PubDate != episodes[j].PubDate {
			return episodes[i].PubDate > episodes[j].PubDate
		}
		return episodes[i].EID < episodes[j].EID
	})
	return episodes, nil
}

func (s *Store) loadEpisodeMap(pid string) (map[string]podcastapi.Episode, error) {
	path := filepath.Join(s.episodesDir, pid+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]podcastapi.Episode), nil
		}
		return nil, fmt.Errorf("read episodes: %w", err)
	}
	byID := make(map[string]podcastapi.Episode)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &byID); err != nil {
			return nil, fmt.Errorf("parse episodes %s: %w", path, err)
		}
	}
	return byID, nil
}

// SavePodcast persists one podcast's metadata.
func (s *Store) SavePodcast(podcast podcastapi.Podcast) error {
	if podcast.PID == "" {
		return errors.New("pid required")
	}
	path := filepath.Join(s.podcastsDir, podcast.PID+".json")
	return writeJSON(path, podcast)
}

// LoadPodcast reads one podcast's metadata.
func (s *Store) LoadPodcast(pid string) (podcastapi.Podcast, error) {
	var podcast podcastapi.Podcast
	path := filepath.Join(s.podcastsDir, pid+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return podcast, fmt.Errorf("read podcast: %w", err)
	}
	if err := json.Unmarshal(data, &podcast); err != nil {
		return podcast, fmt.Errorf("parse podcast %s: %w", path, err)
	}
	return podcast, nil
}

// SaveSubscriptions persists the full subscription snapshot.
func (s *Store) SaveSubscriptions(podcasts []podcastapi.Podcast) error {
	path := filepath.Join(s.podcastsDir, "subscriptions.json")
	return writeJSON(path, podcasts)
}

// IsTranscribed reports whether a transcript document exists for the episode.
func (s *Store) IsTranscribed(pid, eid string) bool {
	if pid == "" || eid == "" {
		return false
	}
	info, err := os.Stat(s.transcriptPath(pid, eid))
	return err == nil && !info.IsDir()
}

// TranscribedSet returns the episode ids with a stored transcript document.
func (s *Store) TranscribedSet(pid string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	entries, err := os.ReadDir(filepath.Join(s.transcriptsDir, pid))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return set, nil
		}
		return nil, fmt.Errorf("read transcripts dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) != ".json" {
			continue
		}
		set[name[:len(name)-len(".json")]] = struct{}{}
	}
	return set, nil
}

// SaveTranscript persists a transcript document, replacing any previous
// document for the same episode wholesale.
func (s *Store) SaveTranscript(doc *transcript.Document) error {
	if doc == nil {
		return errors.New("document required")
	}
	if doc.PodcastID == "" || doc.EpisodeID == "" {
		return errors.New("document missing podcast or episode id")
	}
	dir := filepath.Join(s.transcriptsDir, doc.PodcastID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create transcript directory: %w", err)
	}
	if err := writeJSON(s.transcriptPath(doc.PodcastID, doc.EpisodeID), doc); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	s.logger.Debug("saved transcript",
		logging.String(logging.FieldPodcastID, doc.PodcastID),
		logging.String(logging.FieldEpisodeID, doc.EpisodeID))
	return nil
}

// LoadTranscript reads the stored transcript document for an episode.
func (s *Store) LoadTranscript(pid, eid string) (*transcript.Document, error) {
	data, err := os.ReadFile(s.transcriptPath(pid, eid))
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	var doc transcript.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse transcript %s/%s: %w", pid, eid, err)
	}
	return &doc, nil
}

// WriteFeed persists the rendered RSS document for a podcast.
func (s *Store) WriteFeed(pid string, feed []byte) error {
	if pid == "" {
		return errors.New("pid required")
	}
	return writeAtomic(filepath.Join(s.rssDir, pid+".xml"), feed)
}

// FeedPath returns where the podcast's rendered feed lives.
func (s *Store) FeedPath(pid string) string {
	return filepath.Join(s.rssDir, pid+".xml")
}

func (s *Store) transcriptPath(pid, eid string) string {
	return filepath.Join(s.transcriptsDir, pid, eid+".json")
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return writeAtomic(path, data)
}

// writeAtomic writes through a temp file and rename so readers never observe
// a partially written document.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
