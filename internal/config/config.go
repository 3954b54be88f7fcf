package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// PodcastAPI contains configuration for the podcast subscription platform.
type PodcastAPI struct {
	BaseURL      string `toml:"base_url"`
	DeviceID     string `toml:"device_id"`
	RefreshToken string `toml:"refresh_token"`
}

// Tongyi contains configuration for the transcription service.
type Tongyi struct {
	AssistantBaseURL  string `toml:"assistant_base_url"`
	EfficiencyBaseURL string `toml:"efficiency_base_url"`
	Cookie            string `toml:"cookie"`
	// RetryBackoffSeconds is the fixed delay between retries of a failed
	// remote call.
	RetryBackoffSeconds int `toml:"retry_backoff_seconds"`
	// ResolvePollLimit caps the 1s status polls while the service parses an
	// audio URL, so a remote stuck at "processing" cannot livelock a batch.
	ResolvePollLimit int `toml:"resolve_poll_limit"`
}

// Transcription contains batch orchestration settings.
type Transcription struct {
	BatchSize           int  `toml:"batch_size"`
	PollIntervalSeconds int  `toml:"poll_interval_seconds"`
	BatchTimeoutSeconds int  `toml:"batch_timeout_seconds"`
	CleanupStalled      bool `toml:"cleanup_stalled"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Podcast identifies one subscribed podcast the pipeline processes.
type Podcast struct {
	PID  string `toml:"pid"`
	Name string `toml:"name"`
}

// Config encapsulates all configuration values for podscribe.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - PodcastAPI: subscription platform connection and credentials
//   - Tongyi: transcription service connection, credentials, retry tuning
//   - Transcription: batch size, poll cadence, wall-clock budget, cleanup policy
//   - Logging: log format and level
//   - Podcasts: the subscribed podcasts to process
type Config struct {
	Paths         Paths         `toml:"paths"`
	PodcastAPI    PodcastAPI    `toml:"podcast_api"`
	Tongyi        Tongyi        `toml:"tongyi"`
	Transcription Transcription `toml:"transcription"`
	Logging       Logging       `toml:"logging"`
	Podcasts      []Podcast     `toml:"podcasts"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/podscribe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and secrets resolved from the
// environment (a .env file alongside the working directory is honored).
func Load(path string) (*Config, string, bool, error) {
	// Secrets may live in a .env file during development; absence is fine.
	_ = godotenv.Load()

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("podscribe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the required data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
