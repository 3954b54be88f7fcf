package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePodcastAPI()
	c.normalizeTongyi()
	c.normalizeTranscription()
	c.normalizeLogging()
	c.normalizePodcasts()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizePodcastAPI() {
	c.PodcastAPI.BaseURL = strings.TrimRight(strings.TrimSpace(c.PodcastAPI.BaseURL), "/")
	if c.PodcastAPI.BaseURL == "" {
		c.PodcastAPI.BaseURL = defaultPodcastBaseURL
	}
	if c.PodcastAPI.RefreshToken == "" {
		if value, ok := os.LookupEnv("PODSCRIBE_REFRESH_TOKEN"); ok {
			c.PodcastAPI.RefreshToken = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeTongyi() {
	c.Tongyi.AssistantBaseURL = strings.TrimRight(strings.TrimSpace(c.Tongyi.AssistantBaseURL), "/")
	if c.Tongyi.AssistantBaseURL == "" {
		c.Tongyi.AssistantBaseURL = defaultAssistantBaseURL
	}
	c.Tongyi.EfficiencyBaseURL = strings.TrimRight(strings.TrimSpace(c.Tongyi.EfficiencyBaseURL), "/")
	if c.Tongyi.EfficiencyBaseURL == "" {
		c.Tongyi.EfficiencyBaseURL = defaultEfficiencyBaseURL
	}
	if c.Tongyi.Cookie == "" {
		if value, ok := os.LookupEnv("PODSCRIBE_TONGYI_COOKIE"); ok {
			c.Tongyi.Cookie = strings.TrimSpace(value)
		}
	}
	if c.Tongyi.RetryBackoffSeconds <= 0 {
		c.Tongyi.RetryBackoffSeconds = defaultRetryBackoffSeconds
	}
	if c.Tongyi.ResolvePollLimit <= 0 {
		c.Tongyi.ResolvePollLimit = defaultResolvePollLimit
	}
}

func (c *Config) normalizeTranscription() {
	if c.Transcription.BatchSize <= 0 {
		c.Transcription.BatchSize = defaultBatchSize
	}
	if c.Transcription.PollIntervalSeconds <= 0 {
		c.Transcription.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	if c.Transcription.BatchTimeoutSeconds <= 0 {
		c.Transcription.BatchTimeoutSeconds = defaultBatchTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizePodcasts() {
	for i := range c.Podcasts {
		c.Podcasts[i].PID = strings.TrimSpace(c.Podcasts[i].PID)
		c.Podcasts[i].Name = strings.TrimSpace(c.Podcasts[i].Name)
	}
}
