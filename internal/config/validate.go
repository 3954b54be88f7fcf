package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCredentials(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validatePodcasts(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateCredentials() error {
	if c.PodcastAPI.RefreshToken == "" {
		return errors.New("podcast_api.refresh_token is required. Set PODSCRIBE_REFRESH_TOKEN or edit the config file (create with 'podscribe config init')")
	}
	if c.Tongyi.Cookie == "" {
		return errors.New("tongyi.cookie is required. Set PODSCRIBE_TONGYI_COOKIE or edit the config file (create with 'podscribe config init')")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if c.Transcription.BatchSize > 48 {
		// The registry lists at most one page of 48 records per request;
		// larger batches would stall the poll loop on pagination edge cases.
		return errors.New("transcription.batch_size must not exceed 48")
	}
	return nil
}

func (c *Config) validatePodcasts() error {
	seen := make(map[string]struct{}, len(c.Podcasts))
	for _, p := range c.Podcasts {
		if p.PID == "" {
			return fmt.Errorf("podcasts entry %q is missing pid", p.Name)
		}
		if _, dup := seen[p.PID]; dup {
			return fmt.Errorf("podcasts entry %q duplicates pid %s", p.Name, p.PID)
		}
		seen[p.PID] = struct{}{}
	}
	return nil
}
