package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"podscribe/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("PODSCRIBE_REFRESH_TOKEN", "token")
	t.Setenv("PODSCRIBE_TONGYI_COOKIE", "cookie")

	path := writeConfig(t, `
[paths]
data_dir = "`+t.TempDir()+`"
`)
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be found")
	}
	if cfg.Transcription.BatchSize != 10 {
		t.Fatalf("expected default batch size 10, got %d", cfg.Transcription.BatchSize)
	}
	if cfg.Transcription.BatchTimeoutSeconds != 3600 {
		t.Fatalf("expected default batch timeout 3600, got %d", cfg.Transcription.BatchTimeoutSeconds)
	}
	if cfg.Tongyi.EfficiencyBaseURL == "" {
		t.Fatal("expected default efficiency base url")
	}
	if cfg.Transcription.CleanupStalled {
		t.Fatal("expected stalled cleanup to default off")
	}
}

func TestLoadReadsCredentialsFromEnv(t *testing.T) {
	t.Setenv("PODSCRIBE_REFRESH_TOKEN", "refresh-token")
	t.Setenv("PODSCRIBE_TONGYI_COOKIE", "cookie-value")

	path := writeConfig(t, "")
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.PodcastAPI.RefreshToken != "refresh-token" {
		t.Fatalf("unexpected refresh token: %q", cfg.PodcastAPI.RefreshToken)
	}
	if cfg.Tongyi.Cookie != "cookie-value" {
		t.Fatalf("unexpected cookie: %q", cfg.Tongyi.Cookie)
	}
}

func TestLoadRejectsMissingCredentials(t *testing.T) {
	t.Setenv("PODSCRIBE_REFRESH_TOKEN", "")
	t.Setenv("PODSCRIBE_TONGYI_COOKIE", "")

	path := writeConfig(t, "")
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error when credentials missing")
	}
}

func TestValidateRejectsDuplicatePodcasts(t *testing.T) {
	t.Setenv("PODSCRIBE_REFRESH_TOKEN", "token")
	t.Setenv("PODSCRIBE_TONGYI_COOKIE", "cookie")

	path := writeConfig(t, `
[[podcasts]]
pid = "abc"
name = "one"

[[podcasts]]
pid = "abc"
name = "two"
`)
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for duplicate pid")
	}
}

func TestValidateRejectsOversizedBatch(t *testing.T) {
	t.Setenv("PODSCRIBE_REFRESH_TOKEN", "token")
	t.Setenv("PODSCRIBE_TONGYI_COOKIE", "cookie")

	path := writeConfig(t, `
[transcription]
batch_size = 64
`)
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for batch size above page size")
	}
}
