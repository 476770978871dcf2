package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := DefaultConfig()
		cfg.DownloadDir = "/tmp/music"
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid config",
			modify: func(c *Config) {},
		},
		{
			name:   "min confidence 0.0",
			modify: func(c *Config) { c.Lookup.MinConfidence = 0.0 },
		},
		{
			name:   "min confidence 1.0",
			modify: func(c *Config) { c.Lookup.MinConfidence = 1.0 },
		},
		{
			name:    "min confidence negative",
			modify:  func(c *Config) { c.Lookup.MinConfidence = -0.1 },
			wantErr: true,
		},
		{
			name:    "min confidence above 1",
			modify:  func(c *Config) { c.Lookup.MinConfidence = 1.1 },
			wantErr: true,
		},
		{
			name:    "parallel jobs 0",
			modify:  func(c *Config) { c.ParallelJobs = 0 },
			wantErr: true,
		},
		{
			name:    "parallel jobs 11",
			modify:  func(c *Config) { c.ParallelJobs = 11 },
			wantErr: true,
		},
		{
			name:   "parallel jobs 10",
			modify: func(c *Config) { c.ParallelJobs = 10 },
		},
		{
			name:    "invalid format",
			modify:  func(c *Config) { c.AudioFormat = "wma" },
			wantErr: true,
		},
		{
			name:   "m4a format",
			modify: func(c *Config) { c.AudioFormat = "m4a" },
		},
		{
			name:    "empty download dir",
			modify:  func(c *Config) { c.DownloadDir = "" },
			wantErr: true,
		},
		{
			name:    "zero retry attempts",
			modify:  func(c *Config) { c.Retry.MaxAttempts = 0 },
			wantErr: true,
		},
		{
			name:    "negative retry delay",
			modify:  func(c *Config) { c.Retry.InitialDelay = -time.Second },
			wantErr: true,
		},
		{
			name:    "upload ext without dot",
			modify:  func(c *Config) { c.Upload.AllowedExts = []string{"mp3"} },
			wantErr: true,
		},
		{
			name:    "missing musicbrainz user agent",
			modify:  func(c *Config) { c.Lookup.MusicBrainzUserAgent = "" },
			wantErr: true,
		},
		{
			name: "user agent not needed when lookup disabled",
			modify: func(c *Config) {
				c.Lookup.Enable = false
				c.Lookup.MusicBrainzUserAgent = ""
			},
		},
		{
			name:    "unknown tertiary source",
			modify:  func(c *Config) { c.Lookup.TertiarySources = []string{"spotify"} },
			wantErr: true,
		},
		{
			name:   "empty tertiary sources",
			modify: func(c *Config) { c.Lookup.TertiarySources = nil },
		},
		{
			name:    "discogs token without user agent",
			modify:  func(c *Config) { c.Lookup.Discogs.Token = "tok" },
			wantErr: true,
		},
		{
			name: "discogs token with user agent",
			modify: func(c *Config) {
				c.Lookup.Discogs.Token = "tok"
				c.Lookup.Discogs.UserAgent = "tunetag/1.0"
			},
		},
		{
			name:    "negative request timeout",
			modify:  func(c *Config) { c.Lookup.RequestTimeout = -time.Second },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `parallel_jobs: 8
audio_format: m4a
download_dir: /tmp/test-music
retry:
  max_attempts: 5
  initial_delay: 2s
metadata_lookup:
  min_confidence: 0.8
  prefer_existing_tags: false
  tertiary_sources: [itunes]
  discogs:
    token: abc
    user_agent: test/1.0
watch:
  inbox: /tmp/inbox
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}

	if cfg.ParallelJobs != 8 {
		t.Errorf("ParallelJobs = %d, want 8", cfg.ParallelJobs)
	}
	if cfg.AudioFormat != "m4a" {
		t.Errorf("AudioFormat = %q, want %q", cfg.AudioFormat, "m4a")
	}
	if cfg.DownloadDir != "/tmp/test-music" {
		t.Errorf("DownloadDir = %q, want %q", cfg.DownloadDir, "/tmp/test-music")
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.InitialDelay != 2*time.Second {
		t.Errorf("Retry = %+v, want 5 attempts and 2s", cfg.Retry)
	}
	if cfg.Lookup.MinConfidence != 0.8 {
		t.Errorf("MinConfidence = %f, want 0.8", cfg.Lookup.MinConfidence)
	}
	if cfg.Lookup.PreferExistingTags {
		t.Error("PreferExistingTags should be false")
	}
	if !cfg.Lookup.Enable {
		t.Error("Enable should keep its default")
	}
	if len(cfg.Lookup.TertiarySources) != 1 || cfg.Lookup.TertiarySources[0] != "itunes" {
		t.Errorf("TertiarySources = %v, want [itunes]", cfg.Lookup.TertiarySources)
	}
	if cfg.Lookup.Discogs.Token != "abc" || cfg.Lookup.Discogs.UserAgent != "test/1.0" {
		t.Errorf("Discogs = %+v", cfg.Lookup.Discogs)
	}
	if cfg.Lookup.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want default 10s", cfg.Lookup.RequestTimeout)
	}
	if cfg.Watch.Inbox != "/tmp/inbox" {
		t.Errorf("Watch.Inbox = %q", cfg.Watch.Inbox)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoadConfigFileInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("parallel_jobs: [oops"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadConfigFileNotFound(t *testing.T) {
	cfg, err := LoadConfigFile("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadConfigFile() should return defaults for missing file, got error: %v", err)
	}
	if cfg.ParallelJobs != 4 {
		t.Errorf("expected default ParallelJobs=4, got %d", cfg.ParallelJobs)
	}
	if cfg.Lookup.MinConfidence != 0.5 {
		t.Errorf("expected default MinConfidence=0.5, got %f", cfg.Lookup.MinConfidence)
	}
}

func TestSaveConfigFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.DownloadDir = "/tmp/dl"
	cfg.Lookup.AcoustIDAPIKey = "key"

	if err := SaveConfigFile(cfg, path); err != nil {
		t.Fatalf("SaveConfigFile() error: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	got, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.DownloadDir != "/tmp/dl" || got.Lookup.AcoustIDAPIKey != "key" {
		t.Errorf("round trip lost values: %+v", got)
	}
	if got.Retry.InitialDelay != 5*time.Second {
		t.Errorf("InitialDelay = %v, want 5s", got.Retry.InitialDelay)
	}
}

func TestHelpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DownloadDir = "/data"
	if got := cfg.UploadDir(); got != "/data/uploads" {
		t.Errorf("UploadDir() = %q", got)
	}
	cfg.Retry.MaxAttempts = 0
	if cfg.RetryAttempts() != 1 {
		t.Errorf("RetryAttempts() = %d, want 1", cfg.RetryAttempts())
	}
}

func TestExpandHome(t *testing.T) {
	home := homeDir()
	tests := []struct {
		input string
		want  string
	}{
		{"~/Music", filepath.Join(home, "Music")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"~notslash", "~notslash"},
	}

	for _, tt := range tests {
		got := ExpandHome(tt.input)
		if got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
