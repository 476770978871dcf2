package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains the program configuration
type Config struct {
	Verbose        bool         `yaml:"verbose"`
	DownloadDir    string       `yaml:"download_dir"`
	LibraryDir     string       `yaml:"library_dir"`
	ParallelJobs   int          `yaml:"parallel_jobs"`
	CookiesBrowser string       `yaml:"cookies_browser"`
	AudioFormat    string       `yaml:"audio_format"`
	Retry          RetryConfig  `yaml:"retry"`
	Upload         UploadConfig `yaml:"upload"`
	Lookup         LookupConfig `yaml:"metadata_lookup"`
	Web            WebConfig    `yaml:"web"`
	Watch          WatchConfig  `yaml:"watch"`
}

// RetryConfig controls how fetches are retried.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
}

// UploadConfig controls where uploaded files are stored and which
// extensions are accepted.
type UploadConfig struct {
	Subdir      string   `yaml:"subdir"`
	AllowedExts []string `yaml:"allowed_exts"`
}

// LookupConfig is the metadata_lookup section.
type LookupConfig struct {
	Enable               bool          `yaml:"enable"`
	MinConfidence        float64       `yaml:"min_confidence"`
	AcoustIDAPIKey       string        `yaml:"acoustid_api_key"`
	MusicBrainzUserAgent string        `yaml:"musicbrainz_useragent"`
	LastFMAPIKey         string        `yaml:"lastfm_api_key"`
	Discogs              DiscogsConfig `yaml:"discogs"`
	TertiarySources      []string      `yaml:"tertiary_sources"`
	PreferExistingTags   bool          `yaml:"prefer_existing_tags"`
	FetchCoverArt        bool          `yaml:"fetch_cover_art"`
	FetchLyrics          bool          `yaml:"fetch_lyrics"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
}

// DiscogsConfig holds the Discogs credentials.
type DiscogsConfig struct {
	UserAgent string `yaml:"user_agent"`
	Token     string `yaml:"token"`
}

// WebConfig is the HTTP server section.
type WebConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// WatchConfig is the inbox watcher section.
type WatchConfig struct {
	Inbox  string        `yaml:"inbox"`
	Settle time.Duration `yaml:"settle"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		DownloadDir:  filepath.Join(homeDir(), "Music", "tunetag"),
		ParallelJobs: 4,
		AudioFormat:  "mp3",
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 5 * time.Second,
		},
		Upload: UploadConfig{
			Subdir:      "uploads",
			AllowedExts: []string{".mp3", ".m4a"},
		},
		Lookup: LookupConfig{
			Enable:               true,
			MinConfidence:        0.5,
			MusicBrainzUserAgent: "tunetag/1.0 (https://github.com/tunetag/tunetag)",
			TertiarySources:      []string{"discogs", "itunes", "deezer"},
			PreferExistingTags:   true,
			FetchCoverArt:        true,
			FetchLyrics:          false,
			RequestTimeout:       10 * time.Second,
		},
		Web: WebConfig{
			ListenAddr: ":8080",
		},
		Watch: WatchConfig{
			Settle: 2 * time.Second,
		},
	}
}

// LoadConfigFile loads configuration from a YAML file.
// If path is empty, searches standard locations. Returns defaults if no file found.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.DownloadDir = ExpandHome(cfg.DownloadDir)
	cfg.LibraryDir = ExpandHome(cfg.LibraryDir)
	cfg.Watch.Inbox = ExpandHome(cfg.Watch.Inbox)

	return cfg, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() string {
	home := homeDir()
	locations := []string{
		"./tunetag.yaml",
		"./tunetag.yml",
		filepath.Join(home, ".config", "tunetag", "config.yaml"),
		filepath.Join(home, ".config", "tunetag", "config.yml"),
	}

	for _, path := range locations {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// SaveConfigFile saves the current configuration to a YAML file
func SaveConfigFile(cfg Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() string {
	return filepath.Join(homeDir(), ".config", "tunetag", "config.yaml")
}

// GetDefaultLogPath returns the default log directory path
func GetDefaultLogPath() string {
	return filepath.Join(homeDir(), ".local", "share", "tunetag", "logs")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

var knownTertiary = map[string]bool{"discogs": true, "itunes": true, "deezer": true}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ParallelJobs < 1 {
		return fmt.Errorf("parallel jobs must be at least 1, got %d", c.ParallelJobs)
	}
	if c.ParallelJobs > 10 {
		return fmt.Errorf("parallel jobs cannot exceed 10 (to avoid rate limiting), got %d", c.ParallelJobs)
	}

	validFormats := []string{"mp3", "m4a"}
	isValid := false
	for _, format := range validFormats {
		if c.AudioFormat == format {
			isValid = true
			break
		}
	}
	if !isValid {
		return fmt.Errorf("unsupported audio format '%s', valid formats: %v", c.AudioFormat, validFormats)
	}

	if c.DownloadDir == "" {
		return fmt.Errorf("download_dir cannot be empty")
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.InitialDelay < 0 {
		return fmt.Errorf("retry.initial_delay cannot be negative")
	}

	for _, ext := range c.Upload.AllowedExts {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("upload.allowed_exts entries must start with a dot, got %q", ext)
		}
	}

	l := c.Lookup
	if l.MinConfidence < 0 || l.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be between 0.0 and 1.0, got %.2f", l.MinConfidence)
	}
	if l.Enable && l.MusicBrainzUserAgent == "" {
		return fmt.Errorf("musicbrainz_useragent is required when metadata lookup is enabled")
	}
	if l.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout cannot be negative")
	}
	for _, s := range l.TertiarySources {
		if !knownTertiary[s] {
			return fmt.Errorf("unknown tertiary source %q, valid sources: discogs, itunes, deezer", s)
		}
	}
	if l.Discogs.Token != "" && l.Discogs.UserAgent == "" {
		return fmt.Errorf("discogs.user_agent is required when discogs.token is set")
	}

	return nil
}

// RetryAttempts is the configured attempt count, never below 1.
func (c *Config) RetryAttempts() int {
	if c.Retry.MaxAttempts < 1 {
		return 1
	}
	return c.Retry.MaxAttempts
}

// UploadDir is the directory uploads are stored in.
func (c *Config) UploadDir() string {
	return filepath.Join(c.DownloadDir, c.Upload.Subdir)
}
