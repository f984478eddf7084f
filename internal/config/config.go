// Package config holds the types an external YAML loader decodes feed
// configuration into, plus the environment-derived process settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"anypod/internal/db"
)

// Settings are the environment-derived process-wide knobs.
type Settings struct {
	ConfigFile  string // CONFIG_FILE: path to the feeds YAML
	DatabaseURL string // DATABASE_URL: driver-neutral URL for the store
	BaseURL     string // BASE_URL: absolute base for feed/media URLs
	BaseDataDir string // BASE_DATA_DIR: root of the on-disk media tree
	LogFile     string // LOG_FILE: rotating log destination; "" = stdout
	YtDlpPath   string // YT_DLP_PATH: path to the media-extractor binary
	FFmpegPath  string
	FFprobePath string

	HTTPPort          int // HTTP_PORT
	FeedConcurrency   int // FEED_CONCURRENCY: global semaphore weight
	RequestTimeoutSec int // REQUEST_TIMEOUT_SECONDS: subprocess/HTTP timeout
}

// LoadSettings reads process settings from the environment, applying
// production-friendly defaults so the process can start with no
// environment configured at all.
func LoadSettings() Settings {
	return Settings{
		ConfigFile:  getEnvWithDefault("CONFIG_FILE", "/config/feeds.yaml"),
		DatabaseURL: getEnvWithDefault("DATABASE_URL", "sqlite:///data/anypod.db"),
		BaseURL:     getEnvWithDefault("BASE_URL", "http://localhost:8024"),
		BaseDataDir: getEnvWithDefault("BASE_DATA_DIR", "/data"),
		LogFile:     os.Getenv("LOG_FILE"),
		YtDlpPath:   getEnvWithDefault("YT_DLP_PATH", "yt-dlp"),
		FFmpegPath:  getEnvWithDefault("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: getEnvWithDefault("FFPROBE_PATH", "ffprobe"),

		HTTPPort:          getEnvInt("HTTP_PORT", 8024),
		FeedConcurrency:   getEnvInt("FEED_CONCURRENCY", 4),
		RequestTimeoutSec: getEnvInt("REQUEST_TIMEOUT_SECONDS", 300),
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// MetadataOverride mirrors the overridable podcast-metadata fields of
// db.Feed; any field left nil is not applied.
type MetadataOverride struct {
	Title                    *string  `yaml:"title,omitempty"`
	Subtitle                 *string  `yaml:"subtitle,omitempty"`
	Description              *string  `yaml:"description,omitempty"`
	Language                 *string  `yaml:"language,omitempty"`
	Author                   *string  `yaml:"author,omitempty"`
	AuthorEmail              *string  `yaml:"author_email,omitempty"`
	Category                 *string  `yaml:"category,omitempty"`
	PodcastType              *string  `yaml:"podcast_type,omitempty"`
	Explicit                 *bool    `yaml:"explicit,omitempty"`
	RemoteImageURL           *string  `yaml:"image_url,omitempty"`
	TranscriptLang           *string  `yaml:"transcript_lang,omitempty"`
	TranscriptSourcePriority []string `yaml:"transcript_source_priority,omitempty"`
}

// FeedConfig is one entry of the YAML `feeds:` map.
type FeedConfig struct {
	ID string `yaml:"-"` // set from the map key, not decoded

	URL      *string `yaml:"url"`      // nil => manual-only feed
	Schedule string  `yaml:"schedule"` // cron expression, or literal "manual"
	Enabled  *bool   `yaml:"enabled"`  // default true
	KeepLast *int    `yaml:"keep_last"`
	Since    string  `yaml:"since"` // date-like string, parsed via dateparse

	MaxErrors int `yaml:"max_errors"` // default 3

	YtArgs any `yaml:"yt_args"` // string, []string, or nil; opaque pass-through

	Metadata *MetadataOverride `yaml:"metadata"`

	TranscriptLang           string   `yaml:"transcript_lang"`
	TranscriptSourcePriority []string `yaml:"transcript_source_priority"`
}

// Document is the top-level shape of the feeds YAML file.
type Document struct {
	Feeds map[string]*FeedConfig `yaml:"feeds"`
}

// IsEnabled applies the default-true rule.
func (f *FeedConfig) IsEnabled() bool {
	return f.Enabled == nil || *f.Enabled
}

// IsManual reports whether the feed is populated only via manual
// submission: it has no URL, or its schedule is the literal "manual".
func (f *FeedConfig) IsManual() bool {
	return f.URL == nil || *f.URL == "" || strings.EqualFold(f.Schedule, "manual")
}

// EffectiveMaxErrors applies the default of 3.
func (f *FeedConfig) EffectiveMaxErrors() int {
	if f.MaxErrors <= 0 {
		return 3
	}
	return f.MaxErrors
}

// ParsedSince parses the Since field with dateparse, returning nil if
// unset. An unparsable value is returned as an error rather than
// silently ignored; LoadDocument does not call this, the reconciler does.
func (f *FeedConfig) ParsedSince() (*time.Time, error) {
	if strings.TrimSpace(f.Since) == "" {
		return nil, nil
	}
	t, err := dateparse.ParseAny(f.Since)
	if err != nil {
		return nil, fmt.Errorf("parse since %q for feed %q: %w", f.Since, f.ID, err)
	}
	t = t.UTC()
	return &t, nil
}

// YtArgsSlice normalizes the opaque yt_args field (string, []string, or
// nil) to a flag slice the extractor wrapper appends verbatim.
func (f *FeedConfig) YtArgsSlice() []string {
	switch v := f.YtArgs.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return strings.Fields(v)
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// ToMetadataUpdate translates a YAML override struct into a
// db.FeedMetadataUpdate, resolving the string-typed podcast_type and
// transcript_source_priority fields into their db-level types.
func (o *MetadataOverride) ToMetadataUpdate() db.FeedMetadataUpdate {
	if o == nil {
		return db.FeedMetadataUpdate{}
	}
	u := db.FeedMetadataUpdate{
		Title:          o.Title,
		Subtitle:       o.Subtitle,
		Description:    o.Description,
		Language:       o.Language,
		Author:         o.Author,
		AuthorEmail:    o.AuthorEmail,
		Category:       o.Category,
		Explicit:       o.Explicit,
		RemoteImageURL: o.RemoteImageURL,
		TranscriptLang: o.TranscriptLang,
	}
	if o.PodcastType != nil {
		pt := db.PodcastType(*o.PodcastType)
		u.PodcastType = &pt
	}
	if o.TranscriptSourcePriority != nil {
		prio := make([]db.TranscriptSource, len(o.TranscriptSourcePriority))
		for i, s := range o.TranscriptSourcePriority {
			prio[i] = db.TranscriptSource(s)
		}
		u.TranscriptSourcePriority = &prio
	}
	return u
}

// LoadDocument is a best-effort convenience wrapper around decoding the
// feeds YAML at path; production deployments may load and validate the
// document with their own tooling and construct FeedConfig values
// directly.
func LoadDocument(path string, unmarshal func([]byte, any) error) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	var doc Document
	if err := unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}
	for id, fc := range doc.Feeds {
		fc.ID = id
	}
	return &doc, nil
}
