// Package config holds every knob the downloader reads. Values are
// threaded through the components explicitly; nothing reads globals.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultUserAgent = "splitfetch/1.1"

	// Streaming buffer sizes. Fetch and assembly are sequential disk
	// writes, so the buffers stay modest; hashing reads larger blocks.
	FetchBufferSize    = 64 * 1024
	AssembleBufferSize = 128 * 1024
	HashBufferSize     = 1024 * 1024

	MaxRedirects = 3
)

// Settings is the full configuration for one download run.
type Settings struct {
	URL        string
	OutputPath string

	Workers     int
	ChunkSizeMB int
	MaxRetries  int
	Timeout     time.Duration

	KeepParts bool
	NoResume  bool
	SHA256    string

	UserAgent string
	Headers   map[string]string

	// RetryDelay is multiplied by the attempt number between segment
	// retries; SingleRetryDelay does the same for the whole-file
	// fallback path.
	RetryDelay       time.Duration
	SingleRetryDelay time.Duration
}

func Defaults() Settings {
	return Settings{
		Workers:          8,
		MaxRetries:       3,
		Timeout:          60 * time.Second,
		UserAgent:        DefaultUserAgent,
		Headers:          make(map[string]string),
		RetryDelay:       time.Second,
		SingleRetryDelay: 1500 * time.Millisecond,
	}
}

// fileSettings is the YAML shape of an optional settings file. Only the
// fields a user would reasonably pin live here.
type fileSettings struct {
	Workers     *int    `yaml:"workers"`
	ChunkSizeMB *int    `yaml:"chunk_size_mb"`
	MaxRetries  *int    `yaml:"max_retries"`
	Timeout     *string `yaml:"timeout"`
	UserAgent   *string `yaml:"user_agent"`
	KeepParts   *bool   `yaml:"keep_parts"`
}

// ApplyFile overlays settings from a YAML file onto s.
func ApplyFile(s *Settings, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading settings file: %w", err)
	}
	var fs fileSettings
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return fmt.Errorf("error parsing settings file %s: %w", path, err)
	}
	if fs.Workers != nil {
		s.Workers = *fs.Workers
	}
	if fs.ChunkSizeMB != nil {
		s.ChunkSizeMB = *fs.ChunkSizeMB
	}
	if fs.MaxRetries != nil {
		s.MaxRetries = *fs.MaxRetries
	}
	if fs.Timeout != nil {
		d, err := time.ParseDuration(*fs.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout in settings file: %w", err)
		}
		s.Timeout = d
	}
	if fs.UserAgent != nil {
		s.UserAgent = *fs.UserAgent
	}
	if fs.KeepParts != nil {
		s.KeepParts = *fs.KeepParts
	}
	return nil
}

// ApplyEnv overlays SPLITFETCH_* environment variables onto s. A .env
// file in the working directory is honored when present.
func ApplyEnv(s *Settings) {
	godotenv.Load()
	if v := getEnv("SPLITFETCH_USER_AGENT", ""); v != "" {
		s.UserAgent = v
	}
	if v := getEnv("SPLITFETCH_WORKERS", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.Workers = n
		}
	}
	if v := getEnv("SPLITFETCH_MAX_RETRIES", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.MaxRetries = n
		}
	}
	if v := getEnv("SPLITFETCH_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			s.Timeout = d
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// ParseHeaderArgs turns repeated "Key: Value" flag values into a map.
func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}
