// Package config provides configuration management for the clipforge engine.
// Configuration is loaded from environment variables with sensible defaults;
// encoder profiles come from an optional YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// Default values
	DefaultPort          = 8765
	DefaultLogLevel      = "info"
	DefaultDataDir       = ".clipforge"
	DefaultChunkSeconds  = 2.0
	DefaultMaxRenderJobs = 2
	DefaultStopGrace     = 3 * time.Second
	DefaultProxyHeight   = 360

	// Environment variable names
	EnvPort          = "CLIPFORGE_PORT"
	EnvLogLevel      = "CLIPFORGE_LOG_LEVEL"
	EnvDataDir       = "CLIPFORGE_DATA_DIR"
	EnvFFmpeg        = "CLIPFORGE_FFMPEG"
	EnvFFprobe       = "CLIPFORGE_FFPROBE"
	EnvChunkSeconds  = "CLIPFORGE_CHUNK_SECONDS"
	EnvMaxRenderJobs = "CLIPFORGE_MAX_RENDER_JOBS"
	EnvProfilesPath  = "CLIPFORGE_PROFILES"
	EnvAuthToken     = "CLIPFORGE_AUTH_TOKEN"

	// Database filename
	DBFilename = "clipforge.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	CacheDir() string
	ProxyDir() string
	FFmpegPath() string
	FFprobePath() string
	ChunkSeconds() float64
	MaxRenderJobs() int
	StopGrace() time.Duration
	ProxyHeight() int
	ProfilesPath() string
	AuthToken() string
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port          int
	logLevel      string
	dataDir       string
	ffmpegPath    string
	ffprobePath   string
	chunkSeconds  float64
	maxRenderJobs int
	profilesPath  string
	authToken     string
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:          DefaultPort,
		logLevel:      DefaultLogLevel,
		dataDir:       defaultDataDir(),
		ffmpegPath:    "ffmpeg",
		ffprobePath:   "ffprobe",
		chunkSeconds:  DefaultChunkSeconds,
		maxRenderJobs: DefaultMaxRenderJobs,
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if f := os.Getenv(EnvFFmpeg); f != "" {
		cfg.ffmpegPath = f
	}
	if f := os.Getenv(EnvFFprobe); f != "" {
		cfg.ffprobePath = f
	}

	if cs := os.Getenv(EnvChunkSeconds); cs != "" {
		sec, err := strconv.ParseFloat(cs, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvChunkSeconds, err)
		}
		if sec <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", EnvChunkSeconds)
		}
		cfg.chunkSeconds = sec
	}

	if mj := os.Getenv(EnvMaxRenderJobs); mj != "" {
		n, err := strconv.Atoi(mj)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvMaxRenderJobs, err)
		}
		if n < 1 {
			return nil, fmt.Errorf("invalid %s: must be at least 1", EnvMaxRenderJobs)
		}
		cfg.maxRenderJobs = n
	}

	cfg.profilesPath = os.Getenv(EnvProfilesPath)
	cfg.authToken = os.Getenv(EnvAuthToken)

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// CacheDir returns the directory rendered chunk files are written to
func (c *EnvConfig) CacheDir() string {
	return filepath.Join(c.dataDir, "cache")
}

// ProxyDir returns the directory generated proxy files are written to
func (c *EnvConfig) ProxyDir() string {
	return filepath.Join(c.dataDir, "proxies")
}

// FFmpegPath returns the ffmpeg binary name or path
func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

// FFprobePath returns the ffprobe binary name or path
func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

// ChunkSeconds returns the fixed preview chunk duration in seconds
func (c *EnvConfig) ChunkSeconds() float64 {
	return c.chunkSeconds
}

// MaxRenderJobs returns the maximum number of concurrent render subprocesses
func (c *EnvConfig) MaxRenderJobs() int {
	return c.maxRenderJobs
}

// StopGrace returns how long a subprocess gets to exit after a graceful stop
// before it is killed
func (c *EnvConfig) StopGrace() time.Duration {
	return DefaultStopGrace
}

// ProxyHeight returns the target height for generated proxy files
func (c *EnvConfig) ProxyHeight() int {
	return DefaultProxyHeight
}

// ProfilesPath returns the encoder profiles YAML path, empty for defaults
func (c *EnvConfig) ProfilesPath() string {
	return c.profilesPath
}

// AuthToken returns the static API token, empty to disable auth
func (c *EnvConfig) AuthToken() string {
	return c.authToken
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
