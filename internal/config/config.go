// Package config provides configuration management for the render agent.
// Configuration is loaded from environment variables with sensible defaults;
// a .env file in the working directory is honoured when present.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort     = 8790
	DefaultLogLevel = "info"
	DefaultDataDir  = ".clipforge"

	// Environment variable names
	EnvPort      = "CLIPFORGE_PORT"
	EnvLogLevel  = "CLIPFORGE_LOG_LEVEL"
	EnvDataDir   = "CLIPFORGE_DATA_DIR"
	EnvOutputDir = "CLIPFORGE_OUTPUT_DIR"

	// Engine environment variable names
	EnvFFmpegPath  = "CLIPFORGE_FFMPEG"
	EnvFFprobePath = "CLIPFORGE_FFPROBE"

	// Restriction environment variable names
	EnvRestrictionsEnabled = "CLIPFORGE_RESTRICTIONS"
	EnvMaxSourceDuration   = "CLIPFORGE_MAX_SOURCE_DURATION"
	EnvMaxSourceWidth      = "CLIPFORGE_MAX_SOURCE_WIDTH"
	EnvMaxSourceHeight     = "CLIPFORGE_MAX_SOURCE_HEIGHT"

	// Database filename
	DBFilename = "clipforge.db"

	// Encode defaults. The near-lossless CRF is used when transcoding an
	// adaptive stream that will be re-encoded again during concatenation,
	// so total quality loss stays bounded to one lossy pass.
	DefaultEncodePreset     = "medium"
	DefaultEncodeCRF        = 23
	DefaultNearLosslessCRF  = 10
	DefaultFrameRate        = 30
	DefaultImageDurationSec = 5.0

	// Pipeline thresholds
	DefaultMinCutDurationSec  = 0.05
	DefaultMinCopySegmentSec  = 2.0
	DefaultMaxSourceDuration  = 3600.0 // seconds
	DefaultMaxSourceWidth     = 3840
	DefaultMaxSourceHeight    = 2160
	DefaultVerifyRetries      = 10
	DefaultVerifyIntervalMs   = 200
	DefaultSegmentTimeoutSec  = 600
	DefaultConcatTimeoutSec   = 1800
	DefaultDownloadTimeoutSec = 300
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	WorkDir() string
	OutputDir() string

	FFmpegPath() string
	FFprobePath() string

	EncodePreset() string
	EncodeCRF() int
	NearLosslessCRF() int
	FrameRate() int
	ImageClipDuration() float64

	MinCutDuration() float64
	MinCopySegment() float64

	RestrictionsEnabled() bool
	MaxSourceDuration() float64
	MaxSourceWidth() int
	MaxSourceHeight() int

	VerifyRetries() int
	VerifyInterval() time.Duration
	SegmentTimeout() time.Duration
	ConcatTimeout() time.Duration
	DownloadTimeout() time.Duration
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port      int
	logLevel  string
	dataDir   string
	outputDir string

	ffmpegPath  string
	ffprobePath string

	restrictionsEnabled bool
	maxSourceDuration   float64
	maxSourceWidth      int
	maxSourceHeight     int
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	// Optional .env for local development; ignored when absent.
	_ = godotenv.Load()

	cfg := &EnvConfig{
		port:              DefaultPort,
		logLevel:          DefaultLogLevel,
		dataDir:           defaultDataDir(),
		maxSourceDuration: DefaultMaxSourceDuration,
		maxSourceWidth:    DefaultMaxSourceWidth,
		maxSourceHeight:   DefaultMaxSourceHeight,
	}

	// Override port from environment
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

	// Override log level from environment
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	// Override data directory from environment
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if od := os.Getenv(EnvOutputDir); od != "" {
		cfg.outputDir = od
	}

	cfg.ffmpegPath = os.Getenv(EnvFFmpegPath)
	cfg.ffprobePath = os.Getenv(EnvFFprobePath)

	if re := os.Getenv(EnvRestrictionsEnabled); re != "" {
		enabled, err := strconv.ParseBool(re)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvRestrictionsEnabled, err)
		}
		cfg.restrictionsEnabled = enabled
	}

	if md := os.Getenv(EnvMaxSourceDuration); md != "" {
		dur, err := strconv.ParseFloat(md, 64)
		if err != nil || dur <= 0 {
			return nil, fmt.Errorf("invalid %s: must be a positive number of seconds", EnvMaxSourceDuration)
		}
		cfg.maxSourceDuration = dur
	}

	if mw := os.Getenv(EnvMaxSourceWidth); mw != "" {
		w, err := strconv.Atoi(mw)
		if err != nil || w <= 0 {
			return nil, fmt.Errorf("invalid %s: must be a positive integer", EnvMaxSourceWidth)
		}
		cfg.maxSourceWidth = w
	}

	if mh := os.Getenv(EnvMaxSourceHeight); mh != "" {
		h, err := strconv.Atoi(mh)
		if err != nil || h <= 0 {
			return nil, fmt.Errorf("invalid %s: must be a positive integer", EnvMaxSourceHeight)
		}
		cfg.maxSourceHeight = h
	}

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

// WorkDir returns the base directory under which per-job temporary
// directories are created.
func (c *EnvConfig) WorkDir() string {
	return filepath.Join(c.dataDir, "work")
}

// OutputDir returns the directory rendered output files are written to
func (c *EnvConfig) OutputDir() string {
	if c.outputDir != "" {
		return c.outputDir
	}
	return filepath.Join(c.dataDir, "output")
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

func (c *EnvConfig) EncodePreset() string {
	return DefaultEncodePreset
}

func (c *EnvConfig) EncodeCRF() int {
	return DefaultEncodeCRF
}

func (c *EnvConfig) NearLosslessCRF() int {
	return DefaultNearLosslessCRF
}

func (c *EnvConfig) FrameRate() int {
	return DefaultFrameRate
}

func (c *EnvConfig) ImageClipDuration() float64 {
	return DefaultImageDurationSec
}

func (c *EnvConfig) MinCutDuration() float64 {
	return DefaultMinCutDurationSec
}

func (c *EnvConfig) MinCopySegment() float64 {
	return DefaultMinCopySegmentSec
}

func (c *EnvConfig) RestrictionsEnabled() bool {
	return c.restrictionsEnabled
}

func (c *EnvConfig) MaxSourceDuration() float64 {
	return c.maxSourceDuration
}

func (c *EnvConfig) MaxSourceWidth() int {
	return c.maxSourceWidth
}

func (c *EnvConfig) MaxSourceHeight() int {
	return c.maxSourceHeight
}

func (c *EnvConfig) VerifyRetries() int {
	return DefaultVerifyRetries
}

func (c *EnvConfig) VerifyInterval() time.Duration {
	return DefaultVerifyIntervalMs * time.Millisecond
}

func (c *EnvConfig) SegmentTimeout() time.Duration {
	return DefaultSegmentTimeoutSec * time.Second
}

func (c *EnvConfig) ConcatTimeout() time.Duration {
	return DefaultConcatTimeoutSec * time.Second
}

func (c *EnvConfig) DownloadTimeout() time.Duration {
	return DefaultDownloadTimeoutSec * time.Second
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
