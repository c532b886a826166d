package config

import (
	"os"
	"strings"
)

// Config holds all configuration for the demuxer CLI
type Config struct {
	// File paths
	InputFile  string
	OutputFile string

	// Track selection
	TrackNumber        int
	PreferredLanguages []string

	// Extraction options
	SeekMS     int64
	MaxPackets int
	ShowExtra  bool

	// User options
	UseColors   bool
	ProgressLog bool
	QuietMode   bool
}

// parseLanguages parses a comma-separated language list from an environment
// variable.
func parseLanguages(envKey string) []string {
	value := os.Getenv(envKey)
	if value == "" {
		return []string{}
	}

	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		PreferredLanguages: parseLanguages("MKV_SUBTITLE_LANGUAGES"),
		TrackNumber:        0,
		SeekMS:             -1,
		MaxPackets:         0,
		UseColors:          true,
		ProgressLog:        false,
		QuietMode:          false,
	}
}
