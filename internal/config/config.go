package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vjranagit/histextract/pkg/pipeline"
	"github.com/vjranagit/histextract/pkg/storage"
)

// Config holds the application configuration
type Config struct {
	Extract ExtractConfig `json:"extract"`
	Storage StorageConfig `json:"storage"`
	Log     LogConfig     `json:"log"`
}

// ExtractConfig names the reference point node sets and output layout
type ExtractConfig struct {
	Instance     string `json:"instance" validate:"required"`
	LowerSet     string `json:"lower_set" validate:"required"`
	UpperSet     string `json:"upper_set" validate:"required"`
	RoadSet      string `json:"road_set" validate:"required"`
	OutputSubdir string `json:"output_subdir" validate:"required,excludesall=/\\"`
	KeepTemp     bool   `json:"keep_temp"`
}

// StorageConfig holds result store configuration
type StorageConfig struct {
	CompressionLevel int           `json:"compression_level" validate:"min=1,max=4"`
	CacheCapacity    int           `json:"cache_capacity" validate:"min=0"`
	CacheTTL         time.Duration `json:"cache_ttl" validate:"min=0"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `json:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Extract: ExtractConfig{
			Instance:     getEnv("HISTX_INSTANCE", "PART-1-1"),
			LowerSet:     getEnv("HISTX_LOWER_SET", "LOWER_RIM_REFERENCE_POINT"),
			UpperSet:     getEnv("HISTX_UPPER_SET", "UPPER_RIM_REFERENCE_POINT"),
			RoadSet:      getEnv("HISTX_ROAD_SET", "ROAD_REFERENCE_POINT"),
			OutputSubdir: getEnv("HISTX_OUTPUT_SUBDIR", "temp"),
			KeepTemp:     getEnvBool("HISTX_KEEP_TEMP", false),
		},
		Storage: StorageConfig{
			CompressionLevel: getEnvInt("COMPRESSION_LEVEL", 3),
			CacheCapacity:    getEnvInt("CACHE_CAPACITY", 64),
			CacheTTL:         getEnvDuration("CACHE_TTL", 10*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("HISTX_LOG_LEVEL", "info"),
		},
	}
}

// ToStorageConfig converts to storage.Config for the result at path
func (c *Config) ToStorageConfig(path string) *storage.Config {
	return &storage.Config{
		Path:             path,
		CompressionLevel: c.Storage.CompressionLevel,
		CacheCapacity:    c.Storage.CacheCapacity,
		CacheTTL:         c.Storage.CacheTTL,
	}
}

// ToPipelineOptions converts to pipeline.Options writing under workdir
func (c *Config) ToPipelineOptions(workdir string) pipeline.Options {
	return pipeline.Options{
		Instance:  c.Extract.Instance,
		LowerSet:  c.Extract.LowerSet,
		UpperSet:  c.Extract.UpperSet,
		RoadSet:   c.Extract.RoadSet,
		OutputDir: filepath.Join(workdir, c.Extract.OutputSubdir),
		KeepTemp:  c.Extract.KeepTemp,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
