package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Detector backends accepted by DETECTOR_BACKEND.
const (
	BackendOpenCV      = "opencv"
	BackendONNXRuntime = "onnxruntime"
	BackendRemote      = "remote"
)

type Config struct {
	Port int
	// APIKey enables X-API-Key checks when non-empty.
	APIKey string

	DetectorBackend  string
	ModelPath        string
	ONNXRuntimeLib   string
	InferenceURL     string
	InferenceTimeout time.Duration
	ImageSize        int
	ConfThreshold    float64
	IoUThreshold     float64
	MaxDetections    int
	NumClasses       int
	DetectorWorkers  int

	ContainmentThreshold float64
	MaxMergeIterations   int

	MaxUploadBytes int64

	DatabasePath         string
	ArchiveDirectory     string
	ArchiveBufferLimit   int
	ArchiveFlushInterval int // seconds
	LogDirectory         string
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// LoadFile reads the given dotenv files before the environment. Existing variables win.
func LoadFile(filenames ...string) (*Config, error) {
	if err := godotenv.Load(filenames...); err != nil {
		return nil, errors.Wrap(err, "load env file")
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from the process environment and defaults.
func FromEnv() *Config {
	return &Config{
		Port:                 getEnvAsInt("PORT", 8000),
		APIKey:               getEnv("API_KEY", ""),
		DetectorBackend:      getEnv("DETECTOR_BACKEND", BackendOpenCV),
		ModelPath:            getEnv("MODEL_PATH", "model.onnx"),
		ONNXRuntimeLib:       getEnv("ONNXRUNTIME_LIB", ""),
		InferenceURL:         getEnv("INFERENCE_URL", ""),
		InferenceTimeout:     time.Duration(getEnvAsInt("INFERENCE_TIMEOUT", 30)) * time.Second,
		ImageSize:            getEnvAsInt("IMG_SIZE", 640),
		ConfThreshold:        getEnvAsFloat("CONF_THRESH", 0.3),
		IoUThreshold:         getEnvAsFloat("IOU_THRESH", 0.7),
		MaxDetections:        getEnvAsInt("MAX_DET", 300),
		NumClasses:           getEnvAsInt("NUM_CLASSES", 1),
		DetectorWorkers:      getEnvAsInt("DETECTOR_WORKERS", 2),
		ContainmentThreshold: getEnvAsFloat("CONTAINMENT_THRESHOLD", 0.9),
		MaxMergeIterations:   getEnvAsInt("MAX_MERGE_ITERATIONS", 10),
		MaxUploadBytes:       getEnvAsInt64("MAX_UPLOAD_MB", 50) << 20,
		DatabasePath:         getEnv("DB_PATH", filepath.Join(".", "data", "predictions.db")),
		ArchiveDirectory:     getEnv("ARCHIVE_DIR", filepath.Join(".", "archive")),
		ArchiveBufferLimit:   getEnvAsInt("ARCHIVE_BUFFER_LIMIT", 20),
		ArchiveFlushInterval: getEnvAsInt("ARCHIVE_FLUSH_INTERVAL", 10),
		LogDirectory:         getEnv("LOG_DIR", filepath.Join(".", "logs")),
	}
}

// ArchiveEnabled reports whether predictions are persisted.
func (c *Config) ArchiveEnabled() bool {
	return c.DatabasePath != ""
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return errors.Errorf("invalid PORT %d", c.Port)
	case c.ConfThreshold <= 0 || c.ConfThreshold > 1:
		return errors.Errorf("CONF_THRESH must be in (0, 1], got %v", c.ConfThreshold)
	case c.IoUThreshold <= 0 || c.IoUThreshold > 1:
		return errors.Errorf("IOU_THRESH must be in (0, 1], got %v", c.IoUThreshold)
	case c.ContainmentThreshold <= 0 || c.ContainmentThreshold > 1:
		return errors.Errorf("CONTAINMENT_THRESHOLD must be in (0, 1], got %v", c.ContainmentThreshold)
	case c.ImageSize <= 0 || c.ImageSize%32 != 0:
		return errors.Errorf("IMG_SIZE must be a positive multiple of 32, got %d", c.ImageSize)
	case c.MaxDetections <= 0:
		return errors.Errorf("MAX_DET must be positive, got %d", c.MaxDetections)
	case c.NumClasses <= 0:
		return errors.Errorf("NUM_CLASSES must be positive, got %d", c.NumClasses)
	case c.DetectorWorkers <= 0:
		return errors.Errorf("DETECTOR_WORKERS must be positive, got %d", c.DetectorWorkers)
	case c.MaxMergeIterations <= 0:
		return errors.Errorf("MAX_MERGE_ITERATIONS must be positive, got %d", c.MaxMergeIterations)
	case c.MaxUploadBytes <= 0:
		return errors.New("MAX_UPLOAD_MB must be positive")
	case c.ArchiveBufferLimit <= 0 || c.ArchiveFlushInterval <= 0:
		return errors.New("archive buffer limit and flush interval must be positive")
	}

	switch c.DetectorBackend {
	case BackendOpenCV, BackendONNXRuntime:
	case BackendRemote:
		if c.InferenceURL == "" {
			return errors.New("INFERENCE_URL is required for the remote backend")
		}
	default:
		return errors.Errorf("unknown DETECTOR_BACKEND %q", c.DetectorBackend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
