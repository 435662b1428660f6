package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr        string
	DatabaseURL string

	PipelineDir  string
	ScriptsDir   string
	PythonBin    string
	ReferenceCSV string
	WorkdirRoot  string

	StepTimeout  time.Duration
	TrainTimeout time.Duration

	JWTSecret       string
	AllowDebugToken bool

	ArtifactBucket string
	ArtifactPrefix string

	KafkaBrokers []string
	KafkaTopic   string
}

const (
	defaultAddr         = ":8072"
	defaultPythonBin    = "python3"
	defaultStepTimeout  = 10 * time.Minute
	defaultTrainTimeout = time.Hour
	defaultKafkaTopic   = "gestpipe.console.events"
)

func Load() (Config, error) {
	cfg := Config{
		Addr:            getEnv("GESTPIPE_ADDR", defaultAddr),
		DatabaseURL:     firstNonEmpty(os.Getenv("GESTPIPE_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		PipelineDir:     os.Getenv("GESTPIPE_PIPELINE_DIR"),
		ScriptsDir:      os.Getenv("GESTPIPE_SCRIPTS_DIR"),
		PythonBin:       getEnv("GESTPIPE_PYTHON_BIN", defaultPythonBin),
		ReferenceCSV:    os.Getenv("GESTPIPE_REFERENCE_CSV"),
		WorkdirRoot:     os.Getenv("GESTPIPE_WORKDIR"),
		StepTimeout:     getDuration("GESTPIPE_STEP_TIMEOUT", defaultStepTimeout),
		TrainTimeout:    getDuration("GESTPIPE_TRAIN_TIMEOUT", defaultTrainTimeout),
		JWTSecret:       os.Getenv("GESTPIPE_JWT_SECRET"),
		AllowDebugToken: getBool("GESTPIPE_ALLOW_DEBUG_TOKEN", false),
		ArtifactBucket:  os.Getenv("GESTPIPE_ARTIFACT_BUCKET"),
		ArtifactPrefix:  getEnv("GESTPIPE_ARTIFACT_PREFIX", "gestpipe"),
		KafkaBrokers:    splitList(os.Getenv("GESTPIPE_KAFKA_BROKERS")),
		KafkaTopic:      getEnv("GESTPIPE_KAFKA_TOPIC", defaultKafkaTopic),
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL or GESTPIPE_DATABASE_URL required")
	}
	if cfg.PipelineDir == "" {
		return Config{}, fmt.Errorf("GESTPIPE_PIPELINE_DIR required")
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = cfg.PipelineDir
	}
	if cfg.WorkdirRoot == "" {
		cfg.WorkdirRoot = cfg.PipelineDir
	}
	if cfg.JWTSecret == "" && !cfg.AllowDebugToken {
		return Config{}, fmt.Errorf("GESTPIPE_JWT_SECRET required unless GESTPIPE_ALLOW_DEBUG_TOKEN is set")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
