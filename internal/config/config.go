package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     int
	Password string

	DatabasePath string
	LogDirectory string

	DetectorModelPath   string
	DetectorInputSize   int
	DetectorConfidence  float64 // Pre-filter applied by the detector itself, before crop validation
	DetectorNMS         float64
	ModelDirectory      string // Classifier weights, one file per category role
	OnnxRuntimeLibrary  string
	ClassifierInputName string
	ClassifierOutput    string

	StorageBackend     string // "local" or "gcs"
	ArtifactDirectory  string
	PublicBaseURL      string
	GCSBucket          string
	GCSCredentialsJSON string // base64 encoded service account JSON

	FetchTimeout    time.Duration
	AnalysisTimeout time.Duration
	MaxUploadSize   int64
	MaxImageBytes   int64
	StoreAnnotated  bool

	KafkaBootstrapServers string
	KafkaTopic            string

	AllowedOrigins string
}

// Load reads an optional .env file and builds the configuration from the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:     getEnvAsInt("PORT", 8000),
		Password: getEnv("PASSWORD", ""),

		DatabasePath: getEnv("DB_PATH", filepath.Join(".", "data", "analysis.db")),
		LogDirectory: getEnv("LOG_DIR", filepath.Join(".", "logs")),

		DetectorModelPath:   getEnv("DETECTOR_MODEL", filepath.Join(".", "weights", "wisePlate.onnx")),
		DetectorInputSize:   getEnvAsInt("DETECTOR_INPUT_SIZE", 640),
		DetectorConfidence:  getEnvAsFloat("DETECTOR_CONFIDENCE", 0.25),
		DetectorNMS:         getEnvAsFloat("DETECTOR_NMS", 0.45),
		ModelDirectory:      getEnv("MODEL_DIR", filepath.Join(".", "weights")),
		OnnxRuntimeLibrary:  getEnv("ONNXRUNTIME_LIB", filepath.Join(".", "third_party", "onnxruntime.so")),
		ClassifierInputName: getEnv("CLASSIFIER_INPUT", "images"),
		ClassifierOutput:    getEnv("CLASSIFIER_OUTPUT", "output0"),

		StorageBackend:     getEnv("STORAGE_BACKEND", "local"),
		ArtifactDirectory:  getEnv("ARTIFACT_DIR", filepath.Join(".", "artifacts")),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", "http://localhost:8000/artifacts"),
		GCSBucket:          getEnv("GCS_BUCKET", "wise-uploads"),
		GCSCredentialsJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		FetchTimeout:    getEnvAsDuration("FETCH_TIMEOUT", 30*time.Second),
		AnalysisTimeout: getEnvAsDuration("ANALYSIS_TIMEOUT", 2*time.Minute),
		MaxUploadSize:   getEnvAsInt64("MAX_UPLOAD_SIZE", 10<<20),
		MaxImageBytes:   getEnvAsInt64("MAX_IMAGE_BYTES", 25<<20),
		StoreAnnotated:  getEnvAsBool("STORE_ANNOTATED", false),

		KafkaBootstrapServers: getEnv("KAFKA_BOOTSTRAP_SERVERS", ""),
		KafkaTopic:            getEnv("KAFKA_TOPIC", "tray-analysis"),

		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
