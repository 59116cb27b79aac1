package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/air-quality-features/internal/common"
	"github.com/i474232898/air-quality-features/internal/features"
)

// DefaultFeatureDefinitions is the schema of the air-quality feature group.
var DefaultFeatureDefinitions = []string{
	features.FieldRecordID, features.FieldEventTime, "date", "city",
	"tempmax", "tempmin", "temp", "feelslikemax", "feelslikemin", "feelslike",
	"dew", "humidity", "precip", "precipprob", "precipcover", "snow", "snowdepth",
	"windgust", "windspeed", "winddir", "pressure", "cloudcover", "visibility",
	"solarradiation", "solarenergy", "uvindex", "moonphase", "conditions", "pm25",
}

type AppConfig struct {
	WeatherAPIKey     string `validate:"required"`
	AirQualityAPIKey  string `validate:"required"`
	WeatherBaseURL    string `validate:"omitempty,url"`
	AirQualityBaseURL string `validate:"omitempty,url"`

	// FeatureGroupName identifies the destination feature group.
	FeatureGroupName   string   `validate:"required"`
	FeatureDefinitions []string `validate:"min=1,dive,required"`

	// Cities to collect, in order.
	Cities []string `validate:"min=1,dive,required"`

	// Schedule is a cron expression evaluated in UTC.
	Schedule   string `validate:"required"`
	RunOnStart bool

	HTTPTimeout              time.Duration `validate:"gt=0"`
	FetchMaxAttempts         int           `validate:"min=1"`
	FetchRetryInitialBackoff time.Duration `validate:"gte=0"`
	FetchRetryMaxBackoff     time.Duration `validate:"gte=0"`

	StoreBackend   string `validate:"oneof=memory redis mongo"`
	RedisAddr      string `validate:"required_if=StoreBackend redis"`
	RedisUsername  string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string
	MongoURI       string `validate:"required_if=StoreBackend mongo"`
	MongoDatabase  string `validate:"required_if=StoreBackend mongo"`
	MongoTimeout   time.Duration

	MetricsSink      string `validate:"oneof=prometheus log"`
	MetricsNamespace string

	// Run history retention.
	RunHistoryMax    int           // max number of runs kept (0 = unlimited)
	RunHistoryMaxAge time.Duration // max age of runs (0 = unlimited)

	Port string
}

// envNames maps config fields to the variables they are read from.
var envNames = map[string]string{
	"WeatherAPIKey":            "WEATHER_API_KEY",
	"AirQualityAPIKey":         "AIR_QUALITY_API_KEY",
	"WeatherBaseURL":           "WEATHER_API_BASE_URL",
	"AirQualityBaseURL":        "AIR_QUALITY_API_BASE_URL",
	"FeatureGroupName":         "FEATURE_GROUP_NAME",
	"FeatureDefinitions":       "FEATURE_DEFINITIONS",
	"Cities":                   "CITIES",
	"Schedule":                 "FETCH_SCHEDULE",
	"HTTPTimeout":              "HTTP_TIMEOUT",
	"FetchMaxAttempts":         "FETCH_MAX_ATTEMPTS",
	"FetchRetryInitialBackoff": "FETCH_RETRY_INITIAL_BACKOFF",
	"FetchRetryMaxBackoff":     "FETCH_RETRY_MAX_BACKOFF",
	"StoreBackend":             "FEATURE_STORE_BACKEND",
	"RedisAddr":                "REDIS_ADDR",
	"MongoURI":                 "MONGO_URI",
	"MongoDatabase":            "MONGO_DATABASE",
	"MetricsSink":              "METRICS_SINK",
}

var validate = validator.New()

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.WeatherAPIKey = os.Getenv("WEATHER_API_KEY")
	cfg.AirQualityAPIKey = os.Getenv("AIR_QUALITY_API_KEY")
	cfg.WeatherBaseURL = os.Getenv("WEATHER_API_BASE_URL")
	cfg.AirQualityBaseURL = os.Getenv("AIR_QUALITY_API_BASE_URL")

	cfg.FeatureGroupName = os.Getenv("FEATURE_GROUP_NAME")
	cfg.FeatureDefinitions = DefaultFeatureDefinitions
	if defs := common.SplitAndTrim(os.Getenv("FEATURE_DEFINITIONS")); len(defs) > 0 {
		cfg.FeatureDefinitions = defs
	}
	cfg.Cities = common.SplitAndTrim(getenvDefault("CITIES", "los angeles"))

	// Daily at 12:00 UTC.
	cfg.Schedule = getenvDefault("FETCH_SCHEDULE", "0 12 * * *")
	runOnStart, err := getenvBool("RUN_ON_START", false)
	if err != nil {
		return nil, err
	}
	cfg.RunOnStart = runOnStart

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"HTTP_TIMEOUT", "30s", &cfg.HTTPTimeout},
		{"FETCH_RETRY_INITIAL_BACKOFF", "4s", &cfg.FetchRetryInitialBackoff},
		{"FETCH_RETRY_MAX_BACKOFF", "10s", &cfg.FetchRetryMaxBackoff},
		{"MONGO_TIMEOUT", "10s", &cfg.MongoTimeout},
		{"RUN_HISTORY_MAX_AGE", "720h", &cfg.RunHistoryMaxAge},
	}
	for _, d := range durations {
		v, err := getenvDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}
	cfg.FetchMaxAttempts = getenvInt("FETCH_MAX_ATTEMPTS", 3)

	cfg.StoreBackend = strings.ToLower(getenvDefault("FEATURE_STORE_BACKEND", "memory"))
	cfg.RedisAddr = getenvDefault("REDIS_ADDR", "localhost:6379")
	cfg.RedisUsername = os.Getenv("REDIS_USERNAME")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getenvInt("REDIS_DB", 0)
	cfg.RedisKeyPrefix = getenvDefault("REDIS_KEY_PREFIX", "featurestore")
	cfg.MongoURI = getenvDefault("MONGO_URI", "mongodb://localhost:27017")
	cfg.MongoDatabase = getenvDefault("MONGO_DATABASE", "featurestore")

	cfg.MetricsSink = strings.ToLower(getenvDefault("METRICS_SINK", "prometheus"))
	cfg.MetricsNamespace = getenvDefault("METRICS_NAMESPACE", "air_quality_features")

	cfg.RunHistoryMax = getenvInt("RUN_HISTORY_MAX", 90) // roughly three months of daily runs
	cfg.Port = getenvDefault("PORT", "8080")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and reports them as a ConfigurationError.
func (c *AppConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &features.ConfigurationError{Reason: err.Error()}
	}

	cfgErr := &features.ConfigurationError{}
	seen := make(map[string]bool)
	var reasons []string
	for _, fe := range verrs {
		field := fe.StructField()
		if i := strings.IndexByte(field, '['); i >= 0 {
			field = field[:i]
		}
		name := envName(field)
		switch fe.Tag() {
		case "required", "required_if", "min":
			if !seen[name] {
				seen[name] = true
				cfgErr.Missing = append(cfgErr.Missing, name)
			}
		default:
			reasons = append(reasons, fmt.Sprintf("%s failed %s", name, fe.Tag()))
		}
	}
	cfgErr.Reason = strings.Join(reasons, "; ")
	return cfgErr
}

func envName(field string) string {
	if name, ok := envNames[field]; ok {
		return name
	}
	return field
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
