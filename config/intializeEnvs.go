package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	godotenv "github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	AppEnv string

	ActiniaURL      string
	ActiniaUser     string
	ActiniaPassword string
	ActiniaTimeout  time.Duration
	ActiniaLocation string
	ActiniaPGSource string
	ModelTemplateID string

	PollInitialInterval time.Duration
	PollMaxInterval     time.Duration
	PollMaxWait         time.Duration
	PollMaxAttempts     int

	RabbitMqURL    string
	RabbitMqQueues []string
	StatusExchange string

	HTTPAddr      string
	DbURL         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	AwsBucketName string

	LogLevel  string
	LogFormat string
}

const (
	defaultActiniaTimeout  = 15 * time.Second
	defaultActiniaLocation = "CONUS"
	defaultActiniaPG       = "PG:host=db port=5432 dbname=actinia"
	defaultModelTemplateID = "b9514dee-253e-47d9-bb5c-c65bc1a035ac"
	defaultPollInitial     = 2 * time.Second
	defaultPollMax         = 30 * time.Second
	defaultPollMaxWait     = 30 * time.Minute
	defaultPollMaxAttempts = 120
	defaultQueues          = "resource_status,model_ingest"
	defaultStatusExchange  = "savana.status"
	defaultHTTPAddr        = ":8000"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
)

var requiredKeys = []string{"ACTINIA_URL", "ACTINIA_USER", "ACTINIA_PASSWORD", "RABBITMQ_URL"}

// LoadEnvFiles overlays the .env file selected by APP_ENV onto the process
// environment. A missing file is not an error.
func LoadEnvFiles(logger logrus.FieldLogger) {
	appEnv := os.Getenv("APP_ENV")
	switch appEnv {
	case "docker":
		if err := godotenv.Overload(".env.docker"); err == nil {
			logger.Info("Loaded .env.docker")
		} else {
			logger.Info(".env.docker not found, using existing environment")
		}
	case "dev", "":
		if err := godotenv.Overload(".env.dev"); err == nil {
			logger.Info("Loaded .env.dev")
		} else if err := godotenv.Overload(".env"); err == nil {
			logger.Info("Loaded .env")
		} else {
			logger.Info("No .env.dev or .env found, using system environment variables")
		}
	default:
		fname := ".env." + appEnv
		if err := godotenv.Overload(fname); err == nil {
			logger.Infof("Loaded %s", fname)
		} else if err := godotenv.Overload(".env"); err == nil {
			logger.Info("Loaded .env")
		} else {
			logger.Infof("No %s or .env found, using system environment variables", fname)
		}
	}
}

// InitializeEnvs loads the .env files and reads the configuration from the
// environment.
func InitializeEnvs(logger logrus.FieldLogger) (*Config, error) {
	LoadEnvFiles(logger)
	return FromEnv()
}

// FromEnv reads the configuration from the process environment. All missing
// or malformed keys are reported in one error.
func FromEnv() (*Config, error) {
	var missing, malformed []string
	for _, key := range requiredKeys {
		if strings.TrimSpace(os.Getenv(key)) == "" {
			missing = append(missing, key)
		}
	}

	duration := func(key string, def time.Duration) time.Duration {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			return def
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			malformed = append(malformed, key)
			return def
		}
		return d
	}
	integer := func(key string, def int) int {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			return def
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			malformed = append(malformed, key)
			return def
		}
		return n
	}

	config := &Config{
		AppEnv:              os.Getenv("APP_ENV"),
		ActiniaURL:          strings.TrimRight(strings.TrimSpace(os.Getenv("ACTINIA_URL")), "/"),
		ActiniaUser:         os.Getenv("ACTINIA_USER"),
		ActiniaPassword:     os.Getenv("ACTINIA_PASSWORD"),
		ActiniaTimeout:      duration("ACTINIA_TIMEOUT", defaultActiniaTimeout),
		ActiniaLocation:     envOr("ACTINIA_LOCATION", defaultActiniaLocation),
		ActiniaPGSource:     envOr("ACTINIA_PG_SOURCE", defaultActiniaPG),
		ModelTemplateID:     envOr("ACTINIA_MODEL_TEMPLATE", defaultModelTemplateID),
		PollInitialInterval: duration("POLL_INITIAL_INTERVAL", defaultPollInitial),
		PollMaxInterval:     duration("POLL_MAX_INTERVAL", defaultPollMax),
		PollMaxWait:         duration("POLL_MAX_WAIT", defaultPollMaxWait),
		PollMaxAttempts:     integer("POLL_MAX_ATTEMPTS", defaultPollMaxAttempts),
		RabbitMqURL:         os.Getenv("RABBITMQ_URL"),
		RabbitMqQueues:      splitList(envOr("RABBITMQ_QUEUES", defaultQueues)),
		StatusExchange:      envOr("STATUS_EXCHANGE", defaultStatusExchange),
		HTTPAddr:            envOr("HTTP_ADDR", defaultHTTPAddr),
		DbURL:               os.Getenv("DATABASE_URL"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             integer("REDIS_DB", 0),
		AwsBucketName:       os.Getenv("AWS_BUCKET_NAME"),
		LogLevel:            envOr("LOG_LEVEL", defaultLogLevel),
		LogFormat:           envOr("LOG_FORMAT", defaultLogFormat),
	}

	if config.PollMaxInterval < config.PollInitialInterval {
		malformed = append(malformed, "POLL_MAX_INTERVAL")
	}
	if len(config.RabbitMqQueues) == 0 {
		malformed = append(malformed, "RABBITMQ_QUEUES")
	}

	if len(missing) > 0 || len(malformed) > 0 {
		var parts []string
		if len(missing) > 0 {
			parts = append(parts, "missing "+strings.Join(missing, ", "))
		}
		if len(malformed) > 0 {
			parts = append(parts, "malformed "+strings.Join(malformed, ", "))
		}
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(parts, "; "))
	}
	return config, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
