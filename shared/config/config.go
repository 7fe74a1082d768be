package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Config struct {
	Env              string
	ServiceName      string
	HTTPPort         int
	LogLevel         string
	ConfigPath       string
	RequestTimeoutMS int
	RequestTimeout   time.Duration

	APIBaseURL      string
	PollIntervalSec int

	OIDCIssuer      string
	OIDCAudience    string
	OIDCJWKSURL     string
	JWKSTTLSeconds  int
	JWTClockSkewSec int

	DatabaseURL      string
	DBMaxConns       int
	DBMinConns       int
	DBConnMaxIdleSec int
	DBConnMaxLifeSec int

	KafkaBrokers  []string
	KafkaClientID string
	KafkaGroupID  string
	KafkaRetryMax int
	KafkaWriteMS  int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AsynqRedisAddr   string
	AsynqRedisPass   string
	AsynqRedisDB     int
	AsynqQueue       string
	AsynqConcurrency int

	EventScanSec     int
	EventBatchSize   int
	EventMaxAttempts int

	CacheResyncSec int

	InfluxURL       string
	InfluxToken     string
	InfluxOrg       string
	InfluxBucket    string
	InfluxTimeoutMS int

	TicketingURL       string
	TicketingToken     string
	TicketingCaller    string
	TicketingTimeoutMS int
	TicketingRetryMax  int

	RulesPath string

	BridgeSourceBrokers []string
	BridgeTargetBrokers []string
	BridgeTopics        []string
	BridgeGroupID       string

	IngestRateRPS   int
	IngestRateBurst int

	CORSAllowedOrigins []string

	OtelEnabled     bool
	OtelEndpoint    string
	OtelInsecure    bool
	OtelSampleRatio float64
}

func Load(serviceNameDefault string, httpPortDefault int) (Config, []Problem) {
	envRaw := strings.TrimSpace(os.Getenv("ENV"))
	cfg := Config{
		Env:                envRaw,
		ServiceName:        serviceNameDefault,
		HTTPPort:           httpPortDefault,
		LogLevel:           "info",
		ConfigPath:         strings.TrimSpace(os.Getenv("CONFIG_PATH")),
		RequestTimeoutMS:   30000,
		APIBaseURL:         strings.TrimSpace(os.Getenv("API_BASE_URL")),
		PollIntervalSec:    10,
		OIDCIssuer:         strings.TrimSpace(os.Getenv("OIDC_ISSUER")),
		OIDCAudience:       strings.TrimSpace(os.Getenv("OIDC_AUDIENCE")),
		OIDCJWKSURL:        strings.TrimSpace(os.Getenv("OIDC_JWKS_URL")),
		JWKSTTLSeconds:     300,
		JWTClockSkewSec:    60,
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:         10,
		DBMinConns:         1,
		DBConnMaxIdleSec:   300,
		DBConnMaxLifeSec:   1800,
		KafkaRetryMax:      5,
		KafkaWriteMS:       5000,
		AsynqQueue:         "default",
		AsynqConcurrency:   10,
		EventScanSec:       5,
		EventBatchSize:     50,
		EventMaxAttempts:   20,
		CacheResyncSec:     300,
		InfluxTimeoutMS:    5000,
		TicketingCaller:    "av-ops-bot",
		TicketingTimeoutMS: 10000,
		TicketingRetryMax:  2,
		RulesPath:          strings.TrimSpace(os.Getenv("ALERT_RULES_PATH")),
		BridgeGroupID:      strings.TrimSpace(os.Getenv("BRIDGE_GROUP_ID")),
		IngestRateRPS:      50,
		IngestRateBurst:    100,
		OtelInsecure:       true,
		OtelSampleRatio:    1.0,
	}

	problems := make([]Problem, 0, 4)
	envProvided := envRaw != ""

	if repoRoot, ok := findRepoRoot(); ok && cfg.Env != "" && cfg.ConfigPath == "" {
		cfg.ConfigPath = filepath.Join(repoRoot, "configs", cfg.Env+".json")
	}

	if fileData, fileProblems, ok := loadConfigFile(cfg.ConfigPath, strings.TrimSpace(os.Getenv("CONFIG_PATH")) != ""); ok {
		problems = append(problems, fileProblems...)
		if fileEnv, ok := readStringKey(fileData, "ENV"); ok && strings.TrimSpace(fileEnv) != "" {
			envProvided = true
		}
		applyConfigMap(&cfg, fileData, &problems)
	} else {
		problems = append(problems, fileProblems...)
	}

	applyEnv(&cfg, &problems)

	// When an issuer is set without an explicit JWKS URL, default to the
	// issuer's well-known location.
	if cfg.OIDCIssuer != "" && strings.TrimSpace(cfg.OIDCJWKSURL) == "" {
		cfg.OIDCJWKSURL = strings.TrimRight(cfg.OIDCIssuer, "/") + "/.well-known/jwks.json"
	}

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if !envProvided {
		problems = append(problems, Problem{Field: "ENV", Message: "ENV is required"})
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		problems = append(problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
		cfg.HTTPPort = httpPortDefault
	}
	if cfg.RequestTimeoutMS <= 0 {
		problems = append(problems, Problem{Field: "REQUEST_TIMEOUT_MS", Message: "REQUEST_TIMEOUT_MS must be > 0"})
		cfg.RequestTimeoutMS = 30000
	}
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
	if cfg.PollIntervalSec <= 0 {
		problems = append(problems, Problem{Field: "POLL_INTERVAL_SECONDS", Message: "POLL_INTERVAL_SECONDS must be > 0"})
		cfg.PollIntervalSec = 10
	}
	if cfg.JWKSTTLSeconds <= 0 {
		problems = append(problems, Problem{Field: "JWKS_CACHE_TTL_SECONDS", Message: "JWKS_CACHE_TTL_SECONDS must be > 0"})
		cfg.JWKSTTLSeconds = 300
	}
	if cfg.JWTClockSkewSec < 0 {
		problems = append(problems, Problem{Field: "JWT_CLOCK_SKEW_SECONDS", Message: "JWT_CLOCK_SKEW_SECONDS must be >= 0"})
		cfg.JWTClockSkewSec = 60
	}
	if cfg.DBMaxConns <= 0 {
		problems = append(problems, Problem{Field: "DB_MAX_CONNS", Message: "DB_MAX_CONNS must be > 0"})
		cfg.DBMaxConns = 10
	}
	if cfg.DBMinConns < 0 {
		problems = append(problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be >= 0"})
		cfg.DBMinConns = 1
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		problems = append(problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be <= DB_MAX_CONNS"})
		cfg.DBMinConns = cfg.DBMaxConns
	}
	if cfg.DBConnMaxIdleSec <= 0 {
		problems = append(problems, Problem{Field: "DB_CONN_MAX_IDLE_SECONDS", Message: "DB_CONN_MAX_IDLE_SECONDS must be > 0"})
		cfg.DBConnMaxIdleSec = 300
	}
	if cfg.DBConnMaxLifeSec <= 0 {
		problems = append(problems, Problem{Field: "DB_CONN_MAX_LIFETIME_SECONDS", Message: "DB_CONN_MAX_LIFETIME_SECONDS must be > 0"})
		cfg.DBConnMaxLifeSec = 1800
	}
	if cfg.KafkaRetryMax < 0 {
		problems = append(problems, Problem{Field: "KAFKA_RETRY_MAX", Message: "KAFKA_RETRY_MAX must be >= 0"})
		cfg.KafkaRetryMax = 5
	}
	if cfg.KafkaWriteMS <= 0 {
		problems = append(problems, Problem{Field: "KAFKA_WRITE_TIMEOUT_MS", Message: "KAFKA_WRITE_TIMEOUT_MS must be > 0"})
		cfg.KafkaWriteMS = 5000
	}
	if cfg.RedisDB < 0 {
		problems = append(problems, Problem{Field: "REDIS_DB", Message: "REDIS_DB must be >= 0"})
		cfg.RedisDB = 0
	}
	if cfg.AsynqRedisDB < 0 {
		problems = append(problems, Problem{Field: "ASYNQ_REDIS_DB", Message: "ASYNQ_REDIS_DB must be >= 0"})
		cfg.AsynqRedisDB = 0
	}
	if cfg.AsynqConcurrency <= 0 {
		problems = append(problems, Problem{Field: "ASYNQ_CONCURRENCY", Message: "ASYNQ_CONCURRENCY must be > 0"})
		cfg.AsynqConcurrency = 10
	}
	if cfg.EventScanSec <= 0 {
		problems = append(problems, Problem{Field: "EVENT_SCAN_INTERVAL_SECONDS", Message: "EVENT_SCAN_INTERVAL_SECONDS must be > 0"})
		cfg.EventScanSec = 5
	}
	if cfg.EventBatchSize <= 0 {
		problems = append(problems, Problem{Field: "EVENT_BATCH_SIZE", Message: "EVENT_BATCH_SIZE must be > 0"})
		cfg.EventBatchSize = 50
	}
	if cfg.EventMaxAttempts <= 0 {
		problems = append(problems, Problem{Field: "EVENT_MAX_ATTEMPTS", Message: "EVENT_MAX_ATTEMPTS must be > 0"})
		cfg.EventMaxAttempts = 20
	}
	if cfg.CacheResyncSec <= 0 {
		problems = append(problems, Problem{Field: "CACHE_RESYNC_INTERVAL_SECONDS", Message: "CACHE_RESYNC_INTERVAL_SECONDS must be > 0"})
		cfg.CacheResyncSec = 300
	}
	if cfg.InfluxTimeoutMS <= 0 {
		problems = append(problems, Problem{Field: "INFLUX_TIMEOUT_MS", Message: "INFLUX_TIMEOUT_MS must be > 0"})
		cfg.InfluxTimeoutMS = 5000
	}
	if cfg.TicketingTimeoutMS <= 0 {
		problems = append(problems, Problem{Field: "TICKETING_TIMEOUT_MS", Message: "TICKETING_TIMEOUT_MS must be > 0"})
		cfg.TicketingTimeoutMS = 10000
	}
	if cfg.TicketingRetryMax < 0 {
		problems = append(problems, Problem{Field: "TICKETING_RETRY_MAX", Message: "TICKETING_RETRY_MAX must be >= 0"})
		cfg.TicketingRetryMax = 2
	}
	if cfg.IngestRateRPS <= 0 {
		problems = append(problems, Problem{Field: "INGEST_RATE_RPS", Message: "INGEST_RATE_RPS must be > 0"})
		cfg.IngestRateRPS = 50
	}
	if cfg.IngestRateBurst <= 0 {
		problems = append(problems, Problem{Field: "INGEST_RATE_BURST", Message: "INGEST_RATE_BURST must be > 0"})
		cfg.IngestRateBurst = 100
	}
	if cfg.OtelSampleRatio < 0 || cfg.OtelSampleRatio > 1 {
		problems = append(problems, Problem{Field: "OTEL_SAMPLE_RATIO", Message: "OTEL_SAMPLE_RATIO must be 0-1"})
		cfg.OtelSampleRatio = 1.0
	}

	return cfg, problems
}

func findRepoRoot() (string, bool) {
	start, err := os.Getwd()
	if err != nil {
		return "", false
	}
	dir := start
	for i := 0; i < 8; i++ {
		candidate := filepath.Join(dir, "configs")
		if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func loadConfigFile(path string, explicit bool) (map[string]any, []Problem, bool) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, false
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if explicit && !errors.Is(err, os.ErrNotExist) {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("failed to read config file: %v", err)}}, false
		}
		if explicit && errors.Is(err, os.ErrNotExist) {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: "config file not found"}}, false
		}
		return nil, nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("invalid json: %v", err)}}, false
	}
	return raw, nil, true
}

func applyEnv(cfg *Config, problems *[]Problem) {
	if v := strings.TrimSpace(os.Getenv("SERVICE_NAME")); v != "" {
		cfg.ServiceName = v
	}

	portRaw := strings.TrimSpace(os.Getenv("HTTP_PORT"))
	if portRaw == "" {
		portRaw = strings.TrimSpace(os.Getenv("PORT"))
	}
	if portRaw != "" {
		if p, err := strconv.Atoi(portRaw); err != nil || p <= 0 || p > 65535 {
			*problems = append(*problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
		} else {
			cfg.HTTPPort = p
		}
	}

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}

	applyEnvInt(problems, "REQUEST_TIMEOUT_MS", &cfg.RequestTimeoutMS)
	applyEnvInt(problems, "POLL_INTERVAL_SECONDS", &cfg.PollIntervalSec)

	if v := strings.TrimSpace(os.Getenv("API_BASE_URL")); v != "" {
		cfg.APIBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OIDC_ISSUER")); v != "" {
		cfg.OIDCIssuer = v
	}
	if v := strings.TrimSpace(os.Getenv("OIDC_AUDIENCE")); v != "" {
		cfg.OIDCAudience = v
	}
	if v := strings.TrimSpace(os.Getenv("OIDC_JWKS_URL")); v != "" {
		cfg.OIDCJWKSURL = v
	}
	applyEnvInt(problems, "JWKS_CACHE_TTL_SECONDS", &cfg.JWKSTTLSeconds)
	applyEnvInt(problems, "JWT_CLOCK_SKEW_SECONDS", &cfg.JWTClockSkewSec)

	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	applyEnvInt(problems, "DB_MAX_CONNS", &cfg.DBMaxConns)
	applyEnvInt(problems, "DB_MIN_CONNS", &cfg.DBMinConns)
	applyEnvInt(problems, "DB_CONN_MAX_IDLE_SECONDS", &cfg.DBConnMaxIdleSec)
	applyEnvInt(problems, "DB_CONN_MAX_LIFETIME_SECONDS", &cfg.DBConnMaxLifeSec)

	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.KafkaBrokers = parseCSV(v)
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_CLIENT_ID")); v != "" {
		cfg.KafkaClientID = v
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_CONSUMER_GROUP")); v != "" {
		cfg.KafkaGroupID = v
	}
	applyEnvInt(problems, "KAFKA_RETRY_MAX", &cfg.KafkaRetryMax)
	applyEnvInt(problems, "KAFKA_WRITE_TIMEOUT_MS", &cfg.KafkaWriteMS)

	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.RedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_PASSWORD")); v != "" {
		cfg.RedisPassword = v
	}
	applyEnvInt(problems, "REDIS_DB", &cfg.RedisDB)

	if v := strings.TrimSpace(os.Getenv("ASYNQ_REDIS_ADDR")); v != "" {
		cfg.AsynqRedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("ASYNQ_REDIS_PASSWORD")); v != "" {
		cfg.AsynqRedisPass = v
	}
	applyEnvInt(problems, "ASYNQ_REDIS_DB", &cfg.AsynqRedisDB)
	if v := strings.TrimSpace(os.Getenv("ASYNQ_QUEUE")); v != "" {
		cfg.AsynqQueue = v
	}
	applyEnvInt(problems, "ASYNQ_CONCURRENCY", &cfg.AsynqConcurrency)

	applyEnvInt(problems, "EVENT_SCAN_INTERVAL_SECONDS", &cfg.EventScanSec)
	applyEnvInt(problems, "EVENT_BATCH_SIZE", &cfg.EventBatchSize)
	applyEnvInt(problems, "EVENT_MAX_ATTEMPTS", &cfg.EventMaxAttempts)
	applyEnvInt(problems, "CACHE_RESYNC_INTERVAL_SECONDS", &cfg.CacheResyncSec)

	if v := strings.TrimSpace(os.Getenv("INFLUX_URL")); v != "" {
		cfg.InfluxURL = v
	}
	if v := strings.TrimSpace(os.Getenv("INFLUX_TOKEN")); v != "" {
		cfg.InfluxToken = v
	}
	if v := strings.TrimSpace(os.Getenv("INFLUX_ORG")); v != "" {
		cfg.InfluxOrg = v
	}
	if v := strings.TrimSpace(os.Getenv("INFLUX_BUCKET")); v != "" {
		cfg.InfluxBucket = v
	}
	applyEnvInt(problems, "INFLUX_TIMEOUT_MS", &cfg.InfluxTimeoutMS)

	if v := strings.TrimSpace(os.Getenv("TICKETING_API_URL")); v != "" {
		cfg.TicketingURL = v
	}
	if v := strings.TrimSpace(os.Getenv("TICKETING_API_TOKEN")); v != "" {
		cfg.TicketingToken = v
	}
	if v := strings.TrimSpace(os.Getenv("TICKETING_CALLER")); v != "" {
		cfg.TicketingCaller = v
	}
	applyEnvInt(problems, "TICKETING_TIMEOUT_MS", &cfg.TicketingTimeoutMS)
	applyEnvInt(problems, "TICKETING_RETRY_MAX", &cfg.TicketingRetryMax)

	if v := strings.TrimSpace(os.Getenv("ALERT_RULES_PATH")); v != "" {
		cfg.RulesPath = v
	}
	if v := strings.TrimSpace(os.Getenv("BRIDGE_SOURCE_BROKERS")); v != "" {
		cfg.BridgeSourceBrokers = parseCSV(v)
	}
	if v := strings.TrimSpace(os.Getenv("BRIDGE_TARGET_BROKERS")); v != "" {
		cfg.BridgeTargetBrokers = parseCSV(v)
	}
	if v := strings.TrimSpace(os.Getenv("BRIDGE_TOPICS")); v != "" {
		cfg.BridgeTopics = parseCSV(v)
	}
	if v := strings.TrimSpace(os.Getenv("BRIDGE_GROUP_ID")); v != "" {
		cfg.BridgeGroupID = v
	}
	applyEnvInt(problems, "INGEST_RATE_RPS", &cfg.IngestRateRPS)
	applyEnvInt(problems, "INGEST_RATE_BURST", &cfg.IngestRateBurst)
	if v := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")); v != "" {
		cfg.CORSAllowedOrigins = parseCSV(v)
	}

	if v := strings.TrimSpace(os.Getenv("OTEL_ENABLED")); v != "" {
		if b, ok := asBool(v); ok {
			cfg.OtelEnabled = b
		} else {
			*problems = append(*problems, Problem{Field: "OTEL_ENABLED", Message: "OTEL_ENABLED must be a boolean"})
		}
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.OtelEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); v != "" {
		if b, ok := asBool(v); ok {
			cfg.OtelInsecure = b
		} else {
			*problems = append(*problems, Problem{Field: "OTEL_EXPORTER_OTLP_INSECURE", Message: "OTEL_EXPORTER_OTLP_INSECURE must be a boolean"})
		}
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_SAMPLE_RATIO")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err != nil {
			*problems = append(*problems, Problem{Field: "OTEL_SAMPLE_RATIO", Message: "OTEL_SAMPLE_RATIO must be a number"})
		} else {
			cfg.OtelSampleRatio = f
		}
	}
}

func applyEnvInt(problems *[]Problem, key string, dst *int) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*problems = append(*problems, Problem{Field: key, Message: key + " must be an integer"})
		return
	}
	*dst = n
}

func applyConfigMap(cfg *Config, raw map[string]any, problems *[]Problem) {
	for k, v := range raw {
		key := strings.ToUpper(strings.TrimSpace(k))
		switch key {
		case "ENV":
			if s, ok := v.(string); ok {
				cfg.Env = strings.TrimSpace(s)
			}
		case "SERVICE_NAME":
			applyMapString(v, &cfg.ServiceName)
		case "HTTP_PORT":
			p, ok := asInt(v)
			if !ok || p <= 0 || p > 65535 {
				*problems = append(*problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
			} else {
				cfg.HTTPPort = p
			}
		case "LOG_LEVEL":
			applyMapString(v, &cfg.LogLevel)
		case "REQUEST_TIMEOUT_MS":
			applyMapInt(v, &cfg.RequestTimeoutMS, key, problems)
		case "API_BASE_URL":
			applyMapString(v, &cfg.APIBaseURL)
		case "POLL_INTERVAL_SECONDS":
			applyMapInt(v, &cfg.PollIntervalSec, key, problems)
		case "OIDC_ISSUER":
			applyMapString(v, &cfg.OIDCIssuer)
		case "OIDC_AUDIENCE":
			applyMapString(v, &cfg.OIDCAudience)
		case "OIDC_JWKS_URL":
			applyMapString(v, &cfg.OIDCJWKSURL)
		case "JWKS_CACHE_TTL_SECONDS":
			applyMapInt(v, &cfg.JWKSTTLSeconds, key, problems)
		case "JWT_CLOCK_SKEW_SECONDS":
			applyMapInt(v, &cfg.JWTClockSkewSec, key, problems)
		case "DATABASE_URL":
			applyMapString(v, &cfg.DatabaseURL)
		case "DB_MAX_CONNS":
			applyMapInt(v, &cfg.DBMaxConns, key, problems)
		case "DB_MIN_CONNS":
			applyMapInt(v, &cfg.DBMinConns, key, problems)
		case "DB_CONN_MAX_IDLE_SECONDS":
			applyMapInt(v, &cfg.DBConnMaxIdleSec, key, problems)
		case "DB_CONN_MAX_LIFETIME_SECONDS":
			applyMapInt(v, &cfg.DBConnMaxLifeSec, key, problems)
		case "KAFKA_BROKERS":
			if s, ok := v.(string); ok {
				cfg.KafkaBrokers = parseCSV(s)
			} else if arr, ok := v.([]any); ok {
				cfg.KafkaBrokers = parseAnyCSV(arr)
			}
		case "KAFKA_CLIENT_ID":
			applyMapString(v, &cfg.KafkaClientID)
		case "KAFKA_CONSUMER_GROUP":
			applyMapString(v, &cfg.KafkaGroupID)
		case "KAFKA_RETRY_MAX":
			applyMapInt(v, &cfg.KafkaRetryMax, key, problems)
		case "KAFKA_WRITE_TIMEOUT_MS":
			applyMapInt(v, &cfg.KafkaWriteMS, key, problems)
		case "REDIS_ADDR":
			applyMapString(v, &cfg.RedisAddr)
		case "REDIS_PASSWORD":
			if s, ok := v.(string); ok {
				cfg.RedisPassword = s
			}
		case "REDIS_DB":
			applyMapInt(v, &cfg.RedisDB, key, problems)
		case "ASYNQ_REDIS_ADDR":
			applyMapString(v, &cfg.AsynqRedisAddr)
		case "ASYNQ_REDIS_PASSWORD":
			if s, ok := v.(string); ok {
				cfg.AsynqRedisPass = s
			}
		case "ASYNQ_REDIS_DB":
			applyMapInt(v, &cfg.AsynqRedisDB, key, problems)
		case "ASYNQ_QUEUE":
			applyMapString(v, &cfg.AsynqQueue)
		case "ASYNQ_CONCURRENCY":
			applyMapInt(v, &cfg.AsynqConcurrency, key, problems)
		case "EVENT_SCAN_INTERVAL_SECONDS":
			applyMapInt(v, &cfg.EventScanSec, key, problems)
		case "EVENT_BATCH_SIZE":
			applyMapInt(v, &cfg.EventBatchSize, key, problems)
		case "EVENT_MAX_ATTEMPTS":
			applyMapInt(v, &cfg.EventMaxAttempts, key, problems)
		case "CACHE_RESYNC_INTERVAL_SECONDS":
			applyMapInt(v, &cfg.CacheResyncSec, key, problems)
		case "INFLUX_URL":
			applyMapString(v, &cfg.InfluxURL)
		case "INFLUX_TOKEN":
			if s, ok := v.(string); ok {
				cfg.InfluxToken = s
			}
		case "INFLUX_ORG":
			applyMapString(v, &cfg.InfluxOrg)
		case "INFLUX_BUCKET":
			applyMapString(v, &cfg.InfluxBucket)
		case "INFLUX_TIMEOUT_MS":
			applyMapInt(v, &cfg.InfluxTimeoutMS, key, problems)
		case "TICKETING_API_URL":
			applyMapString(v, &cfg.TicketingURL)
		case "TICKETING_API_TOKEN":
			if s, ok := v.(string); ok {
				cfg.TicketingToken = s
			}
		case "TICKETING_CALLER":
			applyMapString(v, &cfg.TicketingCaller)
		case "TICKETING_TIMEOUT_MS":
			applyMapInt(v, &cfg.TicketingTimeoutMS, key, problems)
		case "TICKETING_RETRY_MAX":
			applyMapInt(v, &cfg.TicketingRetryMax, key, problems)
		case "ALERT_RULES_PATH":
			applyMapString(v, &cfg.RulesPath)
		case "BRIDGE_SOURCE_BROKERS":
			if s, ok := v.(string); ok {
				cfg.BridgeSourceBrokers = parseCSV(s)
			} else if arr, ok := v.([]any); ok {
				cfg.BridgeSourceBrokers = parseAnyCSV(arr)
			}
		case "BRIDGE_TARGET_BROKERS":
			if s, ok := v.(string); ok {
				cfg.BridgeTargetBrokers = parseCSV(s)
			} else if arr, ok := v.([]any); ok {
				cfg.BridgeTargetBrokers = parseAnyCSV(arr)
			}
		case "BRIDGE_TOPICS":
			if s, ok := v.(string); ok {
				cfg.BridgeTopics = parseCSV(s)
			} else if arr, ok := v.([]any); ok {
				cfg.BridgeTopics = parseAnyCSV(arr)
			}
		case "BRIDGE_GROUP_ID":
			applyMapString(v, &cfg.BridgeGroupID)
		case "INGEST_RATE_RPS":
			applyMapInt(v, &cfg.IngestRateRPS, key, problems)
		case "INGEST_RATE_BURST":
			applyMapInt(v, &cfg.IngestRateBurst, key, problems)
		case "CORS_ALLOWED_ORIGINS":
			if s, ok := v.(string); ok {
				cfg.CORSAllowedOrigins = parseCSV(s)
			} else if arr, ok := v.([]any); ok {
				cfg.CORSAllowedOrigins = parseAnyCSV(arr)
			}
		case "OTEL_ENABLED":
			applyMapBool(v, &cfg.OtelEnabled, key, problems)
		case "OTEL_EXPORTER_OTLP_ENDPOINT":
			applyMapString(v, &cfg.OtelEndpoint)
		case "OTEL_EXPORTER_OTLP_INSECURE":
			applyMapBool(v, &cfg.OtelInsecure, key, problems)
		case "OTEL_SAMPLE_RATIO":
			if f, ok := asFloat(v); ok {
				cfg.OtelSampleRatio = f
			} else {
				*problems = append(*problems, Problem{Field: key, Message: key + " must be a number"})
			}
		}
	}
}

func applyMapString(v any, dst *string) {
	if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
		*dst = strings.TrimSpace(s)
	}
}

func applyMapInt(v any, dst *int, key string, problems *[]Problem) {
	n, ok := asInt(v)
	if !ok {
		*problems = append(*problems, Problem{Field: key, Message: key + " must be an integer"})
		return
	}
	*dst = n
}

func applyMapBool(v any, dst *bool, key string, problems *[]Problem) {
	switch t := v.(type) {
	case bool:
		*dst = t
	case string:
		if b, ok := asBool(t); ok {
			*dst = b
		} else {
			*problems = append(*problems, Problem{Field: key, Message: key + " must be a boolean"})
		}
	default:
		*problems = append(*problems, Problem{Field: key, Message: key + " must be a boolean"})
	}
}

func readStringKey(raw map[string]any, key string) (string, bool) {
	for k, v := range raw {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			s, ok := v.(string)
			return s, ok
		}
	}
	return "", false
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		return i, err == nil
	default:
		return 0, false
	}
}

func asBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y":
		return true, true
	case "false", "0", "no", "n":
		return false, true
	default:
		return false, false
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseAnyCSV(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
