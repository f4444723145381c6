package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr  string
	DBDSN     string
	JWTSecret string

	// dashboard operator created on startup when both are set
	AdminEmail    string
	AdminPassword string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Assistant
	OpenAIBaseURL     string
	OpenAIAPIKey      string
	OpenAIAssistantID string
	RunPollInterval   time.Duration
	ExchangeTimeout   time.Duration

	GeoIPBaseURL string

	// rabbitMQ
	RabbitURL   string
	RabbitQueue string

	CatalogPath string
	CORSOrigins []string
}

func Load() Config {
	// DSN demo：
	// app:apppass@tcp(127.0.0.1:3306)/leadchat?charset=utf8mb4&parseTime=true&loc=Local
	// sqlite:leadchat.db
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = "sqlite:leadchat.db"
	}

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret-change-me"
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			redisDB = n
		}
	}

	openAIBaseURL := os.Getenv("OPENAI_BASE_URL")
	if openAIBaseURL == "" {
		openAIBaseURL = "https://api.openai.com/v1"
	}

	geoBaseURL := os.Getenv("GEOIP_BASE_URL")
	if geoBaseURL == "" {
		geoBaseURL = "http://ip-api.com"
	}

	rabbitQueue := os.Getenv("RABBIT_QUEUE")
	if rabbitQueue == "" {
		rabbitQueue = "widget_events"
	}

	var origins []string
	for _, o := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return Config{
		HTTPAddr:  addr,
		DBDSN:     dsn,
		JWTSecret: secret,

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		// empty address disables redis (geo cache falls back to no cache)
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		OpenAIBaseURL:     openAIBaseURL,
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIAssistantID: os.Getenv("OPENAI_ASSISTANT_ID"),
		RunPollInterval:   durationEnv("RUN_POLL_INTERVAL", time.Second),
		ExchangeTimeout:   durationEnv("EXCHANGE_TIMEOUT", 120*time.Second),

		GeoIPBaseURL: geoBaseURL,

		// empty url: widget events are written directly instead of queued
		RabbitURL:   os.Getenv("RABBIT_URL"),
		RabbitQueue: rabbitQueue,

		CatalogPath: os.Getenv("CATALOG_PATH"),
		CORSOrigins: origins,
	}
}

func durationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
