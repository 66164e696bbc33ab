package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr     string
	WhatsAppWebURL string
	SessionDir     string
	ChromeBin      string
	Headless       bool
	NavTimeout     time.Duration
	AuthTimeout    time.Duration
	DatabasePath   string
	S3Config       *S3Config
}

type S3Config struct {
	AccessKey  string
	SecretKey  string
	Region     string
	BucketName string
	BucketUrl  string
}

func NewConfig() *Config {
	// .env é opcional, variáveis de ambiente têm precedência
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:     getEnv("LISTEN_ADDR", ":8080"),
		WhatsAppWebURL: getEnv("WHATSAPP_WEB_URL", "https://web.whatsapp.com"),
		SessionDir:     getEnv("SESSION_DIR", "./sessions"),
		ChromeBin:      getEnv("CHROME_BIN", ""),
		Headless:       getEnvBool("HEADLESS", true),
		NavTimeout:     getEnvDuration("NAV_TIMEOUT", 60*time.Second),
		AuthTimeout:    getEnvDuration("AUTH_TIMEOUT", 5*time.Minute),
		DatabasePath:   getEnv("DATABASE_PATH", "./data/sessions.db"),
	}

	if key := os.Getenv("S3_ACCESS_KEY"); key != "" {
		cfg.S3Config = &S3Config{
			AccessKey:  key,
			SecretKey:  os.Getenv("S3_SECRET_KEY"),
			Region:     getEnv("S3_REGION", "us-east-1"),
			BucketName: os.Getenv("S3_BUCKET"),
			BucketUrl:  os.Getenv("S3_BUCKET_URL"),
		}
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
