package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	SslCertPath string
	Port        string
	WebDir      string

	JWTSecret      string
	TokenTTL       time.Duration
	AllowedOrigins []string
	RequestTimeout time.Duration

	OpenAIAPIKey   string
	MistralAPIKey  string
	MistralBaseURL string
	GeminiAPIKey   string
	EmbedModel     string
	EmbedDim       int
	DefaultModel   string
	MaxSteps       int

	HuggingFaceAPIKey string
	MedLLaMAURL       string
	WeatherURL        string

	AwsAccessKey  string
	AwsSecretKey  string
	AwsRegion     string
	BucketName    string
	IngestWorkers int
}

// LoadConfig loads the environment variables and returns the config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SslCertPath: getEnv("SSL_CERT_PATH", ""),
		Port:        getEnv("PORT", "8080"),
		WebDir:      getEnv("WEB_DIR", "./web"),

		JWTSecret:      getEnv("JWT_SECRET", ""),
		TokenTTL:       time.Duration(getEnvInt("TOKEN_TTL_HOURS", 24)) * time.Hour,
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 60)) * time.Second,

		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		MistralAPIKey:  getEnv("MISTRAL_API_KEY", ""),
		MistralBaseURL: getEnv("MISTRAL_BASE_URL", "https://api.mistral.ai/v1"),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		EmbedModel:     getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:       getEnvInt("EMBED_DIM", 768),
		DefaultModel:   getEnv("DEFAULT_MODEL", "ministral-3b-latest"),
		MaxSteps:       getEnvInt("MAX_STEPS", 5),

		HuggingFaceAPIKey: getEnv("HUGGINGFACE_API_KEY", ""),
		MedLLaMAURL:       getEnv("MEDLLAMA_URL", "https://api-inference.huggingface.co/models/ProbeMedicalYonseiMAILab/medllama3-v20"),
		WeatherURL:        getEnv("WEATHER_URL", "https://api.open-meteo.com/v1/forecast"),

		AwsAccessKey:  getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:  getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:     getEnv("AWS_REGION", "us-east-2"),
		BucketName:    getEnv("BUCKET_NAME", ""),
		IngestWorkers: getEnvInt("INGEST_WORKERS", 2),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET not set")
	}

	return cfg
}

// StorageEnabled reports whether attachment uploads can be served.
func (c *Config) StorageEnabled() bool {
	return c.AwsAccessKey != "" && c.AwsSecretKey != "" && c.BucketName != ""
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
