// Package config centralises all environment / flag configuration for the API.
// It should be imported only by `cmd/server` (and test code). Business-logic
// layers receive an already-built Config instance via dependency-injection.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime option the server needs.
// Keep it flat and simple—prefer primitive types over embedding structs.
type Config struct {
	// Network
	Port string

	// Data stores
	MongoURI string
	DBName   string

	// External services
	GitHubToken string

	// Vertex AI
	ProjectID string
	Location  string

	// Embedding space
	EmbeddingDimension int

	// Ingestion defaults
	DefaultLanguages   []string
	ContributionLabels []string

	// Server tuning
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Languages ingestion covers unless a run narrows them.
var defaultLanguages = []string{
	"Python",
	"JavaScript",
	"TypeScript",
	"Java",
	"C#",
	"Go",
	"Rust",
	"C++",
	"PHP",
	"Ruby",
	"Dart",
}

// Label vocabulary that marks an issue as contribution-friendly during
// ingestion. Matching is case-insensitive.
var defaultContributionLabels = []string{
	"good first issue",
	"help wanted",
	"beginner",
	"beginner friendly",
	"beginner-friendly",
	"good for beginner",
	"good-for-beginner",
	"first-timers-only",
	"first timers only",
	"newbie",
	"starter",
	"easy",
	"easy fix",
	"easy-pick",
	"E-easy",
	"contribution-starter",
	"contributor-friendly",
	"Good for New Contributors",
	"Good First Bug",
	"beginners-only",
	"up-for-grabs",
	"jump in",
	"documentation",
	"docs",
	"typo",
	"low-hanging-fruit",
}

// Load parses the environment (and an optional .env file) into Config.
// It panics on missing critical variables so mis-configurations fail fast.
func Load() Config {
	// godotenv.Load() is a no-op if .env doesn't exist—safe in production.
	_ = godotenv.Load()

	return Config{
		Port:               getEnv("PORT", "8080"),
		MongoURI:           must("MONGODB_URI"),
		DBName:             getEnv("MONGODB_DB", "contribution_finder"),
		GitHubToken:        must("GITHUB_TOKEN"),
		ProjectID:          must("GCP_PROJECT_ID"),
		Location:           getEnv("GCP_LOCATION", "us-central1"),
		EmbeddingDimension: getInt("EMBEDDING_DIMENSION", 768),
		DefaultLanguages:   getList("INGEST_LANGUAGES", defaultLanguages),
		ContributionLabels: defaultContributionLabels,
		ReadTimeout:        getDuration("READ_TIMEOUT_SEC", 5),
		WriteTimeout:       getDuration("WRITE_TIMEOUT_SEC", 30),
	}
}

// must fetches a required env var or terminates the program.
func must(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("env var %s is required", key)
	}
	return val
}

// getEnv returns env[key] if set, otherwise defaultVal.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getInt reads an integer from env, falling back to defaultVal.
func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("invalid %s=%q; using default %d", key, v, defaultVal)
	}
	return defaultVal
}

// getList reads a comma-separated list from env, falling back to defaultVal.
func getList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

// getDuration reads an integer (seconds) from env, falling back to defaultSec.
func getDuration(key string, defaultSec int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if sec, err := strconv.Atoi(v); err == nil {
			return time.Duration(sec) * time.Second
		}
		log.Printf("invalid %s=%q; using default %ds", key, v, defaultSec)
	}
	return time.Duration(defaultSec) * time.Second
}
