// Package config resolves settings from the environment and an optional .env file.
package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIBase = "http://localhost:5000"
	DefaultModel   = "gemini-2.5-pro"
)

// Config holds everything the CLI needs to reach the backend and the log
type Config struct {
	APIBase    string
	Model      string
	DBPath     string
	UseLogMeal bool
}

// Load reads .env files (missing ones are fine) and then the environment
func Load(envFiles ...string) Config {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[config] load .env: %v", err)
	}

	return Config{
		APIBase:    getenv("PLATELOG_API_BASE", DefaultAPIBase),
		Model:      getenv("PLATELOG_MODEL", DefaultModel),
		DBPath:     getenv("PLATELOG_DB", defaultDBPath()),
		UseLogMeal: getbool("PLATELOG_USE_LOGMEAL", false),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getbool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] %s=%q is not a boolean, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "platelog.db"
	}
	return filepath.Join(home, ".platelog", "platelog.db")
}
