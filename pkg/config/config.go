// Package config loads server configuration from the environment.
// Invalid configuration fails startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the server-level configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// LLMMock switches every session to the deterministic mock tool.
	LLMMock      bool
	GeminiAPIKey string
	GeminiModel  string

	// SkipDatabase serves the built-in demo classroom instead of PostgreSQL.
	SkipDatabase bool
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	cfg := Config{
		Port:        3000,
		CORSOrigins: []string{"*"},
		GeminiModel: getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT: %q", v)
		}
		cfg.Port = port
	}

	if v := os.Getenv("CORS_ORIGIN"); v != "" {
		if v == "*" {
			cfg.CORSOrigins = []string{"*"}
		} else {
			origins := strings.Split(v, ",")
			cfg.CORSOrigins = cfg.CORSOrigins[:0]
			for _, o := range origins {
				o = strings.TrimSpace(o)
				if o == "" {
					return Config{}, fmt.Errorf("invalid CORS_ORIGIN entry in %q", v)
				}
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	var err error
	if cfg.LLMMock, err = boolEnv("LLM_MOCK"); err != nil {
		return Config{}, err
	}
	if cfg.SkipDatabase, err = boolEnv("SKIP_DATABASE"); err != nil {
		return Config{}, err
	}

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if !cfg.LLMMock && cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY is required unless LLM_MOCK=true")
	}

	return cfg, nil
}

func boolEnv(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", key, v)
	}
	return b, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
