package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/sinteflow/sinte/internal/capabilities"
	"github.com/sinteflow/sinte/internal/expressions"
	"github.com/sinteflow/sinte/internal/sandbox"
)

// Config holds all sinte configuration.
// Priority: flags > env vars > settings.json > defaults.
type Config struct {
	HandlersDir         string `json:"handlers_dir"`
	ChainsDir           string `json:"chains_dir"`
	LogLevel            string `json:"log_level"`
	TemplateLang        string `json:"template_lang"`
	SandboxTimeout      string `json:"sandbox_timeout"`
	SandboxRegistryMax  int    `json:"sandbox_registry_max"`
	SandboxCallStack    int    `json:"sandbox_call_stack"`
	MaxSourceBytes      int    `json:"max_source_bytes"`
	SandboxMaxMemory    int64  `json:"sandbox_max_memory"`
	HTTPTimeout         string `json:"http_timeout"`
	HTTPMaxResponseBody int64  `json:"http_max_response_body"`
}

func defaultConfig() Config {
	return Config{
		HandlersDir:         "handlers",
		ChainsDir:           "chains",
		LogLevel:            "info",
		TemplateLang:        expressions.DefaultLang,
		SandboxTimeout:      sandbox.DefaultTimeout.String(),
		SandboxRegistryMax:  sandbox.DefaultRegistryMaxSize,
		SandboxCallStack:    sandbox.DefaultCallStackSize,
		MaxSourceBytes:      sandbox.DefaultMaxSourceBytes,
		SandboxMaxMemory:    sandbox.DefaultMaxMemoryBytes,
		HTTPTimeout:         "30s",
		HTTPMaxResponseBody: 10 * 1024 * 1024,
	}
}

func sinteDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sinte"
	}
	return filepath.Join(home, ".sinte")
}

func settingsPath() string {
	return filepath.Join(sinteDir(), "settings.json")
}

// loadDotEnv reads .env from the working directory. Variables already set
// in the environment are kept.
func loadDotEnv() error {
	err := godotenv.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// loadConfig layers settings.json at path and the SINTE_* variables read
// through getenv over the defaults. A missing settings file is not an error.
func loadConfig(path string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	strs := map[string]*string{
		"SINTE_HANDLERS_DIR":    &cfg.HandlersDir,
		"SINTE_CHAINS_DIR":      &cfg.ChainsDir,
		"SINTE_LOG_LEVEL":       &cfg.LogLevel,
		"SINTE_TEMPLATE_LANG":   &cfg.TemplateLang,
		"SINTE_SANDBOX_TIMEOUT": &cfg.SandboxTimeout,
		"SINTE_HTTP_TIMEOUT":    &cfg.HTTPTimeout,
	}
	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SINTE_SANDBOX_REGISTRY_MAX": &cfg.SandboxRegistryMax,
		"SINTE_SANDBOX_CALL_STACK":   &cfg.SandboxCallStack,
		"SINTE_MAX_SOURCE_BYTES":     &cfg.MaxSourceBytes,
	}
	for key, dst := range ints {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return cfg, fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	int64s := map[string]*int64{
		"SINTE_SANDBOX_MAX_MEMORY":     &cfg.SandboxMaxMemory,
		"SINTE_HTTP_MAX_RESPONSE_BODY": &cfg.HTTPMaxResponseBody,
	}
	for key, dst := range int64s {
		if v := getenv(key); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return cfg, fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	return cfg, nil
}

// Limits converts the sandbox settings.
func (c Config) Limits() (sandbox.Limits, error) {
	timeout, err := time.ParseDuration(c.SandboxTimeout)
	if err != nil {
		return sandbox.Limits{}, fmt.Errorf("sandbox_timeout: %w", err)
	}
	return sandbox.Limits{
		Timeout:         timeout,
		CallStackSize:   c.SandboxCallStack,
		RegistryMaxSize: c.SandboxRegistryMax,
		MaxSourceBytes:  c.MaxSourceBytes,
		MaxMemoryBytes:  c.SandboxMaxMemory,
	}, nil
}

// HTTP converts the httpRequest capability settings.
func (c Config) HTTP() (capabilities.HTTPConfig, error) {
	timeout, err := time.ParseDuration(c.HTTPTimeout)
	if err != nil {
		return capabilities.HTTPConfig{}, fmt.Errorf("http_timeout: %w", err)
	}
	return capabilities.HTTPConfig{
		MaxResponseBody: c.HTTPMaxResponseBody,
		DefaultTimeout:  timeout,
	}, nil
}
