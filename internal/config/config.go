// Package config holds the viper-backed configuration singleton.
// Precedence: command flags > LOOM_* environment variables > config file
// > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Initialize sets up the configuration singleton. Called once at startup.
//
// The config file is located by walking up from the working directory for
// .loom/config.yaml, then falling back to ~/.config/loom/config.yaml. The
// nearest project config wins so commands work from subdirectories.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	configFileSet := false
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".loom", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "loom", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// LOOM_DB, LOOM_JSON, LOOM_WIKI_MODEL, LOOM_LLM_TIMEOUT_SECONDS, ...
	v.SetEnvPrefix("LOOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("db", "")
	v.SetDefault("json", false)
	v.SetDefault("debug", false)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("llm.cli", "claude")
	v.SetDefault("llm.timeout-seconds", 120)
	v.SetDefault("llm.api-key", "")
	v.SetDefault("wiki.model", "sonnet")
	v.SetDefault("wiki.audience", "team")
	v.SetDefault("wiki.concurrency", 1)
	v.SetDefault("wiki.max-doc-chars", 20000)
	v.SetDefault("export.dir", "")

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// DataDir returns the directory holding the database, debug log, and audit
// trail: the directory of the configured db path, or ./.loom by default.
func DataDir() string {
	if db := GetString("db"); db != "" {
		return filepath.Dir(db)
	}
	return ".loom"
}

// DBPath returns the configured database path, defaulting to
// <DataDir>/loom.db.
func DBPath() string {
	if db := GetString("db"); db != "" {
		return db
	}
	return filepath.Join(DataDir(), "loom.db")
}

// GetString retrieves a string configuration value.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set overrides a configuration value, used when flags beat config.
func Set(key string, value any) {
	if v != nil {
		v.Set(key, value)
	}
}

// LLMTimeout returns the per-call subprocess budget.
func LLMTimeout() time.Duration {
	secs := GetInt("llm.timeout-seconds")
	if secs <= 0 {
		secs = 120
	}
	return time.Duration(secs) * time.Second
}

// Save writes the current settings back to the config file, creating
// .loom/config.yaml in the working directory when none was loaded.
func Save() error {
	if v == nil {
		return fmt.Errorf("config not initialized")
	}
	path := v.ConfigFileUsed()
	if path == "" {
		path = filepath.Join(".loom", "config.yaml")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		v.SetConfigFile(path)
	}
	return v.WriteConfig()
}

// AllSettings returns every configuration setting as a map.
func AllSettings() map[string]any {
	if v == nil {
		return map[string]any{}
	}
	return v.AllSettings()
}
