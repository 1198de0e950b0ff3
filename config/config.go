package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

const (
	EnvDBPath    = "BANDERSNATCH_DB_PATH"
	EnvModelPath = "BANDERSNATCH_MODEL_PATH"
	EnvHTTPPort  = "BANDERSNATCH_HTTP_PORT"
)

type Config struct {
	Database struct {
		Path       string `yaml:"path"`
		Collection string `yaml:"collection"`
		SeedSize   int    `yaml:"seed_size"`
	} `yaml:"database"`
	Model struct {
		Store      string `yaml:"store"`
		Path       string `yaml:"path"`
		SQLitePath string `yaml:"sqlite_path"`
		CacheSize  int    `yaml:"cache_size"`
		Watch      bool   `yaml:"watch"`
		Estimators int    `yaml:"estimators"`
		MaxDepth   int    `yaml:"max_depth"`
		Seed       int64  `yaml:"seed"`
	} `yaml:"model"`
	Http struct {
		Port                int `yaml:"port"`
		PredictionCacheSize int `yaml:"prediction_cache_size"`
	} `yaml:"http"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
}

func Default() *Config {
	var c Config
	c.Database.Path = "bandersnatch.db"
	c.Database.Collection = "monsters"
	c.Database.SeedSize = 1000
	c.Model.Store = "file"
	c.Model.Path = "models/model.json"
	c.Model.SQLitePath = "artifacts.db"
	c.Model.CacheSize = 16
	c.Model.Watch = true
	c.Model.Estimators = 100
	c.Model.Seed = 42
	c.Http.Port = 8080
	c.Http.PredictionCacheSize = 1024
	c.Log.Level = "info"
	c.Log.MaxSizeMB = 100
	c.Log.MaxBackups = 3
	c.Log.MaxAgeDays = 28
	return &c
}

// Load reads a YAML file over the defaults and applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	config := Default()

	file, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(config); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvModelPath); v != "" {
		c.Model.Path = v
	}
	if v := os.Getenv(EnvHTTPPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvHTTPPort, err)
		}
		c.Http.Port = port
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.Database.Collection == "" {
		return errors.New("database.collection is required")
	}
	if c.Database.SeedSize < 0 {
		return errors.New("database.seed_size must not be negative")
	}
	if c.Model.Path == "" {
		return errors.New("model.path is required")
	}
	switch c.Model.Store {
	case "file":
	case "sqlite":
		if c.Model.SQLitePath == "" {
			return errors.New("model.sqlite_path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unknown model.store %q", c.Model.Store)
	}
	if c.Model.Estimators <= 0 {
		return errors.New("model.estimators must be positive")
	}
	if c.Model.MaxDepth < 0 {
		return errors.New("model.max_depth must not be negative")
	}
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("invalid http.port %d", c.Http.Port)
	}
	return nil
}
