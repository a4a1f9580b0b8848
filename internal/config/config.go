package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int    `yaml:"port"`
		Mode string `yaml:"mode"` // dev | prod, controls log format
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	OpenAI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`

	Encryption struct {
		// Base64-encoded 32-byte key for sealing raw report text.
		Key string `yaml:"key"`
	} `yaml:"encryption"`

	Worker struct {
		Count               int `yaml:"count"`
		PollIntervalSeconds int `yaml:"pollIntervalSeconds"`
		BatchSize           int `yaml:"batchSize"`
		ExtractTimeoutSecs  int `yaml:"extractTimeoutSeconds"`
		SweepIntervalSecs   int `yaml:"sweepIntervalSeconds"`
		StaleAfterMinutes   int `yaml:"staleAfterMinutes"`
	} `yaml:"worker"`

	Auth struct {
		// user id -> API key
		APIKeys map[string]string `yaml:"apiKeys"`
	} `yaml:"auth"`
}

// Load reads the yaml config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.OpenAI.APIKey = key
	}
	if key := os.Getenv("ENCRYPTION_KEY"); key != "" {
		cfg.Encryption.Key = key
	}
	return &cfg, nil
}

// Helper to build the MySQL DSN
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper to build the Postgres DSN
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
	)
}

func (c *Config) WorkerCount() int {
	if c.Worker.Count <= 0 {
		return 2
	}
	return c.Worker.Count
}

func (c *Config) PollInterval() time.Duration {
	if c.Worker.PollIntervalSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.Worker.PollIntervalSeconds) * time.Second
}

func (c *Config) ExtractTimeout() time.Duration {
	if c.Worker.ExtractTimeoutSecs <= 0 {
		return 90 * time.Second
	}
	return time.Duration(c.Worker.ExtractTimeoutSecs) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	if c.Worker.SweepIntervalSecs <= 0 {
		return time.Minute
	}
	return time.Duration(c.Worker.SweepIntervalSecs) * time.Second
}

func (c *Config) StaleAfter() time.Duration {
	if c.Worker.StaleAfterMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.Worker.StaleAfterMinutes) * time.Minute
}
