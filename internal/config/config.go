package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		SourceID   string `yaml:"sourceId"`
		SourceFile string `yaml:"sourceFile"`
	} `yaml:"quiz"`
	Room struct {
		QuestionWindow string `yaml:"questionWindow"`
		RevealDelay    string `yaml:"revealDelay"`
		AdvanceDelay   string `yaml:"advanceDelay"`
		MaxQuestions   int    `yaml:"maxQuestions"`
	} `yaml:"room"`
	Explain struct {
		BaseURL   string `yaml:"baseUrl"`
		Model     string `yaml:"model"`
		APIKey    string `yaml:"apiKey"`
		CacheFile string `yaml:"cacheFile"`
	} `yaml:"explain"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// DurationOr parses a duration string or returns the fallback when the
// string is empty or malformed.
func DurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
