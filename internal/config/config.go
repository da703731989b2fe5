package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		DataDir string `yaml:"data_dir"`
	} `yaml:"app"`

	Search struct {
		Region   string `yaml:"region"`
		Area     string `yaml:"area"`
		Category string `yaml:"category"`
		Keyword  string `yaml:"keyword"`
		Distance int    `yaml:"search_distance"`
		Postal   string `yaml:"postal"`
	} `yaml:"search"`

	Poll struct {
		SleepSeconds int `yaml:"sleep_seconds"`
		MaxAttempts  int `yaml:"max_attempts"`
	} `yaml:"poll"`

	Enrich struct {
		Enabled bool `yaml:"enabled"`
		Workers int  `yaml:"workers"`
		Limit   int  `yaml:"limit"`
	} `yaml:"enrich"`

	Emit struct {
		Channel    string `yaml:"channel"` // stdout | webhook
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"emit"`

	Proxy string `yaml:"proxy"` // outbound proxy URL, empty = none
}

func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}
