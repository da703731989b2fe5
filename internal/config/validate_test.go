package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fenimore/stuff/internal/search"
)

func writeConfig(t *testing.T, yml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
search:
  region: new_york_city
  area: brooklyn
  category: free
  keyword: chair
  search_distance: 1
  postal: "11238"
poll:
  sleep_seconds: 3000
enrich:
  enabled: true
  workers: 4
emit:
  channel: stdout
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if cfg.Search.Postal != "11238" || cfg.Poll.SleepSeconds != 3000 {
		t.Errorf("loaded config = %+v", cfg)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"unknown region", func(c *Config) { c.Search.Region = "atlantis" }, "region"},
		{"unknown area", func(c *Config) { c.Search.Area = "nowhere" }, "area"},
		{"unknown category", func(c *Config) { c.Search.Category = "blimps" }, "category"},
		{"negative distance", func(c *Config) { c.Search.Distance = -1 }, "search_distance"},
		{"distance without postal", func(c *Config) { c.Search.Distance = 2; c.Search.Postal = "" }, "postal"},
		{"negative sleep", func(c *Config) { c.Poll.SleepSeconds = -1 }, "sleep_seconds"},
		{"enrich without workers", func(c *Config) { c.Enrich.Enabled = true; c.Enrich.Workers = 0 }, "workers"},
		{"bogus channel", func(c *Config) { c.Emit.Channel = "carrier-pigeon" }, "channel"},
		{"webhook without url", func(c *Config) { c.Emit.Channel = "webhook" }, "webhook_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			tt.mut(&cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("want a validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateEmptyConfigUsesDefaults(t *testing.T) {
	if err := Validate(Config{}); err != nil {
		t.Errorf("empty config should fall back to defaults, got %v", err)
	}
}

func TestQueryDefaults(t *testing.T) {
	q, err := Query(Config{})
	if err != nil {
		t.Fatal(err)
	}
	if q.Region != search.RegionNewYork || q.Area != search.AreaAnywhere || q.Category != search.CategoryFree {
		t.Errorf("Query() = %+v, want the free-stuff-in-new-york defaults", q)
	}
	if q.Proximity != nil {
		t.Error("no postal code should mean no proximity filter")
	}
}

func TestQueryProximity(t *testing.T) {
	var cfg Config
	cfg.Search.Area = "brooklyn"
	cfg.Search.Distance = 1
	cfg.Search.Postal = "11238"

	q, err := Query(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if q.Proximity == nil {
		t.Fatal("postal code set, want a proximity filter")
	}
	if q.Proximity.SearchDistance != 1 || q.Proximity.PostalCode != "11238" {
		t.Errorf("Proximity = %+v", q.Proximity)
	}
}

func TestEnsureUserConfig(t *testing.T) {
	dir := t.TempDir()
	path, err := EnsureUserConfig(dir)
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("generated config does not validate: %v", err)
	}

	// a second run must not clobber user edits
	if err := os.WriteFile(path, []byte("proxy: http://localhost:9999\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := EnsureUserConfig(dir); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Proxy != "http://localhost:9999" {
		t.Error("EnsureUserConfig overwrote an existing config")
	}
}
