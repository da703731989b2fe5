package config

import (
	"errors"
	"os"
	"path/filepath"
)

const defaultYAML = `app:
  data_dir: "."

search:
  region: new_york_city
  area: anywhere
  category: free
  # keyword: "bookshelf"
  # search_distance: 2
  # postal: "11238"

poll:
  sleep_seconds: 3000
  max_attempts: 5

enrich:
  enabled: false
  workers: 4
  limit: 0

emit:
  channel: stdout
  # webhook_url: "https://hooks.example.com/stuff"

# proxy: "http://1.1.1.1:3129"
`

// EnsureUserConfig returns the path of the user's config file under dataDir,
// writing the commented default on first run.
func EnsureUserConfig(dataDir string) (string, error) {
	userPath := filepath.Join(dataDir, "config.yml")

	_, err := os.Stat(userPath)
	if err == nil {
		return userPath, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	if err := os.WriteFile(userPath, []byte(defaultYAML), 0o644); err != nil {
		return "", err
	}
	return userPath, nil
}
