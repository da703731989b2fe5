package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/fenimore/stuff/internal/search"
)

// Validate checks the whole surface the loop will consume so bad values die
// at startup instead of mid-cycle.
func Validate(cfg Config) error {
	var errs []string

	if _, err := search.RegionFromName(defaulted(cfg.Search.Region, "new_york_city")); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := search.AreaFromName(defaulted(cfg.Search.Area, "anywhere")); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := search.CategoryFromName(defaulted(cfg.Search.Category, "free")); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.Search.Distance < 0 {
		errs = append(errs, "search.search_distance must be >= 0")
	}
	if cfg.Search.Distance > 0 && strings.TrimSpace(cfg.Search.Postal) == "" {
		errs = append(errs, "search.postal is required when search_distance is set")
	}

	if cfg.Poll.SleepSeconds < 0 {
		errs = append(errs, "poll.sleep_seconds must be >= 0")
	}
	if cfg.Poll.MaxAttempts < 0 {
		errs = append(errs, "poll.max_attempts must be >= 0")
	}

	if cfg.Enrich.Enabled && cfg.Enrich.Workers < 1 {
		errs = append(errs, "enrich.workers must be >= 1 when enrich.enabled=true")
	}
	if cfg.Enrich.Limit < 0 {
		errs = append(errs, "enrich.limit must be >= 0")
	}

	switch cfg.Emit.Channel {
	case "", "stdout":
	case "webhook":
		if strings.TrimSpace(cfg.Emit.WebhookURL) == "" {
			errs = append(errs, "emit.webhook_url is required when emit.channel=webhook")
		}
	default:
		errs = append(errs, fmt.Sprintf("emit.channel must be stdout or webhook, got %q", cfg.Emit.Channel))
	}

	if cfg.Proxy != "" {
		if _, err := url.Parse(cfg.Proxy); err != nil {
			errs = append(errs, fmt.Sprintf("proxy is not a valid URL: %v", err))
		}
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n- " + strings.Join(errs, "\n- "))
	}
	return nil
}

// Query builds the search query the config describes, applying the original
// defaults (free stuff, New York, anywhere).
func Query(cfg Config) (search.Query, error) {
	region, err := search.RegionFromName(defaulted(cfg.Search.Region, "new_york_city"))
	if err != nil {
		return search.Query{}, err
	}
	area, err := search.AreaFromName(defaulted(cfg.Search.Area, "anywhere"))
	if err != nil {
		return search.Query{}, err
	}
	category, err := search.CategoryFromName(defaulted(cfg.Search.Category, "free"))
	if err != nil {
		return search.Query{}, err
	}

	q := search.Query{
		Region:   region,
		Area:     area,
		Category: category,
		Keyword:  cfg.Search.Keyword,
	}
	if cfg.Search.Postal != "" {
		q.Proximity = &search.Proximity{
			SearchDistance: cfg.Search.Distance,
			PostalCode:     cfg.Search.Postal,
		}
	}
	return q, nil
}

func defaulted(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
