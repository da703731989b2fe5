package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/fenimore/stuff/internal/config"
	"github.com/fenimore/stuff/internal/emit"
	"github.com/fenimore/stuff/internal/events"
	"github.com/fenimore/stuff/internal/poll"
	"github.com/fenimore/stuff/internal/search"
	"github.com/fenimore/stuff/internal/secrets"
	"github.com/fenimore/stuff/internal/store"
)

func main() {
	// .env is a local convenience; absence is normal
	_ = godotenv.Load()

	var (
		cfgPath  = flag.String("config", "", "config file path (default <data_dir>/config.yml)")
		region   = flag.String("region", "", "override search.region, e.g. new_york_city")
		area     = flag.String("area", "", "override search.area, e.g. brooklyn")
		category = flag.String("category", "", "override search.category, e.g. free")
		keyword  = flag.String("query", "", "override search.keyword")
		zip      = flag.String("zip", "", "override search.postal")
		distance = flag.Int("distance", 2, "search radius in miles, used with -zip")
		once     = flag.Bool("once", false, "run one poll+deliver pass and exit (no seed)")
		refresh  = flag.Bool("refresh", false, "drop and recreate the schema before starting")
		verbose  = flag.Bool("verbose", false, "debug logging and per-event progress")
		setToken = flag.String("set-token", "", "store a webhook token in the OS keychain and exit")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02 15:04:05",
	}))

	if err := run(log, runArgs{
		cfgPath:  *cfgPath,
		region:   *region,
		area:     *area,
		category: *category,
		keyword:  *keyword,
		zip:      *zip,
		distance: *distance,
		once:     *once,
		refresh:  *refresh,
		verbose:  *verbose,
		setToken: *setToken,
	}); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

type runArgs struct {
	cfgPath, region, area, category, keyword, zip string
	distance                                      int
	once, refresh, verbose                        bool
	setToken                                      string
}

func run(log *slog.Logger, args runArgs) error {
	dataDir := os.Getenv("STUFF_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	cfgPath := args.cfgPath
	if cfgPath == "" {
		p, err := config.EnsureUserConfig(dataDir)
		if err != nil {
			return fmt.Errorf("config bootstrap: %w", err)
		}
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	overlayFlags(&cfg, args)
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if cfg.App.DataDir != "" {
		dataDir = cfg.App.DataDir
	}

	if args.setToken != "" {
		account := webhookAccount(cfg)
		if err := secrets.SetWebhookToken(account, args.setToken); err != nil {
			return fmt.Errorf("store webhook token: %w", err)
		}
		log.Info("webhook token stored", "account", account)
		return nil
	}

	// one poller per data dir; two writers on one sqlite file is a mess
	lock := flock.New(filepath.Join(dataDir, "stuff.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("data dir lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another instance already holds %s", lock.Path())
	}
	defer lock.Unlock()

	db, err := store.Open(filepath.Join(dataDir, "stuff.db"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	if args.refresh {
		log.Warn("dropping schema")
		if err := db.Drop(); err != nil {
			return fmt.Errorf("drop schema: %w", err)
		}
	}

	query, err := config.Query(cfg)
	if err != nil {
		return err
	}
	var proxy *url.URL
	if cfg.Proxy != "" {
		proxy, err = url.Parse(cfg.Proxy)
		if err != nil {
			return fmt.Errorf("proxy url: %w", err)
		}
	}

	emitter, err := buildEmitter(cfg, log)
	if err != nil {
		return err
	}

	hub := events.NewHub()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args.verbose {
		go watchEvents(ctx, hub, log)
	}

	ctrl := poll.New(
		db,
		search.New(query, proxy),
		search.NewEnricher(cfg.Enrich.Workers, proxy),
		emitter,
		hub,
		log,
		poll.Options{
			Sleep:       time.Duration(cfg.Poll.SleepSeconds) * time.Second,
			Enrich:      cfg.Enrich.Enabled,
			EnrichLimit: cfg.Enrich.Limit,
			MaxAttempts: cfg.Poll.MaxAttempts,
		},
	)

	if args.once {
		return ctrl.RunOnce(ctx)
	}
	return ctrl.Run(ctx)
}

func overlayFlags(cfg *config.Config, args runArgs) {
	if args.region != "" {
		cfg.Search.Region = args.region
	}
	if args.area != "" {
		cfg.Search.Area = args.area
	}
	if args.category != "" {
		cfg.Search.Category = args.category
	}
	if args.keyword != "" {
		cfg.Search.Keyword = args.keyword
	}
	if args.zip != "" {
		cfg.Search.Postal = args.zip
		cfg.Search.Distance = args.distance
	}
}

func buildEmitter(cfg config.Config, log *slog.Logger) (emit.Emitter, error) {
	switch cfg.Emit.Channel {
	case "", "stdout":
		return emit.Stdout{Out: os.Stdout}, nil
	case "webhook":
		token, err := secrets.WebhookToken(webhookAccount(cfg))
		if err != nil {
			// unauthenticated gateways exist; warn and carry on
			log.Warn("no webhook token in keychain", "error", err)
		}
		return emit.NewWebhook(cfg.Emit.WebhookURL, token), nil
	default:
		return nil, fmt.Errorf("unknown emit channel %q", cfg.Emit.Channel)
	}
}

func webhookAccount(cfg config.Config) string {
	host := cfg.Emit.WebhookURL
	if u, err := url.Parse(cfg.Emit.WebhookURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return "stuff:webhook:" + host
}

func watchEvents(ctx context.Context, hub *events.Hub, log *slog.Logger) {
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-ch:
			switch evt.Kind {
			case events.KindCycleDone:
				log.Debug("cycle done", "sent", evt.Sent)
			default:
				log.Debug(string(evt.Kind), "title", evt.Title, "url", evt.URL)
			}
		}
	}
}
