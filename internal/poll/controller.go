// Package poll owns the poll-enrich-deliver loop: fetch the search results,
// drop everything already stored, optionally enrich the rest from their
// detail pages, insert, emit whatever is still undelivered, sleep, repeat.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fenimore/stuff/internal/domain"
	"github.com/fenimore/stuff/internal/emit"
	"github.com/fenimore/stuff/internal/events"
	"github.com/fenimore/stuff/internal/search"
	"github.com/fenimore/stuff/internal/store"
)

// Source yields the current inventory for the configured search: the
// listings that parsed plus a per-row error for each one that did not.
// A transport failure is returned as the third value.
type Source interface {
	Inventory(ctx context.Context) ([]domain.Listing, []error, error)
}

// Enricher runs a batch of detail-page fetches; see search.Enricher.
type Enricher interface {
	Enrich(ctx context.Context, listings []domain.Listing) []search.Outcome
}

type Options struct {
	Sleep       time.Duration // pause between cycles
	Enrich      bool          // fetch detail pages for new listings
	EnrichLimit int           // cap detail fetches per cycle; 0 = no cap
	MaxAttempts int           // failed deliveries before dead-letter; 0 = 5
}

type Controller struct {
	db       *store.DB
	src      Source
	enricher Enricher
	emitter  emit.Emitter
	hub      *events.Hub
	log      *slog.Logger
	opts     Options
}

func New(db *store.DB, src Source, enricher Enricher, emitter emit.Emitter, hub *events.Hub, log *slog.Logger, opts Options) *Controller {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if hub == nil {
		hub = events.NewHub()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		db:       db,
		src:      src,
		enricher: enricher,
		emitter:  emitter,
		hub:      hub,
		log:      log,
		opts:     opts,
	}
}

// Run drives the loop until ctx is cancelled. It creates the schema, runs
// the seed pass exactly once (everything currently visible goes in already
// delivered, so the first real cycle does not flood the channel with the
// whole backlog), then cycles. A cycle that fails is logged and the loop
// sleeps into the next one; only schema creation and the seed pass are
// fatal.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.db.Migrate(); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	c.log.Info("seeding store, everything marked delivered")
	if err := c.populate(ctx, true); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	c.log.Info("starting loop", "sleep", c.opts.Sleep, "enrich", c.opts.Enrich)
	for {
		if ctx.Err() != nil {
			c.log.Info("stopped")
			return nil
		}

		c.cycle(ctx)

		select {
		case <-ctx.Done():
			c.log.Info("stopped")
			return nil
		case <-time.After(c.opts.Sleep):
		}
	}
}

// RunOnce performs a single poll+deliver pass with no seed, for one-shot
// CLI invocations.
func (c *Controller) RunOnce(ctx context.Context) error {
	if err := c.db.Migrate(); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if err := c.populate(ctx, false); err != nil {
		return err
	}
	return c.deliver(ctx)
}

func (c *Controller) cycle(ctx context.Context) {
	if err := c.populate(ctx, false); err != nil {
		var fe *search.FetchError
		if errors.As(err, &fe) {
			// upstream hiccup; the backlog can still drain below and
			// the poll reruns next cycle
			c.log.Warn("poll fetch failed", "url", fe.URL, "error", fe.Err)
		} else {
			c.log.Error("poll failed", "error", err)
		}
	}
	if err := c.deliver(ctx); err != nil {
		c.log.Error("deliver failed", "error", err)
	}
}

// populate fetches the search results, filters out urls already stored,
// optionally enriches what is left, and inserts it. seed marks the new rows
// delivered on the way in.
func (c *Controller) populate(ctx context.Context, seed bool) error {
	inventory, parseErrs, err := c.src.Inventory(ctx)
	if err != nil {
		return err
	}
	for _, perr := range parseErrs {
		c.log.Warn("skipping unparsable listing", "error", perr)
	}

	var fresh []domain.Listing
	for _, l := range inventory {
		existing, err := c.db.GetByURL(ctx, l.URL)
		if err != nil {
			return fmt.Errorf("dedup lookup: %w", err)
		}
		if existing == nil {
			fresh = append(fresh, l)
		}
	}
	if len(fresh) == 0 {
		c.log.Debug("nothing new")
		return nil
	}

	if c.opts.Enrich && c.enricher != nil {
		n := len(fresh)
		if c.opts.EnrichLimit > 0 && c.opts.EnrichLimit < n {
			n = c.opts.EnrichLimit
		}
		c.log.Info("enriching listings", "count", n)
		for i, o := range c.enricher.Enrich(ctx, fresh[:n]) {
			if o.Err != nil {
				// keep the bare listing; images and coordinates are
				// nice to have, novelty is not
				c.log.Warn("enrichment failed", "url", o.Listing.URL, "error", o.Err)
			}
			fresh[i] = o.Listing
		}
	}

	added := 0
	for _, l := range fresh {
		l.Delivered = seed
		if _, err := c.db.Insert(ctx, l); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				continue
			}
			c.log.Error("insert failed", "url", l.URL, "error", err)
			continue
		}
		added++
		c.hub.Publish(events.Event{Kind: events.KindInserted, Title: l.Title, URL: l.URL})
	}
	c.log.Info("inserted listings", "count", added, "seed", seed)
	return nil
}

// deliver emits everything undelivered, newest first. A successful emit
// commits delivered=true before anything else happens; a failed one bumps
// the attempt counter and leaves the row for the next cycle. Cancellation
// is only honored between emits, never mid-listing.
func (c *Controller) deliver(ctx context.Context) error {
	pending, err := c.db.GetUndelivered(ctx, c.opts.MaxAttempts)
	if err != nil {
		return fmt.Errorf("select undelivered: %w", err)
	}
	if len(pending) == 0 {
		c.log.Debug("nothing to emit")
		return nil
	}

	c.log.Info("emitting listings", "count", len(pending))
	sent := 0
	for _, l := range pending {
		if ctx.Err() != nil {
			return nil
		}

		res, err := c.emitter.Emit(ctx, l)
		if err != nil {
			c.log.Warn("delivery failed",
				"title", l.Title, "attempts", l.Attempts+1, "error", err)
			if err := c.db.BumpAttempts(ctx, l.ID); err != nil {
				c.log.Error("recording delivery attempt", "id", l.ID, "error", err)
			}
			continue
		}
		if err := c.db.MarkDelivered(ctx, l.ID); err != nil {
			// ErrNotFound here is an invariant violation, keep it loud
			c.log.Error("marking delivered", "id", l.ID, "error", err)
			continue
		}
		sent++
		c.log.Info("delivered", "title", l.Title, "result", c.emitter.Describe(res))
		c.hub.Publish(events.Event{Kind: events.KindDelivered, Title: l.Title, URL: l.URL})
	}
	c.hub.Publish(events.Event{Kind: events.KindCycleDone, Sent: sent})
	return nil
}
