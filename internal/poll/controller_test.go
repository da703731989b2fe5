package poll

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fenimore/stuff/internal/domain"
	"github.com/fenimore/stuff/internal/emit"
	"github.com/fenimore/stuff/internal/search"
	"github.com/fenimore/stuff/internal/store"
)

type fakeSource struct {
	listings []domain.Listing
	err      error
}

func (f *fakeSource) Inventory(_ context.Context) ([]domain.Listing, []error, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	// copies; the controller may mutate what it gets
	out := make([]domain.Listing, len(f.listings))
	copy(out, f.listings)
	return out, nil, nil
}

type fakeEnricher struct {
	calls int
}

func (f *fakeEnricher) Enrich(_ context.Context, listings []domain.Listing) []search.Outcome {
	f.calls++
	out := make([]search.Outcome, len(listings))
	for i, l := range listings {
		l.ImageURLs = []string{"https://images.test/" + l.Title + ".jpg"}
		out[i] = search.Outcome{Listing: l}
	}
	return out
}

type fakeEmitter struct {
	fail    bool
	emitted []string
}

func (f *fakeEmitter) Emit(_ context.Context, l domain.Listing) (emit.Result, error) {
	if f.fail {
		return emit.Result{}, errors.New("gateway down")
	}
	f.emitted = append(f.emitted, l.URL)
	return emit.Result{Channel: "fake", Ref: "ok"}, nil
}

func (f *fakeEmitter) Describe(r emit.Result) string { return r.Channel + ": " + r.Ref }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testController(t *testing.T, src Source, enricher Enricher, emitter emit.Emitter, opts Options) (*Controller, *store.DB) {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	return New(db, src, enricher, emitter, nil, quietLogger(), opts), db
}

func listing(url, title string, postedAt time.Time) domain.Listing {
	return domain.Listing{URL: url, Title: title, PostedAt: postedAt, Price: 0, City: "newyork"}
}

func TestSeedMarksEverythingDelivered(t *testing.T) {
	base := time.Date(2019, 9, 13, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{listings: []domain.Listing{
		listing("https://x.test/1", "one", base),
		listing("https://x.test/2", "two", base.Add(time.Minute)),
		listing("https://x.test/3", "three", base.Add(2*time.Minute)),
	}}
	em := &fakeEmitter{}
	c, db := testController(t, src, nil, em, Options{})
	ctx := context.Background()

	if err := c.populate(ctx, true); err != nil {
		t.Fatalf("seed populate: %v", err)
	}

	all, err := db.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("seed inserted %d rows, want 3", len(all))
	}
	for _, l := range all {
		if !l.Delivered {
			t.Errorf("seeded listing %s not marked delivered", l.URL)
		}
	}

	// the first real cycle after seeding emits nothing
	c.cycle(ctx)
	if len(em.emitted) != 0 {
		t.Errorf("cycle after seed emitted %v, want no backlog flood", em.emitted)
	}
}

func TestPollInsertsOnlyNewListings(t *testing.T) {
	base := time.Date(2019, 9, 13, 12, 0, 0, 0, time.UTC)
	seeded := []domain.Listing{
		listing("https://x.test/1", "one", base),
		listing("https://x.test/2", "two", base.Add(time.Minute)),
		listing("https://x.test/3", "three", base.Add(2*time.Minute)),
	}
	src := &fakeSource{listings: seeded}
	em := &fakeEmitter{}
	c, db := testController(t, src, nil, em, Options{})
	ctx := context.Background()

	if err := c.populate(ctx, true); err != nil {
		t.Fatal(err)
	}

	// the same three plus one new listing shows up upstream
	fresh := listing("https://x.test/4", "four", base.Add(3*time.Minute))
	src.listings = append(seeded, fresh)
	c.cycle(ctx)

	all, err := db.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("got %d rows, want 4", len(all))
	}

	got, err := db.GetByURL(ctx, fresh.URL)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Delivered {
		t.Error("new listing should be delivered after the cycle's deliver phase")
	}
	if len(em.emitted) != 1 || em.emitted[0] != fresh.URL {
		t.Errorf("emitted %v, want exactly the new listing", em.emitted)
	}
}

func TestPollIsIdempotent(t *testing.T) {
	src := &fakeSource{listings: []domain.Listing{
		listing("https://x.test/1", "one", time.Now().UTC()),
	}}
	c, db := testController(t, src, nil, &fakeEmitter{}, Options{})
	ctx := context.Background()

	if err := c.populate(ctx, false); err != nil {
		t.Fatal(err)
	}
	if err := c.populate(ctx, false); err != nil {
		t.Fatal(err)
	}

	all, err := db.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("two identical polls inserted %d rows, want 1", len(all))
	}
}

func TestDeliveryFailureLeavesListingPending(t *testing.T) {
	src := &fakeSource{listings: []domain.Listing{
		listing("https://x.test/1", "one", time.Now().UTC()),
	}}
	em := &fakeEmitter{fail: true}
	c, db := testController(t, src, nil, em, Options{MaxAttempts: 5})
	ctx := context.Background()

	c.cycle(ctx)

	got, err := db.GetByURL(ctx, "https://x.test/1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Delivered {
		t.Error("failed delivery must not mark the listing delivered")
	}
	if got.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1 after one failed emit", got.Attempts)
	}

	// it reappears next cycle and succeeds once the channel recovers
	em.fail = false
	c.cycle(ctx)
	got, err = db.GetByURL(ctx, "https://x.test/1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Delivered {
		t.Error("recovered channel should deliver the retried listing")
	}
}

func TestRepeatedFailuresDeadLetter(t *testing.T) {
	src := &fakeSource{listings: []domain.Listing{
		listing("https://x.test/1", "one", time.Now().UTC()),
	}}
	em := &fakeEmitter{fail: true}
	c, db := testController(t, src, nil, em, Options{MaxAttempts: 2})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		c.cycle(ctx)
	}

	got, err := db.GetByURL(ctx, "https://x.test/1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Delivered {
		t.Error("dead-lettered listing must stay undelivered")
	}
	if got.Attempts != 2 {
		t.Errorf("Attempts = %d, want the cap of 2", got.Attempts)
	}
}

func TestEnrichmentAppliedToNewListings(t *testing.T) {
	src := &fakeSource{listings: []domain.Listing{
		listing("https://x.test/1", "one", time.Now().UTC()),
	}}
	enricher := &fakeEnricher{}
	c, db := testController(t, src, enricher, &fakeEmitter{}, Options{Enrich: true})
	ctx := context.Background()

	if err := c.populate(ctx, false); err != nil {
		t.Fatal(err)
	}
	if enricher.calls != 1 {
		t.Fatalf("enricher called %d times, want 1", enricher.calls)
	}

	got, err := db.GetByURL(ctx, "https://x.test/1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.ImageURLs) != 1 {
		t.Errorf("enrichment not persisted: %+v", got)
	}

	// nothing new next time, so no enrichment either
	if err := c.populate(ctx, false); err != nil {
		t.Fatal(err)
	}
	if enricher.calls != 1 {
		t.Errorf("enricher called %d times for an empty diff, want still 1", enricher.calls)
	}
}

func TestFetchFailureStillDrainsBacklog(t *testing.T) {
	src := &fakeSource{listings: []domain.Listing{
		listing("https://x.test/1", "one", time.Now().UTC()),
	}}
	em := &fakeEmitter{}
	c, db := testController(t, src, nil, em, Options{})
	ctx := context.Background()

	if err := c.populate(ctx, false); err != nil {
		t.Fatal(err)
	}

	// upstream goes away; the pending listing still gets delivered
	src.err = &search.FetchError{URL: "https://x.test", Err: errors.New("timeout")}
	c.cycle(ctx)

	got, err := db.GetByURL(ctx, "https://x.test/1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Delivered {
		t.Error("backlog should drain even when the poll fetch fails")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	src := &fakeSource{}
	c, _ := testController(t, src, nil, &fakeEmitter{}, Options{Sleep: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v on cancellation, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestRunOnceDoesNotSeed(t *testing.T) {
	src := &fakeSource{listings: []domain.Listing{
		listing("https://x.test/1", "one", time.Now().UTC()),
	}}
	em := &fakeEmitter{}
	c, db := testController(t, src, nil, em, Options{})

	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(em.emitted) != 1 {
		t.Errorf("RunOnce emitted %v, want the one listing", em.emitted)
	}

	got, err := db.GetByURL(context.Background(), "https://x.test/1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Delivered {
		t.Error("RunOnce should deliver what it inserted")
	}
}
