// Package emit defines the notification channel contract and the built-in
// channels. The controller only ever sees the two-method Emitter interface;
// concrete channels are injected at wiring time.
package emit

import (
	"context"
	"fmt"
	"io"

	"github.com/fenimore/stuff/internal/domain"
)

// Result identifies what a channel did with one listing, for logging.
type Result struct {
	Channel string
	Ref     string // channel-specific receipt: message id, HTTP status, ...
}

type Emitter interface {
	Emit(ctx context.Context, l domain.Listing) (Result, error)
	Describe(r Result) string
}

// Stdout prints new listings, the original default channel.
type Stdout struct {
	Out io.Writer
}

func (s Stdout) Emit(_ context.Context, l domain.Listing) (Result, error) {
	if _, err := fmt.Fprintf(s.Out, "New Stuff: %s\n", l.Title); err != nil {
		return Result{}, fmt.Errorf("stdout emit: %w", err)
	}
	return Result{Channel: "stdout", Ref: "success"}, nil
}

func (s Stdout) Describe(r Result) string {
	return r.Channel + ": " + r.Ref
}
