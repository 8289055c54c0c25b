package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/abdusco/linkdash/internal"
	"github.com/abdusco/linkdash/internal/metrics"
	"github.com/rs/zerolog/log"
)

type Outcome int

const (
	OutcomeRedirect Outcome = iota
	OutcomeExpired
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRedirect:
		return "redirect"
	case OutcomeExpired:
		return "expired"
	default:
		return "not_found"
	}
}

type Resolution struct {
	Outcome Outcome
	URL     string
}

type LinkFinder interface {
	GetByCode(ctx context.Context, code string) (*internal.ShortLink, error)
}

type ClickRecorder interface {
	Record(ctx context.Context, linkID string, meta internal.ClickMeta)
}

// Resolver maps short codes to redirect outcomes. Every matched record, even
// an expired or inactive one, gets exactly one accounting attempt; a lookup
// miss gets none.
type Resolver struct {
	links    LinkFinder
	recorder ClickRecorder
	timeout  time.Duration
	now      func() time.Time
	inflight sync.WaitGroup
}

func NewResolver(links LinkFinder, recorder ClickRecorder, accountingTimeout time.Duration) *Resolver {
	return &Resolver{
		links:    links,
		recorder: recorder,
		timeout:  accountingTimeout,
		now:      time.Now,
	}
}

// Decide applies the activation and expiry policy to a found link. A
// deactivated link is not found whatever its expiry.
func Decide(link *internal.ShortLink, now time.Time) Outcome {
	if !link.IsActive {
		return OutcomeNotFound
	}
	if link.IsExpired(now) {
		return OutcomeExpired
	}
	return OutcomeRedirect
}

func (r *Resolver) Resolve(ctx context.Context, code string, meta internal.ClickMeta) Resolution {
	link, err := r.links.GetByCode(ctx, code)
	if err != nil {
		if !errors.Is(err, internal.ErrLinkNotFound) {
			log.Error().Err(err).Str("short_code", code).Msg("failed to look up link")
		}
		metrics.Redirects.WithLabelValues(OutcomeNotFound.String()).Inc()
		return Resolution{Outcome: OutcomeNotFound}
	}

	r.account(ctx, link.ID, meta)

	outcome := Decide(link, r.now())
	metrics.Redirects.WithLabelValues(outcome.String()).Inc()

	log.Debug().Str("short_code", code).Stringer("outcome", outcome).Msg("resolved link")

	if outcome != OutcomeRedirect {
		return Resolution{Outcome: outcome}
	}
	return Resolution{Outcome: OutcomeRedirect, URL: link.DestinationURL}
}

// account starts the accounting task and returns immediately. The task is
// attempted once, never retried, and outlives the request up to the timeout.
func (r *Resolver) account(ctx context.Context, linkID string, meta internal.ClickMeta) {
	metrics.ClickAccountingInflight.Inc()
	r.inflight.Go(func() {
		defer metrics.ClickAccountingInflight.Dec()

		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		r.recorder.Record(actx, linkID, meta)
	})
}

// Drain blocks until running accounting tasks finish or ctx is done.
func (r *Resolver) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
