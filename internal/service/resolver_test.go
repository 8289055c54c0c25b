package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/abdusco/linkdash/internal"
)

type fakeFinder struct {
	links map[string]*internal.ShortLink
	err   error
}

func (f *fakeFinder) GetByCode(_ context.Context, code string) (*internal.ShortLink, error) {
	if f.err != nil {
		return nil, f.err
	}
	link, ok := f.links[code]
	if !ok {
		return nil, internal.ErrLinkNotFound
	}
	return link, nil
}

type recordedClick struct {
	linkID string
	meta   internal.ClickMeta
	ctxErr error
	hasDL  bool
}

type fakeRecorder struct {
	mu      sync.Mutex
	clicks  []recordedClick
	release chan struct{}
}

func (r *fakeRecorder) Record(ctx context.Context, linkID string, meta internal.ClickMeta) {
	if r.release != nil {
		<-r.release
	}
	_, hasDL := ctx.Deadline()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.clicks = append(r.clicks, recordedClick{linkID: linkID, meta: meta, ctxErr: ctx.Err(), hasDL: hasDL})
}

func (r *fakeRecorder) recorded() []recordedClick {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedClick(nil), r.clicks...)
}

func drain(t *testing.T, r *Resolver) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
}

func TestResolve(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	links := map[string]*internal.ShortLink{
		"live":        {ID: "1", ShortCode: "live", DestinationURL: "https://example.com/live", IsActive: true},
		"later":       {ID: "2", ShortCode: "later", DestinationURL: "https://example.com/later", IsActive: true, ExpiresAt: &future},
		"expired":     {ID: "3", ShortCode: "expired", DestinationURL: "https://example.com/expired", IsActive: true, ExpiresAt: &past},
		"off":         {ID: "4", ShortCode: "off", DestinationURL: "https://example.com/off", IsActive: false},
		"off-expired": {ID: "5", ShortCode: "off-expired", DestinationURL: "https://example.com/x", IsActive: false, ExpiresAt: &past},
		"edge":        {ID: "6", ShortCode: "edge", DestinationURL: "https://example.com/edge", IsActive: true, ExpiresAt: &now},
	}

	tests := []struct {
		name        string
		code        string
		finderErr   error
		wantOutcome Outcome
		wantURL     string
		wantClicks  int
	}{
		{"active link", "live", nil, OutcomeRedirect, "https://example.com/live", 1},
		{"future expiry", "later", nil, OutcomeRedirect, "https://example.com/later", 1},
		{"expired link", "expired", nil, OutcomeExpired, "", 1},
		{"inactive link", "off", nil, OutcomeNotFound, "", 1},
		{"inactive hides expiry", "off-expired", nil, OutcomeNotFound, "", 1},
		{"expiry equal to now is not expired", "edge", nil, OutcomeRedirect, "https://example.com/edge", 1},
		{"unknown code", "nope", nil, OutcomeNotFound, "", 0},
		{"codes are case sensitive", "LIVE", nil, OutcomeNotFound, "", 0},
		{"lookup failure", "live", errors.New("db down"), OutcomeNotFound, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &fakeRecorder{}
			r := NewResolver(&fakeFinder{links: links, err: tt.finderErr}, recorder, time.Second)
			r.now = func() time.Time { return now }

			res := r.Resolve(context.Background(), tt.code, internal.ClickMeta{UserAgent: "ua"})
			drain(t, r)

			if res.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %v, want %v", res.Outcome, tt.wantOutcome)
			}
			if res.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", res.URL, tt.wantURL)
			}
			if got := len(recorder.recorded()); got != tt.wantClicks {
				t.Errorf("accounting attempts = %d, want %d", got, tt.wantClicks)
			}
		})
	}
}

func TestResolveAccountsEveryResolution(t *testing.T) {
	link := &internal.ShortLink{ID: "1", ShortCode: "hot", DestinationURL: "https://example.com", IsActive: true}
	recorder := &fakeRecorder{}
	r := NewResolver(&fakeFinder{links: map[string]*internal.ShortLink{"hot": link}}, recorder, time.Second)

	const n = 25
	var wg sync.WaitGroup
	for range n {
		wg.Go(func() {
			r.Resolve(context.Background(), "hot", internal.ClickMeta{})
		})
	}
	wg.Wait()
	drain(t, r)

	if got := len(recorder.recorded()); got != n {
		t.Errorf("accounting attempts = %d, want %d", got, n)
	}
}

func TestResolveDoesNotWaitForAccounting(t *testing.T) {
	link := &internal.ShortLink{ID: "1", ShortCode: "slow", DestinationURL: "https://example.com", IsActive: true}
	recorder := &fakeRecorder{release: make(chan struct{})}
	r := NewResolver(&fakeFinder{links: map[string]*internal.ShortLink{"slow": link}}, recorder, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Resolution, 1)
	go func() {
		done <- r.Resolve(ctx, "slow", internal.ClickMeta{Referer: "https://ref.example"})
	}()

	select {
	case res := <-done:
		if res.Outcome != OutcomeRedirect {
			t.Fatalf("Outcome = %v, want redirect", res.Outcome)
		}
	case <-time.After(time.Second):
		t.Fatal("Resolve() blocked on click accounting")
	}

	// The request is over before the accounting task runs.
	cancel()
	close(recorder.release)
	drain(t, r)

	clicks := recorder.recorded()
	if len(clicks) != 1 {
		t.Fatalf("accounting attempts = %d, want 1", len(clicks))
	}
	if clicks[0].ctxErr != nil {
		t.Errorf("accounting context error = %v, want detached context", clicks[0].ctxErr)
	}
	if !clicks[0].hasDL {
		t.Error("accounting context has no deadline")
	}
	if clicks[0].meta.Referer != "https://ref.example" {
		t.Errorf("meta = %+v", clicks[0].meta)
	}
}

func TestDrainHonorsContext(t *testing.T) {
	link := &internal.ShortLink{ID: "1", ShortCode: "stuck", DestinationURL: "https://example.com", IsActive: true}
	recorder := &fakeRecorder{release: make(chan struct{})}
	r := NewResolver(&fakeFinder{links: map[string]*internal.ShortLink{"stuck": link}}, recorder, time.Second)

	r.Resolve(context.Background(), "stuck", internal.ClickMeta{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Drain() error = %v, want DeadlineExceeded", err)
	}

	close(recorder.release)
	drain(t, r)
}
