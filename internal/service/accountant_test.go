package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/abdusco/linkdash/internal"
)

type fakeCounter struct {
	calls []string
	err   error
}

func (f *fakeCounter) IncrementClickCount(_ context.Context, id string) error {
	f.calls = append(f.calls, id)
	return f.err
}

type fakeEventWriter struct {
	events []internal.ClickEvent
	err    error
}

func (f *fakeEventWriter) Create(_ context.Context, ev internal.ClickEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name         string
		forwardedFor string
		realIP       string
		want         string
	}{
		{"first forwarded hop", "203.0.113.1, 10.0.0.1, 10.0.0.2", "198.51.100.9", "203.0.113.1"},
		{"single forwarded", "203.0.113.1", "", "203.0.113.1"},
		{"real ip fallback", "", "198.51.100.9", "198.51.100.9"},
		{"blank forwarded falls through", " , 10.0.0.1", "198.51.100.9", "198.51.100.9"},
		{"nothing", "", "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClientIP(tt.forwardedFor, tt.realIP); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAccountantRecord(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	counter := &fakeCounter{}
	events := &fakeEventWriter{}
	a := NewAccountant(counter, events)
	a.now = func() time.Time { return now }

	long := strings.Repeat("é", 600)
	a.Record(context.Background(), "link-1", internal.ClickMeta{
		ForwardedFor: "203.0.113.1, 10.0.0.1",
		UserAgent:    long,
		Referer:      "https://ref.example",
	})

	if len(counter.calls) != 1 || counter.calls[0] != "link-1" {
		t.Errorf("counter calls = %v, want [link-1]", counter.calls)
	}
	if len(events.events) != 1 {
		t.Fatalf("events = %d, want 1", len(events.events))
	}

	ev := events.events[0]
	if ev.ShortLinkID != "link-1" || !ev.ClickedAt.Equal(now) {
		t.Errorf("event = %+v", ev)
	}
	if ev.IPAddress != "203.0.113.1" {
		t.Errorf("IPAddress = %q", ev.IPAddress)
	}
	if n := utf8.RuneCountInString(ev.UserAgent); n != 500 {
		t.Errorf("UserAgent length = %d runes, want 500", n)
	}
	if ev.Referer != "https://ref.example" {
		t.Errorf("Referer = %q", ev.Referer)
	}
}

func TestAccountantWritesAreIndependent(t *testing.T) {
	t.Run("counter failure still records event", func(t *testing.T) {
		events := &fakeEventWriter{}
		a := NewAccountant(&fakeCounter{err: errors.New("locked")}, events)

		a.Record(context.Background(), "link-1", internal.ClickMeta{})

		if len(events.events) != 1 {
			t.Errorf("events = %d, want 1", len(events.events))
		}
		if events.events[0].IPAddress != "unknown" {
			t.Errorf("IPAddress = %q, want unknown", events.events[0].IPAddress)
		}
	})

	t.Run("event failure keeps counter", func(t *testing.T) {
		counter := &fakeCounter{}
		a := NewAccountant(counter, &fakeEventWriter{err: errors.New("disk full")})

		a.Record(context.Background(), "link-1", internal.ClickMeta{})

		if len(counter.calls) != 1 {
			t.Errorf("counter calls = %d, want 1", len(counter.calls))
		}
	})
}
