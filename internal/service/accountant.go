package service

import (
	"context"
	"strings"
	"time"

	"github.com/abdusco/linkdash/internal"
	"github.com/abdusco/linkdash/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const (
	maxMetaLength = 500
	unknownIP     = "unknown"
)

type ClickCounter interface {
	IncrementClickCount(ctx context.Context, id string) error
}

type ClickEventWriter interface {
	Create(ctx context.Context, ev internal.ClickEvent) error
}

// Accountant performs the two independent click writes: the denormalized
// counter and the event row. Neither failure is returned.
type Accountant struct {
	counter ClickCounter
	events  ClickEventWriter
	now     func() time.Time
}

func NewAccountant(counter ClickCounter, events ClickEventWriter) *Accountant {
	return &Accountant{counter: counter, events: events, now: time.Now}
}

func (a *Accountant) Record(ctx context.Context, linkID string, meta internal.ClickMeta) {
	if err := a.counter.IncrementClickCount(ctx, linkID); err != nil {
		metrics.ClickAccountingFailures.WithLabelValues("counter").Inc()
		log.Error().Err(err).Str("link_id", linkID).Msg("failed to increment click count")
	}

	ev := internal.ClickEvent{
		ShortLinkID: linkID,
		ClickedAt:   a.now().UTC(),
		IPAddress:   truncate(ClientIP(meta.ForwardedFor, meta.RealIP)),
		UserAgent:   truncate(meta.UserAgent),
		Referer:     truncate(meta.Referer),
	}
	if err := a.events.Create(ctx, ev); err != nil {
		metrics.ClickAccountingFailures.WithLabelValues("event").Inc()
		log.Error().Err(err).Str("link_id", linkID).Msg("failed to record click event")
		return
	}

	log.Debug().Str("link_id", linkID).Str("ip", ev.IPAddress).Msg("click recorded")
}

// ClientIP takes the first hop of X-Forwarded-For, then X-Real-IP.
func ClientIP(forwardedFor, realIP string) string {
	first, _, _ := strings.Cut(forwardedFor, ",")
	if ip := strings.TrimSpace(first); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(realIP); ip != "" {
		return ip
	}
	return unknownIP
}

func truncate(s string) string {
	return lo.Substring(s, 0, maxMetaLength)
}
