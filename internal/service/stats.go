package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abdusco/linkdash/internal"
	"github.com/abdusco/linkdash/internal/repo"
	"github.com/samber/lo"
)

const (
	TrendDays      = 7
	RecentLogLimit = 20

	dateLayout = "2006-01-02"
	week       = 7 * 24 * time.Hour
)

type StatsLinkReader interface {
	GetForOwner(ctx context.Context, id, ownerID string) (*internal.ShortLink, error)
	CountForOwner(ctx context.Context, ownerID string, now, dayStart time.Time) (repo.LinkCounts, error)
	SumClickCount(ctx context.Context, ownerID string) (int64, error)
}

type ClickReader interface {
	Count(ctx context.Context, scope repo.ClickScope) (int64, error)
	ClickTimes(ctx context.Context, scope repo.ClickScope) ([]time.Time, error)
	Recent(ctx context.Context, scope repo.ClickScope, limit int) ([]internal.ClickEvent, error)
}

// Aggregator answers the read-only reporting queries. Click totals come from
// the event log; the denormalized counter is only used while a scope has no
// events at all.
type Aggregator struct {
	links  StatsLinkReader
	clicks ClickReader
	loc    *time.Location
	now    func() time.Time
}

// NewAggregator builds an aggregator whose "today" starts at midnight in loc.
func NewAggregator(links StatsLinkReader, clicks ClickReader, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{links: links, clicks: clicks, loc: loc, now: time.Now}
}

func (a *Aggregator) LinkStats(ctx context.Context, linkID, ownerID string) (*internal.LinkStats, error) {
	link, err := a.links.GetForOwner(ctx, linkID, ownerID)
	if err != nil {
		if errors.Is(err, internal.ErrLinkNotFound) {
			return nil, internal.NotFound(err)
		}
		return nil, internal.Upstream(err)
	}

	now := a.now()
	scope := repo.ClickScope{LinkID: link.ID}

	stats, err := a.linkStats(ctx, link, scope, now)
	if err != nil {
		return nil, internal.Upstream(fmt.Errorf("link stats for %s: %w", link.ID, err))
	}
	return stats, nil
}

func (a *Aggregator) linkStats(ctx context.Context, link *internal.ShortLink, scope repo.ClickScope, now time.Time) (*internal.LinkStats, error) {
	total, today, weekly, err := a.clickTotals(ctx, scope, now)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		total = link.ClickCount
	}

	trendScope := scope
	trendScope.Since = trendStart(now, TrendDays)
	times, err := a.clicks.ClickTimes(ctx, trendScope)
	if err != nil {
		return nil, err
	}

	recent, err := a.clicks.Recent(ctx, scope, RecentLogLimit)
	if err != nil {
		return nil, err
	}

	return &internal.LinkStats{
		TotalClicks: total,
		TodayClicks: today,
		WeekClicks:  weekly,
		Last7Days:   DailyTrend(times, now, TrendDays),
		RecentLogs:  recent,
	}, nil
}

func (a *Aggregator) Summary(ctx context.Context, ownerID string) (*internal.SummaryStats, error) {
	now := a.now()

	counts, err := a.links.CountForOwner(ctx, ownerID, now, StartOfDay(now, a.loc))
	if err != nil {
		return nil, internal.Upstream(fmt.Errorf("summary for %s: %w", ownerID, err))
	}

	total, today, weekly, err := a.clickTotals(ctx, repo.ClickScope{OwnerID: ownerID}, now)
	if err != nil {
		return nil, internal.Upstream(fmt.Errorf("summary for %s: %w", ownerID, err))
	}
	if total == 0 {
		if total, err = a.links.SumClickCount(ctx, ownerID); err != nil {
			return nil, internal.Upstream(fmt.Errorf("summary for %s: %w", ownerID, err))
		}
	}

	return &internal.SummaryStats{
		TotalLinks:    counts.Total,
		ActiveLinks:   counts.Active,
		InactiveLinks: counts.Inactive,
		ExpiredLinks:  counts.Expired,
		TodayLinks:    counts.Today,
		TotalClicks:   total,
		TodayClicks:   today,
		WeekClicks:    weekly,
	}, nil
}

// clickTotals counts all, today's and the rolling week's events in scope.
func (a *Aggregator) clickTotals(ctx context.Context, scope repo.ClickScope, now time.Time) (total, today, weekly int64, err error) {
	if total, err = a.clicks.Count(ctx, scope); err != nil {
		return
	}

	todayScope := scope
	todayScope.Since = StartOfDay(now, a.loc)
	if today, err = a.clicks.Count(ctx, todayScope); err != nil {
		return
	}

	weekScope := scope
	weekScope.Since = now.Add(-week)
	weekly, err = a.clicks.Count(ctx, weekScope)
	return
}

// DailyTrend buckets click times by their UTC calendar date and returns one
// entry per day for the trailing days ending today, oldest first, with
// missing days reported as zero.
func DailyTrend(times []time.Time, now time.Time, days int) []internal.DailyCount {
	buckets := lo.CountValuesBy(times, func(t time.Time) string {
		return t.UTC().Format(dateLayout)
	})

	today := now.UTC()
	trend := make([]internal.DailyCount, 0, days)
	for i := days - 1; i >= 0; i-- {
		key := today.AddDate(0, 0, -i).Format(dateLayout)
		trend = append(trend, internal.DailyCount{Date: key, Count: int64(buckets[key])})
	}
	return trend
}

// StartOfDay returns midnight of now's calendar day in loc.
func StartOfDay(now time.Time, loc *time.Location) time.Time {
	t := now.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// trendStart is UTC midnight of the oldest day in the trend window.
func trendStart(now time.Time, days int) time.Time {
	t := now.UTC().AddDate(0, 0, -(days - 1))
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
