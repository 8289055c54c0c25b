package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/abdusco/linkdash/internal"
	"github.com/abdusco/linkdash/internal/db"
	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const clicksTable = "click_events"

type clickRow struct {
	ID          string `db:"id"`
	ShortLinkID string `db:"short_link_id"`
	ClickedAt   Date   `db:"clicked_at"`
	IPAddress   string `db:"ip_address"`
	UserAgent   string `db:"user_agent"`
	Referer     string `db:"referer"`
}

var clickColumns = []any{"id", "short_link_id", "clicked_at", "ip_address", "user_agent", "referer"}

// ClickScope selects click events either for one link or for every link of
// an owner. Since is inclusive; the zero value means no lower bound.
type ClickScope struct {
	LinkID  string
	OwnerID string
	Since   time.Time
}

type ClicksRepo struct {
	db *db.DB
}

func NewClicksRepo(d *db.DB) *ClicksRepo {
	return &ClicksRepo{db: d}
}

// Create appends a click event. Events are never updated afterwards.
func (r *ClicksRepo) Create(ctx context.Context, ev internal.ClickEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	log.Debug().Str("short_link_id", ev.ShortLinkID).Str("ip", ev.IPAddress).Msg("recording click")

	query := r.db.Goqu().Insert(clicksTable).Rows(goqu.Record{
		"id":            ev.ID,
		"short_link_id": ev.ShortLinkID,
		"clicked_at":    NewDate(ev.ClickedAt),
		"ip_address":    ev.IPAddress,
		"user_agent":    ev.UserAgent,
		"referer":       ev.Referer,
	})

	if _, err := query.Executor().ExecContext(ctx); err != nil {
		return fmt.Errorf("insert click event: %w", err)
	}
	return nil
}

func (r *ClicksRepo) Count(ctx context.Context, scope ClickScope) (int64, error) {
	n, err := r.scoped(scope).CountContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("count click events: %w", err)
	}
	return n, nil
}

// ClickTimes returns the timestamps of the scoped events, oldest first.
func (r *ClicksRepo) ClickTimes(ctx context.Context, scope ClickScope) ([]time.Time, error) {
	var dates []Date
	err := r.scoped(scope).
		Select("clicked_at").
		Order(goqu.C("clicked_at").Asc()).
		ScanValsContext(ctx, &dates)
	if err != nil {
		return nil, fmt.Errorf("list click times: %w", err)
	}

	times := make([]time.Time, len(dates))
	for i, d := range dates {
		times[i] = d.Time()
	}
	return times, nil
}

// Recent returns up to limit events of the scope, newest first.
func (r *ClicksRepo) Recent(ctx context.Context, scope ClickScope, limit int) ([]internal.ClickEvent, error) {
	var rows []clickRow
	err := r.scoped(scope).
		Select(clickColumns...).
		Order(goqu.C("clicked_at").Desc(), goqu.C("id").Desc()).
		Limit(uint(limit)).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("list recent click events: %w", err)
	}

	events := make([]internal.ClickEvent, len(rows))
	for i := range rows {
		events[i] = rows[i].toDomain()
	}
	return events, nil
}

func (r *ClicksRepo) scoped(scope ClickScope) *goqu.SelectDataset {
	executor := r.db.Goqu()

	var where []exp.Expression
	if scope.LinkID != "" {
		where = append(where, goqu.C("short_link_id").Eq(scope.LinkID))
	}
	if scope.OwnerID != "" {
		owned := executor.From(linksTable).Select("id").Where(goqu.C("owner_id").Eq(scope.OwnerID))
		where = append(where, goqu.C("short_link_id").In(owned))
	}
	if !scope.Since.IsZero() {
		where = append(where, goqu.C("clicked_at").Gte(NewDate(scope.Since)))
	}
	return executor.From(clicksTable).Where(where...)
}

func (r *clickRow) toDomain() internal.ClickEvent {
	return internal.ClickEvent{
		ID:          r.ID,
		ShortLinkID: r.ShortLinkID,
		ClickedAt:   r.ClickedAt.Time(),
		IPAddress:   r.IPAddress,
		UserAgent:   r.UserAgent,
		Referer:     r.Referer,
	}
}
