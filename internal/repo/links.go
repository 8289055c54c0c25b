package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/abdusco/linkdash/internal"
	"github.com/abdusco/linkdash/internal/db"
	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const linksTable = "short_links"

// Status filters accepted by List.
const (
	StatusAll      = "all"
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusExpired  = "expired"
)

type linkRow struct {
	ID             string `db:"id"`
	ShortCode      string `db:"short_code"`
	DestinationURL string `db:"destination_url"`
	OwnerID        string `db:"owner_id"`
	Title          string `db:"title"`
	Description    string `db:"description"`
	IsActive       bool   `db:"is_active"`
	ExpiresAt      *Date  `db:"expires_at"`
	ClickCount     int64  `db:"click_count"`
	CreatedAt      Date   `db:"created_at"`
}

var linkColumns = []any{
	"id", "short_code", "destination_url", "owner_id", "title",
	"description", "is_active", "expires_at", "click_count", "created_at",
}

type NewLink struct {
	ShortCode      string
	DestinationURL string
	OwnerID        string
	Title          string
	Description    string
	ExpiresAt      *time.Time
}

// LinkChanges holds the mutable fields of a link. Nil fields are left
// untouched; SetExpiry with a nil ExpiresAt clears the expiry.
type LinkChanges struct {
	Title       *string
	Description *string
	IsActive    *bool
	SetExpiry   bool
	ExpiresAt   *time.Time
}

func (c LinkChanges) record() goqu.Record {
	rec := goqu.Record{}
	if c.Title != nil {
		rec["title"] = *c.Title
	}
	if c.Description != nil {
		rec["description"] = *c.Description
	}
	if c.IsActive != nil {
		rec["is_active"] = *c.IsActive
	}
	if c.SetExpiry {
		rec["expires_at"] = nullable(c.ExpiresAt)
	}
	return rec
}

type ListParams struct {
	OwnerID    string
	Search     string
	Status     string
	SortColumn string
	Desc       bool
	Limit      int
	Offset     int
	Now        time.Time
}

// LinkCounts are the owner-wide link tallies used by the summary stats.
type LinkCounts struct {
	Total    int64
	Active   int64
	Inactive int64
	Expired  int64
	Today    int64
}

type LinksRepo struct {
	db *db.DB
}

func NewLinksRepo(d *db.DB) *LinksRepo {
	return &LinksRepo{db: d}
}

func (r *LinksRepo) Create(ctx context.Context, in NewLink) (*internal.ShortLink, error) {
	executor := r.db.Goqu()

	log.Debug().Str("short_code", in.ShortCode).Str("owner_id", in.OwnerID).Msg("creating link")

	row := linkRow{
		ID:             uuid.NewString(),
		ShortCode:      in.ShortCode,
		DestinationURL: in.DestinationURL,
		OwnerID:        in.OwnerID,
		Title:          in.Title,
		Description:    in.Description,
		IsActive:       true,
		CreatedAt:      NewDate(time.Now().Truncate(time.Microsecond)),
	}
	if in.ExpiresAt != nil {
		expiresAt := NewDate(in.ExpiresAt.Truncate(time.Microsecond))
		row.ExpiresAt = &expiresAt
	}

	query := executor.Insert(linksTable).Rows(goqu.Record{
		"id":              row.ID,
		"short_code":      row.ShortCode,
		"destination_url": row.DestinationURL,
		"owner_id":        row.OwnerID,
		"title":           row.Title,
		"description":     row.Description,
		"is_active":       row.IsActive,
		"expires_at":      nullable(timePtr(row.ExpiresAt)),
		"click_count":     0,
		"created_at":      row.CreatedAt,
	})

	if _, err := query.Executor().ExecContext(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, internal.ErrShortCodeExists
		}
		log.Error().Err(err).Str("short_code", in.ShortCode).Msg("failed to create link")
		return nil, fmt.Errorf("insert link: %w", err)
	}

	link := row.toDomain()
	log.Info().Str("id", link.ID).Str("short_code", link.ShortCode).Msg("link created successfully")

	return link, nil
}

// GetByCode is the unauthenticated lookup used for redirection. The match is
// exact and case-sensitive.
func (r *LinksRepo) GetByCode(ctx context.Context, code string) (*internal.ShortLink, error) {
	log.Debug().Str("short_code", code).Msg("fetching link by code")
	return r.getOne(ctx, goqu.Ex{"short_code": code})
}

// GetForOwner returns ErrLinkNotFound for links that exist but belong to
// someone else.
func (r *LinksRepo) GetForOwner(ctx context.Context, id, ownerID string) (*internal.ShortLink, error) {
	return r.getOne(ctx, goqu.Ex{"id": id, "owner_id": ownerID})
}

func (r *LinksRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	n, err := r.db.Goqu().From(linksTable).Where(goqu.Ex{"short_code": code}).CountContext(ctx)
	if err != nil {
		return false, fmt.Errorf("count links by code: %w", err)
	}
	return n > 0, nil
}

func (r *LinksRepo) getOne(ctx context.Context, where goqu.Ex) (*internal.ShortLink, error) {
	query := r.db.Goqu().From(linksTable).Select(linkColumns...).Where(where)

	var row linkRow
	found, err := query.ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("fetch link: %w", err)
	}
	if !found {
		return nil, internal.ErrLinkNotFound
	}
	return row.toDomain(), nil
}

func (r *LinksRepo) List(ctx context.Context, p ListParams) ([]*internal.ShortLink, int64, error) {
	base := r.db.Goqu().From(linksTable).Where(r.listFilter(p)...)

	total, err := base.CountContext(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("count links: %w", err)
	}

	order := goqu.C(p.SortColumn).Asc()
	if p.Desc {
		order = goqu.C(p.SortColumn).Desc()
	}

	query := base.Select(linkColumns...).
		Order(order, goqu.C("id").Asc()).
		Limit(uint(p.Limit)).
		Offset(uint(p.Offset))

	var rows []linkRow
	if err := query.ScanStructsContext(ctx, &rows); err != nil {
		return nil, 0, fmt.Errorf("list links: %w", err)
	}

	links := make([]*internal.ShortLink, len(rows))
	for i := range rows {
		links[i] = rows[i].toDomain()
	}
	return links, total, nil
}

func (r *LinksRepo) listFilter(p ListParams) []exp.Expression {
	where := []exp.Expression{goqu.C("owner_id").Eq(p.OwnerID)}

	if p.Search != "" {
		pattern := "%" + likeEscaper.Replace(p.Search) + "%"
		where = append(where, goqu.Or(
			containsFold("short_code", pattern),
			containsFold("destination_url", pattern),
			containsFold("title", pattern),
		))
	}

	now := NewDate(p.Now)
	switch p.Status {
	case StatusActive:
		where = append(where,
			goqu.C("is_active").Eq(true),
			goqu.Or(goqu.C("expires_at").IsNull(), goqu.C("expires_at").Gte(now)),
		)
	case StatusInactive:
		where = append(where, goqu.C("is_active").Eq(false))
	case StatusExpired:
		where = append(where, goqu.C("expires_at").Lt(now))
	}
	return where
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsFold matches pattern case-insensitively on both SQLite and Postgres.
// Wildcards in pattern must already be escaped with a backslash.
func containsFold(column, pattern string) exp.Expression {
	return goqu.L(`LOWER(?) LIKE LOWER(?) ESCAPE '\'`, goqu.C(column), pattern)
}

// Update applies changes to an owned link. It returns ErrLinkNotFound when no
// owned row matched.
func (r *LinksRepo) Update(ctx context.Context, id, ownerID string, changes LinkChanges) (*internal.ShortLink, error) {
	rec := changes.record()
	if len(rec) > 0 {
		res, err := r.db.Goqu().Update(linksTable).
			Set(rec).
			Where(goqu.Ex{"id": id, "owner_id": ownerID}).
			Executor().ExecContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("update link: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil, internal.ErrLinkNotFound
		}
		log.Info().Str("id", id).Msg("link updated")
	}
	return r.GetForOwner(ctx, id, ownerID)
}

func (r *LinksRepo) Delete(ctx context.Context, id, ownerID string) error {
	n, err := r.DeleteMany(ctx, []string{id}, ownerID)
	if err != nil {
		return err
	}
	if n == 0 {
		return internal.ErrLinkNotFound
	}
	return nil
}

// DeleteMany removes the owned links among ids and reports how many rows went.
// Their click events are removed by the foreign key cascade.
func (r *LinksRepo) DeleteMany(ctx context.Context, ids []string, ownerID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := r.db.Goqu().Delete(linksTable).
		Where(goqu.Ex{"id": ids, "owner_id": ownerID}).
		Executor().ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete links: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete links: %w", err)
	}

	log.Info().Int64("deleted", n).Int("requested", len(ids)).Str("owner_id", ownerID).Msg("links deleted")
	return n, nil
}

// IncrementClickCount bumps the denormalized counter in place.
func (r *LinksRepo) IncrementClickCount(ctx context.Context, id string) error {
	res, err := r.db.Goqu().Update(linksTable).
		Set(goqu.Record{"click_count": goqu.L("click_count + 1")}).
		Where(goqu.Ex{"id": id}).
		Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("increment click count: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return internal.ErrLinkNotFound
	}
	return nil
}

func (r *LinksRepo) CountForOwner(ctx context.Context, ownerID string, now, dayStart time.Time) (LinkCounts, error) {
	owned := r.db.Goqu().From(linksTable).Where(goqu.C("owner_id").Eq(ownerID))
	nowDate := NewDate(now)

	var counts LinkCounts
	queries := []struct {
		dst   *int64
		where []exp.Expression
	}{
		{&counts.Total, nil},
		{&counts.Active, []exp.Expression{
			goqu.C("is_active").Eq(true),
			goqu.Or(goqu.C("expires_at").IsNull(), goqu.C("expires_at").Gte(nowDate)),
		}},
		{&counts.Inactive, []exp.Expression{goqu.C("is_active").Eq(false)}},
		{&counts.Expired, []exp.Expression{goqu.C("expires_at").Lt(nowDate)}},
		{&counts.Today, []exp.Expression{goqu.C("created_at").Gte(NewDate(dayStart))}},
	}

	for _, q := range queries {
		n, err := owned.Where(q.where...).CountContext(ctx)
		if err != nil {
			return LinkCounts{}, fmt.Errorf("count owner links: %w", err)
		}
		*q.dst = n
	}
	return counts, nil
}

// SumClickCount totals the denormalized counters of the owner's links.
func (r *LinksRepo) SumClickCount(ctx context.Context, ownerID string) (int64, error) {
	var total int64
	_, err := r.db.Goqu().From(linksTable).
		Select(goqu.COALESCE(goqu.SUM("click_count"), 0)).
		Where(goqu.Ex{"owner_id": ownerID}).
		ScanValContext(ctx, &total)
	if err != nil {
		return 0, fmt.Errorf("sum click count: %w", err)
	}
	return total, nil
}

func (r *linkRow) toDomain() *internal.ShortLink {
	return &internal.ShortLink{
		ID:             r.ID,
		ShortCode:      r.ShortCode,
		DestinationURL: r.DestinationURL,
		OwnerID:        r.OwnerID,
		Title:          r.Title,
		Description:    r.Description,
		IsActive:       r.IsActive,
		ExpiresAt:      timePtr(r.ExpiresAt),
		ClickCount:     r.ClickCount,
		CreatedAt:      r.CreatedAt.Time(),
	}
}
