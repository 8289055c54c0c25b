package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/abdusco/linkdash/internal"
	"github.com/abdusco/linkdash/internal/metrics"
	"github.com/abdusco/linkdash/internal/repo"
	"github.com/abdusco/linkdash/internal/validation"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const (
	generatedCodeLength = 6
	maxCodeAttempts     = 5

	DefaultPageSize = 10
	MaxPageSize     = 100
	MaxBulkDelete   = 500
)

// reservedCodes collide with routes served next to the catch-all redirect.
var reservedCodes = map[string]bool{
	"api":       true,
	"auth":      true,
	"health":    true,
	"link":      true,
	"links":     true,
	"login":     true,
	"logout":    true,
	"metrics":   true,
	"register":  true,
	"static":    true,
	"expired":   true,
	"not-found": true,
}

// sortColumns whitelists sortBy values, keyed by their API and column names.
var sortColumns = map[string]string{
	"createdAt":       "created_at",
	"shortCode":       "short_code",
	"destinationUrl":  "destination_url",
	"title":           "title",
	"clickCount":      "click_count",
	"expiresAt":       "expires_at",
	"isActive":        "is_active",
	"created_at":      "created_at",
	"short_code":      "short_code",
	"destination_url": "destination_url",
	"click_count":     "click_count",
	"expires_at":      "expires_at",
	"is_active":       "is_active",
}

type LinkStore interface {
	Create(ctx context.Context, in repo.NewLink) (*internal.ShortLink, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	GetForOwner(ctx context.Context, id, ownerID string) (*internal.ShortLink, error)
	List(ctx context.Context, p repo.ListParams) ([]*internal.ShortLink, int64, error)
	Update(ctx context.Context, id, ownerID string, changes repo.LinkChanges) (*internal.ShortLink, error)
	Delete(ctx context.Context, id, ownerID string) error
	DeleteMany(ctx context.Context, ids []string, ownerID string) (int64, error)
}

type CreateInput struct {
	URL         string `json:"url" validate:"required,url,max=2048"`
	ShortCode   string `json:"shortCode" validate:"omitempty,shortcode"`
	Title       string `json:"title" validate:"max=200"`
	Description string `json:"description" validate:"max=1000"`
	ExpiresIn   *int   `json:"expiresIn" validate:"omitempty,min=0,max=3650"`
}

type ListInput struct {
	Page      int    `json:"page"`
	Limit     int    `json:"limit"`
	SortBy    string `json:"sortBy"`
	SortOrder string `json:"sortOrder" validate:"omitempty,oneof=asc desc ASC DESC"`
	Search    string `json:"search" validate:"max=200"`
	Filter    string `json:"filter" validate:"omitempty,oneof=all active inactive expired"`
}

type ListResult struct {
	Links      []*internal.ShortLink
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// UpdateInput carries a partial update. ExpiresInSet distinguishes an absent
// expiresIn from an explicit null; null and 0 both clear the expiry.
type UpdateInput struct {
	Title        *string `json:"title" validate:"omitempty,max=200"`
	Description  *string `json:"description" validate:"omitempty,max=1000"`
	IsActive     *bool   `json:"isActive"`
	ExpiresInSet bool    `json:"-"`
	ExpiresIn    *int    `json:"expiresIn" validate:"omitempty,min=0,max=3650"`
}

// Manager is the owner-scoped CRUD surface over short links.
type Manager struct {
	links   LinkStore
	baseURL string
	now     func() time.Time
}

func NewManager(links LinkStore, baseURL string) *Manager {
	return &Manager{
		links:   links,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// ShortURL is the public address of a code under the configured base URL.
func (m *Manager) ShortURL(code string) string {
	return m.baseURL + "/" + code
}

func (m *Manager) Create(ctx context.Context, ownerID string, in CreateInput) (*internal.ShortLink, error) {
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}
	if in.ShortCode != "" && reservedCodes[strings.ToLower(in.ShortCode)] {
		return nil, internal.Validation(fmt.Sprintf("shortCode %q is reserved", in.ShortCode))
	}

	code, err := m.pickCode(ctx, in.ShortCode)
	if err != nil {
		return nil, err
	}

	link, err := m.links.Create(ctx, repo.NewLink{
		ShortCode:      code,
		DestinationURL: in.URL,
		OwnerID:        ownerID,
		Title:          strings.TrimSpace(in.Title),
		Description:    strings.TrimSpace(in.Description),
		ExpiresAt:      expiryFrom(in.ExpiresIn, m.now()),
	})
	if errors.Is(err, internal.ErrShortCodeExists) {
		return nil, internal.Conflict(err)
	}
	if err != nil {
		return nil, internal.Upstream(err)
	}

	metrics.LinksCreated.Inc()
	return link, nil
}

func (m *Manager) pickCode(ctx context.Context, requested string) (string, error) {
	if requested != "" {
		exists, err := m.links.CodeExists(ctx, requested)
		if err != nil {
			return "", internal.Upstream(err)
		}
		if exists {
			return "", internal.Conflict(internal.ErrShortCodeExists)
		}
		return requested, nil
	}

	for range maxCodeAttempts {
		code := lo.RandomString(generatedCodeLength, lo.AlphanumericCharset)
		if reservedCodes[strings.ToLower(code)] {
			continue
		}
		exists, err := m.links.CodeExists(ctx, code)
		if err != nil {
			return "", internal.Upstream(err)
		}
		if !exists {
			return code, nil
		}
		log.Debug().Str("short_code", code).Msg("generated code collided, retrying")
	}
	return "", internal.Upstream(errors.New("could not generate a unique short code"))
}

func (m *Manager) List(ctx context.Context, ownerID string, in ListInput) (*ListResult, error) {
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}

	page := max(in.Page, 1)
	limit := in.Limit
	if limit < 1 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)
	// Offsets stay below MaxInt32 on every platform.
	page = min(page, math.MaxInt32/limit)

	column := "created_at"
	if in.SortBy != "" {
		var ok bool
		if column, ok = sortColumns[in.SortBy]; !ok {
			return nil, internal.Validation(fmt.Sprintf("sortBy %q is not a sortable column", in.SortBy))
		}
	}

	links, total, err := m.links.List(ctx, repo.ListParams{
		OwnerID:    ownerID,
		Search:     strings.TrimSpace(in.Search),
		Status:     lo.CoalesceOrEmpty(in.Filter, repo.StatusAll),
		SortColumn: column,
		Desc:       !strings.EqualFold(in.SortOrder, "asc"),
		Limit:      limit,
		Offset:     (page - 1) * limit,
		Now:        m.now(),
	})
	if err != nil {
		return nil, internal.Upstream(err)
	}

	return &ListResult{
		Links:      links,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

func (m *Manager) Get(ctx context.Context, ownerID, id string) (*internal.ShortLink, error) {
	link, err := m.links.GetForOwner(ctx, id, ownerID)
	if err != nil {
		return nil, storeError(err)
	}
	return link, nil
}

func (m *Manager) Update(ctx context.Context, ownerID, id string, in UpdateInput) (*internal.ShortLink, error) {
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}

	changes := repo.LinkChanges{
		Title:       in.Title,
		Description: in.Description,
		IsActive:    in.IsActive,
	}
	if in.ExpiresInSet {
		changes.SetExpiry = true
		changes.ExpiresAt = expiryFrom(in.ExpiresIn, m.now())
	}

	link, err := m.links.Update(ctx, id, ownerID, changes)
	if err != nil {
		return nil, storeError(err)
	}
	return link, nil
}

func (m *Manager) Delete(ctx context.Context, ownerID, id string) error {
	if err := m.links.Delete(ctx, id, ownerID); err != nil {
		return storeError(err)
	}
	metrics.LinksDeleted.Inc()
	return nil
}

// BulkDelete removes the caller's links among ids. Ids that are missing or
// owned by someone else are skipped and not counted.
func (m *Manager) BulkDelete(ctx context.Context, ownerID string, ids []string) (int64, error) {
	ids = lo.Uniq(lo.Compact(ids))
	if len(ids) == 0 {
		return 0, internal.Validation("ids must contain at least one id")
	}
	if len(ids) > MaxBulkDelete {
		return 0, internal.Validation(fmt.Sprintf("ids must contain at most %d ids", MaxBulkDelete))
	}

	n, err := m.links.DeleteMany(ctx, ids, ownerID)
	if err != nil {
		return 0, internal.Upstream(err)
	}
	metrics.LinksDeleted.Add(float64(n))
	return n, nil
}

// expiryFrom turns a relative expiry in days into an absolute time. Nil and
// zero mean no expiry.
func expiryFrom(days *int, now time.Time) *time.Time {
	if days == nil || *days <= 0 {
		return nil
	}
	t := now.AddDate(0, 0, *days)
	return &t
}

func storeError(err error) error {
	if errors.Is(err, internal.ErrLinkNotFound) {
		return internal.NotFound(err)
	}
	return internal.Upstream(err)
}
