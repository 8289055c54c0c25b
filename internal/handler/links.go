package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/abdusco/linkdash/internal"
	"github.com/abdusco/linkdash/internal/auth"
	"github.com/abdusco/linkdash/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/skip2/go-qrcode"
)

const (
	qrDefaultSize = 256
	qrMinSize     = 64
	qrMaxSize     = 1024
)

type LinkHandler struct {
	manager *service.Manager
	stats   *service.Aggregator
	now     func() time.Time
}

func NewLinkHandler(manager *service.Manager, stats *service.Aggregator) *LinkHandler {
	return &LinkHandler{
		manager: manager,
		stats:   stats,
		now:     time.Now,
	}
}

type LinkResponse struct {
	internal.ShortLink
	ShortURL  string `json:"shortUrl"`
	IsExpired bool   `json:"isExpired"`
}

type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

type ListLinksResponse struct {
	Links      []LinkResponse `json:"links"`
	Pagination Pagination     `json:"pagination"`
}

type BulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

type BulkDeleteResponse struct {
	DeletedCount int64 `json:"deletedCount"`
}

// UpdateLinkRequest keeps "expiresIn" absent apart from "expiresIn": null.
type UpdateLinkRequest struct {
	Title       *string     `json:"title"`
	Description *string     `json:"description"`
	IsActive    *bool       `json:"isActive"`
	ExpiresIn   optionalInt `json:"expiresIn"`
}

type optionalInt struct {
	Set   bool
	Value *int
}

func (o *optionalInt) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}

	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("expiresIn must be a whole number of days: %w", err)
	}
	o.Value = &v
	return nil
}

func (h *LinkHandler) toResponse(link *internal.ShortLink, now time.Time) LinkResponse {
	return LinkResponse{
		ShortLink: *link,
		ShortURL:  h.manager.ShortURL(link.ShortCode),
		IsExpired: link.IsExpired(now),
	}
}

func (h *LinkHandler) CreateLink(c echo.Context) error {
	ctx := c.Request().Context()

	var req service.CreateInput
	if err := c.Bind(&req); err != nil {
		return internal.Validation("invalid request body")
	}

	link, err := h.manager.Create(ctx, auth.UserID(c), req)
	if err != nil {
		return err
	}

	log.Info().Str("link_id", link.ID).Str("short_code", link.ShortCode).Msg("link created")
	return c.JSON(http.StatusCreated, h.toResponse(link, h.now()))
}

func (h *LinkHandler) ListLinks(c echo.Context) error {
	ctx := c.Request().Context()

	var in service.ListInput
	err := echo.QueryParamsBinder(c).
		Int("page", &in.Page).
		Int("limit", &in.Limit).
		String("sortBy", &in.SortBy).
		String("sortOrder", &in.SortOrder).
		String("search", &in.Search).
		String("filter", &in.Filter).
		BindError()
	if err != nil {
		return internal.Validation("page and limit must be integers")
	}

	result, err := h.manager.List(ctx, auth.UserID(c), in)
	if err != nil {
		return err
	}

	now := h.now()
	return c.JSON(http.StatusOK, ListLinksResponse{
		Links: lo.Map(result.Links, func(link *internal.ShortLink, _ int) LinkResponse {
			return h.toResponse(link, now)
		}),
		Pagination: Pagination{
			Total:      result.Total,
			Page:       result.Page,
			Limit:      result.Limit,
			TotalPages: result.TotalPages,
		},
	})
}

func (h *LinkHandler) GetLink(c echo.Context) error {
	link, err := h.manager.Get(c.Request().Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.toResponse(link, h.now()))
}

func (h *LinkHandler) UpdateLink(c echo.Context) error {
	ctx := c.Request().Context()

	var req UpdateLinkRequest
	if err := c.Bind(&req); err != nil {
		return internal.Validation("invalid request body")
	}

	link, err := h.manager.Update(ctx, auth.UserID(c), c.Param("id"), service.UpdateInput{
		Title:        req.Title,
		Description:  req.Description,
		IsActive:     req.IsActive,
		ExpiresInSet: req.ExpiresIn.Set,
		ExpiresIn:    req.ExpiresIn.Value,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.toResponse(link, h.now()))
}

func (h *LinkHandler) DeleteLink(c echo.Context) error {
	id := c.Param("id")
	if err := h.manager.Delete(c.Request().Context(), auth.UserID(c), id); err != nil {
		return err
	}

	log.Info().Str("link_id", id).Msg("link deleted")
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (h *LinkHandler) BulkDelete(c echo.Context) error {
	var req BulkDeleteRequest
	if err := c.Bind(&req); err != nil {
		return internal.Validation("invalid request body")
	}

	n, err := h.manager.BulkDelete(c.Request().Context(), auth.UserID(c), req.IDs)
	if err != nil {
		return err
	}

	log.Info().Int("requested", len(req.IDs)).Int64("deleted", n).Msg("links bulk deleted")
	return c.JSON(http.StatusOK, BulkDeleteResponse{DeletedCount: n})
}

func (h *LinkHandler) LinkStats(c echo.Context) error {
	stats, err := h.stats.LinkStats(c.Request().Context(), c.Param("id"), auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *LinkHandler) Summary(c echo.Context) error {
	summary, err := h.stats.Summary(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}

// QRCode renders the public short URL of an owned link as a PNG.
func (h *LinkHandler) QRCode(c echo.Context) error {
	size := qrDefaultSize
	if err := echo.QueryParamsBinder(c).Int("size", &size).BindError(); err != nil {
		return internal.Validation("size must be an integer")
	}
	if size < qrMinSize || size > qrMaxSize {
		return internal.Validation(fmt.Sprintf("size must be between %d and %d", qrMinSize, qrMaxSize))
	}

	link, err := h.manager.Get(c.Request().Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		return err
	}

	png, err := qrcode.Encode(h.manager.ShortURL(link.ShortCode), qrcode.Medium, size)
	if err != nil {
		return internal.Upstream(fmt.Errorf("encode qr code for %s: %w", link.ID, err))
	}

	c.Response().Header().Set("Cache-Control", "private, max-age=3600")
	return c.Blob(http.StatusOK, "image/png", png)
}
