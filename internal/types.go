package internal

import "time"

type ShortLink struct {
	ID             string     `json:"id"`
	ShortCode      string     `json:"shortCode"`
	DestinationURL string     `json:"destinationUrl"`
	OwnerID        string     `json:"ownerId"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	IsActive       bool       `json:"isActive"`
	ExpiresAt      *time.Time `json:"expiresAt"`
	ClickCount     int64      `json:"clickCount"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// IsExpired reports whether the link has an expiry strictly before now.
func (l *ShortLink) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

type ClickEvent struct {
	ID          string    `json:"id"`
	ShortLinkID string    `json:"shortLinkId"`
	ClickedAt   time.Time `json:"clickedAt"`
	IPAddress   string    `json:"ipAddress"`
	UserAgent   string    `json:"userAgent"`
	Referer     string    `json:"referer"`
}

// ClickMeta is the request metadata captured on every resolution.
type ClickMeta struct {
	ForwardedFor string
	RealIP       string
	UserAgent    string
	Referer      string
}

type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type LinkStats struct {
	TotalClicks int64        `json:"totalClicks"`
	TodayClicks int64        `json:"todayClicks"`
	WeekClicks  int64        `json:"weekClicks"`
	Last7Days   []DailyCount `json:"last7Days"`
	RecentLogs  []ClickEvent `json:"recentLogs"`
}

type SummaryStats struct {
	TotalLinks    int64 `json:"totalLinks"`
	ActiveLinks   int64 `json:"activeLinks"`
	InactiveLinks int64 `json:"inactiveLinks"`
	ExpiredLinks  int64 `json:"expiredLinks"`
	TodayLinks    int64 `json:"todayLinks"`
	TotalClicks   int64 `json:"totalClicks"`
	TodayClicks   int64 `json:"todayClicks"`
	WeekClicks    int64 `json:"weekClicks"`
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}
