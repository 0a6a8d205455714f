// Package model defines the domain types shared by the sports digest pipeline.
package model

import (
	"slices"
	"time"
)

// Sport is the machine name of a sport category, e.g. "soccer".
type Sport string

const (
	Soccer     Sport = "soccer"
	Rugby      Sport = "rugby"
	Formula1   Sport = "formula1"
	Boxing     Sport = "boxing"
	Tennis     Sport = "tennis"
	Golf       Sport = "golf"
	Darts      Sport = "darts"
	Chess      Sport = "chess"
	Basketball Sport = "basketball"

	// General is assigned to trending articles that match no sport keyword.
	General Sport = "general"
)

// SportCategory is an entry of the sport catalog.
type SportCategory struct {
	Name        Sport  `json:"name"`
	DisplayName string `json:"display_name"`
	Icon        string `json:"icon"`
	Active      bool   `json:"active"`
}

// DefaultCatalog is seeded into storage on migration, in display order.
var DefaultCatalog = []SportCategory{
	{Name: Soccer, DisplayName: "Soccer", Icon: "⚽", Active: true},
	{Name: Rugby, DisplayName: "Rugby", Icon: "🏉", Active: true},
	{Name: Formula1, DisplayName: "Formula 1", Icon: "🏎️", Active: true},
	{Name: Boxing, DisplayName: "Boxing", Icon: "🥊", Active: true},
	{Name: Tennis, DisplayName: "Tennis", Icon: "🎾", Active: true},
	{Name: Golf, DisplayName: "Golf", Icon: "⛳", Active: true},
	{Name: Darts, DisplayName: "Darts", Icon: "🎯", Active: true},
	{Name: Chess, DisplayName: "Chess", Icon: "♟️", Active: true},
	{Name: Basketball, DisplayName: "Basketball", Icon: "🏀", Active: false},
}

// ArticleKind classifies an article.
type ArticleKind string

const (
	KindNews     ArticleKind = "news"
	KindAnalysis ArticleKind = "analysis"
	KindResult   ArticleKind = "result"
)

// Field limits enforced by storage. Adapters truncate to these before saving.
const (
	MaxTitleLen       = 255
	MaxSummaryLen     = 500
	MaxSourceNameLen  = 100
	MaxURLLen         = 500
	MaxTeamLen        = 100
	MaxVenueLen       = 200
	MaxCompetitionLen = 100
	MaxStatusLen      = 50
)

// Article is a stored news item. Identity is (Title, SourceURL).
type Article struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	Summary     string      `json:"summary"`
	Sport       Sport       `json:"sport"`
	Kind        ArticleKind `json:"kind"`
	SourceURL   string      `json:"source_url"`
	SourceName  string      `json:"source_name"`
	ImageURL    string      `json:"image_url,omitempty"`
	PublishedAt time.Time   `json:"published_at"`
	IngestedAt  time.Time   `json:"ingested_at"`
	Featured    bool        `json:"is_featured"`
	Premium     bool        `json:"is_premium"`
}

// FixtureStatus is the closed set of match states.
type FixtureStatus string

const (
	StatusScheduled FixtureStatus = "scheduled"
	StatusLive      FixtureStatus = "live"
	StatusCompleted FixtureStatus = "completed"
	StatusPostponed FixtureStatus = "postponed"
	StatusCancelled FixtureStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s FixtureStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusLive, StatusCompleted, StatusPostponed, StatusCancelled:
		return true
	}
	return false
}

// Fixture is a match or race. Identity is (Sport, HomeTeam, AwayTeam, MatchDate).
type Fixture struct {
	ID          string        `json:"id"`
	Sport       Sport         `json:"sport"`
	HomeTeam    string        `json:"home_team"`
	AwayTeam    string        `json:"away_team"`
	MatchDate   time.Time     `json:"match_date"`
	Venue       string        `json:"venue"`
	Competition string        `json:"competition"`
	Status      FixtureStatus `json:"status"`
	HomeScore   *int          `json:"home_score,omitempty"`
	AwayScore   *int          `json:"away_score,omitempty"`
	SourceURL   string        `json:"source_url,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// SubscriberStatus is the closed set of subscriber states.
type SubscriberStatus string

const (
	SubscriberActive       SubscriberStatus = "active"
	SubscriberInactive     SubscriberStatus = "inactive"
	SubscriberUnsubscribed SubscriberStatus = "unsubscribed"
)

// Preferences is the subscriber's preference document.
type Preferences struct {
	Sports []Sport `json:"sports"`
}

// Wants reports whether the preferences include sport. No sports means all.
func (p Preferences) Wants(sport Sport) bool {
	return len(p.Sports) == 0 || slices.Contains(p.Sports, sport)
}

// Subscriber is a persisted newsletter recipient.
type Subscriber struct {
	ID           string           `json:"id"`
	Email        string           `json:"email"`
	Name         string           `json:"name"`
	Status       SubscriberStatus `json:"status"`
	Preferences  Preferences      `json:"preferences"`
	Token        string           `json:"-"`
	SubscribedAt time.Time        `json:"subscribed_at"`
}

// NewsletterStatus is a linear state machine: draft → scheduled → sent, with failed as the exit.
type NewsletterStatus string

const (
	NewsletterDraft     NewsletterStatus = "draft"
	NewsletterScheduled NewsletterStatus = "scheduled"
	NewsletterSent      NewsletterStatus = "sent"
	NewsletterFailed    NewsletterStatus = "failed"
)

// CanTransition reports whether s → to is allowed.
func (s NewsletterStatus) CanTransition(to NewsletterStatus) bool {
	switch s {
	case NewsletterDraft:
		return to == NewsletterScheduled || to == NewsletterFailed
	case NewsletterScheduled:
		return to == NewsletterSent || to == NewsletterFailed
	}
	return false
}

// EditionLayout is the storage format of Newsletter.EditionDate.
const EditionLayout = "2006-01-02"

// Newsletter is one compiled edition.
type Newsletter struct {
	ID                string           `json:"id"`
	Title             string           `json:"title"`
	EditionDate       time.Time        `json:"edition_date"`
	Status            NewsletterStatus `json:"status"`
	FeaturedArticleID string           `json:"featured_article_id,omitempty"`
	ArticleIDs        []string         `json:"article_ids"`
	FixtureIDs        []string         `json:"fixture_ids"`
	Content           string           `json:"content"`      // markdown snapshot
	HTMLContent       string           `json:"html_content"` // online-view snapshot
	Metadata          Metadata         `json:"metadata"`
	CreatedAt         time.Time        `json:"created_at"`
	SentAt            *time.Time       `json:"sent_at,omitempty"`
	RecipientCount    int              `json:"recipient_count"`
}

// Metadata records edition details alongside the newsletter.
type Metadata struct {
	Edition       string   `json:"edition"` // "Week N, YYYY"
	TotalArticles int      `json:"total_articles"`
	TotalFixtures int      `json:"total_fixtures"`
	Sports        []Sport  `json:"sports_covered"`
	GeneratedAt   string   `json:"generated_at"`
	Errors        []string `json:"errors,omitempty"`
}

// DeliveryStatus is the closed set of delivery states.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliveryBounced DeliveryStatus = "bounced"
)

// DeliveryRecord tracks one newsletter sent to one subscriber.
type DeliveryRecord struct {
	ID            string         `json:"id"`
	NewsletterID  string         `json:"newsletter_id"`
	SubscriberID  string         `json:"subscriber_id"`
	Status        DeliveryStatus `json:"status"`
	SentAt        *time.Time     `json:"sent_at,omitempty"`
	Error         string         `json:"error_message,omitempty"`
	OpenedAt      *time.Time     `json:"opened_at,omitempty"`
	ClickedLinks  []string       `json:"clicked_links"`
	ClickCount    int            `json:"click_count"`
	LastClickedAt *time.Time     `json:"last_clicked_at,omitempty"`
}

// DeliveryStats aggregates the delivery records of one newsletter.
type DeliveryStats struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Bounced int `json:"bounced"`
	Pending int `json:"pending"`
	Opened  int `json:"opened"`
	Clicked int `json:"clicked"`
}

// NewsletterAnalytics holds the computed engagement rates of a newsletter, in percent.
type NewsletterAnalytics struct {
	NewsletterID string    `json:"newsletter_id"`
	Title        string    `json:"title,omitempty"`
	TotalSent    int       `json:"total_sent"`
	Delivered    int       `json:"delivered"`
	Opened       int       `json:"opened"`
	Clicked      int       `json:"clicked"`
	Failed       int       `json:"failed"`
	Bounced      int       `json:"bounced"`
	DeliveryRate float64   `json:"delivery_rate"`
	OpenRate     float64   `json:"open_rate"`
	ClickRate    float64   `json:"click_rate"`
	BounceRate   float64   `json:"bounce_rate"`
	UpdatedAt    time.Time `json:"updated_at"`
}
