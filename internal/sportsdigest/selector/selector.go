// Package selector builds the ranked content set of a digest edition.
package selector

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/store"
)

// Store is the read side the selector needs.
type Store interface {
	Catalog(ctx context.Context) ([]model.SportCategory, error)
	QueryArticles(ctx context.Context, filter store.ArticleFilter) ([]model.Article, error)
	QueryFixtures(ctx context.Context, filter store.FixtureFilter) ([]model.Fixture, error)
}

// Limits caps every subset of a Set.
type Limits struct {
	ArticleWindowDays int `yaml:"article_window_days" validate:"gte=1"`
	FixtureWindowDays int `yaml:"fixture_window_days" validate:"gte=1"`
	Articles          int `yaml:"articles" validate:"gte=1"`
	Fixtures          int `yaml:"fixtures" validate:"gte=1"`
	PerSport          int `yaml:"per_sport" validate:"gte=1"`
	Featured          int `yaml:"featured" validate:"gte=1"`
	Premium           int `yaml:"premium" validate:"gte=1"`
	TopStories        int `yaml:"top_stories" validate:"gte=1"`
	BigMatches        int `yaml:"big_matches" validate:"gte=1"`
}

// DefaultLimits returns the stock selection policy.
func DefaultLimits() Limits {
	return Limits{
		ArticleWindowDays: 7,
		FixtureWindowDays: 14,
		Articles:          20,
		Fixtures:          20,
		PerSport:          5,
		Featured:          5,
		Premium:           10,
		TopStories:        3,
		BigMatches:        5,
	}
}

const highlightWindow = 7 * 24 * time.Hour

// Set is the selected content of one edition.
type Set struct {
	Articles        []model.Article                 `json:"articles"`
	ArticlesBySport map[model.Sport][]model.Article `json:"articles_by_sport"`
	Fixtures        []model.Fixture                 `json:"fixtures"`
	FixturesBySport map[model.Sport][]model.Fixture `json:"fixtures_by_sport"`
	Featured        []model.Article                 `json:"featured"`
	Premium         []model.Article                 `json:"premium"`
	TopStories      []model.Article                 `json:"top_stories"`
	BigMatches      []model.Fixture                 `json:"big_matches"`
	GeneratedAt     time.Time                       `json:"generated_at"`

	catalog      []model.SportCategory
	limits       Limits
	poolArticles []model.Article
	poolFixtures []model.Fixture
}

// Empty reports whether the set has no articles and no fixtures.
func (s *Set) Empty() bool {
	return len(s.poolArticles) == 0 && len(s.poolFixtures) == 0
}

// Sports returns the catalog categories that have content, in catalog order.
func (s *Set) Sports() []model.SportCategory {
	var out []model.SportCategory
	for _, c := range s.catalog {
		if len(s.ArticlesBySport[c.Name]) > 0 || len(s.FixturesBySport[c.Name]) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// Category returns the catalog entry for sport, or a bare one.
func (s *Set) Category(sport model.Sport) model.SportCategory {
	for _, c := range s.catalog {
		if c.Name == sport {
			return c
		}
	}
	return model.SportCategory{Name: sport, DisplayName: string(sport)}
}

// ArticleIDs is the deduplicated union of every article subset, in ranked order.
func (s *Set) ArticleIDs() []string {
	var all []model.Article
	all = append(all, s.TopStories...)
	all = append(all, s.Featured...)
	all = append(all, s.Premium...)
	all = append(all, s.Articles...)
	for _, c := range s.catalog {
		all = append(all, s.ArticlesBySport[c.Name]...)
	}
	slices.SortStableFunc(all, CompareArticles)
	return uniqueIDs(len(all), func(i int) string { return all[i].ID })
}

// FixtureIDs is the deduplicated union of every fixture subset, soonest first.
func (s *Set) FixtureIDs() []string {
	var all []model.Fixture
	all = append(all, s.BigMatches...)
	all = append(all, s.Fixtures...)
	for _, c := range s.catalog {
		all = append(all, s.FixturesBySport[c.Name]...)
	}
	slices.SortStableFunc(all, CompareFixtures)
	return uniqueIDs(len(all), func(i int) string { return all[i].ID })
}

// FeaturedArticle is the lead story: the first top story, else the first
// featured article, else the first article.
func (s *Set) FeaturedArticle() (model.Article, bool) {
	for _, list := range [][]model.Article{s.TopStories, s.Featured, s.Articles} {
		if len(list) > 0 {
			return list[0], true
		}
	}
	return model.Article{}, false
}

func uniqueIDs(n int, id func(i int) string) []string {
	seen := make(map[string]bool, n)
	var out []string
	for i := 0; i < n; i++ {
		if v := id(i); !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// CompareArticles is the single ranking order: premium first, then featured,
// then newest, then id.
func CompareArticles(a, b model.Article) int {
	if a.Premium != b.Premium {
		if a.Premium {
			return -1
		}
		return 1
	}
	if a.Featured != b.Featured {
		if a.Featured {
			return -1
		}
		return 1
	}
	if c := b.PublishedAt.Compare(a.PublishedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func compareNewest(a, b model.Article) int {
	if c := b.PublishedAt.Compare(a.PublishedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// CompareFixtures orders by kick-off, then id.
func CompareFixtures(a, b model.Fixture) int {
	if c := a.MatchDate.Compare(b.MatchDate); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Selector queries the store for edition content.
type Selector struct {
	store  Store
	limits Limits
	now    func() time.Time
}

// New creates a selector. Zero limits fall back to DefaultLimits.
func New(st Store, limits Limits) *Selector {
	if limits == (Limits{}) {
		limits = DefaultLimits()
	}
	return &Selector{store: st, limits: limits, now: time.Now}
}

// Select builds the set from news articles published in the last windowDays
// and scheduled or postponed fixtures in the fixture window. Zero arguments
// use the configured defaults.
func (s *Selector) Select(ctx context.Context, windowDays, limitPerSport int) (*Set, error) {
	limits := s.limits
	if windowDays > 0 {
		limits.ArticleWindowDays = windowDays
	}
	if limitPerSport > 0 {
		limits.PerSport = limitPerSport
	}
	now := s.now().UTC()

	catalog, err := s.store.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	articles, err := s.store.QueryArticles(ctx, store.ArticleFilter{
		Kind:  model.KindNews,
		Since: now.AddDate(0, 0, -limits.ArticleWindowDays),
		Until: now,
		Order: store.OrderRanked,
	})
	if err != nil {
		return nil, fmt.Errorf("select articles: %w", err)
	}
	fixtures, err := s.store.QueryFixtures(ctx, store.FixtureFilter{
		Statuses: []model.FixtureStatus{model.StatusScheduled, model.StatusPostponed},
		From:     now,
		To:       now.AddDate(0, 0, limits.FixtureWindowDays),
	})
	if err != nil {
		return nil, fmt.Errorf("select fixtures: %w", err)
	}
	return derive(catalog, limits, articles, fixtures, now), nil
}

// FromContent rebuilds a set from already chosen content, typically the
// stored associations of a newsletter.
func (s *Selector) FromContent(ctx context.Context, articles []model.Article, fixtures []model.Fixture) (*Set, error) {
	catalog, err := s.store.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return derive(catalog, s.limits, articles, fixtures, s.now().UTC()), nil
}

// Personalize filters set down to the sports in prefs and re-derives every
// subset. Empty preferences return an equivalent set.
func Personalize(set *Set, prefs model.Preferences, now time.Time) *Set {
	var articles []model.Article
	for _, a := range set.poolArticles {
		if prefs.Wants(a.Sport) {
			articles = append(articles, a)
		}
	}
	var fixtures []model.Fixture
	for _, f := range set.poolFixtures {
		if prefs.Wants(f.Sport) {
			fixtures = append(fixtures, f)
		}
	}
	return derive(set.catalog, set.limits, articles, fixtures, now)
}

func derive(catalog []model.SportCategory, limits Limits, articles []model.Article, fixtures []model.Fixture, now time.Time) *Set {
	articles = slices.Clone(articles)
	fixtures = slices.Clone(fixtures)
	slices.SortStableFunc(articles, CompareArticles)
	slices.SortStableFunc(fixtures, CompareFixtures)

	set := &Set{
		ArticlesBySport: make(map[model.Sport][]model.Article),
		FixturesBySport: make(map[model.Sport][]model.Fixture),
		GeneratedAt:     now,
		catalog:         catalog,
		limits:          limits,
		poolArticles:    articles,
		poolFixtures:    fixtures,
	}

	set.Articles = capped(articles, limits.Articles)
	set.Fixtures = capped(fixtures, limits.Fixtures)
	for _, a := range articles {
		if len(set.ArticlesBySport[a.Sport]) < limits.PerSport {
			set.ArticlesBySport[a.Sport] = append(set.ArticlesBySport[a.Sport], a)
		}
	}
	for _, f := range fixtures {
		if len(set.FixturesBySport[f.Sport]) < limits.PerSport {
			set.FixturesBySport[f.Sport] = append(set.FixturesBySport[f.Sport], f)
		}
	}

	var top []model.Article
	for _, a := range articles {
		if a.Featured && len(set.Featured) < limits.Featured {
			set.Featured = append(set.Featured, a)
		}
		if a.Premium && len(set.Premium) < limits.Premium {
			set.Premium = append(set.Premium, a)
		}
		if a.Premium && !a.PublishedAt.Before(now.Add(-highlightWindow)) {
			top = append(top, a)
		}
	}
	slices.SortStableFunc(top, compareNewest)
	set.TopStories = capped(top, limits.TopStories)

	for _, f := range fixtures {
		if len(set.BigMatches) >= limits.BigMatches {
			break
		}
		if f.Status == model.StatusScheduled && !f.MatchDate.Before(now) && !f.MatchDate.After(now.Add(highlightWindow)) {
			set.BigMatches = append(set.BigMatches, f)
		}
	}
	return set
}

func capped[T any](list []T, n int) []T {
	if n > 0 && len(list) > n {
		return slices.Clone(list[:n])
	}
	return slices.Clone(list)
}
