// Package fetcher fans fetch work out over the news and fixture adapters and
// saves what they return.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/apiclient"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/sources"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/store"
	"github.com/RobinCoderZhao/sports-digest/pkg/metrics"
)

// NewsSearcher searches the news API.
type NewsSearcher interface {
	Search(ctx context.Context, query string) ([]model.Article, error)
	Ping(ctx context.Context) error
}

// Store is the persistence the orchestrator needs.
type Store interface {
	Catalog(ctx context.Context) ([]model.SportCategory, error)
	UpsertArticle(ctx context.Context, a *model.Article) (store.Outcome, error)
	UpsertFixture(ctx context.Context, f *model.Fixture) (store.Outcome, error)
	RecentActivity(ctx context.Context) (*store.Activity, error)
}

// Config tunes a fetch run.
type Config struct {
	QueriesPerSport     int `yaml:"queries_per_sport" validate:"gte=1"`
	MaxArticlesPerSport int `yaml:"max_articles_per_sport" validate:"gte=1"`
	Workers             int `yaml:"workers" validate:"gte=1"`
	TrendingLimit       int `yaml:"trending_limit" validate:"gte=1"`
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{QueriesPerSport: 2, MaxArticlesPerSport: 10, Workers: 3, TrendingLimit: 30}
}

// Orchestrator runs fetch cycles.
type Orchestrator struct {
	store    Store
	news     NewsSearcher
	fixtures map[model.Sport][]sources.FixtureSource
	order    []sources.FixtureSource
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an orchestrator. news may be nil when no news API is configured.
func New(st Store, news NewsSearcher, fixtures []sources.FixtureSource, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.QueriesPerSport <= 0 {
		cfg.QueriesPerSport = def.QueriesPerSport
	}
	if cfg.MaxArticlesPerSport <= 0 {
		cfg.MaxArticlesPerSport = def.MaxArticlesPerSport
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.TrendingLimit <= 0 {
		cfg.TrendingLimit = def.TrendingLimit
	}
	o := &Orchestrator{
		store:    st,
		news:     news,
		fixtures: make(map[model.Sport][]sources.FixtureSource),
		order:    fixtures,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, src := range fixtures {
		o.fixtures[src.Sport()] = append(o.fixtures[src.Sport()], src)
	}
	return o
}

// WithLogger overrides the logger.
func (o *Orchestrator) WithLogger(l *slog.Logger) *Orchestrator {
	o.logger = l
	return o
}

// Fetch pulls news and fixtures for sports. No sports means every active
// catalog category. Failures are contained per sport and listed in the
// report; the returned error is set only when the catalog cannot be read.
func (o *Orchestrator) Fetch(ctx context.Context, sports []model.Sport) (*Report, error) {
	report := newReport(o.now())
	catalog, err := o.catalog(ctx)
	if err != nil {
		return nil, err
	}

	if len(sports) == 0 {
		for _, c := range catalog.ordered {
			if c.Active {
				sports = append(sports, c.Name)
			}
		}
	}

	var todo []model.Sport
	requested := make(map[model.Sport]bool)
	for _, sport := range sports {
		if requested[sport] {
			continue
		}
		requested[sport] = true
		if _, ok := catalog.byName[sport]; !ok {
			report.errorf("%s: unknown sport", sport)
			continue
		}
		todo = append(todo, sport)
	}

	o.logger.Info("fetch started", "sports", todo)

	sem := make(chan struct{}, o.cfg.Workers)
	var wg sync.WaitGroup
	for _, sport := range todo {
		wg.Add(1)
		go func(sport model.Sport) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			o.fetchNews(ctx, sport, report)
			o.fetchFixtures(ctx, sport, report)
		}(sport)
	}
	wg.Wait()

	report.FinishedAt = o.now()
	news, fixtures := report.Totals()
	o.logger.Info("fetch completed",
		"articles_saved", news.Saved, "fixtures_saved", fixtures.Saved,
		"fixtures_updated", fixtures.Updated, "errors", len(report.Errors),
		"duration", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}

// fetchNews runs up to QueriesPerSport variants sequentially, skipping titles
// already seen in this run and stopping at the per-sport cap.
func (o *Orchestrator) fetchNews(ctx context.Context, sport model.Sport, report *Report) {
	if o.news == nil {
		return
	}
	seen := make(map[string]bool)
	collected := 0
	report.news(sport, func(*Count) {})

	for _, query := range queriesFor(sport, o.cfg.QueriesPerSport) {
		if collected >= o.cfg.MaxArticlesPerSport || ctx.Err() != nil {
			break
		}
		articles, err := o.news.Search(ctx, query)
		if err != nil {
			o.sourceFailure(report, fmt.Sprintf("%s news %q", sport, query), err)
			continue
		}
		for i := range articles {
			if collected >= o.cfg.MaxArticlesPerSport {
				break
			}
			a := articles[i]
			if seen[a.Title] {
				continue
			}
			seen[a.Title] = true
			collected++
			a.Sport = sport
			o.saveArticle(ctx, &a, report)
		}
	}
}

func (o *Orchestrator) saveArticle(ctx context.Context, a *model.Article, report *Report) {
	report.news(a.Sport, func(c *Count) { c.Fetched++ })
	outcome, err := o.store.UpsertArticle(ctx, a)
	var ve *store.ValidationError
	switch {
	case errors.As(err, &ve):
		o.logger.Warn("article rejected", "sport", a.Sport, "title", a.Title, "error", err)
	case err != nil:
		report.errorf("%s news: save %q: %v", a.Sport, a.Title, err)
	case outcome == store.Created:
		report.news(a.Sport, func(c *Count) { c.Saved++ })
		metrics.RecordSaved("article", string(a.Sport), 1)
	}
}

func (o *Orchestrator) fetchFixtures(ctx context.Context, sport model.Sport, report *Report) {
	for _, src := range o.fixtures[sport] {
		if ctx.Err() != nil {
			return
		}
		list, err := src.Fixtures(ctx)
		if err != nil {
			// partial results are still saved below
			o.sourceFailure(report, fmt.Sprintf("%s fixtures (%s)", sport, src.Name()), err)
		}
		report.fixtures(sport, func(c *Count) { c.Fetched += len(list) })
		for i := range list {
			f := list[i]
			f.Sport = sport
			outcome, err := o.store.UpsertFixture(ctx, &f)
			var ve *store.ValidationError
			switch {
			case errors.As(err, &ve):
				o.logger.Warn("fixture rejected", "sport", sport, "home", f.HomeTeam, "away", f.AwayTeam, "error", err)
			case err != nil:
				report.errorf("%s fixtures: save %s vs %s: %v", sport, f.HomeTeam, f.AwayTeam, err)
			case outcome == store.Created:
				report.fixtures(sport, func(c *Count) { c.Saved++ })
				metrics.RecordSaved("fixture", string(sport), 1)
			case outcome == store.Updated:
				report.fixtures(sport, func(c *Count) { c.Updated++ })
			}
		}
	}
}

// sourceFailure records an adapter failure. Budget exhaustion is expected and
// only logged.
func (o *Orchestrator) sourceFailure(report *Report, what string, err error) {
	if apiclient.IsRateLimited(err) {
		o.logger.Warn("rate limited, skipping", "what", what, "error", err)
		return
	}
	o.logger.Error("fetch failed", "what", what, "error", err)
	report.errorf("%s: %v", what, err)
}

// FetchTrending runs one category-wide news query, categorises each article
// by keyword and saves it under that sport. limit <= 0 uses the configured default.
func (o *Orchestrator) FetchTrending(ctx context.Context, limit int) (*Report, error) {
	report := newReport(o.now())
	if limit <= 0 {
		limit = o.cfg.TrendingLimit
	}
	catalog, err := o.catalog(ctx)
	if err != nil {
		return nil, err
	}
	if o.news == nil {
		report.errorf("trending: news source not configured")
		report.FinishedAt = o.now()
		return report, nil
	}

	articles, err := o.news.Search(ctx, "")
	if err != nil {
		o.sourceFailure(report, "trending news", err)
	}
	if len(articles) > limit {
		articles = articles[:limit]
	}

	seen := make(map[string]bool)
	missing := make(map[model.Sport]bool)
	for i := range articles {
		a := articles[i]
		if seen[a.Title] {
			continue
		}
		seen[a.Title] = true
		a.Sport = Categorize(a.Title + " " + a.Summary)
		if _, ok := catalog.byName[a.Sport]; !ok {
			if !missing[a.Sport] {
				missing[a.Sport] = true
				report.errorf("trending: category %q is not in the sport catalog", a.Sport)
			}
			continue
		}
		o.saveArticle(ctx, &a, report)
	}

	report.FinishedAt = o.now()
	news, _ := report.Totals()
	o.logger.Info("trending fetch completed", "fetched", news.Fetched, "saved", news.Saved, "errors", len(report.Errors))
	return report, nil
}

// Health pings every source and checks the database for recent content.
// Keys are source names plus "database".
func (o *Orchestrator) Health(ctx context.Context) map[string]bool {
	out := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	set := func(k string, v bool) {
		mu.Lock()
		out[k] = v
		mu.Unlock()
	}

	if o.news != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := o.news.Ping(ctx)
			if err != nil {
				o.logger.Warn("news source unhealthy", "error", err)
			}
			set(sources.NewsDataSourceID, err == nil)
		}()
	}
	for _, src := range o.order {
		wg.Add(1)
		go func(src sources.FixtureSource) {
			defer wg.Done()
			err := src.Ping(ctx)
			if err != nil {
				o.logger.Warn("fixture source unhealthy", "source", src.Name(), "error", err)
			}
			set(src.Name(), err == nil)
		}(src)
	}
	wg.Wait()

	act, err := o.store.RecentActivity(ctx)
	if err != nil {
		o.logger.Warn("database unhealthy", "error", err)
	}
	out["database"] = err == nil && act.Healthy
	return out
}

type catalogIndex struct {
	ordered []model.SportCategory
	byName  map[model.Sport]model.SportCategory
}

func (o *Orchestrator) catalog(ctx context.Context) (*catalogIndex, error) {
	cats, err := o.store.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sport catalog: %w", err)
	}
	idx := &catalogIndex{ordered: cats, byName: make(map[model.Sport]model.SportCategory, len(cats))}
	for _, c := range cats {
		idx.byName[c.Name] = c
	}
	return idx, nil
}
