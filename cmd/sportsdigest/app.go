package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/RobinCoderZhao/sports-digest/internal/config"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/analytics"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/apiclient"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/compiler"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/dispatcher"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/fetcher"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/jobs"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/selector"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/sources"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/store"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/tracking"
	"github.com/RobinCoderZhao/sports-digest/pkg/cache"
	"github.com/RobinCoderZhao/sports-digest/pkg/notify"
	"github.com/RobinCoderZhao/sports-digest/pkg/storage"
)

// app is the fully wired pipeline of one process.
type app struct {
	cfg     config.Config
	store   *store.Store
	service *jobs.Service
	tracker *tracking.Tracker

	closers []func() error
}

// openStore opens and migrates the database.
func openStore(ctx context.Context, cfg storage.Config) (*store.Store, error) {
	if cfg.Driver == storage.SQLite || cfg.Driver == "" {
		if dir := filepath.Dir(cfg.DSN); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
	}
	db, err := storage.Open(cfg)
	if err != nil {
		return nil, err
	}
	st := store.New(db)
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// newCounters keeps API budget counters in Redis when configured so that
// several processes share one daily budget.
func newCounters(ctx context.Context, cfg cache.RedisConfig) (cache.Store, func() error, error) {
	if cfg.Addr == "" {
		return cache.NewMemory(), func() error { return nil }, nil
	}
	r, err := cache.NewRedis(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return r, r.Close, nil
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, store: st, closers: []func() error{st.Close}}

	counters, closeCounters, err := newCounters(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeCounters)

	client := apiclient.New(counters)
	news, fixtures := registerSources(client, cfg)

	if cfg.HTTP.JWTSecret == "" {
		slog.Warn("jwt secret not configured, click links are sent unwrapped")
	}
	signer := tracking.NewLinkSigner(cfg.HTTP.JWTSecret, cfg.HTTP.ClickTTL)
	links := tracking.Links{BaseURL: cfg.Site.URL, Signer: signer}
	a.tracker = tracking.NewTracker(st, signer)

	sel := selector.New(st, cfg.Selection)
	comp, err := compiler.New(st, compiler.Config{SiteName: cfg.Site.Name, TemplateDir: cfg.Site.TemplateDir}, links)
	if err != nil {
		a.Close()
		return nil, err
	}

	notifier, err := newNotifier(cfg.Email)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.service = jobs.New(jobs.Deps{
		Store:      st,
		Fetcher:    fetcher.New(st, news, fixtures, cfg.Fetch),
		Selector:   sel,
		Compiler:   comp,
		Dispatcher: dispatcher.New(st, sel, comp, notifier, cfg.Delivery),
		Welcomer:   dispatcher.NewWelcomer(notifier, links, cfg.Site.Name, cfg.Delivery),
		Analytics:  analytics.NewCalculator(st),
		Budget:     client,
	}, cfg.JobSettings())
	return a, nil
}

// registerSources registers every upstream with the budgeted client and
// returns the adapters built on it.
func registerSources(client *apiclient.Client, cfg config.Config) (*sources.NewsAdapter, []sources.FixtureSource) {
	client.Register(apiclient.SourceConfig{
		ID:          sources.NewsDataSourceID,
		BaseURL:     cfg.NewsData.BaseURL,
		DailyBudget: cfg.NewsData.DailyBudget,
		MinInterval: cfg.NewsData.MinInterval,
		Timeout:     cfg.NewsData.Timeout,
		Query:       map[string]string{"apikey": cfg.NewsData.APIKey},
		Cache:       map[string]time.Duration{sources.NewsEndpoint: cfg.NewsData.CacheTTL},
	})

	as := cfg.APISports
	products := []struct {
		id, version, product string
		cache                map[string]time.Duration
	}{
		{sources.FootballSourceID, "v3", "football", nil},
		{sources.RugbySourceID, "v1", "rugby", nil},
		{sources.Formula1SourceID, "v1", "formula-1", map[string]time.Duration{sources.Formula1RacesEndpoint: as.F1CacheTTL}},
		{sources.BasketballSourceID, "v1", "basketball", nil},
	}
	for _, p := range products {
		base := sources.APISportsBaseURL(p.version, p.product)
		client.Register(apiclient.SourceConfig{
			ID:          p.id,
			BaseURL:     base,
			DailyBudget: as.DailyBudget,
			MinInterval: as.MinInterval,
			Timeout:     as.Timeout,
			Headers: map[string]string{
				"x-rapidapi-host": base[len("https://"):],
				"x-rapidapi-key":  as.APIKey,
			},
			Cache: p.cache,
		})
	}

	news := sources.NewNewsAdapter(client, sources.NewsConfig{
		SourceID:        sources.NewsDataSourceID,
		DefaultImageURL: cfg.NewsData.DefaultImageURL,
	})

	var f1 []sources.League
	if as.F1Season != "" {
		f1 = []sources.League{{Name: "Formula 1", Season: as.F1Season}}
	}
	fixtures := []sources.FixtureSource{
		sources.NewFootballAdapter(client, sources.FixtureConfig{Leagues: as.Football, Last: as.Last, Limit: as.Limit}),
		sources.NewRugbyAdapter(client, sources.FixtureConfig{Leagues: as.Rugby, Limit: as.Limit}),
		sources.NewFormula1Adapter(client, sources.FixtureConfig{Leagues: f1, Limit: as.Limit}),
		sources.NewBasketballAdapter(client, sources.FixtureConfig{Leagues: as.Basketball, Limit: as.Limit}),
	}
	return news, fixtures
}

// newNotifier sends real email when SMTP is configured and logs otherwise.
func newNotifier(cfg notify.EmailConfig) (notify.Notifier, error) {
	if !cfg.Enabled() {
		slog.Warn("SMTP not configured, emails will only be logged")
		return notify.NewLogNotifier(slog.Default()), nil
	}
	return notify.NewEmailNotifier(cfg)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
}
