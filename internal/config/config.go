// Package config holds the sports digest process configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/dispatcher"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/fetcher"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/jobs"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/selector"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/sources"
	"github.com/RobinCoderZhao/sports-digest/pkg/cache"
	pkgconfig "github.com/RobinCoderZhao/sports-digest/pkg/config"
	"github.com/RobinCoderZhao/sports-digest/pkg/notify"
	"github.com/RobinCoderZhao/sports-digest/pkg/storage"
)

// Config is the whole process configuration.
type Config struct {
	Database  storage.Config     `yaml:"database"`
	Redis     cache.RedisConfig  `yaml:"redis"` // empty addr keeps counters in memory
	Log       LogConfig          `yaml:"log"`
	HTTP      HTTPConfig         `yaml:"http"`
	Site      SiteConfig         `yaml:"site"`
	Email     notify.EmailConfig `yaml:"email"`
	NewsData  NewsDataConfig     `yaml:"newsdata"`
	APISports APISportsConfig    `yaml:"apisports"`
	Fetch     fetcher.Config     `yaml:"fetch"`
	Selection selector.Limits    `yaml:"selection"`
	Delivery  dispatcher.Config  `yaml:"delivery"`
	Retention RetentionConfig    `yaml:"retention"`
	Jobs      JobsConfig         `yaml:"jobs"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" env:"LOG_FORMAT" validate:"omitempty,oneof=text json"`
}

// HTTPConfig configures the API server and its tokens.
type HTTPConfig struct {
	Addr      string        `yaml:"addr" env:"HTTP_ADDR" validate:"required"`
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET" validate:"required,min=16"`
	TokenTTL  time.Duration `yaml:"token_ttl"` // admin bearer tokens
	ClickTTL  time.Duration `yaml:"click_ttl"` // signed click links; 0 never expires
}

type SiteConfig struct {
	Name        string `yaml:"name" validate:"required"`
	URL         string `yaml:"url" env:"SITE_URL" validate:"required,url"`
	TemplateDir string `yaml:"template_dir"`
}

type NewsDataConfig struct {
	APIKey          string        `yaml:"api_key" env:"NEWSDATA_API_KEY"`
	BaseURL         string        `yaml:"base_url" validate:"required,url"`
	DailyBudget     int           `yaml:"daily_budget" validate:"gte=0"`
	MinInterval     time.Duration `yaml:"min_interval"`
	Timeout         time.Duration `yaml:"timeout"`
	CacheTTL        time.Duration `yaml:"cache_ttl"` // per-query response cache; 0 disables
	DefaultImageURL string        `yaml:"default_image_url" validate:"omitempty,url"`
}

// APISportsConfig covers every API-Sports product. One key and budget are
// shared; each product keeps its own daily counter.
type APISportsConfig struct {
	APIKey      string           `yaml:"api_key" env:"SPORTS_API_KEY"`
	DailyBudget int              `yaml:"daily_budget" validate:"gte=0"`
	MinInterval time.Duration    `yaml:"min_interval"`
	Timeout     time.Duration    `yaml:"timeout"`
	F1CacheTTL  time.Duration    `yaml:"formula1_cache_ttl"` // race calendars change rarely
	Football    []sources.League `yaml:"football_leagues"`
	Rugby       []sources.League `yaml:"rugby_leagues"`
	Basketball  []sources.League `yaml:"basketball_leagues"`
	F1Season    string           `yaml:"formula1_season"`
	Last        int              `yaml:"last" validate:"gte=0"`
	Limit       int              `yaml:"limit" validate:"gte=0"`
}

type RetentionConfig struct {
	Days int `yaml:"days" validate:"gte=1"`
}

type JobsConfig struct {
	Enabled         bool          `yaml:"enabled" env:"JOBS_ENABLED"`
	TrendingLimit   int           `yaml:"trending_limit" validate:"gte=1"`
	AnalyticsWindow time.Duration `yaml:"analytics_window"`
	SendTimeout     time.Duration `yaml:"send_timeout"`
}

// Default returns a configuration that runs locally against SQLite with
// logged instead of sent email.
func Default() Config {
	return Config{
		Database: storage.Config{Driver: storage.SQLite, DSN: "data/sportsdigest.db"},
		Log:      LogConfig{Level: "info", Format: "text"},
		HTTP: HTTPConfig{
			Addr:     ":8080",
			TokenTTL: 24 * time.Hour,
			ClickTTL: 90 * 24 * time.Hour,
		},
		Site: SiteConfig{Name: "Sports Digest", URL: "http://localhost:8080"},
		Email: notify.EmailConfig{
			SMTPPort: 587,
			FromName: "Sports Digest",
			Timeout:  30 * time.Second,
		},
		NewsData: NewsDataConfig{
			BaseURL:     "https://newsdata.io/api/1",
			DailyBudget: 200,
			MinInterval: 300 * time.Millisecond,
			Timeout:     15 * time.Second,
			CacheTTL:    time.Hour,
		},
		APISports: APISportsConfig{
			DailyBudget: 100,
			MinInterval: 500 * time.Millisecond,
			Timeout:     10 * time.Second,
			F1CacheTTL:  time.Hour,
			F1Season:    "2023",
		},
		Fetch:     fetcher.DefaultConfig(),
		Selection: selector.DefaultLimits(),
		Delivery:  dispatcher.DefaultConfig(),
		Retention: RetentionConfig{Days: 30},
		Jobs: JobsConfig{
			Enabled:         true,
			TrendingLimit:   30,
			AnalyticsWindow: 7 * 24 * time.Hour,
			SendTimeout:     10 * time.Minute,
		},
	}
}

// Load reads path over Default and applies environment overrides. A missing
// file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := pkgconfig.LoadOrDefault(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks the struct constraints and returns every violation in one error.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// JobSettings maps the retention and jobs sections onto job settings.
func (c Config) JobSettings() jobs.Settings {
	return jobs.Settings{
		TrendingLimit:   c.Jobs.TrendingLimit,
		RetentionDays:   c.Retention.Days,
		AnalyticsWindow: c.Jobs.AnalyticsWindow,
		SendTimeout:     c.Jobs.SendTimeout,
		BudgetSources: []string{
			sources.NewsDataSourceID, sources.FootballSourceID, sources.RugbySourceID,
			sources.Formula1SourceID, sources.BasketballSourceID,
		},
	}
}
