// Package jobs exposes the pipeline operations invoked by the scheduler, the
// CLI and the HTTP API.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/analytics"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/compiler"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/dispatcher"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/fetcher"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/selector"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/store"
)

var ErrInvalidEmail = errors.New("invalid email address")

// Budget reports the API calls left today for a source.
type Budget interface {
	Remaining(ctx context.Context, sourceID string) int
}

// Deps are the components a Service composes.
type Deps struct {
	Store      *store.Store
	Fetcher    *fetcher.Orchestrator
	Selector   *selector.Selector
	Compiler   *compiler.Compiler
	Dispatcher *dispatcher.Dispatcher
	Welcomer   *dispatcher.Welcomer // optional
	Analytics  *analytics.Calculator
	Budget     Budget // optional
}

// Settings tune the operations.
type Settings struct {
	TrendingLimit   int           `yaml:"trending_limit" validate:"gte=0"`
	RetentionDays   int           `yaml:"retention_days" validate:"gte=0"`
	AnalyticsWindow time.Duration `yaml:"analytics_window"`
	SendTimeout     time.Duration `yaml:"send_timeout"` // budget of the weekly send step
	BudgetSources   []string      `yaml:"budget_sources"`
}

// DefaultSettings mirrors the production schedule.
func DefaultSettings() Settings {
	return Settings{
		TrendingLimit:   30,
		RetentionDays:   30,
		AnalyticsWindow: 7 * 24 * time.Hour,
		SendTimeout:     10 * time.Minute,
	}
}

// Service runs the pipeline operations.
type Service struct {
	deps     Deps
	settings Settings
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a service. Zero settings take their defaults.
func New(deps Deps, settings Settings) *Service {
	def := DefaultSettings()
	if settings.TrendingLimit <= 0 {
		settings.TrendingLimit = def.TrendingLimit
	}
	if settings.RetentionDays <= 0 {
		settings.RetentionDays = def.RetentionDays
	}
	if settings.AnalyticsWindow <= 0 {
		settings.AnalyticsWindow = def.AnalyticsWindow
	}
	if settings.SendTimeout <= 0 {
		settings.SendTimeout = def.SendTimeout
	}
	return &Service{
		deps:     deps,
		settings: settings,
		validate: validator.New(),
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// Fetch refreshes news and fixtures. Nil sports means every active sport.
func (s *Service) Fetch(ctx context.Context, sports []model.Sport) (*fetcher.Report, error) {
	return s.deps.Fetcher.Fetch(ctx, sports)
}

// FetchTrending stores the latest sports headlines. limit <= 0 uses the configured limit.
func (s *Service) FetchTrending(ctx context.Context, limit int) (*fetcher.Report, error) {
	if limit <= 0 {
		limit = s.settings.TrendingLimit
	}
	return s.deps.Fetcher.FetchTrending(ctx, limit)
}

// GenerateOptions controls GenerateWeekly.
type GenerateOptions struct {
	Refresh         bool      `json:"refresh"`
	SendImmediately bool      `json:"send_immediately"`
	Edition         time.Time `json:"edition,omitempty"` // zero means today
}

// GenerateResult is the outcome of GenerateWeekly.
type GenerateResult struct {
	NewsletterID string                 `json:"newsletter_id"`
	Status       model.NewsletterStatus `json:"status"`
	Edition      string                 `json:"edition"`
	Articles     int                    `json:"articles"`
	Fixtures     int                    `json:"fixtures"`
	Fetch        *fetcher.Report        `json:"fetch,omitempty"`
	Delivery     *dispatcher.Result     `json:"delivery,omitempty"`
}

// GenerateWeekly optionally refreshes content, compiles the edition,
// schedules it and optionally sends it. Generating an existing edition
// returns that edition. A failed refresh does not stop generation.
func (s *Service) GenerateWeekly(ctx context.Context, opts GenerateOptions) (*GenerateResult, error) {
	res := &GenerateResult{}
	if opts.Refresh {
		report, err := s.Fetch(ctx, nil)
		if err != nil {
			s.logger.Warn("refresh before generate failed", "error", err)
		}
		res.Fetch = report
	}

	edition := opts.Edition
	if edition.IsZero() {
		edition = s.now().UTC()
	}
	set, err := s.deps.Selector.Select(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("select content: %w", err)
	}
	if set.Empty() {
		s.logger.Warn("generating newsletter without content", "edition", edition.Format(model.EditionLayout))
	}

	n, err := s.deps.Compiler.Compile(ctx, set, edition)
	if n != nil {
		res.NewsletterID = n.ID
		res.Status = n.Status
		res.Edition = n.Metadata.Edition
		res.Articles = len(n.ArticleIDs)
		res.Fixtures = len(n.FixtureIDs)
	}
	if err != nil {
		return res, fmt.Errorf("compile newsletter: %w", err)
	}

	if n.Status == model.NewsletterDraft {
		if err := s.deps.Compiler.Schedule(ctx, n.ID); err != nil {
			return res, fmt.Errorf("schedule newsletter: %w", err)
		}
		n.Status = model.NewsletterScheduled
		res.Status = n.Status
	}

	if opts.SendImmediately && n.Status == model.NewsletterScheduled {
		sendCtx, cancel := context.WithTimeout(ctx, s.settings.SendTimeout)
		defer cancel()
		delivery, err := s.deps.Dispatcher.Dispatch(sendCtx, n, dispatcher.Options{})
		res.Delivery = delivery
		res.Status = n.Status
		if err != nil {
			return res, fmt.Errorf("send newsletter: %w", err)
		}
	}

	s.logger.Info("weekly newsletter generated", "id", res.NewsletterID, "status", res.Status, "edition", res.Edition)
	return res, nil
}

// Send delivers a stored newsletter. A non-empty testAddress sends only to
// that address without recording deliveries.
func (s *Service) Send(ctx context.Context, newsletterID, testAddress string) (*dispatcher.Result, error) {
	n, err := s.deps.Store.Newsletter(ctx, newsletterID)
	if err != nil {
		return nil, fmt.Errorf("load newsletter: %w", err)
	}
	var opts dispatcher.Options
	if testAddress != "" {
		if err := s.validate.Var(testAddress, "required,email"); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidEmail, testAddress)
		}
		opts.Test = &model.TestRecipient{Email: testAddress}
	}
	return s.deps.Dispatcher.Dispatch(ctx, n, opts)
}

// Cleanup purges content older than days. days <= 0 uses the retention setting.
func (s *Service) Cleanup(ctx context.Context, days int) (*store.PurgeResult, error) {
	if days <= 0 {
		days = s.settings.RetentionDays
	}
	res, err := s.deps.Store.Purge(ctx, time.Duration(days)*24*time.Hour)
	if err != nil {
		return nil, err
	}
	s.logger.Info("cleanup completed", "days", days, "articles", res.DeletedArticles, "fixtures", res.DeletedFixtures)
	return res, nil
}

// Health reports per-source and database health.
func (s *Service) Health(ctx context.Context) map[string]bool {
	return s.deps.Fetcher.Health(ctx)
}

// SummaryReport is the stored-content summary plus today's API budget.
type SummaryReport struct {
	*store.Summary
	APIBudget map[string]int `json:"api_calls_remaining,omitempty"`
}

func (s *Service) Summary(ctx context.Context) (*SummaryReport, error) {
	sum, err := s.deps.Store.Summary(ctx)
	if err != nil {
		return nil, err
	}
	rep := &SummaryReport{Summary: sum}
	if s.deps.Budget != nil && len(s.settings.BudgetSources) > 0 {
		rep.APIBudget = make(map[string]int, len(s.settings.BudgetSources))
		for _, id := range s.settings.BudgetSources {
			rep.APIBudget[id] = s.deps.Budget.Remaining(ctx, id)
		}
	}
	return rep, nil
}

// CalculateAnalytics recomputes analytics of recently sent newsletters.
func (s *Service) CalculateAnalytics(ctx context.Context) ([]model.NewsletterAnalytics, error) {
	return s.deps.Analytics.Recompute(ctx, s.settings.AnalyticsWindow)
}

// Subscribe adds a subscriber and sends the welcome email.
// A failed welcome email is logged, not returned.
func (s *Service) Subscribe(ctx context.Context, email, name string, sports []model.Sport) (*model.Subscriber, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.validate.Var(email, "required,email,max=254"); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	for _, sp := range sports {
		ok, err := s.deps.Store.HasSport(ctx, sp)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", store.ErrUnknownSport, sp)
		}
	}

	sub := &model.Subscriber{Email: email, Name: strings.TrimSpace(name), Preferences: model.Preferences{Sports: sports}}
	if err := s.deps.Store.AddSubscriber(ctx, sub); err != nil {
		return nil, err
	}
	if s.deps.Welcomer != nil {
		if err := s.deps.Welcomer.SendWelcome(ctx, sub); err != nil {
			s.logger.Warn("welcome email failed", "email", sub.Email, "error", err)
		}
	}
	s.logger.Info("subscriber added", "email", sub.Email, "sports", len(sports))
	return sub, nil
}

// Unsubscribe deactivates the subscriber owning token.
func (s *Service) Unsubscribe(ctx context.Context, token string) (*model.Subscriber, error) {
	return s.deps.Store.Unsubscribe(ctx, token)
}
