// Package compiler turns a selected content set into a persisted newsletter
// edition and renders it for each recipient.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/selector"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/store"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/tracking"
	"github.com/RobinCoderZhao/sports-digest/pkg/notify"
)

// ErrRenderFailed is returned when both the primary and the fallback renderer fail.
var ErrRenderFailed = errors.New("render failed")

const (
	titleLayout = "January 02, 2006"
	storyLayout = "Jan 2"
	matchLayout = "Mon Jan 2, 15:04 MST"
)

// Store is the persistence the compiler needs.
type Store interface {
	NewsletterByEdition(ctx context.Context, edition time.Time) (*model.Newsletter, error)
	CreateNewsletter(ctx context.Context, n *model.Newsletter) error
	TransitionNewsletter(ctx context.Context, id string, from, to model.NewsletterStatus) error
}

// Config holds presentation settings.
type Config struct {
	SiteName    string `yaml:"site_name"`
	TemplateDir string `yaml:"template_dir"`
}

// Compiler builds newsletter editions.
type Compiler struct {
	store    Store
	cfg      Config
	links    tracking.Links
	snapshot Renderer
	email    Renderer
	fallback Renderer
	logger   *slog.Logger
	now      func() time.Time
}

// Option customises a Compiler.
type Option func(*Compiler)

// WithRenderers replaces the snapshot, email and fallback renderers. Nil
// arguments keep the current renderer.
func WithRenderers(snapshot, email, fallback Renderer) Option {
	return func(c *Compiler) {
		if snapshot != nil {
			c.snapshot = snapshot
		}
		if email != nil {
			c.email = email
		}
		if fallback != nil {
			c.fallback = fallback
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(c *Compiler) { c.now = now } }

// New creates a compiler. A template directory that fails to parse is
// logged and the built-in templates are used instead.
func New(st Store, cfg Config, links tracking.Links, opts ...Option) (*Compiler, error) {
	if cfg.SiteName == "" {
		cfg.SiteName = "Sports Digest"
	}
	c := &Compiler{
		store:    st,
		cfg:      cfg,
		links:    links,
		snapshot: NewMarkdownRenderer(),
		fallback: NewFormatterRenderer(),
		logger:   slog.Default(),
		now:      time.Now,
	}

	tmpl, err := NewTemplateRenderer(cfg.TemplateDir)
	if err != nil && cfg.TemplateDir != "" {
		c.logger.Warn("custom templates unusable, using built-in", "dir", cfg.TemplateDir, "error", err)
		tmpl, err = NewTemplateRenderer("")
	}
	if err != nil {
		return nil, err
	}
	c.email = tmpl

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Title is the subject of the edition on date.
func Title(edition time.Time) string {
	return "Your Weekly Sports Digest - " + edition.Format(titleLayout)
}

// EditionLabel is the ISO week label, e.g. "Week 1, 2024".
func EditionLabel(edition time.Time) string {
	year, week := edition.ISOWeek()
	return fmt.Sprintf("Week %d, %d", week, year)
}

func editionDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Compile creates the draft newsletter for edition from set. If a non-failed
// newsletter already exists for that date it is returned untouched.
func (c *Compiler) Compile(ctx context.Context, set *selector.Set, edition time.Time) (*model.Newsletter, error) {
	edition = editionDay(edition)
	existing, err := c.store.NewsletterByEdition(ctx, edition)
	if err == nil {
		c.logger.Info("newsletter already exists for edition", "id", existing.ID, "edition", edition.Format(model.EditionLayout))
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup edition: %w", err)
	}

	n := &model.Newsletter{
		ID:          uuid.NewString(),
		Title:       Title(edition),
		EditionDate: edition,
		Status:      model.NewsletterDraft,
		ArticleIDs:  set.ArticleIDs(),
		FixtureIDs:  set.FixtureIDs(),
	}
	if lead, ok := set.FeaturedArticle(); ok {
		n.FeaturedArticleID = lead.ID
	}
	n.Metadata = model.Metadata{
		Edition:       EditionLabel(edition),
		TotalArticles: len(n.ArticleIDs),
		TotalFixtures: len(n.FixtureIDs),
		GeneratedAt:   c.now().UTC().Format(time.RFC3339),
	}
	for _, cat := range set.Sports() {
		n.Metadata.Sports = append(n.Metadata.Sports, cat.Name)
	}

	msg, renderErr := c.render(c.snapshot, c.Digest(n, set, nil, ""))
	if renderErr == nil {
		n.Content = msg.Body
		n.HTMLContent = msg.HTMLBody
	} else {
		n.Metadata.Errors = append(n.Metadata.Errors, renderErr.Error())
	}

	if err := c.store.CreateNewsletter(ctx, n); err != nil {
		if errors.Is(err, store.ErrDuplicateEdition) {
			return c.store.NewsletterByEdition(ctx, edition)
		}
		return nil, fmt.Errorf("create newsletter: %w", err)
	}

	if renderErr != nil {
		if err := c.store.TransitionNewsletter(ctx, n.ID, model.NewsletterDraft, model.NewsletterFailed); err != nil {
			c.logger.Error("mark newsletter failed", "id", n.ID, "error", err)
		} else {
			n.Status = model.NewsletterFailed
		}
		return n, renderErr
	}

	c.logger.Info("newsletter compiled", "id", n.ID, "edition", n.Metadata.Edition,
		"articles", n.Metadata.TotalArticles, "fixtures", n.Metadata.TotalFixtures)
	return n, nil
}

// Schedule moves a draft newsletter to scheduled.
func (c *Compiler) Schedule(ctx context.Context, id string) error {
	return c.store.TransitionNewsletter(ctx, id, model.NewsletterDraft, model.NewsletterScheduled)
}

// RenderEmail renders n for one recipient. set should already be personalised.
// deliveryID enables the open pixel and click tracking; empty disables both.
func (c *Compiler) RenderEmail(n *model.Newsletter, set *selector.Set, r model.Recipient, deliveryID string) (notify.Message, error) {
	msg, err := c.render(c.email, c.Digest(n, set, r, deliveryID))
	if err != nil {
		return notify.Message{}, err
	}
	msg.Title = n.Title
	msg.To = r.Address()
	msg.ToName = r.DisplayName()
	return msg, nil
}

func (c *Compiler) render(primary Renderer, data notify.DigestData) (notify.Message, error) {
	msg, err := primary.Render(data)
	if err == nil {
		return msg, nil
	}
	c.logger.Warn("render failed, using fallback", "title", data.Title, "error", err)
	msg, fbErr := c.fallback.Render(data)
	if fbErr != nil {
		return notify.Message{}, fmt.Errorf("%w: %v; fallback: %v", ErrRenderFailed, err, fbErr)
	}
	return msg, nil
}

// Digest assembles the render data of n. r is nil for the stored snapshot.
func (c *Compiler) Digest(n *model.Newsletter, set *selector.Set, r model.Recipient, deliveryID string) notify.DigestData {
	data := notify.DigestData{
		SiteName: c.cfg.SiteName,
		Title:    n.Title,
		Edition:  n.Metadata.Edition,
		PixelURL: c.links.Pixel(deliveryID),
	}
	if r != nil {
		name := r.DisplayName()
		if name == "" {
			name = "there"
		}
		data.Greeting = fmt.Sprintf("Hi %s, here is your weekly round-up of the stories and fixtures that matter.", name)
	}

	story := func(a model.Article) notify.DigestStory {
		return notify.DigestStory{
			Title:     a.Title,
			Summary:   a.Summary,
			URL:       c.links.Click(deliveryID, a.SourceURL),
			Source:    a.SourceName,
			Sport:     set.Category(a.Sport).DisplayName,
			Published: a.PublishedAt.Format(storyLayout),
			Premium:   a.Premium,
		}
	}
	match := func(f model.Fixture) notify.DigestMatch {
		return notify.DigestMatch{
			Sport:       set.Category(f.Sport).DisplayName,
			Home:        f.HomeTeam,
			Away:        f.AwayTeam,
			When:        f.MatchDate.UTC().Format(matchLayout),
			Venue:       f.Venue,
			Competition: f.Competition,
		}
	}

	for _, a := range set.TopStories {
		data.TopStories = append(data.TopStories, story(a))
	}
	for _, cat := range set.Sports() {
		sec := notify.DigestSection{Name: cat.DisplayName, Icon: cat.Icon}
		for _, a := range set.ArticlesBySport[cat.Name] {
			sec.Stories = append(sec.Stories, story(a))
		}
		if len(sec.Stories) > 0 {
			data.Sections = append(data.Sections, sec)
		}
	}
	big := make(map[string]bool, len(set.BigMatches))
	for _, f := range set.BigMatches {
		big[f.ID] = true
		data.Matches = append(data.Matches, match(f))
	}
	for _, f := range set.Fixtures {
		if !big[f.ID] {
			data.Fixtures = append(data.Fixtures, match(f))
		}
	}

	data.Links = []notify.FooterLink{{Label: "View online", URL: c.links.View(n.ID)}}
	if r != nil {
		data.Links = append(data.Links,
			notify.FooterLink{Label: "Manage preferences", URL: c.links.Preferences(r.CapabilityToken())},
			notify.FooterLink{Label: "Unsubscribe", URL: c.links.Unsubscribe(r.CapabilityToken())},
		)
	}
	return data
}
