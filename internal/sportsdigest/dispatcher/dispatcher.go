// Package dispatcher sends a compiled newsletter to its recipients and records
// one delivery per subscriber.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/selector"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/store"
	"github.com/RobinCoderZhao/sports-digest/pkg/metrics"
	"github.com/RobinCoderZhao/sports-digest/pkg/notify"
)

// ErrNotSendable is returned for newsletters that are already sent or failed.
var ErrNotSendable = errors.New("newsletter is not sendable")

// Store is the persistence the dispatcher needs.
type Store interface {
	QueryArticles(ctx context.Context, filter store.ArticleFilter) ([]model.Article, error)
	QueryFixtures(ctx context.Context, filter store.FixtureFilter) ([]model.Fixture, error)
	ActiveSubscribers(ctx context.Context) ([]*model.Subscriber, error)
	BeginDelivery(ctx context.Context, newsletterID, subscriberID string) (*model.DeliveryRecord, error)
	FinishDelivery(ctx context.Context, id string, status model.DeliveryStatus, sendErr error) error
	TransitionNewsletter(ctx context.Context, id string, from, to model.NewsletterStatus) error
	MarkNewsletterSent(ctx context.Context, id string, recipients int) error
}

// Renderer renders a newsletter for one recipient. *compiler.Compiler implements it.
type Renderer interface {
	RenderEmail(n *model.Newsletter, set *selector.Set, r model.Recipient, deliveryID string) (notify.Message, error)
}

// ContentBuilder rebuilds the selection of a stored newsletter.
type ContentBuilder interface {
	FromContent(ctx context.Context, articles []model.Article, fixtures []model.Fixture) (*selector.Set, error)
}

// Config bounds a dispatch run.
type Config struct {
	BatchSize   int           `yaml:"batch_size" validate:"gte=0"`
	Concurrency int           `yaml:"concurrency" validate:"gte=0,lte=64"`
	SendTimeout time.Duration `yaml:"send_timeout"`
}

// DefaultConfig returns batches of 100 sent by 4 workers with a 30s send timeout.
func DefaultConfig() Config {
	return Config{BatchSize: 100, Concurrency: 4, SendTimeout: 30 * time.Second}
}

// Options selects the recipients of one dispatch.
type Options struct {
	// Test, when set, sends only to this address. No delivery records are
	// written and the newsletter status is left untouched.
	Test *model.TestRecipient
}

// SendError is one failed recipient.
type SendError struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// Result summarises a dispatch. Sent+Failed always equals Recipients.
type Result struct {
	NewsletterID string      `json:"newsletter_id"`
	Recipients   int         `json:"recipients"`
	Sent         int         `json:"sent"`
	Failed       int         `json:"failed"`
	Errors       []SendError `json:"errors,omitempty"`
	Test         bool        `json:"test,omitempty"`

	mu sync.Mutex
}

func (r *Result) success() {
	r.mu.Lock()
	r.Sent++
	r.mu.Unlock()
}

func (r *Result) failure(email string, err error) {
	r.mu.Lock()
	r.Failed++
	r.Errors = append(r.Errors, SendError{Email: email, Error: err.Error()})
	r.mu.Unlock()
}

// Dispatcher delivers newsletters.
type Dispatcher struct {
	store    Store
	content  ContentBuilder
	renderer Renderer
	notifier notify.Notifier
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a dispatcher. Zero config fields take their defaults.
func New(st Store, content ContentBuilder, renderer Renderer, notifier notify.Notifier, cfg Config) *Dispatcher {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	return &Dispatcher{
		store:    st,
		content:  content,
		renderer: renderer,
		notifier: notifier,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// WithLogger overrides the logger.
func (d *Dispatcher) WithLogger(l *slog.Logger) *Dispatcher {
	d.logger = l
	return d
}

// Dispatch sends n to every active subscriber, or only to opts.Test. A draft
// newsletter is scheduled first. The newsletter is marked sent only when at
// least one send succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, n *model.Newsletter, opts Options) (*Result, error) {
	test := opts.Test != nil
	if !test {
		switch n.Status {
		case model.NewsletterDraft:
			if err := d.store.TransitionNewsletter(ctx, n.ID, model.NewsletterDraft, model.NewsletterScheduled); err != nil {
				return nil, fmt.Errorf("schedule newsletter: %w", err)
			}
			n.Status = model.NewsletterScheduled
		case model.NewsletterScheduled:
		default:
			return nil, fmt.Errorf("%w: %s is %s", ErrNotSendable, n.ID, n.Status)
		}
	}

	set, err := d.load(ctx, n)
	if err != nil {
		return nil, err
	}

	var recipients []model.Recipient
	if test {
		recipients = []model.Recipient{*opts.Test}
	} else {
		subs, err := d.store.ActiveSubscribers(ctx)
		if err != nil {
			return nil, fmt.Errorf("load subscribers: %w", err)
		}
		for _, s := range subs {
			recipients = append(recipients, s)
		}
	}

	res := &Result{NewsletterID: n.ID, Recipients: len(recipients), Test: test}
	d.logger.Info("dispatch started", "newsletter", n.ID, "recipients", len(recipients), "test", test)

	for start := 0; start < len(recipients); start += d.cfg.BatchSize {
		end := min(start+d.cfg.BatchSize, len(recipients))
		d.batch(ctx, n, set, recipients[start:end], res)
	}

	if !test && res.Sent > 0 {
		// the caller's context may be spent by now
		markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		err := d.store.MarkNewsletterSent(markCtx, n.ID, res.Sent)
		cancel()
		if err != nil {
			return res, fmt.Errorf("mark newsletter sent: %w", err)
		}
		now := d.now().UTC()
		n.Status = model.NewsletterSent
		n.SentAt = &now
		n.RecipientCount = res.Sent
	}

	d.logger.Info("dispatch completed", "newsletter", n.ID, "sent", res.Sent, "failed", res.Failed)
	return res, nil
}

// load rebuilds the selection from the stored associations.
func (d *Dispatcher) load(ctx context.Context, n *model.Newsletter) (*selector.Set, error) {
	var (
		articles []model.Article
		fixtures []model.Fixture
		err      error
	)
	if len(n.ArticleIDs) > 0 {
		articles, err = d.store.QueryArticles(ctx, store.ArticleFilter{IDs: n.ArticleIDs, Order: store.OrderRanked})
		if err != nil {
			return nil, fmt.Errorf("load articles: %w", err)
		}
	}
	if len(n.FixtureIDs) > 0 {
		fixtures, err = d.store.QueryFixtures(ctx, store.FixtureFilter{IDs: n.FixtureIDs})
		if err != nil {
			return nil, fmt.Errorf("load fixtures: %w", err)
		}
	}
	set, err := d.content.FromContent(ctx, articles, fixtures)
	if err != nil {
		return nil, fmt.Errorf("rebuild selection: %w", err)
	}
	return set, nil
}

func (d *Dispatcher) batch(ctx context.Context, n *model.Newsletter, set *selector.Set, batch []model.Recipient, res *Result) {
	var wg sync.WaitGroup
	sem := make(chan struct{}, d.cfg.Concurrency)

	for _, r := range batch {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			res.failure(r.Address(), ctx.Err())
			metrics.RecordDelivery(string(model.DeliveryFailed))
			continue
		}
		wg.Add(1)
		go func(r model.Recipient) {
			defer wg.Done()
			defer func() { <-sem }()
			d.deliver(ctx, n, set, r, res)
		}(r)
	}
	wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, n *model.Newsletter, set *selector.Set, r model.Recipient, res *Result) {
	email := r.Address()
	fail := func(err error) {
		res.failure(email, err)
		metrics.RecordDelivery(string(model.DeliveryFailed))
		d.logger.Error("delivery failed", "newsletter", n.ID, "email", email, "error", err)
	}
	if err := ctx.Err(); err != nil {
		fail(err)
		return
	}

	var deliveryID string
	if sub, ok := r.(*model.Subscriber); ok {
		rec, err := d.store.BeginDelivery(ctx, n.ID, sub.ID)
		if err != nil {
			fail(fmt.Errorf("begin delivery: %w", err))
			return
		}
		switch rec.Status {
		case model.DeliverySent:
			// delivered by an earlier, interrupted run
			res.success()
			return
		case model.DeliveryFailed:
			fail(fmt.Errorf("earlier attempt failed: %s", rec.Error))
			return
		}
		deliveryID = rec.ID
	}

	sendErr := d.send(ctx, n, set, r, deliveryID)
	if deliveryID != "" {
		status := model.DeliverySent
		if sendErr != nil {
			status = model.DeliveryFailed
		}
		if err := d.store.FinishDelivery(context.WithoutCancel(ctx), deliveryID, status, sendErr); err != nil {
			d.logger.Error("record delivery", "delivery", deliveryID, "error", err)
		}
	}
	if sendErr != nil {
		fail(sendErr)
		return
	}
	res.success()
	metrics.RecordDelivery(string(model.DeliverySent))
}

func (d *Dispatcher) send(ctx context.Context, n *model.Newsletter, set *selector.Set, r model.Recipient, deliveryID string) error {
	personal := selector.Personalize(set, r.SportPreferences(), d.now().UTC())
	msg, err := d.renderer.RenderEmail(n, personal, r, deliveryID)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	return d.notifier.Send(sendCtx, msg)
}
