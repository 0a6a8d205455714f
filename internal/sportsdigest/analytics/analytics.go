// Package analytics computes newsletter engagement rates and exports them.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
)

// Store is the persistence the calculator needs.
type Store interface {
	SentNewslettersSince(ctx context.Context, since time.Time) ([]*model.Newsletter, error)
	DeliveryStats(ctx context.Context, newsletterID string) (*model.DeliveryStats, error)
	SaveAnalytics(ctx context.Context, a *model.NewsletterAnalytics) error
}

// Calculate derives the rates of one newsletter, in percent rounded to two
// decimals. Delivery and bounce rates are over all deliveries, open and click
// rates over delivered ones. A zero denominator gives 0.
func Calculate(newsletterID string, stats model.DeliveryStats) model.NewsletterAnalytics {
	a := model.NewsletterAnalytics{
		NewsletterID: newsletterID,
		TotalSent:    stats.Total,
		Delivered:    stats.Sent,
		Opened:       stats.Opened,
		Clicked:      stats.Clicked,
		Failed:       stats.Failed,
		Bounced:      stats.Bounced,
	}
	a.DeliveryRate = percent(stats.Sent, stats.Total)
	a.BounceRate = percent(stats.Bounced, stats.Total)
	a.OpenRate = percent(stats.Opened, stats.Sent)
	a.ClickRate = percent(stats.Clicked, stats.Sent)
	return a
}

func percent(n, of int) float64 {
	if of == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(of)*10000) / 100
}

// Calculator recomputes stored analytics.
type Calculator struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewCalculator(st Store) *Calculator {
	return &Calculator{store: st, logger: slog.Default(), now: time.Now}
}

// Recompute refreshes the analytics of every newsletter sent in the last
// window. A failing newsletter is logged and skipped.
func (c *Calculator) Recompute(ctx context.Context, window time.Duration) ([]model.NewsletterAnalytics, error) {
	sent, err := c.store.SentNewslettersSince(ctx, c.now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("list sent newsletters: %w", err)
	}
	out := make([]model.NewsletterAnalytics, 0, len(sent))
	for _, n := range sent {
		stats, err := c.store.DeliveryStats(ctx, n.ID)
		if err != nil {
			c.logger.Error("delivery stats", "newsletter", n.ID, "error", err)
			continue
		}
		a := Calculate(n.ID, *stats)
		a.Title = n.Title
		if err := c.store.SaveAnalytics(ctx, &a); err != nil {
			c.logger.Error("save analytics", "newsletter", n.ID, "error", err)
			continue
		}
		out = append(out, a)
	}
	c.logger.Info("analytics recomputed", "newsletters", len(out))
	return out, nil
}
