package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
)

// SportSummary holds per-sport counts and the most recent timestamps.
type SportSummary struct {
	Articles        int        `json:"articles"`
	Fixtures        int        `json:"fixtures"`
	LatestArticle   *time.Time `json:"latest_article,omitempty"`
	LatestFixture   *time.Time `json:"latest_fixture_update,omitempty"`
	UpcomingMatches int        `json:"upcoming_fixtures"`
}

// Summary is a snapshot of stored content.
type Summary struct {
	TotalArticles     int                          `json:"total_articles"`
	TotalFixtures     int                          `json:"total_fixtures"`
	ActiveSubscribers int                          `json:"active_subscribers"`
	Newsletters       int                          `json:"newsletters"`
	LatestArticle     *time.Time                   `json:"latest_article,omitempty"`
	LatestFixture     *time.Time                   `json:"latest_fixture_update,omitempty"`
	BySport           map[model.Sport]SportSummary `json:"by_sport"`
	GeneratedAt       time.Time                    `json:"generated_at"`
}

// Summary reports per-sport counts, totals and most recent timestamps.
func (s *Store) Summary(ctx context.Context) (*Summary, error) {
	now := s.timestamp()
	sum := &Summary{BySport: make(map[model.Sport]SportSummary), GeneratedAt: now}

	q, args, err := s.db.Builder().
		Select("sport", "COUNT(*)", "MAX(published_at)").
		From("articles").GroupBy("sport").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("summarise articles: %w", err)
	}
	for rows.Next() {
		var sport string
		var n int
		var latest any
		if err := rows.Scan(&sport, &n, &latest); err != nil {
			rows.Close()
			return nil, err
		}
		ss := sum.BySport[model.Sport(sport)]
		ss.Articles = n
		ss.LatestArticle = aggregateTime(latest)
		sum.BySport[model.Sport(sport)] = ss
		sum.TotalArticles += n
		sum.LatestArticle = later(sum.LatestArticle, ss.LatestArticle)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	q, args, err = s.db.Builder().
		Select("sport", "COUNT(*)", "MAX(updated_at)").
		Column("SUM(CASE WHEN match_date >= ? AND status = ? THEN 1 ELSE 0 END)", now, string(model.StatusScheduled)).
		From("fixtures").GroupBy("sport").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err = s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("summarise fixtures: %w", err)
	}
	for rows.Next() {
		var sport string
		var n, up int
		var latest any
		if err := rows.Scan(&sport, &n, &latest, &up); err != nil {
			rows.Close()
			return nil, err
		}
		ss := sum.BySport[model.Sport(sport)]
		ss.Fixtures = n
		ss.UpcomingMatches = up
		ss.LatestFixture = aggregateTime(latest)
		sum.BySport[model.Sport(sport)] = ss
		sum.TotalFixtures += n
		sum.LatestFixture = later(sum.LatestFixture, ss.LatestFixture)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if sum.ActiveSubscribers, err = s.count(ctx, "subscribers", sq.Eq{"status": string(model.SubscriberActive)}); err != nil {
		return nil, err
	}
	if sum.Newsletters, err = s.count(ctx, "newsletters", nil); err != nil {
		return nil, err
	}
	return sum, nil
}

func later(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b != nil && b.After(*a) {
		return b
	}
	return a
}

func (s *Store) count(ctx context.Context, table string, where sq.Sqlizer) (int, error) {
	b := s.db.Builder().Select("COUNT(*)").From(table)
	if where != nil {
		b = b.Where(where)
	}
	q, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// PurgeResult reports the rows removed by Purge.
type PurgeResult struct {
	DeletedArticles int64 `json:"deleted_articles"`
	DeletedFixtures int64 `json:"deleted_fixtures"`
}

// Purge deletes news articles published before cutoff and completed fixtures
// played before cutoff. Scheduled, live, postponed and cancelled fixtures are kept.
func (s *Store) Purge(ctx context.Context, olderThan time.Duration) (*PurgeResult, error) {
	cutoff := dbTime(s.now().Add(-olderThan))
	res := &PurgeResult{}

	q, args, err := s.db.Builder().Delete("articles").
		Where(sq.Eq{"kind": string(model.KindNews)}).
		Where(sq.Lt{"published_at": cutoff}).
		ToSql()
	if err != nil {
		return nil, err
	}
	r, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("purge articles: %w", err)
	}
	res.DeletedArticles, _ = r.RowsAffected()

	q, args, err = s.db.Builder().Delete("fixtures").
		Where(sq.Eq{"status": string(model.StatusCompleted)}).
		Where(sq.Lt{"match_date": cutoff}).
		ToSql()
	if err != nil {
		return nil, err
	}
	r, err = s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("purge fixtures: %w", err)
	}
	res.DeletedFixtures, _ = r.RowsAffected()

	s.logger.Info("purged old content", "cutoff", cutoff,
		"articles", res.DeletedArticles, "fixtures", res.DeletedFixtures)
	return res, nil
}

// Activity is the database part of the health check.
type Activity struct {
	RecentArticles   int  `json:"recent_articles"`
	UpcomingFixtures int  `json:"upcoming_fixtures"`
	Healthy          bool `json:"healthy"`
}

// RecentActivity counts articles published in the last 7 days and scheduled
// fixtures from now on. The database is healthy when either is non-zero.
func (s *Store) RecentActivity(ctx context.Context) (*Activity, error) {
	now := s.timestamp()
	if err := s.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	var (
		a   Activity
		err error
	)
	a.RecentArticles, err = s.count(ctx, "articles", sq.GtOrEq{"published_at": now.AddDate(0, 0, -7)})
	if err != nil {
		return nil, err
	}
	a.UpcomingFixtures, err = s.count(ctx, "fixtures", sq.And{
		sq.GtOrEq{"match_date": now},
		sq.Eq{"status": string(model.StatusScheduled)},
	})
	if err != nil {
		return nil, err
	}
	a.Healthy = a.RecentArticles > 0 || a.UpcomingFixtures > 0
	return &a, nil
}
