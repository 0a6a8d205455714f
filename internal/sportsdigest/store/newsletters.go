package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
	"github.com/RobinCoderZhao/sports-digest/pkg/storage"
)

var newsletterColumns = []string{
	"id", "title", "edition_date", "status", "featured_article_id", "content", "html_content",
	"metadata", "created_at", "sent_at", "recipient_count",
}

// CreateNewsletter inserts a draft newsletter and its article and fixture
// associations in one transaction. A second non-failed newsletter for the same
// edition date yields ErrDuplicateEdition and leaves nothing behind.
func (s *Store) CreateNewsletter(ctx context.Context, n *model.Newsletter) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = model.NewsletterDraft
	}
	n.CreatedAt = s.timestamp()
	meta, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	var featured any
	if n.FeaturedArticleID != "" {
		featured = n.FeaturedArticleID
	}

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		q, args, err := s.db.Builder().Insert("newsletters").
			Columns(newsletterColumns...).
			Values(n.ID, n.Title, n.EditionDate.Format(model.EditionLayout), string(n.Status), featured,
				n.Content, n.HTMLContent, string(meta), n.CreatedAt, nullTime(n.SentAt), n.RecipientCount).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			if storage.IsUniqueViolation(err) {
				return fmt.Errorf("%w %s", ErrDuplicateEdition, n.EditionDate.Format(model.EditionLayout))
			}
			return fmt.Errorf("insert newsletter: %w", err)
		}
		if err := s.associate(ctx, tx, "newsletter_articles", "article_id", n.ID, n.ArticleIDs); err != nil {
			return err
		}
		return s.associate(ctx, tx, "newsletter_fixtures", "fixture_id", n.ID, n.FixtureIDs)
	})
}

func (s *Store) associate(ctx context.Context, tx *sql.Tx, table, column, newsletterID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	b := s.db.Builder().Insert(table).Columns("newsletter_id", column, "position")
	for i, id := range ids {
		b = b.Values(newsletterID, id, i)
	}
	q, args, err := b.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// Newsletter loads a newsletter and its associations by id.
func (s *Store) Newsletter(ctx context.Context, id string) (*model.Newsletter, error) {
	return s.newsletterBy(ctx, sq.Eq{"id": id})
}

// NewsletterByEdition returns the non-failed newsletter for an edition date.
func (s *Store) NewsletterByEdition(ctx context.Context, edition time.Time) (*model.Newsletter, error) {
	return s.newsletterBy(ctx, sq.And{
		sq.Eq{"edition_date": edition.Format(model.EditionLayout)},
		sq.NotEq{"status": string(model.NewsletterFailed)},
	})
}

func (s *Store) newsletterBy(ctx context.Context, where sq.Sqlizer) (*model.Newsletter, error) {
	q, args, err := s.db.Builder().Select(newsletterColumns...).From("newsletters").Where(where).ToSql()
	if err != nil {
		return nil, err
	}
	n, err := scanNewsletter(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if n.ArticleIDs, err = s.associated(ctx, "newsletter_articles", "article_id", n.ID); err != nil {
		return nil, err
	}
	if n.FixtureIDs, err = s.associated(ctx, "newsletter_fixtures", "fixture_id", n.ID); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Store) associated(ctx context.Context, table, column, newsletterID string) ([]string, error) {
	q, args, err := s.db.Builder().Select(column).From(table).
		Where(sq.Eq{"newsletter_id": newsletterID}).
		OrderBy("position").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanNewsletter(row scanner) (*model.Newsletter, error) {
	var (
		n        model.Newsletter
		edition  string
		status   string
		featured sql.NullString
		meta     string
		sentAt   sql.NullTime
	)
	if err := row.Scan(&n.ID, &n.Title, &edition, &status, &featured, &n.Content, &n.HTMLContent,
		&meta, &n.CreatedAt, &sentAt, &n.RecipientCount); err != nil {
		return nil, fmt.Errorf("scan newsletter: %w", err)
	}
	n.Status = model.NewsletterStatus(status)
	n.FeaturedArticleID = featured.String
	n.CreatedAt = n.CreatedAt.UTC()
	n.SentAt = timePtr(sentAt)
	d, err := time.Parse(model.EditionLayout, edition)
	if err != nil {
		return nil, fmt.Errorf("parse edition date %q: %w", edition, err)
	}
	n.EditionDate = d
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &n.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", n.ID, err)
		}
	}
	return &n, nil
}

// TransitionNewsletter moves a newsletter from one status to another. The
// update is conditional on the current status so concurrent callers cannot
// both win.
func (s *Store) TransitionNewsletter(ctx context.Context, id string, from, to model.NewsletterStatus) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	q, args, err := s.db.Builder().Update("newsletters").
		Set("status", string(to)).
		Where(sq.Eq{"id": id, "status": string(from)}).
		ToSql()
	if err != nil {
		return err
	}
	return s.execTransition(ctx, id, from, to, q, args)
}

// MarkNewsletterSent moves a scheduled newsletter to sent and records the
// send time and recipient count.
func (s *Store) MarkNewsletterSent(ctx context.Context, id string, recipients int) error {
	now := s.timestamp()
	q, args, err := s.db.Builder().Update("newsletters").
		Set("status", string(model.NewsletterSent)).
		Set("sent_at", now).
		Set("recipient_count", recipients).
		Where(sq.Eq{"id": id, "status": string(model.NewsletterScheduled)}).
		ToSql()
	if err != nil {
		return err
	}
	return s.execTransition(ctx, id, model.NewsletterScheduled, model.NewsletterSent, q, args)
}

func (s *Store) execTransition(ctx context.Context, id string, from, to model.NewsletterStatus, q string, args []any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update newsletter status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		current, err := s.Newsletter(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s is %s, not %s (wanted %s)", ErrInvalidTransition, id, current.Status, from, to)
	}
	return nil
}

// SentNewslettersSince lists newsletters sent at or after since, newest first.
func (s *Store) SentNewslettersSince(ctx context.Context, since time.Time) ([]*model.Newsletter, error) {
	return s.listNewsletters(ctx, sq.And{
		sq.Eq{"status": string(model.NewsletterSent)},
		sq.GtOrEq{"sent_at": dbTime(since)},
	}, 0)
}

// ListNewsletters returns the most recent newsletters without their associations.
func (s *Store) ListNewsletters(ctx context.Context, limit int) ([]*model.Newsletter, error) {
	return s.listNewsletters(ctx, nil, limit)
}

func (s *Store) listNewsletters(ctx context.Context, where sq.Sqlizer, limit int) ([]*model.Newsletter, error) {
	b := s.db.Builder().Select(newsletterColumns...).From("newsletters")
	if where != nil {
		b = b.Where(where)
	}
	b = b.OrderBy("created_at DESC", "id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query newsletters: %w", err)
	}
	defer rows.Close()
	var out []*model.Newsletter
	for rows.Next() {
		n, err := scanNewsletter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
