package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
	"github.com/RobinCoderZhao/sports-digest/pkg/storage"
)

var deliveryColumns = []string{
	"id", "newsletter_id", "subscriber_id", "status", "sent_at", "error_message",
	"opened_at", "clicked_links", "click_count", "last_clicked_at",
}

// BeginDelivery records a pending delivery for (newsletter, subscriber) and
// returns its id. Calling it again for the same pair returns the existing record.
func (s *Store) BeginDelivery(ctx context.Context, newsletterID, subscriberID string) (*model.DeliveryRecord, error) {
	q, args, err := s.db.Builder().Insert("deliveries").
		Columns("id", "newsletter_id", "subscriber_id", "status", "created_at").
		Values(uuid.NewString(), newsletterID, subscriberID, string(model.DeliveryPending), s.timestamp()).
		Suffix("ON CONFLICT (newsletter_id, subscriber_id) DO NOTHING").
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("insert delivery: %w", err)
	}
	return s.deliveryBy(ctx, s.db.DB, sq.Eq{"newsletter_id": newsletterID, "subscriber_id": subscriberID}, false)
}

// FinishDelivery stores the outcome of a send attempt. Only a pending record
// moves; a finished one yields ErrDeliveryFinished.
func (s *Store) FinishDelivery(ctx context.Context, id string, status model.DeliveryStatus, sendErr error) error {
	b := s.db.Builder().Update("deliveries").Set("status", string(status))
	if status == model.DeliverySent {
		b = b.Set("sent_at", s.timestamp()).Set("error_message", "")
	}
	if sendErr != nil {
		b = b.Set("error_message", truncateError(sendErr.Error()))
	}
	q, args, err := b.Where(sq.Eq{"id": id, "status": string(model.DeliveryPending)}).ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.Delivery(ctx, id); err != nil {
			return err
		}
		return ErrDeliveryFinished
	}
	return nil
}

func truncateError(msg string) string {
	const limit = 1000
	if r := []rune(msg); len(r) > limit {
		return string(r[:limit])
	}
	return msg
}

// Delivery loads one delivery record.
func (s *Store) Delivery(ctx context.Context, id string) (*model.DeliveryRecord, error) {
	return s.deliveryBy(ctx, s.db.DB, sq.Eq{"id": id}, false)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) deliveryBy(ctx context.Context, db queryRower, where sq.Eq, forUpdate bool) (*model.DeliveryRecord, error) {
	b := s.db.Builder().Select(deliveryColumns...).From("deliveries").Where(where)
	if forUpdate && s.db.DriverType() == storage.Postgres {
		b = b.Suffix("FOR UPDATE")
	}
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	var (
		d                        model.DeliveryRecord
		status, links            string
		sentAt, openedAt, lastAt sql.NullTime
	)
	err = db.QueryRowContext(ctx, q, args...).Scan(&d.ID, &d.NewsletterID, &d.SubscriberID, &status,
		&sentAt, &d.Error, &openedAt, &links, &d.ClickCount, &lastAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan delivery: %w", err)
	}
	d.Status = model.DeliveryStatus(status)
	d.SentAt, d.OpenedAt, d.LastClickedAt = timePtr(sentAt), timePtr(openedAt), timePtr(lastAt)
	if links != "" {
		if err := json.Unmarshal([]byte(links), &d.ClickedLinks); err != nil {
			return nil, fmt.Errorf("decode clicked links of %s: %w", d.ID, err)
		}
	}
	return &d, nil
}

// RecordOpen stores the first open of a delivery. It reports whether this call
// set the timestamp; later opens are no-ops.
func (s *Store) RecordOpen(ctx context.Context, deliveryID string) (bool, error) {
	q, args, err := s.db.Builder().Update("deliveries").
		Set("opened_at", s.timestamp()).
		Where(sq.Eq{"id": deliveryID, "opened_at": nil}).
		ToSql()
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("record open: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}
	if _, err := s.Delivery(ctx, deliveryID); err != nil {
		return false, err
	}
	return false, nil
}

// RecordClick appends url to the clicked links of a delivery (once per url),
// bumps the click count and the last-click time. A click implies an open.
func (s *Store) RecordClick(ctx context.Context, deliveryID, url string) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		d, err := s.deliveryBy(ctx, tx, sq.Eq{"id": deliveryID}, true)
		if err != nil {
			return err
		}
		if !slices.Contains(d.ClickedLinks, url) {
			d.ClickedLinks = append(d.ClickedLinks, url)
		}
		links, err := json.Marshal(d.ClickedLinks)
		if err != nil {
			return err
		}
		now := s.timestamp()
		b := s.db.Builder().Update("deliveries").
			Set("clicked_links", string(links)).
			Set("click_count", d.ClickCount+1).
			Set("last_clicked_at", now)
		if d.OpenedAt == nil {
			b = b.Set("opened_at", now)
		}
		q, args, err := b.Where(sq.Eq{"id": deliveryID}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("record click: %w", err)
		}
		return nil
	})
}

// DeliveryStats aggregates the delivery records of a newsletter.
func (s *Store) DeliveryStats(ctx context.Context, newsletterID string) (*model.DeliveryStats, error) {
	q, args, err := s.db.Builder().
		Select("status", "COUNT(*)", "COUNT(opened_at)").
		Column("SUM(CASE WHEN click_count > 0 THEN 1 ELSE 0 END)").
		From("deliveries").
		Where(sq.Eq{"newsletter_id": newsletterID}).
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query delivery stats: %w", err)
	}
	defer rows.Close()

	var st model.DeliveryStats
	for rows.Next() {
		var status string
		var n, opened, clicked int
		if err := rows.Scan(&status, &n, &opened, &clicked); err != nil {
			return nil, err
		}
		st.Total += n
		st.Opened += opened
		st.Clicked += clicked
		switch model.DeliveryStatus(status) {
		case model.DeliverySent:
			st.Sent += n
		case model.DeliveryFailed:
			st.Failed += n
		case model.DeliveryBounced:
			st.Bounced += n
		case model.DeliveryPending:
			st.Pending += n
		}
	}
	return &st, rows.Err()
}

// SaveAnalytics upserts the computed analytics of a newsletter.
func (s *Store) SaveAnalytics(ctx context.Context, a *model.NewsletterAnalytics) error {
	a.UpdatedAt = s.timestamp()
	q, args, err := s.db.Builder().Insert("newsletter_analytics").
		Columns("newsletter_id", "total_sent", "delivered", "opened", "clicked", "failed", "bounced",
			"delivery_rate", "open_rate", "click_rate", "bounce_rate", "updated_at").
		Values(a.NewsletterID, a.TotalSent, a.Delivered, a.Opened, a.Clicked, a.Failed, a.Bounced,
			a.DeliveryRate, a.OpenRate, a.ClickRate, a.BounceRate, a.UpdatedAt).
		Suffix(`ON CONFLICT (newsletter_id) DO UPDATE SET
			total_sent = excluded.total_sent, delivered = excluded.delivered,
			opened = excluded.opened, clicked = excluded.clicked,
			failed = excluded.failed, bounced = excluded.bounced,
			delivery_rate = excluded.delivery_rate, open_rate = excluded.open_rate,
			click_rate = excluded.click_rate, bounce_rate = excluded.bounce_rate,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("save analytics: %w", err)
	}
	return nil
}

// ListAnalytics returns stored analytics joined with newsletter titles, newest first.
func (s *Store) ListAnalytics(ctx context.Context, limit int) ([]model.NewsletterAnalytics, error) {
	b := s.db.Builder().
		Select("a.newsletter_id", "n.title", "a.total_sent", "a.delivered", "a.opened", "a.clicked",
			"a.failed", "a.bounced", "a.delivery_rate", "a.open_rate", "a.click_rate", "a.bounce_rate",
			"a.updated_at").
		From("newsletter_analytics a").
		Join("newsletters n ON n.id = a.newsletter_id").
		OrderBy("n.created_at DESC", "a.newsletter_id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query analytics: %w", err)
	}
	defer rows.Close()

	var out []model.NewsletterAnalytics
	for rows.Next() {
		var a model.NewsletterAnalytics
		if err := rows.Scan(&a.NewsletterID, &a.Title, &a.TotalSent, &a.Delivered, &a.Opened, &a.Clicked,
			&a.Failed, &a.Bounced, &a.DeliveryRate, &a.OpenRate, &a.ClickRate, &a.BounceRate, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan analytics: %w", err)
		}
		a.UpdatedAt = a.UpdatedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
