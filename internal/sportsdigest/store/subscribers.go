package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
	"github.com/RobinCoderZhao/sports-digest/pkg/storage"
)

var subscriberColumns = []string{"id", "email", "name", "status", "preferences", "token", "subscribed_at"}

// AddSubscriber stores a new active subscriber. An existing active address
// yields ErrSubscriberExists and an inactive or unsubscribed one
// ErrUnsubscribed; status never moves back to active. On success sub carries
// the stored id and token.
func (s *Store) AddSubscriber(ctx context.Context, sub *model.Subscriber) error {
	sub.Email = strings.ToLower(strings.TrimSpace(sub.Email))
	if sub.Email == "" {
		return &ValidationError{Field: "email"}
	}
	prefs, err := json.Marshal(sub.Preferences)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	existing, err := s.subscriberBy(ctx, sq.Eq{"email": sub.Email})
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return err
	case existing.Status == model.SubscriberActive:
		return fmt.Errorf("%w: %s", ErrSubscriberExists, sub.Email)
	default:
		return fmt.Errorf("%w: %s", ErrUnsubscribed, sub.Email)
	}

	now := s.timestamp()
	sub.ID = uuid.NewString()
	sub.Token = uuid.NewString()
	sub.Status = model.SubscriberActive
	sub.SubscribedAt = now
	q, args, err := s.db.Builder().Insert("subscribers").
		Columns(append(subscriberColumns, "updated_at")...).
		Values(sub.ID, sub.Email, sub.Name, string(sub.Status), string(prefs), sub.Token, now, now).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		if storage.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrSubscriberExists, sub.Email)
		}
		return fmt.Errorf("insert subscriber: %w", err)
	}
	return nil
}

// Unsubscribe marks the subscriber holding token as unsubscribed.
func (s *Store) Unsubscribe(ctx context.Context, token string) (*model.Subscriber, error) {
	sub, err := s.SubscriberByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.setSubscriberStatus(ctx, sub.ID, model.SubscriberUnsubscribed); err != nil {
		return nil, err
	}
	sub.Status = model.SubscriberUnsubscribed
	return sub, nil
}

// UnsubscribeEmail marks the subscriber with email as unsubscribed.
func (s *Store) UnsubscribeEmail(ctx context.Context, email string) error {
	sub, err := s.subscriberBy(ctx, sq.Eq{"email": strings.ToLower(strings.TrimSpace(email))})
	if err != nil {
		return err
	}
	return s.setSubscriberStatus(ctx, sub.ID, model.SubscriberUnsubscribed)
}

func (s *Store) setSubscriberStatus(ctx context.Context, id string, status model.SubscriberStatus) error {
	q, args, err := s.db.Builder().Update("subscribers").
		Set("status", string(status)).
		Set("updated_at", s.timestamp()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("update subscriber: %w", err)
	}
	return nil
}

// SubscriberByToken looks a subscriber up by capability token.
func (s *Store) SubscriberByToken(ctx context.Context, token string) (*model.Subscriber, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return s.subscriberBy(ctx, sq.Eq{"token": token})
}

// Subscriber looks a subscriber up by id.
func (s *Store) Subscriber(ctx context.Context, id string) (*model.Subscriber, error) {
	return s.subscriberBy(ctx, sq.Eq{"id": id})
}

// ActiveSubscribers returns every active subscriber ordered by subscription time.
func (s *Store) ActiveSubscribers(ctx context.Context) ([]*model.Subscriber, error) {
	return s.ListSubscribers(ctx, model.SubscriberActive)
}

// ListSubscribers returns subscribers with the given status, or all when status is empty.
func (s *Store) ListSubscribers(ctx context.Context, status model.SubscriberStatus) ([]*model.Subscriber, error) {
	b := s.db.Builder().Select(subscriberColumns...).From("subscribers")
	if status != "" {
		b = b.Where(sq.Eq{"status": string(status)})
	}
	q, args, err := b.OrderBy("subscribed_at", "id").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	var out []*model.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) subscriberBy(ctx context.Context, where sq.Eq) (*model.Subscriber, error) {
	q, args, err := s.db.Builder().Select(subscriberColumns...).From("subscribers").Where(where).ToSql()
	if err != nil {
		return nil, err
	}
	sub, err := scanSubscriber(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sub, err
}

func scanSubscriber(row scanner) (*model.Subscriber, error) {
	var sub model.Subscriber
	var status, prefs string
	if err := row.Scan(&sub.ID, &sub.Email, &sub.Name, &status, &prefs, &sub.Token, &sub.SubscribedAt); err != nil {
		return nil, fmt.Errorf("scan subscriber: %w", err)
	}
	sub.Status = model.SubscriberStatus(status)
	sub.SubscribedAt = sub.SubscribedAt.UTC()
	if prefs != "" {
		if err := json.Unmarshal([]byte(prefs), &sub.Preferences); err != nil {
			return nil, fmt.Errorf("decode preferences of %s: %w", sub.ID, err)
		}
	}
	return &sub, nil
}
