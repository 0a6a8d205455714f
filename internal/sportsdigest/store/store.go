// Package store persists the sports digest content, subscribers, newsletters
// and delivery records on top of pkg/storage.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
	"github.com/RobinCoderZhao/sports-digest/pkg/storage"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateEdition  = errors.New("newsletter already exists for edition")
	ErrUnknownSport      = errors.New("unknown sport category")
	ErrSubscriberExists  = errors.New("subscriber already exists")
	ErrUnsubscribed      = errors.New("address has unsubscribed")
	ErrInvalidTransition = errors.New("invalid newsletter status transition")
	ErrDeliveryFinished  = errors.New("delivery already finished")
)

// ValidationError rejects a value that does not fit its column.
type ValidationError struct {
	Field string
	Limit int
}

func (e *ValidationError) Error() string {
	if e.Limit == 0 {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return fmt.Sprintf("%s exceeds %d characters", e.Field, e.Limit)
}

// Outcome describes what an upsert did.
type Outcome int

const (
	Skipped Outcome = iota
	Created
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "skipped"
	}
}

// Store provides sports digest persistence.
type Store struct {
	db     *storage.DB
	logger *slog.Logger
	now    func() time.Time
}

// New wraps an opened database. Call Migrate before first use.
func New(db *storage.DB) *Store {
	return &Store{db: db, logger: slog.Default(), now: time.Now}
}

// DB exposes the underlying handle.
func (s *Store) DB() *storage.DB { return s.db }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema and seeds the sport catalog.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.Migrate(ctx, Schema); err != nil {
		return err
	}
	for i, c := range model.DefaultCatalog {
		q, args, err := s.db.Builder().
			Insert("sport_categories").
			Columns("name", "display_name", "icon", "is_active", "position").
			Values(string(c.Name), c.DisplayName, c.Icon, c.Active, i).
			Suffix("ON CONFLICT (name) DO NOTHING").
			ToSql()
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("seed sport %s: %w", c.Name, err)
		}
	}
	return nil
}

// Catalog returns every sport category in display order.
func (s *Store) Catalog(ctx context.Context) ([]model.SportCategory, error) {
	q, args, err := s.db.Builder().
		Select("name", "display_name", "icon", "is_active").
		From("sport_categories").
		OrderBy("position", "name").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	defer rows.Close()

	var out []model.SportCategory
	for rows.Next() {
		var c model.SportCategory
		var name string
		if err := rows.Scan(&name, &c.DisplayName, &c.Icon, &c.Active); err != nil {
			return nil, err
		}
		c.Name = model.Sport(name)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ActiveSports returns the names of active categories in display order.
func (s *Store) ActiveSports(ctx context.Context) ([]model.Sport, error) {
	cats, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Sport
	for _, c := range cats {
		if c.Active {
			out = append(out, c.Name)
		}
	}
	return out, nil
}

// HasSport reports whether sport is in the catalog, active or not.
func (s *Store) HasSport(ctx context.Context, sport model.Sport) (bool, error) {
	q, args, err := s.db.Builder().
		Select("1").From("sport_categories").
		Where(sq.Eq{"name": string(sport)}).
		ToSql()
	if err != nil {
		return false, err
	}
	var one int
	err = s.db.QueryRowContext(ctx, q, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) requireSport(ctx context.Context, sport model.Sport) error {
	ok, err := s.HasSport(ctx, sport)
	if err != nil {
		return fmt.Errorf("check sport: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSport, sport)
	}
	return nil
}

func (s *Store) timestamp() time.Time {
	return dbTime(s.now())
}

// dbTime normalises a time for storage so that text comparison in SQLite
// orders the same way as the instants.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return dbTime(*t)
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

var aggregateTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// aggregateTime converts the result of MAX()/MIN() over a timestamp column.
// SQLite returns those as text because the result has no declared type.
func aggregateTime(v any) *time.Time {
	var raw string
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		t := x.UTC()
		return &t
	case string:
		raw = x
	case []byte:
		raw = string(x)
	default:
		return nil
	}
	for _, layout := range aggregateTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func checkLen(field, value string, limit int) error {
	if len([]rune(value)) > limit {
		return &ValidationError{Field: field, Limit: limit}
	}
	return nil
}
