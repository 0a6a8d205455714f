package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
)

var articleColumns = []string{
	"id", "title", "content", "summary", "sport", "kind", "source_url", "source_name",
	"image_url", "published_at", "ingested_at", "is_featured", "is_premium",
}

var fixtureColumns = []string{
	"id", "sport", "home_team", "away_team", "match_date", "venue", "competition",
	"status", "home_score", "away_score", "source_url", "updated_at",
}

func validateArticle(a *model.Article) error {
	if a.Title == "" {
		return &ValidationError{Field: "title"}
	}
	checks := []struct {
		field, value string
		limit        int
	}{
		{"title", a.Title, model.MaxTitleLen},
		{"summary", a.Summary, model.MaxSummaryLen},
		{"source_name", a.SourceName, model.MaxSourceNameLen},
		{"source_url", a.SourceURL, model.MaxURLLen},
		{"image_url", a.ImageURL, model.MaxURLLen},
	}
	for _, c := range checks {
		if err := checkLen(c.field, c.value, c.limit); err != nil {
			return err
		}
	}
	return nil
}

// UpsertArticle inserts an article unless one with the same (title, source_url)
// exists. Existing articles are never modified. On return a.ID holds the id of
// the stored row.
func (s *Store) UpsertArticle(ctx context.Context, a *model.Article) (Outcome, error) {
	if err := validateArticle(a); err != nil {
		return Skipped, err
	}
	if err := s.requireSport(ctx, a.Sport); err != nil {
		return Skipped, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Kind == "" {
		a.Kind = model.KindNews
	}
	if a.IngestedAt.IsZero() {
		a.IngestedAt = s.timestamp()
	}
	if a.PublishedAt.IsZero() {
		a.PublishedAt = a.IngestedAt
	}
	a.PublishedAt = dbTime(a.PublishedAt)
	a.IngestedAt = dbTime(a.IngestedAt)

	q, args, err := s.db.Builder().
		Insert("articles").
		Columns(articleColumns...).
		Values(a.ID, a.Title, a.Content, a.Summary, string(a.Sport), string(a.Kind), a.SourceURL,
			a.SourceName, a.ImageURL, a.PublishedAt, a.IngestedAt, a.Featured, a.Premium).
		Suffix("ON CONFLICT (title, source_url) DO NOTHING").
		ToSql()
	if err != nil {
		return Skipped, err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return Skipped, fmt.Errorf("insert article: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return Created, nil
	}

	q, args, err = s.db.Builder().
		Select("id").From("articles").
		Where(sq.Eq{"title": a.Title, "source_url": a.SourceURL}).
		ToSql()
	if err != nil {
		return Skipped, err
	}
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&a.ID); err != nil {
		return Skipped, fmt.Errorf("lookup article: %w", err)
	}
	return Skipped, nil
}

func validateFixture(f *model.Fixture) error {
	if f.HomeTeam == "" {
		return &ValidationError{Field: "home_team"}
	}
	if f.AwayTeam == "" {
		return &ValidationError{Field: "away_team"}
	}
	if f.MatchDate.IsZero() {
		return &ValidationError{Field: "match_date"}
	}
	if !f.Status.Valid() {
		return &ValidationError{Field: "status"}
	}
	checks := []struct {
		field, value string
		limit        int
	}{
		{"home_team", f.HomeTeam, model.MaxTeamLen},
		{"away_team", f.AwayTeam, model.MaxTeamLen},
		{"venue", f.Venue, model.MaxVenueLen},
		{"competition", f.Competition, model.MaxCompetitionLen},
		{"status", string(f.Status), model.MaxStatusLen},
		{"source_url", f.SourceURL, model.MaxURLLen},
	}
	for _, c := range checks {
		if err := checkLen(c.field, c.value, c.limit); err != nil {
			return err
		}
	}
	return nil
}

// UpsertFixture inserts a fixture or refreshes venue, competition, status and
// scores of the one with the same identity. Each statement is atomic on its
// own so the operation is safe to retry.
func (s *Store) UpsertFixture(ctx context.Context, f *model.Fixture) (Outcome, error) {
	if err := validateFixture(f); err != nil {
		return Skipped, err
	}
	if err := s.requireSport(ctx, f.Sport); err != nil {
		return Skipped, err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := s.timestamp()
	f.MatchDate = dbTime(f.MatchDate)
	f.UpdatedAt = now

	q, args, err := s.db.Builder().
		Insert("fixtures").
		Columns(append(fixtureColumns, "created_at")...).
		Values(f.ID, string(f.Sport), f.HomeTeam, f.AwayTeam, f.MatchDate, f.Venue, f.Competition,
			string(f.Status), f.HomeScore, f.AwayScore, f.SourceURL, now, now).
		Suffix("ON CONFLICT (sport, home_team, away_team, match_date) DO NOTHING").
		ToSql()
	if err != nil {
		return Skipped, err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return Skipped, fmt.Errorf("insert fixture: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return Created, nil
	}

	identity := sq.Eq{
		"sport":      string(f.Sport),
		"home_team":  f.HomeTeam,
		"away_team":  f.AwayTeam,
		"match_date": f.MatchDate,
	}
	q, args, err = s.db.Builder().
		Update("fixtures").
		Set("venue", f.Venue).
		Set("competition", f.Competition).
		Set("status", string(f.Status)).
		Set("home_score", f.HomeScore).
		Set("away_score", f.AwayScore).
		Set("source_url", f.SourceURL).
		Set("updated_at", now).
		Where(identity).
		ToSql()
	if err != nil {
		return Skipped, err
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return Skipped, fmt.Errorf("update fixture: %w", err)
	}

	q, args, err = s.db.Builder().Select("id").From("fixtures").Where(identity).ToSql()
	if err != nil {
		return Skipped, err
	}
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&f.ID); err != nil {
		return Skipped, fmt.Errorf("lookup fixture: %w", err)
	}
	return Updated, nil
}

// ArticleOrder selects the sort applied by QueryArticles.
type ArticleOrder int

const (
	// OrderRanked sorts premium first, then featured, then newest, then id.
	OrderRanked ArticleOrder = iota
	OrderNewest
)

// ArticleFilter narrows QueryArticles. Zero fields do not filter.
type ArticleFilter struct {
	IDs      []string
	Sports   []model.Sport
	Kind     model.ArticleKind
	Since    time.Time
	Until    time.Time
	Featured bool
	Premium  bool
	Order    ArticleOrder
	Limit    int
}

// QueryArticles returns the articles matching filter.
func (s *Store) QueryArticles(ctx context.Context, filter ArticleFilter) ([]model.Article, error) {
	b := s.db.Builder().Select(articleColumns...).From("articles")
	if len(filter.IDs) > 0 {
		b = b.Where(sq.Eq{"id": filter.IDs})
	}
	if len(filter.Sports) > 0 {
		b = b.Where(sq.Eq{"sport": sportStrings(filter.Sports)})
	}
	if filter.Kind != "" {
		b = b.Where(sq.Eq{"kind": string(filter.Kind)})
	}
	if !filter.Since.IsZero() {
		b = b.Where(sq.GtOrEq{"published_at": dbTime(filter.Since)})
	}
	if !filter.Until.IsZero() {
		b = b.Where(sq.LtOrEq{"published_at": dbTime(filter.Until)})
	}
	if filter.Featured {
		b = b.Where(sq.Eq{"is_featured": true})
	}
	if filter.Premium {
		b = b.Where(sq.Eq{"is_premium": true})
	}
	switch filter.Order {
	case OrderNewest:
		b = b.OrderBy("published_at DESC", "id")
	default:
		b = b.OrderBy("is_premium DESC", "is_featured DESC", "published_at DESC", "id")
	}
	if filter.Limit > 0 {
		b = b.Limit(uint64(filter.Limit))
	}

	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var out []model.Article
	for rows.Next() {
		var a model.Article
		var sport, kind string
		if err := rows.Scan(&a.ID, &a.Title, &a.Content, &a.Summary, &sport, &kind, &a.SourceURL,
			&a.SourceName, &a.ImageURL, &a.PublishedAt, &a.IngestedAt, &a.Featured, &a.Premium); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		a.Sport = model.Sport(sport)
		a.Kind = model.ArticleKind(kind)
		a.PublishedAt = a.PublishedAt.UTC()
		a.IngestedAt = a.IngestedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// FixtureFilter narrows QueryFixtures. Zero fields do not filter.
type FixtureFilter struct {
	IDs      []string
	Sports   []model.Sport
	Statuses []model.FixtureStatus
	From     time.Time
	To       time.Time
	Limit    int
}

// QueryFixtures returns matching fixtures ordered by match date, then id.
func (s *Store) QueryFixtures(ctx context.Context, filter FixtureFilter) ([]model.Fixture, error) {
	b := s.db.Builder().Select(fixtureColumns...).From("fixtures")
	if len(filter.IDs) > 0 {
		b = b.Where(sq.Eq{"id": filter.IDs})
	}
	if len(filter.Sports) > 0 {
		b = b.Where(sq.Eq{"sport": sportStrings(filter.Sports)})
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		b = b.Where(sq.Eq{"status": statuses})
	}
	if !filter.From.IsZero() {
		b = b.Where(sq.GtOrEq{"match_date": dbTime(filter.From)})
	}
	if !filter.To.IsZero() {
		b = b.Where(sq.LtOrEq{"match_date": dbTime(filter.To)})
	}
	b = b.OrderBy("match_date", "id")
	if filter.Limit > 0 {
		b = b.Limit(uint64(filter.Limit))
	}

	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query fixtures: %w", err)
	}
	defer rows.Close()

	var out []model.Fixture
	for rows.Next() {
		f, err := scanFixture(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFixture(row scanner) (model.Fixture, error) {
	var f model.Fixture
	var sport, status string
	var home, away sql.NullInt64
	if err := row.Scan(&f.ID, &sport, &f.HomeTeam, &f.AwayTeam, &f.MatchDate, &f.Venue,
		&f.Competition, &status, &home, &away, &f.SourceURL, &f.UpdatedAt); err != nil {
		return f, fmt.Errorf("scan fixture: %w", err)
	}
	f.Sport = model.Sport(sport)
	f.Status = model.FixtureStatus(status)
	f.MatchDate = f.MatchDate.UTC()
	f.UpdatedAt = f.UpdatedAt.UTC()
	if home.Valid {
		v := int(home.Int64)
		f.HomeScore = &v
	}
	if away.Valid {
		v := int(away.Int64)
		f.AwayScore = &v
	}
	return f, nil
}

// Fixture returns one fixture by id.
func (s *Store) Fixture(ctx context.Context, id string) (*model.Fixture, error) {
	q, args, err := s.db.Builder().Select(fixtureColumns...).From("fixtures").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	f, err := scanFixture(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func sportStrings(sports []model.Sport) []string {
	out := make([]string, len(sports))
	for i, s := range sports {
		out[i] = string(s)
	}
	return out
}
