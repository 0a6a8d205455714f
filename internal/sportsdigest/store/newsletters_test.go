package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
)

func seedNewsletter(t *testing.T, s *Store, edition time.Time) *model.Newsletter {
	t.Helper()
	ctx := context.Background()
	a := article("Lead story", "https://espn.com/lead", model.Soccer, testNow.Add(-time.Hour))
	_, err := s.UpsertArticle(ctx, a)
	require.NoError(t, err)
	f := &model.Fixture{
		Sport: model.Soccer, HomeTeam: "Liverpool", AwayTeam: "Everton",
		MatchDate: testNow.Add(72 * time.Hour), Status: model.StatusScheduled,
	}
	_, err = s.UpsertFixture(ctx, f)
	require.NoError(t, err)

	n := &model.Newsletter{
		Title:             "Your Weekly Sports Digest",
		EditionDate:       edition,
		FeaturedArticleID: a.ID,
		ArticleIDs:        []string{a.ID},
		FixtureIDs:        []string{f.ID},
		Content:           "# digest",
		HTMLContent:       "<h1>digest</h1>",
		Metadata:          model.Metadata{Edition: "Week 10, 2024", TotalArticles: 1, TotalFixtures: 1},
	}
	require.NoError(t, s.CreateNewsletter(ctx, n))
	return n
}

func TestCreateNewsletterAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	edition := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	n := seedNewsletter(t, s, edition)

	got, err := s.NewsletterByEdition(ctx, edition)
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, model.NewsletterDraft, got.Status)
	assert.Equal(t, n.ArticleIDs, got.ArticleIDs)
	assert.Equal(t, n.FixtureIDs, got.FixtureIDs)
	assert.Equal(t, "Week 10, 2024", got.Metadata.Edition)
	assert.True(t, got.EditionDate.Equal(edition))
	assert.Nil(t, got.SentAt)

	_, err = s.NewsletterByEdition(ctx, edition.AddDate(0, 0, 7))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateNewsletterDuplicateEdition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	edition := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := seedNewsletter(t, s, edition)

	dup := &model.Newsletter{Title: "again", EditionDate: edition, ArticleIDs: first.ArticleIDs}
	err := s.CreateNewsletter(ctx, dup)
	require.ErrorIs(t, err, ErrDuplicateEdition)

	_, err = s.Newsletter(ctx, dup.ID)
	assert.ErrorIs(t, err, ErrNotFound, "failed create must leave no row")

	// a failed edition frees the date
	require.NoError(t, s.TransitionNewsletter(ctx, first.ID, model.NewsletterDraft, model.NewsletterFailed))
	retry := &model.Newsletter{Title: "retry", EditionDate: edition}
	require.NoError(t, s.CreateNewsletter(ctx, retry))
}

func TestNewsletterTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	n := seedNewsletter(t, s, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC))

	err := s.MarkNewsletterSent(ctx, n.ID, 3)
	assert.ErrorIs(t, err, ErrInvalidTransition, "draft cannot be marked sent")

	err = s.TransitionNewsletter(ctx, n.ID, model.NewsletterSent, model.NewsletterDraft)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, s.TransitionNewsletter(ctx, n.ID, model.NewsletterDraft, model.NewsletterScheduled))
	err = s.TransitionNewsletter(ctx, n.ID, model.NewsletterDraft, model.NewsletterScheduled)
	assert.ErrorIs(t, err, ErrInvalidTransition, "stale from status must lose")

	require.NoError(t, s.MarkNewsletterSent(ctx, n.ID, 3))
	got, err := s.Newsletter(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NewsletterSent, got.Status)
	assert.Equal(t, 3, got.RecipientCount)
	require.NotNil(t, got.SentAt)
	assert.True(t, got.SentAt.Equal(testNow))

	sent, err := s.SentNewslettersSince(ctx, testNow.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, n.ID, sent[0].ID)
}

func TestSubscribers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub := &model.Subscriber{Email: " Fan@Example.com ", Name: "Fan",
		Preferences: model.Preferences{Sports: []model.Sport{model.Rugby}}}
	require.NoError(t, s.AddSubscriber(ctx, sub))
	assert.Equal(t, "fan@example.com", sub.Email)
	assert.NotEmpty(t, sub.Token)

	err := s.AddSubscriber(ctx, &model.Subscriber{Email: "fan@example.com"})
	assert.ErrorIs(t, err, ErrSubscriberExists)

	byToken, err := s.SubscriberByToken(ctx, sub.Token)
	require.NoError(t, err)
	assert.Equal(t, []model.Sport{model.Rugby}, byToken.Preferences.Sports)

	gone, err := s.Unsubscribe(ctx, sub.Token)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriberUnsubscribed, gone.Status)

	active, err := s.ActiveSubscribers(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	// an unsubscribed address stays unsubscribed
	again := &model.Subscriber{Email: "fan@example.com", Name: "Fan Again"}
	assert.ErrorIs(t, s.AddSubscriber(ctx, again), ErrUnsubscribed)
	assert.Empty(t, again.ID)

	all, err := s.ListSubscribers(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.SubscriberUnsubscribed, all[0].Status)
	assert.Equal(t, "Fan", all[0].Name)

	_, err = s.SubscriberByToken(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UnsubscribeEmail(ctx, "other@example.com"), ErrNotFound)
}

func TestDeliveryLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	n := seedNewsletter(t, s, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC))

	var subs []*model.Subscriber
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		sub := &model.Subscriber{Email: email}
		require.NoError(t, s.AddSubscriber(ctx, sub))
		subs = append(subs, sub)
	}

	d1, err := s.BeginDelivery(ctx, n.ID, subs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryPending, d1.Status)
	same, err := s.BeginDelivery(ctx, n.ID, subs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, d1.ID, same.ID)

	d2, err := s.BeginDelivery(ctx, n.ID, subs[1].ID)
	require.NoError(t, err)
	d3, err := s.BeginDelivery(ctx, n.ID, subs[2].ID)
	require.NoError(t, err)

	require.NoError(t, s.FinishDelivery(ctx, d1.ID, model.DeliverySent, nil))
	require.NoError(t, s.FinishDelivery(ctx, d2.ID, model.DeliveryFailed, errors.New("smtp: 550 mailbox unavailable")))
	assert.ErrorIs(t, s.FinishDelivery(ctx, "missing", model.DeliverySent, nil), ErrNotFound)
	assert.ErrorIs(t, s.FinishDelivery(ctx, d2.ID, model.DeliverySent, nil), ErrDeliveryFinished, "failed is terminal")
	assert.ErrorIs(t, s.FinishDelivery(ctx, d1.ID, model.DeliveryFailed, errors.New("late")), ErrDeliveryFinished)

	failed, err := s.Delivery(ctx, d2.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryFailed, failed.Status)
	assert.Contains(t, failed.Error, "550")
	assert.Nil(t, failed.SentAt)

	first, err := s.RecordOpen(ctx, d1.ID)
	require.NoError(t, err)
	assert.True(t, first)
	second, err := s.RecordOpen(ctx, d1.ID)
	require.NoError(t, err)
	assert.False(t, second, "second open is a no-op")
	_, err = s.RecordOpen(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.RecordClick(ctx, d1.ID, "https://espn.com/lead"))
	require.NoError(t, s.RecordClick(ctx, d1.ID, "https://espn.com/lead"))
	require.NoError(t, s.RecordClick(ctx, d3.ID, "https://bbc.co.uk/x"))
	assert.ErrorIs(t, s.RecordClick(ctx, "missing", "x"), ErrNotFound)

	rec, err := s.Delivery(ctx, d1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://espn.com/lead"}, rec.ClickedLinks)
	assert.Equal(t, 2, rec.ClickCount)
	require.NotNil(t, rec.LastClickedAt)
	require.NotNil(t, rec.OpenedAt)

	implied, err := s.Delivery(ctx, d3.ID)
	require.NoError(t, err)
	assert.NotNil(t, implied.OpenedAt, "a click implies an open")

	st, err := s.DeliveryStats(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryStats{Total: 3, Sent: 1, Failed: 1, Pending: 1, Opened: 2, Clicked: 2}, *st)
}

func TestAnalyticsUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	n := seedNewsletter(t, s, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC))

	a := &model.NewsletterAnalytics{NewsletterID: n.ID, TotalSent: 10, Delivered: 9, OpenRate: 50}
	require.NoError(t, s.SaveAnalytics(ctx, a))
	a.OpenRate = 60
	require.NoError(t, s.SaveAnalytics(ctx, a))

	rows, err := s.ListAnalytics(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, n.Title, rows[0].Title)
	assert.InDelta(t, 60.0, rows[0].OpenRate, 0.001)
	assert.Equal(t, 9, rows[0].Delivered)
}
