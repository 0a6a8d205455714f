package dispatcher

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/compiler"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/selector"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/store"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/tracking"
	"github.com/RobinCoderZhao/sports-digest/pkg/notify"
	"github.com/RobinCoderZhao/sports-digest/pkg/storage"
)

// mockMailer records every message and fails for the listed addresses.
type mockMailer struct {
	mu     sync.Mutex
	sent   []notify.Message
	failOn map[string]bool
	onSend func(msg notify.Message)
}

func (m *mockMailer) Send(ctx context.Context, msg notify.Message) error {
	if m.onSend != nil {
		m.onSend(msg)
	}
	if m.failOn[msg.To] {
		return errors.New("smtp: 550 mailbox unavailable")
	}
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

func (m *mockMailer) to(addr string) (notify.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.sent {
		if msg.To == addr {
			return msg, true
		}
	}
	return notify.Message{}, false
}

type fixture struct {
	st   *store.Store
	sel  *selector.Selector
	comp *compiler.Compiler
	n    *model.Newsletter
	subs []*model.Subscriber
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(storage.Config{DSN: filepath.Join(t.TempDir(), "dispatch.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := store.New(db)
	require.NoError(t, st.Migrate(ctx))

	now := time.Now().UTC()
	for _, a := range []*model.Article{
		{Title: "Derby day", Sport: model.Soccer, SourceURL: "https://espn.com/derby", SourceName: "ESPN", PublishedAt: now.Add(-time.Hour), Premium: true},
		{Title: "Six Nations preview", Sport: model.Rugby, SourceURL: "https://rugby.example.com/6n", SourceName: "Rugby Pass", PublishedAt: now.Add(-3 * time.Hour)},
	} {
		_, err := st.UpsertArticle(ctx, a)
		require.NoError(t, err)
	}

	f := &fixture{st: st, sel: selector.New(st, selector.Limits{})}
	links := tracking.Links{BaseURL: "https://digest.example.com", Signer: tracking.NewLinkSigner("secret", 0)}
	f.comp, err = compiler.New(st, compiler.Config{}, links)
	require.NoError(t, err)

	set, err := f.sel.Select(ctx, 0, 0)
	require.NoError(t, err)
	f.n, err = f.comp.Compile(ctx, set, now)
	require.NoError(t, err)

	for _, s := range []*model.Subscriber{
		{Email: "a@example.com", Name: "Ann"},
		{Email: "b@example.com", Name: "Ben"},
		{Email: "c@example.com", Name: "Cat", Preferences: model.Preferences{Sports: []model.Sport{model.Rugby}}},
	} {
		require.NoError(t, st.AddSubscriber(ctx, s))
		f.subs = append(f.subs, s)
	}
	return f
}

func (f *fixture) dispatcher(m notify.Notifier, cfg Config) *Dispatcher {
	return New(f.st, f.sel, f.comp, m, cfg)
}

func TestDispatchContainsRecipientFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	mailer := &mockMailer{failOn: map[string]bool{"b@example.com": true}}

	res, err := f.dispatcher(mailer, Config{}).Dispatch(ctx, f.n, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Recipients)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "b@example.com", res.Errors[0].Email)
	assert.Contains(t, res.Errors[0].Error, "mailbox unavailable")

	stored, err := f.st.Newsletter(ctx, f.n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NewsletterSent, stored.Status)
	assert.Equal(t, 2, stored.RecipientCount)
	assert.NotNil(t, stored.SentAt)

	stats, err := f.st.DeliveryStats(ctx, f.n.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Sent)
	assert.Equal(t, 1, stats.Failed)
}

func TestDispatchPersonalisesAndTracks(t *testing.T) {
	f := setup(t)
	mailer := &mockMailer{}
	_, err := f.dispatcher(mailer, Config{Concurrency: 2}).Dispatch(context.Background(), f.n, Options{})
	require.NoError(t, err)

	all, ok := mailer.to("a@example.com")
	require.True(t, ok)
	assert.Contains(t, all.HTMLBody, "Derby day")
	assert.Contains(t, all.HTMLBody, "Six Nations preview")
	assert.Contains(t, all.HTMLBody, "https://digest.example.com/t/o/")
	assert.Contains(t, all.HTMLBody, "https://digest.example.com/unsubscribe/"+f.subs[0].Token)
	assert.Equal(t, f.n.Title, all.Title)

	rugby, ok := mailer.to("c@example.com")
	require.True(t, ok)
	assert.Contains(t, rugby.HTMLBody, "Six Nations preview")
	assert.NotContains(t, rugby.HTMLBody, "Derby day")
	assert.Contains(t, rugby.HTMLBody, "Hi Cat")
}

func TestDispatchNothingSentKeepsStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	mailer := &mockMailer{failOn: map[string]bool{"a@example.com": true, "b@example.com": true, "c@example.com": true}}

	res, err := f.dispatcher(mailer, Config{}).Dispatch(ctx, f.n, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Sent)
	assert.Equal(t, 3, res.Failed)

	stored, err := f.st.Newsletter(ctx, f.n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NewsletterScheduled, stored.Status)
	assert.Nil(t, stored.SentAt)

	// failed records are terminal, a second run does not resend them
	attempts := len(mailer.sent)
	mailer.failOn = nil
	res, err = f.dispatcher(mailer, Config{}).Dispatch(ctx, stored, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Sent)
	assert.Equal(t, 3, res.Failed)
	assert.Len(t, mailer.sent, attempts)

	stored, err = f.st.Newsletter(ctx, f.n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NewsletterScheduled, stored.Status)
}

func TestDispatchTestMode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	mailer := &mockMailer{}

	res, err := f.dispatcher(mailer, Config{}).Dispatch(ctx, f.n, Options{Test: &model.TestRecipient{Email: "qa@example.com"}})
	require.NoError(t, err)
	assert.True(t, res.Test)
	assert.Equal(t, 1, res.Sent)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "qa@example.com", mailer.sent[0].To)
	assert.NotContains(t, mailer.sent[0].HTMLBody, "/t/o/")

	stats, err := f.st.DeliveryStats(ctx, f.n.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)

	stored, err := f.st.Newsletter(ctx, f.n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NewsletterDraft, stored.Status)
}

func TestDispatchCancelledMidway(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mailer := &mockMailer{onSend: func(notify.Message) { cancel() }}

	res, err := f.dispatcher(mailer, Config{BatchSize: 1, Concurrency: 1}).Dispatch(ctx, f.n, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, res.Recipients, res.Sent+res.Failed)
	for _, e := range res.Errors {
		assert.Equal(t, context.Canceled.Error(), e.Error)
	}

	stored, err := f.st.Newsletter(context.Background(), f.n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NewsletterSent, stored.Status)
	assert.Equal(t, 1, stored.RecipientCount)
}

func TestDispatchSendTimeout(t *testing.T) {
	f := setup(t)
	slow := notify.NotifierFunc(func(ctx context.Context, msg notify.Message) error {
		if msg.To == "a@example.com" {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	res, err := f.dispatcher(slow, Config{SendTimeout: 20 * time.Millisecond}).Dispatch(context.Background(), f.n, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "a@example.com", res.Errors[0].Email)
	assert.Contains(t, res.Errors[0].Error, "deadline exceeded")
}

func TestWelcomeMessage(t *testing.T) {
	links := tracking.Links{BaseURL: "https://digest.example.com/"}
	mailer := &mockMailer{}
	w := NewWelcomer(mailer, links, "", Config{})
	sub := &model.Subscriber{Email: "new@example.com", Name: "Nia", Token: "tok-9",
		Preferences: model.Preferences{Sports: []model.Sport{model.Tennis, model.Golf}}}

	require.NoError(t, w.SendWelcome(context.Background(), sub))
	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, "Welcome to Sports Digest!", msg.Title)
	assert.Equal(t, "new@example.com", msg.To)
	assert.Contains(t, msg.Body, "Hi Nia")
	assert.Contains(t, msg.Body, "Your sports: tennis, golf")
	assert.Contains(t, msg.Body, "Unsubscribe: https://digest.example.com/unsubscribe/tok-9")
	assert.Contains(t, msg.HTMLBody, "https://digest.example.com/preferences/tok-9")
	assert.True(t, strings.HasPrefix(msg.HTMLBody, "<!DOCTYPE html>"))

	mailer.failOn = map[string]bool{"new@example.com": true}
	assert.Error(t, w.SendWelcome(context.Background(), sub))
}
