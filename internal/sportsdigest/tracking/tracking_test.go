package tracking

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	opened map[string]bool
	clicks map[string][]string
	err    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{opened: map[string]bool{}, clicks: map[string][]string{}}
}

func (f *fakeStore) RecordOpen(_ context.Context, id string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.opened[id] {
		return false, nil
	}
	f.opened[id] = true
	return true, nil
}

func (f *fakeStore) RecordClick(_ context.Context, id, url string) error {
	if f.err != nil {
		return f.err
	}
	f.clicks[id] = append(f.clicks[id], url)
	return nil
}

func TestSignVerify(t *testing.T) {
	s := NewLinkSigner("secret", time.Hour)
	token, err := s.Sign("d-1", "https://bbc.co.uk/sport/1")
	require.NoError(t, err)

	claims, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "d-1", claims.DeliveryID)
	assert.Equal(t, "https://bbc.co.uk/sport/1", claims.URL)

	_, err = NewLinkSigner("other", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidLink)

	_, err = s.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidLink)
}

func TestEmptySecretNeverSigns(t *testing.T) {
	s := NewLinkSigner("", time.Hour)
	_, err := s.Sign("d-1", "https://example.com")
	assert.ErrorIs(t, err, ErrNoSecret)

	token, err := NewLinkSigner("secret", time.Hour).Sign("d-1", "https://example.com")
	require.NoError(t, err)
	_, err = s.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidLink)

	l := Links{BaseURL: "https://digest.example.com", Signer: s}
	assert.Equal(t, "https://x.test/a", l.Click("d1", "https://x.test/a"))
}

func TestVerifyExpired(t *testing.T) {
	s := NewLinkSigner("secret", time.Minute)
	issued := time.Now().Add(-time.Hour)
	s.now = func() time.Time { return issued }
	token, err := s.Sign("d-1", "https://example.com")
	require.NoError(t, err)

	s.now = time.Now
	_, err = s.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidLink)
}

func TestLinks(t *testing.T) {
	l := Links{BaseURL: "https://digest.example.com/", Signer: NewLinkSigner("k", 0)}

	assert.Equal(t, "https://digest.example.com/newsletters/n1", l.View("n1"))
	assert.Equal(t, "https://digest.example.com/unsubscribe/tok", l.Unsubscribe("tok"))
	assert.Equal(t, "https://digest.example.com/preferences/tok", l.Preferences("tok"))
	assert.Equal(t, "https://digest.example.com/t/o/d1", l.Pixel("d1"))
	assert.Empty(t, l.Unsubscribe(""))
	assert.Empty(t, l.Pixel(""))

	assert.Equal(t, "https://x.test/a", l.Click("", "https://x.test/a"), "no delivery, no wrapping")
	wrapped := l.Click("d1", "https://x.test/a")
	require.True(t, strings.HasPrefix(wrapped, "https://digest.example.com/t/c/"))

	claims, err := l.Signer.Verify(strings.TrimPrefix(wrapped, "https://digest.example.com/t/c/"))
	require.NoError(t, err)
	assert.Equal(t, "https://x.test/a", claims.URL)
}

func TestTrackerOpenOnce(t *testing.T) {
	st := newFakeStore()
	tr := NewTracker(st, NewLinkSigner("k", 0))

	first, err := tr.RecordOpen(context.Background(), "d1")
	require.NoError(t, err)
	assert.True(t, first)
	again, err := tr.RecordOpen(context.Background(), "d1")
	require.NoError(t, err)
	assert.False(t, again)

	st.err = errors.New("db down")
	_, err = tr.RecordOpen(context.Background(), "d2")
	assert.Error(t, err)
}

func TestTrackerRedirect(t *testing.T) {
	st := newFakeStore()
	signer := NewLinkSigner("k", 0)
	tr := NewTracker(st, signer)

	token, err := signer.Sign("d1", "https://espn.com/story")
	require.NoError(t, err)

	target, err := tr.Redirect(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "https://espn.com/story", target)
	assert.Equal(t, []string{"https://espn.com/story"}, st.clicks["d1"])

	st.err = errors.New("db down")
	target, err = tr.Redirect(context.Background(), token)
	require.NoError(t, err, "store failures do not block the redirect")
	assert.Equal(t, "https://espn.com/story", target)

	_, err = tr.Redirect(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrInvalidLink)

	require.NoError(t, (&Tracker{store: newFakeStore()}).RecordClick(context.Background(), "d9", "u"))
}
