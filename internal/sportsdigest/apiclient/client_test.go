package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobinCoderZhao/sports-digest/pkg/cache"
)

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, error) { return "", errors.New("redis down") }
func (failingStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("redis down")
}

func (failingStore) IncrBy(context.Context, string, int64, time.Duration) (int64, error) {
	return 0, errors.New("redis down")
}

func newTestClient(t *testing.T, handler http.HandlerFunc, budget int, store cache.Store) (*Client, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	if store == nil {
		store = cache.NewMemory()
	}
	day := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	c := New(store, WithClock(func() time.Time { return day }))
	c.Register(SourceConfig{
		ID:          "test",
		BaseURL:     srv.URL,
		DailyBudget: budget,
		Timeout:     2 * time.Second,
		Headers:     map[string]string{"x-rapidapi-key": "secret"},
		Query:       map[string]string{"apikey": "k"},
	})
	return c, &hits
}

func TestRequestSuccessAndParams(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fixtures", r.URL.Path)
		assert.Equal(t, "39", r.URL.Query().Get("league"))
		assert.Equal(t, "k", r.URL.Query().Get("apikey"))
		assert.Equal(t, "secret", r.Header.Get("x-rapidapi-key"))
		w.Write([]byte(`{"errors":[],"response":[{"id":1}]}`))
	}, 5, nil)

	body, err := c.Request(context.Background(), "test", "fixtures", url.Values{"league": {"39"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"errors":[],"response":[{"id":1}]}`, string(body))
	assert.Equal(t, 4, c.Remaining(context.Background(), "test"))
}

func TestBudgetExhaustedMakesNoCall(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","results":[]}`))
	}, 3, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Request(ctx, "test", "latest", nil)
		require.NoError(t, err)
	}
	_, err := c.Request(ctx, "test", "latest", nil)
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	assert.EqualValues(t, 3, atomic.LoadInt32(hits), "the over-budget call must not reach the network")
}

func TestCounterKeyRollsOverDaily(t *testing.T) {
	store := cache.NewMemory()
	day := time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(store, WithClock(func() time.Time { return day }))
	c.Register(SourceConfig{ID: "news", BaseURL: srv.URL, DailyBudget: 1})
	ctx := context.Background()

	_, err := c.Request(ctx, "news", "latest", nil)
	require.NoError(t, err)
	_, err = c.Request(ctx, "news", "latest", nil)
	assert.True(t, IsRateLimited(err))

	day = day.Add(2 * time.Hour)
	_, err = c.Request(ctx, "news", "latest", nil)
	assert.NoError(t, err)
	assert.Equal(t, "ratelimit:news:20240310", c.counterKey("news"))
}

func TestTooManyRequestsCountsAgainstBudget(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}, 2, nil)
	ctx := context.Background()

	_, err := c.Request(ctx, "test", "x", nil)
	assert.Equal(t, RateLimited, KindOf(err))
	assert.Equal(t, 1, c.Remaining(ctx, "test"))
}

func TestRemoteErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"http 500": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("oops"))
		},
		"embedded errors object": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"errors":{"token":"Error/Missing application key"},"response":[]}`))
		},
		"embedded errors list": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"errors":["bad season"],"response":[]}`))
		},
		"status error": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"error","results":{"message":"invalid key"}}`))
		},
		"not json": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>maintenance</html>`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			c, _ := newTestClient(t, h, 5, nil)
			_, err := c.Request(context.Background(), "test", "x", nil)
			require.Error(t, err)
			var f *Failure
			require.True(t, errors.As(err, &f))
			assert.Equal(t, RemoteError, f.Kind)
			assert.NotZero(t, f.Status)
		})
	}
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	c := New(cache.NewMemory())
	c.Register(SourceConfig{ID: "gone", BaseURL: base, DailyBudget: 2, Timeout: time.Second})
	_, err := c.Request(context.Background(), "gone", "x", nil)
	assert.Equal(t, Unreachable, KindOf(err))
	assert.Equal(t, 2, c.Remaining(context.Background(), "gone"), "network failures are not counted")
}

func TestBrokenCacheAssumesBudgetAvailable(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}, 1, failingStore{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Request(ctx, "test", "x", nil)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, atomic.LoadInt32(hits))
}

func TestUnknownSource(t *testing.T) {
	c := New(cache.NewMemory())
	_, err := c.Request(context.Background(), "nope", "x", nil)
	require.Error(t, err)
	assert.Zero(t, KindOf(err))
}

func TestMinIntervalThrottles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(cache.NewMemory())
	c.Register(SourceConfig{ID: "slow", BaseURL: srv.URL, DailyBudget: 10, MinInterval: 30 * time.Millisecond})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Request(context.Background(), "slow", "x", nil)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestFailureError(t *testing.T) {
	f := &Failure{Kind: RemoteError, Source: "newsdata", Status: 422, Body: "invalid params"}
	assert.Equal(t, "newsdata: remote_error (HTTP 422): invalid params", f.Error())
}

func TestConcurrentCallsRespectBudget(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte(`{}`))
	}, 5, nil)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		successes int32
		limited   int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Request(ctx, "test", "latest", nil)
			switch {
			case err == nil:
				atomic.AddInt32(&successes, 1)
			case IsRateLimited(err):
				atomic.AddInt32(&limited, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 5, atomic.LoadInt32(hits))
	assert.EqualValues(t, 5, successes)
	assert.EqualValues(t, 15, limited)
	assert.Equal(t, 0, c.Remaining(ctx, "test"))
}

func TestCachedEndpointSkipsNetworkAndBudget(t *testing.T) {
	store := cache.NewMemory()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"status":"success","results":[{"title":"Derby day"}]}`))
	}))
	defer srv.Close()

	c := New(store)
	c.Register(SourceConfig{
		ID:          "news",
		BaseURL:     srv.URL,
		DailyBudget: 10,
		Cache:       map[string]time.Duration{"latest": time.Hour},
	})
	ctx := context.Background()
	soccer := url.Values{"q": {"football"}}

	first, err := c.Request(ctx, "news", "latest", soccer)
	require.NoError(t, err)
	second, err := c.Request(ctx, "news", "latest", soccer)
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
	assert.Equal(t, 9, c.Remaining(ctx, "news"))

	// other params and uncached endpoints still go out
	_, err = c.Request(ctx, "news", "latest", url.Values{"q": {"rugby"}})
	require.NoError(t, err)
	_, err = c.Request(ctx, "news", "status", nil)
	require.NoError(t, err)
	_, err = c.Request(ctx, "news", "status", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 4, atomic.LoadInt32(&hits))
}

func TestFailedResponsesAreNotCached(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(cache.NewMemory())
	c.Register(SourceConfig{ID: "f1", BaseURL: srv.URL, DailyBudget: 10, Cache: map[string]time.Duration{"races": time.Hour}})
	ctx := context.Background()

	_, err := c.Request(ctx, "f1", "races", nil)
	assert.Equal(t, RemoteError, KindOf(err))
	_, err = c.Request(ctx, "f1", "races", nil)
	require.NoError(t, err)
	_, err = c.Request(ctx, "f1", "races", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}
