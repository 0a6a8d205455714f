package fetcher

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
)

// Count tallies one sport's items in a run. Saved counts only new rows;
// Updated counts fixtures refreshed in place.
type Count struct {
	Fetched int `json:"fetched"`
	Saved   int `json:"saved"`
	Updated int `json:"updated,omitempty"`
}

// Report is the merged outcome of a fetch run.
type Report struct {
	News       map[model.Sport]*Count `json:"news"`
	Fixtures   map[model.Sport]*Count `json:"fixtures"`
	Errors     []string               `json:"errors"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`

	mu sync.Mutex
}

func newReport(now time.Time) *Report {
	return &Report{
		News:      make(map[model.Sport]*Count),
		Fixtures:  make(map[model.Sport]*Count),
		Errors:    []string{},
		StartedAt: now,
	}
}

func (r *Report) news(sport model.Sport, fn func(c *Count)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.News[sport]
	if !ok {
		c = &Count{}
		r.News[sport] = c
	}
	fn(c)
}

func (r *Report) fixtures(sport model.Sport, fn func(c *Count)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.Fixtures[sport]
	if !ok {
		c = &Count{}
		r.Fixtures[sport] = c
	}
	fn(c)
}

func (r *Report) errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.mu.Lock()
	r.Errors = append(r.Errors, msg)
	r.mu.Unlock()
}

// Totals sums every sport.
func (r *Report) Totals() (news, fixtures Count) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.News {
		news.Fetched += c.Fetched
		news.Saved += c.Saved
	}
	for _, c := range r.Fixtures {
		fixtures.Fetched += c.Fetched
		fixtures.Saved += c.Saved
		fixtures.Updated += c.Updated
	}
	return news, fixtures
}

// Successful is false only when nothing was fetched from any source and at
// least one error occurred.
func (r *Report) Successful() bool {
	news, fixtures := r.Totals()
	if news.Fetched+fixtures.Fetched > 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Errors) == 0
}

// Sports lists the sports present in the report, sorted.
func (r *Report) Sports() []model.Sport {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[model.Sport]bool)
	for s := range r.News {
		seen[s] = true
	}
	for s := range r.Fixtures {
		seen[s] = true
	}
	out := make([]model.Sport, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
