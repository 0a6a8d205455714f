// Package sources adapts third-party news and fixture APIs to the common
// Article and Fixture types. Each adapter parses its upstream payload into
// private typed structs and never leaks them past this package.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
)

// ErrSkip marks a malformed upstream item that was dropped.
var ErrSkip = errors.New("skip item")

// Requester is the subset of apiclient.Client the adapters need.
type Requester interface {
	Request(ctx context.Context, sourceID, endpoint string, params url.Values) (json.RawMessage, error)
}

// FixtureSource yields fixtures for one sport. Fixtures may return partial
// results together with a non-nil error.
type FixtureSource interface {
	Name() string
	Sport() model.Sport
	Fixtures(ctx context.Context) ([]model.Fixture, error)
	Ping(ctx context.Context) error
}

// flexName decodes either a plain string or an object carrying a name.
// API-Sports is inconsistent about venue and status shapes across sports.
type flexName string

func (f *flexName) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexName(s)
		return nil
	}
	var obj struct {
		Name  string `json:"name"`
		Short string `json:"short"`
		Long  string `json:"long"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		// Numbers and other shapes carry nothing useful.
		*f = ""
		return nil
	}
	switch {
	case obj.Short != "":
		*f = flexName(obj.Short)
	case obj.Name != "":
		*f = flexName(obj.Name)
	default:
		*f = flexName(obj.Long)
	}
	return nil
}

// apiSportsEnvelope is the response wrapper shared by every API-Sports product.
type apiSportsEnvelope[T any] struct {
	Results  int `json:"results"`
	Response []T `json:"response"`
}

func requestAPISports[T any](ctx context.Context, client Requester, sourceID, endpoint string, params url.Values) ([]T, error) {
	raw, err := client.Request(ctx, sourceID, endpoint, params)
	if err != nil {
		return nil, err
	}
	var env apiSportsEnvelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", sourceID, endpoint, err)
	}
	return env.Response, nil
}

var matchDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseMatchDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: missing date", ErrSkip)
	}
	for _, layout := range matchDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable date %q", ErrSkip, s)
}

// statusTable maps upstream status codes to the closed fixture status enum.
type statusTable map[string]model.FixtureStatus

// lookup returns the mapped status; unknown codes map to scheduled.
func (t statusTable) lookup(code string) model.FixtureStatus {
	if s, ok := t[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return s
	}
	return model.StatusScheduled
}

func intPtr(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
