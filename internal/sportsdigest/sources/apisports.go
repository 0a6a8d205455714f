package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
	"github.com/RobinCoderZhao/sports-digest/pkg/sanitize"
)

// API-Sports source ids, registered with apiclient.
const (
	FootballSourceID   = "api-football"
	RugbySourceID      = "api-rugby"
	Formula1SourceID   = "api-formula-1"
	BasketballSourceID = "api-basketball"
)

// Formula1RacesEndpoint lists the race calendar of a season.
const Formula1RacesEndpoint = "races"

// APISportsBaseURL returns the base URL of an API-Sports product, e.g. ("v3", "football").
func APISportsBaseURL(version, product string) string {
	return fmt.Sprintf("https://%s.%s.api-sports.io", version, product)
}

// League selects one competition of a fixture API.
type League struct {
	ID     int    `yaml:"id"`
	Name   string `yaml:"name"`
	Season string `yaml:"season"`
}

// FixtureConfig configures an API-Sports fixture adapter.
type FixtureConfig struct {
	Leagues []League
	Last    int // football: number of most recent fixtures per league
	Limit   int // cap on fixtures returned per call, 0 means no cap
}

// normalizeFixture applies the schema length limits and a deterministic source reference.
func normalizeFixture(f model.Fixture) model.Fixture {
	f.HomeTeam = sanitize.Truncate(strings.TrimSpace(f.HomeTeam), model.MaxTeamLen)
	f.AwayTeam = sanitize.Truncate(strings.TrimSpace(f.AwayTeam), model.MaxTeamLen)
	f.Venue = sanitize.Truncate(strings.TrimSpace(f.Venue), model.MaxVenueLen)
	f.Competition = sanitize.Truncate(strings.TrimSpace(f.Competition), model.MaxCompetitionLen)
	f.SourceURL = sanitize.Truncate(f.SourceURL, model.MaxURLLen)
	if f.Venue == "" {
		f.Venue = "TBD"
	}
	return f
}

func validateTeams(f model.Fixture) error {
	if f.HomeTeam == "" || f.AwayTeam == "" {
		return fmt.Errorf("%w: missing team name", ErrSkip)
	}
	return nil
}

func capFixtures(list []model.Fixture, limit int) []model.Fixture {
	if limit > 0 && len(list) > limit {
		return list[:limit]
	}
	return list
}

// ---- Football (v3) ----

var footballStatuses = statusTable{
	"TBD": model.StatusScheduled, "NS": model.StatusScheduled,
	"1H": model.StatusLive, "HT": model.StatusLive, "2H": model.StatusLive, "ET": model.StatusLive,
	"BT": model.StatusLive, "P": model.StatusLive, "SUSP": model.StatusLive, "INT": model.StatusLive,
	"LIVE": model.StatusLive,
	"FT": model.StatusCompleted, "AET": model.StatusCompleted, "PEN": model.StatusCompleted,
	"AWD": model.StatusCompleted, "WO": model.StatusCompleted,
	"PST": model.StatusPostponed,
	"CANC": model.StatusCancelled, "ABD": model.StatusCancelled,
}

type footballFixture struct {
	Fixture struct {
		ID    int    `json:"id"`
		Date  string `json:"date"`
		Venue struct {
			Name string `json:"name"`
			City string `json:"city"`
		} `json:"venue"`
		Status struct {
			Short string `json:"short"`
		} `json:"status"`
	} `json:"fixture"`
	League struct {
		Name string `json:"name"`
	} `json:"league"`
	Teams struct {
		Home struct {
			Name string `json:"name"`
		} `json:"home"`
		Away struct {
			Name string `json:"name"`
		} `json:"away"`
	} `json:"teams"`
	Goals struct {
		Home *int `json:"home"`
		Away *int `json:"away"`
	} `json:"goals"`
}

// FootballAdapter reads soccer fixtures from API-Football.
type FootballAdapter struct {
	client Requester
	cfg    FixtureConfig
	logger *slog.Logger
}

// NewFootballAdapter creates a soccer adapter. With no leagues configured it
// follows the Premier League and the Champions League.
func NewFootballAdapter(client Requester, cfg FixtureConfig) *FootballAdapter {
	if len(cfg.Leagues) == 0 {
		cfg.Leagues = []League{
			{ID: 39, Name: "Premier League", Season: "2024"},
			{ID: 2, Name: "UEFA Champions League", Season: "2024"},
		}
	}
	if cfg.Last <= 0 {
		cfg.Last = 10
	}
	return &FootballAdapter{client: client, cfg: cfg, logger: slog.Default()}
}

func (a *FootballAdapter) Name() string       { return FootballSourceID }
func (a *FootballAdapter) Sport() model.Sport { return model.Soccer }

// Fixtures fetches each league independently; one failing league does not drop the others.
func (a *FootballAdapter) Fixtures(ctx context.Context) ([]model.Fixture, error) {
	var out []model.Fixture
	var errs []error
	for _, league := range a.cfg.Leagues {
		params := url.Values{
			"league": {strconv.Itoa(league.ID)},
			"season": {league.Season},
			"last":   {strconv.Itoa(a.cfg.Last)},
		}
		items, err := requestAPISports[footballFixture](ctx, a.client, FootballSourceID, "fixtures", params)
		if err != nil {
			errs = append(errs, fmt.Errorf("league %d: %w", league.ID, err))
			continue
		}
		for _, item := range items {
			f, err := a.toFixture(item, league)
			if err != nil {
				a.logger.Warn("skipping fixture", "source", FootballSourceID, "id", item.Fixture.ID, "reason", err)
				continue
			}
			out = append(out, f)
		}
	}
	return capFixtures(out, a.cfg.Limit), errors.Join(errs...)
}

func (a *FootballAdapter) toFixture(item footballFixture, league League) (model.Fixture, error) {
	date, err := parseMatchDate(item.Fixture.Date)
	if err != nil {
		return model.Fixture{}, err
	}
	competition := item.League.Name
	if competition == "" {
		competition = league.Name
	}
	f := normalizeFixture(model.Fixture{
		Sport:       model.Soccer,
		HomeTeam:    item.Teams.Home.Name,
		AwayTeam:    item.Teams.Away.Name,
		MatchDate:   date,
		Venue:       item.Fixture.Venue.Name,
		Competition: competition,
		Status:      footballStatuses.lookup(item.Fixture.Status.Short),
		HomeScore:   intPtr(item.Goals.Home),
		AwayScore:   intPtr(item.Goals.Away),
		SourceURL:   fmt.Sprintf("%s:fixture:%d", FootballSourceID, item.Fixture.ID),
	})
	return f, validateTeams(f)
}

func (a *FootballAdapter) Ping(ctx context.Context) error {
	_, err := a.client.Request(ctx, FootballSourceID, "status", nil)
	return err
}

// ---- Rugby (v1) ----

var rugbyStatuses = statusTable{
	"NS": model.StatusScheduled, "TBD": model.StatusScheduled,
	"1H": model.StatusLive, "HT": model.StatusLive, "2H": model.StatusLive, "ET": model.StatusLive,
	"BT": model.StatusLive, "PT": model.StatusLive,
	"FT": model.StatusCompleted, "AET": model.StatusCompleted, "AW": model.StatusCompleted,
	"POST": model.StatusPostponed, "PST": model.StatusPostponed,
	"CANC": model.StatusCancelled, "ABD": model.StatusCancelled, "INTR": model.StatusCancelled,
}

type rugbyGame struct {
	ID     int      `json:"id"`
	Date   string   `json:"date"`
	Venue  flexName `json:"venue"`
	Status flexName `json:"status"`
	League struct {
		Name string `json:"name"`
	} `json:"league"`
	Teams struct {
		Home struct {
			Name string `json:"name"`
		} `json:"home"`
		Away struct {
			Name string `json:"name"`
		} `json:"away"`
	} `json:"teams"`
	Scores struct {
		Home *int `json:"home"`
		Away *int `json:"away"`
	} `json:"scores"`
}

// RugbyAdapter reads rugby fixtures from API-Rugby.
type RugbyAdapter struct {
	client Requester
	cfg    FixtureConfig
	logger *slog.Logger
}

func NewRugbyAdapter(client Requester, cfg FixtureConfig) *RugbyAdapter {
	if len(cfg.Leagues) == 0 {
		cfg.Leagues = []League{{ID: 16, Name: "Rugby Match", Season: "2023"}}
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 20
	}
	return &RugbyAdapter{client: client, cfg: cfg, logger: slog.Default()}
}

func (a *RugbyAdapter) Name() string       { return RugbySourceID }
func (a *RugbyAdapter) Sport() model.Sport { return model.Rugby }

func (a *RugbyAdapter) Fixtures(ctx context.Context) ([]model.Fixture, error) {
	var out []model.Fixture
	var errs []error
	for _, league := range a.cfg.Leagues {
		params := url.Values{"league": {strconv.Itoa(league.ID)}, "season": {league.Season}}
		items, err := requestAPISports[rugbyGame](ctx, a.client, RugbySourceID, "games", params)
		if err != nil {
			errs = append(errs, fmt.Errorf("league %d: %w", league.ID, err))
			continue
		}
		for _, item := range items {
			date, err := parseMatchDate(item.Date)
			if err != nil {
				a.logger.Warn("skipping fixture", "source", RugbySourceID, "id", item.ID, "reason", err)
				continue
			}
			competition := item.League.Name
			if competition == "" {
				competition = league.Name
			}
			f := normalizeFixture(model.Fixture{
				Sport:       model.Rugby,
				HomeTeam:    item.Teams.Home.Name,
				AwayTeam:    item.Teams.Away.Name,
				MatchDate:   date,
				Venue:       string(item.Venue),
				Competition: competition,
				Status:      rugbyStatuses.lookup(string(item.Status)),
				HomeScore:   intPtr(item.Scores.Home),
				AwayScore:   intPtr(item.Scores.Away),
				SourceURL:   fmt.Sprintf("%s:game:%d", RugbySourceID, item.ID),
			})
			if err := validateTeams(f); err != nil {
				a.logger.Warn("skipping fixture", "source", RugbySourceID, "id", item.ID, "reason", err)
				continue
			}
			out = append(out, f)
		}
	}
	return capFixtures(out, a.cfg.Limit), errors.Join(errs...)
}

func (a *RugbyAdapter) Ping(ctx context.Context) error {
	_, err := a.client.Request(ctx, RugbySourceID, "status", nil)
	return err
}

// ---- Formula 1 (v1) ----

var formula1Statuses = statusTable{
	"SCHEDULED": model.StatusScheduled,
	"LIVE":      model.StatusLive,
	"COMPLETED": model.StatusCompleted,
	"POSTPONED": model.StatusPostponed,
	"CANCELLED": model.StatusCancelled,
}

type formula1Race struct {
	ID          int    `json:"id"`
	Date        string `json:"date"`
	Status      string `json:"status"`
	Type        string `json:"type"`
	Competition struct {
		Name     string `json:"name"`
		Location struct {
			Country string `json:"country"`
			City    string `json:"city"`
		} `json:"location"`
	} `json:"competition"`
}

const formula1Championship = "Formula 1 World Championship"

// Formula1Adapter reads Grand Prix races from API-Formula-1. A race is stored
// as a fixture whose home side is the Grand Prix name.
type Formula1Adapter struct {
	client Requester
	season string
	limit  int
	logger *slog.Logger
}

func NewFormula1Adapter(client Requester, cfg FixtureConfig) *Formula1Adapter {
	season := "2023"
	if len(cfg.Leagues) > 0 && cfg.Leagues[0].Season != "" {
		season = cfg.Leagues[0].Season
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 10
	}
	return &Formula1Adapter{client: client, season: season, limit: limit, logger: slog.Default()}
}

func (a *Formula1Adapter) Name() string       { return Formula1SourceID }
func (a *Formula1Adapter) Sport() model.Sport { return model.Formula1 }

func (a *Formula1Adapter) Fixtures(ctx context.Context) ([]model.Fixture, error) {
	params := url.Values{"season": {a.season}, "type": {"race"}}
	items, err := requestAPISports[formula1Race](ctx, a.client, Formula1SourceID, Formula1RacesEndpoint, params)
	if err != nil {
		return nil, err
	}
	var out []model.Fixture
	for _, item := range items {
		date, err := parseMatchDate(item.Date)
		if err != nil {
			a.logger.Warn("skipping race", "source", Formula1SourceID, "id", item.ID, "reason", err)
			continue
		}
		f := normalizeFixture(model.Fixture{
			Sport:       model.Formula1,
			HomeTeam:    item.Competition.Name,
			AwayTeam:    "Formula 1 Race",
			MatchDate:   date,
			Venue:       raceVenue(item.Competition.Location.City, item.Competition.Location.Country),
			Competition: formula1Championship,
			Status:      formula1Statuses.lookup(item.Status),
			SourceURL:   fmt.Sprintf("%s:race:%d", Formula1SourceID, item.ID),
		})
		if err := validateTeams(f); err != nil {
			a.logger.Warn("skipping race", "source", Formula1SourceID, "id", item.ID, "reason", err)
			continue
		}
		out = append(out, f)
	}
	return capFixtures(out, a.limit), nil
}

func raceVenue(city, country string) string {
	switch {
	case city != "" && country != "":
		return city + ", " + country
	case city != "":
		return city
	default:
		return country
	}
}

func (a *Formula1Adapter) Ping(ctx context.Context) error {
	_, err := a.client.Request(ctx, Formula1SourceID, "status", nil)
	return err
}

// ---- Basketball (v1) ----

var basketballStatuses = statusTable{
	"NS": model.StatusScheduled,
	"Q1": model.StatusLive, "Q2": model.StatusLive, "Q3": model.StatusLive, "Q4": model.StatusLive,
	"OT": model.StatusLive, "BT": model.StatusLive, "HT": model.StatusLive,
	"FT": model.StatusCompleted, "AOT": model.StatusCompleted,
	"POST": model.StatusPostponed,
	"CANC": model.StatusCancelled, "SUSP": model.StatusCancelled, "AWD": model.StatusCancelled, "ABD": model.StatusCancelled,
}

type basketballScore struct {
	Total *int `json:"total"`
}

type basketballGame struct {
	ID     int      `json:"id"`
	Date   string   `json:"date"`
	Venue  flexName `json:"venue"`
	Status flexName `json:"status"`
	League struct {
		Name string `json:"name"`
	} `json:"league"`
	Teams struct {
		Home struct {
			Name string `json:"name"`
		} `json:"home"`
		Away struct {
			Name string `json:"name"`
		} `json:"away"`
	} `json:"teams"`
	Scores struct {
		Home basketballScore `json:"home"`
		Away basketballScore `json:"away"`
	} `json:"scores"`
}

// BasketballAdapter reads games from API-Basketball.
type BasketballAdapter struct {
	client Requester
	cfg    FixtureConfig
	logger *slog.Logger
}

func NewBasketballAdapter(client Requester, cfg FixtureConfig) *BasketballAdapter {
	if len(cfg.Leagues) == 0 {
		cfg.Leagues = []League{{ID: 12, Name: "NBA", Season: "2023-2024"}}
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 20
	}
	return &BasketballAdapter{client: client, cfg: cfg, logger: slog.Default()}
}

func (a *BasketballAdapter) Name() string       { return BasketballSourceID }
func (a *BasketballAdapter) Sport() model.Sport { return model.Basketball }

func (a *BasketballAdapter) Fixtures(ctx context.Context) ([]model.Fixture, error) {
	var out []model.Fixture
	var errs []error
	for _, league := range a.cfg.Leagues {
		params := url.Values{"league": {strconv.Itoa(league.ID)}, "season": {league.Season}}
		items, err := requestAPISports[basketballGame](ctx, a.client, BasketballSourceID, "games", params)
		if err != nil {
			errs = append(errs, fmt.Errorf("league %d: %w", league.ID, err))
			continue
		}
		for _, item := range items {
			date, err := parseMatchDate(item.Date)
			if err != nil {
				a.logger.Warn("skipping game", "source", BasketballSourceID, "id", item.ID, "reason", err)
				continue
			}
			competition := item.League.Name
			if competition == "" {
				competition = league.Name
			}
			f := normalizeFixture(model.Fixture{
				Sport:       model.Basketball,
				HomeTeam:    item.Teams.Home.Name,
				AwayTeam:    item.Teams.Away.Name,
				MatchDate:   date,
				Venue:       string(item.Venue),
				Competition: competition,
				Status:      basketballStatuses.lookup(string(item.Status)),
				HomeScore:   intPtr(item.Scores.Home.Total),
				AwayScore:   intPtr(item.Scores.Away.Total),
				SourceURL:   fmt.Sprintf("%s:game:%d", BasketballSourceID, item.ID),
			})
			if err := validateTeams(f); err != nil {
				a.logger.Warn("skipping game", "source", BasketballSourceID, "id", item.ID, "reason", err)
				continue
			}
			out = append(out, f)
		}
	}
	return capFixtures(out, a.cfg.Limit), errors.Join(errs...)
}

func (a *BasketballAdapter) Ping(ctx context.Context) error {
	_, err := a.client.Request(ctx, BasketballSourceID, "status", nil)
	return err
}
