package jobs

import (
	"context"
	"time"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/scheduler"
)

// Job names, shared by the schedule, the CLI and the HTTP API.
const (
	JobFetchSports   = "fetch-sports-data"
	JobFetchTrending = "fetch-trending-news"
	JobGenerate      = "generate-weekly-newsletter"
	JobCleanup       = "cleanup-old-data"
	JobAnalytics     = "calculate-analytics"
	JobHealth        = "health-check"
)

const generateTimeout = 3 * time.Minute

// Schedule is the single schedule table of the pipeline. Times are UTC.
func (s *Service) Schedule() []scheduler.Job {
	return []scheduler.Job{
		{
			Name:     JobFetchSports,
			Schedule: "@every 6h",
			Timeout:  5 * time.Minute,
			Fn: func(ctx context.Context) (any, error) {
				return s.Fetch(ctx, nil)
			},
		},
		{
			Name:     JobFetchTrending,
			Schedule: "@every 12h",
			Timeout:  5 * time.Minute,
			Fn: func(ctx context.Context) (any, error) {
				return s.FetchTrending(ctx, s.settings.TrendingLimit)
			},
		},
		{
			Name:     JobGenerate,
			Schedule: "0 6 * * 1",
			Timeout:  generateTimeout + s.settings.SendTimeout,
			Fn: func(ctx context.Context) (any, error) {
				return s.GenerateWeekly(ctx, GenerateOptions{Refresh: true, SendImmediately: true})
			},
		},
		{
			Name:     JobCleanup,
			Schedule: "0 2 * * 0",
			Timeout:  5 * time.Minute,
			Fn: func(ctx context.Context) (any, error) {
				return s.Cleanup(ctx, s.settings.RetentionDays)
			},
		},
		{
			Name:     JobAnalytics,
			Schedule: "0 1 * * *",
			Timeout:  5 * time.Minute,
			Fn: func(ctx context.Context) (any, error) {
				return s.CalculateAnalytics(ctx)
			},
		},
		{
			Name:     JobHealth,
			Schedule: "@every 1h",
			Timeout:  time.Minute,
			Fn: func(ctx context.Context) (any, error) {
				return s.Health(ctx), nil
			},
		},
	}
}

// Register adds every scheduled job to sched.
func (s *Service) Register(sched *scheduler.Scheduler) error {
	for _, job := range s.Schedule() {
		if err := sched.Add(job); err != nil {
			return err
		}
	}
	return nil
}
