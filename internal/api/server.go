// Package api provides the HTTP surface of the sports digest: tracking
// endpoints, subscription management and authenticated job control.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/jobs"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/scheduler"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/tracking"
	"github.com/RobinCoderZhao/sports-digest/pkg/metrics"
)

// Service is the job layer the API drives.
type Service interface {
	Health(ctx context.Context) map[string]bool
	Summary(ctx context.Context) (*jobs.SummaryReport, error)
	Subscribe(ctx context.Context, email, name string, sports []model.Sport) (*model.Subscriber, error)
	Unsubscribe(ctx context.Context, token string) (*model.Subscriber, error)
}

// Content reads stored newsletters, subscribers and analytics.
type Content interface {
	Newsletter(ctx context.Context, id string) (*model.Newsletter, error)
	SubscriberByToken(ctx context.Context, token string) (*model.Subscriber, error)
	ListAnalytics(ctx context.Context, limit int) ([]model.NewsletterAnalytics, error)
}

// Jobs starts registered jobs on demand and looks up their handles.
type Jobs interface {
	Run(name string) (*scheduler.Handle, error)
	Get(id string) (*scheduler.Handle, bool)
	Recent() []*scheduler.Handle
}

// Deps are the collaborators of a Server.
type Deps struct {
	Service   Service
	Content   Content
	Tracker   *tracking.Tracker
	Jobs      Jobs
	JWTSecret string
	TokenTTL  time.Duration
}

// Server holds the dependencies for the API.
type Server struct {
	service   Service
	content   Content
	tracker   *tracking.Tracker
	jobs      Jobs
	jwtSecret []byte
	tokenTTL  time.Duration
	logger    *slog.Logger
}

// NewServer creates a new API Server instance.
func NewServer(deps Deps) *Server {
	ttl := deps.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Server{
		service:   deps.Service,
		content:   deps.Content,
		tracker:   deps.Tracker,
		jobs:      deps.Jobs,
		jwtSecret: []byte(deps.JWTSecret),
		tokenTTL:  ttl,
		logger:    slog.Default(),
	}
}

// Routes returns the configured http.Handler (ServeMux) for the API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /healthz", s.handleHealth())
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /t/o/{id}", s.handleOpen())
	mux.HandleFunc("GET /t/c/{token}", s.handleClick())
	mux.HandleFunc("GET /newsletters/{id}", s.handleNewsletterView())
	mux.HandleFunc("POST /subscribe", s.handleSubscribe())
	mux.HandleFunc("GET /unsubscribe/{token}", s.handleUnsubscribe())
	mux.HandleFunc("POST /unsubscribe/{token}", s.handleUnsubscribe())
	mux.HandleFunc("GET /preferences/{token}", s.handlePreferences())

	// Admin (require JWT)
	mux.Handle("POST /api/jobs/{name}", s.requireAuthHandler(http.HandlerFunc(s.handleRunJob())))
	mux.Handle("GET /api/jobs", s.requireAuthHandler(http.HandlerFunc(s.handleListJobs())))
	mux.Handle("GET /api/jobs/{id}", s.requireAuthHandler(http.HandlerFunc(s.handleJobStatus())))
	mux.Handle("GET /api/summary", s.requireAuthHandler(http.HandlerFunc(s.handleSummary())))
	mux.Handle("GET /api/analytics", s.requireAuthHandler(http.HandlerFunc(s.handleAnalytics())))

	return mux
}

// --- Helpers ---

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
