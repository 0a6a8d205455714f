package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
	"github.com/RobinCoderZhao/sports-digest/pkg/sanitize"
)

// NewsDataSourceID is the apiclient source id of newsdata.io.
const NewsDataSourceID = "newsdata"

// NewsEndpoint is the newsdata.io search endpoint.
const NewsEndpoint = "latest"

const newsPubDateLayout = "2006-01-02 15:04:05"

// newsdata.io free plans return this instead of the article body.
const paidPlanPlaceholder = "ONLY AVAILABLE IN PAID PLANS"

// PremiumSources are trusted outlets. Matching is a case-sensitive substring
// test against the source name, so short entries like "AP" also match longer names.
var PremiumSources = []string{
	"BBC", "ESPN", "Sky Sports", "The Guardian", "Reuters", "AP",
	"The Athletic", "Sports Illustrated", "CNN", "The Telegraph",
	"The Independent", "France 24",
}

// IsPremiumSource reports whether name contains a trusted outlet.
func IsPremiumSource(name string) bool {
	for _, p := range PremiumSources {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}

// NewsConfig configures the news adapter.
type NewsConfig struct {
	SourceID        string
	Language        string
	Category        string
	DefaultImageURL string
}

// NewsAdapter searches newsdata.io's latest endpoint.
type NewsAdapter struct {
	client Requester
	cfg    NewsConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewNewsAdapter creates a news adapter with defaults for empty fields.
func NewNewsAdapter(client Requester, cfg NewsConfig) *NewsAdapter {
	if cfg.SourceID == "" {
		cfg.SourceID = NewsDataSourceID
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Category == "" {
		cfg.Category = "sports"
	}
	return &NewsAdapter{client: client, cfg: cfg, now: time.Now, logger: slog.Default()}
}

func (n *NewsAdapter) Name() string { return n.cfg.SourceID }

type newsResponse struct {
	Status       string          `json:"status"`
	TotalResults int             `json:"totalResults"`
	Results      json.RawMessage `json:"results"`
	NextPage     string          `json:"nextPage"`
}

type newsItem struct {
	ArticleID   string   `json:"article_id"`
	Title       string   `json:"title"`
	Link        string   `json:"link"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	PubDate     string   `json:"pubDate"`
	ImageURL    string   `json:"image_url"`
	SourceID    string   `json:"source_id"`
	SourceName  string   `json:"source_name"`
	Keywords    []string `json:"keywords"`
}

// Search runs one query against the sports category. An empty query returns
// the latest sports headlines. Returned articles have no sport assigned.
func (n *NewsAdapter) Search(ctx context.Context, query string) ([]model.Article, error) {
	params := url.Values{
		"language": {n.cfg.Language},
		"category": {n.cfg.Category},
	}
	if query != "" {
		params.Set("q", query)
	}

	raw, err := n.client.Request(ctx, n.cfg.SourceID, NewsEndpoint, params)
	if err != nil {
		return nil, err
	}

	var resp newsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode news response: %w", err)
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("news search %q: status %q", query, resp.Status)
	}
	var items []newsItem
	if len(resp.Results) > 0 {
		if err := json.Unmarshal(resp.Results, &items); err != nil {
			return nil, fmt.Errorf("decode news results: %w", err)
		}
	}

	now := n.now().UTC()
	articles := make([]model.Article, 0, len(items))
	for _, item := range items {
		a, err := n.toArticle(item, now)
		if err != nil {
			n.logger.Warn("skipping news item", "source", n.cfg.SourceID, "link", item.Link, "reason", err)
			continue
		}
		articles = append(articles, a)
	}
	return articles, nil
}

func (n *NewsAdapter) toArticle(item newsItem, now time.Time) (model.Article, error) {
	title := sanitize.Truncate(sanitize.StripHTML(item.Title), model.MaxTitleLen)
	if title == "" {
		return model.Article{}, fmt.Errorf("%w: empty title", ErrSkip)
	}

	description := sanitize.StripHTML(item.Description)
	content := sanitize.StripHTML(item.Content)
	if content == "" || strings.HasPrefix(content, paidPlanPlaceholder) {
		content = description
	}

	sourceName := item.SourceName
	if sourceName == "" {
		sourceName = item.SourceID
	}
	sourceName = sanitize.Truncate(sourceName, model.MaxSourceNameLen)

	image := item.ImageURL
	if image == "" {
		image = sanitize.FirstImage(item.Content)
	}
	if image == "" {
		image = sanitize.FirstImage(item.Description)
	}
	if image == "" {
		image = n.cfg.DefaultImageURL
	}

	published, err := time.Parse(newsPubDateLayout, item.PubDate)
	if err != nil {
		published = now
	}

	return model.Article{
		Title:       title,
		Content:     content,
		Summary:     sanitize.Truncate(description, model.MaxSummaryLen),
		Kind:        model.KindNews,
		SourceURL:   sanitize.Truncate(item.Link, model.MaxURLLen),
		SourceName:  sourceName,
		ImageURL:    sanitize.Truncate(image, model.MaxURLLen),
		PublishedAt: published.UTC(),
		IngestedAt:  now,
		Premium:     IsPremiumSource(sourceName),
	}, nil
}

// Ping issues a minimal query to check the source is reachable and the key is valid.
func (n *NewsAdapter) Ping(ctx context.Context) error {
	_, err := n.Search(ctx, "")
	return err
}
