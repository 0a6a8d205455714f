package store

// Schema is portable between SQLite (3.35+) and PostgreSQL.
const Schema = `
CREATE TABLE IF NOT EXISTS sport_categories (
    name         TEXT PRIMARY KEY,
    display_name TEXT NOT NULL,
    icon         TEXT NOT NULL DEFAULT '',
    is_active    BOOLEAN NOT NULL DEFAULT TRUE,
    position     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS articles (
    id           TEXT PRIMARY KEY,
    title        TEXT NOT NULL,
    content      TEXT NOT NULL DEFAULT '',
    summary      TEXT NOT NULL DEFAULT '',
    sport        TEXT NOT NULL REFERENCES sport_categories(name),
    kind         TEXT NOT NULL DEFAULT 'news',
    source_url   TEXT NOT NULL DEFAULT '',
    source_name  TEXT NOT NULL DEFAULT '',
    image_url    TEXT NOT NULL DEFAULT '',
    published_at TIMESTAMP NOT NULL,
    ingested_at  TIMESTAMP NOT NULL,
    is_featured  BOOLEAN NOT NULL DEFAULT FALSE,
    is_premium   BOOLEAN NOT NULL DEFAULT FALSE,
    UNIQUE (title, source_url)
);

CREATE TABLE IF NOT EXISTS fixtures (
    id          TEXT PRIMARY KEY,
    sport       TEXT NOT NULL REFERENCES sport_categories(name),
    home_team   TEXT NOT NULL,
    away_team   TEXT NOT NULL,
    match_date  TIMESTAMP NOT NULL,
    venue       TEXT NOT NULL DEFAULT '',
    competition TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'scheduled',
    home_score  INTEGER,
    away_score  INTEGER,
    source_url  TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMP NOT NULL,
    updated_at  TIMESTAMP NOT NULL,
    UNIQUE (sport, home_team, away_team, match_date)
);

CREATE TABLE IF NOT EXISTS subscribers (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    name          TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL DEFAULT 'active',
    preferences   TEXT NOT NULL DEFAULT '{}',
    token         TEXT NOT NULL UNIQUE,
    subscribed_at TIMESTAMP NOT NULL,
    updated_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS newsletters (
    id                  TEXT PRIMARY KEY,
    title               TEXT NOT NULL,
    edition_date        TEXT NOT NULL,
    status              TEXT NOT NULL DEFAULT 'draft',
    featured_article_id TEXT REFERENCES articles(id) ON DELETE SET NULL,
    content             TEXT NOT NULL DEFAULT '',
    html_content        TEXT NOT NULL DEFAULT '',
    metadata            TEXT NOT NULL DEFAULT '{}',
    created_at          TIMESTAMP NOT NULL,
    sent_at             TIMESTAMP,
    recipient_count     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS newsletter_articles (
    newsletter_id TEXT NOT NULL REFERENCES newsletters(id) ON DELETE CASCADE,
    article_id    TEXT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
    position      INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (newsletter_id, article_id)
);

CREATE TABLE IF NOT EXISTS newsletter_fixtures (
    newsletter_id TEXT NOT NULL REFERENCES newsletters(id) ON DELETE CASCADE,
    fixture_id    TEXT NOT NULL REFERENCES fixtures(id) ON DELETE CASCADE,
    position      INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (newsletter_id, fixture_id)
);

CREATE TABLE IF NOT EXISTS deliveries (
    id              TEXT PRIMARY KEY,
    newsletter_id   TEXT NOT NULL REFERENCES newsletters(id) ON DELETE CASCADE,
    subscriber_id   TEXT NOT NULL REFERENCES subscribers(id) ON DELETE CASCADE,
    status          TEXT NOT NULL DEFAULT 'pending',
    sent_at         TIMESTAMP,
    error_message   TEXT NOT NULL DEFAULT '',
    opened_at       TIMESTAMP,
    clicked_links   TEXT NOT NULL DEFAULT '[]',
    click_count     INTEGER NOT NULL DEFAULT 0,
    last_clicked_at TIMESTAMP,
    created_at      TIMESTAMP NOT NULL,
    UNIQUE (newsletter_id, subscriber_id)
);

CREATE TABLE IF NOT EXISTS newsletter_analytics (
    newsletter_id TEXT PRIMARY KEY REFERENCES newsletters(id) ON DELETE CASCADE,
    total_sent    INTEGER NOT NULL DEFAULT 0,
    delivered     INTEGER NOT NULL DEFAULT 0,
    opened        INTEGER NOT NULL DEFAULT 0,
    clicked       INTEGER NOT NULL DEFAULT 0,
    failed        INTEGER NOT NULL DEFAULT 0,
    bounced       INTEGER NOT NULL DEFAULT 0,
    delivery_rate REAL NOT NULL DEFAULT 0,
    open_rate     REAL NOT NULL DEFAULT 0,
    click_rate    REAL NOT NULL DEFAULT 0,
    bounce_rate   REAL NOT NULL DEFAULT 0,
    updated_at    TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_newsletters_edition_active
    ON newsletters(edition_date) WHERE status <> 'failed';
CREATE INDEX IF NOT EXISTS idx_articles_sport_published ON articles(sport, published_at);
CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_at);
CREATE INDEX IF NOT EXISTS idx_fixtures_sport_date ON fixtures(sport, match_date);
CREATE INDEX IF NOT EXISTS idx_fixtures_status_date ON fixtures(status, match_date);
CREATE INDEX IF NOT EXISTS idx_deliveries_newsletter ON deliveries(newsletter_id);
CREATE INDEX IF NOT EXISTS idx_subscribers_status ON subscribers(status);
`
