package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS articles (
    id TEXT PRIMARY KEY,
    headline TEXT NOT NULL,
    content TEXT,
    url TEXT,
    source_name TEXT,
    published_at TEXT,
    bias_score REAL,
    bias_label TEXT CHECK(bias_label IN ('left', 'center-left', 'center', 'center-right', 'right')),
    sentiment_score REAL,
    sentiment_label TEXT,
    fact_check_score REAL,
    credibility_score REAL,
    fact_check_explanation TEXT,
    ai_explanation TEXT,
    analyzed_at TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS article_votes (
    id TEXT PRIMARY KEY,
    article_id TEXT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    vote_type TEXT NOT NULL CHECK(vote_type IN ('upvote', 'downvote')),
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE (article_id, user_id)
);

CREATE TABLE IF NOT EXISTS profiles (
    user_id TEXT PRIMARY KEY,
    display_name TEXT,
    reputation_score INTEGER NOT NULL DEFAULT 0,
    daily_streak INTEGER NOT NULL DEFAULT 0 CHECK(daily_streak >= 0),
    last_login_date TEXT,
    total_badges INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS badges (
    id TEXT PRIMARY KEY,
    name TEXT UNIQUE NOT NULL,
    description TEXT,
    icon TEXT,
    color TEXT,
    requirement_type TEXT,
    requirement_value INTEGER,
    created_at TEXT DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE TABLE IF NOT EXISTS user_badges (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    badge_id TEXT NOT NULL REFERENCES badges(id),
    earned_at TEXT NOT NULL,
    UNIQUE (user_id, badge_id)
);

CREATE TABLE IF NOT EXISTS analysis_requests (
    id TEXT PRIMARY KEY,
    user_id TEXT,
    input_type TEXT NOT NULL CHECK(input_type IN ('text', 'url', 'file')),
    input_content TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'completed', 'failed')),
    error_message TEXT,
    article_id TEXT REFERENCES articles(id) ON DELETE SET NULL,
    created_at TEXT NOT NULL,
    completed_at TEXT
);

CREATE TABLE IF NOT EXISTS similar_articles (
    id TEXT PRIMARY KEY,
    original_article_id TEXT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
    similar_article_id TEXT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
    similarity_score REAL NOT NULL,
    comparison_type TEXT NOT NULL CHECK(comparison_type IN ('same_topic', 'same_bias', 'opposite_bias')),
    created_at TEXT NOT NULL,
    UNIQUE (original_article_id, similar_article_id)
);

CREATE TABLE IF NOT EXISTS api_tokens (
    token_hash TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    label TEXT,
    created_at TEXT NOT NULL,
    last_used_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_articles_analyzed ON articles(analyzed_at);
CREATE INDEX IF NOT EXISTS idx_articles_bias_label ON articles(bias_label);
CREATE INDEX IF NOT EXISTS idx_articles_url ON articles(url);
CREATE INDEX IF NOT EXISTS idx_article_votes_user ON article_votes(user_id);
CREATE INDEX IF NOT EXISTS idx_user_badges_user ON user_badges(user_id);
CREATE INDEX IF NOT EXISTS idx_analysis_requests_user ON analysis_requests(user_id);
CREATE INDEX IF NOT EXISTS idx_api_tokens_user ON api_tokens(user_id);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "seed badge catalog",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
INSERT INTO badges (id, name, description, icon, color, requirement_type, requirement_value) VALUES
    ('badge-first-vote', 'First Vote', 'Cast your first vote on an article', '🗳️', 'blue', 'votes', 1),
    ('badge-active-voter', 'Active Voter', 'Cast 10 votes', '🔥', 'orange', 'votes', 10),
    ('badge-vote-champion', 'Vote Champion', 'Cast 50 votes', '🏆', 'gold', 'votes', 50),
    ('badge-vote-legend', 'Vote Legend', 'Cast 100 votes', '👑', 'purple', 'votes', 100),
    ('badge-daily-reader', 'Daily Reader', 'Log in 3 days in a row', '📰', 'green', 'streak', 3),
    ('badge-week-warrior', 'Week Warrior', 'Log in 7 days in a row', '⚔️', 'red', 'streak', 7)
ON CONFLICT(name) DO NOTHING;
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
