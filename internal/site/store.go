package site

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// PostWriter persists new posts.
type PostWriter interface {
	CreatePost(ctx context.Context, post *Post) error
}

// PostLister reads the recency-ordered feed.
type PostLister interface {
	RecentPosts(ctx context.Context, limit int) ([]Post, error)
}

type PostStoreConfig struct {
	// Path of the SQLite database file. Parent directories are created.
	Path   string
	Now    func() time.Time
	Logger *zap.Logger
}

// PostStore is the SQLite-backed shared feed store.
type PostStore struct {
	db     *sql.DB
	now    func() time.Time
	logger *zap.Logger

	// Guards lastTS so assigned creation times never decrease across
	// insertion order, even if the wall clock steps backwards.
	mu     sync.Mutex
	lastTS time.Time
}

const postsSchema = `
CREATE TABLE IF NOT EXISTS posts (
	id           TEXT PRIMARY KEY,
	publisher_id TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	age          TEXT NOT NULL DEFAULT '',
	place        TEXT NOT NULL DEFAULT '',
	product_name TEXT NOT NULL DEFAULT '',
	craft_type   TEXT NOT NULL DEFAULT '',
	materials    TEXT NOT NULL DEFAULT '',
	inspiration  TEXT NOT NULL DEFAULT '',
	audience     TEXT NOT NULL DEFAULT '',
	language     TEXT NOT NULL DEFAULT '',
	tone         TEXT NOT NULL DEFAULT '',
	story        TEXT NOT NULL DEFAULT '',
	tags         TEXT NOT NULL DEFAULT '[]',
	image_url    TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts (created_at DESC);
`

func NewPostStore(cfg PostStoreConfig) (*PostStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("Path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set journal_mode: %w", err)
	}
	if _, err := db.Exec(postsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PostStore{db: db, now: now, logger: logger}, nil
}

func (s *PostStore) Close() error {
	return s.db.Close()
}

// CreatePost assigns the post an ID (if unset) and a server-side
// creation timestamp, then persists it. Timestamps are monotonically
// non-decreasing in insertion order.
func (s *PostStore) CreatePost(ctx context.Context, post *Post) error {
	if post == nil {
		return errors.New("post is nil")
	}
	if strings.TrimSpace(post.PublisherID) == "" {
		return errors.New("post has no publisher identity")
	}
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	post.CreatedAt = s.nextTimestamp()

	tags := post.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO posts (
			id, publisher_id, name, age, place, product_name, craft_type,
			materials, inspiration, audience, language, tone, story, tags,
			image_url, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.ID, post.PublisherID, post.Name, post.Age, post.Place,
		post.ProductName, post.CraftType, post.Materials, post.Inspiration,
		post.Audience, post.Language, post.Tone, post.Story, string(tagsJSON),
		post.ImageURL, post.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}

	s.logger.Info("post created",
		zap.String("id", post.ID),
		zap.String("publisher", post.PublisherID),
		zap.String("product", post.ProductName))
	return nil
}

// RecentPosts returns up to limit posts, newest first. rowid breaks ties
// so equal timestamps still come back in reverse insertion order.
func (s *PostStore) RecentPosts(ctx context.Context, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = DefaultFeedLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, publisher_id, name, age, place, product_name, craft_type,
		       materials, inspiration, audience, language, tone, story, tags,
		       image_url, created_at
		FROM posts
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	posts := make([]Post, 0, limit)
	for rows.Next() {
		var p Post
		var tagsJSON string
		var createdMs int64
		if err := rows.Scan(
			&p.ID, &p.PublisherID, &p.Name, &p.Age, &p.Place, &p.ProductName,
			&p.CraftType, &p.Materials, &p.Inspiration, &p.Audience,
			&p.Language, &p.Tone, &p.Story, &tagsJSON, &p.ImageURL, &createdMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &p.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags for post %s: %w", p.ID, err)
		}
		p.CreatedAt = time.UnixMilli(createdMs).UTC()
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read posts: %w", err)
	}
	return posts, nil
}

func (s *PostStore) nextTimestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now().UTC().Truncate(time.Millisecond)
	if ts.Before(s.lastTS) {
		ts = s.lastTS
	}
	s.lastTS = ts
	return ts
}
