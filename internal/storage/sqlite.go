package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"feedhub/internal/model"
	"feedhub/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateTopic inserts a new topic and populates its ID and timestamps.
func (s *SQLite) CreateTopic(ctx context.Context, topic *model.Topic) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO topics (key, dirty, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		topic.Key, boolToInt(topic.Dirty), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert topic: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	topic.ID = id
	topic.CreatedAt, _ = time.Parse(timeLayout, now)
	topic.UpdatedAt = topic.CreatedAt
	return nil
}

// GetTopic returns a single topic by its ID.
func (s *SQLite) GetTopic(ctx context.Context, id int64) (*model.Topic, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, key, dirty, created_at, updated_at FROM topics WHERE id = ?`, id,
	)
	return scanTopic(row)
}

// GetTopicByKey returns the topic with the given canonical key,
// or ErrNotFound if none exists.
func (s *SQLite) GetTopicByKey(ctx context.Context, key string) (*model.Topic, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, key, dirty, created_at, updated_at FROM topics WHERE key = ?`, key,
	)
	return scanTopic(row)
}

// ListTopics returns all known topics ordered by ID.
func (s *SQLite) ListTopics(ctx context.Context) ([]model.Topic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, key, dirty, created_at, updated_at FROM topics ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var topics []model.Topic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, err
		}
		topics = append(topics, *t)
	}
	return topics, rows.Err()
}

// UpdateTopic persists the dirty flag and updated timestamp of a topic.
func (s *SQLite) UpdateTopic(ctx context.Context, topic *model.Topic) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE topics SET dirty = ?, updated_at = ? WHERE id = ?`,
		boolToInt(topic.Dirty), topic.UpdatedAt.UTC().Format(timeLayout), topic.ID,
	)
	if err != nil {
		return fmt.Errorf("update topic: %w", err)
	}
	return nil
}

// CreateSubscription inserts a new subscription and populates its ID
// and CreatedAt. The (topic_id, callback_key) pair must be unique.
func (s *SQLite) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (topic_id, callback_key, verify_mode, state, verify_token, secret, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.TopicID, sub.CallbackKey, string(sub.VerifyMode), string(sub.State), sub.VerifyToken, sub.Secret, now,
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	sub.ID = id
	sub.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// DeleteSubscription removes the subscription for (topicID, callbackKey).
// Deleting a non-existent row is not an error.
func (s *SQLite) DeleteSubscription(ctx context.Context, topicID int64, callbackKey string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE topic_id = ? AND callback_key = ?`,
		topicID, callbackKey,
	)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// ListSubscriptions returns all subscriptions for the given topic.
func (s *SQLite) ListSubscriptions(ctx context.Context, topicID int64) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic_id, callback_key, verify_mode, state, verify_token, secret, created_at
		 FROM subscriptions WHERE topic_id = ? ORDER BY id`, topicID,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSubscriptions(rows)
}

// ListSubscriptionsByState returns the topic's subscriptions in the given state.
func (s *SQLite) ListSubscriptionsByState(ctx context.Context, topicID int64, state model.SubState) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic_id, callback_key, verify_mode, state, verify_token, secret, created_at
		 FROM subscriptions WHERE topic_id = ? AND state = ? ORDER BY id`, topicID, string(state),
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions by state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSubscriptions(rows)
}

// ListPendingAsync returns every async-mode subscription still awaiting
// verification, across all topics.
func (s *SQLite) ListPendingAsync(ctx context.Context) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic_id, callback_key, verify_mode, state, verify_token, secret, created_at
		 FROM subscriptions WHERE verify_mode = ? AND state = ? ORDER BY id`,
		string(model.VerifyAsync), string(model.StatePending),
	)
	if err != nil {
		return nil, fmt.Errorf("query pending subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSubscriptions(rows)
}

// MarkVerified flips a subscription's state to verified.
func (s *SQLite) MarkVerified(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET state = ? WHERE id = ?`,
		string(model.StateVerified), id,
	)
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTopic(row scannable) (*model.Topic, error) {
	var t model.Topic
	var dirty int
	var created, updated string
	err := row.Scan(&t.ID, &t.Key, &dirty, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan topic: %w", err)
	}
	t.Dirty = dirty == 1
	t.CreatedAt, _ = time.Parse(timeLayout, created)
	t.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &t, nil
}

func scanSubscriptions(rows *sql.Rows) ([]model.Subscription, error) {
	var subs []model.Subscription
	for rows.Next() {
		var sub model.Subscription
		var mode, state, created string
		err := rows.Scan(&sub.ID, &sub.TopicID, &sub.CallbackKey, &mode, &state,
			&sub.VerifyToken, &sub.Secret, &created)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		sub.VerifyMode = model.VerifyMode(mode)
		sub.State = model.SubState(state)
		sub.CreatedAt, _ = time.Parse(timeLayout, created)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
