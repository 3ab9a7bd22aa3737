// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"feedhub/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations. Row-level
// atomicity and the uniqueness of topic keys and (topic, callback)
// pairs are enforced here, not by callers.
type Storage interface {
	CreateTopic(ctx context.Context, topic *model.Topic) error
	GetTopic(ctx context.Context, id int64) (*model.Topic, error)
	GetTopicByKey(ctx context.Context, key string) (*model.Topic, error)
	ListTopics(ctx context.Context) ([]model.Topic, error)
	UpdateTopic(ctx context.Context, topic *model.Topic) error

	CreateSubscription(ctx context.Context, sub *model.Subscription) error
	DeleteSubscription(ctx context.Context, topicID int64, callbackKey string) error
	ListSubscriptions(ctx context.Context, topicID int64) ([]model.Subscription, error)
	ListSubscriptionsByState(ctx context.Context, topicID int64, state model.SubState) ([]model.Subscription, error)
	ListPendingAsync(ctx context.Context) ([]model.Subscription, error)
	MarkVerified(ctx context.Context, id int64) error

	Close() error
}
