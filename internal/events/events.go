// Package events publishes monitor status transitions for external consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hamed0406/uptimemon/internal/domain"
)

// Transition is one status change, as published.
type Transition struct {
	MonitorID  domain.MonitorID `json:"monitor_id"`
	Name       string           `json:"name"`
	From       domain.Status    `json:"from"`
	To         domain.Status    `json:"to"`
	At         time.Time        `json:"at"`
	Reason     string           `json:"reason,omitempty"`
	StatusCode int              `json:"status_code,omitempty"`
	IncidentID string           `json:"incident_id,omitempty"`
}

type Sink interface {
	Publish(ctx context.Context, t Transition) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(context.Context, Transition) error { return nil }

const (
	DefaultKey    = "uptimemon:transitions"
	DefaultMaxLen = 1000
)

// RedisSink LPUSHes transitions onto a capped list, newest first.
type RedisSink struct {
	client *redis.Client
	key    string
	maxLen int64
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
	MaxLen   int64
}

// NewRedisSink connects and pings before returning.
func NewRedisSink(ctx context.Context, o RedisOptions) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            o.Addr,
		Password:        o.Password,
		DB:              o.DB,
		DisableIdentity: true,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return newRedisSink(client, o), nil
}

func newRedisSink(client *redis.Client, o RedisOptions) *RedisSink {
	if o.Key == "" {
		o.Key = DefaultKey
	}
	if o.MaxLen <= 0 {
		o.MaxLen = DefaultMaxLen
	}
	return &RedisSink{client: client, key: o.Key, maxLen: o.MaxLen}
}

func (r *RedisSink) Publish(ctx context.Context, t Transition) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal transition: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.key, data)
	pipe.LTrim(ctx, r.key, 0, r.maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Recent returns up to n transitions, newest first.
func (r *RedisSink) Recent(ctx context.Context, n int64) ([]Transition, error) {
	raw, err := r.client.LRange(ctx, r.key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	out := make([]Transition, 0, len(raw))
	for _, s := range raw {
		var t Transition
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			return nil, fmt.Errorf("decode transition: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *RedisSink) Close() error { return r.client.Close() }
