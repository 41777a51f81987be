/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package journal appends every broadcast game event to a Redis list, so a
// scoreboard, projector display or archiver can follow games from outside
// the server.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Seednode/bingo/games/bingo"
)

const (
	defaultBuffer = 256
	publishWait   = 5 * time.Second
)

// Record is one journalled event. Timestamp is Unix milliseconds.
type Record struct {
	SessionID string `json:"sessionId"`
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

type Journal struct {
	client  *redis.Client
	key     string
	log     *zap.SugaredLogger
	records chan Record
	dropped atomic.Uint64
}

// New connects to Redis at addr and returns a journal appending to key.
func New(ctx context.Context, addr, key string, log *zap.SugaredLogger) (*Journal, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	pingCtx, cancel := context.WithTimeout(ctx, publishWait)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return NewWithClient(client, key, defaultBuffer, log), nil
}

func NewWithClient(client *redis.Client, key string, buffer int, log *zap.SugaredLogger) *Journal {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Journal{
		client:  client,
		key:     key,
		log:     log,
		records: make(chan Record, buffer),
	}
}

// Observe queues a broadcast event for publishing. It never blocks: when the
// queue is full the event is dropped and counted. Its signature matches
// bingo.Observer.
func (j *Journal) Observe(sessionID string, ev bingo.Event) {
	rec := Record{
		SessionID: sessionID,
		Type:      ev.Type,
		Data:      ev.Data,
		Timestamp: time.Now().UnixMilli(),
	}

	select {
	case j.records <- rec:
	default:
		j.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

// Publish appends rec to the journal list.
func (j *Journal) Publish(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := j.client.RPush(ctx, j.key, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", j.key, err)
	}

	return nil
}

// Run publishes queued records until ctx is done. Publish failures are
// logged and skipped.
func (j *Journal) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case rec := <-j.records:
			pubCtx, cancel := context.WithTimeout(ctx, publishWait)
			err := j.Publish(pubCtx, rec)
			cancel()

			if err != nil {
				j.log.Warnf("JOURNAL: %v", err)
			}
		}
	}
}

func (j *Journal) Close() error {
	return j.client.Close()
}
