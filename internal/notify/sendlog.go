package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SendRecord is the last delivery of one notification key.
type SendRecord struct {
	At   time.Time `json:"at"`
	Hash string    `json:"hash"`
}

// SendLog remembers deliveries for cooldown and dedupe checks.
type SendLog interface {
	Last(ctx context.Context, key string) (SendRecord, bool, error)
	Record(ctx context.Context, key string, record SendRecord, ttl time.Duration) error
}

// MemorySendLog keeps delivery history in process.
type MemorySendLog struct {
	mu      sync.Mutex
	records map[string]SendRecord
}

// NewMemorySendLog constructs an empty in-process send log.
func NewMemorySendLog() *MemorySendLog {
	return &MemorySendLog{records: make(map[string]SendRecord)}
}

func (l *MemorySendLog) Last(_ context.Context, key string) (SendRecord, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[key]
	return record, ok, nil
}

func (l *MemorySendLog) Record(_ context.Context, key string, record SendRecord, _ time.Duration) error {
	l.mu.Lock()
	l.records[key] = record
	l.mu.Unlock()
	return nil
}

const (
	defaultRedisPrefix = "meter:notify:"
	historyLimit       = 100
)

// RedisSendLog stores delivery history in Redis so that several replicas
// share one cooldown. It also keeps the most recent deliveries in a list.
type RedisSendLog struct {
	client redis.Cmdable
	prefix string
}

// NewRedisSendLog constructs a Redis-backed send log.
func NewRedisSendLog(client redis.Cmdable, prefix string) (*RedisSendLog, error) {
	if client == nil {
		return nil, errors.New("notify: nil redis client")
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisSendLog{client: client, prefix: prefix}, nil
}

func (l *RedisSendLog) Last(ctx context.Context, key string) (SendRecord, bool, error) {
	data, err := l.client.Get(ctx, l.prefix+"sent:"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return SendRecord{}, false, nil
	}
	if err != nil {
		return SendRecord{}, false, fmt.Errorf("notify: redis get: %w", err)
	}
	var record SendRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return SendRecord{}, false, fmt.Errorf("notify: decode send record: %w", err)
	}
	return record, true, nil
}

// Record stores the delivery with ttl so stale keys expire on their own. A
// zero ttl keeps the key.
func (l *RedisSendLog) Record(ctx context.Context, key string, record SendRecord, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	entry, err := json.Marshal(struct {
		Key string `json:"key"`
		SendRecord
	}{Key: key, SendRecord: record})
	if err != nil {
		return err
	}
	history := l.prefix + "history"
	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, l.prefix+"sent:"+key, data, ttl)
		pipe.LPush(ctx, history, entry)
		pipe.LTrim(ctx, history, 0, historyLimit-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("notify: redis record: %w", err)
	}
	return nil
}

// History returns up to limit recent deliveries, newest first.
func (l *RedisSendLog) History(ctx context.Context, limit int) ([]SendRecord, error) {
	if limit <= 0 || limit > historyLimit {
		limit = historyLimit
	}
	items, err := l.client.LRange(ctx, l.prefix+"history", 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("notify: redis history: %w", err)
	}
	out := make([]SendRecord, 0, len(items))
	for _, item := range items {
		var record SendRecord
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}
