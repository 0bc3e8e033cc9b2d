package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces checkpoint keys in a shared Redis.
const DefaultRedisPrefix = "flowdesk:checkpoint:"

// RedisStore persists checkpoints in Redis hashes.
// Save uses WATCH/MULTI so the sequence check and the write are one
// optimistic transaction; a concurrent writer aborts it with ErrConflict.
type RedisStore struct {
	client *redis.Client
	prefix string
	owned  bool

	mu     sync.RWMutex
	closed bool
}

// NewRedisStore wraps an existing client. The caller keeps ownership of
// the client; Close does not close it. An empty prefix selects
// DefaultRedisPrefix, and a prefix without a trailing colon gets one.
//
// Thread hashes live under <prefix>thread:<id> and the thread index under
// <prefix>index, so no thread ID can address the index.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisStoreFromURL dials Redis from a redis:// URL and pings it.
// The store owns the client and closes it on Close.
func NewRedisStoreFromURL(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.DialTimeout = 5 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	store := NewRedisStore(client, prefix)
	store.owned = true
	return store, nil
}

func (r *RedisStore) key(threadID string) string {
	return r.prefix + "thread:" + threadID
}

func (r *RedisStore) indexKey() string {
	return r.prefix + "index"
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context, threadID string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return Record{}, ErrStoreClosed
	}

	fields, err := r.client.HGetAll(ctx, r.key(threadID)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("load checkpoint: %w", err)
	}
	if len(fields) == 0 {
		return Record{}, ErrNotFound
	}
	return decodeRedisRecord(threadID, fields)
}

func decodeRedisRecord(threadID string, fields map[string]string) (Record, error) {
	seq, err := strconv.Atoi(fields["seq"])
	if err != nil {
		return Record{}, fmt.Errorf("decode checkpoint sequence for %s: %w", threadID, err)
	}
	nanos, err := strconv.ParseInt(fields["ts"], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("decode checkpoint timestamp for %s: %w", threadID, err)
	}
	return Record{
		ThreadID:  threadID,
		Sequence:  seq,
		Data:      []byte(fields["data"]),
		UpdatedAt: time.Unix(0, nanos).UTC(),
	}, nil
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, threadID string, expectedSeq int, data []byte) (Record, error) {
	if threadID == "" {
		return Record{}, ErrEmptyThreadID
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return Record{}, ErrStoreClosed
	}

	key := r.key(threadID)
	now := time.Now().UTC()

	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "seq").Int()
		if errors.Is(err, redis.Nil) {
			current = 0
		} else if err != nil {
			return err
		}
		if current != expectedSeq {
			return ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"seq", expectedSeq+1,
				"ts", now.UnixNano(),
				"data", data,
			)
			pipe.SAdd(ctx, r.indexKey(), threadID)
			return nil
		})
		return err
	}

	err := r.client.Watch(ctx, txf, key)
	if errors.Is(err, ErrConflict) || errors.Is(err, redis.TxFailedErr) {
		return Record{}, ErrConflict
	}
	if err != nil {
		return Record{}, fmt.Errorf("save checkpoint: %w", err)
	}

	return Record{
		ThreadID:  threadID,
		Sequence:  expectedSeq + 1,
		Data:      cloneBytes(data),
		UpdatedAt: now,
	}, nil
}

// List implements Store.
func (r *RedisStore) List(ctx context.Context) ([]Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrStoreClosed
	}

	threads, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	sort.Strings(threads)

	infos := make([]Info, 0, len(threads))
	for _, threadID := range threads {
		fields, err := r.client.HGetAll(ctx, r.key(threadID)).Result()
		if err != nil {
			return nil, fmt.Errorf("list checkpoints: %w", err)
		}
		if len(fields) == 0 {
			continue
		}
		rec, err := decodeRedisRecord(threadID, fields)
		if err != nil {
			return nil, err
		}
		infos = append(infos, Info{
			ThreadID:  threadID,
			Sequence:  rec.Sequence,
			Timestamp: rec.UpdatedAt,
			Size:      int64(len(rec.Data)),
		})
	}
	return infos, nil
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, threadID string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrStoreClosed
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key(threadID))
		pipe.SRem(ctx, r.indexKey(), threadID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Close implements Store.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if r.owned {
		return r.client.Close()
	}
	return nil
}
