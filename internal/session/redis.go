package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/schemebot/internal/model"
	"github.com/redis/go-redis/v9"
)

// keyPrefix はセッション状態を保存するRedisキーの接頭辞。
const keyPrefix = "schemebot:session:"

// DefaultTTL はセッション状態の既定の有効期間。書き込みのたびに延長される。
const DefaultTTL = 3600 * time.Second

// RedisOptions はRedisクライアントの接続設定。
type RedisOptions struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRedisClient はURLからRedisクライアントを生成する。
// URLが空の場合はnil, nilを返す（Redis未設定）。
// 接続確認は行わないため、起動時にRedisが停止していても後から復帰できる。
func NewRedisClient(opts RedisOptions) (*redis.Client, error) {
	if opts.URL == "" {
		return nil, nil
	}

	o, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if opts.PoolSize > 0 {
		o.PoolSize = opts.PoolSize
	}
	if opts.DialTimeout > 0 {
		o.DialTimeout = opts.DialTimeout
	}
	if opts.ReadTimeout > 0 {
		o.ReadTimeout = opts.ReadTimeout
	}
	if opts.WriteTimeout > 0 {
		o.WriteTimeout = opts.WriteTimeout
	}
	// 障害時に会話ターンを長く待たせないよう再試行しない
	o.MaxRetries = -1

	return redis.NewClient(o), nil
}

// RedisStore はRedisによるStore実装。
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisStore はRedisStoreを生成する。ttlが0以下の場合はDefaultTTLを使用する。
func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Get はセッション状態を取得する。キーが存在しない場合はnil, nilを返す。
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*model.SessionState, error) {
	data, err := s.client.Get(ctx, keyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	return decodeState(data)
}

// Put はセッション状態を保存し、有効期間をリセットする。
func (s *RedisStore) Put(ctx context.Context, sessionID string, state *model.SessionState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, keyPrefix+sessionID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
