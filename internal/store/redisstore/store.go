package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/leadchat/internal/geo"
)

const (
	geoKeyPrefix     = "leadchat:geo:"
	sessionKeyPrefix = "leadchat:session:"
)

type Store struct {
	rdb *redis.Client
	// namespace separates widget installs sharing one redis for session keys
	namespace string
}

func New(addr, password string, db int) *Store {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}))
}

func NewWithClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// WithNamespace returns a copy whose session keys live under ns.
func (s *Store) WithNamespace(ns string) *Store {
	return &Store{rdb: s.rdb, namespace: ns}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

// geo cache

func (s *Store) GetLocation(ctx context.Context, ip string) (geo.Location, bool, error) {
	b, err := s.rdb.Get(ctx, geoKeyPrefix+ip).Bytes()
	if errors.Is(err, redis.Nil) {
		return geo.Location{}, false, nil
	}
	if err != nil {
		return geo.Location{}, false, err
	}
	var loc geo.Location
	if err := json.Unmarshal(b, &loc); err != nil {
		return geo.Location{}, false, err
	}
	return loc, true, nil
}

func (s *Store) SetLocation(ctx context.Context, ip string, loc geo.Location, ttl time.Duration) error {
	b, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, geoKeyPrefix+ip, b, ttl).Err()
}

// session key/value, used as durable widget storage

func (s *Store) sessionKey(key string) string {
	if s.namespace == "" {
		return sessionKeyPrefix + key
	}
	return sessionKeyPrefix + s.namespace + ":" + key
}

// Get returns "" when the key is absent.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, s.sessionKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, s.sessionKey(key), value, 0).Err()
}
