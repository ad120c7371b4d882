package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flarexio/docrag/conversation"
)

const keyPrefix = "docrag:session:"

type Config struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewStore keeps each session as a Redis list of JSON encoded turns. A
// positive ttl expires idle sessions.
func NewStore(rdb redis.UniversalClient, ttl time.Duration) conversation.Store {
	return &store{rdb, ttl}
}

type store struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func (s *store) History(ctx context.Context, sessionID string) ([]conversation.Turn, error) {
	if sessionID == "" {
		return nil, conversation.ErrInvalidSession
	}

	values, err := s.rdb.LRange(ctx, keyPrefix+sessionID, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	turns := make([]conversation.Turn, 0, len(values))
	for _, value := range values {
		var turn conversation.Turn
		if err := json.Unmarshal([]byte(value), &turn); err != nil {
			return nil, err
		}

		turns = append(turns, turn)
	}

	return turns, nil
}

func (s *store) Append(ctx context.Context, sessionID string, turns ...conversation.Turn) error {
	if sessionID == "" {
		return conversation.ErrInvalidSession
	}

	if len(turns) == 0 {
		return nil
	}

	values := make([]any, len(turns))
	for i, turn := range turns {
		bs, err := json.Marshal(turn)
		if err != nil {
			return err
		}

		values[i] = bs
	}

	key := keyPrefix + sessionID

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)

		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}

		return nil
	})

	return err
}

func (s *store) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return conversation.ErrInvalidSession
	}

	return s.rdb.Del(ctx, keyPrefix+sessionID).Err()
}
