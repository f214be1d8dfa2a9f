package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/fishannotator/reel/internal/config"
)

const redisPrefix = "reel:sessions:"

// listScript returns every live session and drops ids whose key has
// expired from the active set.
var listScript = redis.NewScript(`
	local active_key = KEYS[1]
	local prefix = ARGV[1]
	local active = redis.call('SMEMBERS', active_key)
	local result = {}
	local to_remove = {}

	for i, id in ipairs(active) do
		local session = redis.call('GET', prefix .. id)
		if session then
			table.insert(result, session)
		else
			table.insert(to_remove, id)
		end
	end

	for i, id in ipairs(to_remove) do
		redis.call('SREM', active_key, id)
	end

	return result
`)

// RedisRegistry shares sessions between workstations through Redis. Each
// session is a JSON string with a TTL plus a member of the active set.
type RedisRegistry struct {
	client redis.UniversalClient
	logger *logrus.Logger
	prefix string
	ttl    time.Duration
}

// NewRedisClient builds a client from the redis config section. A single
// address yields a plain client, several a cluster client.
func NewRedisClient(cfg config.RedisConfig) redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        cfg.Addresses,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})
}

func NewRedisRegistry(client redis.UniversalClient, logger *logrus.Logger, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisRegistry{
		client: client,
		logger: logger,
		prefix: redisPrefix,
		ttl:    ttl,
	}
}

func (r *RedisRegistry) activeKey() string {
	return r.prefix + "active"
}

func (r *RedisRegistry) Put(ctx context.Context, s *Session) error {
	key := r.prefix + s.ID
	c := s.clone()
	now := time.Now()

	existing, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var old Session
		if jsonErr := json.Unmarshal(existing, &old); jsonErr == nil {
			c.CreatedAt = old.CreatedAt
		} else {
			c.CreatedAt = now
		}
	case errors.Is(err, redis.Nil):
		c.CreatedAt = now
		r.logger.WithFields(logrus.Fields{
			"session_id":  s.ID,
			"workstation": s.Workstation,
			"path":        s.Path,
		}).Info("Session registered")
	default:
		return fmt.Errorf("failed to check existing session: %w", err)
	}
	c.LastHeartbeat = now

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, r.ttl)
		pipe.SAdd(ctx, r.activeKey(), s.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Remove(ctx context.Context, id string) error {
	deleted, err := r.client.Del(ctx, r.prefix+id).Result()
	if err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}

	if err := r.client.SRem(ctx, r.activeKey(), id).Err(); err != nil {
		r.logger.WithError(err).WithField("session_id", id).Warn("Failed to remove session from active set")
	}

	if deleted == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	r.logger.WithField("session_id", id).Info("Session removed")
	return nil
}

func (r *RedisRegistry) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, r.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

func (r *RedisRegistry) List(ctx context.Context) ([]*Session, error) {
	res, err := listScript.Run(ctx, r.client, []string{r.activeKey()}, r.prefix).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T from list script", res)
	}

	sessions := make([]*Session, 0, len(values))
	for _, val := range values {
		data, ok := val.(string)
		if !ok {
			r.logger.Warn("Invalid data type in session list")
			continue
		}
		var s Session
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			r.logger.WithError(err).Warn("Failed to unmarshal session")
			continue
		}
		sessions = append(sessions, &s)
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.Before(sessions[j].CreatedAt) })
	return sessions, nil
}

// Close releases the client.
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
