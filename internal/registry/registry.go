// Package registry advertises loaded sessions so several annotation
// clients on a network can see which survey video each workstation has
// open. Entries expire unless a heartbeat refreshes them.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/fishannotator/reel/internal/config"
)

var ErrSessionNotFound = errors.New("session not found")

type Registry interface {
	// Put creates or refreshes a session. CreatedAt of an existing entry is
	// preserved and LastHeartbeat is set to now.
	Put(ctx context.Context, s *Session) error
	Remove(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Session, error)
	// List returns live sessions; expired ones are pruned as a side effect.
	List(ctx context.Context) ([]*Session, error)
	Close() error
}

// New builds the configured backend. client may be nil for the memory
// backend.
func New(cfg config.RegistryConfig, client redis.UniversalClient, log *logrus.Logger) (Registry, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryRegistry(cfg.TTL), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis registry needs a client")
		}
		return NewRedisRegistry(client, log, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown registry backend %q", cfg.Backend)
	}
}
