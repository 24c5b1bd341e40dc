package queueaccess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"montage/internal/api"
	"montage/internal/config"
	"montage/internal/queue"
	"montage/internal/services"
)

const dialTimeout = 2 * time.Second

// Session represents a run access handle and its cleanup function.
type Session struct {
	Access Access
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// DialDaemon returns a client for the configured daemon, or an error when it
// does not answer its health check.
func DialDaemon(ctx context.Context, cfg *config.Config) (*api.Client, error) {
	if cfg == nil || cfg.API.Bind == "" {
		return nil, errors.New("daemon api address not configured")
	}
	client := api.NewClient(cfg.API.Bind, cfg.API.Token)
	healthCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Health(healthCtx); err != nil {
		return nil, err
	}
	return client, nil
}

// OpenWithFallback tries daemon-backed access first, then falls back to direct store access.
func OpenWithFallback(
	cfg *config.Config,
	dial func() (*api.Client, error),
	openStore func() (*queue.Store, error),
) (Session, error) {
	if dial != nil {
		if client, err := dial(); err == nil {
			return Session{Access: NewClientAccess(client)}, nil
		}
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open run store: no store opener configured")
	}
	store, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open run store: %w", err)
	}
	return Session{
		Access: NewStoreAccess(cfg, store),
		close:  store.Close,
	}, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, services.ErrNotFound)
}
