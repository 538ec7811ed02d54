package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/archmap/archmap-backend/internal/logger"
)

// InvalidationBus fans a completed roll-up rebuild out to every replica so
// each one drops its cached graphs for the workspace. A deployment without
// redis simply runs without a bus; the local cache is invalidated directly.
type InvalidationBus interface {
	PublishRebuilt(ctx context.Context, workspaceID uuid.UUID, version int) error
	StartForwarder(ctx context.Context, onRebuilt func(workspaceID uuid.UUID, version int)) error
	Close() error
}

type rebuildMessage struct {
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Version     int       `json:"version"`
}

type invalidationBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewInvalidationBus(log *logger.Logger) (InvalidationBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_CHANNEL"))
	if ch == "" {
		ch = "rollup-rebuilt"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &invalidationBus{
		log:     log.With("service", "RedisInvalidationBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *invalidationBus) PublishRebuilt(ctx context.Context, workspaceID uuid.UUID, version int) error {
	raw, err := json.Marshal(rebuildMessage{WorkspaceID: workspaceID, Version: version})
	if err != nil {
		return fmt.Errorf("marshal rebuild message: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish rebuild message: %w", err)
	}
	return nil
}

func (b *invalidationBus) StartForwarder(ctx context.Context, onRebuilt func(workspaceID uuid.UUID, version int)) error {
	if onRebuilt == nil {
		return fmt.Errorf("onRebuilt callback required")
	}
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	ch := sub.Channel()
	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var m rebuildMessage
				if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
					b.log.Warn("Dropping malformed rebuild message", "error", err)
					continue
				}
				onRebuilt(m.WorkspaceID, m.Version)
			}
		}
	}()
	return nil
}

func (b *invalidationBus) Close() error {
	return b.rdb.Close()
}
