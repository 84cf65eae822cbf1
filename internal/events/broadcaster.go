// Package events publishes assignment outcomes to a Redis Pub/Sub channel
// after a successful commit. The connection lifecycle — a persistent client
// with a reconnect goroutine triggered off failures, torn down through a
// shutdown channel and a WaitGroup-bounded Close — is adapted from the
// teacher's Asterisk Manager Interface client, with the AMI wire protocol
// replaced by a plain Redis PUBLISH.
package events

import (
    "context"
    "encoding/json"
    "sync"
    "sync/atomic"
    "time"

    "github.com/go-redis/redis/v8"

    "github.com/hamzaKhattat/lead-router-core/internal/models"
    "github.com/hamzaKhattat/lead-router-core/pkg/errors"
    "github.com/hamzaKhattat/lead-router-core/pkg/logger"
)

const defaultChannel = "lead-assignments"

// Config holds broadcaster connection settings.
type Config struct {
    Addr              string
    Password          string
    DB                int
    Channel           string
    ReconnectInterval time.Duration
    PublishTimeout    time.Duration
}

// Broadcaster publishes assignment events to Redis Pub/Sub. It satisfies
// assignment.EventSink.
type Broadcaster struct {
    config Config
    client *redis.Client

    mu        sync.RWMutex
    connected bool

    shutdown      chan struct{}
    reconnectChan chan struct{}
    wg            sync.WaitGroup

    totalPublished uint64
    totalFailed    uint64
}

// New creates a Broadcaster and performs the initial connection.
func New(ctx context.Context, config Config) (*Broadcaster, error) {
    if config.Channel == "" {
        config.Channel = defaultChannel
    }
    if config.ReconnectInterval == 0 {
        config.ReconnectInterval = 5 * time.Second
    }
    if config.PublishTimeout == 0 {
        config.PublishTimeout = 2 * time.Second
    }

    b := &Broadcaster{
        config:        config,
        shutdown:      make(chan struct{}),
        reconnectChan: make(chan struct{}, 1),
    }

    if err := b.connect(ctx); err != nil {
        return nil, err
    }

    b.wg.Add(1)
    go b.reconnectHandler()

    return b, nil
}

func (b *Broadcaster) connect(ctx context.Context) error {
    b.mu.Lock()
    defer b.mu.Unlock()

    client := redis.NewClient(&redis.Options{
        Addr:     b.config.Addr,
        Password: b.config.Password,
        DB:       b.config.DB,
    })

    pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()

    if err := client.Ping(pingCtx).Err(); err != nil {
        client.Close()
        return errors.Wrap(err, errors.ErrRedis, "failed to connect to broadcaster redis")
    }

    b.client = client
    b.connected = true
    logger.WithField("addr", b.config.Addr).Info("assignment event broadcaster connected")
    return nil
}

// Publish sends an assignment event on the configured channel. Failures are
// returned to the caller (who logs and discards, per the post-commit
// best-effort contract) and also trigger a reconnect attempt.
func (b *Broadcaster) Publish(ctx context.Context, event models.AssignmentEvent) error {
    b.mu.RLock()
    client := b.client
    connected := b.connected
    b.mu.RUnlock()

    if !connected || client == nil {
        b.triggerReconnect()
        return errors.New(errors.ErrRedis, "broadcaster not connected")
    }

    payload, err := json.Marshal(event)
    if err != nil {
        return errors.Wrap(err, errors.ErrInternal, "marshal assignment event")
    }

    publishCtx, cancel := context.WithTimeout(ctx, b.config.PublishTimeout)
    defer cancel()

    if err := client.Publish(publishCtx, b.config.Channel, payload).Err(); err != nil {
        atomic.AddUint64(&b.totalFailed, 1)
        b.triggerReconnect()
        return errors.Wrap(err, errors.ErrRedis, "publish assignment event")
    }

    atomic.AddUint64(&b.totalPublished, 1)
    return nil
}

func (b *Broadcaster) triggerReconnect() {
    select {
    case b.reconnectChan <- struct{}{}:
    default:
    }
}

func (b *Broadcaster) reconnectHandler() {
    defer b.wg.Done()

    for {
        select {
        case <-b.shutdown:
            return
        case <-b.reconnectChan:
            logger.Info("broadcaster reconnection triggered")

            b.mu.Lock()
            b.connected = false
            if b.client != nil {
                b.client.Close()
            }
            b.mu.Unlock()

            time.Sleep(b.config.ReconnectInterval)

            if err := b.connect(context.Background()); err != nil {
                logger.WithError(err).Error("broadcaster reconnection failed")
                b.triggerReconnect()
            }
        }
    }
}

// Close shuts the broadcaster down, waiting up to 5 seconds for the
// reconnect goroutine to exit.
func (b *Broadcaster) Close() {
    b.mu.Lock()
    select {
    case <-b.shutdown:
        b.mu.Unlock()
        return
    default:
    }
    close(b.shutdown)
    if b.client != nil {
        b.client.Close()
    }
    b.connected = false
    b.mu.Unlock()

    done := make(chan struct{})
    go func() {
        b.wg.Wait()
        close(done)
    }()

    select {
    case <-done:
        logger.Info("broadcaster closed gracefully")
    case <-time.After(5 * time.Second):
        logger.Warn("broadcaster close timeout")
    }
}

// Stats returns publish counters, used by the health/ops surface.
func (b *Broadcaster) Stats() map[string]interface{} {
    return map[string]interface{}{
        "total_published": atomic.LoadUint64(&b.totalPublished),
        "total_failed":    atomic.LoadUint64(&b.totalFailed),
        "connected":       b.IsConnected(),
    }
}

func (b *Broadcaster) IsConnected() bool {
    b.mu.RLock()
    defer b.mu.RUnlock()
    return b.connected
}
