package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"tripdispatch/internal/config"
)

// Key families stored in Redis. Segments are named after these so dispatch
// lock contention shows up apart from GEO lookups and the SMS outbox.
var redisKeyFamilies = []struct {
	prefix string
	family string
}{
	{"lock:dispatch:", "dispatch_lock"},
	{"drivers:locations", "driver_locations"},
	{"sms:outbound", "otp_sms_outbox"},
	{"idempotency:", "idempotency"},
	{"dispatch:", "notifications"},
}

// NewRedisClient connects the shared pool and pings it. Segments are
// recorded when nrApp is set.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, nrApp *newrelic.Application) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.CommandTimeout,
		WriteTimeout: cfg.CommandTimeout,
	})

	client.AddHook(&dispatchRedisHook{app: nrApp})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}

	return client, nil
}

// keyFamily maps a command to the key family its first key belongs to.
func keyFamily(cmd redis.Cmder) string {
	args := cmd.Args()
	if len(args) < 2 {
		return "server"
	}
	key, ok := args[1].(string)
	if !ok {
		return "other"
	}
	for _, f := range redisKeyFamilies {
		if strings.HasPrefix(key, f.prefix) {
			return f.family
		}
	}
	return "other"
}

// pipelineFamily names a pipeline after its commands when they share a
// family, and "mixed" otherwise.
func pipelineFamily(cmds []redis.Cmder) string {
	if len(cmds) == 0 {
		return "server"
	}
	family := keyFamily(cmds[0])
	for _, cmd := range cmds[1:] {
		if keyFamily(cmd) != family {
			return "mixed"
		}
	}
	return family
}

// dispatchRedisHook logs failed dials and wraps commands in datastore
// segments named after their key family.
type dispatchRedisHook struct {
	app *newrelic.Application
}

func (h *dispatchRedisHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			log.Printf("[REDIS] dial %s failed: %v", addr, err)
		}
		return conn, err
	}
}

func (h *dispatchRedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if txn := h.txn(ctx); txn != nil {
			defer h.segment(txn, cmd.Name(), keyFamily(cmd)).End()
		}
		return next(ctx, cmd)
	}
}

func (h *dispatchRedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if txn := h.txn(ctx); txn != nil {
			defer h.segment(txn, "pipeline", pipelineFamily(cmds)).End()
		}
		return next(ctx, cmds)
	}
}

func (h *dispatchRedisHook) txn(ctx context.Context) *newrelic.Transaction {
	if h.app == nil {
		return nil
	}
	return newrelic.FromContext(ctx)
}

func (h *dispatchRedisHook) segment(txn *newrelic.Transaction, operation, family string) *newrelic.DatastoreSegment {
	return &newrelic.DatastoreSegment{
		StartTime:  txn.StartSegmentNow(),
		Product:    newrelic.DatastoreRedis,
		Operation:  operation,
		Collection: family,
	}
}
