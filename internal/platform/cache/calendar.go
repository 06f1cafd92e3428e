// Package cache keeps per-month calendar summaries in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const allDoctors = "all"

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// CalendarCache stores the days-with-slots list per doctor and month.
// Keys embed a per-doctor version number; Invalidate bumps the version of
// the doctor and of the all-doctors view so older entries are never read
// again and expire on their TTL.
type CalendarCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewCalendarCache(rdb *redis.Client, ttl time.Duration) *CalendarCache {
	return &CalendarCache{rdb: rdb, ttl: ttl, prefix: "clinic:calendar:"}
}

func scope(doctorID *uuid.UUID) string {
	if doctorID == nil {
		return allDoctors
	}
	return doctorID.String()
}

func (c *CalendarCache) versionKey(scope string) string {
	return c.prefix + "ver:" + scope
}

func (c *CalendarCache) daysKey(scope string, version int64, year int, month time.Month) string {
	return fmt.Sprintf("%sdays:%s:%d:%04d-%02d", c.prefix, scope, version, year, int(month))
}

func (c *CalendarCache) version(ctx context.Context, scope string) (int64, error) {
	ver, err := c.rdb.Get(ctx, c.versionKey(scope)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("read calendar version: %w", err)
	}
	return ver, nil
}

// GetDays returns the cached days, the version the lookup ran against and
// whether the days were present. After a miss, pass that version to
// SetDays.
func (c *CalendarCache) GetDays(ctx context.Context, doctorID *uuid.UUID, year int, month time.Month) ([]int, int64, bool, error) {
	s := scope(doctorID)
	ver, err := c.version(ctx, s)
	if err != nil {
		return nil, 0, false, err
	}
	raw, err := c.rdb.Get(ctx, c.daysKey(s, ver, year, month)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ver, false, nil
	}
	if err != nil {
		return nil, ver, false, fmt.Errorf("read calendar days: %w", err)
	}
	var days []int
	if err := json.Unmarshal(raw, &days); err != nil {
		return nil, ver, false, fmt.Errorf("decode calendar days: %w", err)
	}
	return days, ver, true, nil
}

// SetDays stores days under version. When Invalidate ran since the GetDays
// that produced version, the entry lands on a dead key and is never read.
func (c *CalendarCache) SetDays(ctx context.Context, doctorID *uuid.UUID, year int, month time.Month, version int64, days []int) error {
	if days == nil {
		days = []int{}
	}
	raw, err := json.Marshal(days)
	if err != nil {
		return fmt.Errorf("encode calendar days: %w", err)
	}
	key := c.daysKey(scope(doctorID), version, year, month)
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("write calendar days: %w", err)
	}
	return nil
}

// Invalidate drops every cached month for doctorID and for the all-doctors view.
func (c *CalendarCache) Invalidate(ctx context.Context, doctorID uuid.UUID) error {
	pipe := c.rdb.TxPipeline()
	pipe.Incr(ctx, c.versionKey(doctorID.String()))
	pipe.Incr(ctx, c.versionKey(allDoctors))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("invalidate calendar: %w", err)
	}
	return nil
}
