package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"pix-gateway/internal/core/domain"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// reserveScript adds ARGV[1] to both windows only when neither cap would be
// exceeded. A negative cap means unbounded. Returns {reserved, daily, monthly}
// with the counters as they were before the call.
var reserveScript = goredis.NewScript(`
local day = tonumber(redis.call('GET', KEYS[1]) or '0')
local month = tonumber(redis.call('GET', KEYS[2]) or '0')
local amount = tonumber(ARGV[1])
local dailyCap = tonumber(ARGV[2])
local monthlyCap = tonumber(ARGV[3])
if (dailyCap >= 0 and day + amount > dailyCap) or (monthlyCap >= 0 and month + amount > monthlyCap) then
	return {0, day, month}
end
redis.call('INCRBY', KEYS[1], amount)
redis.call('EXPIREAT', KEYS[1], ARGV[4])
redis.call('INCRBY', KEYS[2], amount)
redis.call('EXPIREAT', KEYS[2], ARGV[5])
return {1, day, month}
`)

// UsageStore implements ports.UsageStore with one counter per acquirer,
// direction and calendar window (UTC day and UTC month).
type UsageStore struct {
	client goredis.UniversalClient
	prefix string
}

// NewUsageStore creates a new Redis-backed acquirer usage store.
func NewUsageStore(client goredis.UniversalClient) *UsageStore {
	return &UsageStore{
		client: client,
		prefix: keyPrefix + "usage:",
	}
}

// Get returns the volume already routed in the day and month containing at.
func (s *UsageStore) Get(ctx context.Context, acquirerID uuid.UUID, direction domain.Direction, at time.Time) (domain.AcquirerUsage, error) {
	dayKey, monthKey := s.keys(acquirerID, direction, at)

	vals, err := s.client.MGet(ctx, dayKey, monthKey).Result()
	if err != nil {
		return domain.AcquirerUsage{}, fmt.Errorf("redis usage get: %w", err)
	}

	daily, err := counterValue(vals[0])
	if err != nil {
		return domain.AcquirerUsage{}, fmt.Errorf("redis usage get %s: %w", dayKey, err)
	}
	monthly, err := counterValue(vals[1])
	if err != nil {
		return domain.AcquirerUsage{}, fmt.Errorf("redis usage get %s: %w", monthKey, err)
	}
	return domain.AcquirerUsage{Daily: daily, Monthly: monthly}, nil
}

// Add counts amount against both windows. Keys expire a day after their window closes.
func (s *UsageStore) Add(ctx context.Context, acquirerID uuid.UUID, direction domain.Direction, amount int64, at time.Time) error {
	dayKey, monthKey := s.keys(acquirerID, direction, at)
	dayExpiry, monthExpiry := expiries(at)

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.IncrBy(ctx, dayKey, amount)
		pipe.ExpireAt(ctx, dayKey, dayExpiry)
		pipe.IncrBy(ctx, monthKey, amount)
		pipe.ExpireAt(ctx, monthKey, monthExpiry)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis usage add: %w", err)
	}
	return nil
}

// Reserve atomically counts amount against both windows unless that would take
// either past its cap. Nil caps are unbounded. The returned usage is what the
// windows held before the call.
func (s *UsageStore) Reserve(
	ctx context.Context, acquirerID uuid.UUID, direction domain.Direction, amount int64, at time.Time, dailyCap, monthlyCap *int64,
) (domain.AcquirerUsage, bool, error) {
	dayKey, monthKey := s.keys(acquirerID, direction, at)
	dayExpiry, monthExpiry := expiries(at)

	vals, err := reserveScript.Run(ctx, s.client, []string{dayKey, monthKey},
		amount, capArg(dailyCap), capArg(monthlyCap), dayExpiry.Unix(), monthExpiry.Unix(),
	).Int64Slice()
	if err != nil {
		return domain.AcquirerUsage{}, false, fmt.Errorf("redis usage reserve: %w", err)
	}
	if len(vals) != 3 {
		return domain.AcquirerUsage{}, false, fmt.Errorf("redis usage reserve: unexpected reply %v", vals)
	}
	return domain.AcquirerUsage{Daily: vals[1], Monthly: vals[2]}, vals[0] == 1, nil
}

// Release gives back a reservation that did not turn into a charge.
func (s *UsageStore) Release(ctx context.Context, acquirerID uuid.UUID, direction domain.Direction, amount int64, at time.Time) error {
	return s.Add(ctx, acquirerID, direction, -amount, at)
}

func expiries(at time.Time) (day, month time.Time) {
	at = at.UTC()
	dayEnd := time.Date(at.Year(), at.Month(), at.Day()+1, 0, 0, 0, 0, time.UTC)
	monthEnd := time.Date(at.Year(), at.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return dayEnd.Add(24 * time.Hour), monthEnd.Add(24 * time.Hour)
}

func capArg(c *int64) int64 {
	if c == nil {
		return -1
	}
	return *c
}

func (s *UsageStore) keys(acquirerID uuid.UUID, direction domain.Direction, at time.Time) (day, month string) {
	at = at.UTC()
	base := s.prefix + acquirerID.String() + ":" + string(direction)
	return base + ":d:" + at.Format("20060102"), base + ":m:" + at.Format("200601")
}

func counterValue(v any) (int64, error) {
	if v == nil {
		return 0, nil
	}
	str, ok := v.(string)
	if !ok {
		return 0, errors.New("unexpected counter type")
	}
	return strconv.ParseInt(str, 10, 64)
}
