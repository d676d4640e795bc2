package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"food-dispatch-service/internal/domain"
	"food-dispatch-service/internal/platform/obs"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Removes every driver last seen before ARGV[1] (unix ms, exclusive) from both
// keys in one step, so a concurrent Put is never lost to a prune.
var pruneScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	redis.call('HDEL', KEYS[2], id)
end
return ids
`)

// Removes driver ARGV[1] only if its last update (unix ms) is not after ARGV[2].
var removeScript = redis.NewScript(`
local seen = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not seen or tonumber(seen) > tonumber(ARGV[2]) then
	return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
return 1
`)

// RedisDriverLocations is a DriverLocationStore shared by several hub
// processes. Locations live in a hash keyed by driver id; a sorted set scored
// by last update time drives stale pruning.
type RedisDriverLocations struct {
	client  *redis.Client
	dataKey string
	seenKey string
}

func NewRedisDriverLocations(client *redis.Client, prefix string) *RedisDriverLocations {
	if prefix == "" {
		prefix = "driver_locations"
	}
	return &RedisDriverLocations{
		client:  client,
		dataKey: prefix + ":data",
		seenKey: prefix + ":seen",
	}
}

// NewRedisClient connects using a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

func (r *RedisDriverLocations) Put(ctx context.Context, loc domain.DriverLocation) error {
	raw, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("put driver location %q: encode: %w", loc.DriverID, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.dataKey, loc.DriverID, raw)
		pipe.ZAdd(ctx, r.seenKey, redis.Z{Score: float64(loc.UpdatedAt.UnixMilli()), Member: loc.DriverID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("put driver location %q: %w", loc.DriverID, err)
	}
	return nil
}

func (r *RedisDriverLocations) Get(ctx context.Context, driverID string) (*domain.DriverLocation, bool, error) {
	raw, err := r.client.HGet(ctx, r.dataKey, driverID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get driver location %q: %w", driverID, err)
	}

	var loc domain.DriverLocation
	if err := json.Unmarshal(raw, &loc); err != nil {
		return nil, false, fmt.Errorf("get driver location %q: decode: %w", driverID, err)
	}
	return &loc, true, nil
}

func (r *RedisDriverLocations) Remove(ctx context.Context, driverID string, seenUntil time.Time) (bool, error) {
	n, err := removeScript.Run(ctx, r.client,
		[]string{r.seenKey, r.dataKey},
		driverID,
		strconv.FormatInt(seenUntil.UnixMilli(), 10),
	).Int()
	if err != nil {
		return false, fmt.Errorf("remove driver location %q: %w", driverID, err)
	}
	return n == 1, nil
}

func (r *RedisDriverLocations) List(ctx context.Context) (_ []domain.DriverLocation, err error) {
	defer obs.Time(ctx, "driver_locations.List")(&err)

	all, err := r.client.HGetAll(ctx, r.dataKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list driver locations: %w", err)
	}

	out := make([]domain.DriverLocation, 0, len(all))
	for id, raw := range all {
		var loc domain.DriverLocation
		if err := json.Unmarshal([]byte(raw), &loc); err != nil {
			return nil, fmt.Errorf("list driver locations: decode %q: %w", id, err)
		}
		out = append(out, loc)
	}
	slices.SortFunc(out, func(a, b domain.DriverLocation) int { return strings.Compare(a.DriverID, b.DriverID) })
	return out, nil
}

func (r *RedisDriverLocations) PruneBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	ids, err := pruneScript.Run(ctx, r.client,
		[]string{r.seenKey, r.dataKey},
		strconv.FormatInt(cutoff.UnixMilli(), 10),
	).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("prune driver locations: %w", err)
	}
	slices.Sort(ids)
	return ids, nil
}
