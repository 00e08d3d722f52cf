package geoindex

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/ports"
)

const (
	geoKey      = "captain:geo"       // GEO sorted set of captain positions
	lastSeenKey = "captain:last_seen" // hash captainID -> unix seconds
)

// RedisGeoIndex keeps last known captain positions in a Redis GEO set.
// A companion hash records when each position was written, so captains
// that stop reporting can be reaped after the location TTL.
type RedisGeoIndex struct {
	rdb *redis.Client
}

var _ ports.GeoIndex = (*RedisGeoIndex)(nil)

func New(rdb *redis.Client) *RedisGeoIndex {
	return &RedisGeoIndex{rdb: rdb}
}

// Upsert records the captain's position and refreshes its last-seen stamp.
func (g *RedisGeoIndex) Upsert(ctx context.Context, captainID string, p geo.Point) error {
	if err := p.Validate(); err != nil {
		return err
	}

	pipe := g.rdb.TxPipeline()
	pipe.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      captainID,
		Longitude: p.Lon,
		Latitude:  p.Lat,
	})
	pipe.HSet(ctx, lastSeenKey, captainID, time.Now().Unix())

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("geo upsert: %w", err)
	}
	return nil
}

// Remove drops the captain from the index (offline or on a ride).
func (g *RedisGeoIndex) Remove(ctx context.Context, captainID string) error {
	pipe := g.rdb.TxPipeline()
	pipe.ZRem(ctx, geoKey, captainID)
	pipe.HDel(ctx, lastSeenKey, captainID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("geo remove: %w", err)
	}
	return nil
}

// Nearby returns captains within radiusKM of p, nearest first.
func (g *RedisGeoIndex) Nearby(ctx context.Context, p geo.Point, radiusKM float64) ([]ports.CaptainDistance, error) {
	if radiusKM <= 0 {
		return nil, nil
	}

	locs, err := g.rdb.GeoSearchLocation(ctx, geoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  p.Lon,
			Latitude:   p.Lat,
			Radius:     radiusKM,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geo search: %w", err)
	}

	out := make([]ports.CaptainDistance, 0, len(locs))
	for _, loc := range locs {
		out = append(out, ports.CaptainDistance{
			CaptainID:  loc.Name,
			DistanceKM: loc.Dist,
		})
	}
	return out, nil
}

// LastKnown returns the captain's stored position, or nil when absent.
func (g *RedisGeoIndex) LastKnown(ctx context.Context, captainID string) (*geo.Point, error) {
	pos, err := g.rdb.GeoPos(ctx, geoKey, captainID).Result()
	if err != nil {
		return nil, fmt.Errorf("geo pos: %w", err)
	}
	if len(pos) == 0 || pos[0] == nil {
		return nil, nil
	}
	return &geo.Point{Lon: pos[0].Longitude, Lat: pos[0].Latitude}, nil
}

// ReapStale removes captains whose last report is older than ttl and
// returns how many were evicted.
func (g *RedisGeoIndex) ReapStale(ctx context.Context, ttl time.Duration) (int, error) {
	stamps, err := g.rdb.HGetAll(ctx, lastSeenKey).Result()
	if err != nil {
		return 0, fmt.Errorf("geo reap: read stamps: %w", err)
	}

	cutoff := time.Now().Add(-ttl).Unix()
	var stale []string
	for captainID, raw := range stamps {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ts < cutoff {
			stale = append(stale, captainID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	pipe := g.rdb.TxPipeline()
	pipe.ZRem(ctx, geoKey, toAny(stale)...)
	pipe.HDel(ctx, lastSeenKey, stale...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("geo reap: evict: %w", err)
	}

	return len(stale), nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
