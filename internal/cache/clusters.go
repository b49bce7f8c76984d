package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/smukkama/survey-sim/internal/cluster"
	"github.com/smukkama/survey-sim/internal/log"
	"github.com/smukkama/survey-sim/internal/portfolio"
)

// ErrCacheMiss is returned by Get when nothing is stored for the key
var ErrCacheMiss = errors.New("cache miss")

const keyPrefix = "surveysim:clusters:"

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

// ClusterCache stores clustering membership in Redis, keyed by a
// fingerprint of the sources and clustering parameters. Values are
// msgpack-encoded cluster.Membership compressed with zstd.
type ClusterCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewClusterCache creates a cache. A zero ttl keeps entries forever.
func NewClusterCache(client *redis.Client, ttl time.Duration, logger *log.Logger) *ClusterCache {
	return &ClusterCache{redis: client, ttl: ttl, logger: logger}
}

// Fingerprint identifies a source set and clustering parameters. It does
// not depend on source order.
func Fingerprint(sources []portfolio.Source, p cluster.Params) string {
	sorted := append([]portfolio.Source(nil), sources...)
	portfolio.SortCanonical(sorted)

	h := sha256.New()
	var buf [8]byte
	putFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	putFloat(p.EpsKm)
	binary.LittleEndian.PutUint64(buf[:], uint64(p.MinSize))
	h.Write(buf[:])
	for _, s := range sorted {
		h.Write([]byte(s.ID))
		h.Write([]byte{0})
		putFloat(s.Latitude)
		putFloat(s.Longitude)
		putFloat(s.EmissionKgh)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func key(fingerprint string) string { return keyPrefix + fingerprint }

// Get returns the cached clustering of sources under p, or ErrCacheMiss.
func (c *ClusterCache) Get(ctx context.Context, sources []portfolio.Source, p cluster.Params) (*cluster.Result, error) {
	k := key(Fingerprint(sources, p))

	data, err := c.redis.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get clusters from Redis: %w", err)
	}

	m, err := decode(data)
	if err != nil {
		return nil, err
	}
	res, err := cluster.Rebuild(sources, m, p)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild cached clusters: %w", err)
	}
	return res, nil
}

// Set stores res as the clustering of sources.
func (c *ClusterCache) Set(ctx context.Context, sources []portfolio.Source, res *cluster.Result) error {
	data, err := encode(res.Membership())
	if err != nil {
		return err
	}
	k := key(Fingerprint(sources, res.Params))
	if err := c.redis.Set(ctx, k, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set clusters in Redis: %w", err)
	}
	return nil
}

// GetOrCluster returns the cached clustering or computes and stores it.
// Cache failures are logged and never fail the call; hit reports whether
// the result came from Redis.
func (c *ClusterCache) GetOrCluster(ctx context.Context, sources []portfolio.Source, p cluster.Params) (res *cluster.Result, hit bool, err error) {
	res, err = c.Get(ctx, sources, p)
	switch {
	case err == nil:
		c.logger.Debug("cluster cache hit", "clusters", len(res.Clusters))
		return res, true, nil
	case !errors.Is(err, ErrCacheMiss):
		c.logger.Warn("cluster cache unavailable", "error", err)
	}

	res, err = cluster.DBSCAN(sources, p)
	if err != nil {
		return nil, false, err
	}
	if err := c.Set(ctx, sources, res); err != nil {
		c.logger.Warn("failed to cache clusters", "error", err)
	}
	return res, false, nil
}

func encode(m cluster.Membership) ([]byte, error) {
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(m); err != nil {
		return nil, fmt.Errorf("failed to encode membership: %w", err)
	}
	return encoder.EncodeAll(buf.Bytes(), nil), nil
}

func decode(data []byte) (cluster.Membership, error) {
	var m cluster.Membership
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return m, fmt.Errorf("failed to decompress membership: %w", err)
	}
	if err := msgpack.NewDecoder(bytes.NewReader(raw)).Decode(&m); err != nil {
		return m, fmt.Errorf("failed to decode membership: %w", err)
	}
	return m, nil
}
