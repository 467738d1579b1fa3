package embedding

import (
	"container/list"
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Cache stores embeddings by key
type Cache interface {
	Get(ctx context.Context, key string) ([]float64, bool)
	Set(ctx context.Context, key string, v []float64, ttl time.Duration)
}

// Cache backends
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// NewCache builds the cache named by backend. "none" returns a nil Cache.
func NewCache(ctx context.Context, backend, redisAddr string, capacity int) (Cache, error) {
	switch backend {
	case CacheNone, "":
		return nil, nil
	case CacheMemory:
		return NewLocalLRU(capacity), nil
	case CacheRedis:
		c, err := NewRedisCache(ctx, redisAddr)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, eris.Errorf("embedding: unknown cache backend %q", backend)
	}
}

// LocalLRU is an in-process LRU with TTL
type LocalLRU struct {
	mu   sync.Mutex
	cap  int
	list *list.List // front = most recent
	m    map[string]*list.Element
}

type lruEntry struct {
	key string
	vec []float64
	exp time.Time
}

// NewLocalLRU creates an LRU holding at most capacity entries
func NewLocalLRU(capacity int) *LocalLRU {
	if capacity <= 0 {
		capacity = 1024
	}
	return &LocalLRU{cap: capacity, list: list.New(), m: make(map[string]*list.Element, capacity)}
}

func (l *LocalLRU) Get(_ context.Context, key string) ([]float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	el, ok := l.m[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(lruEntry)
	if !ent.exp.After(time.Now()) {
		l.list.Remove(el)
		delete(l.m, key)
		return nil, false
	}
	l.list.MoveToFront(el)
	return ent.vec, true
}

func (l *LocalLRU) Set(_ context.Context, key string, v []float64, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ent := lruEntry{key: key, vec: v, exp: time.Now().Add(ttl)}
	if el, ok := l.m[key]; ok {
		el.Value = ent
		l.list.MoveToFront(el)
		return
	}
	l.m[key] = l.list.PushFront(ent)
	if l.list.Len() > l.cap {
		if oldest := l.list.Back(); oldest != nil {
			delete(l.m, oldest.Value.(lruEntry).key)
			l.list.Remove(oldest)
		}
	}
}

// Len returns the number of cached entries, expired ones included
func (l *LocalLRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list.Len()
}

// RedisCache stores embeddings in Redis as little-endian float64s
type RedisCache struct {
	cli *redis.Client
}

// NewRedisCache connects to addr and pings it once
func NewRedisCache(ctx context.Context, addr string) (*RedisCache, error) {
	cli := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, eris.Wrapf(err, "embedding: ping redis %s", addr)
	}
	return &RedisCache{cli: cli}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]float64, bool) {
	b, err := r.cli.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("embedding: redis get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return decodeVector(b)
}

func (r *RedisCache) Set(ctx context.Context, key string, v []float64, ttl time.Duration) {
	if err := r.cli.Set(ctx, key, encodeVector(v), ttl).Err(); err != nil {
		zap.L().Warn("embedding: redis set failed", zap.String("key", key), zap.Error(err))
	}
}

// Close closes the Redis client
func (r *RedisCache) Close() error {
	return r.cli.Close()
}

func encodeVector(v []float64) []byte {
	b := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(b[i*8:], math.Float64bits(f))
	}
	return b
}

func decodeVector(b []byte) ([]float64, bool) {
	if len(b)%8 != 0 {
		return nil, false
	}
	out := make([]float64, len(b)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out, true
}

// CacheKey derives the cache key for text embedded with model
func CacheKey(model, text string) string {
	h := md5.Sum([]byte(model + "|" + text))
	return "emb:" + hex.EncodeToString(h[:])
}
