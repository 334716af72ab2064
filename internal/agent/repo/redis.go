package repo

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/support-router/server/internal/agent/model"
	errx "github.com/support-router/server/internal/core/error"
	logx "github.com/support-router/server/pkg/logger"
)

// RedisDocumentRepository keeps the memory document under a single Redis key.
type RedisDocumentRepository struct {
	rdb redis.Cmdable
	key string
}

func NewRedisDocumentRepository(rdb redis.Cmdable, key string) *RedisDocumentRepository {
	if key == "" {
		key = "support:memory"
	}
	return &RedisDocumentRepository{rdb: rdb, key: key}
}

func (r *RedisDocumentRepository) Load(ctx context.Context) ([]byte, error) {
	b, err := r.rdb.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrDocumentNotFound
		}
		logx.Error().Err(err).Str("key", r.key).Msg("failed to load memory document from redis")
		return nil, errx.WrapRedis(err)
	}
	return b, nil
}

func (r *RedisDocumentRepository) Save(ctx context.Context, doc []byte) error {
	// no expiry: the document is the authoritative store
	if err := r.rdb.Set(ctx, r.key, doc, 0).Err(); err != nil {
		logx.Error().Err(err).Str("key", r.key).Msg("failed to write memory document to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.DocumentRepository = (*RedisDocumentRepository)(nil)
