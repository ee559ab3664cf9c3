package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quizbattle-service/internal/domain"
)

const defaultBankTTL = 10 * time.Minute

// BankLoader fetches a folder's question bank from the backing store.
type BankLoader interface {
	LoadBank(ctx context.Context, folderID uuid.UUID) ([]domain.Question, error)
}

// BankCache caches question banks in Redis as one JSON value per folder and
// falls back to the loader on cache miss. Stored as:
// SET folder:{folderID}:bank {json} EX ttl
type BankCache struct {
	client *redis.Client
	loader BankLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewBankCache(client *redis.Client, loader BankLoader, ttl time.Duration) *BankCache {
	return &BankCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *BankCache) GetBank(ctx context.Context, folderID uuid.UUID) ([]domain.Question, error) {
	key := bankKey(folderID)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var questions []domain.Question
		if err := json.Unmarshal(raw, &questions); err == nil && len(questions) > 0 {
			return questions, nil
		}
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var questions []domain.Question
			if err := json.Unmarshal(raw, &questions); err == nil && len(questions) > 0 {
				return questions, nil
			}
		}

		questions, err := c.loader.LoadBank(ctx, folderID)
		if err != nil {
			return nil, err
		}

		raw, err := json.Marshal(questions)
		if err != nil {
			return nil, fmt.Errorf("marshal bank: %w", err)
		}
		_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func bankKey(folderID uuid.UUID) string {
	return "folder:" + folderID.String() + ":bank"
}

func (c *BankCache) ttlWithJitter() time.Duration {
	ttl := c.ttl
	// a zero duration would mean SET without expiry, pinning the bank forever
	if ttl <= 0 {
		ttl = defaultBankTTL
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(ttl) / 10
	return ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
