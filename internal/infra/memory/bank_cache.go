package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"quizbattle-service/internal/domain"
)

const defaultBankTTL = 10 * time.Minute

// BankLoader fetches a folder's question bank from the backing store.
type BankLoader interface {
	LoadBank(ctx context.Context, folderID uuid.UUID) ([]domain.Question, error)
}

// BankCache caches question banks in-process with TTL to avoid repeated DB
// hits. Used when Redis is not configured, and in tests.
type BankCache struct {
	loader BankLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[uuid.UUID]cachedBank
}

type cachedBank struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewBankCache(loader BankLoader, ttl time.Duration) *BankCache {
	return &BankCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[uuid.UUID]cachedBank),
	}
}

func (c *BankCache) GetBank(ctx context.Context, folderID uuid.UUID) ([]domain.Question, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[folderID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.questions, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(folderID.String(), func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[folderID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.questions, nil
		}
		c.mu.RUnlock()

		questions, err := c.loader.LoadBank(ctx, folderID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[folderID] = cachedBank{
			questions: questions,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// StaticBankLoader serves banks from a fixed map (tests/demos).
type StaticBankLoader struct {
	banks map[uuid.UUID][]domain.Question
}

func NewStaticBankLoader(banks map[uuid.UUID][]domain.Question) *StaticBankLoader {
	return &StaticBankLoader{banks: banks}
}

func (l *StaticBankLoader) LoadBank(_ context.Context, folderID uuid.UUID) ([]domain.Question, error) {
	if bank, ok := l.banks[folderID]; ok {
		return bank, nil
	}
	return nil, domain.ErrFolderNotFound
}

func (c *BankCache) ttlWithJitter() time.Duration {
	ttl := c.ttl
	if ttl <= 0 {
		ttl = defaultBankTTL
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(ttl) / 10
	return ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
