package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PresenceStore mirrors connection-registry liveness into Redis so other
// tooling (dashboards, other instances) can see who is reachable. Markers are
// best-effort and carry a TTL as a safety net against crashed processes.
type PresenceStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPresenceStore(client *redis.Client, ttl time.Duration) *PresenceStore {
	return &PresenceStore{client: client, ttl: ttl}
}

func (s *PresenceStore) MarkOnline(userID uuid.UUID) {
	_ = s.client.Set(context.Background(), presenceKey(userID), "1", s.ttl).Err()
}

func (s *PresenceStore) MarkOffline(userID uuid.UUID) {
	_ = s.client.Del(context.Background(), presenceKey(userID)).Err()
}

func presenceKey(userID uuid.UUID) string {
	return "presence:" + userID.String()
}
