package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const importLockPrefix = "import:semester:"

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// ImportLockRepository serialises imports per semester through Redis. Without a client every
// acquisition succeeds.
type ImportLockRepository struct {
	client *redis.Client
}

// NewImportLockRepository constructs the repository.
func NewImportLockRepository(client *redis.Client) *ImportLockRepository {
	return &ImportLockRepository{client: client}
}

// ImportLockKey returns the Redis key guarding imports into semesterID.
func ImportLockKey(semesterID string) string {
	return importLockPrefix + semesterID
}

// Acquire tries to take the semester lock for ttl. The returned token is needed to release it.
func (r *ImportLockRepository) Acquire(ctx context.Context, semesterID string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	if r.client == nil {
		return token, true, nil
	}
	ok, err := r.client.SetNX(ctx, ImportLockKey(semesterID), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire import lock %s: %w", semesterID, err)
	}
	return token, ok, nil
}

// Release frees the semester lock if token still owns it.
func (r *ImportLockRepository) Release(ctx context.Context, semesterID, token string) error {
	if r.client == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, r.client, []string{ImportLockKey(semesterID)}, token).Err(); err != nil {
		return fmt.Errorf("release import lock %s: %w", semesterID, err)
	}
	return nil
}
