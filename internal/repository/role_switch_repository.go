package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vantage-academy/portal-api/internal/models"
)

// RoleSwitchRepository stages pending role switches in Redis between the
// validate call and the follow-up session refresh that commits them.
type RoleSwitchRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRoleSwitchRepository constructs the repository.
func NewRoleSwitchRepository(client *redis.Client, ttl time.Duration) *RoleSwitchRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RoleSwitchRepository{client: client, ttl: ttl}
}

func roleSwitchKey(userID string) string {
	return fmt.Sprintf("role_switch:%s", userID)
}

// Stage records the requested role for the user. An existing staged role is
// overwritten; only the latest request wins.
func (r *RoleSwitchRepository) Stage(ctx context.Context, userID string, role models.Role) error {
	if err := r.client.Set(ctx, roleSwitchKey(userID), string(role), r.ttl).Err(); err != nil {
		return fmt.Errorf("stage role switch: %w", err)
	}
	return nil
}

// Take consumes the staged role for the user, if any.
func (r *RoleSwitchRepository) Take(ctx context.Context, userID string) (models.Role, bool, error) {
	raw, err := r.client.GetDel(ctx, roleSwitchKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("take role switch: %w", err)
	}
	role, ok := models.ParseRole(raw)
	if !ok {
		return "", false, nil
	}
	return role, true, nil
}
