//go:build !integration

package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
)

func TestUserRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()
	user := &model.User{ID: "user-123", Role: model.RoleUser}
	userJSON, _ := json.Marshal(user)

	t.Run("FindByID should fetch from DB and set cache on miss", func(t *testing.T) {
		// Arrange
		innerRepoCalled := false
		var setKey string
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				return "", redis.Nil // Simulate cache miss
			},
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				setKey = key
				return nil
			},
		}
		mockInnerRepo := &mockInnerUserRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
				innerRepoCalled = true
				return user, nil
			},
		}

		decorator := NewUserRepoCacheDecorator(mockInnerRepo, mockRedis, time.Minute)

		// Act
		result, err := decorator.FindByID(ctx, nil, "user-123")

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !innerRepoCalled {
			t.Error("inner repository should be called on a cache miss")
		}
		if result.Role != model.RoleUser {
			t.Errorf("expected role USER, got %s", result.Role)
		}
		if setKey != "user:id:user-123" {
			t.Errorf("expected the cache to be warmed, got key %q", setKey)
		}
	})

	t.Run("Exists should trust a cached user", func(t *testing.T) {
		// Arrange
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) { return string(userJSON), nil },
		}
		mockInnerRepo := &mockInnerUserRepo{
			ExistsFunc: func(ctx context.Context, tx repository.Tx, id string) (bool, error) {
				t.Error("inner repository should not be called on a cache hit")
				return false, nil
			},
		}
		decorator := NewUserRepoCacheDecorator(mockInnerRepo, mockRedis, time.Minute)

		// Act
		ok, err := decorator.Exists(ctx, nil, "user-123")

		// Assert
		if err != nil || !ok {
			t.Errorf("expected true, got %v, %v", ok, err)
		}
	})

	t.Run("Exists should ask the DB on miss", func(t *testing.T) {
		// Arrange
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) { return "", redis.Nil },
		}
		mockInnerRepo := &mockInnerUserRepo{
			ExistsFunc: func(ctx context.Context, tx repository.Tx, id string) (bool, error) { return false, nil },
		}
		decorator := NewUserRepoCacheDecorator(mockInnerRepo, mockRedis, time.Minute)

		// Act
		ok, err := decorator.Exists(ctx, nil, "ghost")

		// Assert
		if err != nil || ok {
			t.Errorf("expected false, got %v, %v", ok, err)
		}
	})

	t.Run("Save should invalidate the user key", func(t *testing.T) {
		// Arrange
		var deleted []string
		mockRedis := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error {
				deleted = append(deleted, keys...)
				return nil
			},
		}
		mockInnerRepo := &mockInnerUserRepo{
			SaveFunc: func(ctx context.Context, tx repository.Tx, u *model.User) error { return nil },
		}
		decorator := NewUserRepoCacheDecorator(mockInnerRepo, mockRedis, time.Minute)

		// Act
		err := decorator.Save(ctx, nil, user)

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(deleted) != 1 || deleted[0] != "user:id:user-123" {
			t.Errorf("unexpected invalidation: %v", deleted)
		}
	})
}
