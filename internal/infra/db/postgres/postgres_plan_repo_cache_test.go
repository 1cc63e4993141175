//go:build !integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
)

func TestPlanRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	plan := &model.SubscriptionPlan{ID: "plan-123", Name: "Gold", Price: decimal.NewFromInt(30), DurationDays: 30}
	planJSON, _ := json.Marshal(plan)

	t.Run("FindByID should return from cache on hit", func(t *testing.T) {
		// Arrange
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				return string(planJSON), nil // Simulate cache hit
			},
		}
		innerRepoCalled := false
		mockInnerRepo := &mockInnerPlanRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error) {
				innerRepoCalled = true // This should not be called
				return nil, nil
			},
		}

		decorator := NewPlanRepoCacheDecorator(mockInnerRepo, mockRedis, time.Minute, &logger)

		// Act
		result, err := decorator.FindByID(ctx, nil, "plan-123")

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if innerRepoCalled {
			t.Error("inner repository should not be called on a cache hit")
		}
		if result == nil || result.ID != "plan-123" || !result.Price.Equal(plan.Price) {
			t.Errorf("did not return the correct plan from cache: %+v", result)
		}
	})

	t.Run("FindByID should load and warm the cache on miss", func(t *testing.T) {
		// Arrange
		var setKey string
		var setTTL time.Duration
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) { return "", redis.Nil },
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				setKey, setTTL = key, expiration
				return nil
			},
		}
		mockInnerRepo := &mockInnerPlanRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error) {
				return plan, nil
			},
		}
		decorator := NewPlanRepoCacheDecorator(mockInnerRepo, mockRedis, time.Minute, &logger)

		// Act
		result, err := decorator.FindByID(ctx, nil, "plan-123")

		// Assert
		if err != nil || result.ID != "plan-123" {
			t.Fatalf("expected the inner plan, got %+v, %v", result, err)
		}
		if setKey != "plan:plan-123" || setTTL != time.Minute {
			t.Errorf("unexpected cache write: key=%q ttl=%v", setKey, setTTL)
		}
	})

	t.Run("FindByID should not cache a missing plan", func(t *testing.T) {
		// Arrange
		setCalled := false
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) { return "", redis.Nil },
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				setCalled = true
				return nil
			},
		}
		mockInnerRepo := &mockInnerPlanRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error) {
				return nil, domain.ErrPlanNotFound
			},
		}
		decorator := NewPlanRepoCacheDecorator(mockInnerRepo, mockRedis, time.Minute, &logger)

		// Act
		_, err := decorator.FindByID(ctx, nil, "nope")

		// Assert
		if !errors.Is(err, domain.ErrPlanNotFound) {
			t.Fatalf("expected ErrPlanNotFound, got %v", err)
		}
		if setCalled {
			t.Error("a miss on the inner repository must not be cached")
		}
	})

	t.Run("Save should invalidate the cache", func(t *testing.T) {
		// Arrange
		var deletedKeys []string
		mockRedis := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error {
				deletedKeys = append(deletedKeys, keys...)
				return nil
			},
		}
		mockInnerRepo := &mockInnerPlanRepo{
			SaveFunc: func(ctx context.Context, tx repository.Tx, plan *model.SubscriptionPlan) error {
				return nil
			},
		}

		decorator := NewPlanRepoCacheDecorator(mockInnerRepo, mockRedis, time.Minute, &logger)

		// Act
		err := decorator.Save(ctx, nil, plan)

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(deletedKeys) != 2 {
			t.Fatalf("expected 2 keys to be deleted, but got %d", len(deletedKeys))
		}
	})

	t.Run("ListAll should not cache an empty catalog", func(t *testing.T) {
		// Arrange
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) { return "", redis.Nil },
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				t.Errorf("unexpected cache write for %q", key)
				return nil
			},
		}
		mockInnerRepo := &mockInnerPlanRepo{
			ListAllFunc: func(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionPlan, error) { return nil, nil },
		}
		decorator := NewPlanRepoCacheDecorator(mockInnerRepo, mockRedis, time.Minute, &logger)

		// Act
		plans, err := decorator.ListAll(ctx, nil)

		// Assert
		if err != nil || len(plans) != 0 {
			t.Fatalf("expected an empty list, got %v, %v", plans, err)
		}
	})

	t.Run("FindByID should fall through a corrupt or unreachable cache", func(t *testing.T) {
		for name, get := range map[string]func(ctx context.Context, key string) (string, error){
			"corrupt":     func(ctx context.Context, key string) (string, error) { return "{not json", nil },
			"unreachable": func(ctx context.Context, key string) (string, error) { return "", errors.New("dial tcp: refused") },
		} {
			t.Run(name, func(t *testing.T) {
				mockRedis := &mockRedisClient{
					GetFunc: get,
					SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
						return errors.New("still down")
					},
				}
				mockInnerRepo := &mockInnerPlanRepo{
					FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error) { return plan, nil },
				}
				decorator := NewPlanRepoCacheDecorator(mockInnerRepo, mockRedis, time.Minute, &logger)

				got, err := decorator.FindByID(ctx, nil, "plan-123")
				if err != nil || got.ID != "plan-123" {
					t.Fatalf("expected the inner plan, got %+v, %v", got, err)
				}
			})
		}
	})
}
