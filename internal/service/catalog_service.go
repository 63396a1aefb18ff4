package service

import (
	"context"
	"encoding/json"
	"time"

	"tarkostock/internal/dto"
	"tarkostock/internal/repository"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const variantsCacheKey = "catalog:variants"

// CatalogService serves the read-only variant catalog through a redis
// read-through cache. A nil redis client disables caching.
type CatalogService interface {
	ListVariants(ctx context.Context) ([]dto.VariantResponse, error)
	Invalidate(ctx context.Context) error
}

type catalogService struct {
	store repository.Store
	rdb   *redis.Client
	ttl   time.Duration
}

func NewCatalogService(store repository.Store, rdb *redis.Client, ttl time.Duration) CatalogService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &catalogService{store: store, rdb: rdb, ttl: ttl}
}

func (s *catalogService) ListVariants(ctx context.Context) ([]dto.VariantResponse, error) {
	// 1. Try redis
	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, variantsCacheKey).Bytes(); err == nil {
			var resp []dto.VariantResponse
			if jsonErr := json.Unmarshal(cached, &resp); jsonErr == nil {
				return resp, nil
			}
		}
	}

	// 2. Cache miss: read the store
	variants, err := s.store.Reader().Catalog.ListVariants(ctx)
	if err != nil {
		return nil, err
	}
	resp := make([]dto.VariantResponse, 0, len(variants))
	for i := range variants {
		resp = append(resp, variantToResponse(&variants[i]))
	}

	// 3. Populate, best effort
	if s.rdb != nil {
		if b, jsonErr := json.Marshal(resp); jsonErr == nil {
			if err := s.rdb.Set(ctx, variantsCacheKey, b, s.ttl).Err(); err != nil {
				log.Debug().Err(err).Msg("catalog: cache populate failed")
			}
		}
	}
	return resp, nil
}

func (s *catalogService) Invalidate(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, variantsCacheKey).Err()
}
