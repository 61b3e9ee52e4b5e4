/**
 * @description
 * This file implements the FX rate lookup chain used by the wizard:
 * a Redis-backed cache in front of the live FX provider, falling back to
 * the corridor reference table's stored rate when no provider is
 * configured. Rates are cached per destination currency with a TTL so a
 * burst of country selections does not fan out into provider calls.
 *
 * @dependencies
 * - context, strconv, time: Standard Go libraries.
 * - github.com/redis/go-redis/v9: Redis client for the distributed cache.
 * - internal/domain, internal/store, internal/wizard: Domain models, the
 *   corridor table, and the RateLookup capability.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/velopay/remittance-service/internal/domain"
	"github.com/velopay/remittance-service/internal/store"
	"github.com/velopay/remittance-service/internal/wizard"
)

// CachedRateLookup decorates a RateLookup with a Redis cache.
type CachedRateLookup struct {
	client redis.UniversalClient
	next   wizard.RateLookup
	prefix string
	ttl    time.Duration
}

// NewCachedRateLookup wraps next with a Redis cache. A nil client disables
// caching and every call passes through.
func NewCachedRateLookup(client redis.UniversalClient, next wizard.RateLookup, prefix string, ttl time.Duration) *CachedRateLookup {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = "remit:fx"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedRateLookup{client: client, next: next, prefix: trimmed, ttl: ttl}
}

func (c *CachedRateLookup) key(currency string) string {
	return fmt.Sprintf("%s:%s", c.prefix, strings.ToUpper(currency))
}

// Rate returns the cached rate when fresh, otherwise fetches from the
// underlying lookup and caches the result. Cache errors degrade to a live
// lookup, never to a failed one.
func (c *CachedRateLookup) Rate(ctx context.Context, country domain.CountryDescriptor) (float64, error) {
	if c.client != nil {
		cached, err := c.client.Get(ctx, c.key(country.CurrencyCode)).Result()
		if err == nil {
			if rate, parseErr := strconv.ParseFloat(cached, 64); parseErr == nil && rate > 0 {
				return rate, nil
			}
		} else if err != redis.Nil {
			log.Printf("level=warn component=fx_cache msg=\"cache read failed\" currency=%s err=%v", country.CurrencyCode, err)
		}
	}

	rate, err := c.next.Rate(ctx, country)
	if err != nil {
		return 0, err
	}

	if c.client != nil {
		if err := c.client.Set(ctx, c.key(country.CurrencyCode), strconv.FormatFloat(rate, 'f', -1, 64), c.ttl).Err(); err != nil {
			log.Printf("level=warn component=fx_cache msg=\"cache write failed\" currency=%s err=%v", country.CurrencyCode, err)
		}
	}
	return rate, nil
}

// Refresh bypasses the cached value, fetching from the underlying lookup
// and rewriting the cache entry. Used by the scheduled warm job.
func (c *CachedRateLookup) Refresh(ctx context.Context, country domain.CountryDescriptor) (float64, error) {
	rate, err := c.next.Rate(ctx, country)
	if err != nil {
		return 0, err
	}
	if c.client != nil {
		if err := c.client.Set(ctx, c.key(country.CurrencyCode), strconv.FormatFloat(rate, 'f', -1, 64), c.ttl).Err(); err != nil {
			log.Printf("level=warn component=fx_cache msg=\"cache write failed\" currency=%s err=%v", country.CurrencyCode, err)
		}
	}
	return rate, nil
}

// StoredRateLookup serves rates from the corridor reference table. It is the
// lookup of record when no live FX provider is configured, matching the
// static rate table the mobile client shipped with.
type StoredRateLookup struct {
	repo store.Repository
}

// NewStoredRateLookup creates a corridor-table-backed rate lookup.
func NewStoredRateLookup(repo store.Repository) *StoredRateLookup {
	return &StoredRateLookup{repo: repo}
}

func (s *StoredRateLookup) Rate(ctx context.Context, country domain.CountryDescriptor) (float64, error) {
	corridor, err := s.repo.FindCorridorByCode(ctx, country.Code)
	if err != nil {
		return 0, err
	}
	if corridor.UnitRate <= 0 {
		return 0, fmt.Errorf("corridor %s has no stored rate", country.Code)
	}
	return corridor.UnitRate, nil
}
