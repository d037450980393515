package symbols

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cuongbtq/analysis-console/internal/analysis/domain"
	"github.com/redis/go-redis/v9"
)

const (
	defaultCacheKey = "analysis:symbols"
	defaultTTL      = 10 * time.Minute
	// DefaultLimit caps autocomplete suggestions
	DefaultLimit = 10
)

// Source loads the symbol list from the analysis backend
type Source interface {
	Symbols(ctx context.Context) ([]domain.Symbol, error)
}

// Config holds symbol cache configuration. A nil Redis client disables caching.
type Config struct {
	Redis    *redis.Client
	CacheKey string
	TTL      time.Duration
	Logger   *slog.Logger
}

// Service serves the autocomplete symbol list
type Service struct {
	source   Source
	redis    *redis.Client
	cacheKey string
	ttl      time.Duration
	logger   *slog.Logger
}

// NewService creates a new symbol service
func NewService(source Source, cfg *Config) *Service {
	key := cfg.CacheKey
	if key == "" {
		key = defaultCacheKey
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source:   source,
		redis:    cfg.Redis,
		cacheKey: key,
		ttl:      ttl,
		logger:   logger,
	}
}

// List returns the symbol list, from cache when possible. Cache failures fall
// back to the backend.
func (s *Service) List(ctx context.Context) ([]domain.Symbol, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, s.cacheKey).Bytes()
		switch {
		case err == nil:
			var list []domain.Symbol
			if err := json.Unmarshal(cached, &list); err == nil {
				return list, nil
			}
			s.logger.Warn("Discarding malformed symbol cache entry",
				slog.String("key", s.cacheKey),
			)
		case errors.Is(err, redis.Nil):
		default:
			s.logger.Warn("Symbol cache read failed",
				slog.String("key", s.cacheKey),
				slog.String("error", err.Error()),
			)
		}
	}

	list, err := s.source.Symbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load symbols: %w", err)
	}

	if s.redis != nil {
		if data, err := json.Marshal(list); err == nil {
			if err := s.redis.Set(ctx, s.cacheKey, data, s.ttl).Err(); err != nil {
				s.logger.Warn("Symbol cache write failed",
					slog.String("key", s.cacheKey),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	return list, nil
}

// Search returns up to limit symbols: prefix matches on the ticker first,
// then sector substring matches.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]domain.Symbol, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return Match(list, query, limit), nil
}

// Match filters list for query. An empty query returns the first limit symbols
// in ticker order.
func Match(list []domain.Symbol, query string, limit int) []domain.Symbol {
	if limit <= 0 {
		limit = DefaultLimit
	}
	q := strings.ToUpper(strings.TrimSpace(query))

	var byTicker, bySector []domain.Symbol
	for _, sym := range list {
		ticker := strings.ToUpper(sym.Symbol)
		if strings.HasPrefix(ticker, q) {
			byTicker = append(byTicker, sym)
			continue
		}
		if q != "" && sectorMatch(sym.Sectors, q) {
			bySector = append(bySector, sym)
		}
	}

	sort.Slice(byTicker, func(i, j int) bool { return byTicker[i].Symbol < byTicker[j].Symbol })
	sort.Slice(bySector, func(i, j int) bool { return bySector[i].Symbol < bySector[j].Symbol })

	out := append(byTicker, bySector...)
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []domain.Symbol{}
	}
	return out
}

func sectorMatch(sectors []string, q string) bool {
	for _, sector := range sectors {
		if strings.Contains(strings.ToUpper(sector), q) {
			return true
		}
	}
	return false
}
