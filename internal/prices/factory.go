package prices

import (
	"fmt"

	"github.com/wonny/notes/backend/internal/contracts"
	"github.com/wonny/notes/backend/pkg/config"
	"github.com/wonny/notes/backend/pkg/database"
	"github.com/wonny/notes/backend/pkg/logger"
	"github.com/wonny/notes/backend/pkg/redis"
)

// NewStore builds the store selected by PRICE_SOURCE
func NewStore(cfg *config.Config, db *database.DB, rdb *redis.Client, log *logger.Logger) (contracts.PriceStore, error) {
	switch cfg.Prices.Source {
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(redis.NewCache(rdb, cfg.Redis.Prefix)), nil
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("price source postgres requires a database")
		}
		return NewPostgresStore(db.Pool), nil
	case "cached":
		if db == nil {
			return nil, fmt.Errorf("price source cached requires a database")
		}
		return NewCachedStore(redis.NewCache(rdb, cfg.Redis.Prefix), NewPostgresStore(db.Pool), cfg.Prices.CacheTTL, log), nil
	}
	return nil, fmt.Errorf("unknown price source %q", cfg.Prices.Source)
}
