package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wonny/notes/backend/internal/calendar"
	"github.com/wonny/notes/backend/internal/contracts"
	"github.com/wonny/notes/backend/internal/evaluation"
	"github.com/wonny/notes/backend/internal/events"
	"github.com/wonny/notes/backend/internal/prices"
	"github.com/wonny/notes/backend/internal/products"
	"github.com/wonny/notes/backend/pkg/config"
	"github.com/wonny/notes/backend/pkg/database"
	"github.com/wonny/notes/backend/pkg/httputil"
	"github.com/wonny/notes/backend/pkg/logger"
	"github.com/wonny/notes/backend/pkg/redis"
)

// errNoProductSource is returned when neither Postgres nor --products is available
var errNoProductSource = errors.New("no product source: set DATABASE_URL or pass --products")

// deps holds everything a command may wire
// ⭐ SSOT: 의존성 조립은 여기서만
type deps struct {
	cfg *config.Config
	log *logger.Logger

	db  *database.DB  // nil without DATABASE_URL
	rdb *redis.Client // disabled client when Redis is off or unreachable

	products contracts.ProductRepository // nil without a product source
	events   contracts.EventLog
	holidays contracts.HolidayProvider
	prices   *prices.Provider
}

// bootstrap loads config and connects the stores. Logs go to logOut so
// commands printing JSON can keep stdout clean.
func bootstrap(ctx context.Context, logOut io.Writer) (*deps, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// 2. Initialize logger
	log := logger.NewWithWriter(cfg, logOut)
	d := &deps{cfg: cfg, log: log}

	// 3. Connect to database (optional)
	if cfg.Database.URL != "" {
		db, err := database.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		d.db = db
		log.Debug("Connected to database")
	}

	// 4. Connect to Redis (optional)
	rdb, err := redis.New(cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, continuing without cache")
		rdb = redis.Wrap(nil)
	}
	d.rdb = rdb

	// 5. Products
	switch {
	case productsFile != "":
		list, err := products.LoadFile(productsFile)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("load products: %w", err)
		}
		d.products = products.NewMemoryRepository(list...)
	case d.db != nil:
		d.products = products.NewRepository(d.db.Pool)
	}

	// 6. Prices
	var store contracts.PriceStore
	if pricesFile != "" {
		records, err := prices.LoadFile(pricesFile)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("load prices: %w", err)
		}
		store = prices.NewMemoryStore(records...)
	} else {
		store, err = prices.NewStore(cfg, d.db, d.rdb, log)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("price store: %w", err)
		}
	}
	d.prices = prices.NewProvider(store, cfg.Prices, log)

	// 7. Event log
	if d.db != nil {
		d.events = events.NewPostgresLog(d.db.Pool)
	} else {
		d.events = events.NewMemoryLog()
	}

	// 8. Holidays
	client := httputil.New(cfg, log).
		WithRateLimiter(redis.NewRateLimiter(d.rdb, cfg.Redis.Prefix), redis.HolidayRateLimit)
	d.holidays = calendar.NewProvider(cfg, client, d.rdb, log)

	return d, nil
}

// requireProducts fails when no product source was configured
func (d *deps) requireProducts() error {
	if d.products == nil {
		return errNoProductSource
	}
	return nil
}

// evaluator builds the evaluation pipeline. publish may be nil.
func (d *deps) evaluator(publish func(contracts.Event)) *evaluation.Evaluator {
	detector := events.NewDetector(d.events, d.cfg.Engine, d.log)
	if publish != nil {
		detector = detector.WithPublisher(publish)
	}
	return evaluation.NewEvaluator(d.prices, d.holidays, detector, d.cfg.Engine, d.log)
}

// Close releases connections
func (d *deps) Close() {
	if d.db != nil {
		d.db.Close()
	}
	if d.rdb != nil {
		_ = d.rdb.Close()
	}
}
