package calendar

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/notes/backend/internal/contracts"
	"github.com/wonny/notes/backend/pkg/config"
	"github.com/wonny/notes/backend/pkg/httputil"
	"github.com/wonny/notes/backend/pkg/logger"
	"github.com/wonny/notes/backend/pkg/redis"
)

// StaticHolidays is a fixed holiday list
type StaticHolidays []time.Time

// MarketHolidays implements contracts.HolidayProvider
func (s StaticHolidays) MarketHolidays(context.Context) []time.Time {
	return append([]time.Time(nil), s...)
}

// ParseStatic parses ISO dates, skipping malformed entries
func ParseStatic(values []string, log *logger.Logger) StaticHolidays {
	out := make(StaticHolidays, 0, len(values))
	for _, v := range values {
		d, err := contracts.ParseDate(strings.TrimSpace(v))
		if err != nil {
			log.WithField("value", v).Warn("Skipping malformed holiday date")
			continue
		}
		out = append(out, d)
	}
	return out
}

// ScrapedHolidays reads an exchange holiday page and extracts the dates
// matching a CSS selector
// ⭐ SSOT: 휴장일 페이지 호출은 여기서만
type ScrapedHolidays struct {
	client   *httputil.Client
	url      string
	selector string
	layout   string
	logger   *logger.Logger
}

// NewScrapedHolidays creates a scraping provider
func NewScrapedHolidays(client *httputil.Client, cfg config.HolidayConfig, log *logger.Logger) *ScrapedHolidays {
	layout := cfg.Layout
	if layout == "" {
		layout = contracts.DateLayout
	}
	return &ScrapedHolidays{
		client:   client,
		url:      cfg.URL,
		selector: cfg.Selector,
		layout:   layout,
		logger:   log.WithComponent("holidays"),
	}
}

// MarketHolidays implements contracts.HolidayProvider. Fetch or parse
// failures yield an empty list.
func (s *ScrapedHolidays) MarketHolidays(ctx context.Context) []time.Time {
	holidays, err := s.Fetch(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("url", s.url).Warn("Holiday calendar unavailable, using weekend-only calendar")
		return nil
	}
	return holidays
}

// Fetch downloads and parses the holiday page
func (s *ScrapedHolidays) Fetch(ctx context.Context) ([]time.Time, error) {
	body, err := s.client.GetBody(ctx, s.url)
	if err != nil {
		return nil, err
	}
	return ParseHolidayPage(body, s.selector, s.layout)
}

// ParseHolidayPage extracts the dates of every element matching selector.
// Cells that do not parse with layout are ignored.
func ParseHolidayPage(html []byte, selector, layout string) ([]time.Time, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	seen := make(map[time.Time]bool)
	var holidays []time.Time
	doc.Find(selector).Each(func(_ int, cell *goquery.Selection) {
		text := strings.TrimSpace(cell.Text())
		d, err := time.ParseInLocation(layout, text, time.UTC)
		if err != nil {
			return
		}
		d = contracts.Day(d)
		if !seen[d] {
			seen[d] = true
			holidays = append(holidays, d)
		}
	})

	sort.Slice(holidays, func(i, j int) bool { return holidays[i].Before(holidays[j]) })
	return holidays, nil
}

// CachedHolidays keeps a provider's answer in Redis for a day
type CachedHolidays struct {
	cache  *redis.Cache
	source string
	next   contracts.HolidayProvider
	ttl    time.Duration
	logger *logger.Logger
}

// NewCachedHolidays wraps next; source names the cache entry
func NewCachedHolidays(cache *redis.Cache, source string, next contracts.HolidayProvider, log *logger.Logger) *CachedHolidays {
	return &CachedHolidays{
		cache:  cache,
		source: source,
		next:   next,
		ttl:    redis.TTLDaily,
		logger: log.WithComponent("holidays"),
	}
}

// MarketHolidays implements contracts.HolidayProvider. Empty answers are not
// cached so a failed scrape is retried on the next call.
func (c *CachedHolidays) MarketHolidays(ctx context.Context) []time.Time {
	var cached []time.Time
	found, err := c.cache.Get(ctx, redis.HolidaysKey(c.source), &cached)
	if err != nil {
		c.logger.WithError(err).Warn("Holiday cache read failed")
	}
	if found {
		return cached
	}

	holidays := c.next.MarketHolidays(ctx)
	if len(holidays) > 0 {
		if err := c.cache.Set(ctx, redis.HolidaysKey(c.source), holidays, c.ttl); err != nil {
			c.logger.WithError(err).Warn("Holiday cache write failed")
		}
	}
	return holidays
}

// Refresh drops the cached entry and reloads it
func (c *CachedHolidays) Refresh(ctx context.Context) int {
	if err := c.cache.Delete(ctx, redis.HolidaysKey(c.source)); err != nil {
		c.logger.WithError(err).Warn("Holiday cache delete failed")
	}
	return len(c.MarketHolidays(ctx))
}

// Refresher reloads a cached holiday list and returns its size
type Refresher interface {
	Refresh(ctx context.Context) int
}

// Merged combines several providers into one list
type Merged []contracts.HolidayProvider

// Refresh reloads every cached member and returns the merged count
func (m Merged) Refresh(ctx context.Context) int {
	for _, p := range m {
		if r, ok := p.(Refresher); ok {
			r.Refresh(ctx)
		}
	}
	return len(m.MarketHolidays(ctx))
}

// MarketHolidays implements contracts.HolidayProvider
func (m Merged) MarketHolidays(ctx context.Context) []time.Time {
	var out []time.Time
	for _, p := range m {
		out = append(out, p.MarketHolidays(ctx)...)
	}
	return out
}

// NewProvider builds the holiday provider described by cfg: static dates,
// plus the scraped page (cached in Redis) when a URL is configured
func NewProvider(cfg *config.Config, client *httputil.Client, rdb *redis.Client, log *logger.Logger) contracts.HolidayProvider {
	static := ParseStatic(cfg.Holidays.Static, log)
	if cfg.Holidays.URL == "" {
		return static
	}
	scraped := NewScrapedHolidays(client, cfg.Holidays, log)
	cached := NewCachedHolidays(redis.NewCache(rdb, cfg.Redis.Prefix), cfg.Holidays.URL, scraped, log)
	return Merged{static, cached}
}

// Load builds a calendar from provider; a nil provider yields a weekend-only calendar
func Load(ctx context.Context, provider contracts.HolidayProvider) *Calendar {
	if provider == nil {
		return WeekendOnly()
	}
	return New(provider.MarketHolidays(ctx))
}
