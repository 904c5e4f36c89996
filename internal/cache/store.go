package cache

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "marketviz/internal/errors"
	"marketviz/pkg/contracts/domain"
)

// Key identifies one cached series: a symbol fetched for one date range at
// one granularity. Two requests with the same key are interchangeable.
type Key struct {
	Symbol      string
	Start       time.Time
	End         time.Time
	Granularity string
}

// Filename returns the on-disk name for the key
func (k Key) Filename() string {
	granularity := k.Granularity
	if granularity == "" {
		granularity = "1d"
	}
	return fmt.Sprintf("%s_%s_%s_%s.csv",
		sanitizeSymbol(k.Symbol),
		k.Start.Format("2006-01-02"),
		k.End.Format("2006-01-02"),
		granularity)
}

// sanitizeSymbol makes a ticker safe for use as a file name component.
// Index tickers like ^GSPC and class shares like BRK.B carry characters
// some filesystems reject.
func sanitizeSymbol(symbol string) string {
	replacer := strings.NewReplacer("^", "IDX-", "/", "-", "\\", "-", ".", "-")
	return replacer.Replace(symbol)
}

// Store is a file-backed series cache with TTL staleness. A stale entry is
// logically a miss but stays on disk until overwritten or pruned, so it can
// be inspected after the fact. Safe for concurrent use: writes go through a
// temp file and rename, so readers never see a partial payload.
type Store struct {
	dir    string
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source, used by TTL tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store's logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates a cache store rooted at dir. Entries older than ttl are
// treated as absent. A zero ttl means every entry is stale immediately.
func NewStore(dir string, ttl time.Duration, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}

	s := &Store{
		dir:    dir,
		ttl:    ttl,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns the cached series for the key when a fresh entry exists.
// Stale entries and read/parse failures are both reported as misses; the
// returned error, when non-nil, is diagnostic only and never fatal.
func (s *Store) Get(ctx context.Context, key Key) ([]domain.PricePoint, bool, error) {
	path := filepath.Join(s.dir, key.Filename())

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		readErr := apperrors.NewCacheRead(key.Symbol, "failed to stat cache entry", err)
		s.logger.WarnContext(ctx, "cache read failed, treating as miss",
			slog.String("symbol", key.Symbol),
			slog.String("error", err.Error()))
		return nil, false, readErr
	}

	age := s.now().Sub(info.ModTime())
	if age >= s.ttl {
		s.logger.DebugContext(ctx, "cache entry stale",
			slog.String("symbol", key.Symbol),
			slog.Duration("age", age),
			slog.Duration("ttl", s.ttl))
		return nil, false, nil
	}

	points, err := s.readEntry(path, key.Symbol)
	if err != nil {
		readErr := apperrors.NewCacheRead(key.Symbol, "failed to read cache entry", err)
		s.logger.WarnContext(ctx, "cache entry unreadable, treating as miss",
			slog.String("symbol", key.Symbol),
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil, false, readErr
	}

	return points, true, nil
}

// Put writes the series for the key, replacing any prior entry. The write
// is atomic: a temp file in the same directory is renamed over the target,
// so concurrent readers observe either the old payload or the new one.
func (s *Store) Put(ctx context.Context, key Key, points []domain.PricePoint) error {
	path := filepath.Join(s.dir, key.Filename())

	tmp, err := os.CreateTemp(s.dir, "."+key.Filename()+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create cache temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := writeEntry(tmp, points); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache entry for %s: %w", key.Symbol, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close cache temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to publish cache entry for %s: %w", key.Symbol, err)
	}

	s.logger.DebugContext(ctx, "cache entry written",
		slog.String("symbol", key.Symbol),
		slog.Int("points", len(points)))
	return nil
}

// Prune removes entries whose modification time is older than the horizon.
// Used by the daily cleanup job; returns the number of entries removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list cache directory: %w", err)
	}

	cutoff := s.now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
				s.logger.WarnContext(ctx, "failed to prune cache entry",
					slog.String("file", entry.Name()),
					slog.String("error", err.Error()))
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		s.logger.InfoContext(ctx, "pruned stale cache entries",
			slog.Int("removed", removed),
			slog.Duration("older_than", olderThan))
	}
	return removed, nil
}

var entryHeader = []string{"Date", "Open", "High", "Low", "Close", "Volume", "MarketCap"}

// writeEntry encodes the series as CSV. Floats use the shortest exact
// representation so a round-trip through the cache is byte-stable.
func writeEntry(f *os.File, points []domain.PricePoint) error {
	w := csv.NewWriter(f)
	if err := w.Write(entryHeader); err != nil {
		return err
	}
	for _, p := range points {
		record := []string{
			p.Date.Format("2006-01-02"),
			formatFloat(p.Open),
			formatFloat(p.High),
			formatFloat(p.Low),
			formatFloat(p.Close),
			strconv.FormatInt(p.Volume, 10),
			formatFloat(p.MarketCap),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// readEntry decodes a cached series, restoring the symbol the key carries
func (s *Store) readEntry(path, symbol string) ([]domain.PricePoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("malformed cache CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty cache entry")
	}

	points := make([]domain.PricePoint, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(entryHeader) {
			return nil, fmt.Errorf("row %d has %d fields, want %d", i+1, len(row), len(entryHeader))
		}
		date, err := time.Parse("2006-01-02", row[0])
		if err != nil {
			return nil, fmt.Errorf("row %d has invalid date %q: %w", i+1, row[0], err)
		}
		open, err := parseFloat(row[1])
		if err != nil {
			return nil, fmt.Errorf("row %d has invalid open: %w", i+1, err)
		}
		high, err := parseFloat(row[2])
		if err != nil {
			return nil, fmt.Errorf("row %d has invalid high: %w", i+1, err)
		}
		low, err := parseFloat(row[3])
		if err != nil {
			return nil, fmt.Errorf("row %d has invalid low: %w", i+1, err)
		}
		closePrice, err := parseFloat(row[4])
		if err != nil {
			return nil, fmt.Errorf("row %d has invalid close: %w", i+1, err)
		}
		volume, err := strconv.ParseInt(row[5], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d has invalid volume: %w", i+1, err)
		}
		marketCap, err := parseFloat(row[6])
		if err != nil {
			return nil, fmt.Errorf("row %d has invalid market cap: %w", i+1, err)
		}

		points = append(points, domain.PricePoint{
			Symbol:    symbol,
			Date:      date,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			MarketCap: marketCap,
		})
	}

	return points, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
