package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/fruitsmith-checkout/internal/domain/product"
	"github.com/xenking/fruitsmith-checkout/internal/repository"
)

const (
	bloomCapacity = 5_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
	batchSize     = 500
	maxLineBytes  = 1 << 20
)

type productLine struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	Images   []string        `json:"images"`
}

// fileResult holds the products decoded from a single file.
type fileResult struct {
	products []product.Product
	skipped  int
}

// catalog is the merged import set.
type catalog struct {
	products   []product.Product
	duplicates int
	skipped    int
}

// seenFilter flags product ids that may have been read before. Ids it flags
// are collected exactly so the merge can dedupe them.
type seenFilter struct {
	mu       sync.Mutex
	filter   *bloom.BloomFilter
	suspects map[string]struct{}
}

func newSeenFilter(capacity uint) *seenFilter {
	return &seenFilter{
		filter:   bloom.NewWithEstimates(capacity, bloomFPR),
		suspects: make(map[string]struct{}),
	}
}

func (s *seenFilter) observe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filter.TestAndAddString(id) {
		s.suspects[id] = struct{}{}
	}
}

func (s *seenFilter) suspect(id string) bool {
	_, ok := s.suspects[id]
	return ok
}

func main() {
	var (
		pattern     string
		databaseURL string
		dryRun      bool
	)

	flag.StringVar(&pattern, "files", "data/catalog*.jsonl.gz", "glob of gzip-compressed JSON-lines product files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "decode and dedupe without writing")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, pattern, databaseURL, dryRun); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, pattern, databaseURL string, dryRun bool) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrapf(err, "glob %s", pattern)
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %s", pattern)
	}
	sort.Strings(files)

	slog.Info("reading catalog files", slog.Int("files", len(files)))

	c, err := loadCatalog(ctx, files, bloomCapacity)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}

	slog.Info("catalog loaded",
		slog.Int("products", len(c.products)),
		slog.Int("duplicates", c.duplicates),
		slog.Int("skipped", c.skipped),
	)

	if dryRun || len(c.products) == 0 {
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := writeProducts(ctx, repository.NewProductRepository(pool), c.products); err != nil {
		return errors.Wrap(err, "write products to database")
	}

	return nil
}

// loadCatalog decodes all files concurrently and merges them in file order.
// When an id repeats, the last occurrence wins.
func loadCatalog(ctx context.Context, files []string, capacity uint) (*catalog, error) {
	results := make([]fileResult, len(files))
	seen := newSeenFilter(capacity)

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(decodeFile(ctx, i, f, seen, results))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c := &catalog{}
	index := make(map[string]int)
	for _, r := range results {
		c.skipped += r.skipped
		for _, p := range r.products {
			if !seen.suspect(p.ID) {
				c.products = append(c.products, p)
				continue
			}
			if at, ok := index[p.ID]; ok {
				c.products[at] = p
				c.duplicates++
				continue
			}
			index[p.ID] = len(c.products)
			c.products = append(c.products, p)
		}
	}
	return c, nil
}

func decodeFile(ctx context.Context, idx int, path string, seen *seenFilter, results []fileResult) func() error {
	return func() error {
		var r fileResult
		var count uint64

		if err := streamGzFile(ctx, path, func(line []byte) {
			count++
			if count%progressEvery == 0 {
				slog.Info("decode progress", slog.Int("file", idx+1), slog.Uint64("lines", count))
			}

			p, ok := parseLine(line)
			if !ok {
				r.skipped++
				return
			}
			seen.observe(p.ID)
			r.products = append(r.products, p)
		}); err != nil {
			return errors.Wrapf(err, "decode file %d", idx+1)
		}

		slog.Info("file decoded",
			slog.Int("file", idx+1),
			slog.Int("products", len(r.products)),
			slog.Int("skipped", r.skipped),
		)

		results[idx] = r
		return nil
	}
}

// parseLine decodes one product. Blank and malformed lines are rejected.
func parseLine(line []byte) (product.Product, bool) {
	if len(line) == 0 {
		return product.Product{}, false
	}
	var l productLine
	if err := json.Unmarshal(line, &l); err != nil {
		return product.Product{}, false
	}
	if l.ID == "" || l.Name == "" || l.Price.IsNegative() {
		return product.Product{}, false
	}
	return product.Product{
		ID:       l.ID,
		Name:     l.Name,
		Price:    l.Price.Round(2),
		Category: l.Category,
		Images:   l.Images,
	}, true
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Bytes())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// writeProducts upserts products in batches.
func writeProducts(ctx context.Context, w product.Writer, products []product.Product) error {
	slog.Info("writing products to database", slog.Int("count", len(products)))

	var written int64
	for start := 0; start < len(products); start += batchSize {
		end := min(start+batchSize, len(products))
		n, err := w.Upsert(ctx, products[start:end])
		if err != nil {
			return errors.Wrapf(err, "upsert batch at %d", start)
		}
		written += n
		slog.Info("write progress", slog.Int("written", end), slog.Int("total", len(products)))
	}

	slog.Info("products written", slog.Int64("rows", written))
	return nil
}
