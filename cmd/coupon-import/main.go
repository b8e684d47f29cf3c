package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/promo-pricing/internal/domain/coupon"
	"github.com/xenking/promo-pricing/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	maxFiles      = bits.UintSize
	progressEvery = 1_000_000
	maxLineSize   = 64 << 10
)

// fileResult holds what pass 2 found in a single file.
type fileResult struct {
	coupons    []coupon.Coupon
	candidates map[string]uint
	invalid    int
}

func main() {
	var (
		tenantID    string
		dataDir     string
		databaseURL string
		batchSize   int
	)

	flag.StringVar(&tenantID, "tenant-id", "", "tenant that owns the imported coupons")
	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.jsonl.gz coupon files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch-size", 1000, "coupons inserted per batch")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if tenantID == "" {
		slog.Error("tenant id is required: set --tenant-id")
		os.Exit(1)
	}
	if batchSize < 1 {
		batchSize = 1000
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, tenantID, dataDir, databaseURL, batchSize); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, tenantID, dataDir, databaseURL string, batchSize int) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "list coupon files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.jsonl.gz files in %s", dataDir)
	}
	if len(files) > maxFiles {
		return errors.Errorf("too many files: %d (max %d)", len(files), maxFiles)
	}
	sort.Strings(files)

	// Pass 1: Build bloom filters concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: Parse coupons and flag codes present in more than one file.
	slog.Info("pass 2: parsing coupons")

	coupons, duplicates, err := collectCoupons(ctx, files, filters, tenantID)
	if err != nil {
		return errors.Wrap(err, "collect coupons")
	}

	if len(duplicates) > 0 {
		slog.Warn("codes repeated across files skipped",
			slog.Int("count", len(duplicates)),
			slog.Any("sample", sample(duplicates, 10)),
		)
	}
	slog.Info("coupons to import", slog.Int("count", len(coupons)))

	if len(coupons) == 0 {
		slog.Info("no coupons to insert")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return writeCoupons(ctx, postgres.NewCouponRepository(pool), coupons, batchSize)
}

// buildBloomFilters creates one bloom filter of codes per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFile(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFile(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamGzFile(ctx, path, func(line []byte) {
			code, ok := peekCode(line)
			if !ok {
				return
			}
			filter.AddString(code)
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 1 progress",
					slog.String("file", filepath.Base(path)),
					slog.Uint64("codes", count),
				)
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for %s", path)
		}

		slog.Info("pass 1 complete",
			slog.String("file", filepath.Base(path)),
			slog.Uint64("total_codes", count),
		)

		filters[idx] = filter
		return nil
	}
}

// collectCoupons re-streams each file, parsing coupons and checking their
// codes against the OTHER files' bloom filters. Bloom hits are confirmed by
// merging exact per-file sets: a code is a duplicate only when it was seen in
// two or more files.
func collectCoupons(
	ctx context.Context,
	files []string,
	filters []*bloom.BloomFilter,
	tenantID string,
) ([]coupon.Coupon, []string, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(scanFile(ctx, i, f, filters, tenantID, results))
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	merged := make(map[string]uint)
	invalid := 0
	for _, r := range results {
		for code, mask := range r.candidates {
			merged[code] |= mask
		}
		invalid += r.invalid
	}
	if invalid > 0 {
		slog.Warn("invalid lines skipped", slog.Int("count", invalid))
	}

	dup := make(map[string]struct{})
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			dup[code] = struct{}{}
		}
	}

	var coupons []coupon.Coupon
	for _, r := range results {
		for _, c := range r.coupons {
			if _, ok := dup[c.Code]; ok {
				continue
			}
			coupons = append(coupons, c)
		}
	}

	duplicates := make([]string, 0, len(dup))
	for code := range dup {
		duplicates = append(duplicates, code)
	}
	sort.Strings(duplicates)

	return coupons, duplicates, nil
}

func scanFile(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	tenantID string,
	results []fileResult,
) func() error {
	return func() error {
		res := fileResult{candidates: make(map[string]uint)}
		seen := make(map[string]struct{})
		fileBit := uint(1) << uint(idx)
		var lineNo uint64

		if err := streamGzFile(ctx, path, func(line []byte) {
			lineNo++
			c, err := parseRecord(line, tenantID)
			if err != nil {
				res.invalid++
				slog.Debug("invalid coupon line",
					slog.String("file", filepath.Base(path)),
					slog.Uint64("line", lineNo),
					slog.String("error", err.Error()),
				)
				return
			}
			if _, ok := seen[c.Code]; ok {
				return
			}
			seen[c.Code] = struct{}{}
			res.coupons = append(res.coupons, c)

			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(c.Code) {
					res.candidates[c.Code] |= fileBit
					break
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan %s", path)
		}

		slog.Info("pass 2 complete",
			slog.String("file", filepath.Base(path)),
			slog.Int("coupons", len(res.coupons)),
			slog.Int("candidates", len(res.candidates)),
			slog.Int("invalid", res.invalid),
		)

		results[idx] = res
		return nil
	}
}

// peekCode extracts the normalized code of a line without full validation.
func peekCode(line []byte) (string, bool) {
	c, err := parseRecord(line, "")
	if err != nil {
		return "", false
	}
	return c.Code, true
}

// streamGzFile opens a gzip-compressed file and calls fn for each non-blank
// line. The line is only valid during the call.
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
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		fn(line)
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

type couponInserter interface {
	InsertMany(ctx context.Context, coupons []coupon.Coupon) (int, error)
}

// writeCoupons inserts coupons in batches. Codes that already exist, for any
// tenant, are left untouched.
func writeCoupons(ctx context.Context, repo couponInserter, coupons []coupon.Coupon, batchSize int) error {
	slog.Info("writing coupons to database", slog.Int("count", len(coupons)))

	inserted := 0
	for start := 0; start < len(coupons); start += batchSize {
		end := min(start+batchSize, len(coupons))

		n, err := repo.InsertMany(ctx, coupons[start:end])
		if err != nil {
			return errors.Wrapf(err, "insert batch at %d", start)
		}
		inserted += n

		slog.Info("write progress", slog.Int("written", end), slog.Int("total", len(coupons)))
	}

	slog.Info("coupons inserted",
		slog.Int("inserted", inserted),
		slog.Int("existing", len(coupons)-inserted),
	)
	return nil
}

func sample(codes []string, n int) []string {
	if len(codes) <= n {
		return codes
	}
	return codes[:n]
}
