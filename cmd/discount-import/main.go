// Command discount-import loads discount definitions from gzipped JSON-lines
// files into the discounts table.
//
// Files are read concurrently. A code may appear in several files only if
// every copy is identical; conflicting copies abort the import before anything
// is written.
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/atelier-billing/internal/domain/discount"
	"github.com/xenking/atelier-billing/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	minBloomSize  = 1024
	progressEvery = 100_000
	maxLineBytes  = 1 << 20
)

// fileResult holds the definitions read from one file in line order.
type fileResult struct {
	path   string
	defs   []discount.Definition
	prints []string
	filter *bloom.BloomFilter
}

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		dryRun      bool
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing discount files")
	flag.StringVar(&pattern, "pattern", "*.jsonl.gz", "glob of files to import inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "validate files without writing to the database")
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

	if err := run(ctx, dataDir, pattern, databaseURL, dryRun); err != nil {
		slog.Error("discount import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("discount import completed successfully")
}

func run(ctx context.Context, dataDir, pattern, databaseURL string, dryRun bool) error {
	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "match files")
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %s in %s", pattern, dataDir)
	}
	sort.Strings(files)

	slog.Info("reading discount files", slog.Int("files", len(files)))

	results, err := readFiles(ctx, files)
	if err != nil {
		return errors.Wrap(err, "read files")
	}

	defs, err := merge(results)
	if err != nil {
		return errors.Wrap(err, "merge files")
	}

	slog.Info("definitions ready", slog.Int("count", len(defs)))

	if dryRun || len(defs) == 0 {
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.NewDiscountRepository(pool).UpsertMany(ctx, defs); err != nil {
		return errors.Wrap(err, "write discounts")
	}

	slog.Info("wrote discounts", slog.Int("count", len(defs)))

	return nil
}

// readFiles decodes every file concurrently. Results keep the order of files.
func readFiles(ctx context.Context, files []string) ([]fileResult, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			r, err := readFile(ctx, f)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// readFile decodes and validates one file. Blank lines are skipped. A code
// repeated inside the file must repeat the same definition.
func readFile(ctx context.Context, path string) (fileResult, error) {
	res := fileResult{path: path}
	seen := make(map[string]string)

	err := streamGzFile(ctx, path, func(lineNo int, line []byte) error {
		var def discount.Definition
		if err := def.Decode(jx.DecodeBytes(line)); err != nil {
			return errors.Wrapf(err, "%s:%d", path, lineNo)
		}
		if err := discount.Validate(&def); err != nil {
			return errors.Wrapf(err, "%s:%d", path, lineNo)
		}

		fp := fingerprint(def)
		if prev, ok := seen[def.Code]; ok {
			if prev != fp {
				return errors.Errorf("%s:%d: conflicting duplicate of %s", path, lineNo, def.Code)
			}
			return nil
		}
		seen[def.Code] = fp

		res.defs = append(res.defs, def)
		res.prints = append(res.prints, fp)
		if len(res.defs)%progressEvery == 0 {
			slog.Info("read progress", slog.String("file", path), slog.Int("definitions", len(res.defs)))
		}
		return nil
	})
	if err != nil {
		return fileResult{}, err
	}

	res.filter = bloom.NewWithEstimates(uint(max(len(res.defs), minBloomSize)), bloomFPR)
	for _, def := range res.defs {
		res.filter.AddString(def.Code)
	}

	slog.Info("read complete", slog.String("file", path), slog.Int("definitions", len(res.defs)))

	return res, nil
}

// merge concatenates results in file order, dropping identical copies of a
// code seen in an earlier file. Only codes that another file's filter
// reports as present are compared exactly.
func merge(results []fileResult) ([]discount.Definition, error) {
	var (
		out    []discount.Definition
		shared = make(map[string]string)
	)
	for i, r := range results {
		for j, def := range r.defs {
			if !inOtherFile(results, i, def.Code) {
				out = append(out, def)
				continue
			}
			prev, ok := shared[def.Code]
			if !ok {
				shared[def.Code] = r.prints[j]
				out = append(out, def)
				continue
			}
			if prev != r.prints[j] {
				return nil, errors.Errorf("%s: conflicting definition of %s", r.path, def.Code)
			}
		}
	}
	return out, nil
}

func inOtherFile(results []fileResult, idx int, code string) bool {
	for i, r := range results {
		if i != idx && r.filter.TestString(code) {
			return true
		}
	}
	return false
}

// fingerprint is the canonical encoding of def.
func fingerprint(def discount.Definition) string {
	var e jx.Encoder
	def.Encode(&e)
	return e.String()
}

// streamGzFile opens a gzip-compressed file and calls fn for each non-blank
// line with its 1-based number.
func streamGzFile(ctx context.Context, path string, fn func(lineNo int, line []byte) error) error {
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
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(lineNo, line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
