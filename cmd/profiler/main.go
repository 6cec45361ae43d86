package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand" //nolint:gosec // intentional use for reproducible benchmarks
	"net/http"
	_ "net/http/pprof" //nolint:gosec // intentional profiling endpoint
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/meigma/ggpk"
	"github.com/meigma/ggpk/cache"
	"github.com/meigma/ggpk/cache/disk"
	"github.com/meigma/ggpk/internal/testutil"
)

const cacheNone = "none"

type config struct {
	mode            string
	files           int
	fileSize        int
	dirCount        int
	freeRecords     int
	pattern         string
	dataURL         string
	dataHTTPLatency time.Duration
	dataHTTPBPS     int64
	duration        time.Duration
	iterations      int
	pprofAddr       string
	cpuProfile      string
	memProfile      string
	traceFile       string
	cache           string
	cacheDir        string
	prefix          string
	extractWorkers  int
	readRandom      bool
	verify          bool
	verbose         bool
	tempDir         string
	keepTemp        bool
	randomSeed      int64
}

//nolint:unused // sink variables prevent compiler optimizations in profiling
var (
	sinkBytes []byte
	sinkStats ggpk.Stats
)

//nolint:gocognit,gocyclo // main function complexity is acceptable for CLI tool
func main() {
	cfg := parseFlags()

	if cfg.pprofAddr != "" {
		go func() {
			log.Printf("pprof listening on %s", cfg.pprofAddr)
			//nolint:gosec // intentional pprof server without timeouts for profiling
			if err := http.ListenAndServe(cfg.pprofAddr, nil); err != nil {
				log.Printf("pprof server error: %v", err)
			}
		}()
	}

	dir, cleanup, err := setupTempDir(cfg)
	if err != nil {
		log.Fatal(err)
	}
	if cleanup != nil {
		defer cleanup() //nolint:errcheck // cleanup errors are non-fatal in profiler
	}

	archive, paths, err := makeArchive(dir, cfg)
	if err != nil {
		log.Fatal(err) //nolint:gocritic // exitAfterDefer is intentional - cleanup is best-effort
	}

	if cfg.cpuProfile != "" {
		cpuFile, cpuErr := os.Create(cfg.cpuProfile)
		if cpuErr != nil {
			log.Fatal(cpuErr)
		}
		if cpuErr = pprof.StartCPUProfile(cpuFile); cpuErr != nil {
			log.Fatal(cpuErr)
		}
		defer func() {
			pprof.StopCPUProfile()
			_ = cpuFile.Close()
		}()
	}

	if cfg.traceFile != "" {
		traceFile, traceErr := os.Create(cfg.traceFile)
		if traceErr != nil {
			log.Fatal(traceErr)
		}
		if traceErr = trace.Start(traceFile); traceErr != nil {
			log.Fatal(traceErr)
		}
		defer func() {
			trace.Stop()
			_ = traceFile.Close()
		}()
	}

	stats, err := runProfile(cfg, archive, paths, dir)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.memProfile != "" {
		runtime.GC()
		f, err := os.Create(cfg.memProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal(err)
		}
		_ = f.Close()
	}

	fmt.Printf("mode=%s ops=%d bytes=%s elapsed=%s throughput=%s/s\n",
		cfg.mode,
		stats.ops,
		humanize.IBytes(uint64(stats.bytes)), //nolint:gosec // non-negative
		stats.elapsed,
		humanize.IBytes(uint64(float64(stats.bytes)/stats.elapsed.Seconds())),
	)
}

type profileStats struct {
	ops     int
	bytes   int64
	elapsed time.Duration
}

//nolint:gocognit,gocyclo,gocritic // complexity is inherent to multi-mode profiler dispatch; hugeParam acceptable for profiler
func runProfile(cfg config, archive string, paths []string, rootDir string) (profileStats, error) {
	start := time.Now()
	ops := 0
	var byteCount int64

	shouldContinue := func() bool {
		if cfg.iterations > 0 {
			return ops < cfg.iterations
		}
		return time.Since(start) < cfg.duration
	}

	opts := []ggpk.Option{ggpk.WithVerifyDigest(cfg.verify)}
	if cfg.verbose {
		opts = append(opts, ggpk.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	}

	switch cfg.mode {
	case "load":
		for shouldContinue() {
			c, closeFn, err := openArchive(cfg, archive, opts...)
			if err != nil {
				return profileStats{}, err
			}
			sinkStats = c.Stats()
			byteCount += c.Size()
			closeFn()
			ops++
		}

	case "readfile":
		if cfg.cache != cacheNone {
			cc, cleanup, err := newCache(cfg, rootDir)
			if err != nil {
				return profileStats{}, err
			}
			defer cleanup() //nolint:errcheck // cleanup errors are non-fatal in profiler
			opts = append(opts, ggpk.WithCache(cc))
		}
		c, closeFn, err := openArchive(cfg, archive, opts...)
		if err != nil {
			return profileStats{}, err
		}
		defer closeFn()

		start = time.Now()
		rng := rand.New(rand.NewSource(cfg.randomSeed)) //nolint:gosec // intentional for reproducible benchmarks
		for shouldContinue() {
			content, err := c.ReadFile(pickPath(paths, ops, rng, cfg.readRandom))
			if err != nil {
				return profileStats{}, err
			}
			sinkBytes = content
			byteCount += int64(len(content))
			ops++
		}

	case "cached-readfile-hit":
		if cfg.cache == cacheNone {
			return profileStats{}, errors.New("cached-readfile-hit requires cache")
		}
		cc, cleanup, err := newCache(cfg, rootDir)
		if err != nil {
			return profileStats{}, err
		}
		defer cleanup() //nolint:errcheck // cleanup errors are non-fatal in profiler

		c, closeFn, err := openArchive(cfg, archive, append(opts, ggpk.WithCache(cc))...)
		if err != nil {
			return profileStats{}, err
		}
		defer closeFn()
		for _, path := range paths {
			content, err := c.ReadFile(path)
			if err != nil {
				return profileStats{}, err
			}
			sinkBytes = content
		}

		start = time.Now()
		rng := rand.New(rand.NewSource(cfg.randomSeed)) //nolint:gosec // intentional for reproducible benchmarks
		for shouldContinue() {
			content, err := c.ReadFile(pickPath(paths, ops, rng, cfg.readRandom))
			if err != nil {
				return profileStats{}, err
			}
			sinkBytes = content
			byteCount += int64(len(content))
			ops++
		}

	case "replace":
		if cfg.dataURL != "" {
			return profileStats{}, errors.New("replace needs a local archive")
		}
		c, err := ggpk.Open(archive, opts...)
		if err != nil {
			return profileStats{}, err
		}
		defer c.Close()

		// Alternate between shrinking and growing so both reuse and growth
		// paths of the allocator run.
		rng := rand.New(rand.NewSource(cfg.randomSeed)) //nolint:gosec // intentional for reproducible benchmarks
		start = time.Now()
		for shouldContinue() {
			size := cfg.fileSize / 2
			if ops%2 == 1 {
				size = cfg.fileSize * 2
			}
			content := fillContent(rng, size, ops, cfg.pattern)
			if err := c.Replace(pickPath(paths, ops, rng, cfg.readRandom), content); err != nil {
				return profileStats{}, err
			}
			byteCount += int64(size)
			ops++
		}
		if err := c.Check(); err != nil {
			return profileStats{}, err
		}
		log.Print(c.Stats())

	case "save":
		c, closeFn, err := openArchive(cfg, archive, opts...)
		if err != nil {
			return profileStats{}, err
		}
		defer closeFn()
		dest := filepath.Join(rootDir, "saved", "Content.ggpk")
		start = time.Now()
		for shouldContinue() {
			if err := c.Save(dest); err != nil {
				return profileStats{}, err
			}
			byteCount += c.Size()
			ops++
		}

	case "extract":
		c, closeFn, err := openArchive(cfg, archive, opts...)
		if err != nil {
			return profileStats{}, err
		}
		defer closeFn()
		extractBytes, err := prefixSize(c, cfg.prefix)
		if err != nil {
			return profileStats{}, err
		}
		var extractOpts []ggpk.ExtractOption
		if cfg.extractWorkers > 0 {
			extractOpts = append(extractOpts, ggpk.ExtractWithWorkers(cfg.extractWorkers))
		}

		start = time.Now()
		for shouldContinue() {
			destDir := filepath.Join(rootDir, "extract", fmt.Sprintf("iter-%d", ops))
			if err := c.Extract(destDir, cfg.prefix, extractOpts...); err != nil {
				return profileStats{}, err
			}
			if err := os.RemoveAll(destDir); err != nil {
				return profileStats{}, err
			}
			byteCount += extractBytes
			ops++
		}

	default:
		return profileStats{}, fmt.Errorf("unknown mode: %s", cfg.mode)
	}

	return profileStats{
		ops:     ops,
		bytes:   byteCount,
		elapsed: time.Since(start),
	}, nil
}

func parseFlags() config {
	var cfg config
	var dataHTTPBPS string
	flag.StringVar(&cfg.mode, "mode", "readfile", "mode: load, readfile, cached-readfile-hit, replace, save, extract")
	flag.IntVar(&cfg.files, "files", 512, "number of files")
	flag.IntVar(&cfg.fileSize, "file-size", 16<<10, "file size in bytes")
	flag.IntVar(&cfg.dirCount, "dir-count", 16, "number of directories")
	flag.IntVar(&cfg.freeRecords, "free-records", 64, "number of free records in the generated archive")
	flag.StringVar(&cfg.pattern, "pattern", "compressible", "pattern: compressible or random")
	flag.StringVar(&cfg.dataURL, "data-url", "", "read the archive over HTTP (use \"local\" to serve the generated archive)")
	flag.DurationVar(&cfg.dataHTTPLatency, "data-http-latency", 0, "per-request latency for HTTP data source")
	flag.StringVar(&dataHTTPBPS, "data-http-bps", "", "bytes/sec throttle for HTTP data source (e.g. 10MB)")
	flag.DurationVar(&cfg.duration, "duration", 10*time.Second, "duration to run (ignored if iterations > 0)")
	flag.IntVar(&cfg.iterations, "iterations", 0, "number of iterations to run")
	flag.StringVar(&cfg.pprofAddr, "pprof-addr", "", "pprof listen address (e.g. :6060)")
	flag.StringVar(&cfg.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	flag.StringVar(&cfg.memProfile, "memprofile", "", "write heap profile to file")
	flag.StringVar(&cfg.traceFile, "trace", "", "write trace to file")
	flag.StringVar(&cfg.cache, "cache", cacheNone, "cache: memory, disk, none")
	flag.StringVar(&cfg.cacheDir, "cache-dir", "", "cache directory (disk cache only)")
	flag.StringVar(&cfg.prefix, "prefix", "dir00", "directory prefix for extract mode")
	flag.IntVar(&cfg.extractWorkers, "extract-workers", 0, "extract workers: 0 uses the default")
	flag.BoolVar(&cfg.readRandom, "read-random", true, "randomize file selection")
	flag.BoolVar(&cfg.verify, "verify", false, "verify content digests on read")
	flag.BoolVar(&cfg.verbose, "v", false, "log container activity to stderr")
	flag.StringVar(&cfg.tempDir, "temp-dir", "", "directory to use for dataset")
	flag.BoolVar(&cfg.keepTemp, "keep-temp", false, "keep temp dir after run")
	flag.Int64Var(&cfg.randomSeed, "seed", 1, "random seed")
	flag.Parse()
	if dataHTTPBPS != "" {
		bps, err := parseBytesPerSecond(dataHTTPBPS)
		if err != nil {
			log.Fatalf("data-http-bps: %v", err)
		}
		cfg.dataHTTPBPS = bps
	}
	return cfg
}

func pickPath(paths []string, idx int, rng *rand.Rand, random bool) string {
	if random {
		return paths[rng.Intn(len(paths))]
	}
	return paths[idx%len(paths)]
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func setupTempDir(cfg config) (string, func() error, error) {
	if cfg.tempDir != "" {
		return cfg.tempDir, nil, os.MkdirAll(cfg.tempDir, 0o755) //nolint:gosec // 0o755 is intentional for profiler temp dirs
	}
	dir, err := os.MkdirTemp("", "ggpk-profiler-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() error {
		if cfg.keepTemp {
			return nil
		}
		return os.RemoveAll(dir)
	}
	return dir, cleanup, nil
}

// makeArchive writes a synthetic archive under dir and returns its path and
// the paths of the files it holds.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func makeArchive(dir string, cfg config) (string, []string, error) {
	dirCount := max(cfg.dirCount, 1)
	rng := rand.New(rand.NewSource(cfg.randomSeed)) //nolint:gosec // intentional use for reproducible benchmarks
	b := testutil.NewBuilder()
	paths := make([]string, 0, cfg.files)
	for i := range cfg.files {
		path := fmt.Sprintf("dir%02d/file%05d.dat", i%dirCount, i)
		b.File(path, fillContent(rng, cfg.fileSize, i, cfg.pattern))
		paths = append(paths, path)
	}
	if len(paths) == 0 {
		return "", nil, errors.New("files must be positive")
	}
	for i := range cfg.freeRecords {
		// Spread free lengths so the size buckets have more than one key.
		b.Free(uint32(16 + (i%8)*cfg.fileSize/4)) //nolint:gosec // bounded by flags
	}

	data, _, err := b.Encode()
	if err != nil {
		return "", nil, err
	}
	archive := filepath.Join(dir, "Content.ggpk")
	if err := os.WriteFile(archive, data, 0o644); err != nil { //nolint:gosec // 0o644 is intentional for profiler test files
		return "", nil, err
	}
	return archive, paths, nil
}

func fillContent(rng *rand.Rand, size, i int, pattern string) []byte {
	content := make([]byte, size)
	switch pattern {
	case "random":
		_, _ = rng.Read(content)
	default:
		fillByte := byte('a' + (i % 26))
		for j := range content {
			content[j] = fillByte
		}
		if len(content) > 0 {
			content[0] = byte(i)
		}
	}
	return content
}

// openArchive opens the archive from disk, or over HTTP when -data-url is set.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func openArchive(cfg config, archive string, opts ...ggpk.Option) (*ggpk.Container, func(), error) {
	if cfg.dataURL == "" {
		c, err := ggpk.Open(archive, opts...)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { _ = c.Close() }, nil
	}

	data, err := os.ReadFile(archive) //nolint:gosec // path is generated by the profiler
	if err != nil {
		return nil, nil, err
	}
	source, cleanup, err := newHTTPSource(cfg, data)
	if err != nil {
		return nil, nil, err
	}
	c, err := ggpk.New(source, source.Size(), opts...)
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, nil, err
	}
	return c, func() {
		_ = c.Close()
		if cleanup != nil {
			cleanup()
		}
	}, nil
}

func prefixSize(c *ggpk.Container, prefix string) (int64, error) {
	var total int64
	for _, f := range c.Files() {
		if prefix == "" || prefix == "." || hasDirPrefix(c.PathOf(f), prefix) {
			total += f.DataLength
		}
	}
	if total == 0 {
		return 0, fmt.Errorf("no files under prefix %q", prefix)
	}
	return total, nil
}

func hasDirPrefix(path, prefix string) bool {
	return path == prefix || (len(path) > len(prefix) && path[:len(prefix)] == prefix && path[len(prefix)] == '/')
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func newCache(cfg config, rootDir string) (cache.Cache, func() error, error) {
	switch cfg.cache {
	case cacheNone:
		return nil, nil, errors.New("cache=none should not create a cache")
	case "memory":
		return testutil.NewMockCache(), func() error { return nil }, nil
	case "disk":
		cacheDir := cfg.cacheDir
		autoDir := false
		if cacheDir == "" {
			dir, err := os.MkdirTemp(rootDir, "cache-*")
			if err != nil {
				return nil, nil, err
			}
			cacheDir = dir
			autoDir = true
		}
		c, err := disk.New(cacheDir)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() error {
			if autoDir {
				return os.RemoveAll(cacheDir)
			}
			return nil
		}
		return c, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache: %s", cfg.cache)
	}
}
